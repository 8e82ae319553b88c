package exam

import "github.com/pavelanni/docexam/internal/model"

// Result converts the session into its reportable form.
func (s *Session) Result() model.SessionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return resultFromState(s.id, s.state)
}

func resultFromState(id string, st State) model.SessionResult {
	questions := make([]model.QuestionResult, len(st.QuestionsAsked))
	for i, q := range st.QuestionsAsked {
		qr := model.QuestionResult{
			Number:    i + 1,
			FocusArea: st.focusArea(i),
			Question:  q,
		}
		if i < len(st.AnswersGiven) {
			mark := st.Marks[i]
			qr.Answer = st.AnswersGiven[i]
			qr.Evaluation = st.Evaluations[i]
			qr.Mark = &mark
		}
		questions[i] = qr
	}

	res := model.SessionResult{
		ID:              id,
		DocumentTitle:   st.DocumentTitle,
		DocumentType:    st.DocumentType,
		DocumentSummary: st.DocumentSummary,
		Pages:           st.DocumentInfo.Pages,
		TotalQuestions:  st.TotalQuestions,
		Questions:       questions,
		Score:           model.ComputeScore(st.Marks),
		LifelinesTotal:  st.LifelinesTotal,
		Lifelines:       append([]model.LifelineUse{}, st.LifelinesUsed...),
		FinalEvaluation: st.FinalEvaluation,
		Models:          append([]string(nil), st.Models...),
		StartedAt:       st.StartedAt,
	}
	if st.CompletedAt != nil {
		at := *st.CompletedAt
		res.CompletedAt = &at
	}
	return res
}
