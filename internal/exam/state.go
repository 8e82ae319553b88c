package exam

import (
	"time"

	"github.com/pavelanni/docexam/internal/model"
)

// Phase is the examination's position in its flow. PhaseEvaluating means a
// question is waiting for its answer.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseAnalyzing   Phase = "analyzing"
	PhaseQuestioning Phase = "questioning"
	PhaseEvaluating  Phase = "evaluating"
	PhaseComplete    Phase = "complete"
)

// State is the full conversation state of one examination.
//
// QuestionsAsked, AnswersGiven, Evaluations and Marks are index aligned:
// AnswersGiven[i], Evaluations[i] and Marks[i] belong to QuestionsAsked[i].
type State struct {
	DocumentText    string
	DocumentTitle   string
	DocumentType    model.DocumentType
	DocumentSummary string
	DocumentInfo    model.DocumentInfo

	FocusAreas     []string
	QuestionsAsked []string
	AnswersGiven   []string
	Evaluations    []string
	Marks          []int

	CurrentQuestionIndex int
	TotalQuestions       int

	LifelinesTotal     int
	LifelinesRemaining int
	LifelinesUsed      []model.LifelineUse
	AwaitingLifeline   bool
	PendingLifeline    model.LifelineKind

	FinalEvaluation string
	FinalScore      *model.Score

	Models    []string
	LastModel string

	StartedAt   time.Time
	CompletedAt *time.Time
}

func newState() State {
	return State{DocumentType: model.DocGeneral}
}

// Phase derives the flow position from the state.
func (s State) Phase() Phase {
	switch {
	case s.DocumentTitle == "" && len(s.FocusAreas) == 0:
		return PhaseIdle
	case len(s.FocusAreas) == 0:
		return PhaseAnalyzing
	case s.pendingQuestion():
		return PhaseEvaluating
	case s.CurrentQuestionIndex >= s.TotalQuestions:
		return PhaseComplete
	default:
		return PhaseQuestioning
	}
}

// IsComplete reports whether every question has been asked.
func (s State) IsComplete() bool {
	return s.CurrentQuestionIndex >= s.TotalQuestions
}

// clone returns a deep copy.
func (s State) clone() State {
	c := s
	c.FocusAreas = append([]string(nil), s.FocusAreas...)
	c.QuestionsAsked = append([]string(nil), s.QuestionsAsked...)
	c.AnswersGiven = append([]string(nil), s.AnswersGiven...)
	c.Evaluations = append([]string(nil), s.Evaluations...)
	c.Marks = append([]int(nil), s.Marks...)
	c.LifelinesUsed = append([]model.LifelineUse(nil), s.LifelinesUsed...)
	c.Models = append([]string(nil), s.Models...)
	if s.FinalScore != nil {
		score := *s.FinalScore
		c.FinalScore = &score
	}
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		c.CompletedAt = &at
	}
	return c
}

// pendingQuestion reports whether the last asked question awaits an answer.
func (s State) pendingQuestion() bool {
	return len(s.QuestionsAsked) > len(s.AnswersGiven)
}

func (s State) focusArea(i int) string {
	if len(s.FocusAreas) == 0 {
		return genericFocusAreas[min(i, len(genericFocusAreas)-1)]
	}
	return s.FocusAreas[min(max(i, 0), len(s.FocusAreas)-1)]
}

// genericFocusAreas is used when the model cannot produce document-specific ones.
var genericFocusAreas = []string{
	"the main topic and central purpose: what is this document about and why does it matter?",
	"the scope and boundaries: what is included, what is excluded, and what are the limitations?",
	"the key points, arguments, or findings: what are the main claims, conclusions, or discoveries?",
	"the evidence, methods, or reasoning: how are conclusions supported and validated?",
	"the implications, significance, and future directions: what impact does this have and what comes next?",
}
