// Package exam runs one document examination: analysis, question
// generation, answer evaluation, lifelines and the final summary.
package exam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/docexam/internal/document"
	"github.com/pavelanni/docexam/internal/index"
	"github.com/pavelanni/docexam/internal/llm"
	"github.com/pavelanni/docexam/internal/llm/prompts"
	"github.com/pavelanni/docexam/internal/model"
)

// ErrState is returned for an operation the session cannot perform in its
// current state.
var ErrState = errors.New("invalid examination state")

// recentWindow is how many recent questions the model is told to avoid.
const recentWindow = 7

// Generator produces text from a prompt on a model tier.
type Generator interface {
	Generate(ctx context.Context, prompt string, tier llm.Tier) (llm.Result, error)
}

// AvoidScope selects which earlier questions a replacement question avoids.
type AvoidScope string

const (
	// AvoidFocus avoids the recent window plus discarded questions.
	AvoidFocus AvoidScope = "focus"
	// AvoidAll avoids every question of the session.
	AvoidAll AvoidScope = "all"
)

// Retrieval strategies.
const (
	RetrievalIndex  = "index"
	RetrievalPrefix = "prefix"
)

// Config holds per-session tunables.
type Config struct {
	MaxQuestions  int
	LifelineRatio float64
	Avoid         AvoidScope
	Variant       prompts.PromptVariant
	Retrieval     string
}

func (c Config) withDefaults() Config {
	if c.MaxQuestions <= 0 {
		c.MaxQuestions = 100
	}
	if c.LifelineRatio <= 0 {
		c.LifelineRatio = 1.0 / 3
	}
	if c.Avoid == "" {
		c.Avoid = AvoidFocus
	}
	if c.Variant == "" {
		c.Variant = prompts.PromptStandard
	}
	if c.Retrieval == "" {
		c.Retrieval = RetrievalIndex
	}
	return c
}

// Ingestor holds what Start needs to turn a file into an indexed document.
// Store and Embedder may be nil, in which case retrieval uses the prefix.
type Ingestor struct {
	Extractor *document.Extractor
	Splitter  document.Splitter
	Store     index.VectorStore
	Embedder  index.Embedder
}

// Question is the outcome of NextQuestion. Done is set, with no text, when
// every question has been asked.
type Question struct {
	Number    int
	Total     int
	Text      string
	FocusArea string
	Model     string
	Lifeline  model.LifelineKind
	Done      bool
}

// Evaluation is the outcome of EvaluateAnswer.
type Evaluation struct {
	Number   int
	Text     string
	Mark     int
	Model    string
	Complete bool
}

// Summary is the outcome of FinalSummary.
type Summary struct {
	Text  string
	Score model.Score
	Model string
}

// Session is one examination. All methods are safe for concurrent use and
// are serialized.
type Session struct {
	id  string
	gen Generator
	ing *Ingestor
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	state     State
	ix        *index.Index
	source    index.ContextSource
	discarded []string
}

// New creates an idle session.
func New(gen Generator, ing *Ingestor, cfg Config) *Session {
	return &Session{
		id:    uuid.NewString(),
		gen:   gen,
		ing:   ing,
		cfg:   cfg.withDefaults(),
		now:   time.Now,
		state: newState(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// LifelinesFor returns the lifeline budget for total questions.
func LifelinesFor(total int, ratio float64) int {
	return max(1, int(math.Floor(float64(total)*ratio+1e-9)))
}

// Start extracts and validates the PDF at path, then runs Begin.
func (s *Session) Start(ctx context.Context, path string, requested int) error {
	if s.ing == nil || s.ing.Extractor == nil {
		return errors.New("session has no document extractor")
	}
	doc, err := s.ing.Extractor.Extract(ctx, path)
	if err != nil {
		return err
	}
	if err := document.Validate(doc); err != nil {
		return err
	}
	return s.Begin(ctx, doc, requested)
}

// Begin loads an extracted document: it chunks and indexes the text, sizes
// the examination and analyzes the document. On failure the session is
// left idle.
func (s *Session) Begin(ctx context.Context, doc document.Document, requested int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Phase() != PhaseIdle {
		return fmt.Errorf("%w: a document is already loaded", ErrState)
	}

	ix, chunks := s.buildIndex(ctx, doc)
	s.ix = ix
	if ix != nil {
		s.source = index.NewIndexSource(ix, doc.Text)
	} else {
		s.source = index.NewPrefixSource(doc.Text)
	}

	s.setTotal(document.QuestionCount(requested, doc.Pages, s.cfg.MaxQuestions))
	s.state.DocumentInfo = model.DocumentInfo{
		Title:      doc.Title,
		Author:     doc.Author,
		Pages:      doc.Pages,
		Words:      doc.Words(),
		Characters: doc.Characters(),
		Chunks:     chunks,
	}
	s.state.StartedAt = s.now()

	if err := s.analyze(ctx, doc.Text, doc.Title); err != nil {
		if rerr := s.reset(ctx); rerr != nil {
			slog.Warn("cleanup after failed analysis", "session", s.id, "error", rerr)
		}
		return err
	}
	slog.Info("examination ready", "session", s.id, "title", doc.Title,
		"type", s.state.DocumentType, "questions", s.state.TotalQuestions, "lifelines", s.state.LifelinesTotal)
	return nil
}

func (s *Session) buildIndex(ctx context.Context, doc document.Document) (*index.Index, int) {
	if s.cfg.Retrieval == RetrievalPrefix || s.ing == nil || s.ing.Store == nil || s.ing.Embedder == nil {
		return nil, 0
	}
	splitter := s.ing.Splitter
	if splitter == nil {
		splitter = document.WordSplitter{Size: document.DefaultChunkSize, Overlap: document.DefaultChunkOverlap}
	}
	chunks, err := splitter.Split(doc.Text)
	if err != nil || len(chunks) == 0 {
		slog.Warn("chunking failed, using document prefix", "session", s.id, "error", err)
		return nil, 0
	}
	// Collections are scoped to the session so concurrent sessions on the
	// same title do not replace each other's index.
	ix, err := index.Build(ctx, s.ing.Store, s.ing.Embedder, s.id+"/"+doc.Title, chunks)
	if err != nil {
		slog.Warn("index build failed, using document prefix", "session", s.id, "error", err)
		return nil, len(chunks)
	}
	return ix, len(chunks)
}

// SetTotalQuestions fixes the question count before the first question.
func (s *Session) SetTotalQuestions(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.state.QuestionsAsked) > 0 {
		return fmt.Errorf("%w: questions already asked", ErrState)
	}
	if n < 1 || n > s.cfg.MaxQuestions {
		return fmt.Errorf("question count %d outside [1, %d]", n, s.cfg.MaxQuestions)
	}
	s.setTotal(n)
	return nil
}

func (s *Session) setTotal(n int) {
	n = min(max(n, 1), s.cfg.MaxQuestions)
	s.state.TotalQuestions = n
	s.state.LifelinesTotal = LifelinesFor(n, s.cfg.LifelineRatio)
	s.state.LifelinesRemaining = s.state.LifelinesTotal
}

// Analyze classifies and summarizes the document and derives five focus
// areas. Only a failed classification call is an error, and it leaves the
// state untouched. Once a question has been asked the document is fixed.
func (s *Session) Analyze(ctx context.Context, text, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.state.QuestionsAsked) > 0 {
		return fmt.Errorf("%w: questions have already been asked", ErrState)
	}
	if s.source == nil {
		s.source = index.NewPrefixSource(text)
	}
	return s.analyze(ctx, text, title)
}

func (s *Session) analyze(ctx context.Context, text, title string) error {
	types := make([]string, len(model.DocumentTypes))
	for i, t := range model.DocumentTypes {
		types[i] = string(t)
	}
	prompt, err := prompts.BuildAnalyze(prompts.AnalyzeData{
		Title:   title,
		Context: s.source.Context(ctx, "document overview summary main topic "+title, 3),
		Types:   types,
	})
	if err != nil {
		return err
	}
	res, err := s.gen.Generate(ctx, prompt, llm.TierStandard)
	if err != nil {
		return fmt.Errorf("analyze document: %w", err)
	}
	s.recordModel(res.Model)

	docType, summary := parseAnalysis(res.Text)
	focus := s.focusAreas(ctx, docType)

	s.state.DocumentText = text
	s.state.DocumentTitle = title
	s.state.DocumentType = docType
	s.state.DocumentSummary = summary
	s.state.FocusAreas = focus
	return nil
}

func (s *Session) focusAreas(ctx context.Context, docType model.DocumentType) []string {
	generic := append([]string(nil), genericFocusAreas...)
	prompt, err := prompts.BuildFocusAreas(prompts.FocusData{
		DocType: string(docType),
		Context: s.source.Context(ctx, "main topics concepts themes methodology objectives "+string(docType), 5),
	})
	if err != nil {
		slog.Warn("focus area prompt failed, using generic areas", "error", err)
		return generic
	}
	res, err := s.gen.Generate(ctx, prompt, llm.TierStandard)
	if err != nil {
		slog.Warn("focus area generation failed, using generic areas", "session", s.id, "error", err)
		return generic
	}
	s.recordModel(res.Model)
	areas := parseFocusAreas(res.Text)
	if len(areas) < len(genericFocusAreas) {
		slog.Warn("too few focus areas, using generic areas", "session", s.id, "got", len(areas))
		return generic
	}
	return areas[:len(genericFocusAreas)]
}

// NextQuestion asks the next question, or serves a pending lifeline.
func (s *Session) NextQuestion(ctx context.Context) (Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Phase() == PhaseIdle {
		return Question{}, fmt.Errorf("%w: no document loaded", ErrState)
	}
	if s.state.IsComplete() && !s.state.pendingQuestion() {
		return Question{Done: true, Total: s.state.TotalQuestions}, nil
	}
	if s.state.AwaitingLifeline {
		return s.lifelineQuestion(ctx)
	}
	if s.state.pendingQuestion() {
		return Question{}, fmt.Errorf("%w: question %d has not been answered", ErrState, len(s.state.QuestionsAsked))
	}
	return s.standardQuestion(ctx)
}

func (s *Session) standardQuestion(ctx context.Context) (Question, error) {
	i := s.state.CurrentQuestionIndex
	focus := s.state.focusArea(i)
	prompt, err := prompts.BuildQuestion(prompts.QuestionData{
		Number:    i + 1,
		Total:     s.state.TotalQuestions,
		DocType:   string(s.state.DocumentType),
		Title:     s.state.DocumentTitle,
		FocusArea: focus,
		Context:   s.source.Context(ctx, focus+" "+string(s.state.DocumentType), 3),
		Avoid:     s.avoidList(),
	})
	if err != nil {
		return Question{}, err
	}
	res, err := s.gen.Generate(ctx, prompt, llm.TierStandard)
	if err != nil {
		return Question{}, fmt.Errorf("generate question %d: %w", i+1, err)
	}

	text := strings.TrimSpace(res.Text)
	s.state.QuestionsAsked = append(s.state.QuestionsAsked, text)
	s.state.CurrentQuestionIndex++
	s.discarded = nil
	s.recordModel(res.Model)

	return Question{
		Number:    i + 1,
		Total:     s.state.TotalQuestions,
		Text:      text,
		FocusArea: focus,
		Model:     res.Model,
	}, nil
}

func (s *Session) avoidList() []string {
	var avoid []string
	asked := s.state.QuestionsAsked
	if s.cfg.Avoid == AvoidAll {
		avoid = append(avoid, asked...)
	} else {
		avoid = append(avoid, asked[max(0, len(asked)-recentWindow):]...)
	}
	return append(avoid, s.discarded...)
}

func (s *Session) lifelineQuestion(ctx context.Context) (Question, error) {
	kind := s.state.PendingLifeline
	defer func() {
		s.state.AwaitingLifeline = false
		s.state.PendingLifeline = model.LifelineNone
	}()

	if kind == model.LifelineNew {
		var dropped string
		n := len(s.state.QuestionsAsked)
		if n > 0 && s.state.CurrentQuestionIndex > 0 {
			dropped = s.state.QuestionsAsked[n-1]
			s.discarded = append(s.discarded, dropped)
			s.state.QuestionsAsked = s.state.QuestionsAsked[:n-1]
			s.state.CurrentQuestionIndex--
		}
		q, err := s.standardQuestion(ctx)
		if err != nil {
			// The replacement failed, so the dropped question stays asked.
			if dropped != "" {
				s.state.QuestionsAsked = append(s.state.QuestionsAsked, dropped)
				s.state.CurrentQuestionIndex++
				s.discarded = s.discarded[:len(s.discarded)-1]
			}
			return Question{}, err
		}
		q.Lifeline = model.LifelineNew
		return q, nil
	}

	n := len(s.state.QuestionsAsked)
	if n == 0 {
		return Question{}, fmt.Errorf("%w: no question to rephrase", ErrState)
	}
	last := s.state.QuestionsAsked[n-1]
	prompt, err := prompts.BuildRephrase(prompts.RephraseData{
		Question: last,
		Context:  s.source.Context(ctx, last, 2),
	})
	if err != nil {
		return Question{}, err
	}
	res, err := s.gen.Generate(ctx, prompt, llm.TierStandard)
	if err != nil {
		return Question{}, fmt.Errorf("rephrase question %d: %w", n, err)
	}
	text := strings.TrimSpace(res.Text)
	s.state.QuestionsAsked[n-1] = text
	s.recordModel(res.Model)

	return Question{
		Number:    n,
		Total:     s.state.TotalQuestions,
		Text:      text,
		FocusArea: s.state.focusArea(n - 1),
		Model:     res.Model,
		Lifeline:  model.LifelineRephrase,
	}, nil
}

// EvaluateAnswer grades the answer to the pending question.
func (s *Session) EvaluateAnswer(ctx context.Context, answer string) (Evaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.pendingQuestion() {
		return Evaluation{}, fmt.Errorf("%w: no question awaiting an answer", ErrState)
	}
	if s.state.AwaitingLifeline {
		return Evaluation{}, fmt.Errorf("%w: a lifeline is pending", ErrState)
	}

	i := len(s.state.QuestionsAsked) - 1
	question := s.state.QuestionsAsked[i]
	prompt, err := prompts.BuildEvaluate(s.cfg.Variant, prompts.EvaluateData{
		Question: question,
		Answer:   answer,
		Context:  s.source.Context(ctx, question+" "+answer, 3),
	})
	if err != nil {
		return Evaluation{}, err
	}
	res, err := s.gen.Generate(ctx, prompt, llm.TierStandard)
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluate answer %d: %w", i+1, err)
	}

	text := strings.TrimSpace(res.Text)
	mark, ok := parseMark(text)
	if !ok {
		slog.Warn("no mark in evaluation, using default", "session", s.id, "question", i+1, "mark", defaultMark)
		mark = defaultMark
		text = fmt.Sprintf("**Marks: %d/10**\n\n%s", defaultMark, text)
	}

	s.state.AnswersGiven = append(s.state.AnswersGiven, answer)
	s.state.Evaluations = append(s.state.Evaluations, text)
	s.state.Marks = append(s.state.Marks, mark)
	s.recordModel(res.Model)

	return Evaluation{
		Number:   i + 1,
		Text:     text,
		Mark:     mark,
		Model:    res.Model,
		Complete: s.state.IsComplete(),
	}, nil
}

// IsComplete reports whether every question has been asked.
func (s *Session) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.IsComplete()
}

// FinalSummary scores the answered questions and asks the premium tier for
// overall feedback.
func (s *Session) FinalSummary(ctx context.Context) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.state.Marks) == 0 {
		return Summary{}, fmt.Errorf("%w: no answered questions", ErrState)
	}
	score := model.ComputeScore(s.state.Marks)

	transcript := make([]prompts.TranscriptEntry, len(s.state.AnswersGiven))
	for i := range s.state.AnswersGiven {
		transcript[i] = prompts.TranscriptEntry{
			Number:     i + 1,
			Question:   s.state.QuestionsAsked[i],
			Answer:     s.state.AnswersGiven[i],
			Evaluation: s.state.Evaluations[i],
		}
	}
	prompt, err := prompts.BuildSummary(prompts.SummaryData{
		Title:      s.state.DocumentTitle,
		TotalMarks: score.TotalMarks,
		MaxMarks:   score.MaxMarks,
		Percentage: score.Percentage,
		Status:     string(score.Status),
		Overview:   s.source.Context(ctx, "main topics summary key concepts "+s.state.DocumentTitle, 5),
		Transcript: transcript,
	})
	if err != nil {
		return Summary{}, err
	}
	res, err := s.gen.Generate(ctx, prompt, llm.TierPremium)
	if err != nil {
		return Summary{}, fmt.Errorf("final summary: %w", err)
	}

	text := strings.TrimSpace(res.Text)
	now := s.now()
	s.state.FinalEvaluation = text
	s.state.FinalScore = &score
	s.state.CompletedAt = &now
	s.recordModel(res.Model)

	return Summary{Text: text, Score: score, Model: res.Model}, nil
}

// UseLifeline spends a lifeline on the pending question. It returns false
// without changing anything when no lifeline is left, kind is unknown,
// another lifeline is pending, or the last question was already answered.
// A rephrase needs a question to rephrase.
func (s *Session) UseLifeline(kind model.LifelineKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case !kind.Valid(), s.state.LifelinesRemaining <= 0, s.state.AwaitingLifeline:
		return false
	case len(s.state.QuestionsAsked) > 0 && !s.state.pendingQuestion():
		return false
	case kind == model.LifelineRephrase && len(s.state.QuestionsAsked) == 0:
		return false
	}
	s.state.LifelinesRemaining--
	s.state.LifelinesUsed = append(s.state.LifelinesUsed, model.LifelineUse{
		QuestionIndex: s.state.CurrentQuestionIndex,
		Kind:          kind,
	})
	s.state.AwaitingLifeline = true
	s.state.PendingLifeline = kind
	return true
}

// Lifelines returns the remaining and total lifelines.
func (s *Session) Lifelines() (remaining, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.LifelinesRemaining, s.state.LifelinesTotal
}

// Progress returns the number of questions asked and the total.
func (s *Session) Progress() (current, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CurrentQuestionIndex, s.state.TotalQuestions
}

// PendingQuestion returns the question awaiting an answer, if any.
func (s *Session) PendingQuestion() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.pendingQuestion() {
		return "", false
	}
	return s.state.QuestionsAsked[len(s.state.QuestionsAsked)-1], true
}

// Snapshot returns a deep copy of the state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Reset destroys the index and returns the session to idle.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reset(ctx)
}

func (s *Session) reset(ctx context.Context) error {
	var err error
	if s.ix != nil {
		err = s.ix.Destroy(ctx)
	}
	s.ix = nil
	s.source = nil
	s.discarded = nil
	s.state = newState()
	return err
}

func (s *Session) recordModel(name string) {
	if name == "" {
		return
	}
	s.state.Models = append(s.state.Models, name)
	s.state.LastModel = name
}
