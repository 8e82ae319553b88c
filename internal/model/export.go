package model

import "time"

// ExamExport is the top-level JSON structure for result export.
type ExamExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	Count      int             `json:"count"`
	Results    []SessionResult `json:"results"`
}

// SessionResult is the reportable view of one examination.
type SessionResult struct {
	ID              string           `json:"id"`
	DocumentTitle   string           `json:"document_title"`
	DocumentType    DocumentType     `json:"document_type"`
	DocumentSummary string           `json:"document_summary,omitempty"`
	Pages           int              `json:"pages"`
	TotalQuestions  int              `json:"total_questions"`
	Questions       []QuestionResult `json:"questions"`
	Score           Score            `json:"score"`
	LifelinesTotal  int              `json:"lifelines_total"`
	Lifelines       []LifelineUse    `json:"lifelines"`
	FinalEvaluation string           `json:"final_evaluation,omitempty"`
	Models          []string         `json:"models,omitempty"`
	StartedAt       time.Time        `json:"started_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

// QuestionResult holds one question with its answer and evaluation, if any.
type QuestionResult struct {
	Number     int    `json:"number"`
	FocusArea  string `json:"focus_area,omitempty"`
	Question   string `json:"question"`
	Answer     string `json:"answer,omitempty"`
	Evaluation string `json:"evaluation,omitempty"`
	Mark       *int   `json:"mark,omitempty"`
}

// Answered reports whether the question received an answer.
func (q QuestionResult) Answered() bool { return q.Mark != nil }

// SessionSummary is one row of the persisted history listing.
type SessionSummary struct {
	ID             string       `json:"id"`
	DocumentTitle  string       `json:"document_title"`
	DocumentType   DocumentType `json:"document_type"`
	TotalQuestions int          `json:"total_questions"`
	Percentage     float64      `json:"percentage"`
	Status         Status       `json:"status"`
	StartedAt      time.Time    `json:"started_at"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
}
