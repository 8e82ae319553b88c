package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DocumentType is the examiner's classification of an uploaded document.
type DocumentType string

const (
	DocResearchPaper   DocumentType = "research_paper"
	DocThesis          DocumentType = "thesis"
	DocProposal        DocumentType = "proposal"
	DocBookChapter     DocumentType = "book_chapter"
	DocBook            DocumentType = "book"
	DocTechnicalReport DocumentType = "technical_report"
	DocEssay           DocumentType = "essay"
	DocCaseStudy       DocumentType = "case_study"
	DocReviewArticle   DocumentType = "review_article"
	DocTutorial        DocumentType = "tutorial"
	DocTopic           DocumentType = "topic"
	DocGeneral         DocumentType = "general"
)

// DocumentTypes lists the classification vocabulary in prompt order.
var DocumentTypes = []DocumentType{
	DocResearchPaper, DocThesis, DocProposal, DocBookChapter, DocBook,
	DocTechnicalReport, DocEssay, DocCaseStudy, DocReviewArticle,
	DocTutorial, DocTopic, DocGeneral,
}

// ParseDocumentType normalizes s and reports whether it belongs to the vocabulary.
func ParseDocumentType(s string) (DocumentType, bool) {
	t := DocumentType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range DocumentTypes {
		if t == known {
			return t, true
		}
	}
	return DocGeneral, false
}

// Title renders the type for display, e.g. "Research Paper".
func (t DocumentType) Title() string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(t), "_", " "))
}

// LifelineKind names a lifeline.
type LifelineKind string

const (
	LifelineNone     LifelineKind = ""
	LifelineRephrase LifelineKind = "rephrase"
	LifelineNew      LifelineKind = "new"
)

// Valid reports whether k is a usable lifeline kind.
func (k LifelineKind) Valid() bool {
	return k == LifelineRephrase || k == LifelineNew
}

// LifelineUse records one spent lifeline.
type LifelineUse struct {
	QuestionIndex int          `json:"question_index"`
	Kind          LifelineKind `json:"kind"`
}

// Status is the pass/fail verdict of a scored exam.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
)

// PassPercentage is the lowest percentage that still passes.
const PassPercentage = 50.0

// Score aggregates per-question marks.
type Score struct {
	TotalMarks int     `json:"total_marks"`
	MaxMarks   int     `json:"max_marks"`
	Percentage float64 `json:"percentage"`
	Status     Status  `json:"status"`
}

// ComputeScore scores marks out of 10 each.
func ComputeScore(marks []int) Score {
	s := Score{MaxMarks: len(marks) * 10, Status: StatusFail}
	for _, m := range marks {
		s.TotalMarks += m
	}
	if s.MaxMarks > 0 {
		s.Percentage = float64(s.TotalMarks) * 100 / float64(s.MaxMarks)
	}
	if s.Percentage >= PassPercentage {
		s.Status = StatusPass
	}
	return s
}

// DocumentInfo is the metadata shown alongside a loaded document.
type DocumentInfo struct {
	Title      string `json:"title"`
	Author     string `json:"author,omitempty"`
	Pages      int    `json:"pages"`
	Words      int    `json:"words"`
	Characters int    `json:"characters"`
	Chunks     int    `json:"chunks"`
}
