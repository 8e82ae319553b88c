package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.tmpl
var builtin embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// maxAnswerRunes bounds the answer text forwarded to the model.
const maxAnswerRunes = 10000

// PromptVariant represents a grading prompt variant.
type PromptVariant string

const (
	// PromptStrict grades rigorously.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default grading variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient rewards the main idea.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

var requiredTemplates = []string{
	"persona.tmpl",
	"analyze.tmpl",
	"focus_areas.tmpl",
	"question.tmpl",
	"rephrase.tmpl",
	"evaluate_strict.tmpl",
	"evaluate_standard.tmpl",
	"evaluate_lenient.tmpl",
	"summary.tmpl",
}

var (
	loadOnce  sync.Once
	loadErr   error
	templates *template.Template
)

// Load parses the prompt templates under templates/ in fsys. Only the first
// call has an effect; later builds use the built-in set when Load was never
// called.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		t, err := template.New("prompts").
			Funcs(template.FuncMap{"join": strings.Join}).
			ParseFS(fsys, "templates/*.tmpl")
		if err != nil {
			loadErr = fmt.Errorf("parse prompt templates: %w", err)
			return
		}
		for _, name := range requiredTemplates {
			if t.Lookup(name) == nil {
				loadErr = errors.New("missing prompt template " + name)
				return
			}
		}
		templates = t
	})
	return loadErr
}

func execute(name string, data any) (string, error) {
	if err := Load(builtin); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Persona returns the examiner system prompt.
func Persona() (string, error) {
	return execute("persona.tmpl", nil)
}

// AnalyzeData holds template data for the classification prompt.
type AnalyzeData struct {
	Title   string
	Context string
	Types   []string
}

func BuildAnalyze(d AnalyzeData) (string, error) {
	return execute("analyze.tmpl", d)
}

// FocusData holds template data for the focus-area prompt.
type FocusData struct {
	DocType string
	Context string
}

func BuildFocusAreas(d FocusData) (string, error) {
	return execute("focus_areas.tmpl", d)
}

// QuestionData holds template data for question generation. Avoid lists
// questions the model must not repeat.
type QuestionData struct {
	Number    int
	Total     int
	DocType   string
	Title     string
	FocusArea string
	Context   string
	Avoid     []string
}

func BuildQuestion(d QuestionData) (string, error) {
	return execute("question.tmpl", d)
}

// RephraseData holds template data for the rephrase lifeline.
type RephraseData struct {
	Question string
	Context  string
}

func BuildRephrase(d RephraseData) (string, error) {
	return execute("rephrase.tmpl", d)
}

// EvaluateData holds template data for answer evaluation.
type EvaluateData struct {
	Question string
	Answer   string
	Context  string
}

// BuildEvaluate builds an evaluation prompt using the specified variant.
// The answer is sanitized before it is embedded.
func BuildEvaluate(variant PromptVariant, d EvaluateData) (string, error) {
	if variant == "" {
		variant = PromptStandard
	}
	if !validVariants[variant] {
		return "", errors.New("invalid prompt variant: " + string(variant))
	}
	d.Answer = sanitizeAnswer(d.Answer)
	return execute("evaluate_"+string(variant)+".tmpl", d)
}

// TranscriptEntry is one answered question in the final summary prompt.
type TranscriptEntry struct {
	Number     int
	Question   string
	Answer     string
	Evaluation string
}

// SummaryData holds template data for the final summary.
type SummaryData struct {
	Title      string
	TotalMarks int
	MaxMarks   int
	Percentage float64
	Status     string
	Overview   string
	Transcript []TranscriptEntry
}

func BuildSummary(d SummaryData) (string, error) {
	entries := make([]TranscriptEntry, len(d.Transcript))
	for i, e := range d.Transcript {
		e.Answer = sanitizeAnswer(e.Answer)
		entries[i] = e
	}
	d.Transcript = entries
	return execute("summary.tmpl", d)
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		runes = runes[:maxAnswerRunes]
		answer = string(runes) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
