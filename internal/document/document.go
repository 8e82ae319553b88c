// Package document turns PDF files into examinable text and splits that text
// into retrieval chunks.
package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrExtraction is returned when no usable text can be read from a document.
var ErrExtraction = errors.New("could not extract usable text from document")

const (
	// minPrimaryChars is the shortest primary-parser output accepted before
	// the secondary parser is tried.
	minPrimaryChars = 50
	// MinUsableChars is the shortest text an examination can be built on.
	MinUsableChars = 100
)

// Parsed is the raw output of a PDF parser.
type Parsed struct {
	Pages  []string
	Title  string
	Author string
}

// Parser reads page texts and metadata from a PDF file.
type Parser interface {
	Name() string
	Parse(path string) (Parsed, error)
}

// Document is an extracted document.
type Document struct {
	Path   string
	Title  string
	Author string
	Pages  int
	Text   string
}

// Words returns the whitespace-separated word count.
func (d Document) Words() int { return len(strings.Fields(d.Text)) }

// Characters returns the character count of the text.
func (d Document) Characters() int { return utf8.RuneCountInString(d.Text) }

// Extractor extracts text with a primary parser and a secondary fallback.
type Extractor struct {
	primary   Parser
	secondary Parser
}

// NewExtractor returns an extractor backed by ledongthuc/pdf with rsc.io/pdf
// as the fallback.
func NewExtractor() *Extractor {
	return &Extractor{primary: LedongthucParser{}, secondary: RSCParser{}}
}

// NewExtractorWith returns an extractor using the given parsers. secondary may be nil.
func NewExtractorWith(primary, secondary Parser) *Extractor {
	return &Extractor{primary: primary, secondary: secondary}
}

// Extract reads the document at path. The result is not validated; see Validate.
func (e *Extractor) Extract(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	parsed, err := e.primary.Parse(path)
	text := FormatPages(parsed.Pages)
	if err != nil || len(strings.TrimSpace(text)) < minPrimaryChars {
		if err != nil {
			slog.Warn("primary parser failed", "parser", e.primary.Name(), "path", path, "error", err)
		}
		if e.secondary == nil {
			if err != nil {
				return Document{}, fmt.Errorf("parse %s: %w: %v", filepath.Base(path), ErrExtraction, err)
			}
		} else {
			slog.Info("trying fallback parser", "parser", e.secondary.Name(), "primary_chars", len(strings.TrimSpace(text)))
			fallback, ferr := e.secondary.Parse(path)
			switch {
			case ferr != nil && err != nil:
				return Document{}, fmt.Errorf("parse %s: %w: %v", filepath.Base(path), ErrExtraction, ferr)
			case ferr != nil:
				slog.Warn("fallback parser failed", "parser", e.secondary.Name(), "error", ferr)
			default:
				if fallback.Title == "" {
					fallback.Title = parsed.Title
				}
				if fallback.Author == "" {
					fallback.Author = parsed.Author
				}
				parsed = fallback
				text = FormatPages(parsed.Pages)
			}
		}
	}

	doc := Document{
		Path:   path,
		Title:  strings.TrimSpace(parsed.Title),
		Author: strings.TrimSpace(parsed.Author),
		Pages:  len(parsed.Pages),
		Text:   text,
	}
	if doc.Title == "" {
		doc.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	slog.Debug("document extracted", "title", doc.Title, "pages", doc.Pages, "chars", doc.Characters())
	return doc, nil
}

// Validate reports whether the document carries enough text to examine.
func Validate(d Document) error {
	if n := utf8.RuneCountInString(strings.TrimSpace(d.Text)); n < MinUsableChars {
		return fmt.Errorf("%w: only %d characters found", ErrExtraction, n)
	}
	return nil
}

// FormatPages joins page texts into "--- Page N ---" blocks, skipping blank pages.
func FormatPages(pages []string) string {
	var blocks []string
	for i, p := range pages {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("--- Page %d ---\n%s", i+1, p))
	}
	return strings.Join(blocks, "\n\n")
}

// OptimalQuestions suggests a question count for a document of the given length.
func OptimalQuestions(pages int) int {
	switch {
	case pages <= 10:
		return 5
	case pages <= 50:
		return 10
	case pages <= 100:
		return 20
	case pages <= 500:
		return 50
	default:
		return 100
	}
}

// QuestionCount resolves a requested count against the document size and the
// configured maximum. Zero requests the optimal count.
func QuestionCount(requested, pages, max int) int {
	n := OptimalQuestions(pages)
	if requested > 0 && requested < n {
		n = requested
	}
	if n > max {
		n = max
	}
	if n < 1 {
		n = 1
	}
	return n
}
