package document

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	rpdf "rsc.io/pdf"
)

type fakeParser struct {
	name   string
	out    Parsed
	err    error
	called int
}

func (p *fakeParser) Name() string { return p.name }

func (p *fakeParser) Parse(string) (Parsed, error) {
	p.called++
	return p.out, p.err
}

var longPage = strings.Repeat("Photosynthesis converts light energy into chemical energy. ", 4)

func TestExtractPrimary(t *testing.T) {
	primary := &fakeParser{name: "primary", out: Parsed{Pages: []string{longPage, "", "Second page text"}, Title: "Plants", Author: "Ada"}}
	secondary := &fakeParser{name: "secondary"}
	doc, err := NewExtractorWith(primary, secondary).Extract(context.Background(), "/tmp/plants.pdf")
	require.NoError(t, err)

	assert.Equal(t, 0, secondary.called)
	assert.Equal(t, "Plants", doc.Title)
	assert.Equal(t, "Ada", doc.Author)
	assert.Equal(t, 3, doc.Pages)
	assert.True(t, strings.HasPrefix(doc.Text, "--- Page 1 ---\n"))
	assert.Contains(t, doc.Text, "\n\n--- Page 3 ---\nSecond page text")
	assert.NotContains(t, doc.Text, "--- Page 2 ---")
}

func TestExtractFallsBackOnShortText(t *testing.T) {
	primary := &fakeParser{name: "primary", out: Parsed{Pages: []string{"  tiny  "}, Title: "From Info"}}
	secondary := &fakeParser{name: "secondary", out: Parsed{Pages: []string{longPage}}}
	doc, err := NewExtractorWith(primary, secondary).Extract(context.Background(), "/tmp/x.pdf")
	require.NoError(t, err)
	assert.Equal(t, 1, secondary.called)
	assert.Contains(t, doc.Text, "Photosynthesis")
	assert.Equal(t, "From Info", doc.Title)
}

func TestExtractFallsBackOnError(t *testing.T) {
	primary := &fakeParser{name: "primary", err: errors.New("bad xref")}
	secondary := &fakeParser{name: "secondary", out: Parsed{Pages: []string{longPage}}}
	doc, err := NewExtractorWith(primary, secondary).Extract(context.Background(), "/data/lecture-notes.pdf")
	require.NoError(t, err)
	assert.Equal(t, "lecture-notes", doc.Title)
	require.NoError(t, Validate(doc))
}

func TestExtractBothFail(t *testing.T) {
	primary := &fakeParser{name: "primary", err: errors.New("bad xref")}
	secondary := &fakeParser{name: "secondary", err: errors.New("also bad")}
	_, err := NewExtractorWith(primary, secondary).Extract(context.Background(), "/tmp/x.pdf")
	assert.ErrorIs(t, err, ErrExtraction)
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Validate(Document{Text: "   short   "}), ErrExtraction)
	assert.ErrorIs(t, Validate(Document{Text: strings.Repeat("a", 99)}), ErrExtraction)
	assert.NoError(t, Validate(Document{Text: strings.Repeat("a", 100)}))
}

func TestOptimalQuestions(t *testing.T) {
	tests := []struct{ pages, want int }{
		{1, 5}, {10, 5}, {11, 10}, {50, 10}, {51, 20}, {100, 20}, {101, 50}, {500, 50}, {501, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OptimalQuestions(tt.pages), "pages=%d", tt.pages)
	}
}

func TestQuestionCount(t *testing.T) {
	assert.Equal(t, 5, QuestionCount(0, 3, 100))
	assert.Equal(t, 3, QuestionCount(3, 3, 100))
	assert.Equal(t, 5, QuestionCount(40, 3, 100))
	assert.Equal(t, 8, QuestionCount(0, 300, 8))
	assert.Equal(t, 1, QuestionCount(0, 3, 0))
}

func TestAssembleLines(t *testing.T) {
	runs := []rpdf.Text{
		{S: "world", X: 40, Y: 700, W: 25, FontSize: 12},
		{S: "Hello", X: 10, Y: 700, W: 25, FontSize: 12},
		{S: "Next", X: 10, Y: 680, W: 20, FontSize: 12},
		{S: "line", X: 30, Y: 680.2, W: 20, FontSize: 12},
	}
	assert.Equal(t, "Hello world\nNextline", assembleLines(runs))
	assert.Equal(t, "", assembleLines(nil))
}

func writePDF(t *testing.T, pages ...string) string {
	t.Helper()
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(false)
	pdf.SetTitle("Cell Biology Notes", false)
	pdf.SetAuthor("A. Tester", false)
	for _, p := range pages {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "", 12)
		pdf.MultiCell(0, 6, p, "", "L", false)
	}
	path := filepath.Join(t.TempDir(), "notes.pdf")
	require.NoError(t, pdf.OutputFileAndClose(path))
	return path
}

func TestExtractRealPDF(t *testing.T) {
	path := writePDF(t, longPage, "Chlorophyll absorbs mostly blue and red light. "+longPage)
	doc, err := NewExtractor().Extract(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, Validate(doc))
	assert.Equal(t, 2, doc.Pages)
	assert.Contains(t, doc.Text, "--- Page 2 ---")
	assert.Contains(t, doc.Text, "Photosynthesis")
	assert.Greater(t, doc.Words(), 20)
}

func TestExtractMissingFile(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), filepath.Join(t.TempDir(), "absent.pdf"))
	assert.ErrorIs(t, err, ErrExtraction)
}
