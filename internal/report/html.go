package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/pavelanni/docexam/internal/i18n"
	"github.com/pavelanni/docexam/internal/model"
)

const reportCSS = `body{font-family:system-ui,sans-serif;max-width:52rem;margin:2rem auto;color:#222;line-height:1.5}
h1{text-align:center}h2{color:#1e3c78;border-bottom:1px solid #ccd;padding-bottom:.2rem}
table{border-collapse:collapse;margin-bottom:1.5rem}td,th{border:1px solid #ccd;padding:.3rem .6rem;text-align:left}
th{background:#ebf0fa}.pass{color:#1a7f37;font-weight:bold}.fail{color:#b42318;font-weight:bold}
.question{margin-bottom:1.5rem;padding:1rem;border:1px solid #e3e6ee;border-radius:6px}
.focus{color:#666;font-style:italic}.mark{text-align:right;font-weight:bold}footer{color:#888;font-size:.8rem;text-align:center}`

func renderHTML(ctx context.Context, res model.SessionResult, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	if err := reportPage(res, now).Render(ctx, &buf); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), nil
}

// reportPage composes the report from its sections.
func reportPage(res model.SessionResult, now time.Time) templ.Component {
	sections := []templ.Component{infoTable(res)}
	if res.DocumentSummary != "" {
		sections = append(sections, textSection("ReportSummary", "summary", res.DocumentSummary))
	}
	sections = append(sections, scoreTable(res.Score))
	for _, q := range res.Questions {
		sections = append(sections, questionBlock(q))
	}
	if res.FinalEvaluation != "" {
		sections = append(sections, textSection("ReportFinalEvaluation", "final", res.FinalEvaluation))
	}
	sections = append(sections, reportFooter(now))
	return layout(res.DocumentTitle, templ.Join(sections...))
}

func layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &htmlWriter{w: w}
		p.raw(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>`)
		p.text(i18n.T(ctx, "ReportTitle") + ": " + title)
		p.raw(`</title><style>` + reportCSS + `</style></head><body><h1>`)
		p.text(i18n.T(ctx, "ReportTitle"))
		p.raw(`</h1>`)
		if p.err != nil {
			return p.err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		p.raw(`</body></html>`)
		return p.err
	})
}

func infoTable(res model.SessionResult) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &htmlWriter{w: w}
		p.raw(`<table class="info">`)
		p.row(i18n.T(ctx, "ReportDocument"), res.DocumentTitle)
		p.row(i18n.T(ctx, "ReportType"), res.DocumentType.Title())
		p.row(i18n.T(ctx, "ReportPages"), strconv.Itoa(res.Pages))
		p.row(i18n.T(ctx, "ReportQuestions"), fmt.Sprintf("%d / %d", len(res.Questions), res.TotalQuestions))
		p.row(i18n.T(ctx, "ReportLifelines"), fmt.Sprintf("%d / %d", len(res.Lifelines), res.LifelinesTotal))
		if !res.StartedAt.IsZero() {
			p.row(i18n.T(ctx, "ReportStarted"), res.StartedAt.Format("2006-01-02 15:04"))
		}
		if res.CompletedAt != nil {
			p.row(i18n.T(ctx, "ReportCompleted"), res.CompletedAt.Format("2006-01-02 15:04"))
		}
		if len(res.Models) > 0 {
			p.row(i18n.T(ctx, "ReportModels"), strings.Join(uniq(res.Models), ", "))
		}
		p.raw(`</table>`)
		return p.err
	})
}

// textSection renders model-written text under a localized heading.
func textSection(headingID, class, body string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &htmlWriter{w: w}
		p.raw(`<h2>`)
		p.text(i18n.T(ctx, headingID))
		p.raw(`</h2><div class="` + class + `">`)
		p.markdown(body)
		p.raw(`</div>`)
		return p.err
	})
}

func scoreTable(score model.Score) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &htmlWriter{w: w}
		p.raw(`<h2>`)
		p.text(i18n.T(ctx, "ReportScore"))
		p.raw(`</h2><table class="score">`)
		p.row(i18n.T(ctx, "ReportTotalMarks"), fmt.Sprintf("%d / %d", score.TotalMarks, score.MaxMarks))
		p.row(i18n.T(ctx, "ReportPercentage"), fmt.Sprintf("%.1f%%", score.Percentage))
		p.raw(`<tr><th>`)
		p.text(i18n.T(ctx, "ReportStatus"))
		p.raw(`</th><td class="` + strings.ToLower(string(score.Status)) + `">`)
		p.text(statusLabel(ctx, score.Status))
		p.raw(`</td></tr></table>`)
		return p.err
	})
}

func questionBlock(q model.QuestionResult) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &htmlWriter{w: w}
		p.raw(`<div class="question"><h2>`)
		p.text(i18n.Td(ctx, "ReportQuestionN", map[string]any{"Number": q.Number}))
		p.raw(`</h2>`)
		if q.FocusArea != "" {
			p.raw(`<p class="focus">`)
			p.text(i18n.T(ctx, "ReportFocusArea") + ": " + q.FocusArea)
			p.raw(`</p>`)
		}
		p.raw(`<p><strong>`)
		p.text(q.Question)
		p.raw(`</strong></p><h3>`)
		p.text(i18n.T(ctx, "ReportAnswer"))
		p.raw(`</h3><p class="answer">`)
		p.text(answerText(ctx, q))
		p.raw(`</p>`)
		if q.Answered() {
			p.raw(`<h3>`)
			p.text(i18n.T(ctx, "ReportEvaluation"))
			p.raw(`</h3><p class="evaluation">`)
			p.markdown(q.Evaluation)
			p.raw(`</p><p class="mark">`)
			p.text(fmt.Sprintf("%s: %d/10", i18n.T(ctx, "ReportMark"), *q.Mark))
			p.raw(`</p>`)
		}
		p.raw(`</div>`)
		return p.err
	})
}

func reportFooter(now time.Time) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &htmlWriter{w: w}
		p.raw(`<footer>`)
		p.text(i18n.Td(ctx, "ReportGenerated", map[string]any{"Date": now.Format("2006-01-02 15:04")}))
		p.raw(`</footer>`)
		return p.err
	})
}

// htmlWriter keeps the first write error so a section reads top to bottom.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (p *htmlWriter) raw(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, s)
}

func (p *htmlWriter) text(s string) {
	p.raw(templ.EscapeString(s))
}

func (p *htmlWriter) row(label, value string) {
	p.raw(`<tr><th>`)
	p.text(label)
	p.raw(`</th><td>`)
	p.text(value)
	p.raw(`</td></tr>`)
}

var boldRe = regexp.MustCompile(`\*\*(.+?)\*\*`)

// markdown renders the bold markers and line breaks models use.
func (p *htmlWriter) markdown(s string) {
	escaped := templ.EscapeString(strings.TrimSpace(s))
	escaped = boldRe.ReplaceAllString(escaped, "<strong>$1</strong>")
	p.raw(strings.ReplaceAll(escaped, "\n", "<br>\n"))
}

func uniq(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, it := range items {
		if !seen[it] {
			seen[it] = true
			out = append(out, it)
		}
	}
	return out
}
