package report

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/pavelanni/docexam/internal/i18n"
	"github.com/pavelanni/docexam/internal/model"
)

const (
	pdfFont       = "Helvetica"
	pdfLabelWidth = 50.0
	pdfLine       = 6.0
)

// renderPDF draws the report with the core fonts. Text is translated to
// cp1252, so scripts outside it print as replacement characters.
func renderPDF(ctx context.Context, res model.SessionResult, now time.Time) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(res.DocumentTitle, true)
	pdf.SetCreator("docexam", false)
	pdf.SetCreationDate(now)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(pdfFont, "I", 8)
		pdf.SetTextColor(128, 128, 128)
		footer := i18n.Td(ctx, "ReportGenerated", map[string]any{"Date": now.Format("2006-01-02 15:04")}) +
			"  |  " + i18n.Td(ctx, "ReportPageN", map[string]any{"Page": pdf.PageNo()})
		pdf.CellFormat(0, 10, tr(footer), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont(pdfFont, "B", 18)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 12, tr(i18n.T(ctx, "ReportTitle")), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	table := func(rows [][2]string) {
		for _, row := range rows {
			pdf.SetFont(pdfFont, "B", 10)
			pdf.SetFillColor(235, 240, 250)
			pdf.CellFormat(pdfLabelWidth, 8, tr(row[0]), "1", 0, "L", true, 0, "")
			pdf.SetFont(pdfFont, "", 10)
			pdf.CellFormat(0, 8, tr(row[1]), "1", 1, "L", false, 0, "")
		}
		pdf.Ln(6)
	}

	info := [][2]string{
		{i18n.T(ctx, "ReportDocument"), res.DocumentTitle},
		{i18n.T(ctx, "ReportType"), res.DocumentType.Title()},
		{i18n.T(ctx, "ReportPages"), strconv.Itoa(res.Pages)},
		{i18n.T(ctx, "ReportQuestions"), fmt.Sprintf("%d / %d", len(res.Questions), res.TotalQuestions)},
		{i18n.T(ctx, "ReportLifelines"), fmt.Sprintf("%d / %d", len(res.Lifelines), res.LifelinesTotal)},
	}
	if !res.StartedAt.IsZero() {
		info = append(info, [2]string{i18n.T(ctx, "ReportStarted"), res.StartedAt.Format("2006-01-02 15:04")})
	}
	if res.CompletedAt != nil {
		info = append(info, [2]string{i18n.T(ctx, "ReportCompleted"), res.CompletedAt.Format("2006-01-02 15:04")})
	}
	table(info)

	if res.DocumentSummary != "" {
		heading(pdf, tr, i18n.T(ctx, "ReportSummary"))
		pdf.SetFont(pdfFont, "", 10)
		pdf.MultiCell(0, pdfLine, tr(plain(res.DocumentSummary)), "", "L", false)
		pdf.Ln(4)
	}

	heading(pdf, tr, i18n.T(ctx, "ReportScore"))
	table([][2]string{
		{i18n.T(ctx, "ReportTotalMarks"), fmt.Sprintf("%d / %d", res.Score.TotalMarks, res.Score.MaxMarks)},
		{i18n.T(ctx, "ReportPercentage"), fmt.Sprintf("%.1f%%", res.Score.Percentage)},
		{i18n.T(ctx, "ReportStatus"), statusLabel(ctx, res.Score.Status)},
	})

	for _, q := range res.Questions {
		heading(pdf, tr, i18n.Td(ctx, "ReportQuestionN", map[string]any{"Number": q.Number}))
		if q.FocusArea != "" {
			pdf.SetFont(pdfFont, "I", 9)
			pdf.SetTextColor(90, 90, 90)
			pdf.MultiCell(0, 5, tr(i18n.T(ctx, "ReportFocusArea")+": "+q.FocusArea), "", "L", false)
			pdf.SetTextColor(0, 0, 0)
		}
		pdf.SetFont(pdfFont, "B", 10)
		pdf.MultiCell(0, pdfLine, tr(q.Question), "", "L", false)
		pdf.Ln(2)

		labeled(pdf, tr, i18n.T(ctx, "ReportAnswer"), answerText(ctx, q))
		if q.Answered() {
			labeled(pdf, tr, i18n.T(ctx, "ReportEvaluation"), plain(q.Evaluation))
			pdf.SetFont(pdfFont, "B", 10)
			pdf.CellFormat(0, pdfLine, tr(fmt.Sprintf("%s: %d/10", i18n.T(ctx, "ReportMark"), *q.Mark)), "", 1, "R", false, 0, "")
		}
		pdf.Ln(4)
	}

	if res.FinalEvaluation != "" {
		pdf.AddPage()
		heading(pdf, tr, i18n.T(ctx, "ReportFinalEvaluation"))
		pdf.SetFont(pdfFont, "", 10)
		pdf.MultiCell(0, pdfLine, tr(plain(res.FinalEvaluation)), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func heading(pdf *fpdf.Fpdf, tr func(string) string, text string) {
	pdf.SetFont(pdfFont, "B", 13)
	pdf.SetTextColor(30, 60, 120)
	pdf.CellFormat(0, 9, tr(text), "B", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(2)
}

func labeled(pdf *fpdf.Fpdf, tr func(string) string, label, text string) {
	pdf.SetFont(pdfFont, "B", 10)
	pdf.CellFormat(0, pdfLine, tr(label+":"), "", 1, "L", false, 0, "")
	pdf.SetFont(pdfFont, "", 10)
	pdf.MultiCell(0, pdfLine, tr(text), "", "L", false)
	pdf.Ln(1)
}

// plain drops markdown emphasis markers the core fonts cannot render.
func plain(s string) string {
	return strings.ReplaceAll(s, "**", "")
}

func answerText(ctx context.Context, q model.QuestionResult) string {
	if !q.Answered() || strings.TrimSpace(q.Answer) == "" {
		return i18n.T(ctx, "ReportNotAnswered")
	}
	return q.Answer
}

func statusLabel(ctx context.Context, s model.Status) string {
	if s == "" {
		return ""
	}
	return i18n.T(ctx, "Status"+string(s))
}
