package exam

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pavelanni/docexam/internal/model"
)

var (
	typeRe      = regexp.MustCompile(`(?i)\*\*Type:\*\*\s*\[?(\w+)`)
	summaryRe   = regexp.MustCompile(`(?i)\*\*Summary:\*\*\s*(.+)`)
	focusLineRe = regexp.MustCompile(`^\s*\d+[.)]\s*(.+)$`)
	marksRe     = regexp.MustCompile(`(?i)\*\*\s*Marks:\s*(\d+)\s*/\s*10\s*\*\*`)
	looseMarkRe = regexp.MustCompile(`(\d+)\s*/\s*10\b`)
)

const defaultMark = 5

// parseAnalysis extracts the document type and summary from a
// classification response. Unknown or missing types become general.
func parseAnalysis(text string) (model.DocumentType, string) {
	docType := model.DocGeneral
	if m := typeRe.FindStringSubmatch(text); m != nil {
		docType, _ = model.ParseDocumentType(m[1])
	}

	var summary string
	if m := summaryRe.FindStringSubmatch(text); m != nil {
		summary = strings.Trim(strings.TrimSpace(m[1]), "[]")
	} else {
		summary = strings.TrimSpace(typeRe.ReplaceAllString(text, ""))
		summary = strings.TrimSpace(strings.TrimPrefix(summary, "**"))
	}
	return docType, summary
}

// parseFocusAreas returns the numbered lines of a focus-area response.
func parseFocusAreas(text string) []string {
	var areas []string
	for _, line := range strings.Split(text, "\n") {
		m := focusLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if area := strings.Trim(strings.TrimSpace(m[1]), "*[] "); area != "" {
			areas = append(areas, area)
		}
	}
	return areas
}

// parseMark reads the X of "X/10", preferring the bold marks line, and
// clamps it to 10.
func parseMark(text string) (int, bool) {
	m := marksRe.FindStringSubmatch(text)
	if m == nil {
		m = looseMarkRe.FindStringSubmatch(text)
	}
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return min(n, 10), true
}
