// Package report renders an examination result as a PDF, HTML or JSON
// document.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/pavelanni/docexam/internal/model"
)

// ErrExport is returned when a result has nothing to report.
var ErrExport = errors.New("nothing to export")

// Format is a report output format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
	FormatJSON Format = "json"
)

// ParseFormat parses a format name; empty means PDF.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatPDF, nil
	case FormatPDF, FormatHTML, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatJSON:
		return "application/json"
	default:
		return "application/pdf"
	}
}

// Render renders res. Labels follow the localizer in ctx. It fails with
// ErrExport when no question was asked.
func Render(ctx context.Context, f Format, res model.SessionResult, now time.Time) ([]byte, error) {
	if len(res.Questions) == 0 {
		return nil, fmt.Errorf("%w: no questions were asked", ErrExport)
	}
	switch f {
	case FormatPDF:
		return renderPDF(ctx, res, now)
	case FormatHTML:
		return renderHTML(ctx, res, now)
	case FormatJSON:
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal result: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown report format %q", f)
	}
}

// Filename returns <slug>_<YYYYMMDD_HHMMSS>.<ext> for a report of title.
func Filename(title string, f Format, now time.Time) string {
	return fmt.Sprintf("%s_%s.%s", slug(title), now.Format("20060102_150405"), f)
}

// WriteTemp writes a rendered report into the temporary directory and
// returns its path.
func WriteTemp(title string, f Format, data []byte, now time.Time) (string, error) {
	path := filepath.Join(os.TempDir(), Filename(title, f, now))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

const maxSlugRunes = 50

func slug(title string) string {
	var b strings.Builder
	sep := false
	n := 0
	for _, r := range strings.ToLower(title) {
		if n >= maxSlugRunes {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if sep && b.Len() > 0 {
				b.WriteByte('_')
				n++
			}
			b.WriteRune(r)
			n++
			sep = false
			continue
		}
		sep = true
	}
	if b.Len() == 0 {
		return "examination"
	}
	return b.String()
}
