package document

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	lpdf "github.com/ledongthuc/pdf"
	rpdf "rsc.io/pdf"
)

// LedongthucParser extracts per-page plain text with github.com/ledongthuc/pdf.
type LedongthucParser struct{}

func (LedongthucParser) Name() string { return "ledongthuc" }

func (LedongthucParser) Parse(path string) (out Parsed, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, r, err := lpdf.Open(path)
	if err != nil {
		return Parsed{}, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	info := r.Trailer().Key("Info")
	out.Title = info.Key("Title").Text()
	out.Author = info.Key("Author").Text()

	fonts := make(map[string]*lpdf.Font)
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			out.Pages = append(out.Pages, "")
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := p.Font(name)
				fonts[name] = &font
			}
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return Parsed{}, fmt.Errorf("page %d: %w", i, err)
		}
		out.Pages = append(out.Pages, text)
	}
	return out, nil
}

// RSCParser extracts positioned text runs with rsc.io/pdf and reassembles
// them into lines.
type RSCParser struct{}

func (RSCParser) Name() string { return "rsc" }

func (RSCParser) Parse(path string) (out Parsed, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return Parsed{}, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return Parsed{}, fmt.Errorf("stat pdf: %w", err)
	}
	r, err := rpdf.NewReader(f, fi.Size())
	if err != nil {
		return Parsed{}, fmt.Errorf("read pdf: %w", err)
	}

	info := r.Trailer().Key("Info")
	out.Title = info.Key("Title").Text()
	out.Author = info.Key("Author").Text()

	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			out.Pages = append(out.Pages, "")
			continue
		}
		out.Pages = append(out.Pages, assembleLines(p.Content().Text))
	}
	return out, nil
}

// assembleLines orders glyph runs top to bottom, left to right, starting a
// new line when the baseline moves by more than half the font size.
func assembleLines(runs []rpdf.Text) string {
	if len(runs) == 0 {
		return ""
	}
	sorted := make([]rpdf.Text, len(runs))
	copy(sorted, runs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if math.Abs(sorted[i].Y-sorted[j].Y) > lineTolerance(sorted[i], sorted[j]) {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var b strings.Builder
	prev := sorted[0]
	b.WriteString(prev.S)
	for _, t := range sorted[1:] {
		switch {
		case math.Abs(t.Y-prev.Y) > lineTolerance(prev, t):
			b.WriteByte('\n')
		case t.X-(prev.X+prev.W) > 0.15*math.Max(t.FontSize, 1):
			b.WriteByte(' ')
		}
		b.WriteString(t.S)
		prev = t
	}
	return b.String()
}

func lineTolerance(a, b rpdf.Text) float64 {
	return 0.5 * math.Max(math.Max(a.FontSize, b.FontSize), 1)
}
