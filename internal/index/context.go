package index

import (
	"context"
	"log/slog"
	"strings"
)

// DefaultPrefixChars is the length of the full-text fallback context.
const DefaultPrefixChars = 3000

// ContextSource supplies document context for a prompt. It never fails:
// implementations degrade to a text prefix.
type ContextSource interface {
	Context(ctx context.Context, query string, k int) string
}

// PrefixSource returns the beginning of the document regardless of the query.
type PrefixSource struct {
	text string
}

func NewPrefixSource(text string) *PrefixSource {
	return &PrefixSource{text: prefix(text, DefaultPrefixChars)}
}

func (p *PrefixSource) Context(context.Context, string, int) string {
	if p == nil {
		return ""
	}
	return p.text
}

// IndexSource answers from an index and falls back to a PrefixSource when
// the index is missing, fails, or finds nothing.
type IndexSource struct {
	index    *Index
	fallback *PrefixSource
}

// NewIndexSource creates a source over ix. ix may be nil.
func NewIndexSource(ix *Index, text string) *IndexSource {
	return &IndexSource{index: ix, fallback: NewPrefixSource(text)}
}

func (s *IndexSource) Context(ctx context.Context, query string, k int) string {
	if s.index == nil {
		return s.fallback.Context(ctx, query, k)
	}
	texts, err := s.index.Query(ctx, query, k)
	if err != nil {
		slog.Warn("retrieval failed, using document prefix", "collection", s.index.Name(), "error", err)
		return s.fallback.Context(ctx, query, k)
	}
	if len(texts) == 0 {
		return s.fallback.Context(ctx, query, k)
	}
	return strings.Join(texts, "\n\n")
}

// prefix returns the first n characters of s.
func prefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
