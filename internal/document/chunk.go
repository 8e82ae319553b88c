package document

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// ErrChunkConfig is returned for a window that does not advance.
var ErrChunkConfig = errors.New("invalid chunk configuration")

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50

	// charsPerWord converts word-based sizes for the character splitter.
	charsPerWord = 6
)

// Splitter splits document text into retrieval chunks.
type Splitter interface {
	Split(text string) ([]string, error)
}

// NewSplitter returns the splitter for strategy "words" (the default) or
// "recursive". Sizes are in words for both.
func NewSplitter(strategy string, size, overlap int) (Splitter, error) {
	if err := checkWindow(size, overlap); err != nil {
		return nil, err
	}
	switch strategy {
	case "", "words":
		return WordSplitter{Size: size, Overlap: overlap}, nil
	case "recursive":
		return RecursiveSplitter{Size: size, Overlap: overlap}, nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrChunkConfig, strategy)
	}
}

// WordSplitter produces overlapping fixed-size word windows.
type WordSplitter struct {
	Size    int
	Overlap int
}

func (s WordSplitter) Split(text string) ([]string, error) {
	return ChunkWords(text, s.Size, s.Overlap)
}

// ChunkWords splits text into windows of size words advancing by
// size-overlap words. The last window ends at the final word.
func ChunkWords(text string, size, overlap int) ([]string, error) {
	if err := checkWindow(size, overlap); err != nil {
		return nil, err
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	stride := size - overlap
	var chunks []string
	for start := 0; ; start += stride {
		end := min(start+size, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks, nil
}

// RecursiveSplitter splits on paragraph, line and word boundaries using
// langchaingo, approximating word sizes in characters.
type RecursiveSplitter struct {
	Size    int
	Overlap int
}

func (s RecursiveSplitter) Split(text string) ([]string, error) {
	if err := checkWindow(s.Size, s.Overlap); err != nil {
		return nil, err
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.Size*charsPerWord),
		textsplitter.WithChunkOverlap(s.Overlap*charsPerWord),
	)
	parts, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}
	chunks := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks, nil
}

func checkWindow(size, overlap int) error {
	if size <= 0 || overlap < 0 || size <= overlap {
		return fmt.Errorf("%w: size %d, overlap %d", ErrChunkConfig, size, overlap)
	}
	return nil
}
