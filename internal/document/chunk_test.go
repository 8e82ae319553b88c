package document

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(w, " ")
}

func TestChunkWordsCount(t *testing.T) {
	tests := []struct {
		words, size, overlap, want int
	}{
		{0, 500, 50, 0},
		{1, 500, 50, 1},
		{50, 500, 50, 1},
		{500, 500, 50, 1},
		{501, 500, 50, 2},
		{1000, 500, 50, 3},
		{2000, 500, 50, 5},
		{10, 3, 1, 5},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d/%d", tt.words, tt.size, tt.overlap), func(t *testing.T) {
			chunks, err := ChunkWords(words(tt.words), tt.size, tt.overlap)
			require.NoError(t, err)
			assert.Len(t, chunks, tt.want)
		})
	}
}

func TestChunkWordsOverlap(t *testing.T) {
	chunks, err := ChunkWords(words(10), 4, 2)
	require.NoError(t, err)
	require.Equal(t, []string{
		"w0 w1 w2 w3",
		"w2 w3 w4 w5",
		"w4 w5 w6 w7",
		"w6 w7 w8 w9",
	}, chunks)
}

func TestChunkWordsDeterministic(t *testing.T) {
	text := "  The  mitochondria\tis the\npowerhouse of the cell.  " + words(900)
	a, err := ChunkWords(text, 500, 50)
	require.NoError(t, err)
	b, err := ChunkWords(text, 500, 50)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a[0], "The mitochondria is the powerhouse"))
	for _, c := range a {
		assert.NotEmpty(t, c)
	}
}

func TestChunkWordsBadConfig(t *testing.T) {
	for _, c := range [][2]int{{50, 50}, {10, 20}, {0, 0}, {10, -1}} {
		_, err := ChunkWords("some text", c[0], c[1])
		assert.ErrorIs(t, err, ErrChunkConfig, "size=%d overlap=%d", c[0], c[1])
	}
}

func TestNewSplitter(t *testing.T) {
	s, err := NewSplitter("", 500, 50)
	require.NoError(t, err)
	assert.IsType(t, WordSplitter{}, s)

	s, err = NewSplitter("recursive", 20, 5)
	require.NoError(t, err)
	text := strings.Repeat("Cells divide by mitosis. Each daughter cell receives a copy of the genome.\n\n", 20)
	chunks, err := s.Split(text)
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(c))
	}

	_, err = NewSplitter("sentences", 500, 50)
	assert.ErrorIs(t, err, ErrChunkConfig)
	_, err = NewSplitter("words", 50, 50)
	assert.ErrorIs(t, err, ErrChunkConfig)
}
