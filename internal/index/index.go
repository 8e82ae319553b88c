// Package index stores document chunks in a vector collection and retrieves
// the chunks closest to a query.
package index

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
)

// ErrNoIndex is returned when querying an index that was never built.
var ErrNoIndex = errors.New("no index built")

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Point is one stored chunk.
type Point struct {
	ID     string
	Index  int
	Text   string
	Vector []float32
}

// Match is one search hit.
type Match struct {
	Index int
	Text  string
	Score float32
}

// VectorStore is a vector database holding named collections.
type VectorStore interface {
	CreateCollection(ctx context.Context, name string, dim int) error
	// DeleteCollection removes name. Deleting a missing collection is not an error.
	DeleteCollection(ctx context.Context, name string) error
	Add(ctx context.Context, name string, points []Point) error
	// Search returns up to k matches, best first.
	Search(ctx context.Context, name string, vector []float32, k int) ([]Match, error)
}

// CollectionName derives a stable collection name from a document title.
func CollectionName(title string) string {
	sum := md5.Sum([]byte(title))
	return "doc_" + hex.EncodeToString(sum[:])[:8]
}

// Index is a built, read-only chunk collection.
type Index struct {
	name     string
	store    VectorStore
	embedder Embedder
	count    int
}

// Build embeds chunks and stores them in a fresh collection named after
// title, replacing any collection of the same name.
func Build(ctx context.Context, store VectorStore, embedder Embedder, title string, chunks []string) (*Index, error) {
	if len(chunks) == 0 {
		return nil, errors.New("build index: no chunks")
	}
	name := CollectionName(title)

	if err := store.DeleteCollection(ctx, name); err != nil {
		return nil, fmt.Errorf("delete previous collection %s: %w", name, err)
	}

	vectors, err := embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	if err := store.CreateCollection(ctx, name, len(vectors[0])); err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}

	points := make([]Point, len(chunks))
	for i, c := range chunks {
		points[i] = Point{
			ID:     uuid.NewSHA1(uuid.NameSpaceOID, []byte(name+"/"+strconv.Itoa(i))).String(),
			Index:  i,
			Text:   c,
			Vector: vectors[i],
		}
	}
	if err := store.Add(ctx, name, points); err != nil {
		if derr := store.DeleteCollection(ctx, name); derr != nil {
			slog.Warn("cleanup after failed add", "collection", name, "error", derr)
		}
		return nil, fmt.Errorf("add chunks to %s: %w", name, err)
	}

	slog.Info("index built", "collection", name, "chunks", len(chunks), "dim", len(vectors[0]))
	return &Index{name: name, store: store, embedder: embedder, count: len(chunks)}, nil
}

// Name returns the collection name.
func (ix *Index) Name() string { return ix.name }

// Len returns the number of stored chunks.
func (ix *Index) Len() int { return ix.count }

// Query returns the texts of the k chunks nearest to text, best first.
// k is clamped to [1, Len()].
func (ix *Index) Query(ctx context.Context, text string, k int) ([]string, error) {
	if ix == nil || ix.count == 0 {
		return nil, ErrNoIndex
	}
	k = max(1, min(k, ix.count))

	vectors, err := ix.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vectors))
	}

	matches, err := ix.store.Search(ctx, ix.name, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", ix.name, err)
	}
	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		texts = append(texts, m.Text)
	}
	return texts, nil
}

// Destroy deletes the collection. The index must not be used afterwards.
func (ix *Index) Destroy(ctx context.Context) error {
	if ix == nil {
		return nil
	}
	if err := ix.store.DeleteCollection(ctx, ix.name); err != nil {
		return fmt.Errorf("delete collection %s: %w", ix.name, err)
	}
	ix.count = 0
	slog.Debug("index destroyed", "collection", ix.name)
	return nil
}
