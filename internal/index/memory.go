package index

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
)

var errNoEmbedding = errors.New("memory store expects precomputed embeddings")

// MemoryStore is an in-process vector store backed by chromem-go.
type MemoryStore struct {
	db *chromem.DB
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{db: chromem.NewDB()}
}

func noEmbed(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedding
}

func (s *MemoryStore) CreateCollection(_ context.Context, name string, _ int) error {
	if _, err := s.db.CreateCollection(name, nil, noEmbed); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

func (s *MemoryStore) DeleteCollection(_ context.Context, name string) error {
	return s.db.DeleteCollection(name)
}

func (s *MemoryStore) Add(ctx context.Context, name string, points []Point) error {
	c := s.db.GetCollection(name, noEmbed)
	if c == nil {
		return fmt.Errorf("collection %s does not exist", name)
	}
	docs := make([]chromem.Document, len(points))
	for i, p := range points {
		docs[i] = chromem.Document{
			ID:        p.ID,
			Content:   p.Text,
			Embedding: p.Vector,
			Metadata:  map[string]string{"chunk_index": strconv.Itoa(p.Index)},
		}
	}
	return c.AddDocuments(ctx, docs, runtime.NumCPU())
}

func (s *MemoryStore) Search(ctx context.Context, name string, vector []float32, k int) ([]Match, error) {
	c := s.db.GetCollection(name, noEmbed)
	if c == nil {
		return nil, fmt.Errorf("collection %s does not exist", name)
	}
	k = min(k, c.Count())
	if k <= 0 {
		return nil, nil
	}
	results, err := c.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, len(results))
	for i, r := range results {
		idx, _ := strconv.Atoi(r.Metadata["chunk_index"])
		matches[i] = Match{Index: idx, Text: r.Content, Score: r.Similarity}
	}
	return matches, nil
}
