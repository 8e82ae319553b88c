package index

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantStore keeps collections in a Qdrant server over gRPC.
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore connects to the Qdrant gRPC endpoint at host:port.
func NewQdrantStore(host string, port int, apiKey string) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant: %w", err)
	}
	return &QdrantStore{client: client}, nil
}

func (s *QdrantStore) Close() error { return s.client.Close() }

func (s *QdrantStore) CreateCollection(ctx context.Context, name string, dim int) error {
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if !exists {
		return nil
	}
	return s.client.DeleteCollection(ctx, name)
}

func (s *QdrantStore) Add(ctx context.Context, name string, points []Point) error {
	wait := true
	structs := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		structs[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"text":        p.Text,
				"chunk_index": int64(p.Index),
			}),
		}
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           &wait,
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, name string, vector []float32, k int) ([]Match, error) {
	limit := uint64(k)
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	matches := make([]Match, 0, len(hits))
	for _, hit := range hits {
		payload := hit.GetPayload()
		matches = append(matches, Match{
			Index: int(payload["chunk_index"].GetIntegerValue()),
			Text:  payload["text"].GetStringValue(),
			Score: hit.GetScore(),
		})
	}
	return matches, nil
}
