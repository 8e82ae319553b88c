package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// WeaviateStore keeps each collection as a Weaviate class with externally
// supplied vectors.
type WeaviateStore struct {
	client *weaviate.Client
}

// NewWeaviateStore connects to the Weaviate REST endpoint at rawURL.
func NewWeaviateStore(rawURL string) (*WeaviateStore, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse weaviate url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("weaviate url %q has no host", rawURL)
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "http"
	}
	client, err := weaviate.NewClient(weaviate.Config{Host: u.Host, Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return &WeaviateStore{client: client}, nil
}

// className maps a collection name onto a valid class name: classes must
// start with an upper-case letter.
func className(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func (s *WeaviateStore) CreateCollection(ctx context.Context, name string, _ int) error {
	class := &models.Class{
		Class:       className(name),
		Description: "Document chunks for one examination",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}},
			{Name: "chunk_index", DataType: []string{"int"}},
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

func (s *WeaviateStore) DeleteCollection(ctx context.Context, name string) error {
	if _, err := s.client.Schema().ClassGetter().WithClassName(className(name)).Do(ctx); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("get class: %w", err)
	}
	if err := s.client.Schema().ClassDeleter().WithClassName(className(name)).Do(ctx); err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return nil
}

// isNotFound reports whether err is a 404 from the Weaviate REST API.
func isNotFound(err error) bool {
	var werr *fault.WeaviateClientError
	return errors.As(err, &werr) && werr.IsUnexpectedStatusCode && werr.StatusCode == http.StatusNotFound
}

func (s *WeaviateStore) Add(ctx context.Context, name string, points []Point) error {
	objects := make([]*models.Object, len(points))
	for i, p := range points {
		objects[i] = &models.Object{
			Class:  className(name),
			ID:     strfmt.UUID(p.ID),
			Vector: p.Vector,
			Properties: map[string]interface{}{
				"content":     p.Text,
				"chunk_index": p.Index,
			},
		}
	}
	result, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("batch import: %w", err)
	}
	for _, obj := range result {
		if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
			return fmt.Errorf("batch import: %s", obj.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func (s *WeaviateStore) Search(ctx context.Context, name string, vector []float32, k int) ([]Match, error) {
	cls := className(name)
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)
	result, err := s.client.GraphQL().Get().
		WithClassName(cls).
		WithFields(
			graphql.Field{Name: "content"},
			graphql.Field{Name: "chunk_index"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
		).
		WithNearVector(nearVector).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("near vector search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, errors.New(result.Errors[0].Message)
	}
	return parseGetResult(result, cls)
}

type getResponse struct {
	Get map[string][]struct {
		Content    string `json:"content"`
		ChunkIndex int    `json:"chunk_index"`
		Additional struct {
			Certainty float32 `json:"certainty"`
		} `json:"_additional"`
	} `json:"Get"`
}

// parseGetResult decodes the hits for class cls from a Get query.
func parseGetResult(resp *models.GraphQLResponse, cls string) ([]Match, error) {
	if resp == nil {
		return nil, errors.New("nil graphql response")
	}
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql data: %w", err)
	}
	var parsed getResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode graphql data: %w", err)
	}
	hits := parsed.Get[cls]
	matches := make([]Match, len(hits))
	for i, h := range hits {
		matches[i] = Match{Index: h.ChunkIndex, Text: h.Content, Score: h.Additional.Certainty}
	}
	return matches, nil
}
