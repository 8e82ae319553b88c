package index

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// embedBatch stays under the per-request input limit of the Gemini
// OpenAI-compatible endpoint.
const embedBatch = 96

// OpenAIEmbedder embeds texts through an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	api   *openai.Client
	model string
}

// NewOpenAIEmbedder creates an embedder for baseURL.
func NewOpenAIEmbedder(baseURL, apiKey, model string) *OpenAIEmbedder {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIEmbedder{api: openai.NewClientWithConfig(config), model: model}
}

// Embed returns one vector per text, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += embedBatch {
		end := min(start+embedBatch, len(texts))
		resp, err := e.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts[start:end],
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			return nil, fmt.Errorf("embeddings API call: %w", err)
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("embeddings API returned %d vectors for %d inputs", len(resp.Data), end-start)
		}
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= end-start {
				return nil, fmt.Errorf("embeddings API returned index %d out of range", d.Index)
			}
			out[start+d.Index] = d.Embedding
		}
	}
	return out, nil
}
