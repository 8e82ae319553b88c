// Package llm talks to generative models through an ordered fallback chain
// of OpenAI-compatible endpoints.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Completer sends one prompt to one named model.
type Completer interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}

// OpenAICompleter wraps an OpenAI-compatible API client.
type OpenAICompleter struct {
	api         *openai.Client
	system      string
	temperature float32
}

// NewOpenAICompleter creates a completer for baseURL. system, when set, is
// sent as the system message of every request.
func NewOpenAICompleter(baseURL, apiKey, system string) *OpenAICompleter {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAICompleter{
		api:         openai.NewClientWithConfig(config),
		system:      system,
		temperature: 0.7,
	}
}

// Complete runs a single chat completion.
func (c *OpenAICompleter) Complete(ctx context.Context, model, prompt string) (string, error) {
	var msgs []openai.ChatCompletionMessage
	if c.system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: c.system})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "model", model, "raw", raw)
	if strings.TrimSpace(raw) == "" {
		return "", errors.New("LLM returned an empty response")
	}
	return raw, nil
}

// Ping checks that the endpoint is reachable and the key is accepted.
func (c *OpenAICompleter) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
