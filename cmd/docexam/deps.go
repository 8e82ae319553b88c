package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/docexam/internal/document"
	"github.com/pavelanni/docexam/internal/exam"
	"github.com/pavelanni/docexam/internal/index"
	"github.com/pavelanni/docexam/internal/llm"
	"github.com/pavelanni/docexam/internal/llm/prompts"
	"github.com/pavelanni/docexam/internal/report"
)

const defaultLLMURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// addEngineFlags registers the flags shared by serve and exam.
func addEngineFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("llm-url", defaultLLMURL, "OpenAI-compatible LLM API base URL")
	f.String("llm-key", "", "LLM API key (or set DOCEXAM_LLM_KEY, GEMINI_API_KEY or GOOGLE_API_KEY)")
	f.StringSlice("standard-models", endpointFlags(llm.DefaultStandard), "Standard fallback chain as name=limit, primary first")
	f.StringSlice("premium-models", endpointFlags(llm.DefaultPremium), "Premium chain for final summaries as name=limit")
	f.Duration("llm-timeout", 2*time.Minute, "Timeout for a single model call")
	f.String("embed-url", "", "Embedding API base URL (defaults to --llm-url)")
	f.String("embed-key", "", "Embedding API key (defaults to the LLM key)")
	f.String("embed-model", "text-embedding-004", "Embedding model")
	f.String("vector-store", "memory", "Vector store (memory, qdrant, weaviate, none)")
	f.String("qdrant-addr", "localhost:6334", "Qdrant gRPC address")
	f.String("qdrant-key", "", "Qdrant API key")
	f.String("weaviate-url", "http://localhost:8081", "Weaviate URL")
	f.String("retrieval", exam.RetrievalIndex, "Context retrieval (index, prefix)")
	f.String("chunk-strategy", "words", "Chunking strategy (words, recursive)")
	f.Int("chunk-size", document.DefaultChunkSize, "Chunk size in words")
	f.Int("chunk-overlap", document.DefaultChunkOverlap, "Chunk overlap in words")
	f.Int("num-questions", 0, "Questions per session (0 picks by page count)")
	f.Int("max-questions", 100, "Upper bound on questions per session")
	f.Float64("lifeline-ratio", 1.0/3, "Lifelines per question asked")
	f.String("lifeline-avoid", string(exam.AvoidFocus), "Questions a replacement avoids (focus, all)")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading variant (strict, standard, lenient)")
	f.String("prompts-dir", "", "Directory with a templates/ folder overriding the built-in prompts")
	f.String("lang", "en", "Default language (en, ru)")
	f.String("report-format", string(report.FormatPDF), "Default report format (pdf, html, json)")
}

func endpointFlags(eps []llm.Endpoint) []string {
	out := make([]string, len(eps))
	for i, ep := range eps {
		out[i] = ep.Name + "=" + ep.Limit
	}
	return out
}

// parseEndpoints reads name=limit pairs. The limit part is optional.
func parseEndpoints(values []string) ([]llm.Endpoint, error) {
	var eps []llm.Endpoint
	for _, v := range values {
		name, limit, _ := strings.Cut(strings.TrimSpace(v), "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid model entry %q", v)
		}
		if limit == "" {
			limit = "unknown limit"
		}
		eps = append(eps, llm.Endpoint{Name: name, Limit: strings.TrimSpace(limit)})
	}
	return eps, nil
}

// apiKey resolves the LLM key from flags, config or the usual Gemini
// environment variables.
func apiKey(v *viper.Viper) (string, error) {
	if k := v.GetString("llm-key"); k != "" {
		return k, nil
	}
	for _, env := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"} {
		if k := os.Getenv(env); k != "" {
			return k, nil
		}
	}
	return "", errors.New("no LLM API key: set --llm-key, DOCEXAM_LLM_KEY, GEMINI_API_KEY or GOOGLE_API_KEY")
}

// engine holds what every examination session shares.
type engine struct {
	gateway  *llm.Gateway
	ingestor *exam.Ingestor
	cfg      exam.Config
	closers  []func() error
}

func newEngine(ctx context.Context, v *viper.Viper, reg prometheus.Registerer) (*engine, error) {
	if dir := v.GetString("prompts-dir"); dir != "" {
		if err := prompts.Load(os.DirFS(dir)); err != nil {
			return nil, fmt.Errorf("load prompts from %s: %w", dir, err)
		}
		slog.Info("loaded prompt templates", "dir", dir)
	}

	key, err := apiKey(v)
	if err != nil {
		return nil, err
	}

	standard, err := parseEndpoints(v.GetStringSlice("standard-models"))
	if err != nil {
		return nil, err
	}
	premium, err := parseEndpoints(v.GetStringSlice("premium-models"))
	if err != nil {
		return nil, err
	}

	variant := v.GetString("prompt-variant")
	if !prompts.IsValidVariant(variant) {
		return nil, fmt.Errorf("invalid prompt variant %q: use strict, standard or lenient", variant)
	}
	avoid := exam.AvoidScope(v.GetString("lifeline-avoid"))
	if avoid != exam.AvoidFocus && avoid != exam.AvoidAll {
		return nil, fmt.Errorf("invalid lifeline avoid scope %q: use focus or all", avoid)
	}
	retrieval := v.GetString("retrieval")
	if retrieval != exam.RetrievalIndex && retrieval != exam.RetrievalPrefix {
		return nil, fmt.Errorf("invalid retrieval %q: use index or prefix", retrieval)
	}

	persona, err := prompts.Persona()
	if err != nil {
		return nil, fmt.Errorf("load persona prompt: %w", err)
	}

	tokens, err := llm.NewTokenCounter()
	if err != nil {
		// Token counting only feeds metrics.
		slog.Warn("token counter unavailable", "error", err)
		tokens = nil
	}

	completer := llm.NewOpenAICompleter(v.GetString("llm-url"), key, persona)
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := completer.Ping(pingCtx); err != nil {
		slog.Warn("LLM endpoint not reachable, continuing", "url", v.GetString("llm-url"), "error", err)
	}

	gw, err := llm.NewGateway(completer, llm.Config{
		Standard: standard,
		Premium:  premium,
		Timeout:  v.GetDuration("llm-timeout"),
		Metrics:  llm.NewMetrics(reg),
		Tokens:   tokens,
	})
	if err != nil {
		return nil, fmt.Errorf("create LLM gateway: %w", err)
	}

	splitter, err := document.NewSplitter(v.GetString("chunk-strategy"), v.GetInt("chunk-size"), v.GetInt("chunk-overlap"))
	if err != nil {
		return nil, err
	}

	e := &engine{
		gateway: gw,
		ingestor: &exam.Ingestor{
			Extractor: document.NewExtractor(),
			Splitter:  splitter,
		},
		cfg: exam.Config{
			MaxQuestions:  v.GetInt("max-questions"),
			LifelineRatio: v.GetFloat64("lifeline-ratio"),
			Avoid:         avoid,
			Variant:       prompts.PromptVariant(variant),
			Retrieval:     retrieval,
		},
	}

	if retrieval == exam.RetrievalIndex {
		if err := e.setupIndex(v, key); err != nil {
			e.Close()
			return nil, err
		}
	}
	return e, nil
}

func (e *engine) setupIndex(v *viper.Viper, llmKey string) error {
	var store index.VectorStore
	switch kind := v.GetString("vector-store"); kind {
	case "none":
		slog.Info("vector store disabled, using document prefix as context")
		return nil
	case "", "memory":
		store = index.NewMemoryStore()
	case "qdrant":
		host, portStr, err := net.SplitHostPort(v.GetString("qdrant-addr"))
		if err != nil {
			return fmt.Errorf("parse qdrant address: %w", err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("parse qdrant port: %w", err)
		}
		qs, err := index.NewQdrantStore(host, port, v.GetString("qdrant-key"))
		if err != nil {
			return err
		}
		e.closers = append(e.closers, qs.Close)
		store = qs
	case "weaviate":
		ws, err := index.NewWeaviateStore(v.GetString("weaviate-url"))
		if err != nil {
			return err
		}
		store = ws
	default:
		return fmt.Errorf("unknown vector store %q", kind)
	}

	embedURL := v.GetString("embed-url")
	if embedURL == "" {
		embedURL = v.GetString("llm-url")
	}
	embedKey := v.GetString("embed-key")
	if embedKey == "" {
		embedKey = llmKey
	}
	e.ingestor.Store = store
	e.ingestor.Embedder = index.NewOpenAIEmbedder(embedURL, embedKey, v.GetString("embed-model"))
	return nil
}

// NewSession creates a session sharing the engine's gateway and index.
func (e *engine) NewSession() *exam.Session {
	return exam.New(e.gateway, e.ingestor, e.cfg)
}

func (e *engine) Close() {
	for _, c := range e.closers {
		if err := c(); err != nil {
			slog.Warn("close", "error", err)
		}
	}
}
