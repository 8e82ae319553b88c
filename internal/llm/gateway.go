package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Tier selects a fallback chain.
type Tier string

const (
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

// Endpoint is one model of a chain. Limit is a human-readable rate limit
// such as "15 RPM", used in error messages.
type Endpoint struct {
	Name  string
	Limit string
}

// Result is a successful generation.
type Result struct {
	Text     string
	Model    string
	Attempts []string
}

// Config configures a Gateway.
type Config struct {
	Standard []Endpoint
	Premium  []Endpoint
	// Timeout bounds each model call. Zero means no per-call bound.
	Timeout time.Duration
	Metrics *Metrics
	Tokens  *TokenCounter
}

// DefaultStandard is the standard chain: primary first, then fallbacks.
var DefaultStandard = []Endpoint{
	{Name: "gemini-2.5-flash", Limit: "15 RPM"},
	{Name: "gemini-2.0-flash-lite", Limit: "30 RPM"},
	{Name: "gemini-2.5-flash-lite", Limit: "15 RPM"},
	{Name: "gemini-2.0-flash", Limit: "15 RPM"},
}

// DefaultPremium is the premium chain used for final summaries.
var DefaultPremium = []Endpoint{
	{Name: "gemini-2.5-pro", Limit: "3 RPM"},
}

// Gateway sends prompts through per-tier fallback chains. It is safe for
// concurrent use.
type Gateway struct {
	completer Completer
	chains    map[Tier][]Endpoint
	timeout   time.Duration
	metrics   *Metrics
	tokens    *TokenCounter

	mu      sync.RWMutex
	current string
}

// NewGateway creates a gateway over c.
func NewGateway(c Completer, cfg Config) (*Gateway, error) {
	if c == nil {
		return nil, errors.New("completer is required")
	}
	if len(cfg.Standard) == 0 {
		return nil, errors.New("standard tier needs at least one model")
	}
	if len(cfg.Premium) == 0 {
		return nil, errors.New("premium tier needs at least one model")
	}
	for _, ep := range append(append([]Endpoint{}, cfg.Standard...), cfg.Premium...) {
		if ep.Name == "" {
			return nil, errors.New("model name must not be empty")
		}
	}
	return &Gateway{
		completer: c,
		chains: map[Tier][]Endpoint{
			TierStandard: cfg.Standard,
			TierPremium:  cfg.Premium,
		},
		timeout: cfg.Timeout,
		metrics: cfg.Metrics,
		tokens:  cfg.Tokens,
		current: cfg.Standard[0].Name,
	}, nil
}

// CurrentModel returns the model of the most recent attempt.
func (g *Gateway) CurrentModel() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.current
}

func (g *Gateway) setCurrent(name string) {
	g.mu.Lock()
	g.current = name
	g.mu.Unlock()
}

// Generate tries each endpoint of tier in order, once, and returns the first
// success. When every endpoint fails the returned *Error carries the kind of
// the last failure.
func (g *Gateway) Generate(ctx context.Context, prompt string, tier Tier) (Result, error) {
	chain, ok := g.chains[tier]
	if !ok {
		return Result{}, fmt.Errorf("unknown tier %q: %w", tier, ErrModelUnavailable)
	}

	tokens := g.tokens.Count(prompt)
	g.metrics.observeTokens(tier, tokens)
	slog.Debug("generating", "tier", tier, "prompt_tokens", tokens)

	var (
		res     Result
		lastErr error
		kind    error
	)
	for i, ep := range chain {
		if err := ctx.Err(); err != nil {
			lastErr, kind = err, ErrUpstream
			break
		}
		g.setCurrent(ep.Name)
		res.Attempts = append(res.Attempts, ep.Name)

		text, elapsed, err := g.call(ctx, ep.Name, prompt)
		if err == nil {
			g.metrics.observeAttempt(ep.Name, nil, elapsed.Seconds())
			if i > 0 {
				g.metrics.observeFallback(tier)
				slog.Info("served by fallback model", "tier", tier, "model", ep.Name, "attempt", i+1)
			}
			res.Text = text
			res.Model = ep.Name
			return res, nil
		}

		kind = classify(err)
		lastErr = err
		g.metrics.observeAttempt(ep.Name, kind, elapsed.Seconds())
		slog.Warn("model call failed", "tier", tier, "model", ep.Name, "limit", ep.Limit,
			"kind", kindLabel(kind), "attempt", i+1, "error", err)
	}

	g.metrics.observeExhausted(tier, kind)
	return res, &Error{Kind: kind, Tier: tier, Attempted: chain[:len(res.Attempts)], Message: errMessage(lastErr)}
}

func (g *Gateway) call(ctx context.Context, model, prompt string) (string, time.Duration, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	start := time.Now()
	text, err := g.completer.Complete(ctx, model, prompt)
	return text, time.Since(start), err
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
