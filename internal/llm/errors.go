package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrRateLimited means every attempted endpoint hit its quota.
	ErrRateLimited = errors.New("rate limited")
	// ErrModelUnavailable means the model is unknown or temporarily gone.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrUpstream covers every other failure, timeouts included.
	ErrUpstream = errors.New("upstream error")
)

// Error is returned when every endpoint of a tier failed. Kind is one of the
// sentinel errors above and is matched by errors.Is.
type Error struct {
	Kind      error
	Tier      Tier
	Attempted []Endpoint
	Message   string
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrRateLimited:
		limits := make([]string, 0, len(e.Attempted))
		for _, ep := range e.Attempted {
			limits = append(limits, ep.Name+" "+ep.Limit)
		}
		return fmt.Sprintf("all %s models hit their rate limits (%s); wait a minute and try again",
			e.Tier, strings.Join(limits, ", "))
	case ErrModelUnavailable:
		return fmt.Sprintf("%s model temporarily unavailable: %s", e.Tier, e.Message)
	default:
		return fmt.Sprintf("unexpected error from %s models: %s", e.Tier, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Kind }

// classify maps a completer error onto a sentinel kind.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if kind := classifyStatus(apiErr.HTTPStatusCode); kind != nil {
			return kind
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if kind := classifyStatus(reqErr.HTTPStatusCode); kind != nil {
			return kind
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "quota"), strings.Contains(msg, "rate limit"):
		return ErrRateLimited
	case strings.Contains(msg, "404"), strings.Contains(msg, "not found"):
		return ErrModelUnavailable
	default:
		return ErrUpstream
	}
}

func classifyStatus(code int) error {
	switch code {
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusNotFound:
		return ErrModelUnavailable
	}
	return nil
}

func kindLabel(kind error) string {
	switch kind {
	case ErrRateLimited:
		return "rate_limited"
	case ErrModelUnavailable:
		return "unavailable"
	case nil:
		return "ok"
	default:
		return "error"
	}
}
