package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

var (
	counterOnce sync.Once
	counter     *TokenCounter
	counterErr  error
)

// TokenCounter estimates prompt sizes with the cl100k_base encoding. Gemini
// uses a different tokenizer, so counts are approximate.
type TokenCounter struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// NewTokenCounter returns the shared counter, loading the encoding once.
func NewTokenCounter() (*TokenCounter, error) {
	counterOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			counterErr = err
			return
		}
		counter = &TokenCounter{enc: enc}
	})
	return counter, counterErr
}

// Count returns the token count of text. A nil counter counts nothing.
func (c *TokenCounter) Count(text string) int {
	if c == nil || text == "" {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.enc.Encode(text, nil, nil))
}
