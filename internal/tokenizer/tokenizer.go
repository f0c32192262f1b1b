// Package tokenizer counts BPE tokens for model prompts.
//
// Encodings are expensive to build and are counted against many times per
// turn, so a [Cache] memoizes one encoder per model id for the lifetime of
// the process. The cache is an explicit value owned by whoever composes the
// application; nothing in this package is global.
package tokenizer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter returns the number of tokens in text. Implementations must be
// deterministic and safe for concurrent use.
type Counter interface {
	Count(text string) int
}

// Func adapts an ordinary function to a Counter.
type Func func(text string) int

func (f Func) Count(text string) int { return f(text) }

// ConfigurationError reports a model id no tokenizer is known for. It is
// fatal: the caller misconfigured the model and retrying will not help.
type ConfigurationError struct {
	Model string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("no tokenizer for model %q: %v", e.Model, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err is (or wraps) a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// Loader builds a Counter for a model id.
type Loader func(model string) (Counter, error)

// Cache memoizes one Counter per model id.
type Cache struct {
	mu       sync.Mutex
	counters map[string]Counter
	load     Loader
}

// NewCache returns a Cache backed by tiktoken encodings.
func NewCache() *Cache {
	return NewCacheWithLoader(LoadTiktoken)
}

// NewCacheWithLoader returns a Cache that builds counters with load.
func NewCacheWithLoader(load Loader) *Cache {
	return &Cache{
		counters: make(map[string]Counter),
		load:     load,
	}
}

// For returns the Counter for model, loading it on first use. Load
// failures are returned as *ConfigurationError and are not cached, so a
// corrected configuration can be retried within the same process.
func (c *Cache) For(model string) (Counter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if counter, ok := c.counters[model]; ok {
		return counter, nil
	}
	counter, err := c.load(model)
	if err != nil {
		var ce *ConfigurationError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &ConfigurationError{Model: model, Err: err}
	}
	c.counters[model] = counter
	return counter, nil
}

// LoadTiktoken resolves model to a tiktoken encoding. Model ids such as
// "gpt-4o" or "gpt-3.5-turbo-16k" are mapped through tiktoken's model
// table; bare encoding names ("cl100k_base", "o200k_base") are accepted
// as-is so non-OpenAI models can pick an approximating encoding.
func LoadTiktoken(model string) (Counter, error) {
	if model == "" {
		return nil, &ConfigurationError{Model: model, Err: errors.New("empty model id")}
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		var encErr error
		enc, encErr = tiktoken.GetEncoding(model)
		if encErr != nil {
			return nil, &ConfigurationError{Model: model, Err: err}
		}
	}
	return bpe{enc: enc}, nil
}

type bpe struct {
	enc *tiktoken.Tiktoken
}

// Count allows every special token so file contents containing sequences
// like "<|endoftext|>" are counted instead of rejected.
func (b bpe) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(b.enc.Encode(text, []string{"all"}, nil))
}
