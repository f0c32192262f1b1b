// Package budget reconciles the token cost of a model request against the
// context window: it decides whether files and inputs are admissible,
// truncates conversation history to fit, and reports where tokens go.
package budget

import (
	"fmt"
	"strconv"
	"strings"
)

// Defaults used when neither the config file nor the environment sets a value.
const (
	DefaultMaxTokens                  = 16000
	DefaultMaxCompletionTokens        = 300
	DefaultReservedConversationTokens = 2000
	DefaultErrorCorrectionTokens      = 200
	DefaultReservedInputTokens        = 250
	DefaultConversationLimit          = 1_000_000
)

// Environment variables read by FromEnv.
const (
	EnvMaxTokens                  = "MAX_TOKENS"
	EnvMaxCompletionTokens        = "MAX_COMPLETION_TOKENS"
	EnvReservedConversationTokens = "RESERVED_CONVERSATION_TOKENS"
	EnvErrorCorrectionTokens      = "RESERVED_ERROR_CORRECTION_TOKENS"
	EnvReservedInputTokens        = "RESERVED_INPUT_TOKENS"
)

// Config holds the hard limits of the context window. It is a value and
// is never mutated after startup.
type Config struct {
	// MaxTokens is the ceiling for everything sent to the model.
	MaxTokens int `yaml:"max_tokens" toml:"max_tokens"`
	// MaxCompletionTokens is reserved for the model's reply.
	MaxCompletionTokens int `yaml:"max_completion_tokens" toml:"max_completion_tokens"`
	// ReservedConversationTokens is treated as spent when admitting files,
	// guaranteeing room for at least this much conversation.
	ReservedConversationTokens int `yaml:"reserved_conversation_tokens" toml:"reserved_conversation_tokens"`
	// ErrorCorrectionTokens absorbs drift between local and provider counts.
	ErrorCorrectionTokens int `yaml:"error_correction_tokens" toml:"error_correction_tokens"`
	// ReservedInputTokens is informational; the token report lists it.
	ReservedInputTokens int `yaml:"reserved_input_tokens" toml:"reserved_input_tokens"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:                  DefaultMaxTokens,
		MaxCompletionTokens:        DefaultMaxCompletionTokens,
		ReservedConversationTokens: DefaultReservedConversationTokens,
		ErrorCorrectionTokens:      DefaultErrorCorrectionTokens,
		ReservedInputTokens:        DefaultReservedInputTokens,
	}
}

// ConfigError reports an invalid budget value supplied at startup. It is
// fatal.
type ConfigError struct {
	Name  string
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid budget setting %s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("invalid budget setting %s=%q: %v", e.Name, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// FromEnv overlays environment values found through lookup onto base.
// Values that are not non-negative integers are rejected rather than
// replaced by defaults.
func FromEnv(lookup func(string) (string, bool), base Config) (Config, error) {
	cfg := base
	fields := []struct {
		name string
		dst  *int
	}{
		{EnvMaxTokens, &cfg.MaxTokens},
		{EnvMaxCompletionTokens, &cfg.MaxCompletionTokens},
		{EnvReservedConversationTokens, &cfg.ReservedConversationTokens},
		{EnvErrorCorrectionTokens, &cfg.ErrorCorrectionTokens},
		{EnvReservedInputTokens, &cfg.ReservedInputTokens},
	}
	for _, f := range fields {
		raw, ok := lookup(f.name)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, &ConfigError{Name: f.name, Value: raw, Err: fmt.Errorf("not an integer")}
		}
		if n < 0 {
			return Config{}, &ConfigError{Name: f.name, Value: raw, Err: fmt.Errorf("must not be negative")}
		}
		*f.dst = n
	}
	return cfg, cfg.Validate()
}

// Validate checks that every limit is usable.
func (c Config) Validate() error {
	if c.MaxTokens <= 0 {
		return &ConfigError{Name: EnvMaxTokens, Value: strconv.Itoa(c.MaxTokens), Err: fmt.Errorf("must be positive")}
	}
	checks := []struct {
		name string
		v    int
	}{
		{EnvMaxCompletionTokens, c.MaxCompletionTokens},
		{EnvReservedConversationTokens, c.ReservedConversationTokens},
		{EnvErrorCorrectionTokens, c.ErrorCorrectionTokens},
		{EnvReservedInputTokens, c.ReservedInputTokens},
	}
	for _, ch := range checks {
		if ch.v < 0 {
			return &ConfigError{Name: ch.name, Value: strconv.Itoa(ch.v), Err: fmt.Errorf("must not be negative")}
		}
	}
	return nil
}
