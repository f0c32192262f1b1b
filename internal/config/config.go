// Package config loads shell-chat configuration.
// Sources, from highest precedence to lowest:
//  1. command-line flags (applied by cmd)
//  2. environment variables (LLM_API_KEY, MAX_TOKENS, ...)
//  3. the file given by --config, or ~/.config/shell-chat/config.yaml
//  4. DefaultConfig
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/neebs12/shell-chat/internal/budget"
)

// Built-in defaults.
const (
	DefaultProvider         = "openai"
	DefaultOpenAIModel      = "gpt-3.5-turbo-16k"
	DefaultAnthropicModel   = "claude-3-5-haiku-latest"
	DefaultTemperature      = 0.4
	anthropicTokenizerModel = "cl100k_base"
)

// ProviderConfig holds credentials and endpoint for one provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key" toml:"api_key"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
	Model   string `yaml:"model" toml:"model"`
}

// Config is the full shell-chat configuration.
type Config struct {
	// Provider selects the backend: "openai" (any OpenAI-compatible API)
	// or "anthropic".
	Provider string `yaml:"provider" toml:"provider"`

	// Model overrides the provider's model.
	Model string `yaml:"model" toml:"model"`

	// Tokenizer is the model id or encoding name used for local token
	// counting. Empty means the chat model, or cl100k_base for Anthropic.
	Tokenizer string `yaml:"tokenizer" toml:"tokenizer"`

	Temperature float64 `yaml:"temperature" toml:"temperature"`

	Providers map[string]*ProviderConfig `yaml:"providers" toml:"providers"`

	Budget budget.Config `yaml:"budget" toml:"budget"`

	// ConversationLimit is the starting soft cap on retained history.
	ConversationLimit int `yaml:"conversation_limit" toml:"conversation_limit"`

	// RateLimit caps model requests per second. 0 disables pacing.
	RateLimit float64 `yaml:"rate_limit" toml:"rate_limit"`

	LogFile  string `yaml:"log_file" toml:"log_file"`
	LogLevel string `yaml:"log_level" toml:"log_level"`

	// DBPath is the save-state database. Empty means the default under
	// ~/.local/share/shell-chat.
	DBPath string `yaml:"db_path" toml:"db_path"`

	// MetricsAddr, when set, serves Prometheus metrics on /metrics.
	MetricsAddr string `yaml:"metrics_addr" toml:"metrics_addr"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:          DefaultProvider,
		Temperature:       DefaultTemperature,
		Providers:         make(map[string]*ProviderConfig),
		Budget:            budget.DefaultConfig(),
		ConversationLimit: budget.DefaultConversationLimit,
	}
}

// DefaultPath returns ~/.config/shell-chat/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "shell-chat", "config.yaml"), nil
}

// Load reads the config file, then applies environment overrides. A
// missing file is not an error. Invalid budget values are.
func Load(configPath string) (*Config, error) {
	return load(configPath, os.LookupEnv)
}

func load(configPath string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		if p, err := DefaultPath(); err == nil {
			configPath = p
		}
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := unmarshal(configPath, data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}

	if err := applyEnvOverrides(cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func unmarshal(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks values that would make the session unusable.
func (c *Config) Validate() error {
	switch c.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unknown provider %q (want openai or anthropic)", c.Provider)
	}
	if err := c.Budget.Validate(); err != nil {
		return err
	}
	if c.ConversationLimit < 0 {
		return fmt.Errorf("%w: conversation_limit %d", budget.ErrInvalidLimit, c.ConversationLimit)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative, got %v", c.RateLimit)
	}
	return nil
}

// GetProviderConfig returns the named provider's settings, or an empty
// config when none are set.
func (c *Config) GetProviderConfig(name string) *ProviderConfig {
	if pc, ok := c.Providers[name]; ok && pc != nil {
		return pc
	}
	return &ProviderConfig{}
}

// ChatModel resolves the model sent to the provider.
func (c *Config) ChatModel() string {
	if c.Model != "" {
		return c.Model
	}
	if m := c.GetProviderConfig(c.Provider).Model; m != "" {
		return m
	}
	if c.Provider == "anthropic" {
		return DefaultAnthropicModel
	}
	return DefaultOpenAIModel
}

// TokenizerModel resolves the model id or encoding used for counting.
func (c *Config) TokenizerModel() string {
	if c.Tokenizer != "" {
		return c.Tokenizer
	}
	if c.Provider == "anthropic" {
		return anthropicTokenizerModel
	}
	return c.ChatModel()
}

func (c *Config) providerEntry(name string) *ProviderConfig {
	if c.Providers[name] == nil {
		c.Providers[name] = &ProviderConfig{}
	}
	return c.Providers[name]
}

func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(k string) string {
		v, _ := lookup(k)
		return strings.TrimSpace(v)
	}

	if v := get("SHELL_CHAT_PROVIDER"); v != "" {
		cfg.Provider = v
	}

	if v := get("OPENAI_API_KEY"); v != "" {
		cfg.providerEntry("openai").APIKey = v
	}
	if v := get("ANTHROPIC_API_KEY"); v != "" {
		cfg.providerEntry("anthropic").APIKey = v
	}
	// Generic overrides apply to whichever provider is selected.
	if v := get("LLM_API_KEY"); v != "" {
		cfg.providerEntry(cfg.Provider).APIKey = v
	}
	if v := get("LLM_BASE_URL"); v != "" {
		cfg.providerEntry(cfg.Provider).BaseURL = v
	}

	for _, k := range []string{"MODEL_NAME", "LLM_MODEL", "SHELL_CHAT_MODEL"} {
		if v := get(k); v != "" {
			cfg.Model = v
		}
	}
	if v := get("SHELL_CHAT_TOKENIZER"); v != "" {
		cfg.Tokenizer = v
	}
	if v := get("SHELL_CHAT_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := get("SHELL_CHAT_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := get("SHELL_CHAT_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := get("SHELL_CHAT_TEMPERATURE"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SHELL_CHAT_TEMPERATURE: %w", err)
		}
		cfg.Temperature = t
	}

	b, err := budget.FromEnv(lookup, cfg.Budget)
	if err != nil {
		return err
	}
	cfg.Budget = b
	return nil
}

// Template is written by `shell-chat init`.
const Template = `# shell-chat configuration
# Environment variables (OPENAI_API_KEY, ANTHROPIC_API_KEY, LLM_API_KEY,
# MAX_TOKENS, ...) override the values below.

provider: openai            # openai | anthropic
model: gpt-3.5-turbo-16k
# tokenizer: cl100k_base    # model id or encoding used for local counting
temperature: 0.4

providers:
  openai:
    api_key: ""
    # base_url: http://localhost:11434/v1
  anthropic:
    api_key: ""

budget:
  max_tokens: 16000
  max_completion_tokens: 300
  reserved_conversation_tokens: 2000
  error_correction_tokens: 200
  reserved_input_tokens: 250

conversation_limit: 1000000
# rate_limit: 1             # model requests per second
# log_file: ~/.local/state/shell-chat/shell-chat.log
# db_path: ~/.local/share/shell-chat/states.db
# metrics_addr: 127.0.0.1:9464
`
