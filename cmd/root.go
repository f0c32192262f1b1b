package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/neebs12/shell-chat/internal/config"
	"github.com/neebs12/shell-chat/internal/provider"
	"github.com/neebs12/shell-chat/internal/tokenizer"
)

var (
	cfgFile       string
	modelFlag     string
	providerFlag  string
	metricsAddr   string
	maxTokensFlag int
	fileFlags     []string
	useTUI        bool

	// Package-level version info, set by Execute().
	appVersion string
	appCommit  string
	appDate    string
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date

	rootCmd := &cobra.Command{
		Use:   "shell-chat [files...]",
		Short: "Chat with a model about the files in your project",
		Long: "shell-chat is a terminal chat client that injects tracked files into the system prompt\n" +
			"and keeps every request inside the model's token budget.",
		Args: cobra.ArbitraryArgs,
		// Running shell-chat with no subcommand starts chat mode.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Default TUI on when stdout is a terminal and --tui was not explicitly set.
			if !cmd.Root().PersistentFlags().Changed("tui") && term.IsTerminal(int(os.Stdout.Fd())) {
				useTUI = true
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(append(fileFlags, args...))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/shell-chat/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "override model")
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "override provider (openai or anthropic)")
	rootCmd.PersistentFlags().BoolVar(&useTUI, "tui", false, "use bubbletea TUI mode (default: auto-detect terminal)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.PersistentFlags().IntVar(&maxTokensFlag, "max-tokens", 0, "override the context window size")
	rootCmd.PersistentFlags().StringArrayVarP(&fileFlags, "file", "f", nil, "track a file from the start (repeatable)")

	// Subcommands
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))
	rootCmd.AddCommand(newInitCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if tokenizer.IsConfigurationError(err) {
			fmt.Fprintln(os.Stderr, "Set a known model or encoding with --model or the tokenizer config key.")
		}
		os.Exit(1)
	}
}

// initConfig loads configuration, applying CLI flag overrides.
func initConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	// CLI flags override config values
	if providerFlag != "" {
		cfg.Provider = providerFlag
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	if maxTokensFlag > 0 {
		cfg.Budget.MaxTokens = maxTokensFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildProvider creates a Provider instance based on configuration.
func buildProvider(cfg *config.Config) (provider.Provider, error) {
	name := cfg.Provider
	pc := cfg.GetProviderConfig(name)

	if pc.APIKey == "" && pc.BaseURL == "" {
		return nil, fmt.Errorf(
			"API key not configured for provider %q.\n"+
				"Set it via:\n"+
				"  - config file: providers.%s.api_key\n"+
				"  - environment: LLM_API_KEY\n"+
				"  - run: shell-chat init",
			name, name,
		)
	}

	var p provider.Provider
	switch name {
	case "anthropic":
		p = provider.NewAnthropicProvider(pc.APIKey, pc.BaseURL, cfg.ChatModel())
	case "openai":
		// Any OpenAI-compatible endpoint works through base_url.
		p = provider.NewOpenAIProvider(pc.APIKey, pc.BaseURL, cfg.ChatModel())
	default:
		return nil, errors.New("unknown provider " + name)
	}
	return provider.NewRateLimited(p, cfg.RateLimit, 1), nil
}
