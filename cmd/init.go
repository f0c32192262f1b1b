package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neebs12/shell-chat/internal/config"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented default config file",
		Long:  "Writes the default configuration to --config or ~/.config/shell-chat/config.yaml.",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				p, err := config.DefaultPath()
				if err != nil {
					return fmt.Errorf("config path: %w", err)
				}
				path = p
			}
			if err := writeConfig(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", path)
			fmt.Fprintln(cmd.OutOrStdout(), "Add your API key, or set OPENAI_API_KEY / ANTHROPIC_API_KEY, then run: shell-chat")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	return cmd
}

func writeConfig(path string, force bool) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return fmt.Errorf("init writes YAML; choose a .yaml path instead of %s", path)
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	// The file may hold API keys.
	if err := os.WriteFile(path, []byte(config.Template), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
