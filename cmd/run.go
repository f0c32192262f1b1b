package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/neebs12/shell-chat/internal/logging"
	"github.com/neebs12/shell-chat/internal/tui"
)

func newRunCmd() *cobra.Command {
	var prompt string

	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Send a single prompt non-interactively",
		Example: `  shell-chat run "what does this do?" -f main.go
  shell-chat run -P "summarise the README" -f README.md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "" {
				prompt = strings.Join(args, " ")
			}
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("a prompt is required: shell-chat run \"<prompt>\"")
			}
			return runOnce(prompt, fileFlags)
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "P", "", "the prompt to send")

	return cmd
}

// runOnce sends a single prompt with the given files tracked and exits.
func runOnce(prompt string, trackedFiles []string) error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := newSession(ctx, cfg, false, false)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx = logging.WithLogger(ctx, s.logger)

	s.chat.IO = tui.NewPlainIO()
	s.chat.Track(trackedFiles...)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.chat.RunOnce(ctx, prompt); err != nil {
		return err
	}
	fmt.Println()
	return nil
}
