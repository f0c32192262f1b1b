package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/neebs12/shell-chat/internal/budget"
	"github.com/neebs12/shell-chat/internal/chat"
	"github.com/neebs12/shell-chat/internal/config"
	"github.com/neebs12/shell-chat/internal/conversation"
	"github.com/neebs12/shell-chat/internal/files"
	"github.com/neebs12/shell-chat/internal/logging"
	"github.com/neebs12/shell-chat/internal/metrics"
	"github.com/neebs12/shell-chat/internal/prompt"
	"github.com/neebs12/shell-chat/internal/state"
	"github.com/neebs12/shell-chat/internal/tokenizer"
	"github.com/neebs12/shell-chat/internal/tui"
)

// session is a fully wired chat plus the resources it holds open.
type session struct {
	chat    *chat.Chat
	logger  *slog.Logger
	closers []io.Closer
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i].Close()
	}
}

// newSession wires config into a Chat. The IO is attached by the caller.
// withStates opens the save-state database.
func newSession(ctx context.Context, cfg *config.Config, withStates, background bool) (_ *session, err error) {
	s := &session{}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	logger, logCloser, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, err
	}
	s.logger = logger
	s.closers = append(s.closers, logCloser)

	// Resolve the tokenizer eagerly so an unknown model fails at startup.
	counter, err := tokenizer.NewCache().For(cfg.TokenizerModel())
	if err != nil {
		logger.Error("tokenizer unavailable", slog.String("model", cfg.TokenizerModel()), slog.Any("error", err))
		return nil, err
	}

	p, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	fileSet := prompt.NewFileSet()
	history := conversation.NewStore(counter)
	reconciler := budget.NewReconciler(cfg.Budget, budget.NewLimit(cfg.ConversationLimit), counter, fileSet, history)

	var states *state.Manager
	if withStates {
		dbPath := cfg.DBPath
		if dbPath == "" {
			if dbPath, err = state.DefaultDBPath(); err != nil {
				return nil, fmt.Errorf("state db path: %w", err)
			}
		}
		store, err := state.NewSQLiteStore(dbPath)
		if err != nil {
			return nil, fmt.Errorf("open state store: %w", err)
		}
		s.closers = append(s.closers, store)
		if states, err = state.NewManager(ctx, store); err != nil {
			return nil, fmt.Errorf("clear state cache: %w", err)
		}
	}

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg, logger); err != nil {
				logger.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("working directory: %w", err)
	}

	s.chat = chat.New(chat.Deps{
		Provider:   p,
		Reconciler: reconciler,
		Files:      fileSet,
		History:    history,
		Finder:     files.NewFinder(wd),
		States:     states,
		Metrics:    m,
	}, chat.Options{
		Model:       cfg.ChatModel(),
		Temperature: cfg.Temperature,
		Background:  background,
	})

	logger.Debug("session ready",
		slog.String("provider", p.Name()),
		slog.String("model", cfg.ChatModel()),
		slog.String("tokenizer", cfg.TokenizerModel()),
		slog.Int("max_tokens", cfg.Budget.MaxTokens),
	)
	return s, nil
}

// runChat starts the interactive chat (REPL) mode.
func runChat(initialFiles []string) error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := newSession(ctx, cfg, true, useTUI)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx = logging.WithLogger(ctx, s.logger)

	if useTUI {
		return tui.RunTUI(func(ui tui.IO) error {
			s.chat.IO = ui
			s.chat.Track(initialFiles...)

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

			return s.chat.Run(ctx)
		})
	}

	// Plain IO mode
	s.chat.IO = tui.NewPlainIO()
	s.chat.Track(initialFiles...)
	stop := handleInterrupts(ctx, cancel, s.chat)
	defer stop()

	err = s.chat.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// handleInterrupts makes Ctrl+C cancel the reply in flight. With no reply
// in flight, or on SIGTERM, it ends the session.
func handleInterrupts(ctx context.Context, cancel context.CancelFunc, c *chat.Chat) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				if sig == syscall.SIGINT && c.CancelTurn() {
					continue
				}
				cancel()
				// Unblock the pending read.
				_ = os.Stdin.Close()
				return
			}
		}
	}()
	return func() { signal.Stop(sigCh) }
}
