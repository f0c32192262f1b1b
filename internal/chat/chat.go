// Package chat runs the interactive loop: it reads user input, dispatches
// slash commands, checks every message against the token budget and
// streams replies from the model provider.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/neebs12/shell-chat/internal/accounting"
	"github.com/neebs12/shell-chat/internal/budget"
	"github.com/neebs12/shell-chat/internal/conversation"
	"github.com/neebs12/shell-chat/internal/files"
	"github.com/neebs12/shell-chat/internal/logging"
	"github.com/neebs12/shell-chat/internal/metrics"
	"github.com/neebs12/shell-chat/internal/prompt"
	"github.com/neebs12/shell-chat/internal/provider"
	"github.com/neebs12/shell-chat/internal/state"
	"github.com/neebs12/shell-chat/internal/tui"
)

// Deps are the collaborators a Chat drives. States and Metrics may be nil.
type Deps struct {
	Provider   provider.Provider
	Reconciler *budget.Reconciler
	Files      *prompt.FileSet
	History    *conversation.Store
	Finder     *files.Finder
	States     *state.Manager
	Metrics    *metrics.Metrics
	IO         tui.IO
}

// Options tune how requests are built and turns are scheduled.
type Options struct {
	Model       string
	Temperature float64

	// Background streams replies on their own goroutine so the user can
	// type while a reply is in flight. New input cancels that reply.
	Background bool
}

// Chat is one interactive session.
type Chat struct {
	Deps
	opts Options

	// turnMu orders "append the reply" against "cancel the reply" so a
	// cancelled reply is never stored.
	turnMu  sync.Mutex
	turn    *turn
	turnSeq int
}

type turn struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Chat. Model falls back to the provider default.
func New(deps Deps, opts Options) *Chat {
	if opts.Model == "" {
		opts.Model = deps.Provider.DefaultModel()
	}
	return &Chat{Deps: deps, opts: opts}
}

// Run starts the interactive loop. It returns nil on EOF, /quit or when
// ctx is cancelled.
func (c *Chat) Run(ctx context.Context) error {
	defer c.CancelTurn()
	c.updateStatus()

	for {
		input, err := c.readInput()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				break
			}
			return err
		}
		if ctx.Err() != nil {
			break
		}
		if strings.TrimSpace(input) == "" {
			continue
		}

		// Any new input ends the reply in flight before it touches state.
		c.CancelTurn()

		if strings.HasPrefix(input, "/") {
			handled, shouldQuit := c.handleSlashCommand(ctx, input)
			if shouldQuit {
				return nil
			}
			if handled {
				c.updateStatus()
				continue
			}
		}

		c.submit(ctx, input)
	}
	return nil
}

// RunOnce checks and sends a single prompt and waits for the reply.
func (c *Chat) RunOnce(ctx context.Context, text string) error {
	req, ok := c.prepare(ctx, text)
	if !ok {
		return errors.New("prompt rejected by the token budget")
	}
	return c.stream(ctx, req)
}

// CancelTurn cancels the reply in flight and waits for it to wind down.
// It reports whether there was one.
func (c *Chat) CancelTurn() bool {
	c.turnMu.Lock()
	t := c.turn
	c.turn = nil
	if t != nil {
		t.cancel()
	}
	c.turnMu.Unlock()

	if t == nil {
		return false
	}
	<-t.done
	return true
}

// readInput reads one message. A line of the form <<DELIM starts a
// heredoc that collects every following line up to a line equal to DELIM.
func (c *Chat) readInput() (string, error) {
	line, err := c.IO.ReadInput()
	if err != nil {
		return "", err
	}
	delim, ok := heredocDelimiter(line)
	if !ok {
		return line, nil
	}

	var lines []string
	for {
		next, err := c.IO.ReadInput()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.IO.Error(fmt.Sprintf("heredoc not terminated by %q; input discarded", delim))
			}
			return "", err
		}
		if strings.TrimRight(next, " \t") == delim {
			return strings.Join(lines, "\n"), nil
		}
		lines = append(lines, next)
	}
}

func heredocDelimiter(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "<<") {
		return "", false
	}
	delim := strings.TrimSpace(line[2:])
	if delim == "" || strings.ContainsAny(delim, " \t") {
		return "", false
	}
	return delim, true
}

// submit admits a natural-language message and starts its turn.
func (c *Chat) submit(ctx context.Context, text string) {
	req, ok := c.prepare(ctx, text)
	if !ok {
		return
	}

	c.turnMu.Lock()
	c.turnSeq++
	seq := c.turnSeq
	turnCtx, cancel := context.WithCancel(ctx)
	t := &turn{cancel: cancel, done: make(chan struct{})}
	c.turn = t
	c.turnMu.Unlock()

	if tc, ok := c.IO.(tui.TurnCanceller); ok {
		tc.SetTurnCancel(cancel)
	}

	run := func() {
		defer close(t.done)
		defer cancel()
		if tc, ok := c.IO.(tui.TurnCanceller); ok {
			defer tc.ClearTurnCancel()
		}
		log := logging.FromContext(ctx).With(slog.Int("turn", seq))
		if err := c.stream(logging.WithLogger(turnCtx, log), req); err != nil && turnCtx.Err() == nil {
			c.IO.Error(err.Error())
		}
		c.updateStatus()

		c.turnMu.Lock()
		if c.turn == t {
			c.turn = nil
		}
		c.turnMu.Unlock()
	}

	if c.opts.Background {
		go run()
		return
	}
	run()
}

// prepare runs the admissibility checks, stores the user message and
// builds the request from the truncated history.
func (c *Chat) prepare(ctx context.Context, text string) (*provider.ChatRequest, bool) {
	log := logging.FromContext(ctx)

	if fs := c.Reconciler.CheckFileSet(); fs.TooLarge {
		c.Metrics.Rejected(metrics.ReasonFileSet)
		log.Warn("file set exceeds budget",
			slog.Int("used", fs.TotalUsed),
			slog.Int("max_tokens", fs.MaxTokens),
		)
		c.IO.Error(fmt.Sprintf(
			"Files exceed usage by %d tokens. Use /tr to see the token report and /rf to remove files.",
			fs.Over()))
		return nil, false
	}

	in := c.Reconciler.CheckInput(text)
	if in.TooLarge {
		c.Metrics.Rejected(metrics.ReasonInput)
		log.Warn("input exceeds budget",
			slog.Int("tokens_in", in.InputTokens),
			slog.Int("remaining", in.Remaining),
		)
		c.IO.Error(fmt.Sprintf(
			"Input is too long: %d tokens with %d tokens remaining. Shorten it or remove files with /rf.",
			in.InputTokens, in.Remaining))
		return nil, false
	}
	if in.ExceedsSoftLimit {
		c.IO.SystemMessage(fmt.Sprintf(
			"warning: input (%d tokens) is larger than the conversation limit (%d); earlier messages will be dropped.",
			in.InputTokens, in.SoftLimit))
	}

	c.IO.UserMessage(text)
	c.History.AppendUser(text)

	tr := c.Reconciler.Truncate()
	c.Metrics.ObserveTruncation(tr)
	if tr.Dropped > 0 {
		log.Debug("history truncated",
			slog.Int("dropped", tr.Dropped),
			slog.Int("kept_tokens", tr.TokenLength),
			slog.Int("limit", tr.Limit),
		)
	}
	if len(tr.History) == 0 {
		// Nothing fits under the limit; the request goes out with the
		// system prompt alone.
		log.Debug("truncated history is empty", slog.Int("limit", tr.Limit))
	}

	sp, _ := c.Reconciler.SystemPrompt()
	return &provider.ChatRequest{
		Model:        c.opts.Model,
		SystemPrompt: sp.Complete,
		Messages:     requestMessages(tr.History),
		MaxTokens:    c.Reconciler.Config().MaxCompletionTokens,
		Temperature:  c.opts.Temperature,
	}, true
}

// requestMessages converts history for the provider and appends the
// background instruction to the newest user message only.
func requestMessages(history []conversation.Message) []provider.Message {
	msgs := make([]provider.Message, len(history))
	lastUser := -1
	for i, m := range history {
		role := provider.RoleUser
		if m.Role == conversation.RoleAI {
			role = provider.RoleAssistant
		} else {
			lastUser = i
		}
		msgs[i] = provider.Message{Role: role, Text: m.Content}
	}
	if lastUser >= 0 {
		msgs[lastUser].Text += prompt.BackgroundInstruction
	}
	return msgs
}

// stream sends req and relays the reply to the IO. The reply is stored
// only when the stream completes and the turn was not cancelled.
func (c *Chat) stream(ctx context.Context, req *provider.ChatRequest) error {
	log := logging.FromContext(ctx)
	start := time.Now()

	events, err := c.Provider.Chat(ctx, req)
	if err != nil {
		c.Metrics.ObserveRequest(metrics.OutcomeError, time.Since(start))
		return fmt.Errorf("model call failed: %w", err)
	}

	c.IO.ThinkingStart()

	var (
		reply     strings.Builder
		streamErr error
		usage     *provider.Usage
	)
	for event := range events {
		switch event.Type {
		case provider.EventTextDelta:
			c.IO.TextDelta(event.TextDelta)
			reply.WriteString(event.TextDelta)
		case provider.EventDone:
			usage = event.Usage
		case provider.EventError:
			streamErr = event.Error
		}
	}

	if ctx.Err() != nil {
		c.Metrics.ObserveRequest(metrics.OutcomeCancelled, time.Since(start))
		c.IO.TextAborted()
		log.Debug("reply cancelled", slog.Int("partial_len", reply.Len()))
		return nil
	}
	if streamErr != nil {
		c.Metrics.ObserveRequest(metrics.OutcomeError, time.Since(start))
		return fmt.Errorf("stream error: %w", streamErr)
	}

	full := reply.String()
	c.turnMu.Lock()
	stored := ctx.Err() == nil
	if stored {
		c.History.AppendAI(full)
	}
	c.turnMu.Unlock()
	if !stored {
		c.Metrics.ObserveRequest(metrics.OutcomeCancelled, time.Since(start))
		c.IO.TextAborted()
		return nil
	}

	c.Metrics.ObserveRequest(metrics.OutcomeOK, time.Since(start))
	c.IO.TextDone(full)

	attrs := []any{slog.String("model", req.Model), slog.Duration("elapsed", time.Since(start))}
	if usage != nil {
		attrs = append(attrs, slog.Int("tokens_in", usage.InputTokens), slog.Int("tokens_out", usage.OutputTokens))
	}
	log.Debug("reply complete", attrs...)
	return nil
}

// updateStatus refreshes the status bar and the budget gauges.
func (c *Chat) updateStatus() {
	rep := c.Reconciler.TokenReport()
	c.Metrics.ObserveReport(rep)

	name := ""
	if c.States != nil {
		name = c.States.Current()
	}
	c.IO.SetStatus(tui.Status{
		State:         name,
		Files:         c.Files.Len(),
		HistoryTokens: accounting.HistoryLength(c.History.History()),
		Remaining:     rep.TotalTokensRemaining,
		Limit:         rep.ConversationLimit,
	})
}

// snapshot captures the running session for the state store.
func (c *Chat) snapshot() state.Snapshot {
	return state.Snapshot{
		History:      c.History.History(),
		TrackedFiles: c.Files.Paths(),
		Limit:        c.Reconciler.ConversationLimit(),
	}
}
