package budget

import (
	"slices"

	"github.com/neebs12/shell-chat/internal/accounting"
	"github.com/neebs12/shell-chat/internal/conversation"
	"github.com/neebs12/shell-chat/internal/prompt"
	"github.com/neebs12/shell-chat/internal/tokenizer"
)

// FileSource supplies the tracked files. *prompt.FileSet implements it.
type FileSource interface {
	Files() []prompt.TrackedFile
}

// HistorySource supplies the full conversation. *conversation.Store
// implements it.
type HistorySource interface {
	History() []conversation.Message
}

// Reconciler answers admissibility and truncation questions. It keeps no
// state of its own: every call re-reads its sources and recomputes from
// scratch, so nothing needs rolling back when a turn is cancelled.
type Reconciler struct {
	config  Config
	limit   *Limit
	counter tokenizer.Counter
	files   FileSource
	history HistorySource
}

// NewReconciler wires a Reconciler to its sources.
func NewReconciler(cfg Config, limit *Limit, counter tokenizer.Counter, files FileSource, history HistorySource) *Reconciler {
	if limit == nil {
		limit = NewLimit(DefaultConversationLimit)
	}
	return &Reconciler{
		config:  cfg,
		limit:   limit,
		counter: counter,
		files:   files,
		history: history,
	}
}

// Config returns the immutable budget configuration.
func (r *Reconciler) Config() Config { return r.config }

// SystemPrompt assembles the system prompt for the current file set and
// counts its components.
func (r *Reconciler) SystemPrompt() (prompt.Components, accounting.PromptTotals) {
	c := prompt.Assemble(r.files.Files())
	return c, accounting.SystemPrompt(r.counter, c)
}

// FileSetCheck is the outcome of Operation A.
type FileSetCheck struct {
	TooLarge           bool
	SystemPromptTokens int
	TotalUsed          int
	MaxTokens          int
}

// Over is how many tokens TotalUsed exceeds MaxTokens by (negative when
// there is headroom).
func (c FileSetCheck) Over() int { return c.TotalUsed - c.MaxTokens }

// CheckFileSet treats the reserved conversation buffer as already spent
// and rejects the file set if the system prompt plus reserves exceeds
// MaxTokens.
func (r *Reconciler) CheckFileSet() FileSetCheck {
	_, sp := r.SystemPrompt()
	used := sp.Complete + r.config.ReservedConversationTokens + r.config.ErrorCorrectionTokens
	return FileSetCheck{
		TooLarge:           used > r.config.MaxTokens,
		SystemPromptTokens: sp.Complete,
		TotalUsed:          used,
		MaxTokens:          r.config.MaxTokens,
	}
}

// IsFileSetTooLarge reports whether the tracked files leave no room for the
// reserved conversation buffer.
func (r *Reconciler) IsFileSetTooLarge() bool {
	return r.CheckFileSet().TooLarge
}

// InputCheck is the outcome of Operation B.
type InputCheck struct {
	TooLarge         bool
	ExceedsSoftLimit bool
	InputTokens      int
	Remaining        int
	SoftLimit        int
}

// CheckInput measures candidate input against the tokens left after the
// system prompt, error correction and completion reserve. Remaining may
// be negative, in which case any non-empty input is rejected. Exceeding
// the soft conversation limit only sets ExceedsSoftLimit.
func (r *Reconciler) CheckInput(text string) InputCheck {
	_, sp := r.SystemPrompt()
	remaining := r.remaining(sp.Complete)
	n := r.counter.Count(text)
	soft := r.limit.Get()
	return InputCheck{
		TooLarge:         n > remaining,
		ExceedsSoftLimit: n > soft,
		InputTokens:      n,
		Remaining:        remaining,
		SoftLimit:        soft,
	}
}

// IsInputTooLarge reports whether text can never fit in the window.
func (r *Reconciler) IsInputTooLarge(text string) bool {
	return r.CheckInput(text).TooLarge
}

// Truncation is the outcome of Operation C.
type Truncation struct {
	History     []conversation.Message
	Dropped     int
	TokenLength int
	Limit       int
}

// ControllingLimit is min(conversation limit, |remaining|). An overdrawn
// budget of -N truncates as if there were N tokens of headroom.
func (r *Reconciler) ControllingLimit() int {
	_, sp := r.SystemPrompt()
	return r.controllingLimit(sp.Complete)
}

func (r *Reconciler) controllingLimit(systemPromptTokens int) int {
	return min(r.limit.Get(), abs(r.remaining(systemPromptTokens)))
}

// Truncate drops the oldest messages until the history fits the
// controlling limit.
func (r *Reconciler) Truncate() Truncation {
	_, sp := r.SystemPrompt()
	return TruncateToLimit(r.history.History(), r.controllingLimit(sp.Complete))
}

// TruncatedHistory returns the newest contiguous suffix of the history
// whose accounted length fits the controlling limit. It may be empty.
func (r *Reconciler) TruncatedHistory() []conversation.Message {
	return r.Truncate().History
}

// TruncateToLimit drops messages from the front of history, one at a time,
// until its accounted length is at most limit or nothing is left. Each
// drop subtracts the dropped message's memoized cost instead of
// re-summing the remainder. The result never aliases history.
func TruncateToLimit(history []conversation.Message, limit int) Truncation {
	total := accounting.HistoryLength(history)
	start := 0
	for start < len(history) && total > limit {
		total -= accounting.MessageCost(history[start])
		start++
	}
	kept := slices.Clone(history[start:])
	if kept == nil {
		kept = []conversation.Message{}
	}
	return Truncation{
		History:     kept,
		Dropped:     start,
		TokenLength: total,
		Limit:       limit,
	}
}

// Limit returns the soft conversation limit shared with the caller.
func (r *Reconciler) Limit() *Limit { return r.limit }

// ConversationLimit returns the soft conversation limit.
func (r *Reconciler) ConversationLimit() int { return r.limit.Get() }

// SetConversationLimit changes the soft conversation limit.
func (r *Reconciler) SetConversationLimit(n int) error { return r.limit.Set(n) }

// ResetConversationLimit restores the initial soft limit.
func (r *Reconciler) ResetConversationLimit() int { return r.limit.Reset() }

func (r *Reconciler) remaining(systemPromptTokens int) int {
	used := systemPromptTokens + r.config.ErrorCorrectionTokens + r.config.MaxCompletionTokens
	return r.config.MaxTokens - used
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
