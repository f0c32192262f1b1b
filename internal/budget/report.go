package budget

import (
	"cmp"
	"slices"

	"github.com/neebs12/shell-chat/internal/accounting"
)

// PromptBreakdown is the token count of each system prompt part.
type PromptBreakdown struct {
	Prefix    int
	Injection int
	Suffix    int
}

// Report is a read-only snapshot of where the budget goes. It is always
// derived fresh; TokensUsed + TotalTokensRemaining == TokensBudgeted.
type Report struct {
	TokensBudgeted       int
	TokensUsed           int
	TotalTokensRemaining int

	TotalForFiles int
	FileBreakdown []accounting.FileTokens

	SystemPromptTotalTokens int
	SystemPromptBreakdown   PromptBreakdown

	ConversationBuffer int
	ErrorCorrection    int

	// UnaccountedConversationHistory is the full (untruncated) history
	// cost. It is not part of TokensUsed; the conversation buffer stands
	// in for it.
	UnaccountedConversationHistory int
	ConversationLimit              int
	MaxCompletionTokens            int

	// ReservedInputTokens is informational only.
	ReservedInputTokens int
}

// TokenReport aggregates every accountant into a Report. It has no side
// effects and performs no truncation.
func (r *Reconciler) TokenReport() Report {
	files := r.files.Files()
	_, sp := r.SystemPrompt()
	ft := accounting.Files(r.counter, files)
	history := accounting.History(r.history.History())

	used := sp.Complete + r.config.ReservedConversationTokens + r.config.ErrorCorrectionTokens
	return Report{
		TokensBudgeted:       r.config.MaxTokens,
		TokensUsed:           used,
		TotalTokensRemaining: r.config.MaxTokens - used,

		TotalForFiles: ft.Total,
		FileBreakdown: ft.PerFile,

		SystemPromptTotalTokens: sp.Complete,
		SystemPromptBreakdown: PromptBreakdown{
			Prefix:    sp.Prefix,
			Injection: sp.Injection,
			Suffix:    sp.Suffix,
		},

		ConversationBuffer:             r.config.ReservedConversationTokens,
		ErrorCorrection:                r.config.ErrorCorrectionTokens,
		UnaccountedConversationHistory: history.TokenLength,
		ConversationLimit:              r.limit.Get(),
		MaxCompletionTokens:            r.config.MaxCompletionTokens,
		ReservedInputTokens:            r.config.ReservedInputTokens,
	}
}

// FilesByTokens returns the file breakdown sorted by token length,
// largest first, ties broken by file name.
func (rep Report) FilesByTokens() []accounting.FileTokens {
	sorted := slices.Clone(rep.FileBreakdown)
	slices.SortStableFunc(sorted, func(a, b accounting.FileTokens) int {
		if c := cmp.Compare(b.TokenLength, a.TokenLength); c != 0 {
			return c
		}
		return cmp.Compare(a.FileName, b.FileName)
	})
	return sorted
}
