package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/neebs12/shell-chat/internal/budget"
)

// RenderMarkdown renders md for a terminal of the given width. On any
// renderer error the source text is returned unchanged.
func RenderMarkdown(md string, width int) string {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(max(width-4, 20)),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// remainingMark is ✅ while there is strictly positive headroom.
func remainingMark(remaining int) string {
	if remaining > 0 {
		return "✅"
	}
	return "❌"
}

// FormatTokenReport renders a report as markdown. Files are listed
// largest first.
func FormatTokenReport(rep budget.Report) string {
	var sb strings.Builder
	sb.WriteString("### Token Report\n\n")
	fmt.Fprintf(&sb, "- **Total Tokens Remaining:** %d %s\n", rep.TotalTokensRemaining, remainingMark(rep.TotalTokensRemaining))
	fmt.Fprintf(&sb, "- **Tokens Budgeted:** %d\n", rep.TokensBudgeted)
	fmt.Fprintf(&sb, "- **Tokens Used:** %d\n", rep.TokensUsed)
	fmt.Fprintf(&sb, "- **Total for Files:** %d\n", rep.TotalForFiles)
	sb.WriteString("\n")
	writeFileTable(&sb, rep)
	fmt.Fprintf(&sb, "\n- **System Prompt Total Tokens:** %d\n", rep.SystemPromptTotalTokens)
	fmt.Fprintf(&sb, "  - Prefix Instruction: %d\n", rep.SystemPromptBreakdown.Prefix)
	fmt.Fprintf(&sb, "  - Injection Instruction: %d\n", rep.SystemPromptBreakdown.Injection)
	fmt.Fprintf(&sb, "  - Suffix Instruction: %d\n", rep.SystemPromptBreakdown.Suffix)
	fmt.Fprintf(&sb, "- **Conversation Buffer:** %d\n", rep.ConversationBuffer)
	fmt.Fprintf(&sb, "- **Error Correction:** %d\n", rep.ErrorCorrection)
	fmt.Fprintf(&sb, "- **(Unaccounted) Conversation History:** %d\n", rep.UnaccountedConversationHistory)
	fmt.Fprintf(&sb, "- **Conversation Limit:** %d\n", rep.ConversationLimit)
	fmt.Fprintf(&sb, "- **Max Completion Tokens:** %d\n", rep.MaxCompletionTokens)
	fmt.Fprintf(&sb, "- **Reserved Input (informational):** %d\n", rep.ReservedInputTokens)
	return sb.String()
}

// FormatFileTokens renders the remaining budget and the per-file
// breakdown only.
func FormatFileTokens(rep budget.Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**Total Tokens Remaining:** %d %s\n\n", rep.TotalTokensRemaining, remainingMark(rep.TotalTokensRemaining))
	writeFileTable(&sb, rep)
	return sb.String()
}

func writeFileTable(sb *strings.Builder, rep budget.Report) {
	files := rep.FilesByTokens()
	if len(files) == 0 {
		sb.WriteString("_No files tracked._\n")
		return
	}
	sb.WriteString("| File | Tokens |\n|---|---:|\n")
	for _, f := range files {
		fmt.Fprintf(sb, "| %s | %d |\n", escapeCell(f.FileName), f.TokenLength)
	}
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// FormatStatus renders the one-line status bar text.
func FormatStatus(s Status) string {
	name := s.State
	if name == "" {
		name = "unsaved"
	}
	return fmt.Sprintf(" %s | files: %d | history: %d | remaining: %d %s | limit: %d",
		name, s.Files, s.HistoryTokens, s.Remaining, remainingMark(s.Remaining), s.Limit)
}
