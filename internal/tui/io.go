// Package tui defines the IO interface between the chat loop and the
// user interface layer, plus PlainIO (line terminal), BufferIO (scripted,
// for tests and one-shot runs) and TuiIO (bubbletea).
package tui

import "context"

// IO is the contract between the chat loop and the UI layer. Methods may
// be called from the turn goroutine and the input loop concurrently.
type IO interface {
	// ReadInput blocks until the user submits a line of input.
	// Returns ("", io.EOF) when the user quits.
	ReadInput() (string, error)

	// UserMessage echoes a submitted natural-language message.
	UserMessage(text string)

	// ThinkingStart signals that a model request is in flight.
	ThinkingStart()

	// TextDelta appends an incremental chunk of the reply.
	TextDelta(delta string)

	// TextDone ends a reply; fullText is every delta joined.
	TextDone(fullText string)

	// TextAborted ends a reply that was cancelled before completion.
	TextAborted()

	// SystemMessage displays a plain notice.
	SystemMessage(text string)

	// Markdown displays a rich block such as the token report.
	Markdown(md string)

	// Error displays an error with prominent styling.
	Error(msg string)

	// SetStatus updates the budget shown in the status area.
	SetStatus(s Status)
}

// Status is the budget summary shown in the status bar.
type Status struct {
	State         string
	Files         int
	HistoryTokens int
	Remaining     int
	Limit         int
}

// TurnCanceller is implemented by IOs that let the user cancel a reply
// in flight (the TUI binds Esc).
type TurnCanceller interface {
	SetTurnCancel(cancel context.CancelFunc)
	ClearTurnCancel()
}
