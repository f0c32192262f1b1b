package tui

import (
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// RunTUI starts the bubbletea program in alt-screen mode and runs chatFn
// concurrently. It blocks until either chatFn returns or the user quits.
func RunTUI(chatFn func(io IO) error) error {
	inputCh := make(chan inputResult, 1)
	model := NewModel(inputCh)

	tuiIO := &TuiIO{inputCh: inputCh}
	model.cancelTurnFn = tuiIO.CancelTurn

	p := tea.NewProgram(model, tea.WithAltScreen())
	tuiIO.program = p

	var (
		chatErr error
		wg      sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		chatErr = chatFn(tuiIO)
		p.Send(chatDoneMsg{err: chatErr})
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	// The input loop may still be blocked in ReadInput.
	select {
	case inputCh <- inputResult{err: fmt.Errorf("tui closed")}:
	default:
	}
	wg.Wait()

	return chatErr
}
