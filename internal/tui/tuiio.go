package tui

import (
	"context"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// TuiIO implements IO by sending messages to a bubbletea Program.
// All methods are safe to call from any goroutine.
type TuiIO struct {
	program *tea.Program
	inputCh chan inputResult

	mu         sync.Mutex
	cancelTurn context.CancelFunc
}

var (
	_ IO            = (*TuiIO)(nil)
	_ TurnCanceller = (*TuiIO)(nil)
)

func (t *TuiIO) ReadInput() (string, error) {
	t.program.Send(readInputMsg{})

	res := <-t.inputCh
	if res.err != nil {
		return "", io.EOF
	}
	return res.text, nil
}

func (t *TuiIO) UserMessage(text string) { t.program.Send(userMsg{text: text}) }
func (t *TuiIO) ThinkingStart()          { t.program.Send(thinkingStartMsg{}) }
func (t *TuiIO) TextDelta(delta string)  { t.program.Send(textDeltaMsg{delta: delta}) }
func (t *TuiIO) TextDone(fullText string) {
	t.program.Send(textDoneMsg{fullText: fullText})
}
func (t *TuiIO) TextAborted()              { t.program.Send(textAbortedMsg{}) }
func (t *TuiIO) SystemMessage(text string) { t.program.Send(systemMsg{text: text}) }
func (t *TuiIO) Markdown(md string)        { t.program.Send(markdownMsg{md: md}) }
func (t *TuiIO) Error(msg string)          { t.program.Send(errorMsg{text: msg}) }
func (t *TuiIO) SetStatus(s Status)        { t.program.Send(statusMsg{status: s}) }

// SetTurnCancel registers the cancel function of the reply in flight.
func (t *TuiIO) SetTurnCancel(cancel context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelTurn = cancel
}

// ClearTurnCancel forgets the cancel function when the reply ends.
func (t *TuiIO) ClearTurnCancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelTurn = nil
}

// CancelTurn cancels the reply in flight. It reports whether there was one.
func (t *TuiIO) CancelTurn() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelTurn != nil {
		t.cancelTurn()
		t.cancelTurn = nil
		return true
	}
	return false
}
