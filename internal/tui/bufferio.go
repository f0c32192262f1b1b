package tui

import (
	"io"
	"strings"
	"sync"
)

// BufferIO feeds scripted input lines and captures everything written.
// It backs one-shot runs and chat-loop tests.
type BufferIO struct {
	mu      sync.Mutex
	inputs  []string
	text    strings.Builder
	replies []string
	system  []string
	md      []string
	errs    []string
	aborted int
	status  Status
}

var _ IO = (*BufferIO)(nil)

// NewBufferIO creates a BufferIO that returns inputs in order, then io.EOF.
func NewBufferIO(inputs ...string) *BufferIO {
	return &BufferIO{inputs: inputs}
}

func (b *BufferIO) ReadInput() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.inputs) == 0 {
		return "", io.EOF
	}
	line := b.inputs[0]
	b.inputs = b.inputs[1:]
	return line, nil
}

func (b *BufferIO) UserMessage(_ string) {}
func (b *BufferIO) ThinkingStart()       {}

func (b *BufferIO) TextDelta(delta string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text.WriteString(delta)
}

func (b *BufferIO) TextDone(fullText string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies = append(b.replies, fullText)
}

func (b *BufferIO) TextAborted() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.aborted++
}

func (b *BufferIO) SystemMessage(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.system = append(b.system, text)
}

func (b *BufferIO) Markdown(md string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.md = append(b.md, md)
}

func (b *BufferIO) Error(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs = append(b.errs, msg)
}

func (b *BufferIO) SetStatus(s Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = s
}

// Output returns all streamed text, including cancelled replies.
func (b *BufferIO) Output() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text.String()
}

// Replies returns the full text of every completed reply.
func (b *BufferIO) Replies() []string { return b.snapshot(&b.replies) }

// System returns every system message.
func (b *BufferIO) System() []string { return b.snapshot(&b.system) }

// MarkdownBlocks returns every markdown block.
func (b *BufferIO) MarkdownBlocks() []string { return b.snapshot(&b.md) }

// Errors returns every error message.
func (b *BufferIO) Errors() []string { return b.snapshot(&b.errs) }

// Aborted returns how many replies were cancelled.
func (b *BufferIO) Aborted() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.aborted
}

// LastStatus returns the most recent status update.
func (b *BufferIO) LastStatus() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// AllText joins system messages, markdown blocks and errors, for
// substring assertions.
func (b *BufferIO) AllText() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	parts := append(append(append([]string(nil), b.system...), b.md...), b.errs...)
	return strings.Join(parts, "\n")
}

func (b *BufferIO) snapshot(s *[]string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), (*s)...)
}
