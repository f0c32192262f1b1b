package tui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// PlainIO writes to a line terminal and reads from a scanner.
type PlainIO struct {
	mu      sync.Mutex
	scanner *bufio.Scanner
	out     io.Writer
	errOut  io.Writer
	width   int
	color   bool
}

// NewPlainIO creates a PlainIO on stdin/stdout.
func NewPlainIO() *PlainIO {
	width := 80
	color := term.IsTerminal(int(os.Stdout.Fd()))
	if color {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
			width = w
		}
	}
	return NewPlainIOWith(os.Stdin, os.Stdout, os.Stderr, width, color)
}

// NewPlainIOWith creates a PlainIO on the given streams. When color is
// false, Markdown is written through unrendered.
func NewPlainIOWith(in io.Reader, out, errOut io.Writer, width int, color bool) *PlainIO {
	s := bufio.NewScanner(in)
	s.Buffer(make([]byte, 1024*1024), 1024*1024)
	return &PlainIO{scanner: s, out: out, errOut: errOut, width: width, color: color}
}

func (p *PlainIO) ReadInput() (string, error) {
	p.mu.Lock()
	fmt.Fprint(p.out, "\n> ")
	p.mu.Unlock()
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimRight(p.scanner.Text(), "\r"), nil
}

func (p *PlainIO) UserMessage(_ string) {
	// The user already sees what they typed.
}

func (p *PlainIO) ThinkingStart() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out)
}

func (p *PlainIO) TextDelta(delta string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.out, delta)
}

func (p *PlainIO) TextDone(_ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out)
}

func (p *PlainIO) TextAborted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, "\n[reply cancelled]")
}

func (p *PlainIO) SystemMessage(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, text)
}

func (p *PlainIO) Markdown(md string) {
	out := md
	if p.color {
		out = RenderMarkdown(md, p.width)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, strings.TrimRight(out, "\n"))
}

func (p *PlainIO) Error(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.errOut, "error: %s\n", msg)
}

func (p *PlainIO) SetStatus(_ Status) {}
