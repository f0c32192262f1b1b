// Package provider defines the streaming model-call interface and its
// adapters. Each adapter normalises a vendor's streaming response into a
// sequence of Events.
package provider

import (
	"context"
	"errors"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the request history.
type Message struct {
	Role Role
	Text string
}

// ChatRequest is the vendor-neutral request.
type ChatRequest struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	// MaxTokens caps the completion. Zero lets the adapter pick.
	MaxTokens   int
	Temperature float64
}

type EventType int

const (
	// EventTextDelta carries an incremental piece of reply text.
	EventTextDelta EventType = iota

	// EventDone ends a successful reply and carries usage when known.
	EventDone

	// EventError ends a failed or cancelled reply.
	EventError
)

// Event is one item of a streamed reply.
type Event struct {
	Type      EventType
	TextDelta string
	Usage     *Usage
	Error     error
}

// Usage is what the vendor reports for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ErrEmptyRequest is returned when a request has neither messages nor a
// system prompt. A system prompt alone is a valid request.
var ErrEmptyRequest = errors.New("chat request has no messages or system prompt")

func (r *ChatRequest) empty() bool {
	return len(r.Messages) == 0 && r.SystemPrompt == ""
}

// Provider is implemented by every model backend.
type Provider interface {
	// Chat starts a streamed reply. The channel yields events until an
	// EventDone or EventError and is then closed. Callers must drain it.
	Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error)

	// Name identifies the backend, e.g. "openai" or "anthropic".
	Name() string

	DefaultModel() string
}

// Collect drains a reply into a single string. It returns the reply text
// gathered so far together with the first error event.
func Collect(ch <-chan Event) (string, *Usage, error) {
	var (
		text  []byte
		usage *Usage
		err   error
	)
	for ev := range ch {
		switch ev.Type {
		case EventTextDelta:
			text = append(text, ev.TextDelta...)
		case EventDone:
			usage = ev.Usage
		case EventError:
			if err == nil {
				err = ev.Error
			}
		}
	}
	return string(text), usage, err
}
