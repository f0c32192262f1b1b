package provider

import (
	"context"
	"sync"
)

// Scripted is an in-memory Provider that streams canned replies, one per
// call. It records every request it receives. When Block is set, each
// reply pauses after its first chunk until the call's context ends.
type Scripted struct {
	mu       sync.Mutex
	Replies  [][]string
	Err      error
	Block    bool
	requests []ChatRequest
}

func (s *Scripted) Name() string         { return "scripted" }
func (s *Scripted) DefaultModel() string { return "scripted" }

// Requests returns a copy of every request seen so far.
func (s *Scripted) Requests() []ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Scripted) Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error) {
	if req.empty() {
		return nil, ErrEmptyRequest
	}
	s.mu.Lock()
	r := *req
	r.Messages = append([]Message(nil), req.Messages...)
	s.requests = append(s.requests, r)
	var chunks []string
	if len(s.Replies) > 0 {
		chunks = s.Replies[0]
		s.Replies = s.Replies[1:]
	}
	err, block := s.Err, s.Block
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	ch := make(chan Event, len(chunks)+1)
	go func() {
		defer close(ch)
		for i, c := range chunks {
			if ctx.Err() != nil {
				ch <- Event{Type: EventError, Error: ctx.Err()}
				return
			}
			ch <- Event{Type: EventTextDelta, TextDelta: c}
			if block && i == 0 {
				<-ctx.Done()
			}
		}
		if block && len(chunks) == 0 {
			<-ctx.Done()
		}
		if ctx.Err() != nil {
			ch <- Event{Type: EventError, Error: ctx.Err()}
			return
		}
		ch <- Event{Type: EventDone, Usage: &Usage{}}
	}()
	return ch, nil
}
