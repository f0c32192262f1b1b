package conversation

import (
	"fmt"
	"slices"
	"sync"

	"github.com/neebs12/shell-chat/internal/tokenizer"
)

// Store is the ordered message log. It is the only owner of the history:
// readers get copies and every write goes through Append, Reset or
// ReplaceAll.
type Store struct {
	mu       sync.RWMutex
	counter  tokenizer.Counter
	messages []Message
}

// NewStore returns an empty Store that measures messages with counter.
func NewStore(counter tokenizer.Counter) *Store {
	return &Store{counter: counter}
}

// Append adds a message, tokenizing its content once.
func (s *Store) Append(role Role, content string) (Message, error) {
	if !role.Valid() {
		return Message{}, fmt.Errorf("append message: invalid role %v", role)
	}
	msg := Message{
		Role:        role,
		Content:     content,
		TokenLength: s.counter.Count(content),
	}

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	return msg, nil
}

// AppendUser is shorthand for Append(RoleUser, content).
func (s *Store) AppendUser(content string) Message {
	msg, _ := s.Append(RoleUser, content)
	return msg
}

// AppendAI is shorthand for Append(RoleAI, content).
func (s *Store) AppendAI(content string) Message {
	msg, _ := s.Append(RoleAI, content)
	return msg
}

// History returns a copy of every message in chronological order.
func (s *Store) History() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Reset empties the history.
func (s *Store) Reset() {
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()
}

// ReplaceAll swaps the whole history, e.g. when a saved state is loaded.
// Token lengths are recounted with this store's counter because the saved
// history may have been measured for a different model.
func (s *Store) ReplaceAll(msgs []Message) error {
	replaced := make([]Message, 0, len(msgs))
	for i, m := range msgs {
		if !m.Role.Valid() {
			return fmt.Errorf("replace history: message %d has invalid role %v", i, m.Role)
		}
		m.TokenLength = s.counter.Count(m.Content)
		replaced = append(replaced, m)
	}

	s.mu.Lock()
	s.messages = replaced
	s.mu.Unlock()
	return nil
}
