package budget

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// ErrInvalidLimit is returned when a conversation limit is not a
// non-negative integer. The previous limit is kept.
var ErrInvalidLimit = errors.New("conversation limit must be a non-negative integer")

// Limit is the user-adjustable soft cap on retained conversation tokens.
// It is the only mutable budget value and never affects MaxTokens.
type Limit struct {
	mu      sync.Mutex
	value   int
	initial int
}

// NewLimit returns a Limit starting at initial. Negative values fall back
// to DefaultConversationLimit.
func NewLimit(initial int) *Limit {
	if initial < 0 {
		initial = DefaultConversationLimit
	}
	return &Limit{value: initial, initial: initial}
}

// Get returns the current limit.
func (l *Limit) Get() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value
}

// Set replaces the limit.
func (l *Limit) Set(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidLimit, n)
	}
	l.mu.Lock()
	l.value = n
	l.mu.Unlock()
	return nil
}

// SetString parses s and sets the limit, returning the new value.
func (l *Limit) SetString(s string) (int, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil {
		return l.Get(), fmt.Errorf("%w: got %q", ErrInvalidLimit, s)
	}
	if err := l.Set(n); err != nil {
		return l.Get(), err
	}
	return n, nil
}

// Reset restores the limit the Limit was created with.
func (l *Limit) Reset() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.value = l.initial
	return l.value
}

// Initial returns the limit the Limit was created with.
func (l *Limit) Initial() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.initial
}
