// Package state persists named conversation save states.
package state

import (
	"context"
	"errors"
	"time"

	"github.com/neebs12/shell-chat/internal/conversation"
)

// CacheName is the reserved slot that holds an unnamed session when the
// user loads or creates another state.
const CacheName = "cache"

var (
	ErrNotFound = errors.New("save state not found")
	ErrExists   = errors.New("save state already exists")
)

// Snapshot is the part of a session that a save state captures.
type Snapshot struct {
	History      []conversation.Message `json:"conversationHistory"`
	TrackedFiles []string               `json:"trackedFiles"`
	Limit        int                    `json:"limit"`
}

// Record is a stored save state.
type Record struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
	Snapshot
}

// Info is a lightweight summary of a record for listing.
type Info struct {
	Name      string
	Messages  int
	Files     int
	Limit     int
	UpdatedAt time.Time
}

// Store abstracts save-state persistence.
type Store interface {
	// Put inserts or replaces the record with rec.Name.
	Put(ctx context.Context, rec *Record) error
	Get(ctx context.Context, name string) (*Record, error)
	List(ctx context.Context) ([]Info, error)
	Delete(ctx context.Context, name string) error
	DeleteAll(ctx context.Context) (int, error)
	// Rename fails with ErrExists if to is taken.
	Rename(ctx context.Context, from, to string) error
	Close() error
}
