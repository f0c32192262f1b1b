package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrReserved is returned for operations that may not target the
	// cache slot by name.
	ErrReserved = errors.New(`"cache" is reserved`)
	// ErrCurrent is returned when an operation would load or delete the
	// state that is currently active.
	ErrCurrent = errors.New("state is the current state")
	// ErrNoName is returned when saving an unnamed session without a name.
	ErrNoName = errors.New("no save name given and the session is unnamed")
	// ErrUnsaved is returned when renaming a session that was never saved.
	ErrUnsaved = errors.New("save the session before renaming it")
	// ErrInvalidName is returned for empty or whitespace-containing names.
	ErrInvalidName = errors.New("invalid save name")
)

// Manager tracks which save state the session belongs to and applies the
// save/load rules on top of a Store.
type Manager struct {
	store   Store
	current string
}

// NewManager returns a Manager with no current state. The cache slot is
// cleared, so it only ever holds work from this process.
func NewManager(ctx context.Context, store Store) (*Manager, error) {
	if err := store.Delete(ctx, CacheName); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return &Manager{store: store}, nil
}

// Current returns the active state name, or "" for an unnamed session.
func (m *Manager) Current() string { return m.current }

// Save writes snap under name, or under the current name when name is
// empty. An existing state other than the current one is only replaced
// when overwrite is set. It returns the name written.
func (m *Manager) Save(ctx context.Context, name string, overwrite bool, snap Snapshot) (string, error) {
	if name == "" {
		if m.current == "" {
			return "", ErrNoName
		}
		name = m.current
	}
	if err := validName(name); err != nil {
		return "", err
	}
	if name == CacheName {
		return "", ErrReserved
	}
	if name != m.current && !overwrite {
		if _, err := m.store.Get(ctx, name); err == nil {
			return "", fmt.Errorf("%w: %s (use -o to overwrite)", ErrExists, name)
		} else if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	if err := m.put(ctx, name, snap); err != nil {
		return "", err
	}
	m.current = name
	return name, nil
}

// Load stashes the running session, either under its own name or in the
// cache slot when unnamed, then returns the named state and makes it
// current. cached reports whether the cache slot was written.
func (m *Manager) Load(ctx context.Context, name string, running Snapshot) (rec *Record, cached bool, err error) {
	if name == CacheName {
		return nil, false, ErrReserved
	}
	if name == m.current && name != "" {
		return nil, false, fmt.Errorf("%w: %s", ErrCurrent, name)
	}
	rec, err = m.store.Get(ctx, name)
	if err != nil {
		return nil, false, err
	}
	cached, err = m.stash(ctx, running)
	if err != nil {
		return nil, cached, err
	}
	m.current = name
	return rec, cached, nil
}

// New stashes the running session like Load and creates an empty state
// with the given limit, making it current.
func (m *Manager) New(ctx context.Context, name string, limit int, running Snapshot) (cached bool, err error) {
	if err := validName(name); err != nil {
		return false, err
	}
	if name == CacheName {
		return false, ErrReserved
	}
	if _, err := m.store.Get(ctx, name); err == nil {
		return false, fmt.Errorf("%w: %s", ErrExists, name)
	} else if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	cached, err = m.stash(ctx, running)
	if err != nil {
		return cached, err
	}
	if err := m.put(ctx, name, Snapshot{Limit: limit}); err != nil {
		return cached, err
	}
	m.current = name
	return cached, nil
}

// Delete removes a state other than the current one.
func (m *Manager) Delete(ctx context.Context, name string) error {
	if name == m.current && name != "" {
		return fmt.Errorf("%w: %s", ErrCurrent, name)
	}
	return m.store.Delete(ctx, name)
}

// DeleteAll removes every state and detaches the session from its name.
func (m *Manager) DeleteAll(ctx context.Context) (int, error) {
	n, err := m.store.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	m.current = ""
	return n, nil
}

// Rename gives the current state a new name.
func (m *Manager) Rename(ctx context.Context, to string) error {
	if err := validName(to); err != nil {
		return err
	}
	if to == CacheName {
		return ErrReserved
	}
	if m.current == "" {
		return ErrUnsaved
	}
	if to == m.current {
		return fmt.Errorf("%w: already named %s", ErrExists, to)
	}
	if err := m.store.Rename(ctx, m.current, to); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUnsaved
		}
		return err
	}
	m.current = to
	return nil
}

// MoveCache turns the cache slot into a named state.
func (m *Manager) MoveCache(ctx context.Context, name string, overwrite bool) error {
	if err := validName(name); err != nil {
		return err
	}
	if name == CacheName {
		return ErrReserved
	}
	rec, err := m.store.Get(ctx, CacheName)
	if err != nil {
		return err
	}
	if _, err := m.store.Get(ctx, name); err == nil {
		if !overwrite {
			return fmt.Errorf("%w: %s (use -o to overwrite)", ErrExists, name)
		}
		if name == m.current {
			return fmt.Errorf("%w: %s", ErrCurrent, name)
		}
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := m.put(ctx, name, rec.Snapshot); err != nil {
		return err
	}
	return m.store.Delete(ctx, CacheName)
}

// List returns every stored state, including the cache slot.
func (m *Manager) List(ctx context.Context) ([]Info, error) {
	return m.store.List(ctx)
}

func (m *Manager) stash(ctx context.Context, running Snapshot) (cached bool, err error) {
	if m.current != "" {
		return false, m.put(ctx, m.current, running)
	}
	return true, m.put(ctx, CacheName, running)
}

func (m *Manager) put(ctx context.Context, name string, snap Snapshot) error {
	return m.store.Put(ctx, &Record{Name: name, Snapshot: snap})
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, " \t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
