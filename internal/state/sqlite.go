package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS save_states (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL UNIQUE,
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL,
    message_count INTEGER DEFAULT 0,
    file_count    INTEGER DEFAULT 0,
    conv_limit    INTEGER NOT NULL,
    history       TEXT NOT NULL DEFAULT '[]',
    tracked_files TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_save_states_updated_at ON save_states(updated_at);
`

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultDBPath returns ~/.local/share/shell-chat/states.db.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "shell-chat", "states.db"), nil
}

// NewSQLiteStore opens (or creates) the database at dbPath and ensures the
// schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec *Record) error {
	now := time.Now().UTC()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	histJSON, err := json.Marshal(nonNil(rec.History))
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	filesJSON, err := json.Marshal(nonNil(rec.TrackedFiles))
	if err != nil {
		return fmt.Errorf("marshal tracked files: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO save_states
			(id, name, created_at, updated_at, message_count, file_count, conv_limit, history, tracked_files)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			updated_at    = excluded.updated_at,
			message_count = excluded.message_count,
			file_count    = excluded.file_count,
			conv_limit    = excluded.conv_limit,
			history       = excluded.history,
			tracked_files = excluded.tracked_files`,
		rec.ID,
		rec.Name,
		rec.CreatedAt.Format(time.RFC3339Nano),
		rec.UpdatedAt.Format(time.RFC3339Nano),
		len(rec.History),
		len(rec.TrackedFiles),
		rec.Limit,
		string(histJSON),
		string(filesJSON),
	)
	if err != nil {
		return fmt.Errorf("save state %s: %w", rec.Name, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, name string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at, conv_limit, history, tracked_files
		FROM save_states WHERE name = ?`, name)

	var rec Record
	var createdAt, updatedAt, histJSON, filesJSON string
	err := row.Scan(&rec.ID, &rec.Name, &createdAt, &updatedAt, &rec.Limit, &histJSON, &filesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", name, err)
	}

	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if err := json.Unmarshal([]byte(histJSON), &rec.History); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	if err := json.Unmarshal([]byte(filesJSON), &rec.TrackedFiles); err != nil {
		return nil, fmt.Errorf("unmarshal tracked files: %w", err)
	}
	return &rec, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Info, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, message_count, file_count, conv_limit, updated_at
		FROM save_states ORDER BY updated_at DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var info Info
		var updatedAt string
		if err := rows.Scan(&info.Name, &info.Messages, &info.Files, &info.Limit, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		info.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM save_states WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

func (s *SQLiteStore) DeleteAll(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM save_states")
	if err != nil {
		return 0, fmt.Errorf("delete states: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) Rename(ctx context.Context, from, to string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	defer tx.Rollback()

	var taken int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM save_states WHERE name = ?", to).Scan(&taken); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	if taken > 0 {
		return fmt.Errorf("%w: %s", ErrExists, to)
	}

	result, err := tx.ExecContext(ctx,
		"UPDATE save_states SET name = ?, updated_at = ? WHERE name = ?",
		to, time.Now().UTC().Format(time.RFC3339Nano), from)
	if err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, from)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
