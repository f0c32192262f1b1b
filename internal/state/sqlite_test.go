package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/neebs12/shell-chat/internal/conversation"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "states.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleSnapshot() Snapshot {
	return Snapshot{
		History: []conversation.Message{
			{Role: conversation.RoleUser, Content: "hello", TokenLength: 1},
			{Role: conversation.RoleAI, Content: "hi there", TokenLength: 2},
		},
		TrackedFiles: []string{"/tmp/a.go"},
		Limit:        4000,
	}
}

func TestPutAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &Record{Name: "work", Snapshot: sampleSnapshot()}
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if rec.ID == "" || rec.UpdatedAt.IsZero() {
		t.Error("Put should assign ID and timestamps")
	}

	got, err := store.Get(ctx, "work")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Limit != 4000 {
		t.Errorf("Limit = %d, want 4000", got.Limit)
	}
	if len(got.History) != 2 || got.History[1].Role != conversation.RoleAI || got.History[1].Content != "hi there" {
		t.Errorf("History = %+v", got.History)
	}
	if len(got.TrackedFiles) != 1 || got.TrackedFiles[0] != "/tmp/a.go" {
		t.Errorf("TrackedFiles = %v", got.TrackedFiles)
	}
}

func TestPutReplacesByName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &Record{Name: "work", Snapshot: sampleSnapshot()}
	if err := store.Put(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, &Record{Name: "work", Snapshot: Snapshot{Limit: 7}}); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "work")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != first.ID {
		t.Errorf("ID changed on replace: %s -> %s", first.ID, got.ID)
	}
	if got.Limit != 7 || len(got.History) != 0 {
		t.Errorf("record not replaced: %+v", got)
	}
	if got.History == nil {
		t.Error("empty history should decode as an empty slice")
	}
}

func TestGetNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListDeleteRename(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, n := range []string{"a", "b", "c"} {
		if err := store.Put(ctx, &Record{Name: n, Snapshot: sampleSnapshot()}); err != nil {
			t.Fatal(err)
		}
	}

	infos, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 3 {
		t.Fatalf("List = %d entries, want 3", len(infos))
	}
	if infos[0].Messages != 2 || infos[0].Files != 1 || infos[0].Limit != 4000 {
		t.Errorf("info = %+v", infos[0])
	}

	if err := store.Rename(ctx, "a", "b"); !errors.Is(err, ErrExists) {
		t.Errorf("rename onto taken name: err = %v", err)
	}
	if err := store.Rename(ctx, "zz", "yy"); !errors.Is(err, ErrNotFound) {
		t.Errorf("rename missing: err = %v", err)
	}
	if err := store.Rename(ctx, "a", "d"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := store.Get(ctx, "d"); err != nil {
		t.Errorf("renamed record missing: %v", err)
	}

	if err := store.Delete(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete old name: err = %v", err)
	}
	if err := store.Delete(ctx, "d"); err != nil {
		t.Fatal(err)
	}

	n, err := store.DeleteAll(ctx)
	if err != nil || n != 2 {
		t.Errorf("DeleteAll = %d, %v; want 2", n, err)
	}
}
