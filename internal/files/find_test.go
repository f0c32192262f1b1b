package files

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func writeTree(t *testing.T, root string, paths ...string) {
	t.Helper()
	for _, p := range paths {
		full := filepath.Join(root, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func rel(t *testing.T, root string, abs []string) []string {
	t.Helper()
	out := make([]string, len(abs))
	for i, p := range abs {
		r, err := filepath.Rel(root, p)
		if err != nil {
			t.Fatal(err)
		}
		out[i] = filepath.ToSlash(r)
	}
	slices.Sort(out)
	return out
}

func TestFindByName(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"main.go",
		"cmd/main.go",
		"internal/util/util.go",
		"node_modules/pkg/main.go",
		".git/main.go",
		"a/b/c/d/main.go",
		"a/b/c/main.go",
	)

	f := NewFinder(root)
	results, err := f.FindByName(context.Background(), "main.go", "util/util.go", "missing.go")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}

	got := rel(t, root, results[0].Paths)
	want := []string{"a/b/c/main.go", "cmd/main.go", "main.go"}
	if !slices.Equal(got, want) {
		t.Errorf("main.go matches = %v, want %v", got, want)
	}
	if got := rel(t, root, results[1].Paths); !slices.Equal(got, []string{"internal/util/util.go"}) {
		t.Errorf("partial path matches = %v", got)
	}
	if len(results[2].Paths) != 0 {
		t.Errorf("missing.go matched %v", results[2].Paths)
	}
}

func TestUnique(t *testing.T) {
	got := Unique([]Result{
		{Query: "a", Paths: []string{"/x", "/y"}},
		{Query: "b", Paths: []string{"/y", "/z"}},
	})
	if !slices.Equal(got, []string{"/x", "/y", "/z"}) {
		t.Errorf("Unique = %v", got)
	}
}

func TestFindByPatterns(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"main.go",
		"main_test.go",
		"internal/a.go",
		"internal/gen/b.go",
		"vendor/dep/c.go",
		".git/hooks/d.go",
		"node_modules/pkg/e.go",
		"README.md",
	)
	if err := os.WriteFile(filepath.Join(root, ".gitignore"), []byte("# deps\nvendor/\n!keep\n\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := NewFinder(root)
	got, err := f.FindByPatterns(context.Background(), "**/*.go", "!**/*_test.go", "!internal/gen/**")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"internal/a.go", "main.go"}
	if g := rel(t, root, got); !slices.Equal(g, want) {
		t.Errorf("FindByPatterns = %v, want %v", g, want)
	}
}

func TestFindByPatterns_NoIgnoreFile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a.txt", "dir/b.txt")

	got, err := NewFinder(root).FindByPatterns(context.Background(), "**/*.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("got %v", got)
	}
}

func TestFindByPatterns_InvalidPattern(t *testing.T) {
	_, err := NewFinder(t.TempDir()).FindByPatterns(context.Background(), "[a-")
	var pe *PatternError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want PatternError", err)
	}
}

func TestFindByName_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "a/x.go")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewFinder(root).FindByName(ctx, "x.go"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
