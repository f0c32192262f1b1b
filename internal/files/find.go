// Package files locates files on disk for the file-tracking commands.
package files

import (
	"bufio"
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultIgnoreDirs are never searched.
var DefaultIgnoreDirs = []string{"node_modules", ".git", ".vscode", "dist", "build"}

// DefaultMaxDepth bounds how deep FindByName walks below the root.
const DefaultMaxDepth = 4

// Finder searches a directory tree. The zero value is not usable; use
// NewFinder.
type Finder struct {
	Root       string
	IgnoreDirs []string
	MaxDepth   int
	// IgnoreFile is read relative to Root by FindByPatterns. Missing
	// files are not an error.
	IgnoreFile string
}

// NewFinder returns a Finder rooted at root with the default ignore list
// and depth.
func NewFinder(root string) *Finder {
	return &Finder{
		Root:       root,
		IgnoreDirs: slices.Clone(DefaultIgnoreDirs),
		MaxDepth:   DefaultMaxDepth,
		IgnoreFile: ".gitignore",
	}
}

// Result groups the matches for one query.
type Result struct {
	Query string
	Paths []string
}

// FindByName walks the tree looking for files whose base name equals the
// query, or whose slash-separated path ends with it when the query
// contains a separator ("pkg/util.go"). Matches are absolute paths.
func (f *Finder) FindByName(ctx context.Context, names ...string) ([]Result, error) {
	root, err := filepath.Abs(f.Root)
	if err != nil {
		return nil, err
	}
	results := make([]Result, len(names))
	for i, n := range names {
		results[i] = Result{Query: n}
	}

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel, _ := filepath.Rel(root, p)
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if p != root && slices.Contains(f.IgnoreDirs, d.Name()) {
				return filepath.SkipDir
			}
			if f.MaxDepth > 0 && depth(rel) >= f.MaxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		for i, n := range names {
			if matchesName(rel, n) {
				results[i].Paths = append(results[i].Paths, p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Unique flattens results into a deduplicated list, keeping first-seen
// order.
func Unique(results []Result) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range results {
		for _, p := range r.Paths {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// FindByPatterns expands doublestar glob patterns relative to Root.
// Patterns starting with "!" exclude matches, as do IgnoreDirs and the
// entries of the ignore file, which are applied as "**/<entry>/**". Only regular files
// are returned, as absolute paths sorted lexically.
func (f *Finder) FindByPatterns(ctx context.Context, patterns ...string) ([]string, error) {
	root, err := filepath.Abs(f.Root)
	if err != nil {
		return nil, err
	}
	ignore, err := f.ignorePatterns(root)
	if err != nil {
		return nil, err
	}

	var include []string
	for _, p := range patterns {
		if neg, ok := strings.CutPrefix(p, "!"); ok {
			ignore = append(ignore, neg)
			continue
		}
		include = append(include, p)
	}
	for _, p := range append(slices.Clone(include), ignore...) {
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: p}
		}
	}

	fsys := os.DirFS(root)
	seen := make(map[string]bool)
	var out []string
	for _, pat := range include {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		matches, err := doublestar.Glob(fsys, pat, doublestar.WithFilesOnly())
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if ignored(m, ignore) || seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, filepath.Join(root, filepath.FromSlash(m)))
		}
	}
	slices.Sort(out)
	return out, nil
}

// PatternError reports a malformed glob pattern.
type PatternError struct {
	Pattern string
}

func (e *PatternError) Error() string { return "invalid glob pattern: " + e.Pattern }

// ignorePatterns turns the ignore file into directory globs. Negated and
// comment lines are skipped; .git and IgnoreDirs are always ignored.
func (f *Finder) ignorePatterns(root string) ([]string, error) {
	lines := append([]string{".git"}, f.IgnoreDirs...)
	if f.IgnoreFile != "" {
		fh, err := os.Open(filepath.Join(root, f.IgnoreFile))
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			sc := bufio.NewScanner(fh)
			for sc.Scan() {
				lines = append(lines, sc.Text())
			}
			fh.Close()
			if err := sc.Err(); err != nil {
				return nil, err
			}
		}
	}

	var out []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "#") || strings.Contains(l, "!") {
			continue
		}
		l = strings.Trim(l, "/")
		if l == "" {
			continue
		}
		p := path.Clean("**/" + l + "/**")
		if doublestar.ValidatePattern(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func ignored(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func matchesName(rel, query string) bool {
	query = strings.Trim(filepath.ToSlash(query), "/")
	if query == "" {
		return false
	}
	if !strings.Contains(query, "/") {
		return path.Base(rel) == query
	}
	return rel == query || strings.HasSuffix(rel, "/"+query)
}

func depth(rel string) int {
	if rel == "." || rel == "" {
		return 0
	}
	return strings.Count(rel, "/") + 1
}
