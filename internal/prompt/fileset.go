package prompt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/zeebo/blake3"
)

// TrackedFile is a file whose contents are injected into the system
// prompt. Content is read once when the file is added and only re-read by
// FileSet.Refresh.
type TrackedFile struct {
	AbsolutePath string
	FileName     string
	Content      string
	Digest       [32]byte
}

// AddStatus reports the outcome of adding one path.
type AddStatus struct {
	Path              string
	AbsolutePath      string
	Added             bool
	AlreadyTracked    bool
	// BoundaryCollision is set when the content has a line equal to a
	// prompt delimiter, which blurs where the file ends.
	BoundaryCollision bool
	Err               error
}

// RemoveStatus reports which tracked files a removal argument matched.
type RemoveStatus struct {
	Arg     string
	Removed []string
}

// FileSet is the ordered set of tracked files, keyed by absolute path.
type FileSet struct {
	mu       sync.RWMutex
	files    []TrackedFile
	readFile func(string) ([]byte, error)
	workDir  func() (string, error)
}

// NewFileSet returns an empty FileSet reading from the local filesystem.
func NewFileSet() *FileSet {
	return &FileSet{readFile: os.ReadFile, workDir: os.Getwd}
}

// Add reads and tracks each path. Paths already tracked are reported and
// left unchanged.
func (s *FileSet) Add(paths ...string) []AddStatus {
	statuses := make([]AddStatus, 0, len(paths))
	for _, p := range paths {
		statuses = append(statuses, s.add(p))
	}
	return statuses
}

func (s *FileSet) add(path string) AddStatus {
	st := AddStatus{Path: path}
	abs, err := filepath.Abs(path)
	if err != nil {
		st.Err = fmt.Errorf("resolve %s: %w", path, err)
		return st
	}
	st.AbsolutePath = abs

	if s.Has(abs) {
		st.AlreadyTracked = true
		return st
	}

	info, err := os.Stat(abs)
	if err != nil {
		st.Err = fmt.Errorf("stat %s: %w", path, err)
		return st
	}
	if info.IsDir() {
		st.Err = fmt.Errorf("%s is a directory", path)
		return st
	}

	data, err := s.readFile(abs)
	if err != nil {
		st.Err = fmt.Errorf("read %s: %w", path, err)
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(abs) >= 0 {
		st.AlreadyTracked = true
		return st
	}
	s.files = append(s.files, TrackedFile{
		AbsolutePath: abs,
		FileName:     filepath.Base(abs),
		Content:      string(data),
		Digest:       blake3.Sum256(data),
	})
	st.Added = true
	st.BoundaryCollision = collidesWithBoundary(string(data))
	return st
}

// Remove untracks files. Each argument may be an exact path, a base name,
// or a doublestar pattern matched against absolute and working-directory
// relative paths.
func (s *FileSet) Remove(args ...string) []RemoveStatus {
	cwd, _ := s.workDir()

	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]RemoveStatus, 0, len(args))
	for _, arg := range args {
		st := RemoveStatus{Arg: arg}
		abs, _ := filepath.Abs(arg)
		s.files = slices.DeleteFunc(s.files, func(f TrackedFile) bool {
			if matchTracked(f, arg, abs, cwd) {
				st.Removed = append(st.Removed, f.AbsolutePath)
				return true
			}
			return false
		})
		statuses = append(statuses, st)
	}
	return statuses
}

func matchTracked(f TrackedFile, arg, abs, cwd string) bool {
	if f.AbsolutePath == abs || f.FileName == arg {
		return true
	}
	if ok, _ := doublestar.PathMatch(arg, f.AbsolutePath); ok {
		return true
	}
	if cwd != "" {
		if rel, err := filepath.Rel(cwd, f.AbsolutePath); err == nil {
			if ok, _ := doublestar.PathMatch(arg, rel); ok {
				return true
			}
		}
	}
	return false
}

// RemoveAll untracks every file.
func (s *FileSet) RemoveAll() {
	s.mu.Lock()
	s.files = nil
	s.mu.Unlock()
}

// Refresh re-reads every tracked file and replaces the content of those
// whose digest changed. It returns the absolute paths that changed. Files
// that can no longer be read keep their previous content and are reported
// in the returned error.
func (s *FileSet) Refresh() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	var errs []error
	for i := range s.files {
		f := &s.files[i]
		data, err := s.readFile(f.AbsolutePath)
		if err != nil {
			errs = append(errs, fmt.Errorf("refresh %s: %w", f.AbsolutePath, err))
			continue
		}
		digest := blake3.Sum256(data)
		if digest == f.Digest {
			continue
		}
		f.Content = string(data)
		f.Digest = digest
		changed = append(changed, f.AbsolutePath)
	}
	return changed, errors.Join(errs...)
}

// Files returns a copy of the tracked files in insertion order.
func (s *FileSet) Files() []TrackedFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.files)
}

// Paths returns the absolute paths of the tracked files.
func (s *FileSet) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, len(s.files))
	for i, f := range s.files {
		paths[i] = f.AbsolutePath
	}
	return paths
}

// Len returns the number of tracked files.
func (s *FileSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// Has reports whether the absolute path is tracked.
func (s *FileSet) Has(abs string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexLocked(abs) >= 0
}

// Components assembles the system prompt for the current file set.
func (s *FileSet) Components() Components {
	return Assemble(s.Files())
}

func (s *FileSet) indexLocked(abs string) int {
	return slices.IndexFunc(s.files, func(f TrackedFile) bool { return f.AbsolutePath == abs })
}
