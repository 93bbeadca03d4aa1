// Package vfs holds the in-memory file set a package analysis bundles from.
//
// A FileSet only ever contains paths its package listing declared as files.
// Keys are added once and never overwritten, so every key maps to exactly
// the content that was fetched for it.
package vfs

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

var (
	// ErrUndeclared is returned when adding a path the listing did not declare as a file.
	ErrUndeclared = errors.New("path not declared as a file")

	// ErrDuplicate is returned when adding a path that is already present.
	ErrDuplicate = errors.New("path already present")
)

// FileSet maps registry-relative paths to file content.
// It is safe for concurrent use.
type FileSet struct {
	mu       sync.RWMutex
	declared map[string]struct{}
	files    map[string]string
}

// New creates an empty set that accepts the file-kind entries of listing.
func New(listing []types.FileEntry) *FileSet {
	declared := make(map[string]struct{}, len(listing))
	for _, e := range listing {
		if e.IsFile() {
			declared[e.Path] = struct{}{}
		}
	}
	return &FileSet{
		declared: declared,
		files:    make(map[string]string, len(declared)),
	}
}

// Add stores the fetched content for a declared file.
func (s *FileSet) Add(path, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.declared[path]; !ok {
		return fmt.Errorf("%w: %s", ErrUndeclared, path)
	}
	if _, ok := s.files[path]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, path)
	}
	s.files[path] = content
	return nil
}

// Has reports whether path is present.
func (s *FileSet) Has(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.files[path]
	return ok
}

// Get returns the content stored for path.
func (s *FileSet) Get(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.files[path]
	return content, ok
}

// Declared reports whether the listing declared path as a file, whether or
// not its download succeeded.
func (s *FileSet) Declared(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.declared[path]
	return ok
}

// Paths returns the stored paths in sorted order.
func (s *FileSet) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]string, 0, len(s.files))
	for p := range s.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Len returns the number of stored files.
func (s *FileSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// Missing returns declared files that have no content, in sorted order.
func (s *FileSet) Missing() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var missing []string
	for p := range s.declared {
		if _, ok := s.files[p]; !ok {
			missing = append(missing, p)
		}
	}
	sort.Strings(missing)
	return missing
}

// TotalBytes returns the UTF-8 byte length of all stored content.
func (s *FileSet) TotalBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, content := range s.files {
		n += int64(len(content))
	}
	return n
}
