package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/logging"
)

var logger = logging.Get("history")

// ErrNotFound is returned by Get for an unknown ID.
var ErrNotFound = errors.New("history entry not found")

const entryExt = ".json"

// History manages recorded analyses in a directory, one file per entry.
type History struct {
	dir string
	mu  sync.Mutex
}

// New creates a History rooted at dir. The directory is created on the
// first Record.
func New(dir string) (*History, error) {
	if dir == "" {
		return nil, errors.New("history directory cannot be empty")
	}
	return &History{dir: dir}, nil
}

// Dir returns the history directory.
func (h *History) Dir() string {
	return h.dir
}

// Record assigns an ID and timestamp to the entry and persists it.
func (h *History) Record(entry Entry) (*Entry, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating history id: %w", err)
	}
	entry.ID = id.String()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	if err := h.write(&entry); err != nil {
		return nil, fmt.Errorf("failed to write history entry: %w", err)
	}
	return &entry, nil
}

func (h *History) write(entry *Entry) error {
	path := filepath.Join(h.dir, entry.ID+entryExt)

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// List returns entries newest first. A limit of 0 or less returns all.
func (h *History) List(limit int) ([]Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries, err := h.readAll()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Get returns the entry with the given ID.
func (h *History) Get(id string) (*Entry, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	entry, err := h.read(id + entryExt)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return entry, err
}

// Prune keeps the newest retain entries and removes the rest. It returns
// how many were removed. A retain of 0 or less keeps everything.
func (h *History) Prune(retain int) (int, error) {
	if retain <= 0 {
		return 0, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	entries, err := h.readAll()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries[min(retain, len(entries)):] {
		if err := os.Remove(filepath.Join(h.dir, e.ID+entryExt)); err != nil {
			logger.Warn("failed to prune history entry", "id", e.ID, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Clear removes every entry.
func (h *History) Clear() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries, err := h.readAll()
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if err := os.Remove(filepath.Join(h.dir, e.ID+entryExt)); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}

func (h *History) readAll() ([]Entry, error) {
	files, err := os.ReadDir(h.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}

	entries := []Entry{}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), entryExt) {
			continue
		}
		entry, err := h.read(f.Name())
		if err != nil {
			logger.Debug("skipping unreadable history entry", "file", f.Name(), "error", err)
			continue
		}
		entries = append(entries, *entry)
	}

	// V7 IDs are time ordered, so they break timestamp ties.
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return entries, nil
}

func (h *History) read(name string) (*Entry, error) {
	data, err := os.ReadFile(filepath.Join(h.dir, name))
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return &entry, nil
}
