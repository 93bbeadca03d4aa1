package logging

import "sync"

// DefaultRingSize is the number of entries kept for the TUI log view.
const DefaultRingSize = 200

// Ring keeps the most recent log entries.
type Ring struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
}

// NewRing creates a ring holding up to size entries.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{entries: make([]Entry, size)}
}

// Add stores e, overwriting the oldest entry when full.
func (r *Ring) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// Len returns the number of stored entries.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return len(r.entries)
	}
	return r.next
}

// Last returns up to n of the newest entries, oldest first.
func (r *Ring) Last(n int) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := r.next
	start := 0
	if r.full {
		count = len(r.entries)
		start = r.next
	}
	n = min(n, count)

	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = r.entries[(start+count-n+i)%len(r.entries)]
	}
	return out
}

// Entries returns every stored entry, oldest first.
func (r *Ring) Entries() []Entry {
	return r.Last(len(r.entries))
}
