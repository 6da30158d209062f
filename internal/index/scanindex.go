package index

import (
	"sort"
	"sync"
	"time"
)

// ScanIndex is the ordered set of entries produced by one scan. During the
// scan a single collector mutates it through Put; after Freeze it is
// read-only and safe to share.
type ScanIndex struct {
	entries map[string]FileEntry

	Root           string
	Fingerprint    string
	RunID          string
	Scanned        int64
	Bytes          int64
	EstimatedTotal int64
	SavedAt        time.Time // set by LoadDB

	mu     sync.RWMutex
	frozen bool
}

// New creates an empty index for root.
func New(root, fingerprint, runID string) *ScanIndex {
	return &ScanIndex{
		entries:     make(map[string]FileEntry),
		Root:        root,
		Fingerprint: fingerprint,
		RunID:       runID,
	}
}

// Put inserts or replaces the entry at e.Path. Calling Put on a frozen index
// is a programming error and panics.
func (x *ScanIndex) Put(e FileEntry) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.frozen {
		panic("index: Put on frozen ScanIndex")
	}
	if old, ok := x.entries[e.Path]; ok {
		x.Bytes -= old.Size
	} else {
		x.Scanned++
	}
	x.Bytes += e.Size
	x.entries[e.Path] = e
}

// Freeze makes the index read-only.
func (x *ScanIndex) Freeze() {
	x.mu.Lock()
	x.frozen = true
	x.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (x *ScanIndex) Frozen() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.frozen
}

// Get looks up an entry by relative path.
func (x *ScanIndex) Get(path string) (FileEntry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.entries[path]
	return e, ok
}

// Len returns the number of entries.
func (x *ScanIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Entries returns every entry sorted by path.
func (x *ScanIndex) Entries() []FileEntry {
	x.mu.RLock()
	out := make([]FileEntry, 0, len(x.entries))
	for _, e := range x.entries {
		out = append(out, e)
	}
	x.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// HealthCounts tallies entries by health.
func (x *ScanIndex) HealthCounts() map[Health]int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	counts := make(map[Health]int, 4)
	for _, e := range x.entries {
		counts[e.Health]++
	}
	return counts
}
