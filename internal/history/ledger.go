// Package history keeps a bounded, locally persisted record of analysis
// activity. Entries are written optimistically at submission time, before
// the server has produced a first snapshot.
package history

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quelmap-inc/quelmap/internal/store"
)

const (
	storageKey = "analysis_history"

	// MaxEntries bounds the ledger; the oldest entries are evicted on
	// overflow.
	MaxEntries = 1000

	previewLimit = 50
)

// Entry is one ledger record. Its lifecycle is independent of the server's
// space state: IsLoading is flipped externally by whoever observes job
// completion.
type Entry struct {
	ID        string `json:"id"`
	Query     string `json:"query"`
	Timestamp int64  `json:"timestamp"`
	IsLoading bool   `json:"isLoading"`
}

// Ledger is the process-wide history store. All mutations persist
// synchronously to the durable store; direct field assignment would bypass
// the dedup and eviction invariants, so entries are only handed out as
// copies.
type Ledger struct {
	mu      sync.Mutex
	entries []Entry
	store   *store.Store
	now     func() time.Time
}

// NewLedger loads any persisted entries from s. A corrupt persisted value
// is logged and replaced by an empty ledger rather than failing startup.
func NewLedger(s *store.Store) (*Ledger, error) {
	l := &Ledger{store: s, now: time.Now}

	data, ok, err := s.Get(storageKey)
	if err != nil {
		return nil, fmt.Errorf("history: loading ledger: %w", err)
	}
	if ok {
		if err := json.Unmarshal(data, &l.entries); err != nil {
			zap.S().Named("history").Warnf("discarding corrupt history: %v", err)
			l.entries = nil
		}
	}
	if len(l.entries) > MaxEntries {
		l.entries = l.entries[:MaxEntries]
	}
	return l, nil
}

// Add upserts an entry at the front. An existing entry with the same id is
// removed first, so ids stay unique and a re-add refreshes position. The
// new entry always starts loading.
func (l *Ledger) Add(id, query string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		ID:        id,
		Query:     preview(query),
		Timestamp: l.now().UnixMilli(),
		IsLoading: true,
	}

	kept := make([]Entry, 0, len(l.entries)+1)
	kept = append(kept, entry)
	for _, e := range l.entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) > MaxEntries {
		kept = kept[:MaxEntries]
	}
	l.entries = kept
	return l.persistLocked()
}

// Remove deletes the entry with the given id, if present.
func (l *Ledger) Remove(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[:0]
	for _, e := range l.entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	l.entries = kept
	return l.persistLocked()
}

// Clear drops all entries and the persisted value.
func (l *Ledger) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
	return l.store.Delete(storageKey)
}

// SetLoading updates only the loading flag of the entry with the given id.
// Order is preserved. An unknown id is a no-op.
func (l *Ledger) SetLoading(id string, loading bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	changed := false
	for i := range l.entries {
		if l.entries[i].ID == id && l.entries[i].IsLoading != loading {
			l.entries[i].IsLoading = loading
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return l.persistLocked()
}

// Entries returns a copy of the ledger, newest first.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Ledger) persistLocked() error {
	data, err := json.Marshal(l.entries)
	if err != nil {
		return fmt.Errorf("history: encoding ledger: %w", err)
	}
	if err := l.store.Put(storageKey, data); err != nil {
		return fmt.Errorf("history: persisting ledger: %w", err)
	}
	return nil
}

// preview truncates a query for display, rune-safe.
func preview(query string) string {
	runes := []rune(query)
	if len(runes) <= previewLimit {
		return query
	}
	return string(runes[:previewLimit]) + "..."
}
