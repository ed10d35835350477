package watermark

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rickgao/marketfeed/internal/model"
)

// Store persists cursors keyed by model.WatermarkKey.
//
// Implementations normalize the key on write (global scope always stores
// model.GlobalSymbol) and never move a cursor backwards: Upsert keeps the
// greater of the stored and the given value when both are of the same kind.
type Store interface {
	// Get returns the cursor for key, or nil when none exists.
	Get(ctx context.Context, key model.WatermarkKey) (*model.Watermark, error)
	// List returns every stored cursor ordered by key.
	List(ctx context.Context) ([]model.Watermark, error)
	// Upsert inserts or advances a cursor.
	Upsert(ctx context.Context, w model.Watermark) error
}

// MemoryStore is an in-process Store used by tests and dry runs.
type MemoryStore struct {
	mu    sync.RWMutex
	marks map[model.WatermarkKey]model.Watermark
	now   func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		marks: make(map[model.WatermarkKey]model.Watermark),
		now:   time.Now,
	}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key model.WatermarkKey) (*model.Watermark, error) {
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("get watermark: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.marks[key]
	if !ok {
		return nil, nil
	}
	out := clone(w)
	return &out, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) ([]model.Watermark, error) {
	s.mu.RLock()
	out := make([]model.Watermark, 0, len(s.marks))
	for _, w := range s.marks {
		out = append(out, clone(w))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out, nil
}

// Upsert implements Store.
func (s *MemoryStore) Upsert(_ context.Context, w model.Watermark) error {
	w.Key = w.Key.Normalize()
	if err := w.Validate(); err != nil {
		return fmt.Errorf("upsert watermark %s: %w", w.Key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := clone(w)
	if cur, ok := s.marks[w.Key]; ok {
		merged = advance(cur, merged)
	}
	merged.UpdatedAt = s.now().UTC()
	s.marks[w.Key] = merged
	return nil
}

// advance returns the later of cur and next. A change of cursor kind replaces
// the stored value.
func advance(cur, next model.Watermark) model.Watermark {
	switch {
	case cur.Timestamp != nil && next.Timestamp != nil:
		if cur.Timestamp.After(*next.Timestamp) {
			next.Timestamp = cur.Timestamp
		}
	case cur.ID != nil && next.ID != nil:
		if *cur.ID > *next.ID {
			next.ID = cur.ID
		}
	}
	return next
}

func clone(w model.Watermark) model.Watermark {
	if w.Timestamp != nil {
		ts := *w.Timestamp
		w.Timestamp = &ts
	}
	if w.ID != nil {
		id := *w.ID
		w.ID = &id
	}
	return w
}
