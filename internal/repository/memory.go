package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/feast-seating/internal/model"
)

// MemoryStore is an in-process Store with optimistic concurrency control:
// every document carries a version and a transaction commits only if all
// versions it read are unchanged.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string]model.Table
	// generation changes whenever the set of documents changes, so a
	// transaction that listed all tables notices phantom inserts.
	generation int64
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string]model.Table)}
}

// ListTables returns a copy of every table ordered by tent and number.
func (s *MemoryStore) ListTables(_ context.Context) ([]model.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

func (s *MemoryStore) snapshot() []model.Table {
	out := make([]model.Table, 0, len(s.tables))
	for _, t := range s.tables {
		out = append(out, t.Clone())
	}
	sortTables(out)
	return out
}

// GetTable returns a copy of one table.
func (s *MemoryStore) GetTable(_ context.Context, id string) (*model.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := t.Clone()
	return &c, nil
}

// RunInTx buffers the writes of fn and applies them atomically after
// validating the read set.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memoryTx{
		store:  s,
		reads:  make(map[string]int64),
		writes: make(map[string]model.Table),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

// Reset removes every table.
func (s *MemoryStore) Reset(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.tables)
	s.tables = make(map[string]model.Table)
	s.generation++
	return n, nil
}

func (s *MemoryStore) commit(tx *memoryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.listed && tx.generation != s.generation {
		return fmt.Errorf("%w: tables were added", ErrConflict)
	}
	for id, version := range tx.reads {
		if s.tables[id].Version != version {
			return fmt.Errorf("%w: table %s changed", ErrConflict, id)
		}
	}
	for id, t := range tx.writes {
		current, exists := s.tables[id]
		switch {
		case t.Version == 0 && exists:
			return fmt.Errorf("%w: table %s already exists", ErrConflict, id)
		case t.Version != 0 && current.Version != t.Version:
			return fmt.Errorf("%w: table %s changed", ErrConflict, id)
		}
	}

	now := time.Now().UTC()
	for id, t := range tx.writes {
		if t.Version == 0 {
			t.CreatedAt = now
			s.generation++
		}
		t.Version++
		t.UpdatedAt = now
		s.tables[id] = t
	}
	return nil
}

type memoryTx struct {
	store *MemoryStore
	// reads maps document id to the version observed; 0 means absent.
	reads  map[string]int64
	writes map[string]model.Table
	// listed and generation record a full scan.
	listed     bool
	generation int64
}

func (tx *memoryTx) ListTables(_ context.Context) ([]model.Table, error) {
	tx.store.mu.Lock()
	tables := tx.store.snapshot()
	if !tx.listed {
		tx.listed = true
		tx.generation = tx.store.generation
	}
	tx.store.mu.Unlock()

	byID := make(map[string]int, len(tables))
	for i, t := range tables {
		byID[t.ID] = i
		if _, seen := tx.reads[t.ID]; !seen {
			tx.reads[t.ID] = t.Version
		}
	}
	for id, w := range tx.writes {
		if i, ok := byID[id]; ok {
			tables[i] = w.Clone()
		} else {
			tables = append(tables, w.Clone())
		}
	}
	sortTables(tables)
	return tables, nil
}

func (tx *memoryTx) GetTable(_ context.Context, id string) (*model.Table, error) {
	if w, ok := tx.writes[id]; ok {
		c := w.Clone()
		return &c, nil
	}
	tx.store.mu.Lock()
	t, ok := tx.store.tables[id]
	tx.store.mu.Unlock()

	if _, seen := tx.reads[id]; !seen {
		tx.reads[id] = t.Version
	}
	if !ok {
		return nil, ErrNotFound
	}
	c := t.Clone()
	return &c, nil
}

func (tx *memoryTx) UpdateTable(_ context.Context, t *model.Table) error {
	if t.Version == 0 {
		return fmt.Errorf("update table %s: %w", t.ID, ErrNotFound)
	}
	tx.writes[t.ID] = t.Clone()
	return nil
}

func (tx *memoryTx) CreateTable(_ context.Context, t *model.Table) error {
	c := t.Clone()
	c.Version = 0
	tx.writes[t.ID] = c
	return nil
}

func sortTables(tables []model.Table) {
	sort.Slice(tables, func(i, j int) bool {
		if tables[i].Tent != tables[j].Tent {
			return tables[i].Tent < tables[j].Tent
		}
		return tables[i].TableNumber < tables[j].TableNumber
	})
}

// MemoryActivityLog is an in-process ActivityLog.
type MemoryActivityLog struct {
	mu      sync.Mutex
	entries []model.Activity
}

// NewMemoryActivityLog constructs an empty MemoryActivityLog.
func NewMemoryActivityLog() *MemoryActivityLog {
	return &MemoryActivityLog{}
}

// Record appends an entry, assigning an id and timestamp when missing.
func (l *MemoryActivityLog) Record(_ context.Context, a *model.Activity) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	l.mu.Lock()
	l.entries = append(l.entries, *a)
	l.mu.Unlock()
	return nil
}

// List returns entries newest first.
func (l *MemoryActivityLog) List(_ context.Context, action model.ActivityAction, limit int) ([]model.Activity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []model.Activity
	for i := len(l.entries) - 1; i >= 0; i-- {
		if action != "" && l.entries[i].Action != action {
			continue
		}
		out = append(out, l.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Reset removes every entry.
func (l *MemoryActivityLog) Reset(_ context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.entries)
	l.entries = nil
	return n, nil
}
