package store

import (
	"fmt"
	"sync"
)

// MemoryStore is an in-memory implementation of [Store].
//
// Records are kept in an insertion-ordered slice with a name index beside it.
// All access goes through a sync.RWMutex: FindAll copies the slice under the
// read lock, so a traversal started before a refresh sees a consistent
// snapshot and is never corrupted by the writer.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	index   map[string]int
}

// NewMemoryStore creates a [MemoryStore] seeded with records in the given
// order. Seed records whose name was already seen are skipped.
func NewMemoryStore(seed ...Record) *MemoryStore {
	m := &MemoryStore{
		records: make([]Record, 0, len(seed)),
		index:   make(map[string]int, len(seed)),
	}
	for _, r := range seed {
		_ = m.Insert(r)
	}
	return m
}

// FindAll returns a snapshot of all records in insertion order.
func (m *MemoryStore) FindAll() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// Find returns the record stored under name.
func (m *MemoryStore) Find(name string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.index[name]
	if !ok {
		return Record{}, false
	}
	return m.records[i], true
}

// Insert appends a record, rejecting duplicate names.
func (m *MemoryStore) Insert(record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.index[record.Name]; exists {
		return fmt.Errorf("insert %q: %w", record.Name, ErrDuplicateName)
	}
	m.index[record.Name] = len(m.records)
	m.records = append(m.records, record)
	return nil
}

// Update replaces the stored record that has the same name.
//
// Callers mutate their own copy and hand it back here, which is the point
// where the change becomes visible to readers.
func (m *MemoryStore) Update(record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.index[record.Name]
	if !ok {
		return fmt.Errorf("update %q: %w", record.Name, ErrNotFound)
	}
	m.records[i] = record
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
