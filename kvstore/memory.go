package kvstore

import (
	"context"
	"sort"
	"sync"

	"github.com/hupe1980/mediacache/mediatype"
)

// MemoryStore is an in-memory Store implementation for testing and ephemeral
// use. Thread-safe for concurrent reads and writes.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
	}
}

// Put stores a record. The payload is copied to prevent external mutation.
func (m *MemoryStore) Put(_ context.Context, key string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]byte, len(rec.Data))
	copy(copied, rec.Data)
	rec.Data = copied
	rec.Key = key
	m.records[key] = rec
	return nil
}

// Get returns the record for key, or ErrNotFound.
func (m *MemoryStore) Get(_ context.Context, key string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[key]
	if !ok {
		return Record{}, ErrNotFound
	}

	copied := make([]byte, len(rec.Data))
	copy(copied, rec.Data)
	rec.Data = copied
	return rec, nil
}

// Delete removes the record for key.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, key)
	return nil
}

// Clear removes all records.
func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = make(map[string]Record)
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// ListByTimestamp returns up to limit entries ordered oldest-first by last access.
func (m *MemoryStore) ListByTimestamp(_ context.Context, limit int) ([]IndexEntry, error) {
	m.mu.RLock()
	entries := m.index(func(Record) bool { return true })
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].LastAccessed != entries[j].LastAccessed {
			return entries[i].LastAccessed < entries[j].LastAccessed
		}
		return entries[i].Key < entries[j].Key
	})
	return clip(entries, limit), nil
}

// ListByKind returns up to limit entries of the given media kind.
func (m *MemoryStore) ListByKind(_ context.Context, kind mediatype.Kind, limit int) ([]IndexEntry, error) {
	m.mu.RLock()
	entries := m.index(func(r Record) bool { return r.Kind == kind })
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return clip(entries, limit), nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error {
	return nil
}

// index must be called with the lock held.
func (m *MemoryStore) index(match func(Record) bool) []IndexEntry {
	var entries []IndexEntry
	for _, rec := range m.records {
		if match(rec) {
			entries = append(entries, IndexEntry{
				Key:          rec.Key,
				Kind:         rec.Kind,
				Size:         int64(len(rec.Data)),
				LastAccessed: rec.LastAccessed,
			})
		}
	}
	return entries
}

func clip(entries []IndexEntry, limit int) []IndexEntry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}
