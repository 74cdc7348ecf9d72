package cache

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/mediacache/kvstore"
	"github.com/hupe1980/mediacache/mediatype"
)

// Defaults for the memory tier and the persistent mirror.
const (
	DefaultMaxBytes        = 64 << 20  // 64 MB memory budget
	DefaultMaxItems        = 200       // memory item budget
	DefaultPersistCeiling  = 8 << 20   // per-entry mirror ceiling
	DefaultPersistedBudget = 256 << 20 // persistent tier total budget
)

// Config holds the cache store limits.
type Config struct {
	// MaxBytes is the memory-tier byte budget. <= 0 uses DefaultMaxBytes.
	MaxBytes int64
	// MaxItems is the memory-tier item budget. <= 0 uses DefaultMaxItems.
	MaxItems int
	// PersistCeilingBytes is the largest payload mirrored to the persistent
	// tier. <= 0 uses DefaultPersistCeiling.
	PersistCeilingBytes int64
	// PersistedBudgetBytes bounds the persistent tier via cleanup sweeps.
	// <= 0 uses DefaultPersistedBudget.
	PersistedBudgetBytes int64
}

func (c *Config) applyDefaults() {
	if c.MaxBytes <= 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if c.MaxItems <= 0 {
		c.MaxItems = DefaultMaxItems
	}
	if c.PersistCeilingBytes <= 0 {
		c.PersistCeilingBytes = DefaultPersistCeiling
	}
	if c.PersistedBudgetBytes <= 0 {
		c.PersistedBudgetBytes = DefaultPersistedBudget
	}
}

// Stats is a point-in-time view of cache behavior, computed from running
// counters and the live memory tier. The persistent tier is never scanned.
type Stats struct {
	Items      int
	Bytes      int64
	Hits       int64
	Misses     int64
	Evictions  int64
	Promotions int64
	HitRate    float64 // hits / (hits + misses); 0 when no accesses
}

// Store is the two-tier media cache: a bounded in-memory LRU tier backed by
// an optional persistent overflow store.
//
// The memory tier is authoritative within a session. Persistent-tier writes
// are asynchronous and best-effort: failures are logged, never surfaced.
// All methods are safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	cfg       Config
	items     map[string]*list.Element
	evictList *list.List
	size      int64

	persistent kvstore.Store // nil disables the persistent tier
	logger     *slog.Logger

	hits       atomic.Int64
	misses     atomic.Int64
	evictions  atomic.Int64
	promotions atomic.Int64

	sweeping atomic.Bool
	wg       sync.WaitGroup
}

// New creates a cache store. persistent may be nil to run memory-only.
// A nil logger discards best-effort failure logs.
func New(cfg Config, persistent kvstore.Store, logger *slog.Logger) *Store {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		cfg:        cfg,
		items:      make(map[string]*list.Element),
		evictList:  list.New(),
		persistent: persistent,
		logger:     logger,
	}
}

// Get returns a snapshot of the entry for key. Memory-tier hits bump the
// access count and last-access time. On a memory miss the persistent tier is
// consulted and a hit there is promoted into memory before being returned.
func (s *Store) Get(ctx context.Context, key string) (Entry, bool) {
	s.mu.Lock()
	if elem, ok := s.items[key]; ok {
		ent := elem.Value.(*Entry)
		s.touchLocked(elem, ent)
		snapshot := *ent
		s.mu.Unlock()
		s.hits.Add(1)
		return snapshot, true
	}
	s.mu.Unlock()

	if s.persistent != nil {
		rec, err := s.persistent.Get(ctx, key)
		if err == nil {
			ent := s.promote(rec)
			s.hits.Add(1)
			s.promotions.Add(1)
			return ent, true
		}
	}

	s.misses.Add(1)
	return Entry{}, false
}

// Has reports whether key is resident in the memory tier. It does not touch
// access bookkeeping and does not consult the persistent tier.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[key]
	return ok
}

// Set admits a payload into the memory tier, evicting as needed, and mirrors
// raw-byte payloads below the persist ceiling to the persistent tier.
func (s *Store) Set(ctx context.Context, key string, payload Payload, kind mediatype.Kind) {
	size := payload.SizeEstimate()
	now := time.Now()

	s.mu.Lock()
	if elem, ok := s.items[key]; ok {
		// Replace in place.
		ent := elem.Value.(*Entry)
		s.size += size - ent.Size
		ent.Data = payload.Data
		ent.Handle = payload.Handle
		ent.Kind = kind
		ent.Size = size
		s.touchLocked(elem, ent)
		s.evictLocked(0, 0)
		s.mu.Unlock()
	} else if size <= s.cfg.MaxBytes {
		s.evictLocked(size, 1)
		ent := &Entry{
			Key:          key,
			Kind:         kind,
			Data:         payload.Data,
			Handle:       payload.Handle,
			Size:         size,
			CreatedAt:    now,
			LastAccessed: now,
		}
		s.items[key] = s.evictList.PushFront(ent)
		s.size += size
		s.mu.Unlock()
	} else {
		// Larger than the whole memory budget: skip the memory tier but
		// still mirror if eligible.
		s.mu.Unlock()
	}

	s.mirror(ctx, key, payload, kind, now)
}

// Delete removes key from both tiers. The persistent delete is best-effort.
func (s *Store) Delete(ctx context.Context, key string) {
	s.mu.Lock()
	if elem, ok := s.items[key]; ok {
		s.removeLocked(elem)
	}
	s.mu.Unlock()

	if s.persistent != nil {
		if err := s.persistent.Delete(ctx, key); err != nil {
			s.logger.Debug("persistent delete failed", "key", key, "error", err)
		}
	}
}

// Evict removes the given keys from both tiers.
func (s *Store) Evict(ctx context.Context, keys []string) {
	for _, key := range keys {
		s.Delete(ctx, key)
	}
}

// Clear drops everything from both tiers.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.items = make(map[string]*list.Element)
	s.evictList.Init()
	s.size = 0
	s.mu.Unlock()

	if s.persistent != nil {
		if err := s.persistent.Clear(ctx); err != nil {
			s.logger.Warn("persistent clear failed", "error", err)
		}
	}
}

// Stats returns current counters and live memory-tier usage.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	items := len(s.items)
	bytes := s.size
	s.mu.Unlock()

	st := Stats{
		Items:      items,
		Bytes:      bytes,
		Hits:       s.hits.Load(),
		Misses:     s.misses.Load(),
		Evictions:  s.evictions.Load(),
		Promotions: s.promotions.Load(),
	}
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRate = float64(st.Hits) / float64(total)
	}
	return st
}

// CleanupSweep applies the memory tier's LRU discipline to the persistent
// tier: oldest records (by last access) are deleted one at a time until the
// tier fits its byte budget. Safe to call concurrently; extra calls no-op
// while a sweep is running.
func (s *Store) CleanupSweep(ctx context.Context) error {
	if s.persistent == nil {
		return nil
	}
	if !s.sweeping.CompareAndSwap(false, true) {
		return nil
	}
	defer s.sweeping.Store(false)

	entries, err := s.persistent.ListByTimestamp(ctx, 0)
	if err != nil {
		return err
	}

	var total int64
	for _, ent := range entries {
		total += ent.Size
	}

	for _, ent := range entries {
		if total <= s.cfg.PersistedBudgetBytes {
			break
		}
		if err := s.persistent.Delete(ctx, ent.Key); err != nil {
			s.logger.Debug("sweep delete failed", "key", ent.Key, "error", err)
			continue
		}
		total -= ent.Size
	}
	return nil
}

// Close waits for in-flight persistent writes and closes the persistent tier.
func (s *Store) Close() error {
	s.wg.Wait()
	if s.persistent != nil {
		return s.persistent.Close()
	}
	return nil
}

// touchLocked bumps access bookkeeping and list position. Must hold the lock.
func (s *Store) touchLocked(elem *list.Element, ent *Entry) {
	ent.AccessCount++
	if now := time.Now(); now.After(ent.LastAccessed) {
		ent.LastAccessed = now
	}
	s.evictList.MoveToFront(elem)
}

// evictLocked evicts one entry at a time until the pending admission
// (incoming bytes, newItems entries) fits both budgets. Must hold the lock.
func (s *Store) evictLocked(incoming int64, newItems int) {
	for (s.size+incoming > s.cfg.MaxBytes || len(s.items)+newItems > s.cfg.MaxItems) && s.evictList.Len() > 0 {
		s.removeLocked(s.evictVictimLocked())
		s.evictions.Add(1)
	}
}

// evictVictimLocked picks the least-recently-used entry; among entries with
// an equal last-access time the lower access count loses.
func (s *Store) evictVictimLocked() *list.Element {
	victim := s.evictList.Back()
	vent := victim.Value.(*Entry)

	for elem := victim.Prev(); elem != nil; elem = elem.Prev() {
		ent := elem.Value.(*Entry)
		if !ent.LastAccessed.Equal(vent.LastAccessed) {
			break
		}
		if ent.AccessCount < vent.AccessCount {
			victim, vent = elem, ent
		}
	}
	return victim
}

func (s *Store) removeLocked(elem *list.Element) {
	ent := elem.Value.(*Entry)
	s.evictList.Remove(elem)
	delete(s.items, ent.Key)
	s.size -= ent.Size
}

// promote admits a persistent-tier record into memory and returns a snapshot.
func (s *Store) promote(rec kvstore.Record) Entry {
	now := time.Now()
	ent := &Entry{
		Key:          rec.Key,
		Kind:         rec.Kind,
		Data:         rec.Data,
		Size:         int64(len(rec.Data)),
		CreatedAt:    time.UnixMilli(rec.CreatedAt),
		LastAccessed: now,
		AccessCount:  1,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[rec.Key]; ok {
		// Raced with a concurrent promotion or set; reuse the resident entry.
		resident := elem.Value.(*Entry)
		s.touchLocked(elem, resident)
		return *resident
	}

	if ent.Size <= s.cfg.MaxBytes {
		s.evictLocked(ent.Size, 1)
		s.items[rec.Key] = s.evictList.PushFront(ent)
		s.size += ent.Size
	}
	return *ent
}

// mirror writes a raw-byte payload to the persistent tier in the background.
// Decoded handles are memory-only. Never blocks the caller, never fails a
// cache operation; an opportunistic sweep keeps the tier inside its budget.
func (s *Store) mirror(ctx context.Context, key string, payload Payload, kind mediatype.Kind, now time.Time) {
	if s.persistent == nil || len(payload.Data) == 0 || int64(len(payload.Data)) > s.cfg.PersistCeilingBytes {
		return
	}

	data := make([]byte, len(payload.Data))
	copy(data, payload.Data)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		rec := kvstore.Record{
			Key:          key,
			Kind:         kind,
			Data:         data,
			CreatedAt:    now.UnixMilli(),
			LastAccessed: now.UnixMilli(),
		}
		if err := s.persistent.Put(context.WithoutCancel(ctx), key, rec); err != nil {
			s.logger.Debug("persistent write failed", "key", key, "error", err)
			return
		}
		if err := s.CleanupSweep(context.WithoutCancel(ctx)); err != nil {
			s.logger.Debug("cleanup sweep failed", "error", err)
		}
	}()
}
