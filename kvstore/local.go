package kvstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/mediacache/mediatype"
	"golang.org/x/sync/semaphore"
)

// LocalConfig holds configuration for the filesystem store.
type LocalConfig struct {
	// RootDir is the directory where records are stored.
	RootDir string
	// Compression selects the payload codec. Defaults to CompressionNone.
	Compression Compression
	// MaxConcurrentWrites limits background disk writes to prevent unbounded
	// goroutines. Defaults to 16 if <= 0.
	MaxConcurrentWrites int64
}

// LocalStore implements Store backed by the local filesystem.
// It maintains an in-memory index of the files on disk; writes happen in the
// background and are best-effort, so a Put may be silently dropped under
// write pressure. Records are framed and compressed per LocalConfig.
type LocalStore struct {
	mu          sync.Mutex
	rootDir     string
	compression Compression
	items       map[string]*localEntry

	// writeSem limits concurrent background writes to prevent goroutine explosion.
	writeSem *semaphore.Weighted
	wg       sync.WaitGroup
}

type localEntry struct {
	key          string
	kind         mediatype.Kind
	size         int64
	lastAccessed int64
	filePath     string
}

// NewLocalStore creates a filesystem store rooted at cfg.RootDir.
// The directory is scanned on startup to rebuild the index.
func NewLocalStore(cfg LocalConfig) (*LocalStore, error) {
	if err := os.MkdirAll(cfg.RootDir, 0755); err != nil {
		return nil, err
	}

	maxWrites := cfg.MaxConcurrentWrites
	if maxWrites <= 0 {
		maxWrites = 16
	}

	s := &LocalStore{
		rootDir:     cfg.RootDir,
		compression: cfg.Compression,
		items:       make(map[string]*localEntry),
		writeSem:    semaphore.NewWeighted(maxWrites),
	}
	s.scanExistingFiles()

	return s, nil
}

func (s *LocalStore) scanExistingFiles() {
	_ = filepath.Walk(s.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil //nolint:nilerr // intentionally ignore walk errors to continue scanning
		}
		if info.IsDir() || !strings.HasSuffix(path, ".rec") {
			return nil
		}

		meta, ok := readMeta(path)
		if !ok {
			return nil
		}

		s.items[meta.Key] = &localEntry{
			key:          meta.Key,
			kind:         meta.Kind,
			size:         info.Size(),
			lastAccessed: meta.LastAccessed,
			filePath:     path,
		}
		return nil
	})
}

// readMeta decodes just the record header from a file.
func readMeta(path string) (Record, bool) {
	f, err := os.Open(path)
	if err != nil {
		return Record{}, false
	}
	defer f.Close()

	buf := make([]byte, MetaPrefixSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return Record{}, false
	}

	meta, err := DecodeRecordMeta(buf[:n])
	if err != nil {
		return Record{}, false
	}
	return meta, true
}

func (s *LocalStore) pathFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.rootDir, hex.EncodeToString(sum[:])+".rec")
}

// Put stores a record. The write happens in the background; under write
// pressure (all write slots busy) the record is silently skipped - this is an
// overflow tier, not a system of record.
func (s *LocalStore) Put(_ context.Context, key string, rec Record) error {
	rec.Key = key

	// Copy the payload: the caller may reuse the slice while the background
	// write is in flight.
	data := make([]byte, len(rec.Data))
	copy(data, rec.Data)
	rec.Data = data

	if !s.writeSem.TryAcquire(1) {
		return nil
	}

	absPath := s.pathFor(key)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.writeSem.Release(1)

		buf, err := EncodeRecord(rec, s.compression)
		if err != nil {
			return
		}

		tmpFile, err := os.CreateTemp(s.rootDir, "tmp-rec-*")
		if err != nil {
			return
		}
		tmpName := tmpFile.Name()

		defer func() {
			if _, err := os.Stat(tmpName); err == nil {
				_ = os.Remove(tmpName)
			}
		}()

		if _, err := tmpFile.Write(buf); err != nil {
			_ = tmpFile.Close() // Intentionally ignore: cleanup path
			return
		}
		if err := tmpFile.Close(); err != nil {
			return
		}

		if err := os.Rename(tmpName, absPath); err != nil {
			return
		}

		// Index update only after the rename so Get never sees a partial file.
		s.mu.Lock()
		defer s.mu.Unlock()
		s.items[rec.Key] = &localEntry{
			key:          rec.Key,
			kind:         rec.Kind,
			size:         int64(len(buf)),
			lastAccessed: rec.LastAccessed,
			filePath:     absPath,
		}
	}()

	return nil
}

// Get returns the record for key, or ErrNotFound.
func (s *LocalStore) Get(_ context.Context, key string) (Record, error) {
	s.mu.Lock()
	ent, ok := s.items[key]
	s.mu.Unlock()

	if !ok {
		return Record{}, ErrNotFound
	}

	buf, err := os.ReadFile(ent.filePath)
	if err != nil {
		// File missing or unreadable: drop the stale index entry.
		s.mu.Lock()
		delete(s.items, key)
		s.mu.Unlock()
		return Record{}, ErrNotFound
	}

	rec, err := DecodeRecord(buf)
	if err != nil {
		s.mu.Lock()
		delete(s.items, key)
		s.mu.Unlock()
		_ = os.Remove(ent.filePath)
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Delete removes the record for key.
func (s *LocalStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	ent, ok := s.items[key]
	if ok {
		delete(s.items, key)
	}
	s.mu.Unlock()

	if ok {
		return os.Remove(ent.filePath)
	}
	return nil
}

// Clear removes all records.
func (s *LocalStore) Clear(_ context.Context) error {
	s.mu.Lock()
	items := s.items
	s.items = make(map[string]*localEntry)
	s.mu.Unlock()

	for _, ent := range items {
		_ = os.Remove(ent.filePath)
	}
	return nil
}

// Len returns the number of indexed records.
func (s *LocalStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items), nil
}

// ListByTimestamp returns up to limit entries ordered oldest-first by last access.
func (s *LocalStore) ListByTimestamp(_ context.Context, limit int) ([]IndexEntry, error) {
	s.mu.Lock()
	entries := make([]IndexEntry, 0, len(s.items))
	for _, ent := range s.items {
		entries = append(entries, IndexEntry{
			Key:          ent.key,
			Kind:         ent.kind,
			Size:         ent.size,
			LastAccessed: ent.lastAccessed,
		})
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].LastAccessed != entries[j].LastAccessed {
			return entries[i].LastAccessed < entries[j].LastAccessed
		}
		return entries[i].Key < entries[j].Key
	})
	return clip(entries, limit), nil
}

// ListByKind returns up to limit entries of the given media kind.
func (s *LocalStore) ListByKind(_ context.Context, kind mediatype.Kind, limit int) ([]IndexEntry, error) {
	s.mu.Lock()
	var entries []IndexEntry
	for _, ent := range s.items {
		if ent.kind == kind {
			entries = append(entries, IndexEntry{
				Key:          ent.key,
				Kind:         ent.kind,
				Size:         ent.size,
				LastAccessed: ent.lastAccessed,
			})
		}
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return clip(entries, limit), nil
}

// Close waits for all background writes to complete.
func (s *LocalStore) Close() error {
	s.wg.Wait()
	return nil
}
