package minio

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"path"
	"sort"
	"sync"

	"github.com/minio/minio-go/v7"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/mediacache/kvstore"
	"github.com/hupe1980/mediacache/mediatype"
)

// metaScanConcurrency bounds parallel header reads during index scans.
const metaScanConcurrency = 8

// Store implements kvstore.Store for MinIO and S3-compatible storage.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewStore creates a new MinIO-backed store.
// bucket is the MinIO bucket name; rootPrefix is prepended to all object keys
// (e.g. "media/").
func NewStore(client *minio.Client, bucket, rootPrefix string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

func (s *Store) objectKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return path.Join(s.prefix, hex.EncodeToString(sum[:])+".rec")
}

// Put writes a record as a single framed object.
func (s *Store) Put(ctx context.Context, key string, rec kvstore.Record) error {
	rec.Key = key
	buf, err := kvstore.EncodeRecord(rec, kvstore.CompressionNone)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, s.bucket, s.objectKey(key), bytes.NewReader(buf), int64(len(buf)), minio.PutObjectOptions{})
	return err
}

// Get returns the record for key, or kvstore.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (kvstore.Record, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return kvstore.Record{}, translateErr(err)
	}
	defer obj.Close()

	buf, err := io.ReadAll(obj)
	if err != nil {
		return kvstore.Record{}, translateErr(err)
	}

	return kvstore.DecodeRecord(buf)
}

// Delete removes the record for key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.objectKey(key), minio.RemoveObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return nil // Already gone
		}
		return err
	}
	return nil
}

// Clear removes all records under the store prefix.
func (s *Store) Clear(ctx context.Context) error {
	names, err := s.listObjectKeys(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len(ctx context.Context) (int, error) {
	names, err := s.listObjectKeys(ctx)
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

// ListByTimestamp returns up to limit entries ordered oldest-first by last
// access. This scans object headers and is O(n); it exists for cleanup sweeps
// only.
func (s *Store) ListByTimestamp(ctx context.Context, limit int) ([]kvstore.IndexEntry, error) {
	entries, err := s.scanIndex(ctx, func(kvstore.Record) bool { return true })
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].LastAccessed != entries[j].LastAccessed {
			return entries[i].LastAccessed < entries[j].LastAccessed
		}
		return entries[i].Key < entries[j].Key
	})
	return clip(entries, limit), nil
}

// ListByKind returns up to limit entries of the given media kind. O(n), see
// ListByTimestamp.
func (s *Store) ListByKind(ctx context.Context, kind mediatype.Kind, limit int) ([]kvstore.IndexEntry, error) {
	entries, err := s.scanIndex(ctx, func(r kvstore.Record) bool { return r.Kind == kind })
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return clip(entries, limit), nil
}

// Close is a no-op; the MinIO client is owned by the caller.
func (s *Store) Close() error {
	return nil
}

func (s *Store) listObjectKeys(ctx context.Context) ([]string, error) {
	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		names = append(names, obj.Key)
	}
	return names, nil
}

// scanIndex reads record headers via ranged GETs, bounded by
// metaScanConcurrency.
func (s *Store) scanIndex(ctx context.Context, match func(kvstore.Record) bool) ([]kvstore.IndexEntry, error) {
	type sized struct {
		key  string
		size int64
	}

	var objects []sized
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		objects = append(objects, sized{key: obj.Key, size: obj.Size})
	}

	var (
		mu      sync.Mutex
		entries []kvstore.IndexEntry
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(metaScanConcurrency)

	for _, obj := range objects {
		g.Go(func() error {
			meta, err := s.readMeta(ctx, obj.key, obj.size)
			if err != nil {
				// Skip undecodable objects: the sweep must not fail on one
				// foreign or corrupt record.
				return nil //nolint:nilerr
			}
			if !match(meta) {
				return nil
			}

			mu.Lock()
			entries = append(entries, kvstore.IndexEntry{
				Key:          meta.Key,
				Kind:         meta.Kind,
				Size:         obj.size,
				LastAccessed: meta.LastAccessed,
			})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) readMeta(ctx context.Context, objectKey string, size int64) (kvstore.Record, error) {
	opts := minio.GetObjectOptions{}
	end := int64(kvstore.MetaPrefixSize) - 1
	if end >= size {
		end = size - 1
	}
	if err := opts.SetRange(0, end); err != nil {
		return kvstore.Record{}, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, objectKey, opts)
	if err != nil {
		return kvstore.Record{}, err
	}
	defer obj.Close()

	buf, err := io.ReadAll(obj)
	if err != nil {
		return kvstore.Record{}, err
	}

	return kvstore.DecodeRecordMeta(buf)
}

func translateErr(err error) error {
	errResp := minio.ToErrorResponse(err)
	if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
		return kvstore.ErrNotFound
	}
	return err
}

func clip(entries []kvstore.IndexEntry, limit int) []kvstore.IndexEntry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}
