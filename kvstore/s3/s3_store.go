package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/mediacache/kvstore"
	"github.com/hupe1980/mediacache/mediatype"
)

// metaScanConcurrency bounds parallel header reads during index scans.
const metaScanConcurrency = 8

// Store implements kvstore.Store for Amazon S3.
type Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewStore creates a new S3-backed store.
// rootPrefix is prepended to all object keys (e.g. "media/").
func NewStore(client *s3.Client, bucket, rootPrefix string) *Store {
	return &Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   rootPrefix,
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

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   bytes.NewReader(buf),
	})
	return err
}

// Get returns the record for key, or kvstore.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (kvstore.Record, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return kvstore.Record{}, translateErr(err)
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return kvstore.Record{}, err
	}

	return kvstore.DecodeRecord(buf)
}

// Delete removes the record for key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	return err
}

// Clear removes all records under the store prefix.
func (s *Store) Clear(ctx context.Context) error {
	objects, err := s.listObjects(ctx)
	if err != nil {
		return err
	}
	for _, obj := range objects {
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(obj.key),
		}); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len(ctx context.Context) (int, error) {
	objects, err := s.listObjects(ctx)
	if err != nil {
		return 0, err
	}
	return len(objects), nil
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

// Close is a no-op; the S3 client is owned by the caller.
func (s *Store) Close() error {
	return nil
}

type listedObject struct {
	key  string
	size int64
}

func (s *Store) listObjects(ctx context.Context) ([]listedObject, error) {
	var objects []listedObject

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			var size int64
			if obj.Size != nil {
				size = *obj.Size
			}
			objects = append(objects, listedObject{key: *obj.Key, size: size})
		}
	}
	return objects, nil
}

// scanIndex reads record headers via ranged GETs, bounded by
// metaScanConcurrency.
func (s *Store) scanIndex(ctx context.Context, match func(kvstore.Record) bool) ([]kvstore.IndexEntry, error) {
	objects, err := s.listObjects(ctx)
	if err != nil {
		return nil, err
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
	end := int64(kvstore.MetaPrefixSize) - 1
	if end >= size {
		end = size - 1
	}

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
		Range:  aws.String(fmt.Sprintf("bytes=0-%d", end)),
	})
	if err != nil {
		return kvstore.Record{}, err
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return kvstore.Record{}, err
	}

	return kvstore.DecodeRecordMeta(buf)
}

func translateErr(err error) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return kvstore.ErrNotFound
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
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
