// Package s3 provides a kvstore.Store implementation backed by Amazon S3.
//
// Records are written as single framed objects via the upload manager; object
// keys are derived by hashing the record key (the media URL), so arbitrary
// URLs are always safe object names.
//
// # Basic Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := s3kv.NewStore(s3.NewFromConfig(cfg), "my-bucket", "media/")
//
// Index scans (ListByTimestamp, ListByKind) read only record headers via
// ranged GETs with bounded parallelism. They are O(n) in the number of stored
// objects and exist for cleanup sweeps only.
package s3
