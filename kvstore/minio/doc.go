// Package minio provides a kvstore.Store implementation using the MinIO client.
//
// MinIO is a high-performance, S3-compatible object storage system. This
// package works with MinIO itself and with other S3-compatible systems like
// Ceph, SeaweedFS, and Garage, making it a good fit for self-hosted
// deployments that want a durable media cache tier without AWS dependencies.
//
// # Basic Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := miniokv.NewStore(client, "my-bucket", "media/")
//
// Object keys are derived by hashing the record key (the media URL), so
// arbitrary URLs are always safe object names. Index scans read only record
// headers via ranged GETs, bounded to a small number of parallel requests.
package minio
