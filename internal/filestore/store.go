// Package filestore defines the object storage sink that CSV exports can be
// streamed into.
//
// Usage:
//
//	store, err := minio.New(ctx, filestore.FromConfig(cfg.Store))
//	if err != nil { ... }
//	defer store.Close()
//
//	info, err := store.PutObject(ctx, "exports", "orders.csv", r, -1, "text/csv")
package filestore

import (
	"context"
	"io"
	"time"
)

// Store is the interface all object storage providers implement.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close() error

	// PutObject uploads r to key inside bucket. size may be -1 when the
	// length is not known up front; the upload then streams in parts.
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (*ObjectInfo, error)

	// PresignGetURL returns a time-limited URL that allows anyone to download
	// the object at key inside bucket without credentials.
	PresignGetURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}
