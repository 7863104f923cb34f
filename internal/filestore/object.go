package filestore

import "time"

// ObjectInfo describes a single object stored in a bucket.
type ObjectInfo struct {
	// Bucket is the bucket holding the object.
	Bucket string

	// Key is the full object path within the bucket (e.g. "exports/orders.csv").
	Key string

	// Size is the byte size of the object. -1 if unknown.
	Size int64

	// ContentType is the MIME type (e.g. "text/csv").
	ContentType string

	// ETag is the object's entity tag / hash, as returned by the backend.
	ETag string

	// LastModified is when the object was last written.
	LastModified time.Time
}
