package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the unified interface for object storage operations.
type ObjectStorage interface {
	// PutObject uploads an object to the given bucket under key
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error

	// GetObject downloads an object; the caller must close the reader
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// RemoveObject deletes an object
	RemoveObject(ctx context.Context, bucket, key string) error

	// EnsureBucket creates the bucket if it does not exist
	EnsureBucket(ctx context.Context, bucket string) error
}
