package storage

import (
	"context"
	"io"
)

// Backend defines the interface for staging-object storage (S3, MinIO, local)
type Backend interface {
	// Write writes data to the specified key
	Write(ctx context.Context, key string, data []byte) error

	// WriteReader writes data from a reader to the specified key (for large artifacts)
	WriteReader(ctx context.Context, key string, reader io.Reader, size int64) error

	// Read reads the object at the specified key
	Read(ctx context.Context, key string) ([]byte, error)

	// List lists all objects with the given prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete deletes the object at the specified key
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists at the specified key
	Exists(ctx context.Context, key string) (bool, error)

	// URI returns the fully qualified location of a key ("s3://bucket/key")
	// as referenced by the warehouse bulk-load command
	URI(key string) string

	// Close closes any resources held by the backend
	Close() error

	// Type returns the storage type identifier ("local", "s3")
	Type() string
}
