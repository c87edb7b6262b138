// Package storage provides object storage for snapshot archives.
// Implementations include S3 and the local filesystem.
package storage

import (
	"context"
	"errors"
	"io"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage abstracts where snapshot archives land.
type ObjectStorage interface {
	// Put writes an object, replacing any existing one at the key.
	Put(ctx context.Context, key string, body io.Reader) error

	// Get opens an object for reading. The caller closes the reader.
	// A missing key reports ErrObjectNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an object is present.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns all object keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
