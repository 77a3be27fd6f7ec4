// Package storage defines the interface for object-store backends.
package storage

import (
	"context"
	"io"
	"time"
)

// ObjectStore defines the operations the backup agent needs from a bucket.
type ObjectStore interface {
	// List returns all objects whose names start with the given prefix.
	List(ctx context.Context, prefix string) ([]StoredObject, error)

	// Download opens the named object for reading.
	Download(ctx context.Context, name string) (io.ReadCloser, error)

	// UploadBytes stores a small object from an in-memory payload.
	UploadBytes(ctx context.Context, name string, data []byte, contentType string, attributes map[string]string) error

	// UploadStream stores an object of unknown length from a reader.
	UploadStream(ctx context.Context, name string, reader io.Reader, contentType string, attributes map[string]string) error

	// Delete removes the named object.
	Delete(ctx context.Context, name string) error

	// GetByName returns the stored object for an exact name.
	GetByName(ctx context.Context, name string) (*StoredObject, error)
}

// StoredObject describes a named entry in the remote bucket.
// Immutable once fetched.
type StoredObject struct {
	Name            string
	Size            int64
	ContentType     string
	UploadTimestamp time.Time
	ObjectID        string
}
