package objectstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for a missing key
var ErrNotFound = errors.New("object not found")

// Store is the object storage abstraction the pipeline persists into.
// Keys are slash-separated paths; values are opaque byte payloads.
type Store interface {
	// Put writes an object, overwriting any existing value at the key.
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get reads an object, returning ErrNotFound for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Exists reports whether the key holds an object.
	Exists(ctx context.Context, key string) (bool, error)
	// List returns all keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
