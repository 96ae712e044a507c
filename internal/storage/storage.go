package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by Get/GetRange/Head when no object exists
// under the requested key.
var ErrObjectNotFound = errors.New("object not found in storage")

// ObjectInfo describes one stored object, as returned by List.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStore is the key-addressable blob store everything else builds on.
// Keys are opaque strings; there are no transactional guarantees across keys,
// so callers sequence dependent writes themselves.
type ObjectStore interface {
	// Put stores the object read from r under key. size must be the exact
	// number of bytes r will yield.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Get returns the whole object and its size.
	Get(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// GetRange returns the byte window [offset, offset+length) clipped to the
	// object size. A window reaching past end-of-object yields the tail, not
	// an error. The returned size is the clipped length.
	GetRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, int64, error)

	// Head returns the object size without reading it.
	Head(ctx context.Context, key string) (int64, error)

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// List returns all objects whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
