package blobstore

import (
	"context"
	"os"
	"time"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// UnknownSize marks Metadata whose size must be derived from its block geometry.
const UnknownSize int64 = -1

// Handle is an opaque, driver-specific reference to an opened blob.
type Handle any

// Metadata describes a blob as reported by Stat.
type Metadata struct {
	// Size is the blob size in bytes, or UnknownSize.
	Size int64
	// BlockSize and Blocks describe the storage geometry of drivers that
	// report sizes in blocks rather than bytes.
	BlockSize int64
	Blocks    int64
	// ModTime is used to fingerprint cached blocks.
	ModTime time.Time
}

// EffectiveSize returns the size in bytes.
//
// When Size is unknown it is derived as BlockSize*Blocks, and a zero
// BlockSize yields zero.
func (m Metadata) EffectiveSize() int64 {
	if m.Size >= 0 {
		return m.Size
	}
	if m.BlockSize == 0 {
		return 0
	}
	return m.BlockSize * m.Blocks
}

// Driver is the storage backend consumed by the cache.
//
// Drivers are stateless from the caller's point of view and must be safe for
// concurrent use. Errors are surfaced to callers unchanged.
type Driver interface {
	// Open opens the blob at path for reading.
	Open(ctx context.Context, path string) (Handle, error)
	// Stat returns the blob metadata without opening it.
	Stat(ctx context.Context, path string) (Metadata, error)
	// Close releases a handle returned by Open.
	Close(ctx context.Context, h Handle) error
	// ReadAt fills p with the bytes starting at off.
	// It returns the number of bytes read; n < len(p) implies a non-nil error.
	ReadAt(ctx context.Context, h Handle, p []byte, off int64) (int, error)
}
