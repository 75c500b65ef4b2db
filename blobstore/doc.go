// Package blobstore provides the storage backends a rangecache.Manager reads from.
//
// Driver is the interface for opening, inspecting and reading blobs by path.
// Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: Local filesystem
//   - MemoryStore: In-memory blobs with modification times (tests, fixtures)
//   - FaultyStore: Wraps any Driver to inject errors and count calls
//   - s3.Store: Amazon S3 with ranged reads
//   - minio.Store: MinIO and other S3-compatible storage
//
// # Custom Implementations
//
// Implement the Driver interface to support custom storage backends:
//
//	type Driver interface {
//	    Open(ctx, path) (Handle, error)
//	    Stat(ctx, path) (Metadata, error)
//	    Close(ctx, h) error
//	    ReadAt(ctx, h, p, off) (int, error)
//	}
//
// Metadata.ModTime must change whenever the blob content changes; cached
// blocks are keyed by it.
package blobstore
