// Package cache provides byte-bounded block stores for rangecache.
//
// Every store maps an opaque string key to an immutable block of bytes.
// Returned slices are shared with the store and must be treated as read-only.
//
// Available stores:
//
//   - LRU: a single least-recently-used store bounded by total block bytes.
//   - ShardedLRU: an LRU split across independently locked shards.
//   - Compressed: a wrapper that stores LZ4 or Zstd encoded blocks in another store.
package cache
