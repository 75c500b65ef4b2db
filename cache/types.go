package cache

import "context"

// BlockStore is a byte-oriented store for immutable blocks.
// Returned slices must be treated as read-only.
type BlockStore interface {
	// Get returns a cached block. ok=false if missing.
	Get(ctx context.Context, key string) (b []byte, ok bool)
	// Set caches a block. Implementations may retain b; the caller must not
	// modify it afterwards. A store may silently decline to keep a block.
	Set(ctx context.Context, key string, b []byte)
}

// Stats is a point-in-time snapshot of store activity.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Rejected  int64
	Entries   int
	Size      int64
	Capacity  int64
}

// StatsProvider is implemented by stores that report Stats.
type StatsProvider interface {
	Stats() Stats
}
