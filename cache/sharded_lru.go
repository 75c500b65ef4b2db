package cache

import (
	"context"
	"hash/maphash"
)

const numShards = 64

// ShardedLRU is a sharded LRU store for high-concurrency workloads.
// It distributes blocks across 64 shards to reduce lock contention.
//
// Recency and eviction are tracked per shard, so the store as a whole is only
// approximately least-recently-used. The byte bound still holds globally:
// every shard owns an equal slice of the capacity.
type ShardedLRU struct {
	shards   [numShards]*LRU
	seed     maphash.Seed
	capacity int64
}

// NewShardedLRU creates a new sharded LRU store.
// The capacity is divided evenly across all shards.
func NewShardedLRU(capacity int64, opts ...Option) *ShardedLRU {
	shardCapacity := capacity / numShards
	if shardCapacity < 1 {
		shardCapacity = 1
	}

	s := &ShardedLRU{
		seed:     maphash.MakeSeed(),
		capacity: shardCapacity * numShards,
	}

	for i := range numShards {
		s.shards[i] = NewLRU(shardCapacity, opts...)
	}

	return s
}

func (s *ShardedLRU) shard(key string) *LRU {
	return s.shards[maphash.String(s.seed, key)%numShards]
}

// Get returns a cached block.
func (s *ShardedLRU) Get(ctx context.Context, key string) ([]byte, bool) {
	return s.shard(key).Get(ctx, key)
}

// Set caches a block.
func (s *ShardedLRU) Set(ctx context.Context, key string, b []byte) {
	s.shard(key).Set(ctx, key, b)
}

// Delete removes a block if present.
func (s *ShardedLRU) Delete(key string) {
	s.shard(key).Delete(key)
}

// Purge removes every block from every shard.
func (s *ShardedLRU) Purge() {
	for i := range numShards {
		s.shards[i].Purge()
	}
}

// Size returns the total size across all shards.
func (s *ShardedLRU) Size() int64 {
	var total int64
	for i := range numShards {
		total += s.shards[i].Size()
	}
	return total
}

// Stats returns statistics aggregated over all shards.
func (s *ShardedLRU) Stats() Stats {
	var st Stats
	for i := range numShards {
		sh := s.shards[i].Stats()
		st.Hits += sh.Hits
		st.Misses += sh.Misses
		st.Evictions += sh.Evictions
		st.Rejected += sh.Rejected
		st.Entries += sh.Entries
		st.Size += sh.Size
	}
	st.Capacity = s.capacity
	return st
}

// ShardStats returns per-shard statistics.
func (s *ShardedLRU) ShardStats() []Stats {
	stats := make([]Stats, numShards)
	for i := range numShards {
		stats[i] = s.shards[i].Stats()
	}
	return stats
}
