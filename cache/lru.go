package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/rangecache/resource"
)

// LRU implements a BlockStore bounded by the total byte length of its blocks.
//
// Recency is bumped by both Get hits and Set. Inserting a block evicts from
// the least-recently-used end until the new block fits. A block larger than
// the capacity is never stored and evicts nothing.
type LRU struct {
	mu        sync.Mutex
	capacity  int64
	size      int64
	items     map[string]*list.Element
	evictList *list.List
	rc        *resource.Controller
	onEvict   func(key string, size int)

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	rejected  atomic.Int64
}

type entry struct {
	key   string
	value []byte
}

// Option configures an LRU or ShardedLRU.
type Option func(*lruOptions)

type lruOptions struct {
	rc      *resource.Controller
	onEvict func(key string, size int)
}

// WithResourceController accounts stored bytes against a shared memory budget.
// When the budget is exhausted, new blocks are not stored.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *lruOptions) {
		o.rc = rc
	}
}

// WithEvictCallback registers fn to be called, under the store lock, for every
// evicted block. fn must not call back into the store.
func WithEvictCallback(fn func(key string, size int)) Option {
	return func(o *lruOptions) {
		o.onEvict = fn
	}
}

// NewLRU creates a new LRU store with the given capacity in bytes.
func NewLRU(capacity int64, opts ...Option) *LRU {
	var o lruOptions
	for _, opt := range opts {
		opt(&o)
	}

	return &LRU{
		capacity:  capacity,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
		rc:        o.rc,
		onEvict:   o.onEvict,
	}
}

// Get returns a cached block and marks it most recently used.
func (c *LRU) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return ent.Value.(*entry).value, true
	}
	c.misses.Add(1)
	return nil, false
}

// Set caches a block as most recently used.
func (c *LRU) Set(_ context.Context, key string, b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	itemSize := int64(len(b))

	// Oversized blocks are rejected before anything is evicted.
	if itemSize > c.capacity {
		c.rejected.Add(1)
		return
	}

	if ent, ok := c.items[key]; ok {
		c.evictList.MoveToFront(ent)
		oldSize := int64(len(ent.Value.(*entry).value))
		if c.rc != nil && itemSize > oldSize {
			// Keep the old block if the shared budget denies the growth.
			if !c.rc.TryAcquireMemory(itemSize - oldSize) {
				c.rejected.Add(1)
				return
			}
		}
		if c.rc != nil && itemSize < oldSize {
			c.rc.ReleaseMemory(oldSize - itemSize)
		}

		c.size += itemSize - oldSize
		ent.Value.(*entry).value = b
		c.evictOver(ent)
		return
	}

	for c.size+itemSize > c.capacity {
		ent := c.evictList.Back()
		if ent == nil {
			break
		}
		c.evict(ent)
	}

	if c.rc != nil && !c.rc.TryAcquireMemory(itemSize) {
		c.rejected.Add(1)
		return
	}

	element := c.evictList.PushFront(&entry{key: key, value: b})
	c.items[key] = element
	c.size += itemSize
}

// Delete removes a block if present.
func (c *LRU) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.removeElement(ent)
	}
}

// Purge removes every block.
func (c *LRU) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for ent := c.evictList.Back(); ent != nil; ent = c.evictList.Back() {
		c.removeElement(ent)
	}
}

// Len returns the number of stored blocks.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Size returns the current size of the store in bytes.
func (c *LRU) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Capacity returns the byte capacity.
func (c *LRU) Capacity() int64 {
	return c.capacity
}

// Stats returns a snapshot of store activity.
func (c *LRU) Stats() Stats {
	c.mu.Lock()
	entries, size := c.evictList.Len(), c.size
	c.mu.Unlock()

	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Rejected:  c.rejected.Load(),
		Entries:   entries,
		Size:      size,
		Capacity:  c.capacity,
	}
}

// evictOver evicts from the tail until the store fits, never evicting keep.
func (c *LRU) evictOver(keep *list.Element) {
	for c.size > c.capacity {
		ent := c.evictList.Back()
		if ent == nil || ent == keep {
			break
		}
		c.evict(ent)
	}
}

func (c *LRU) evict(e *list.Element) {
	kv := e.Value.(*entry)
	c.removeElement(e)
	c.evictions.Add(1)
	if c.onEvict != nil {
		c.onEvict(kv.key, len(kv.value))
	}
}

func (c *LRU) removeElement(e *list.Element) {
	c.evictList.Remove(e)
	kv := e.Value.(*entry)
	delete(c.items, kv.key)
	itemSize := int64(len(kv.value))
	c.size -= itemSize
	if c.rc != nil {
		c.rc.ReleaseMemory(itemSize)
	}
}
