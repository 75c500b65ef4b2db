// Package resource provides shared budgets for cache memory and backend read bandwidth.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for cached block bytes across every
	// store sharing this controller.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// ReadBytesPerSec caps the bytes requested from storage drivers per second.
	// If 0, unlimited.
	ReadBytesPerSec int64

	// ReadBurstBytes is the largest single read admitted at once.
	// Defaults to ReadBytesPerSec; a block larger than the burst is admitted
	// in burst-sized installments.
	ReadBurstBytes int64
}

// Controller manages shared resources (memory, read bandwidth).
// A nil *Controller is valid and imposes no limits.
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// IO
	readLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.ReadBytesPerSec > 0 {
		burst := cfg.ReadBurstBytes
		if burst <= 0 {
			burst = cfg.ReadBytesPerSec
		}
		c.cfg.ReadBurstBytes = burst
		c.readLimiter = rate.NewLimiter(rate.Limit(cfg.ReadBytesPerSec), int(burst))
	}

	return c
}

// TryAcquireMemory attempts to reserve memory without blocking.
// Returns true if acquired, false if limit would be exceeded.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return false
		}
	}

	c.memUsed.Add(bytes)
	return true
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireRead waits until the read budget admits n bytes.
func (c *Controller) AcquireRead(ctx context.Context, n int) error {
	if c == nil || c.readLimiter == nil || n <= 0 {
		return nil
	}
	burst := int(c.cfg.ReadBurstBytes)
	for n > 0 {
		step := min(n, burst)
		if err := c.readLimiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
