package resource

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds the limits of a Controller. Zero values mean unlimited,
// except Workers which defaults to 1.
type Config struct {
	// CacheBytes caps the bytes held by node caches across all trees
	// sharing the controller.
	CacheBytes int64

	// Workers caps concurrent batch kNN traversals.
	Workers int

	// WriteBytesPerSec throttles page writes of disk page files.
	WriteBytesPerSec int64
}

// Controller enforces Config. A nil *Controller imposes no limits.
type Controller struct {
	cfg Config

	cacheSem  *semaphore.Weighted
	cacheUsed atomic.Int64

	workers *semaphore.Weighted
	writes  *rate.Limiter
}

// NewController returns a Controller for cfg.
func NewController(cfg Config) *Controller {
	cfg.Workers = max(cfg.Workers, 1)
	c := &Controller{
		cfg:     cfg,
		workers: semaphore.NewWeighted(int64(cfg.Workers)),
	}
	if cfg.CacheBytes > 0 {
		c.cacheSem = semaphore.NewWeighted(cfg.CacheBytes)
	}
	if cfg.WriteBytesPerSec > 0 {
		// One second of burst lets a full page through even on tiny rates.
		c.writes = rate.NewLimiter(rate.Limit(cfg.WriteBytesPerSec), int(cfg.WriteBytesPerSec))
	}
	return c
}

// ReserveCache claims n bytes of cache budget without blocking. It returns
// false when the budget is exhausted; the caller should evict or skip.
func (c *Controller) ReserveCache(n int64) bool {
	if c == nil || n <= 0 {
		return true
	}
	if c.cacheSem != nil && !c.cacheSem.TryAcquire(n) {
		return false
	}
	c.cacheUsed.Add(n)
	return true
}

// ReleaseCache returns n bytes claimed by ReserveCache.
func (c *Controller) ReleaseCache(n int64) {
	if c == nil || n <= 0 {
		return
	}
	if c.cacheSem != nil {
		c.cacheSem.Release(n)
	}
	c.cacheUsed.Add(-n)
}

// CacheUsage returns the reserved cache bytes.
func (c *Controller) CacheUsage() int64 {
	if c == nil {
		return 0
	}
	return c.cacheUsed.Load()
}

// CacheLimit returns Config.CacheBytes.
func (c *Controller) CacheLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.CacheBytes
}

// Workers returns the worker limit, 1 for a nil controller.
func (c *Controller) Workers() int {
	if c == nil {
		return 1
	}
	return c.cfg.Workers
}

// Worker blocks until a worker slot is free and returns its release func.
func (c *Controller) Worker(ctx context.Context) (release func(), err error) {
	if c == nil {
		return func() {}, ctx.Err()
	}
	if err := c.workers.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { c.workers.Release(1) }, nil
}

// ThrottleWrite waits until n more bytes may be written.
func (c *Controller) ThrottleWrite(ctx context.Context, n int) error {
	if c == nil || c.writes == nil {
		return nil
	}
	return c.writes.WaitN(ctx, n)
}

// AllowWrite is the non-blocking form of ThrottleWrite.
func (c *Controller) AllowWrite(n int) bool {
	if c == nil || c.writes == nil {
		return true
	}
	return c.writes.AllowN(time.Now(), n)
}
