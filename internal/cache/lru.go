package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/mkmax/internal/resource"
)

// LRU is a mutex guarded least-recently-used cache.
//
// Every value has a cost (for tree nodes: the page size). The sum of costs
// never exceeds capacity, and each cached cost is charged to the resource
// controller when one is configured.
type LRU[K comparable, V any] struct {
	mu        sync.Mutex
	capacity  int64
	size      int64
	items     map[K]*list.Element
	evictList *list.List
	cost      func(V) int64
	rc        *resource.Controller

	hits   atomic.Int64
	misses atomic.Int64
}

type entry[K comparable, V any] struct {
	key   K
	value V
	cost  int64
}

// NewLRU creates a new LRU cache with the given capacity in cost units.
// If rc is provided, it will be used to track memory usage.
func NewLRU[K comparable, V any](capacity int64, cost func(V) int64, rc *resource.Controller) *LRU[K, V] {
	if cost == nil {
		cost = func(V) int64 { return 1 }
	}
	return &LRU[K, V]{
		capacity:  capacity,
		items:     make(map[K]*list.Element),
		evictList: list.New(),
		cost:      cost,
		rc:        rc,
	}
}

// Get returns a cached value.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return ent.Value.(*entry[K, V]).value, true
	}
	c.misses.Add(1)
	var zero V
	return zero, false
}

// Set caches a value, replacing any previous value for key.
func (c *LRU[K, V]) Set(key K, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	itemCost := c.cost(v)

	if ent, ok := c.items[key]; ok {
		old := ent.Value.(*entry[K, V])
		if c.rc != nil && itemCost > old.cost {
			// If the global controller denies the growth, drop the stale value.
			if !c.rc.ReserveCache(itemCost - old.cost) {
				c.removeElement(ent)
				return
			}
		} else if c.rc != nil && itemCost < old.cost {
			c.rc.ReleaseCache(old.cost - itemCost)
		}
		c.size += itemCost - old.cost
		old.value = v
		old.cost = itemCost
		c.evictList.MoveToFront(ent)
		c.evict()
		return
	}

	if itemCost > c.capacity {
		return
	}

	// Evict locally first; this releases memory to the controller before we
	// try to acquire it back.
	for c.size+itemCost > c.capacity {
		ent := c.evictList.Back()
		if ent == nil {
			break
		}
		c.removeElement(ent)
	}

	if c.rc != nil && !c.rc.ReserveCache(itemCost) {
		return
	}

	element := c.evictList.PushFront(&entry[K, V]{key: key, value: v, cost: itemCost})
	c.items[key] = element
	c.size += itemCost
}

// Remove drops key from the cache.
func (c *LRU[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.removeElement(ent)
	}
}

// Clear drops every entry and returns the memory to the controller.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.evictList.Len() > 0 {
		c.removeElement(c.evictList.Back())
	}
}

// Stats returns hit and miss counters.
func (c *LRU[K, V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Len returns the number of cached entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Size returns the summed cost of the cached entries.
func (c *LRU[K, V]) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *LRU[K, V]) evict() {
	for c.size > c.capacity {
		element := c.evictList.Back()
		if element == nil {
			break
		}
		c.removeElement(element)
	}
}

func (c *LRU[K, V]) removeElement(e *list.Element) {
	c.evictList.Remove(e)
	kv := e.Value.(*entry[K, V])
	delete(c.items, kv.key)
	c.size -= kv.cost
	if c.rc != nil {
		c.rc.ReleaseCache(kv.cost)
	}
}
