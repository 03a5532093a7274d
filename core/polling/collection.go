package polling

import (
	"sync"
	"time"
)

// ObserveFunc returns the observable identity of an element. Two snapshots
// whose elements produce the same keys in the same order are considered
// unchanged.
type ObserveFunc[T any] func(T) string

// Collection is a locally cached, ordered snapshot of server state.
type Collection[T any] struct {
	key     string
	observe ObserveFunc[T]

	mu        sync.RWMutex
	items     []T
	keys      []string
	revision  uint64
	fetchedAt time.Time
	loaded    bool
}

func NewCollection[T any](key string, observe ObserveFunc[T]) *Collection[T] {
	return &Collection[T]{key: key, observe: observe}
}

func (c *Collection[T]) Key() string {
	return c.key
}

// Merge applies a snapshot. When the snapshot has the same length and the
// same observable keys as the cached one, the cached slice and revision are
// kept and Merge reports false. Otherwise the snapshot replaces the cache
// wholesale; elements are never patched individually.
func (c *Collection[T]) Merge(items []T, at time.Time) bool {
	keys := make([]string, len(items))
	for i := range items {
		keys[i] = c.observe(items[i])
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchedAt = at
	if c.loaded && sameKeys(c.keys, keys) {
		return false
	}
	c.items = items
	c.keys = keys
	c.loaded = true
	c.revision++
	return true
}

// Reset drops cached state, e.g. when the owning selection changes.
func (c *Collection[T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded && c.items == nil {
		return
	}
	c.items = nil
	c.keys = nil
	c.loaded = false
	c.fetchedAt = time.Time{}
	c.revision++
}

// Snapshot returns the cached slice. Callers must treat it as read-only.
func (c *Collection[T]) Snapshot() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items
}

func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Collection[T]) Revision() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.revision
}

func (c *Collection[T]) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}

func (c *Collection[T]) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func sameKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
