package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/aggcache/internal/resource"
	"github.com/hupe1980/aggcache/segment"
)

// MemoryTier is an in-process LRU tier. Its size is the sum of the bodies'
// estimated sizes; it is bounded by its own capacity and, when a resource
// controller is given, by the process-wide memory budget. Evicted segments
// are reported as non-local Deleted events.
type MemoryTier struct {
	listeners

	mu        sync.Mutex
	capacity  int64
	size      int64
	items     map[string]*list.Element
	evictList *list.List
	rc        *resource.Controller
	closed    bool

	hits   atomic.Int64
	misses atomic.Int64
}

var _ Tier = (*MemoryTier)(nil)

type memEntry struct {
	header *segment.Header
	body   *segment.Body
	size   int64
}

// NewMemoryTier creates a memory tier holding at most capacity bytes
// (unbounded if capacity <= 0). rc may be nil.
func NewMemoryTier(capacity int64, rc *resource.Controller) *MemoryTier {
	return &MemoryTier{
		capacity:  capacity,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
		rc:        rc,
	}
}

// Get returns the cached body.
func (c *MemoryTier) Get(_ context.Context, h *segment.Header) (*segment.Body, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[h.ID]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return ent.Value.(*memEntry).body, nil
	}
	c.misses.Add(1)
	return nil, ErrNotFound
}

// Contains reports whether h is cached.
func (c *MemoryTier) Contains(_ context.Context, h *segment.Header) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[h.ID]
	return ok, nil
}

// Put caches the pair, evicting least recently used entries to make room.
func (c *MemoryTier) Put(_ context.Context, h *segment.Header, b *segment.Body) error {
	size := b.SizeBytes()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.capacity > 0 && size > c.capacity {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d bytes exceed capacity %d", ErrRejected, size, c.capacity)
	}

	var evicted []Event
	if ent, ok := c.items[h.ID]; ok {
		c.removeElement(ent)
	}
	for c.capacity > 0 && c.size+size > c.capacity && c.evictList.Len() > 0 {
		evicted = append(evicted, c.evictOldest())
	}
	// Evict until the global budget admits the body as well.
	for c.rc != nil {
		err := c.rc.AcquireMemory(size)
		if err == nil {
			break
		}
		if c.evictList.Len() == 0 {
			c.mu.Unlock()
			c.notify(evicted...)
			return fmt.Errorf("%w: %w", ErrRejected, err)
		}
		evicted = append(evicted, c.evictOldest())
	}

	c.items[h.ID] = c.evictList.PushFront(&memEntry{header: h, body: b, size: size})
	c.size += size
	c.mu.Unlock()

	c.notify(evicted...)
	c.notify(Event{Kind: Created, Header: h, Local: true})
	return nil
}

// Remove drops h from the tier.
func (c *MemoryTier) Remove(_ context.Context, h *segment.Header) (bool, error) {
	c.mu.Lock()
	ent, ok := c.items[h.ID]
	if ok {
		c.removeElement(ent)
	}
	c.mu.Unlock()

	if ok {
		c.notify(Event{Kind: Deleted, Header: h, Local: true})
	}
	return ok, nil
}

// Headers lists cached headers, most recently used first.
func (c *MemoryTier) Headers(_ context.Context) ([]*segment.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*segment.Header, 0, c.evictList.Len())
	for e := c.evictList.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*memEntry).header)
	}
	return out, nil
}

// Close drops every entry and returns its memory to the controller.
func (c *MemoryTier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.evictList.Len() > 0 {
		c.removeElement(c.evictList.Back())
	}
	c.closed = true
	return nil
}

// Stats returns hit and miss counts.
func (c *MemoryTier) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Size returns the current size of the tier in bytes.
func (c *MemoryTier) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len returns the number of cached segments.
func (c *MemoryTier) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

func (c *MemoryTier) evictOldest() Event {
	e := c.evictList.Back()
	ent := e.Value.(*memEntry)
	c.removeElement(e)
	return Event{Kind: Deleted, Header: ent.header}
}

func (c *MemoryTier) removeElement(e *list.Element) {
	c.evictList.Remove(e)
	ent := e.Value.(*memEntry)
	delete(c.items, ent.header.ID)
	c.size -= ent.size
	if c.rc != nil {
		c.rc.ReleaseMemory(ent.size)
	}
}
