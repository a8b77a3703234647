package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/aggcache/segment"
)

var (
	// ErrNotFound is returned by Get when a tier does not hold the segment.
	ErrNotFound = errors.New("cache: segment not found")
	// ErrRejected is returned by Put when a tier declines to store a segment,
	// e.g. because it exceeds the tier's capacity.
	ErrRejected = errors.New("cache: segment rejected")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("cache: tier closed")
)

// Tier is a segment store. Implementations must be safe for concurrent use.
type Tier interface {
	// Get returns the body stored for h, or ErrNotFound.
	Get(ctx context.Context, h *segment.Header) (*segment.Body, error)
	// Contains reports whether the tier holds h.
	Contains(ctx context.Context, h *segment.Header) (bool, error)
	// Put stores the pair, replacing a previous body for the same header.
	Put(ctx context.Context, h *segment.Header, b *segment.Body) error
	// Remove deletes h and reports whether it was present.
	Remove(ctx context.Context, h *segment.Header) (bool, error)
	// Headers lists the stored headers.
	Headers(ctx context.Context) ([]*segment.Header, error)
	// Subscribe registers a listener and returns a function that removes it.
	Subscribe(l Listener) (unsubscribe func())
	// Close releases the tier's resources.
	Close() error
}

// EventKind is the kind of change reported to listeners.
type EventKind uint8

const (
	Created EventKind = iota + 1
	Deleted
)

func (k EventKind) String() string {
	switch k {
	case Created:
		return "created"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("event(%d)", k)
	}
}

// Event describes a segment appearing in or leaving a tier.
type Event struct {
	Kind   EventKind
	Header *segment.Header
	// Local is true when the change was caused by a call of this process.
	Local bool
}

// Listener receives tier events. It is called synchronously and must not
// block.
type Listener func(Event)

// listeners is embedded by tiers to provide Subscribe.
type listeners struct {
	mu   sync.RWMutex
	next int
	fns  map[int]Listener
}

// Subscribe registers l.
func (ls *listeners) Subscribe(l Listener) func() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.fns == nil {
		ls.fns = make(map[int]Listener)
	}
	id := ls.next
	ls.next++
	ls.fns[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			ls.mu.Lock()
			delete(ls.fns, id)
			ls.mu.Unlock()
		})
	}
}

func (ls *listeners) notify(events ...Event) {
	if len(events) == 0 {
		return
	}
	ls.mu.RLock()
	fns := make([]Listener, 0, len(ls.fns))
	for _, fn := range ls.fns {
		fns = append(fns, fn)
	}
	ls.mu.RUnlock()

	for _, e := range events {
		for _, fn := range fns {
			fn(e)
		}
	}
}
