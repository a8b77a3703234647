package manager

import (
	"github.com/hupe1980/aggcache/segment"
	"github.com/hupe1980/aggcache/star"
)

// message is handled on the actor goroutine.
type message interface {
	handle(m *Manager)
}

// Commands. Each carries a reply channel with capacity one.

type peekCmd struct {
	q     *query
	reply chan []Hit
}

type registerCmd struct {
	segs  []*segment.Segment
	reply chan []Registration
}

type flushCmd struct {
	star   *star.Star
	region segment.Region
	reply  chan FlushResult
}

type rollupCmd struct {
	q     *query
	reply chan []Hit
}

type stateCmd struct {
	reply chan []EntryState
}

type adoptCmd struct {
	headers []*segment.Header
	reply   chan int
}

type shutdownCmd struct {
	reply chan struct{}
}

// Events.

type loadSucceeded struct{ seg *segment.Segment }

type loadFailed struct {
	seg *segment.Segment
	err error
}

type removeEvent struct{ header *segment.Header }

type externalCreated struct{ header *segment.Header }

type externalDeleted struct{ header *segment.Header }

// attached reports that a tier-only entry was materialized by Fetch.
type attached struct {
	header *segment.Header
	seg    *segment.Segment
}

// forget drops an entry whose data no tier holds anymore.
type forget struct{ header *segment.Header }

// Hit is an indexed segment that answers a lookup. Segment is nil when the
// data has to be fetched from the tiers first.
type Hit struct {
	Header  *segment.Header
	Segment *segment.Segment
}

// Registration is the outcome of registering one segment.
type Registration struct {
	Header *segment.Header
	// Segment is the indexed segment: the registered one, or the one
	// already loading or loaded for the same header.
	Segment *segment.Segment
	// Created is true when the caller's segment was indexed and the
	// caller is responsible for loading it.
	Created bool
}

// FlushResult summarizes a flush.
type FlushResult struct {
	// Removed counts segments dropped from the cache.
	Removed int
	// Constrained counts segments narrowed by an excluded region.
	Constrained int
}

// EntryState describes one index entry.
type EntryState struct {
	Header *segment.Header
	// State is "loading", "ready", "failed" or "cached" (data only in the
	// tiers).
	State string
}
