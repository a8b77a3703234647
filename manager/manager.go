package manager

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/aggcache/cache"
	"github.com/hupe1980/aggcache/internal/executor"
	"github.com/hupe1980/aggcache/segment"
	"github.com/hupe1980/aggcache/star"
)

// ErrClosed is returned by commands sent after Shutdown.
var ErrClosed = errors.New("manager: shut down")

// Manager owns the segment index. All index reads and writes happen on
// one goroutine; other goroutines interact with it through messages.
type Manager struct {
	tiers  cache.Tier
	io     *executor.Pool
	ownsIO bool
	logger *slog.Logger
	id     string

	queue        chan message
	done         chan struct{}
	shutdownOnce sync.Once

	// owned by the actor goroutine
	index       *index
	unsubscribe func()
}

// New starts a manager over tiers, which may be nil for an index-only
// cache.
func New(tiers cache.Tier, opts ...Option) *Manager {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	if o.queueSize <= 0 {
		o.queueSize = DefaultQueueSize
	}
	if tiers == nil {
		tiers = cache.NewComposite(o.logger)
	}

	id := uuid.NewString()
	m := &Manager{
		tiers:  tiers,
		io:     o.ioPool,
		logger: o.logger.With("manager", id),
		id:     id,
		queue:  make(chan message, o.queueSize),
		done:   make(chan struct{}),
		index:  newIndex(),
	}
	if m.io == nil {
		m.io = executor.New("cache-io", o.ioWorkers)
		m.ownsIO = true
	}
	m.unsubscribe = tiers.Subscribe(m.onTierEvent)

	go m.run()
	return m
}

// ID identifies the manager instance in logs.
func (m *Manager) ID() string { return m.id }

// Tiers returns the tier the manager writes to.
func (m *Manager) Tiers() cache.Tier { return m.tiers }

func (m *Manager) run() {
	defer close(m.done)
	for msg := range m.queue {
		if cmd, ok := msg.(*shutdownCmd); ok {
			m.unsubscribe()
			m.logger.Debug("segment cache manager stopped", "segments", m.index.len())
			cmd.reply <- struct{}{}
			return
		}
		msg.handle(m)
	}
}

// onTierEvent turns non-local tier changes into events.
func (m *Manager) onTierEvent(e cache.Event) {
	if e.Local {
		return
	}
	switch e.Kind {
	case cache.Created:
		m.post(&externalCreated{header: e.Header})
	case cache.Deleted:
		m.post(&externalDeleted{header: e.Header})
	}
}

// post enqueues an event without blocking the caller. When the queue is
// full the event is handed to a goroutine that waits for room.
func (m *Manager) post(msg message) {
	select {
	case m.queue <- msg:
	case <-m.done:
	default:
		go func() {
			select {
			case m.queue <- msg:
			case <-m.done:
			}
		}()
	}
}

func (m *Manager) send(ctx context.Context, msg message) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	select {
	case m.queue <- msg:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, m *Manager, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-m.done:
		// the command may have been handled just before shutdown
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// dispatch runs tier work on the IO pool. Failures are logged: a tier
// error never fails the operation that caused it.
// Work for one measure runs in dispatch order, so a remove never overtakes
// an earlier put of the same header.
func (m *Manager) dispatch(op string, h *segment.Header, task func(context.Context) error) {
	ctx := context.Background()
	err := m.io.SubmitOrdered(ctx, h.MeasureKey(), func() {
		if err := task(ctx); err != nil && !errors.Is(err, cache.ErrNotFound) {
			m.logger.Warn("cache tier operation failed", "op", op, "header", h.ID, "error", err)
		}
	})
	if err != nil {
		m.logger.Warn("cache tier operation dropped", "op", op, "header", h.ID, "error", err)
	}
}

// store writes a Ready segment to the tiers.
func (m *Manager) store(h *segment.Header, s *segment.Segment) {
	m.dispatch("put", h, func(ctx context.Context) error {
		b, err := segment.ToBody(s)
		if err != nil {
			return err
		}
		return m.tiers.Put(ctx, h, b)
	})
}

// Peek returns the indexed segments that cover the cell, without loading
// anything.
func (m *Manager) Peek(ctx context.Context, l Lookup) ([]Hit, error) {
	q, err := newQuery(l)
	if err != nil {
		return nil, err
	}
	cmd := &peekCmd{q: q, reply: make(chan []Hit, 1)}
	if err := m.send(ctx, cmd); err != nil {
		return nil, err
	}
	return await(ctx, m, cmd.reply)
}

// Register indexes Loading segments before their load starts, so that
// concurrent requests for the same header share one load. Ready segments
// (e.g. rollups) are also written to the tiers.
func (m *Manager) Register(ctx context.Context, segs ...*segment.Segment) ([]Registration, error) {
	cmd := &registerCmd{segs: segs, reply: make(chan []Registration, 1)}
	if err := m.send(ctx, cmd); err != nil {
		return nil, err
	}
	return await(ctx, m, cmd.reply)
}

// Flush invalidates region in every segment of st. A segment is removed
// unless it can be narrowed by excluding the region.
func (m *Manager) Flush(ctx context.Context, st *star.Star, region segment.Region) (FlushResult, error) {
	cmd := &flushCmd{star: st, region: region, reply: make(chan FlushResult, 1)}
	if err := m.send(ctx, cmd); err != nil {
		return FlushResult{}, err
	}
	return await(ctx, m, cmd.reply)
}

// FindRollup returns segments over finer column sets that can be rolled
// up to answer the cell, or nil.
func (m *Manager) FindRollup(ctx context.Context, l Lookup) ([]Hit, error) {
	q, err := newQuery(l)
	if err != nil {
		return nil, err
	}
	if _, ok := l.Measure.Aggregator.Rollup(); !ok {
		return nil, nil
	}
	cmd := &rollupCmd{q: q, reply: make(chan []Hit, 1)}
	if err := m.send(ctx, cmd); err != nil {
		return nil, err
	}
	return await(ctx, m, cmd.reply)
}

// State dumps the index, ordered by header id.
func (m *Manager) State(ctx context.Context) ([]EntryState, error) {
	cmd := &stateCmd{reply: make(chan []EntryState, 1)}
	if err := m.send(ctx, cmd); err != nil {
		return nil, err
	}
	return await(ctx, m, cmd.reply)
}

// Sync indexes the headers already present in the tiers and returns how
// many were new.
func (m *Manager) Sync(ctx context.Context) (int, error) {
	var headers []*segment.Header
	err := m.io.Run(ctx, func(ctx context.Context) error {
		var err error
		headers, err = m.tiers.Headers(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	cmd := &adoptCmd{headers: headers, reply: make(chan int, 1)}
	if err := m.send(ctx, cmd); err != nil {
		return 0, err
	}
	return await(ctx, m, cmd.reply)
}

// Fetch reads a tier-only segment and rebuilds it over st. The live
// segment is attached to the index for later lookups.
func (m *Manager) Fetch(ctx context.Context, st *star.Star, h *segment.Header) (*segment.Segment, error) {
	var seg *segment.Segment
	err := m.io.Run(ctx, func(ctx context.Context) error {
		b, err := m.tiers.Get(ctx, h)
		if err != nil {
			if errors.Is(err, cache.ErrNotFound) {
				m.post(&forget{header: h})
			}
			return err
		}
		seg, err = segment.FromHeaderBody(st, h, b)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.post(&attached{header: h, seg: seg})
	return seg, nil
}

// Shutdown stops the actor and waits for dispatched tier IO. Commands
// sent afterwards fail with ErrClosed. Tiers are not closed.
func (m *Manager) Shutdown(ctx context.Context) error {
	var err error
	m.shutdownOnce.Do(func() {
		cmd := &shutdownCmd{reply: make(chan struct{}, 1)}
		select {
		case m.queue <- cmd:
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
		select {
		case <-m.done:
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
		m.io.Wait()
		if m.ownsIO {
			m.io.Close()
		}
	})
	return err
}

// LoadSucceeded reports that s became Ready. Its data is written to the
// tiers if s is still indexed.
func (m *Manager) LoadSucceeded(s *segment.Segment) { m.post(&loadSucceeded{seg: s}) }

// LoadFailed reports that the load of s failed. The segment leaves the
// index so that a later request retries.
func (m *Manager) LoadFailed(s *segment.Segment, err error) {
	m.post(&loadFailed{seg: s, err: err})
}

// Remove drops h from the index and the tiers.
func (m *Manager) Remove(h *segment.Header) { m.post(&removeEvent{header: h}) }

// ExternalCreated reports a segment another process added to a tier.
func (m *Manager) ExternalCreated(h *segment.Header) { m.post(&externalCreated{header: h}) }

// ExternalDeleted reports a segment that left a tier without this
// process asking.
func (m *Manager) ExternalDeleted(h *segment.Header) { m.post(&externalDeleted{header: h}) }
