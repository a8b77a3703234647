// Package executor provides the fixed worker pools the cache dispatches
// blocking work to: one for cache-tier IO and one for SQL loads. The
// manager's actor goroutine only ever submits to a pool; it never performs
// tier IO or SQL itself.
package executor

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("executor: pool closed")

// Pool manages a fixed pool of goroutines.
type Pool struct {
	name       string
	numWorkers int
	workCh     chan func()
	stopCh     chan struct{}
	wg         sync.WaitGroup
	inflight   sync.WaitGroup
	closed     atomic.Bool
	submitMu   sync.RWMutex
	completed  atomic.Int64

	keyMu sync.Mutex
	keyed map[string][]func()
}

// New creates a pool with numWorkers goroutines. A non-positive count
// uses GOMAXPROCS.
func New(name string, numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}

	p := &Pool{
		name:       name,
		numWorkers: numWorkers,
		workCh:     make(chan func(), numWorkers*2),
		stopCh:     make(chan struct{}),
		keyed:      make(map[string][]func()),
	}

	p.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go p.worker()
	}

	return p
}

// Name returns the pool name used in logs.
func (p *Pool) Name() string { return p.name }

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int { return p.numWorkers }

// Completed returns the number of tasks run so far.
func (p *Pool) Completed() int64 { return p.completed.Load() }

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			// drain remaining work before exiting
			for {
				select {
				case task, ok := <-p.workCh:
					if !ok {
						return
					}
					task()
				default:
					return
				}
			}
		case task, ok := <-p.workCh:
			if !ok {
				return
			}
			task()
		}
	}
}

// Submit enqueues task and returns without waiting for it. It blocks while
// the queue is full and fails if ctx ends first or the pool is closed.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	p.submitMu.RLock()
	defer p.submitMu.RUnlock()

	if p.closed.Load() {
		return ErrClosed
	}

	p.inflight.Add(1)
	wrapped := func() {
		defer p.inflight.Done()
		defer p.completed.Add(1)
		task()
	}
	select {
	case p.workCh <- wrapped:
		return nil
	case <-p.stopCh:
		p.inflight.Done()
		return ErrClosed
	case <-ctx.Done():
		p.inflight.Done()
		return ctx.Err()
	}
}

// SubmitOrdered is Submit for tasks that must not overlap: tasks sharing
// a key run one at a time, in submission order, on whichever worker picked
// up the first of them. If the first task cannot be submitted, the tasks
// queued behind it are dropped.
func (p *Pool) SubmitOrdered(ctx context.Context, key string, task func()) error {
	p.keyMu.Lock()
	if q, busy := p.keyed[key]; busy {
		p.keyed[key] = append(q, task)
		p.keyMu.Unlock()
		return nil
	}
	p.keyed[key] = nil
	p.keyMu.Unlock()

	err := p.Submit(ctx, func() { p.drain(key, task) })
	if err != nil {
		p.keyMu.Lock()
		delete(p.keyed, key)
		p.keyMu.Unlock()
	}
	return err
}

func (p *Pool) drain(key string, task func()) {
	for {
		task()
		p.keyMu.Lock()
		q := p.keyed[key]
		if len(q) == 0 {
			delete(p.keyed, key)
			p.keyMu.Unlock()
			return
		}
		task = q[0]
		p.keyed[key] = q[1:]
		p.keyMu.Unlock()
		p.completed.Add(1)
	}
}

// Run submits task and waits for its result.
func (p *Pool) Run(ctx context.Context, task func(context.Context) error) error {
	done := make(chan error, 1)
	if err := p.Submit(ctx, func() { done <- task(ctx) }); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every submitted task has finished.
func (p *Pool) Wait() { p.inflight.Wait() }

// Close stops accepting work, runs what is queued and stops the workers.
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	// stopCh first: it releases submitters blocked on a full queue, which
	// hold submitMu.
	close(p.stopCh)
	p.submitMu.Lock()
	close(p.workCh)
	p.submitMu.Unlock()

	p.wg.Wait()
	for task := range p.workCh {
		task()
	}
}
