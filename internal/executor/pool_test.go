package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsAllTasks(t *testing.T) {
	p := New("cache-io", 4)
	defer p.Close()

	var n atomic.Int32
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Submit(t.Context(), func() { n.Add(1) }))
	}
	p.Wait()
	assert.Equal(t, int32(100), n.Load())
	assert.Equal(t, int64(100), p.Completed())
	assert.Equal(t, 4, p.Workers())
	assert.Equal(t, "cache-io", p.Name())
}

func TestPoolRunReturnsTaskError(t *testing.T) {
	p := New("sql", 1)
	defer p.Close()

	boom := errors.New("boom")
	err := p.Run(t.Context(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, p.Run(t.Context(), func(context.Context) error { return nil }))
}

func TestPoolSubmitAfterClose(t *testing.T) {
	p := New("sql", 2)
	p.Close()
	p.Close()
	assert.ErrorIs(t, p.Submit(t.Context(), func() {}), ErrClosed)
}

func TestPoolCloseDrainsQueuedWork(t *testing.T) {
	p := New("cache-io", 1)
	var n atomic.Int32
	for i := 0; i < 2; i++ {
		require.NoError(t, p.Submit(t.Context(), func() {
			time.Sleep(5 * time.Millisecond)
			n.Add(1)
		}))
	}
	p.Close()
	assert.Equal(t, int32(2), n.Load())
}

func TestPoolSubmitHonorsContext(t *testing.T) {
	p := New("sql", 1)
	defer p.Close()

	release := make(chan struct{})
	defer close(release)
	// occupy the worker and fill the queue
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Submit(t.Context(), func() { <-release }))
	}
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Submit(ctx, func() {}), context.DeadlineExceeded)
}

func TestPoolSubmitOrderedSerializesPerKey(t *testing.T) {
	p := New("cache-io", 4)
	defer p.Close()

	var (
		mu      sync.Mutex
		order   = make(map[string][]int)
		running = make(map[string]*atomic.Int32)
		overlap atomic.Bool
	)
	keys := []string{"a", "b"}
	for _, k := range keys {
		running[k] = &atomic.Int32{}
	}
	for i := 0; i < 50; i++ {
		for _, k := range keys {
			require.NoError(t, p.SubmitOrdered(t.Context(), k, func() {
				if running[k].Add(1) > 1 {
					overlap.Store(true)
				}
				time.Sleep(100 * time.Microsecond)
				mu.Lock()
				order[k] = append(order[k], i)
				mu.Unlock()
				running[k].Add(-1)
			}))
		}
	}
	p.Wait()

	assert.False(t, overlap.Load())
	for _, k := range keys {
		require.Len(t, order[k], 50)
		for i, v := range order[k] {
			assert.Equal(t, i, v, "key %s", k)
		}
	}
	assert.Equal(t, int64(100), p.Completed())
}
