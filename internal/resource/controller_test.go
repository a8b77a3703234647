package resource

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Memory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	require.NoError(t, c.AcquireMemory(50))
	assert.Equal(t, int64(50), c.MemoryUsage())

	require.NoError(t, c.AcquireMemory(40))
	assert.Equal(t, int64(90), c.MemoryUsage())

	// limit exceeded
	err := c.AcquireMemory(20)
	assert.ErrorIs(t, err, ErrMemoryLimitExceeded)
	assert.Equal(t, int64(90), c.MemoryUsage())

	c.ReleaseMemory(50)
	assert.Equal(t, int64(40), c.MemoryUsage())

	require.NoError(t, c.AcquireMemory(20))
	assert.Equal(t, int64(60), c.MemoryUsage())
	assert.Equal(t, int64(100), c.MemoryLimit())
}

func TestController_UnlimitedMemory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 0})

	require.NoError(t, c.AcquireMemory(1000))
	assert.Equal(t, int64(1000), c.MemoryUsage())

	c.ReleaseMemory(500)
	assert.Equal(t, int64(500), c.MemoryUsage())
}

func TestController_Loads(t *testing.T) {
	c := NewController(Config{MaxLoads: 2})

	require.NoError(t, c.AcquireLoad(t.Context()))
	require.NoError(t, c.AcquireLoad(t.Context()))
	assert.Equal(t, int64(2), c.ActiveLoads())
	assert.False(t, c.TryAcquireLoad())

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireLoad(ctx), context.DeadlineExceeded)

	c.ReleaseLoad()
	assert.True(t, c.TryAcquireLoad())
	assert.Equal(t, int64(2), c.ActiveLoads())
}

func TestController_NilIsUnlimited(t *testing.T) {
	var c *Controller
	assert.NoError(t, c.AcquireMemory(1<<40))
	assert.NoError(t, c.AcquireLoad(t.Context()))
	assert.True(t, c.TryAcquireLoad())
	assert.NoError(t, c.AcquireIO(t.Context(), 1<<20))
	c.ReleaseLoad()
	c.ReleaseMemory(1)
	assert.Zero(t, c.MemoryUsage())
}

func TestRateLimitedIO(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})
	data := bytes.Repeat([]byte("x"), 3<<20)

	var out bytes.Buffer
	w := NewRateLimitedWriter(t.Context(), &out, c)
	_, err := w.Write(data[:1024])
	require.NoError(t, err)

	r := NewRateLimitedReader(t.Context(), bytes.NewReader(data[:2048]), c)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Len(t, got, 2048)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = NewRateLimitedWriter(ctx, &out, c).Write(data)
	assert.Error(t, err)
}
