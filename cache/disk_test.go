package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/aggcache/codec"
)

func TestDiskTier(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c, err := NewDiskTier(DiskConfig{Dir: dir, Compression: codec.CompressionZSTD})
	require.NoError(t, err)
	rec := &recorder{}
	c.Subscribe(rec.listen)

	h, b := testSegment(t, "CA", "OR")
	require.NoError(t, c.Put(ctx, h, b))

	got, err := c.Get(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, b.Doubles, got.Doubles)
	assert.Equal(t, b.AxisValues, got.AxisValues)

	ok, err := c.Contains(ctx, h)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = os.Stat(filepath.Join(dir, h.ID[:2], h.ID+headerExt))
	assert.NoError(t, err)

	removed, err := c.Remove(ctx, h)
	require.NoError(t, err)
	assert.True(t, removed)
	_, err = c.Get(ctx, h)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = os.Stat(filepath.Join(dir, h.ID[:2], h.ID+bodyExt))
	assert.True(t, os.IsNotExist(err))

	events := rec.take()
	require.Len(t, events, 2)
	assert.Equal(t, Created, events[0].Kind)
	assert.Equal(t, Deleted, events[1].Kind)
	assert.True(t, events[1].Local)
}

func TestDiskTierRebuildsIndex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c, err := NewDiskTier(DiskConfig{Dir: dir})
	require.NoError(t, err)
	h1, b1 := testSegment(t, "CA", "OR")
	h2, b2 := testSegment(t, "WA")
	require.NoError(t, c.Put(ctx, h1, b1))
	require.NoError(t, c.Put(ctx, h2, b2))
	size := c.Size()
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Put(ctx, h1, b1), ErrClosed)

	// a stray temp file and a header without body
	require.NoError(t, os.WriteFile(filepath.Join(dir, h1.ID[:2], h1.ID+".seg123"), []byte("partial"), 0o644))
	h3, _ := testSegment(t, "NV")
	hdr, err := EncodeFrame(codec.Default, codec.CompressionNone, h3)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, h3.ID[:2]), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, h3.ID[:2], h3.ID+headerExt), hdr, 0o644))

	reopened, err := NewDiskTier(DiskConfig{Dir: dir})
	require.NoError(t, err)
	hs, err := reopened.Headers(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{h1.ID, h2.ID}, ids(hs))
	assert.Equal(t, size, reopened.Size())

	got, err := reopened.Get(ctx, h2)
	require.NoError(t, err)
	assert.Equal(t, b2.Doubles, got.Doubles)

	_, err = os.Stat(filepath.Join(dir, h1.ID[:2], h1.ID+".seg123"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, h3.ID[:2], h3.ID+headerExt))
	assert.True(t, os.IsNotExist(err))
}

func TestDiskTierDropsCorruptHeaders(t *testing.T) {
	dir := t.TempDir()
	c, err := NewDiskTier(DiskConfig{Dir: dir})
	require.NoError(t, err)
	h, b := testSegment(t, "CA")
	require.NoError(t, c.Put(context.Background(), h, b))

	path := filepath.Join(dir, h.ID[:2], h.ID+headerExt)
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	reopened, err := NewDiskTier(DiskConfig{Dir: dir})
	require.NoError(t, err)
	hs, err := reopened.Headers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, hs)
}

func TestDiskTierEvicts(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	sizer, err := NewDiskTier(DiskConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	h1, b1 := testSegment(t, "CA", "OR")
	require.NoError(t, sizer.Put(ctx, h1, b1))
	one := sizer.Size()

	c, err := NewDiskTier(DiskConfig{Dir: dir, MaxSizeBytes: one + one/2})
	require.NoError(t, err)
	rec := &recorder{}
	c.Subscribe(rec.listen)

	h2, b2 := testSegment(t, "CA", "WA")
	require.NoError(t, c.Put(ctx, h1, b1))
	require.NoError(t, c.Put(ctx, h2, b2))

	ok, err := c.Contains(ctx, h1)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = c.Contains(ctx, h2)
	require.NoError(t, err)
	assert.True(t, ok)

	var evicted int
	for _, e := range rec.take() {
		if e.Kind == Deleted && !e.Local {
			evicted++
			assert.Equal(t, h1.ID, e.Header.ID)
		}
	}
	assert.Equal(t, 1, evicted)
	_, err = os.Stat(filepath.Join(dir, h1.ID[:2], h1.ID+bodyExt))
	assert.True(t, os.IsNotExist(err))
}

func TestDiskTierMissingBodyIsNotFound(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c, err := NewDiskTier(DiskConfig{Dir: dir})
	require.NoError(t, err)
	h, b := testSegment(t, "CA")
	require.NoError(t, c.Put(ctx, h, b))
	require.NoError(t, os.Remove(filepath.Join(dir, h.ID[:2], h.ID+bodyExt)))

	_, err = c.Get(ctx, h)
	assert.ErrorIs(t, err, ErrNotFound)
	ok, _ := c.Contains(ctx, h)
	assert.False(t, ok)
}

func TestNewDiskTierNeedsDir(t *testing.T) {
	_, err := NewDiskTier(DiskConfig{})
	assert.Error(t, err)
}
