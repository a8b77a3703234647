package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/aggcache/segment"
)

func TestCompositeGetStopsAtFirstHit(t *testing.T) {
	ctx := context.Background()
	h, b := testSegment(t, "CA")

	first, second, third := new(mockTier), new(mockTier), new(mockTier)
	first.On("Get", mock.Anything, h).Return(nil, errors.New("disk on fire")).Once()
	second.On("Get", mock.Anything, h).Return(b, nil).Once()

	c := NewComposite(nil, first, second, third)
	got, err := c.Get(ctx, h)
	require.NoError(t, err)
	assert.Same(t, b, got)

	first.AssertExpectations(t)
	second.AssertExpectations(t)
	third.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestCompositeGetMiss(t *testing.T) {
	h, _ := testSegment(t, "CA")
	a, b := new(mockTier), new(mockTier)
	a.On("Get", mock.Anything, h).Return(nil, ErrNotFound)
	b.On("Get", mock.Anything, h).Return(nil, errors.New("timeout"))

	_, err := NewComposite(nil, a, b).Get(context.Background(), h)
	assert.ErrorIs(t, err, ErrNotFound)

	// every tier failing is an error
	_, err = NewComposite(nil, b).Get(context.Background(), h)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestCompositePutToleratesPartialFailure(t *testing.T) {
	ctx := context.Background()
	h, b := testSegment(t, "CA")

	ok, bad := new(mockTier), new(mockTier)
	ok.On("Put", mock.Anything, h, b).Return(nil)
	bad.On("Put", mock.Anything, h, b).Return(errors.New("quota"))

	assert.NoError(t, NewComposite(nil, bad, ok).Put(ctx, h, b))
	assert.Error(t, NewComposite(nil, bad, bad).Put(ctx, h, b))
	ok.AssertNumberOfCalls(t, "Put", 1)
	bad.AssertNumberOfCalls(t, "Put", 3)
}

func TestCompositeRemoveAndContains(t *testing.T) {
	ctx := context.Background()
	h, b := testSegment(t, "CA")
	mem := NewMemoryTier(0, nil)
	other := NewMemoryTier(0, nil)
	require.NoError(t, other.Put(ctx, h, b))

	c := NewComposite(nil, mem, other)
	found, err := c.Contains(ctx, h)
	require.NoError(t, err)
	assert.True(t, found)

	removed, err := c.Remove(ctx, h)
	require.NoError(t, err)
	assert.True(t, removed)
	found, err = c.Contains(ctx, h)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCompositeHeadersUnion(t *testing.T) {
	ctx := context.Background()
	h1, _ := testSegment(t, "CA")
	h2, _ := testSegment(t, "OR")

	a, b, broken := new(mockTier), new(mockTier), new(mockTier)
	a.On("Headers", mock.Anything).Return([]*segment.Header{h1}, nil)
	b.On("Headers", mock.Anything).Return([]*segment.Header{h2, h1}, nil)
	broken.On("Headers", mock.Anything).Return(nil, errors.New("offline"))

	hs, err := NewComposite(nil, a, broken, b).Headers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{h1.ID, h2.ID}, ids(hs))
}

func TestCompositeSubscribeAndClose(t *testing.T) {
	ctx := context.Background()
	h, b := testSegment(t, "CA")
	m1, m2 := NewMemoryTier(0, nil), NewMemoryTier(0, nil)
	c := NewComposite(nil, m1, m2)

	rec := &recorder{}
	unsubscribe := c.Subscribe(rec.listen)
	require.NoError(t, c.Put(ctx, h, b))
	assert.Len(t, rec.take(), 2)

	unsubscribe()
	_, err := c.Remove(ctx, h)
	require.NoError(t, err)
	assert.Empty(t, rec.take())

	closer := new(mockTier)
	closer.On("Close").Return(errors.New("busy"))
	assert.Error(t, NewComposite(nil, m1, closer).Close())
	assert.Len(t, c.Tiers(), 2)
}
