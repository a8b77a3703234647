package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/aggcache/segment"
)

// Composite presents several tiers as one. Reads try the tiers in order and
// stop at the first hit; writes go to every tier concurrently. A tier
// failure is logged and skipped: an operation fails only when every tier
// fails.
type Composite struct {
	tiers  []Tier
	logger *slog.Logger
}

var _ Tier = (*Composite)(nil)

// NewComposite combines tiers, in read order.
func NewComposite(logger *slog.Logger, tiers ...Tier) *Composite {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Composite{tiers: tiers, logger: logger}
}

// Tiers returns the tiers in read order.
func (c *Composite) Tiers() []Tier { return c.tiers }

func (c *Composite) logFailure(op string, i int, err error) {
	c.logger.Warn("cache tier failed", "op", op, "tier", i, "error", err)
}

// Get returns the body from the first tier that has it.
func (c *Composite) Get(ctx context.Context, h *segment.Header) (*segment.Body, error) {
	var errs []error
	for i, t := range c.tiers {
		b, err := t.Get(ctx, h)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, ErrNotFound) {
			c.logFailure("get", i, err)
			errs = append(errs, err)
		}
	}
	if len(errs) == len(c.tiers) && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, ErrNotFound
}

// Contains reports whether any tier holds h.
func (c *Composite) Contains(ctx context.Context, h *segment.Header) (bool, error) {
	var errs []error
	for i, t := range c.tiers {
		ok, err := t.Contains(ctx, h)
		if err != nil {
			c.logFailure("contains", i, err)
			errs = append(errs, err)
			continue
		}
		if ok {
			return true, nil
		}
	}
	if len(errs) == len(c.tiers) && len(errs) > 0 {
		return false, errors.Join(errs...)
	}
	return false, nil
}

// Put writes to all tiers and succeeds when at least one tier does.
func (c *Composite) Put(ctx context.Context, h *segment.Header, b *segment.Body) error {
	if len(c.tiers) == 0 {
		return nil
	}
	errs := make([]error, len(c.tiers))
	var g errgroup.Group
	for i, t := range c.tiers {
		g.Go(func() error {
			if err := t.Put(ctx, h, b); err != nil {
				c.logFailure("put", i, err)
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()
	return allFailed(errs)
}

// Remove deletes h from all tiers and reports whether any held it.
func (c *Composite) Remove(ctx context.Context, h *segment.Header) (bool, error) {
	if len(c.tiers) == 0 {
		return false, nil
	}
	errs := make([]error, len(c.tiers))
	var mu sync.Mutex
	removed := false
	var g errgroup.Group
	for i, t := range c.tiers {
		g.Go(func() error {
			ok, err := t.Remove(ctx, h)
			if err != nil {
				c.logFailure("remove", i, err)
				errs[i] = err
			}
			if ok {
				mu.Lock()
				removed = true
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return removed, allFailed(errs)
}

// Headers returns the union of the tiers' headers.
func (c *Composite) Headers(ctx context.Context) ([]*segment.Header, error) {
	var (
		out  []*segment.Header
		seen = make(map[string]bool)
		errs []error
	)
	for i, t := range c.tiers {
		hs, err := t.Headers(ctx)
		if err != nil {
			c.logFailure("headers", i, err)
			errs = append(errs, err)
			continue
		}
		for _, h := range hs {
			if !seen[h.ID] {
				seen[h.ID] = true
				out = append(out, h)
			}
		}
	}
	if len(errs) == len(c.tiers) && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Subscribe registers l with every tier.
func (c *Composite) Subscribe(l Listener) func() {
	unsubs := make([]func(), len(c.tiers))
	for i, t := range c.tiers {
		unsubs[i] = t.Subscribe(l)
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Close closes every tier.
func (c *Composite) Close() error {
	var errs []error
	for _, t := range c.tiers {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// allFailed returns the joined errors when no tier succeeded.
func allFailed(errs []error) error {
	for _, err := range errs {
		if err == nil {
			return nil
		}
	}
	return errors.Join(errs...)
}
