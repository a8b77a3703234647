package aggcache

import (
	"context"
	"errors"
	"time"
)

// shutdownTimeout bounds how long Close waits for queued cache IO.
const shutdownTimeout = 30 * time.Second

// Close stops the cache manager, waits for pending cache IO and closes
// every tier. Queued loads finish first. Close is idempotent.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.stopWatchers()
		c.watchers.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		c.sqlPool.Close()
		if err := c.mgr.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		c.ioPool.Wait()
		c.ioPool.Close()
		if err := c.tiers.Close(); err != nil {
			c.logger.LogTierError(ctx, "close", "composite", err)
			errs = append(errs, err)
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}
