// Package resource bounds the resources the segment cache consumes.
//
// A Controller governs three things:
//
//   - Memory: bytes of segment bodies held by the in-process tier. Acquire
//     is fail-fast so the tier can evict and retry instead of blocking.
//   - Loads: the number of segment loads (SQL statements) running at once.
//   - IO: a token bucket throttling reads and writes of remote tiers so
//     cache traffic does not starve query traffic.
//
// All methods are safe for concurrent use and a nil *Controller is a valid,
// unlimited controller.
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes:   512 << 20,
//	    MaxLoads:           4,
//	    IOLimitBytesPerSec: 64 << 20,
//	})
//	if err := rc.AcquireLoad(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseLoad()
package resource
