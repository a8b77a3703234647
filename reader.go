package aggcache

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/aggcache/loader"
	"github.com/hupe1980/aggcache/manager"
	"github.com/hupe1980/aggcache/segment"
)

// Reader answers cell requests from the cache and batches the misses into
// loads. A query evaluates in passes: Get every cell it needs, Load, and
// Get again until no request is pending.
//
//	r := c.NewReader()
//	defer r.Close()
//	for {
//	    for _, req := range cells {
//	        v, err := r.Get(ctx, req)
//	        ...
//	    }
//	    if r.Pending() == 0 {
//	        break
//	    }
//	    if err := r.Load(ctx); err != nil {
//	        return err
//	    }
//	}
type Reader struct {
	c *Cache

	requests []*CellRequest
	recorded map[string]bool
	loading  map[*segment.Segment]struct{}
	created  []*segment.Segment

	hits   int
	misses int
}

// Get returns the value of a cell. A nil value with a nil error is an
// empty cell. ErrNotCached means the request was recorded for the next
// Load; ErrQuotaExceeded means the reader is full and must Load first.
func (r *Reader) Get(ctx context.Context, req *CellRequest) (any, error) {
	start := time.Now()
	v, hit, err := r.get(ctx, req)
	if hit {
		r.hits++
	} else {
		r.misses++
	}
	r.c.metrics.RecordLookup(hit, time.Since(start))
	r.c.logger.LogLookup(ctx, req.Measure().String(), hit, err)
	return v, err
}

func (r *Reader) get(ctx context.Context, req *CellRequest) (any, bool, error) {
	if r.c.closed.Load() {
		return nil, false, ErrClosed
	}
	if req.Unsatisfiable() {
		return nil, false, ErrUnsatisfiable
	}
	l := req.lookup()
	hits, err := r.c.mgr.Peek(ctx, l)
	if err != nil {
		return nil, false, translateError(err)
	}
	for _, h := range hits {
		seg := h.Segment
		if seg == nil {
			if seg, err = r.c.mgr.Fetch(ctx, req.Star(), h.Header); err != nil {
				r.c.logger.DebugContext(ctx, "cached segment unavailable", "header", h.Header.ID, "error", err)
				continue
			}
		}
		switch seg.State() {
		case segment.Loading:
			r.loading[seg] = struct{}{}
			return nil, false, ErrNotCached
		case segment.Failed:
			continue
		}
		if v, ok := cellValue(seg, req); ok {
			return v, true, nil
		}
	}

	v, ok, err := r.rollup(ctx, req, l)
	if err != nil || ok {
		return v, ok, err
	}
	return nil, false, r.record(req)
}

// cellValue reads the cell from a Ready segment. It reports false when the
// segment does not cover the cell.
func cellValue(seg *segment.Segment, req *CellRequest) (any, bool) {
	v, status := seg.CellValue(req.Values())
	switch status {
	case segment.CellPresent:
		return v, true
	case segment.CellEmpty:
		return nil, true
	default:
		return nil, false
	}
}

func (r *Reader) record(req *CellRequest) error {
	k := req.key()
	if r.recorded[k] {
		return ErrNotCached
	}
	if len(r.requests) >= r.c.cfg.CellBatchQuota {
		return ErrQuotaExceeded
	}
	r.recorded[k] = true
	r.requests = append(r.requests, req)
	return ErrNotCached
}

// rollup answers the cell by aggregating cached segments over finer
// column sets. The result is registered so later requests hit it.
func (r *Reader) rollup(ctx context.Context, req *CellRequest, l manager.Lookup) (any, bool, error) {
	agg, ok := req.Measure().Aggregator.Rollup()
	if !ok {
		return nil, false, nil
	}
	hits, err := r.c.mgr.FindRollup(ctx, l)
	if err != nil {
		return nil, false, translateError(err)
	}
	if len(hits) == 0 {
		return nil, false, nil
	}

	start := time.Now()
	inputs := make([]segment.RollupInput, 0, len(hits))
	for _, h := range hits {
		seg := h.Segment
		if seg == nil {
			if seg, err = r.c.mgr.Fetch(ctx, req.Star(), h.Header); err != nil {
				r.c.logger.DebugContext(ctx, "rollup input unavailable", "header", h.Header.ID, "error", err)
				return nil, false, nil
			}
		}
		b, err := segment.ToBody(seg)
		if err != nil {
			return nil, false, nil
		}
		inputs = append(inputs, segment.RollupInput{Header: h.Header, Body: b})
	}

	keep := make([]string, len(req.Columns()))
	for i, c := range req.Columns() {
		keep[i] = c.Expression
	}
	h, b, err := segment.Rollup(inputs, keep, agg, r.c.cfg.Density())
	if err != nil {
		r.c.logger.DebugContext(ctx, "rollup failed", "error", err)
		return nil, false, nil
	}
	seg, err := segment.FromHeaderBody(req.Star(), h, b)
	if err != nil {
		return nil, false, err
	}
	regs, err := r.c.mgr.Register(ctx, seg)
	if err != nil {
		return nil, false, translateError(err)
	}
	if regs[0].Created {
		r.created = append(r.created, seg)
	}
	r.c.metrics.RecordRollup(len(inputs), time.Since(start))

	v, ok := cellValue(seg, req)
	return v, ok, nil
}

// Pending returns the number of recorded requests plus the loads of other
// readers this reader waits for. Load is a no-op when it is zero.
func (r *Reader) Pending() int { return len(r.requests) + len(r.loading) }

// Hits returns the number of Get calls answered from the cache.
func (r *Reader) Hits() int { return r.hits }

// Misses returns the number of Get calls that were not.
func (r *Reader) Misses() int { return r.misses }

// Load loads the segments of every recorded request, in as few queries as
// possible, and waits for them and for the shared loads of other readers.
// Loads already in flight for the same segments are joined, not repeated.
func (r *Reader) Load(ctx context.Context) error {
	if r.c.closed.Load() {
		return ErrClosed
	}
	reqs, wait := r.requests, r.loading
	r.requests = nil
	r.recorded = make(map[string]bool)
	r.loading = make(map[*segment.Segment]struct{})
	if len(reqs) == 0 && len(wait) == 0 {
		return nil
	}

	batches := groupBatches(reqs, r.c.cfg)
	var groups [][]*batch
	if r.c.cfg.EnableGroupingSets && r.c.planner.SupportsGroupingSets() {
		groups = mergeGroupingSets(batches)
	} else {
		for _, b := range batches {
			groups = append(groups, []*batch{b})
		}
	}

	var loads []*loader.GroupingSetsList
	for _, g := range groups {
		ls, err := r.register(ctx, g, wait)
		loads = append(loads, ls...)
		if err != nil {
			for _, gsl := range loads {
				r.c.abandon(gsl.Segments(), err)
			}
			return translateError(err)
		}
	}

	var eg errgroup.Group
	for _, gsl := range loads {
		eg.Go(func() error {
			done := make(chan error, 1)
			if err := r.c.sqlPool.Submit(ctx, func() { done <- r.c.load(ctx, gsl) }); err != nil {
				r.c.abandon(gsl.Segments(), err)
				return err
			}
			return <-done
		})
	}
	loadErr := eg.Wait()

	var firstErr error
	for s := range wait {
		if err := s.Wait(ctx); err != nil && firstErr == nil {
			firstErr = translateError(err)
		}
	}
	if firstErr == nil && loadErr != nil {
		firstErr = translateError(loadErr)
	}
	return firstErr
}

// register creates and registers the segments of a batch group and returns
// the loads for the segments this reader must fill. Segments loading
// elsewhere are added to wait.
func (r *Reader) register(ctx context.Context, g []*batch, wait map[*segment.Segment]struct{}) ([]*loader.GroupingSetsList, error) {
	created := make([][]*segment.Segment, len(g))
	complete := true
	var loads []*loader.GroupingSetsList
	for i, b := range g {
		segs, err := r.c.aggs.Lookup(b.star, b.columns, b.compound).NewSegments(b.measures, b.preds, nil)
		if err != nil {
			return loads, r.fallback(created, err)
		}
		regs, err := r.c.mgr.Register(ctx, segs...)
		if err != nil {
			return loads, r.fallback(created, err)
		}
		for _, reg := range regs {
			wait[reg.Segment] = struct{}{}
			if reg.Created {
				created[i] = append(created[i], reg.Segment)
				r.created = append(r.created, reg.Segment)
			}
		}
		if len(created[i]) != len(segs) {
			complete = false
		}
	}

	if len(g) > 1 && complete {
		sets := make([]loader.GroupingSet, len(g))
		var err error
		for i, segs := range created {
			if sets[i], err = loader.NewGroupingSet(segs...); err != nil {
				break
			}
		}
		if err == nil {
			var gsl *loader.GroupingSetsList
			if gsl, err = loader.NewGroupingSetsList(sets...); err == nil {
				return append(loads, gsl), nil
			}
		}
		r.c.logger.DebugContext(ctx, "loading grouping sets separately", "error", err)
	}

	for _, segs := range created {
		if len(segs) == 0 {
			continue
		}
		gs, err := loader.NewGroupingSet(segs...)
		if err != nil {
			r.c.abandon(segs, err)
			continue
		}
		gsl, err := loader.NewGroupingSetsList(gs)
		if err != nil {
			r.c.abandon(segs, err)
			continue
		}
		loads = append(loads, gsl)
	}
	return loads, nil
}

// fallback fails the segments created so far and returns err.
func (r *Reader) fallback(created [][]*segment.Segment, err error) error {
	for _, segs := range created {
		r.c.abandon(segs, err)
	}
	return err
}

// Close releases the reader. With caching disabled, the segments it loaded
// leave the index.
func (r *Reader) Close() error {
	if r.c.cfg.DisableCaching {
		for _, s := range r.created {
			r.c.mgr.Remove(segment.ToHeader(s))
		}
	}
	r.created = nil
	r.requests = nil
	r.loading = nil
	return nil
}

// load runs one query and fills the segments of gsl.
func (c *Cache) load(ctx context.Context, gsl *loader.GroupingSetsList) error {
	segs := gsl.Segments()
	if err := c.rc.AcquireLoad(ctx); err != nil {
		c.abandon(segs, err)
		return err
	}
	defer c.rc.ReleaseLoad()

	stmt, err := c.planner.Plan(gsl)
	if err != nil {
		c.abandon(segs, err)
		return err
	}
	rows, err := c.source.Query(ctx, stmt)
	if err != nil {
		c.abandon(segs, err)
		return err
	}
	res, err := c.loader.Load(ctx, gsl, rows, stmt.Types)
	for _, s := range segs {
		if s.State() == segment.Ready {
			c.mgr.LoadSucceeded(s)
		} else {
			c.mgr.LoadFailed(s, s.Err())
		}
	}
	c.metrics.RecordLoad(len(segs), res.Rows, res.Duration, err)
	c.logger.LogLoad(ctx, res.BatchID, len(segs), res.Rows, res.Duration, err)
	return err
}

// abandon fails segments whose load never started.
func (c *Cache) abandon(segs []*segment.Segment, err error) {
	if err == nil {
		err = segment.ErrAbandoned
	}
	for _, s := range segs {
		if s.Fail(err) {
			c.mgr.LoadFailed(s, err)
		}
	}
}
