package manager

import (
	"context"

	"github.com/hupe1980/aggcache/segment"
)

func hits(es []*entry) []Hit {
	if len(es) == 0 {
		return nil
	}
	out := make([]Hit, len(es))
	for i, e := range es {
		out[i] = Hit{Header: e.header, Segment: e.seg}
	}
	return out
}

func (c *peekCmd) handle(m *Manager) {
	m.evictStale(c.q)
	c.reply <- hits(m.index.locate(c.q))
}

func (c *rollupCmd) handle(m *Manager) {
	m.evictStale(c.q)
	c.reply <- hits(m.index.rollupCandidates(c.q))
}

// evictStale drops headers written for another star width from the index
// and the tiers.
func (m *Manager) evictStale(q *query) {
	for _, e := range m.index.stale(q) {
		h := e.header
		m.index.remove(h.ID)
		m.logger.Warn("evicting segment of a different star width", "header", h.ID, "width", h.Width, "want", q.bitKey.Width())
		m.dispatch("remove", h, func(ctx context.Context) error {
			_, err := m.tiers.Remove(ctx, h)
			return err
		})
	}
}

func (c *registerCmd) handle(m *Manager) {
	out := make([]Registration, len(c.segs))
	for i, s := range c.segs {
		h := segment.ToHeader(s)
		if e, ok := m.index.get(h.ID); ok && e.seg != nil && e.seg.State() != segment.Failed {
			out[i] = Registration{Header: e.header, Segment: e.seg}
			continue
		}
		m.index.put(&entry{header: h, seg: s})
		out[i] = Registration{Header: h, Segment: s, Created: true}
		if s.State() == segment.Ready {
			m.store(h, s)
		}
	}
	c.reply <- out
}

func (c *flushCmd) handle(m *Manager) {
	var res FlushResult
	fact := c.star.Key()
	for _, e := range m.index.sorted() {
		h := e.header
		if h.FactKey() != fact || !h.Intersects(c.region) {
			continue
		}

		live := e.seg != nil
		if (live && e.seg.State() != segment.Ready) || h.IsCoveredBy(c.region) || !h.CanConstrain(c.region) {
			m.index.remove(h.ID)
			res.Removed++
			m.dispatch("remove", h, func(ctx context.Context) error {
				_, err := m.tiers.Remove(ctx, h)
				return err
			})
			continue
		}

		nh := h.Constrain(c.region)
		if nh.ID == h.ID {
			continue
		}
		res.Constrained++
		m.index.remove(h.ID)

		ne := &entry{header: nh}
		var body *segment.Body
		if live {
			b, err := segment.ToBody(e.seg)
			if err == nil {
				var seg *segment.Segment
				if seg, err = segment.FromHeaderBody(e.seg.Star(), nh, b); err == nil {
					ne.seg, body = seg, b
				}
			}
			if err != nil {
				m.logger.Warn("constrained segment kept in tiers only", "header", nh.ID, "error", err)
			}
		}
		m.index.put(ne)

		m.dispatch("constrain", nh, func(ctx context.Context) error {
			b := body
			if b == nil {
				var err error
				if b, err = m.tiers.Get(ctx, h); err != nil {
					m.post(&forget{header: nh})
					return err
				}
			}
			if err := m.tiers.Put(ctx, nh, b); err != nil {
				return err
			}
			_, err := m.tiers.Remove(ctx, h)
			return err
		})
	}
	m.logger.Debug("flushed", "fact", fact, "removed", res.Removed, "constrained", res.Constrained)
	c.reply <- res
}

func (c *stateCmd) handle(m *Manager) {
	es := m.index.sorted()
	out := make([]EntryState, len(es))
	for i, e := range es {
		out[i] = EntryState{Header: e.header, State: e.state()}
	}
	c.reply <- out
}

func (c *adoptCmd) handle(m *Manager) {
	n := 0
	for _, h := range c.headers {
		if m.adopt(h) {
			n++
		}
	}
	c.reply <- n
}

// shutdownCmd is intercepted by run.
func (c *shutdownCmd) handle(*Manager) {}

// adopt indexes a tier-only header unless it is already known.
func (m *Manager) adopt(h *segment.Header) bool {
	if _, ok := m.index.get(h.ID); ok {
		return false
	}
	if !h.Verify() {
		m.logger.Warn("ignoring header with bad checksum", "header", h.ID)
		return false
	}
	m.index.put(&entry{header: h})
	return true
}

func (ev *loadSucceeded) handle(m *Manager) {
	h := segment.ToHeader(ev.seg)
	e, ok := m.index.get(h.ID)
	if !ok || e.seg != ev.seg {
		// flushed while loading
		m.logger.Debug("loaded segment no longer indexed", "header", h.ID)
		return
	}
	m.store(h, ev.seg)
}

func (ev *loadFailed) handle(m *Manager) {
	h := segment.ToHeader(ev.seg)
	m.logger.Warn("segment load failed", "header", h.ID, "error", ev.err)
	if e, ok := m.index.get(h.ID); ok && e.seg == ev.seg {
		m.index.remove(h.ID)
	}
}

func (ev *removeEvent) handle(m *Manager) {
	h := ev.header
	m.index.remove(h.ID)
	m.dispatch("remove", h, func(ctx context.Context) error {
		_, err := m.tiers.Remove(ctx, h)
		return err
	})
}

func (ev *externalCreated) handle(m *Manager) {
	if m.adopt(ev.header) {
		m.logger.Debug("adopted external segment", "header", ev.header.ID)
	}
}

func (ev *externalDeleted) handle(m *Manager) {
	h := ev.header
	e, ok := m.index.get(h.ID)
	if !ok || (e.seg != nil && e.seg.State() == segment.Loading) {
		return
	}
	m.index.remove(h.ID)
	// another tier may still hold the data
	m.dispatch("contains", h, func(ctx context.Context) error {
		ok, err := m.tiers.Contains(ctx, h)
		if err != nil {
			return err
		}
		if ok {
			m.post(&externalCreated{header: h})
		}
		return nil
	})
}

func (ev *attached) handle(m *Manager) {
	if e, ok := m.index.get(ev.header.ID); ok && e.seg == nil {
		e.seg = ev.seg
	}
}

func (ev *forget) handle(m *Manager) {
	if e, ok := m.index.get(ev.header.ID); ok && e.seg == nil {
		m.index.remove(ev.header.ID)
	}
}
