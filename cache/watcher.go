package cache

import (
	"context"
	"log/slog"
	"time"
)

// DefaultPollInterval is the default interval between watcher polls.
const DefaultPollInterval = 30 * time.Second

// Watcher detects segments that other processes add to or remove from a
// blob tier and reports them to the tier's listeners as non-local events.
type Watcher struct {
	tier     *BlobTier
	interval time.Duration
	logger   *slog.Logger
}

// NewWatcher creates a watcher polling tier every interval.
func NewWatcher(tier *BlobTier, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{tier: tier, interval: interval, logger: tier.logger}
}

// Run polls until ctx is done. Poll errors are logged and retried on the
// next tick.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.Poll(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("blob tier poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll lists the tier once and reports the differences to the headers the
// tier already knows.
func (w *Watcher) Poll(ctx context.Context) error {
	t := w.tier
	ids, err := t.listIDs(ctx)
	if err != nil {
		return err
	}
	listed := make(map[string]bool, len(ids))
	for _, id := range ids {
		listed[id] = true
	}

	t.mu.Lock()
	var added []string
	for _, id := range ids {
		if _, ok := t.known[id]; !ok {
			added = append(added, id)
		}
	}
	var events []Event
	for id, h := range t.known {
		if !listed[id] {
			delete(t.known, id)
			events = append(events, Event{Kind: Deleted, Header: h})
		}
	}
	t.mu.Unlock()

	headers, err := t.fetchHeaders(ctx, added)
	if err != nil {
		t.notify(events...)
		return err
	}
	t.mu.Lock()
	for _, h := range headers {
		if _, ok := t.known[h.ID]; ok {
			continue // put by this process meanwhile
		}
		t.known[h.ID] = h
		events = append(events, Event{Kind: Created, Header: h})
	}
	t.mu.Unlock()

	if len(events) > 0 {
		w.logger.Debug("blob tier changed", "events", len(events))
	}
	t.notify(events...)
	return nil
}
