package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/aggcache/blobstore"
	"github.com/hupe1980/aggcache/codec"
	"github.com/hupe1980/aggcache/internal/resource"
	"github.com/hupe1980/aggcache/segment"
)

// DefaultBlobPrefix is the name prefix of segment blobs.
const DefaultBlobPrefix = "segments/"

// BlobTier stores segments in a blobstore.Store shared by many processes.
// Each segment is two blobs, <prefix><id>.seg and <prefix><id>.hdr; the
// header is written last, so a listed header always has a body.
type BlobTier struct {
	listeners

	store       blobstore.Store
	prefix      string
	codec       codec.Codec
	compression codec.Compression
	rc          *resource.Controller
	logger      *slog.Logger
	parallelism int

	mu    sync.Mutex
	known map[string]*segment.Header
}

var _ Tier = (*BlobTier)(nil)

// BlobOption configures a BlobTier.
type BlobOption func(*BlobTier)

// WithBlobPrefix sets the name prefix of segment blobs.
func WithBlobPrefix(prefix string) BlobOption {
	return func(t *BlobTier) { t.prefix = prefix }
}

// WithBlobCodec sets the serialization codec.
func WithBlobCodec(c codec.Codec) BlobOption {
	return func(t *BlobTier) { t.codec = c }
}

// WithBlobCompression sets the body compression.
func WithBlobCompression(c codec.Compression) BlobOption {
	return func(t *BlobTier) { t.compression = c }
}

// WithBlobResourceController rate-limits transfers.
func WithBlobResourceController(rc *resource.Controller) BlobOption {
	return func(t *BlobTier) { t.rc = rc }
}

// WithBlobLogger sets the logger.
func WithBlobLogger(l *slog.Logger) BlobOption {
	return func(t *BlobTier) { t.logger = l }
}

// WithBlobParallelism bounds concurrent header fetches while listing.
func WithBlobParallelism(n int) BlobOption {
	return func(t *BlobTier) { t.parallelism = n }
}

// NewBlobTier creates a tier over store.
func NewBlobTier(store blobstore.Store, opts ...BlobOption) *BlobTier {
	t := &BlobTier{
		store:       store,
		prefix:      DefaultBlobPrefix,
		codec:       codec.Default,
		compression: codec.CompressionZSTD,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		parallelism: 8,
		known:       make(map[string]*segment.Header),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Store returns the underlying blob store.
func (t *BlobTier) Store() blobstore.Store { return t.store }

func (t *BlobTier) headerName(id string) string { return t.prefix + id + headerExt }
func (t *BlobTier) bodyName(id string) string   { return t.prefix + id + bodyExt }

func (t *BlobTier) idOf(name string) (string, bool) {
	if !strings.HasPrefix(name, t.prefix) || !strings.HasSuffix(name, headerExt) {
		return "", false
	}
	return strings.TrimSuffix(strings.TrimPrefix(name, t.prefix), headerExt), true
}

func (t *BlobTier) get(ctx context.Context, name string) ([]byte, error) {
	data, err := t.store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := t.rc.AcquireIO(ctx, len(data)); err != nil {
		return nil, err
	}
	return data, nil
}

func (t *BlobTier) put(ctx context.Context, name string, data []byte) error {
	if err := t.rc.AcquireIO(ctx, len(data)); err != nil {
		return err
	}
	return t.store.Put(ctx, name, data)
}

// Get downloads the body of h.
func (t *BlobTier) Get(ctx context.Context, h *segment.Header) (*segment.Body, error) {
	data, err := t.get(ctx, t.bodyName(h.ID))
	if err != nil {
		return nil, err
	}
	return decodeBody(data)
}

// Contains reports whether the header blob of h exists.
func (t *BlobTier) Contains(ctx context.Context, h *segment.Header) (bool, error) {
	_, err := t.store.Get(ctx, t.headerName(h.ID))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, blobstore.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Put uploads the body, then the header.
func (t *BlobTier) Put(ctx context.Context, h *segment.Header, b *segment.Body) error {
	body, err := EncodeFrame(t.codec, t.compression, b)
	if err != nil {
		return err
	}
	hdr, err := EncodeFrame(t.codec, codec.CompressionNone, h)
	if err != nil {
		return err
	}
	if err := t.put(ctx, t.bodyName(h.ID), body); err != nil {
		return fmt.Errorf("cache: upload body %s: %w", h.ID, err)
	}
	if err := t.put(ctx, t.headerName(h.ID), hdr); err != nil {
		return fmt.Errorf("cache: upload header %s: %w", h.ID, err)
	}

	t.mu.Lock()
	t.known[h.ID] = h
	t.mu.Unlock()

	t.notify(Event{Kind: Created, Header: h, Local: true})
	return nil
}

// Remove deletes the header, then the body.
func (t *BlobTier) Remove(ctx context.Context, h *segment.Header) (bool, error) {
	found, err := t.Contains(ctx, h)
	if err != nil {
		return false, err
	}
	if err := t.store.Delete(ctx, t.headerName(h.ID)); err != nil {
		return found, err
	}
	if err := t.store.Delete(ctx, t.bodyName(h.ID)); err != nil {
		return found, err
	}

	t.mu.Lock()
	delete(t.known, h.ID)
	t.mu.Unlock()

	if found {
		t.notify(Event{Kind: Deleted, Header: h, Local: true})
	}
	return found, nil
}

// Headers lists the store and downloads every header. Corrupt headers are
// logged and skipped.
func (t *BlobTier) Headers(ctx context.Context) ([]*segment.Header, error) {
	ids, err := t.listIDs(ctx)
	if err != nil {
		return nil, err
	}
	headers, err := t.fetchHeaders(ctx, ids)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	for _, h := range headers {
		t.known[h.ID] = h
	}
	t.mu.Unlock()
	return headers, nil
}

// Close is a no-op; the store outlives the tier.
func (t *BlobTier) Close() error { return nil }

func (t *BlobTier) listIDs(ctx context.Context) ([]string, error) {
	names, err := t.store.List(ctx, t.prefix)
	if err != nil {
		return nil, fmt.Errorf("cache: list %q: %w", t.prefix, err)
	}
	ids := make([]string, 0, len(names))
	for _, n := range names {
		if id, ok := t.idOf(n); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (t *BlobTier) fetchHeaders(ctx context.Context, ids []string) ([]*segment.Header, error) {
	out := make([]*segment.Header, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, t.parallelism))
	for i, id := range ids {
		g.Go(func() error {
			data, err := t.get(gctx, t.headerName(id))
			if errors.Is(err, ErrNotFound) {
				return nil // deleted since listing
			}
			if err != nil {
				return err
			}
			h, err := decodeHeader(data)
			if err != nil {
				t.logger.Warn("skipping corrupt segment header", "header", id, "error", err)
				return nil
			}
			out[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	headers := out[:0]
	for _, h := range out {
		if h != nil {
			headers = append(headers, h)
		}
	}
	return headers, nil
}
