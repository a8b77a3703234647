package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	natomic "github.com/natefinch/atomic"

	"github.com/hupe1980/aggcache/codec"
	"github.com/hupe1980/aggcache/internal/resource"
	"github.com/hupe1980/aggcache/segment"
)

const (
	headerExt = ".hdr"
	bodyExt   = ".seg"
)

// DiskConfig holds configuration for the disk tier.
type DiskConfig struct {
	// Dir is the directory where segment files are stored.
	Dir string
	// MaxSizeBytes bounds the total size of the files. Unbounded if <= 0.
	MaxSizeBytes int64
	// MinFreeBytes makes Put fail when the filesystem would be left with
	// less free space.
	MinFreeBytes int64
	// Codec serializes headers and bodies. Defaults to codec.Default.
	Codec codec.Codec
	// Compression is applied to bodies.
	Compression codec.Compression
	// ResourceController rate-limits file IO. Optional.
	ResourceController *resource.Controller
	// Logger receives index rebuild warnings. Optional.
	Logger *slog.Logger
}

// DiskTier stores each segment as two files, <id>.hdr and <id>.seg, in a
// directory sharded by the first two characters of the id. It keeps an
// in-memory LRU index of the files, rebuilt by scanning the directory on
// startup.
type DiskTier struct {
	listeners

	mu          sync.Mutex
	cfg         DiskConfig
	currentSize int64
	closed      bool

	items   map[string]*lruEntry
	lruHead *lruEntry
	lruTail *lruEntry

	hits   atomic.Int64
	misses atomic.Int64
}

var _ Tier = (*DiskTier)(nil)

type lruEntry struct {
	header     *segment.Header
	size       int64
	base       string // path without extension
	next, prev *lruEntry
}

// NewDiskTier opens or creates a disk tier.
func NewDiskTier(cfg DiskConfig) (*DiskTier, error) {
	if cfg.Dir == "" {
		return nil, errors.New("cache: disk tier needs a directory")
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.Default
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	c := &DiskTier{
		cfg:   cfg,
		items: make(map[string]*lruEntry),
	}
	if err := c.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("cache: scan %s: %w", cfg.Dir, err)
	}
	return c, nil
}

// Dir returns the tier directory.
func (c *DiskTier) Dir() string { return c.cfg.Dir }

func (c *DiskTier) scanExistingFiles() error {
	return filepath.WalkDir(c.cfg.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case bodyExt:
			return nil
		case headerExt:
		default:
			// leftovers of interrupted writes
			c.cfg.Logger.Debug("removing stray file", "path", path)
			_ = os.Remove(path)
			return nil
		}

		base := strings.TrimSuffix(path, headerExt)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		h, err := decodeHeader(data)
		if err != nil {
			c.cfg.Logger.Warn("dropping corrupt segment", "path", path, "error", err)
			removeFiles(base)
			return nil
		}
		info, err := os.Stat(base + bodyExt)
		if err != nil {
			c.cfg.Logger.Warn("dropping segment without body", "header", h.ID, "error", err)
			removeFiles(base)
			return nil
		}
		c.addToLRU(h, base, int64(len(data))+info.Size())
		return nil
	})
}

func (c *DiskTier) basePath(id string) string {
	shard := "_"
	if len(id) >= 2 {
		shard = id[:2]
	}
	return filepath.Join(c.cfg.Dir, shard, id)
}

// Get reads the body of h.
func (c *DiskTier) Get(ctx context.Context, h *segment.Header) (*segment.Body, error) {
	c.mu.Lock()
	ent, ok := c.items[h.ID]
	if ok {
		c.moveToFront(ent)
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return nil, ErrNotFound
	}

	data, err := c.readFile(ctx, ent.base+bodyExt)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.mu.Lock()
			if cur, ok := c.items[h.ID]; ok && cur == ent {
				c.removeEntry(ent)
			}
			c.mu.Unlock()
			c.misses.Add(1)
			return nil, ErrNotFound
		}
		return nil, err
	}
	b, err := decodeBody(data)
	if err != nil {
		return nil, err
	}
	c.hits.Add(1)
	return b, nil
}

// Contains reports whether the index holds h.
func (c *DiskTier) Contains(_ context.Context, h *segment.Header) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[h.ID]
	return ok, nil
}

// Put writes the body file, then the header file. Least recently used
// segments are evicted to stay within MaxSizeBytes.
func (c *DiskTier) Put(ctx context.Context, h *segment.Header, b *segment.Body) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	hdr, err := EncodeFrame(c.cfg.Codec, codec.CompressionNone, h)
	if err != nil {
		return err
	}
	body, err := EncodeFrame(c.cfg.Codec, c.cfg.Compression, b)
	if err != nil {
		return err
	}
	size := int64(len(hdr) + len(body))
	if c.cfg.MaxSizeBytes > 0 && size > c.cfg.MaxSizeBytes {
		return fmt.Errorf("%w: %d bytes exceed capacity %d", ErrRejected, size, c.cfg.MaxSizeBytes)
	}
	if c.cfg.MinFreeBytes > 0 {
		free, err := freeBytes(c.cfg.Dir)
		if err == nil && free >= 0 && free-size < c.cfg.MinFreeBytes {
			return fmt.Errorf("%w: %d bytes free on %s", ErrRejected, free, c.cfg.Dir)
		}
	}

	base := c.basePath(h.ID)
	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return err
	}
	if err := c.writeFile(ctx, base+bodyExt, body); err != nil {
		return err
	}
	if err := c.writeFile(ctx, base+headerExt, hdr); err != nil {
		_ = os.Remove(base + bodyExt)
		return err
	}

	c.mu.Lock()
	if old, ok := c.items[h.ID]; ok {
		c.removeEntry(old)
	}
	var evicted []Event
	for c.cfg.MaxSizeBytes > 0 && c.currentSize+size > c.cfg.MaxSizeBytes && c.lruTail != nil {
		evicted = append(evicted, Event{Kind: Deleted, Header: c.lruTail.header})
		c.evictOne()
	}
	c.addToLRU(h, base, size)
	c.mu.Unlock()

	c.notify(evicted...)
	c.notify(Event{Kind: Created, Header: h, Local: true})
	return nil
}

// Remove deletes the files of h.
func (c *DiskTier) Remove(_ context.Context, h *segment.Header) (bool, error) {
	c.mu.Lock()
	ent, ok := c.items[h.ID]
	if ok {
		c.removeEntry(ent)
	}
	c.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := os.Remove(ent.base + headerExt); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return true, err
	}
	if err := os.Remove(ent.base + bodyExt); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return true, err
	}
	c.notify(Event{Kind: Deleted, Header: h, Local: true})
	return true, nil
}

// Headers lists the indexed headers, most recently used first.
func (c *DiskTier) Headers(_ context.Context) ([]*segment.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*segment.Header, 0, len(c.items))
	for e := c.lruHead; e != nil; e = e.next {
		out = append(out, e.header)
	}
	return out, nil
}

// Close stops accepting writes. Files stay on disk for the next process.
func (c *DiskTier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Stats returns hit and miss counts.
func (c *DiskTier) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Size returns the total size of the indexed files.
func (c *DiskTier) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize
}

func (c *DiskTier) readFile(ctx context.Context, path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(resource.NewRateLimitedReader(ctx, f, c.cfg.ResourceController))
}

func (c *DiskTier) writeFile(ctx context.Context, path string, data []byte) error {
	return natomic.WriteFile(path, resource.NewRateLimitedReader(ctx, bytes.NewReader(data), c.cfg.ResourceController))
}

func removeFiles(base string) {
	_ = os.Remove(base + headerExt)
	_ = os.Remove(base + bodyExt)
}

// Internal LRU helpers (must hold lock)

func (c *DiskTier) addToLRU(h *segment.Header, base string, size int64) {
	ent := &lruEntry{
		header: h,
		base:   base,
		size:   size,
	}
	c.items[h.ID] = ent
	c.currentSize += size

	if c.lruHead == nil {
		c.lruHead = ent
		c.lruTail = ent
	} else {
		ent.next = c.lruHead
		c.lruHead.prev = ent
		c.lruHead = ent
	}
}

func (c *DiskTier) moveToFront(ent *lruEntry) {
	if c.lruHead == ent {
		return
	}

	if ent.prev != nil {
		ent.prev.next = ent.next
	}
	if ent.next != nil {
		ent.next.prev = ent.prev
	}
	if c.lruTail == ent {
		c.lruTail = ent.prev
	}

	ent.next = c.lruHead
	ent.prev = nil
	if c.lruHead != nil {
		c.lruHead.prev = ent
	}
	c.lruHead = ent
	if c.lruTail == nil {
		c.lruTail = ent
	}
}

func (c *DiskTier) removeEntry(ent *lruEntry) {
	if ent.prev != nil {
		ent.prev.next = ent.next
	} else {
		c.lruHead = ent.next
	}

	if ent.next != nil {
		ent.next.prev = ent.prev
	} else {
		c.lruTail = ent.prev
	}
	ent.next, ent.prev = nil, nil

	delete(c.items, ent.header.ID)
	c.currentSize -= ent.size
}

func (c *DiskTier) evictOne() {
	if c.lruTail == nil {
		return
	}
	ent := c.lruTail
	c.removeEntry(ent)
	removeFiles(ent.base)
}
