package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	flag "github.com/spf13/pflag"

	"github.com/hupe1980/aggcache/cache"
	"github.com/hupe1980/aggcache/codec"
	"github.com/hupe1980/aggcache/internal/resource"
	"github.com/hupe1980/aggcache/segment"
)

// filter selects headers by schema and cube.
type filter struct {
	schema string
	cube   string
}

func (f *filter) register(fs *flag.FlagSet) {
	fs.StringVar(&f.schema, "schema", "", "only segments of this schema")
	fs.StringVar(&f.cube, "cube", "", "only segments of this cube")
}

func (f *filter) match(h *segment.Header) bool {
	return (f.schema == "" || h.SchemaName == f.schema) && (f.cube == "" || h.CubeName == f.cube)
}

func (f *filter) empty() bool { return f.schema == "" && f.cube == "" }

func headers(ctx context.Context, t cache.Tier, f *filter) ([]*segment.Header, error) {
	all, err := t.Headers(ctx)
	if err != nil {
		return nil, err
	}
	var out []*segment.Header
	for _, h := range all {
		if f == nil || f.match(h) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// find resolves an id or a unique id prefix.
func find(ctx context.Context, t cache.Tier, id string) (*segment.Header, error) {
	all, err := headers(ctx, t, nil)
	if err != nil {
		return nil, err
	}
	var found *segment.Header
	for _, h := range all {
		if !strings.HasPrefix(h.ID, id) {
			continue
		}
		if h.ID == id {
			return h, nil
		}
		if found != nil {
			return nil, fmt.Errorf("ambiguous id prefix %q", id)
		}
		found = h
	}
	if found == nil {
		return nil, fmt.Errorf("no segment %q", id)
	}
	return found, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func lsCmd() *Command {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	var f filter
	f.register(fs)
	asJSON := fs.Bool("json", false, "print headers as JSON lines")

	return &Command{
		Flags: fs,
		Usage: "ls [flags]",
		Short: "List cached segments",
		Exec: func(ctx context.Context, e *env, _ []string) error {
			hs, err := headers(ctx, e.tier, &f)
			if err != nil {
				return err
			}
			for _, h := range hs {
				if *asJSON {
					data, err := json.Marshal(h)
					if err != nil {
						return err
					}
					e.printf("%s\n", data)
					continue
				}
				e.printf("%s  %s  %s\n", shortID(h.ID), h.SchemaName, h)
			}
			return nil
		},
	}
}

// bodyInfo summarizes a body for show.
type bodyInfo struct {
	Kind  string `json:"kind"`
	Type  string `json:"type"`
	Dims  []int  `json:"dims"`
	Cells int    `json:"cells"`
}

func describeBody(b *segment.Body) bodyInfo {
	info := bodyInfo{Kind: b.Kind.String(), Type: b.Type.String(), Dims: b.Dims()}
	switch b.Kind {
	case segment.SparseBody:
		info.Cells = len(b.Keys)
	default:
		n := 1
		for _, d := range info.Dims {
			n *= d
		}
		info.Cells = n - len(b.Nulls)
	}
	return info
}

func showCmd() *Command {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	withBody := fs.Bool("body", false, "also read the body")

	return &Command{
		Flags: fs,
		Usage: "show <id> [flags]",
		Short: "Print a segment header as JSON",
		Long:  "Print a segment header as JSON. The id may be a unique prefix.",
		Exec: func(ctx context.Context, e *env, args []string) error {
			if len(args) != 1 {
				return errors.New("show takes exactly one id")
			}
			h, err := find(ctx, e.tier, args[0])
			if err != nil {
				return err
			}
			out := struct {
				Header *segment.Header `json:"header"`
				Valid  bool            `json:"valid"`
				Body   *bodyInfo       `json:"body,omitempty"`
			}{Header: h, Valid: h.Verify()}
			if *withBody {
				b, err := e.tier.Get(ctx, h)
				if err != nil {
					return err
				}
				info := describeBody(b)
				out.Body = &info
			}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			e.printf("%s\n", data)
			return nil
		},
	}
}

func purgeCmd() *Command {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	var f filter
	f.register(fs)
	all := fs.Bool("all", false, "remove every segment")
	dryRun := fs.BoolP("dry-run", "n", false, "only list what would be removed")

	return &Command{
		Flags: fs,
		Usage: "purge (--all | --schema <name> [--cube <name>]) [flags]",
		Short: "Remove segments",
		Exec: func(ctx context.Context, e *env, _ []string) error {
			if f.empty() && !*all {
				return errors.New("purge needs --all or a filter")
			}
			hs, err := headers(ctx, e.tier, &f)
			if err != nil {
				return err
			}
			removed := 0
			for _, h := range hs {
				if *dryRun {
					e.printf("would remove %s  %s\n", shortID(h.ID), h)
					continue
				}
				ok, err := e.tier.Remove(ctx, h)
				if err != nil {
					return fmt.Errorf("remove %s: %w", shortID(h.ID), err)
				}
				if ok {
					removed++
				}
			}
			if !*dryRun {
				e.printf("removed %d segments\n", removed)
			}
			return nil
		},
	}
}

func exportCmd() *Command {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	codecName := fs.String("codec", codec.Default.Name(), "payload codec")

	return &Command{
		Flags: fs,
		Usage: "export <id> <file> [flags]",
		Short: "Write a segment body to a file as a checksummed frame",
		Exec: func(ctx context.Context, e *env, args []string) error {
			if len(args) != 2 {
				return errors.New("export takes an id and a file")
			}
			c, ok := codec.ByName(*codecName)
			if !ok {
				return fmt.Errorf("unknown codec %q", *codecName)
			}
			h, err := find(ctx, e.tier, args[0])
			if err != nil {
				return err
			}
			b, err := e.tier.Get(ctx, h)
			if err != nil {
				return err
			}
			frame, err := cache.EncodeFrame(c, e.opts.compression(), b)
			if err != nil {
				return err
			}

			f, err := os.Create(args[1])
			if err != nil {
				return err
			}
			w := resource.NewRateLimitedWriter(ctx, f, e.opts.rc)
			if _, err := io.Copy(w, bytes.NewReader(frame)); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			e.printf("wrote %d bytes to %s\n", len(frame), args[1])
			return nil
		},
	}
}
