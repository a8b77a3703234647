// Command aggcache inspects and maintains the persistent tiers of an
// aggregation cache: a disk tier directory or a local blob store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/hupe1980/aggcache"
	"github.com/hupe1980/aggcache/blobstore"
	"github.com/hupe1980/aggcache/cache"
	"github.com/hupe1980/aggcache/codec"
	"github.com/hupe1980/aggcache/internal/resource"
)

type globalOptions struct {
	disk    string
	blob    string
	prefix  string
	config  string
	ioLimit int64

	cfg aggcache.Config
	rc  *resource.Controller
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Stdout, os.Stderr, os.Args[1:]))
}

func commands() []*Command {
	return []*Command{lsCmd(), showCmd(), purgeCmd(), exportCmd()}
}

func run(ctx context.Context, stdout, stderr io.Writer, args []string) int {
	opts := &globalOptions{}
	fs := flag.NewFlagSet("aggcache", flag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(&strings.Builder{})
	fs.StringVar(&opts.disk, "disk", "", "disk tier directory")
	fs.StringVar(&opts.blob, "blob", "", "local blob store directory")
	fs.StringVar(&opts.prefix, "prefix", "", "blob name prefix")
	fs.StringVarP(&opts.config, "config", "c", "", "config file (JSON with comments)")
	fs.Int64Var(&opts.ioLimit, "io-limit", 0, "IO limit in bytes per second, overrides the config")
	help := fs.BoolP("help", "h", false, "show help")

	cmds := commands()
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		printUsage(stderr, fs, cmds)
		return 1
	}
	if *help || fs.NArg() == 0 {
		printUsage(stdout, fs, cmds)
		return 0
	}

	name, rest := fs.Arg(0), fs.Args()[1:]
	var cmd *Command
	for _, c := range cmds {
		if c.Name() == name {
			cmd = c
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "error: unknown command %q\n\n", name)
		printUsage(stderr, fs, cmds)
		return 1
	}

	tier, err := opts.open()
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	defer tier.Close()

	return cmd.Run(ctx, &env{out: stdout, errw: stderr, tier: tier, opts: opts}, rest)
}

func printUsage(w io.Writer, fs *flag.FlagSet, cmds []*Command) {
	fmt.Fprintln(w, "Usage: aggcache (--disk <dir> | --blob <dir>) [global flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range cmds {
		fmt.Fprintln(w, c.helpLine())
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global flags:")
	fmt.Fprint(w, fs.FlagUsages())
}

// open loads the configuration and opens the selected tier.
func (o *globalOptions) open() (cache.Tier, error) {
	o.cfg = aggcache.DefaultConfig()
	if o.config != "" {
		cfg, err := aggcache.LoadConfig(o.config)
		if err != nil {
			return nil, err
		}
		o.cfg = cfg
	}
	if o.ioLimit > 0 {
		o.cfg.IOLimitBytesPerSec = o.ioLimit
	}
	o.rc = resource.NewController(resource.Config{IOLimitBytesPerSec: o.cfg.IOLimitBytesPerSec})

	comp, err := codec.ParseCompression(o.cfg.DiskCompression)
	if err != nil {
		return nil, err
	}
	switch {
	case o.disk != "" && o.blob != "":
		return nil, errors.New("--disk and --blob are mutually exclusive")
	case o.disk != "":
		return cache.NewDiskTier(cache.DiskConfig{
			Dir:                o.disk,
			Compression:        comp,
			ResourceController: o.rc,
		})
	case o.blob != "":
		return cache.NewBlobTier(blobstore.NewLocalStore(o.blob),
			cache.WithBlobPrefix(o.prefix),
			cache.WithBlobCompression(comp),
			cache.WithBlobResourceController(o.rc),
		), nil
	default:
		return nil, errors.New("one of --disk or --blob is required")
	}
}

func (o *globalOptions) compression() codec.Compression {
	comp, _ := codec.ParseCompression(o.cfg.DiskCompression)
	return comp
}
