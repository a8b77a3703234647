package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/hupe1980/aggcache/cache"
)

// env is what a command runs against.
type env struct {
	out  io.Writer
	errw io.Writer
	tier cache.Tier
	opts *globalOptions
}

func (e *env) printf(format string, args ...any) {
	fmt.Fprintf(e.out, format, args...)
}

// Command is one subcommand.
type Command struct {
	Flags *flag.FlagSet
	// Usage is shown after "aggcache" in help, e.g. "show <id>".
	Usage string
	Short string
	Long  string
	Exec  func(ctx context.Context, e *env, args []string) error
}

// Name returns the first word of Usage.
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

func (c *Command) helpLine() string {
	return fmt.Sprintf("  %-26s %s", c.Usage, c.Short)
}

func (c *Command) printHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: aggcache [global flags]", c.Usage)
	fmt.Fprintln(w)
	desc := c.Long
	if desc == "" {
		desc = c.Short
	}
	fmt.Fprintln(w, desc)
	if c.Flags != nil && c.Flags.HasFlags() {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Flags:")
		var buf strings.Builder
		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		fmt.Fprint(w, buf.String())
	}
}

// Run parses flags and executes the command. It returns the exit code.
func (c *Command) Run(ctx context.Context, e *env, args []string) int {
	c.Flags.SetOutput(&strings.Builder{})
	if err := c.Flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.printHelp(e.out)
			return 0
		}
		fmt.Fprintln(e.errw, "error:", err)
		fmt.Fprintln(e.errw)
		c.printHelp(e.errw)
		return 1
	}
	if err := c.Exec(ctx, e, c.Flags.Args()); err != nil {
		fmt.Fprintln(e.errw, "error:", err)
		return 1
	}
	return 0
}
