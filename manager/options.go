package manager

import (
	"io"
	"log/slog"

	"github.com/hupe1980/aggcache/internal/executor"
)

// DefaultQueueSize is the default capacity of the actor's message queue.
const DefaultQueueSize = 1000

type options struct {
	queueSize int
	ioWorkers int
	ioPool    *executor.Pool
	logger    *slog.Logger
}

// Option configures a Manager.
type Option func(*options)

// WithQueueSize sets the capacity of the message queue.
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithIOWorkers sets the size of the manager's own cache IO pool.
func WithIOWorkers(n int) Option {
	return func(o *options) { o.ioWorkers = n }
}

// WithIOPool runs tier IO on a pool owned by the caller.
func WithIOPool(p *executor.Pool) Option {
	return func(o *options) { o.ioPool = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func defaultOptions() options {
	return options{
		queueSize: DefaultQueueSize,
		ioWorkers: 4,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}
