package aggcache

import (
	"errors"
	"fmt"

	"github.com/hupe1980/aggcache/internal/executor"
	"github.com/hupe1980/aggcache/manager"
	"github.com/hupe1980/aggcache/segment"
)

var (
	// ErrUnsatisfiable is returned for a cell request whose constraints
	// contradict each other. No load is attempted for it.
	ErrUnsatisfiable = errors.New("unsatisfiable cell request")

	// ErrNotCached is returned by Reader.Get for a cell that is not in the
	// cache yet. The request is recorded and answered after Reader.Load.
	ErrNotCached = errors.New("cell not cached")

	// ErrQuotaExceeded is returned by Reader.Get when the reader already
	// holds the maximum number of outstanding requests. It is a control
	// signal: the caller should Load and retry.
	ErrQuotaExceeded = errors.New("cell request quota exceeded")

	// ErrLoadFailed matches every *LoadError.
	ErrLoadFailed = segment.ErrLoadFailed

	// ErrClosed is returned after the cache has been closed.
	ErrClosed = errors.New("cache closed")
)

// IsControl reports whether err is a control signal rather than a failure.
func IsControl(err error) bool {
	return errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrNotCached)
}

// LoadError indicates that the segment holding a cell could not be loaded.
//
// The original underlying error can be accessed via errors.Unwrap.
type LoadError struct {
	// Header describes the segment.
	Header string
	cause  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load of %s failed: %v", e.Header, e.cause)
}

func (e *LoadError) Unwrap() error { return e.cause }

// Is makes errors.Is(err, ErrLoadFailed) hold.
func (e *LoadError) Is(target error) bool { return target == ErrLoadFailed }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, manager.ErrClosed) || errors.Is(err, executor.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	var le *segment.LoadError
	if errors.As(err, &le) {
		return &LoadError{Header: le.Segment, cause: le.Err}
	}

	return err
}
