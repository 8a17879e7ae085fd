package errhandler

import (
	"context"
	"fmt"
	"sync"

	"github.com/jathurchan/bgerr/logger"
	"github.com/jathurchan/bgerr/types"
)

// SpaceMonitor reports whether the engine's storage has enough free capacity
// to resume writing. It is polled by the no-space recovery loop.
type SpaceMonitor interface {
	EnoughSpaceAvailable(ctx context.Context) (bool, error)
}

// SpaceMonitorFunc adapts a function to the SpaceMonitor interface.
type SpaceMonitorFunc func(ctx context.Context) (bool, error)

// EnoughSpaceAvailable calls f(ctx).
func (f SpaceMonitorFunc) EnoughSpaceAvailable(ctx context.Context) (bool, error) { return f(ctx) }

// RetryFunc re-attempts the stalled background operation that failed with the
// given reason. It returns the ok outcome once the operation succeeds.
// ctx is cancelled when recovery is cancelled.
type RetryFunc func(ctx context.Context, reason types.Reason) types.Outcome

// Dependencies bundles the host collaborators required by an ErrorHandler.
type Dependencies struct {
	// Mu is the host mutex guarding the handler's state. Required.
	Mu sync.Locker

	// Cond is the condition variable used for recovery backoff waits.
	// It must be built on Mu. A new one is created when nil.
	Cond *Cond

	// Clock drives backoff waits. Defaults to the standard clock.
	Clock Clock

	// Logger provides structured logging. Defaults to a no-op logger.
	Logger logger.Logger

	// Metrics records operational metrics. Defaults to no-op metrics.
	Metrics Metrics

	// SpaceMonitor probes capacity for the no-space recovery path. When nil,
	// no-space errors are not recovered automatically.
	SpaceMonitor SpaceMonitor

	// RetryHooks re-run the failed background operation, keyed by the reason
	// it was recorded with. Retryable I/O errors from a reason without a hook
	// are not recovered automatically.
	RetryHooks map[types.Reason]RetryFunc

	// Listeners are notified of recorded errors and recovery progress.
	Listeners []EventListener
}

// Validate checks that all required dependencies are provided.
// Optional dependencies may be nil.
func (d *Dependencies) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: dependencies struct cannot be nil", ErrMissingDependencies)
	}
	if d.Mu == nil {
		return fmt.Errorf("%w: Mu dependency cannot be nil", ErrMissingDependencies)
	}
	if d.Cond != nil && d.Cond.L != d.Mu {
		return ErrCondLockMismatch
	}
	return nil
}
