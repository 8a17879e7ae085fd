package errhandler

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultBackoffBase is the first wait between recovery attempts.
	DefaultBackoffBase = 1 * time.Second

	// DefaultBackoffCap bounds the wait between recovery attempts.
	DefaultBackoffCap = 30 * time.Second

	// DefaultBackoffMultiplier is the growth factor applied after each wait.
	DefaultBackoffMultiplier = 2.0

	// DefaultMaxRetryAttempts caps the retryable I/O recovery loop.
	DefaultMaxRetryAttempts = 10

	// DefaultDiscardedErrorLogInterval limits how often discarded errors are logged.
	DefaultDiscardedErrorLogInterval = 1 * time.Second
)

// Options tunes classification follow-up and the recovery loops.
type Options struct {
	// AutoRecovery enables background self-healing from the moment the handler
	// is created. It can be enabled later with EnableAutoRecovery.
	// Default: true
	AutoRecovery bool

	// BackoffBase is the wait before the first retry or capacity poll.
	// Default: 1s
	BackoffBase time.Duration

	// BackoffCap is the longest wait between two attempts.
	// Default: 30s
	BackoffCap time.Duration

	// BackoffMultiplier grows the wait after each attempt until BackoffCap.
	// Default: 2
	BackoffMultiplier float64

	// BackoffJitter randomizes each wait by ±BackoffJitter of its value.
	// Default: 0 (deterministic)
	BackoffJitter float64

	// MaxRetryAttempts caps the number of retry-hook invocations for a
	// retryable I/O failure. The no-space path has no cap.
	// Default: 10
	MaxRetryAttempts int

	// DiscardedErrorLogInterval is the minimum spacing between log lines for
	// errors discarded because an equal or worse error is already recorded.
	// Zero logs every discarded error.
	// Default: 1s
	DiscardedErrorLogInterval time.Duration
}

// DefaultOptions returns the recommended Options.
func DefaultOptions() Options {
	return Options{
		AutoRecovery:              true,
		BackoffBase:               DefaultBackoffBase,
		BackoffCap:                DefaultBackoffCap,
		BackoffMultiplier:         DefaultBackoffMultiplier,
		MaxRetryAttempts:          DefaultMaxRetryAttempts,
		DiscardedErrorLogInterval: DefaultDiscardedErrorLogInterval,
	}
}

// Validate checks that the options describe a usable backoff schedule.
func (o Options) Validate() error {
	if o.BackoffBase <= 0 {
		return fmt.Errorf("%w: BackoffBase must be positive, got %v", ErrInvalidOptions, o.BackoffBase)
	}
	if o.BackoffCap < o.BackoffBase {
		return fmt.Errorf("%w: BackoffCap (%v) must be >= BackoffBase (%v)",
			ErrInvalidOptions, o.BackoffCap, o.BackoffBase)
	}
	if o.BackoffMultiplier < 1 {
		return fmt.Errorf("%w: BackoffMultiplier must be >= 1, got %v", ErrInvalidOptions, o.BackoffMultiplier)
	}
	if o.BackoffJitter < 0 || o.BackoffJitter >= 1 {
		return fmt.Errorf("%w: BackoffJitter must be in [0, 1), got %v", ErrInvalidOptions, o.BackoffJitter)
	}
	if o.MaxRetryAttempts < 1 {
		return fmt.Errorf("%w: MaxRetryAttempts must be >= 1, got %d", ErrInvalidOptions, o.MaxRetryAttempts)
	}
	if o.DiscardedErrorLogInterval < 0 {
		return fmt.Errorf("%w: DiscardedErrorLogInterval must not be negative", ErrInvalidOptions)
	}
	return nil
}

// newBackoff builds the wait schedule for one recovery run. It never stops on
// its own: the caller decides when to give up.
func newBackoff(o Options, clock Clock) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     o.BackoffBase,
		RandomizationFactor: o.BackoffJitter,
		Multiplier:          o.BackoffMultiplier,
		MaxInterval:         o.BackoffCap,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               clock,
	}
	b.Reset()
	return b
}
