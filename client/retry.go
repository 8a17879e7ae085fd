// Package client retries calls rejected by a server whose writes are halted
// by a recoverable background error.
package client

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jathurchan/bgerr/server"
)

// RetryPolicy defines how calls are retried.
type RetryPolicy struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retries).
	MaxRetries int

	// InitialBackoff is the delay before the first retry when the server
	// does not advertise one.
	InitialBackoff time.Duration

	// MaxBackoff caps every delay, including server-advertised ones.
	MaxBackoff time.Duration

	// BackoffMultiplier determines how backoff increases between retries.
	BackoffMultiplier float64

	// JitterFactor adds randomness to backoff timing (0.0 to 1.0).
	JitterFactor float64
}

// DefaultRetryPolicy returns a policy suited to waiting out a short recovery.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFactor:      0.1,
	}
}

// Validate checks that the policy can schedule retries.
func (p RetryPolicy) Validate() error {
	switch {
	case p.MaxRetries < 0:
		return fmt.Errorf("%w: MaxRetries must be >= 0", ErrInvalidRetryPolicy)
	case p.InitialBackoff <= 0 || p.MaxBackoff < p.InitialBackoff:
		return fmt.Errorf("%w: need 0 < InitialBackoff <= MaxBackoff", ErrInvalidRetryPolicy)
	case p.BackoffMultiplier < 1:
		return fmt.Errorf("%w: BackoffMultiplier must be >= 1", ErrInvalidRetryPolicy)
	case p.JitterFactor < 0 || p.JitterFactor > 1:
		return fmt.Errorf("%w: JitterFactor must be in [0, 1]", ErrInvalidRetryPolicy)
	}
	return nil
}

// Retrier runs calls under a RetryPolicy.
type Retrier struct {
	policy RetryPolicy
	rand   func() float64
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetrier returns a Retrier for policy.
func NewRetrier(policy RetryPolicy) (*Retrier, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Retrier{policy: policy, rand: rand.Float64, sleep: sleepContext}, nil
}

// Do calls fn until it succeeds, returns a non-retryable error, ctx ends, or
// the policy's retries are used up.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt >= r.policy.MaxRetries {
			return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt+1, err)
		}
		if serr := r.sleep(ctx, r.delay(attempt+1, err)); serr != nil {
			return serr
		}
	}
}

// delay returns the wait before retry number attempt (starting at 1). A
// server-advertised RetryInfo delay takes precedence over the backoff.
func (r *Retrier) delay(attempt int, err error) time.Duration {
	if d, ok := RetryDelay(err); ok {
		return min(d, r.policy.MaxBackoff)
	}

	backoff := float64(r.policy.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= r.policy.BackoffMultiplier
	}
	if backoff > float64(r.policy.MaxBackoff) {
		backoff = float64(r.policy.MaxBackoff)
	}
	if r.policy.JitterFactor > 0 {
		backoff += (r.rand()*2 - 1) * r.policy.JitterFactor * backoff
	}
	if backoff < 0 {
		return 0
	}
	return time.Duration(backoff)
}

// IsRetryable reports whether err may succeed if sent again. Statuses that
// carry a server ErrorInfo are retryable only when they also carry a
// RetryInfo; others fall back to the transient gRPC codes.
func IsRetryable(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	if _, ok := ErrorInfo(err); ok {
		_, retry := RetryDelay(err)
		return retry
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}

// ErrorInfo extracts the background error details attached by the server.
func ErrorInfo(err error) (*errdetails.ErrorInfo, bool) {
	st, ok := status.FromError(err)
	if !ok {
		return nil, false
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == server.ErrorDomain {
			return info, true
		}
	}
	return nil, false
}

// RetryDelay extracts the server-advertised retry delay.
func RetryDelay(err error) (time.Duration, bool) {
	st, ok := status.FromError(err)
	if !ok {
		return 0, false
	}
	for _, d := range st.Details() {
		if ri, ok := d.(*errdetails.RetryInfo); ok && ri.GetRetryDelay() != nil {
			return ri.GetRetryDelay().AsDuration(), true
		}
	}
	return 0, false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
