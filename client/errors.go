package client

import "errors"

var (
	// ErrRetriesExhausted wraps the last error once MaxRetries retries have failed.
	ErrRetriesExhausted = errors.New("client: retries exhausted")

	// ErrInvalidRetryPolicy indicates a RetryPolicy that cannot schedule retries.
	ErrInvalidRetryPolicy = errors.New("client: invalid retry policy")
)
