package errhandler

import "errors"

var (
	// ErrMissingDependencies is returned when required dependencies are not provided.
	ErrMissingDependencies = errors.New("errhandler: missing required dependencies")

	// ErrCondLockMismatch is returned when the supplied Cond is not built on the supplied mutex.
	ErrCondLockMismatch = errors.New("errhandler: cond must use the host mutex")

	// ErrInvalidOptions is returned when Options fail validation.
	ErrInvalidOptions = errors.New("errhandler: invalid options")

	// ErrRecoveryInProgress is returned when a recovery is requested while another is running.
	ErrRecoveryInProgress = errors.New("errhandler: recovery already in progress")

	// ErrNotRetryable is returned when a retryable-I/O recovery is requested for an
	// outcome that does not qualify.
	ErrNotRetryable = errors.New("errhandler: error is not eligible for retryable I/O recovery")

	// ErrShutdownContractViolated is returned by Close when auto-recovery was not
	// ended before the handler was released.
	ErrShutdownContractViolated = errors.New("errhandler: closed without EndAutoRecovery")
)
