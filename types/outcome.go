package types

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"syscall"
)

var (
	// ErrCorruption matches outcomes carrying CodeCorruption.
	ErrCorruption = errors.New("bgerr: corruption")

	// ErrIO matches outcomes carrying CodeIOError or the I/O marker.
	ErrIO = errors.New("bgerr: I/O error")

	// ErrNoSpace matches I/O outcomes caused by exhausted capacity or quota.
	ErrNoSpace = errors.New("bgerr: no space left")

	// ErrBusy matches outcomes carrying CodeBusy.
	ErrBusy = errors.New("bgerr: busy")

	// ErrNotSupported matches outcomes carrying CodeNotSupported.
	ErrNotSupported = errors.New("bgerr: not supported")

	// ErrShutdownInProgress matches outcomes carrying CodeShutdownInProgress.
	ErrShutdownInProgress = errors.New("bgerr: shutdown in progress")
)

// Outcome is the result of a storage operation. The zero value is ok.
// Outcomes are values and are never mutated after they are produced.
type Outcome struct {
	Code     Code
	SubCode  SubCode
	Severity Severity

	// IsIO marks outcomes produced by the I/O layer, regardless of Code.
	IsIO bool

	// Retryable is set by the producer when the failure is known to be transient.
	Retryable bool

	Msg string
}

// OK returns the ok outcome.
func OK() Outcome { return Outcome{} }

// New returns a non-I/O outcome with the given code and sub-code.
func New(code Code, sub SubCode, msg string) Outcome {
	return Outcome{Code: code, SubCode: sub, Msg: msg}
}

// Corruption returns an outcome for data that failed an integrity check.
func Corruption(msg string) Outcome {
	return Outcome{Code: CodeCorruption, Msg: msg}
}

// IOError returns an I/O outcome with the given sub-code.
func IOError(sub SubCode, msg string) Outcome {
	return Outcome{Code: CodeIOError, SubCode: sub, IsIO: true, Msg: msg}
}

// NoSpace returns an I/O outcome for a device that ran out of capacity.
func NoSpace(msg string) Outcome {
	return IOError(SubCodeNoSpace, msg)
}

// RetryableIOError returns a generic I/O outcome flagged as transient.
func RetryableIOError(msg string) Outcome {
	o := IOError(SubCodeNone, msg)
	o.Retryable = true
	return o
}

// Busy returns an outcome for a request rejected by a conflicting operation.
func Busy(msg string) Outcome {
	return Outcome{Code: CodeBusy, Msg: msg}
}

// NotSupported returns an outcome for a request the current state cannot serve.
func NotSupported(msg string) Outcome {
	return Outcome{Code: CodeNotSupported, Msg: msg}
}

// ShutdownInProgress returns an outcome for work abandoned due to shutdown.
func ShutdownInProgress(msg string) Outcome {
	return Outcome{Code: CodeShutdownInProgress, Msg: msg}
}

// IsOK reports whether the outcome is a success.
func (o Outcome) IsOK() bool { return o.Code == CodeOK }

// IsIOCategory reports whether the outcome belongs to the I/O category.
func (o Outcome) IsIOCategory() bool { return o.Code == CodeIOError || o.IsIO }

// IsNoSpace reports whether the outcome is an I/O failure caused by exhausted
// capacity or a space quota.
func (o Outcome) IsNoSpace() bool {
	return o.IsIOCategory() && (o.SubCode == SubCodeNoSpace || o.SubCode == SubCodeSpaceLimit)
}

// WithSeverity returns a copy of the outcome with its severity replaced.
func (o Outcome) WithSeverity(s Severity) Outcome {
	o.Severity = s
	return o
}

// String returns a human-readable form, e.g. "IOError(NoSpace) [soft]: disk full".
func (o Outcome) String() string {
	if o.IsOK() {
		return "OK"
	}
	var b strings.Builder
	b.WriteString(o.Code.String())
	if o.SubCode != SubCodeNone {
		fmt.Fprintf(&b, "(%s)", o.SubCode)
	}
	if o.Severity != SeverityNone {
		fmt.Fprintf(&b, " [%s]", o.Severity)
	}
	if o.Msg != "" {
		b.WriteString(": ")
		b.WriteString(o.Msg)
	}
	return b.String()
}

// Err converts a non-ok outcome into an error. It returns nil for ok outcomes.
func (o Outcome) Err() error {
	if o.IsOK() {
		return nil
	}
	return &OutcomeError{Outcome: o}
}

// OutcomeError carries a non-ok Outcome through error-returning APIs.
// It matches the package sentinels with errors.Is.
type OutcomeError struct {
	Outcome Outcome
}

// Error implements the error interface.
func (e *OutcomeError) Error() string { return e.Outcome.String() }

// Unwrap exposes the sentinels describing the outcome.
func (e *OutcomeError) Unwrap() []error {
	var errs []error
	switch e.Outcome.Code {
	case CodeCorruption:
		errs = append(errs, ErrCorruption)
	case CodeBusy:
		errs = append(errs, ErrBusy)
	case CodeNotSupported:
		errs = append(errs, ErrNotSupported)
	case CodeShutdownInProgress:
		errs = append(errs, ErrShutdownInProgress)
	}
	if e.Outcome.IsIOCategory() {
		errs = append(errs, ErrIO)
	}
	if e.Outcome.IsNoSpace() {
		errs = append(errs, ErrNoSpace)
	}
	return errs
}

// FromError maps a Go error returned by filesystem or background code into an
// Outcome. A nil error maps to the ok outcome.
func FromError(err error) Outcome {
	if err == nil {
		return OK()
	}

	var oe *OutcomeError
	if errors.As(err, &oe) {
		return oe.Outcome
	}

	msg := err.Error()
	switch {
	case errors.Is(err, syscall.ENOSPC):
		return IOError(SubCodeNoSpace, msg)
	case errors.Is(err, syscall.EDQUOT):
		return IOError(SubCodeSpaceLimit, msg)
	case errors.Is(err, os.ErrPermission):
		return IOError(SubCodePermissionDenied, msg)
	case errors.Is(err, os.ErrNotExist):
		return IOError(SubCodePathNotFound, msg)
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.Is(err, syscall.ETIMEDOUT):
		o := IOError(SubCodeTimeout, msg)
		o.Retryable = true
		return o
	case errors.Is(err, syscall.EIO), errors.Is(err, syscall.EAGAIN):
		return RetryableIOError(msg)
	case errors.Is(err, context.Canceled):
		return New(CodeAborted, SubCodeNone, msg)
	}

	var pathErr *fs.PathError
	var sysErr *os.SyscallError
	if errors.As(err, &pathErr) || errors.As(err, &sysErr) {
		return IOError(SubCodeNone, msg)
	}
	return New(CodeAborted, SubCodeNone, msg)
}
