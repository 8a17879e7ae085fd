package types

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcome_ZeroValueIsOK(t *testing.T) {
	var o Outcome
	assert.True(t, o.IsOK())
	assert.Equal(t, OK(), o)
	assert.Equal(t, "OK", o.String())
	assert.NoError(t, o.Err())
}

func TestOutcome_Predicates(t *testing.T) {
	assert.True(t, NoSpace("x").IsNoSpace())
	assert.True(t, IOError(SubCodeSpaceLimit, "x").IsNoSpace())
	assert.False(t, IOError(SubCodeTimeout, "x").IsNoSpace())
	assert.False(t, New(CodeAborted, SubCodeNoSpace, "x").IsNoSpace(), "no-space requires the I/O category")

	marked := New(CodeAborted, SubCodeNoSpace, "x")
	marked.IsIO = true
	assert.True(t, marked.IsIOCategory())
	assert.True(t, marked.IsNoSpace())

	assert.True(t, RetryableIOError("x").Retryable)
	assert.False(t, Corruption("x").IsIOCategory())
}

func TestOutcome_WithSeverityCopies(t *testing.T) {
	o := NoSpace("disk full")
	soft := o.WithSeverity(SeveritySoft)
	assert.Equal(t, SeverityNone, o.Severity)
	assert.Equal(t, SeveritySoft, soft.Severity)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "IOError(NoSpace) [soft]: disk full", NoSpace("disk full").WithSeverity(SeveritySoft).String())
	assert.Equal(t, "Corruption", Corruption("").String())
	assert.Equal(t, "Busy: recovery running", Busy("recovery running").String())
}

func TestOutcome_ErrMatchesSentinels(t *testing.T) {
	err := NoSpace("disk full").Err()
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, ErrNoSpace)
	assert.NotErrorIs(t, err, ErrCorruption)

	wrapped := fmt.Errorf("flush: %w", Corruption("bad block").Err())
	assert.ErrorIs(t, wrapped, ErrCorruption)
	assert.NotErrorIs(t, wrapped, ErrIO)

	assert.ErrorIs(t, Busy("x").Err(), ErrBusy)
	assert.ErrorIs(t, NotSupported("x").Err(), ErrNotSupported)
	assert.ErrorIs(t, ShutdownInProgress("x").Err(), ErrShutdownInProgress)

	var oe *OutcomeError
	assert.True(t, errors.As(wrapped, &oe))
	assert.Equal(t, CodeCorruption, oe.Outcome.Code)
}

func TestFromError(t *testing.T) {
	pathErr := func(errno syscall.Errno) error {
		return &fs.PathError{Op: "write", Path: "/data/000042.sst", Err: errno}
	}

	tests := []struct {
		name      string
		err       error
		code      Code
		sub       SubCode
		retryable bool
	}{
		{"enospc", pathErr(syscall.ENOSPC), CodeIOError, SubCodeNoSpace, false},
		{"edquot", pathErr(syscall.EDQUOT), CodeIOError, SubCodeSpaceLimit, false},
		{"eacces", pathErr(syscall.EACCES), CodeIOError, SubCodePermissionDenied, false},
		{"enoent", pathErr(syscall.ENOENT), CodeIOError, SubCodePathNotFound, false},
		{"eio", pathErr(syscall.EIO), CodeIOError, SubCodeNone, true},
		{"other path error", pathErr(syscall.EBADF), CodeIOError, SubCodeNone, false},
		{"syscall error", os.NewSyscallError("fsync", syscall.EBADF), CodeIOError, SubCodeNone, false},
		{"deadline", context.DeadlineExceeded, CodeIOError, SubCodeTimeout, true},
		{"canceled", context.Canceled, CodeAborted, SubCodeNone, false},
		{"plain", errors.New("boom"), CodeAborted, SubCodeNone, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := FromError(tt.err)
			assert.Equal(t, tt.code, o.Code)
			assert.Equal(t, tt.sub, o.SubCode)
			assert.Equal(t, tt.retryable, o.Retryable)
			assert.Equal(t, tt.err.Error(), o.Msg)
		})
	}

	assert.True(t, FromError(nil).IsOK())

	stored := Corruption("bad block")
	assert.Equal(t, stored, FromError(fmt.Errorf("compaction: %w", stored.Err())))
}
