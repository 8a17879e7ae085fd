package types

import "fmt"

// Code is the coarse category of an Outcome.
type Code uint8

const (
	// CodeOK indicates success. It is the zero value.
	CodeOK Code = iota
	CodeNotFound
	// CodeCorruption indicates data whose integrity can no longer be trusted.
	CodeCorruption
	CodeNotSupported
	CodeInvalidArgument
	// CodeIOError indicates a failure reported by the filesystem or device layer.
	CodeIOError
	CodeIncomplete
	CodeShutdownInProgress
	CodeTimedOut
	CodeAborted
	// CodeBusy is returned when a conflicting operation (e.g. a recovery) is already running.
	CodeBusy
	CodeTryAgain
)

// String returns a string representation of the code.
func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeNotFound:
		return "NotFound"
	case CodeCorruption:
		return "Corruption"
	case CodeNotSupported:
		return "NotSupported"
	case CodeInvalidArgument:
		return "InvalidArgument"
	case CodeIOError:
		return "IOError"
	case CodeIncomplete:
		return "Incomplete"
	case CodeShutdownInProgress:
		return "ShutdownInProgress"
	case CodeTimedOut:
		return "TimedOut"
	case CodeAborted:
		return "Aborted"
	case CodeBusy:
		return "Busy"
	case CodeTryAgain:
		return "TryAgain"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// SubCode refines a Code. Most codes only use SubCodeNone.
type SubCode uint8

const (
	SubCodeNone SubCode = iota
	// SubCodeNoSpace indicates the device ran out of capacity.
	SubCodeNoSpace
	// SubCodeSpaceLimit indicates a configured space quota was reached.
	SubCodeSpaceLimit
	// SubCodeTimeout indicates a device or filesystem operation timed out.
	SubCodeTimeout
	// SubCodePermissionDenied indicates the process lost access to its files.
	SubCodePermissionDenied
	// SubCodeIOFenced indicates another instance has taken ownership of the files.
	SubCodeIOFenced
	SubCodePathNotFound
)

// String returns a string representation of the sub-code.
func (s SubCode) String() string {
	switch s {
	case SubCodeNone:
		return "None"
	case SubCodeNoSpace:
		return "NoSpace"
	case SubCodeSpaceLimit:
		return "SpaceLimit"
	case SubCodeTimeout:
		return "Timeout"
	case SubCodePermissionDenied:
		return "PermissionDenied"
	case SubCodeIOFenced:
		return "IOFenced"
	case SubCodePathNotFound:
		return "PathNotFound"
	default:
		return fmt.Sprintf("SubCode(%d)", int(s))
	}
}

// Severity orders outcomes by how much of the engine they disable.
// The order is total: None < Soft < Hard < Fatal < Unrecoverable.
type Severity uint8

const (
	// SeverityNone is the severity of a healthy engine.
	SeverityNone Severity = iota
	// SeveritySoft degrades the engine; mutation continues.
	SeveritySoft
	// SeverityHard halts all new mutation. Reads are unaffected.
	SeverityHard
	// SeverityFatal halts mutation and cannot be retried or cleared.
	SeverityFatal
	// SeverityUnrecoverable is permanent; only a fresh instance can proceed.
	SeverityUnrecoverable
)

// String returns a string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeveritySoft:
		return "soft"
	case SeverityHard:
		return "hard"
	case SeverityFatal:
		return "fatal"
	case SeverityUnrecoverable:
		return "unrecoverable"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Reason identifies the background subsystem that produced a failure.
type Reason uint8

const (
	ReasonWriteCallback Reason = iota
	ReasonMemTable
	ReasonFlush
	// ReasonFlushNoWAL is a flush performed while the write-ahead log is disabled.
	ReasonFlushNoWAL
	ReasonCompaction
	ReasonWALWrite
	ReasonManifestWrite
	// ReasonAutoRecovery marks failures produced by the recovery path itself.
	ReasonAutoRecovery
)

// String returns a string representation of the reason.
func (r Reason) String() string {
	switch r {
	case ReasonWriteCallback:
		return "write_callback"
	case ReasonMemTable:
		return "memtable"
	case ReasonFlush:
		return "flush"
	case ReasonFlushNoWAL:
		return "flush_no_wal"
	case ReasonCompaction:
		return "compaction"
	case ReasonWALWrite:
		return "wal_write"
	case ReasonManifestWrite:
		return "manifest_write"
	case ReasonAutoRecovery:
		return "auto_recovery"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}
