// Package errhandler records failures from background storage work, judges
// their severity, and heals the engine when the failure is transient.
//
// Background workers (flush, compaction, log and manifest writes) have no
// caller to return an error to. They report through RecordError, and the
// rest of the engine consults IsStopped and IsBackgroundWorkStopped before
// accepting new mutation work.
//
// # Locking
//
// The handler owns no lock. The host passes its own mutex in Dependencies.Mu
// and every exported method must be called with that mutex held, so that the
// handler's state transitions sequence atomically with the host's
// bookkeeping. Methods that wait (CancelErrorRecovery, EndAutoRecovery,
// RecoverFromBGError with isManual set) release the mutex while waiting and
// re-acquire it before returning.
//
// EventListener callbacks run with the mutex held and must not call back into
// the handler.
//
// # Recovery
//
// Two failure classes recover automatically when auto-recovery is enabled:
// out-of-space conditions, polled through a SpaceMonitor until capacity
// returns, and retryable I/O failures from flush or compaction, re-attempted
// through the host's RetryFunc up to Options.MaxRetryAttempts times. At most
// one recovery goroutine runs at a time.
//
// # Shutdown
//
// The host must call EndAutoRecovery and then Close before releasing the
// handler. Close reports ErrShutdownContractViolated when the first step was
// skipped.
package errhandler
