package errhandler

import (
	"fmt"

	"github.com/jathurchan/bgerr/types"
)

// RecoveryKind identifies the recovery path engaged for a background error.
type RecoveryKind int

const (
	// RecoveryNone means the stored error cannot be recovered automatically.
	RecoveryNone RecoveryKind = iota
	// RecoveryNoSpace polls capacity until the device has room again.
	RecoveryNoSpace
	// RecoveryRetryableIO re-runs the failed operation with bounded retries.
	RecoveryRetryableIO
	// RecoveryManual is an operator-triggered recovery.
	RecoveryManual
)

// String returns a string representation of the recovery kind.
func (k RecoveryKind) String() string {
	switch k {
	case RecoveryNone:
		return "none"
	case RecoveryNoSpace:
		return "no_space"
	case RecoveryRetryableIO:
		return "retryable_io"
	case RecoveryManual:
		return "manual"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// RecoveryResult describes how a recovery run ended.
type RecoveryResult int

const (
	// RecoveryRecovered means the background error was cleared.
	RecoveryRecovered RecoveryResult = iota
	// RecoveryCancelled means CancelErrorRecovery or EndAutoRecovery stopped the run.
	RecoveryCancelled
	// RecoveryExhausted means every allowed attempt failed.
	RecoveryExhausted
	// RecoveryAbandoned means the stored error became unrecoverable during the run.
	RecoveryAbandoned

	// recoveryRetarget is internal: the stored error now needs another recovery path.
	recoveryRetarget
)

// String returns a string representation of the recovery result.
func (r RecoveryResult) String() string {
	switch r {
	case RecoveryRecovered:
		return "recovered"
	case RecoveryCancelled:
		return "cancelled"
	case RecoveryExhausted:
		return "exhausted"
	case RecoveryAbandoned:
		return "abandoned"
	case recoveryRetarget:
		return "retarget"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// RecoveryEndInfo describes a finished recovery run.
type RecoveryEndInfo struct {
	Kind     RecoveryKind
	Result   RecoveryResult
	Attempts int

	// OldError is the background error when the run started.
	OldError types.Outcome
	// NewError is the background error when the run ended (ok on success).
	NewError types.Outcome
	// RecoveryError is the last failure produced by the run itself, if any.
	RecoveryError types.Outcome
}

// EventListener is notified of background errors and recovery progress.
// Callbacks run with the host mutex held; they must be quick and must not call
// back into the ErrorHandler. Panics are recovered and logged.
type EventListener interface {
	// OnBackgroundError is called when RecordError stores a new or escalated error.
	OnBackgroundError(reason types.Reason, bgError types.Outcome)

	// OnErrorRecoveryBegin is called before automatic recovery starts.
	// Returning false suppresses the automatic recovery.
	OnErrorRecoveryBegin(reason types.Reason, bgError types.Outcome) bool

	// OnErrorRecoveryEnd is called when a recovery run finishes, automatic or manual.
	OnErrorRecoveryEnd(info RecoveryEndInfo)
}

// NoOpEventListener implements EventListener with no behavior. Embed it to
// implement only the callbacks of interest.
type NoOpEventListener struct{}

func (NoOpEventListener) OnBackgroundError(types.Reason, types.Outcome)         {}
func (NoOpEventListener) OnErrorRecoveryBegin(types.Reason, types.Outcome) bool { return true }
func (NoOpEventListener) OnErrorRecoveryEnd(RecoveryEndInfo)                    {}

// notify calls fn for every listener, containing panics so a faulty listener
// cannot take down a background worker.
func (h *ErrorHandler) notify(event string, fn func(EventListener)) {
	for _, l := range h.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					h.logger.Errorw("Event listener panicked", "event", event, "panic", r)
				}
			}()
			fn(l)
		}()
	}
}

// notifyRecoveryBegin asks every listener whether automatic recovery may
// start. All listeners are consulted even after one objects.
func (h *ErrorHandler) notifyRecoveryBegin(reason types.Reason, bgError types.Outcome) bool {
	allow := true
	h.notify("recovery_begin", func(l EventListener) {
		if !l.OnErrorRecoveryBegin(reason, bgError) {
			allow = false
		}
	})
	return allow
}
