package errhandler

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"golang.org/x/time/rate"

	"github.com/jathurchan/bgerr/logger"
	"github.com/jathurchan/bgerr/types"
)

// ErrorHandler holds the engine's background error state and runs automatic
// recovery. All fields below mu are guarded by the host mutex.
type ErrorHandler struct {
	mu        sync.Locker
	cond      *Cond
	opts      Options
	clock     Clock
	logger    logger.Logger
	metrics   Metrics
	space     SpaceMonitor
	hooks     map[types.Reason]RetryFunc
	listeners []EventListener

	// discardLimiter spaces out log lines for errors that lost the worse-wins comparison.
	discardLimiter *rate.Limiter
	suppressed     int

	bgError  types.Outcome
	bgReason types.Reason
	// noSpaceError tags bgError for the no-space recovery path.
	noSpaceError bool

	recoveryError   types.Outcome
	recoveryIOError types.Outcome

	autoRecovery       bool
	recoveryInProgress bool
	endRecovery        bool

	// cancelRecovery cancels the context handed to probes and hooks of the
	// running recovery, automatic or manual.
	cancelRecovery context.CancelFunc
	// recoveryDone is closed when the recovery goroutine has exited.
	// It is nil when no goroutine is alive.
	recoveryDone chan struct{}

	closed bool
}

// NewErrorHandler creates an ErrorHandler with a healthy state.
func NewErrorHandler(opts Options, deps Dependencies) (*ErrorHandler, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	clock := deps.Clock
	if clock == nil {
		clock = NewStandardClock()
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewNoOpMetrics()
	}
	cond := deps.Cond
	if cond == nil {
		cond = NewCond(deps.Mu, clock)
	}

	limit := rate.Inf
	if opts.DiscardedErrorLogInterval > 0 {
		limit = rate.Every(opts.DiscardedErrorLogInterval)
	}

	h := &ErrorHandler{
		mu:             deps.Mu,
		cond:           cond,
		opts:           opts,
		clock:          clock,
		logger:         log.WithComponent("errhandler"),
		metrics:        metrics,
		space:          deps.SpaceMonitor,
		hooks:          maps.Clone(deps.RetryHooks),
		listeners:      append([]EventListener(nil), deps.Listeners...),
		discardLimiter: rate.NewLimiter(limit, 1),
		autoRecovery:   opts.AutoRecovery,
	}
	if h.hooks == nil {
		h.hooks = make(map[types.Reason]RetryFunc)
	}
	return h, nil
}

// assertHeld panics when the host mutex is provably not held. Lockers
// without TryLock are trusted.
func (h *ErrorHandler) assertHeld() {
	if tl, ok := h.mu.(interface{ TryLock() bool }); ok && tl.TryLock() {
		h.mu.Unlock()
		panic("errhandler: host mutex must be held")
	}
}

// EnableAutoRecovery turns on background self-healing for errors recorded
// from now on.
func (h *ErrorHandler) EnableAutoRecovery() {
	h.assertHeld()
	h.autoRecovery = true
}

// RecordError reports a failed background operation. It returns the stored
// background error, which may be an earlier, equal-or-worse error rather than
// o. An ok outcome is ignored and ok is returned.
func (h *ErrorHandler) RecordError(o types.Outcome, reason types.Reason) types.Outcome {
	h.assertHeld()
	return h.recordErrorLocked(o, reason)
}

func (h *ErrorHandler) recordErrorLocked(o types.Outcome, reason types.Reason) types.Outcome {
	if o.IsOK() {
		return types.OK()
	}
	if h.closed {
		h.logger.Warnw("Background error reported after close; ignoring",
			"reason", reason, "error", o.String())
		return h.bgError
	}

	newErr := o.WithSeverity(ClassifyOutcome(reason, o))
	h.metrics.ObserveBackgroundError(reason, newErr.Severity)

	if reason == types.ReasonAutoRecovery {
		h.setRecoveryErrorLocked(newErr)
	}

	changed, engage := h.setBGErrorLocked(newErr, reason)
	if !changed {
		h.logDiscarded(newErr, reason)
		if engage {
			h.maybeStartRecoveryLocked()
		}
		return h.bgError
	}

	if h.bgError.Severity >= types.SeverityHard {
		h.logger.Errorw("Background error recorded; mutation halted",
			"reason", reason, "severity", h.bgError.Severity, "error", h.bgError.String())
	} else {
		h.logger.Warnw("Background error recorded",
			"reason", reason, "severity", h.bgError.Severity, "error", h.bgError.String())
	}

	stored := h.bgError
	h.notify("background_error", func(l EventListener) { l.OnBackgroundError(reason, stored) })

	if h.recoveryInProgress {
		// Let the waiting recovery goroutine re-examine the new state.
		h.cond.Broadcast()
	} else {
		h.maybeStartRecoveryLocked()
	}
	return h.bgError
}

// setBGErrorLocked is the single worse-wins transition of the stored error.
// changed reports whether newErr replaced the stored error; engage reports
// that the no-space override re-tagged the stored error and recovery should
// be (re)considered.
func (h *ErrorHandler) setBGErrorLocked(newErr types.Outcome, reason types.Reason) (changed, engage bool) {
	if !h.bgError.IsOK() && newErr.Severity <= h.bgError.Severity {
		// A recurring no-space condition keeps the stored error pointed at
		// the no-space path without lowering its severity.
		if newErr.IsNoSpace() && h.bgError.IsNoSpace() {
			if _, recoverable := h.overrideNoSpaceError(h.bgError); recoverable {
				h.noSpaceError = true
				return false, true
			}
		}
		return false, false
	}

	adjusted, recoverable := h.overrideNoSpaceError(newErr)
	h.bgError = adjusted
	h.bgReason = reason
	h.noSpaceError = recoverable
	h.metrics.ObserveSeverity(adjusted.Severity)
	return true, false
}

// overrideNoSpaceError decides whether a no-space outcome may be handed to the
// no-space recovery path. A soft no-space error is recoverable as is; a hard
// one stays hard but is still targeted by the no-space path. The severity is
// never lowered.
func (h *ErrorHandler) overrideNoSpaceError(o types.Outcome) (types.Outcome, bool) {
	if !o.IsNoSpace() {
		return o, false
	}
	return o, o.Severity <= types.SeverityHard
}

func (h *ErrorHandler) setRecoveryErrorLocked(o types.Outcome) {
	h.recoveryError = o
	if o.IsIOCategory() {
		h.recoveryIOError = o
	}
}

func (h *ErrorHandler) logDiscarded(o types.Outcome, reason types.Reason) {
	if !h.discardLimiter.AllowN(h.clock.Now(), 1) {
		h.suppressed++
		return
	}
	h.logger.Infow("Background error not stored; an equal or worse error is already recorded",
		"reason", reason,
		"error", o.String(),
		"current", h.bgError.String(),
		"suppressed", h.suppressed,
	)
	h.suppressed = 0
}

// BackgroundError returns the stored background error (ok when healthy).
func (h *ErrorHandler) BackgroundError() types.Outcome {
	h.assertHeld()
	return h.bgError
}

// RecoveryError returns the last failure produced by a recovery attempt.
func (h *ErrorHandler) RecoveryError() types.Outcome {
	h.assertHeld()
	return h.recoveryError
}

// RecoveryIOError returns the last I/O failure produced by a recovery attempt.
func (h *ErrorHandler) RecoveryIOError() types.Outcome {
	h.assertHeld()
	return h.recoveryIOError
}

// ClearError resets the background and recovery errors. It fails, returning
// the unchanged background error, when the stored error is fatal or
// unrecoverable.
func (h *ErrorHandler) ClearError() types.Outcome {
	h.assertHeld()
	return h.clearErrorLocked()
}

func (h *ErrorHandler) clearErrorLocked() types.Outcome {
	if h.bgError.Severity >= types.SeverityFatal {
		return h.bgError
	}
	old := h.bgError
	h.bgError = types.OK()
	h.noSpaceError = false
	h.recoveryError = types.OK()
	h.recoveryIOError = types.OK()
	if !old.IsOK() {
		h.metrics.ObserveSeverity(types.SeverityNone)
		h.logger.Infow("Background error cleared", "previous", old.String())
		if h.recoveryInProgress {
			h.cond.Broadcast()
		}
	}
	return types.OK()
}

// IsStopped reports whether new mutation must be rejected.
func (h *ErrorHandler) IsStopped() bool {
	h.assertHeld()
	return !h.bgError.IsOK() && h.bgError.Severity >= types.SeverityHard
}

// IsBackgroundWorkStopped reports whether flush and compaction must stop.
// Any error halts background work unless auto-recovery is enabled.
func (h *ErrorHandler) IsBackgroundWorkStopped() bool {
	h.assertHeld()
	return !h.bgError.IsOK() &&
		(h.bgError.Severity >= types.SeverityHard || !h.autoRecovery)
}

// IsRecoveryInProgress reports whether a recovery, automatic or manual, is running.
func (h *ErrorHandler) IsRecoveryInProgress() bool {
	h.assertHeld()
	return h.recoveryInProgress
}

// EndAutoRecovery disables auto-recovery and stops any running recovery,
// waiting for its goroutine to exit. The host must call it before Close.
func (h *ErrorHandler) EndAutoRecovery() {
	h.assertHeld()
	h.autoRecovery = false
	h.CancelErrorRecovery()
	h.logger.Infow("Auto recovery ended")
}

// Close marks the handler as released. It returns ErrShutdownContractViolated
// when auto-recovery was still enabled or a recovery goroutine was still
// alive; in that case it stops recovery itself before returning. Errors
// recorded after Close are ignored. Close is idempotent.
func (h *ErrorHandler) Close() error {
	h.assertHeld()
	if h.closed {
		return nil
	}

	var err error
	if h.autoRecovery || h.recoveryInProgress || h.recoveryDone != nil {
		h.logger.Errorw("Error handler closed without EndAutoRecovery; stopping recovery",
			"autoRecovery", h.autoRecovery, "recoveryInProgress", h.recoveryInProgress)
		h.EndAutoRecovery()
		err = fmt.Errorf("%w: recovery was stopped by Close", ErrShutdownContractViolated)
	}
	h.closed = true
	return err
}
