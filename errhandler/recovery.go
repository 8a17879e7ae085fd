package errhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/jathurchan/bgerr/types"
)

// recoveryKindLocked selects the recovery path for the stored error.
func (h *ErrorHandler) recoveryKindLocked() RecoveryKind {
	if h.bgError.IsOK() || h.bgError.Severity >= types.SeverityFatal {
		return RecoveryNone
	}
	if h.noSpaceError {
		if h.space == nil {
			return RecoveryNone
		}
		return RecoveryNoSpace
	}
	if IsRetryableIOError(h.bgReason, h.bgError) && h.hooks[h.bgReason] != nil {
		return RecoveryRetryableIO
	}
	return RecoveryNone
}

// maybeStartRecoveryLocked spawns the recovery goroutine when the stored
// error is recoverable, auto-recovery is enabled, no recovery is running, and
// no listener objects.
func (h *ErrorHandler) maybeStartRecoveryLocked() {
	if !h.autoRecovery || h.recoveryInProgress {
		return
	}
	kind := h.recoveryKindLocked()
	if kind == RecoveryNone {
		return
	}
	if !h.notifyRecoveryBegin(h.bgReason, h.bgError) {
		h.logger.Infow("Auto recovery suppressed by event listener",
			"reason", h.bgReason, "error", h.bgError.String())
		return
	}

	switch kind {
	case RecoveryNoSpace:
		h.startRecoveryLocked(RecoveryNoSpace)
	case RecoveryRetryableIO:
		if err := h.startRecoverFromRetryableBGIOError(h.bgError); err != nil {
			h.logger.Warnw("Could not start retryable I/O recovery", "error", err)
		}
	}
}

// startRecoverFromRetryableBGIOError validates that o qualifies for the
// retryable I/O path and spawns the recovery goroutine. It does not spawn
// when a recovery is already running.
func (h *ErrorHandler) startRecoverFromRetryableBGIOError(o types.Outcome) error {
	if h.recoveryInProgress {
		return ErrRecoveryInProgress
	}
	if !IsRetryableIOError(h.bgReason, o) {
		return fmt.Errorf("%w: %s from %s", ErrNotRetryable, o, h.bgReason)
	}
	if h.hooks[h.bgReason] == nil {
		return fmt.Errorf("%w: no retry hook registered for %s", ErrNotRetryable, h.bgReason)
	}
	h.startRecoveryLocked(RecoveryRetryableIO)
	return nil
}

// startRecoveryLocked marks recovery in progress and spawns its goroutine.
func (h *ErrorHandler) startRecoveryLocked(kind RecoveryKind) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	h.recoveryInProgress = true
	h.endRecovery = false
	h.cancelRecovery = cancel
	h.recoveryDone = done

	h.metrics.ObserveRecoveryStart(kind)
	h.logger.Infow("Starting background error recovery",
		"kind", kind, "reason", h.bgReason, "error", h.bgError.String())

	go h.runRecovery(ctx, cancel, done, kind)
}

// runRecovery is the body of the recovery goroutine. The host mutex is held
// except while waiting, probing capacity, or running a retry hook.
func (h *ErrorHandler) runRecovery(ctx context.Context, cancel context.CancelFunc, done chan struct{}, kind RecoveryKind) {
	defer close(done)
	defer cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	start := h.clock.Now()
	old := h.bgError
	result, attempts := h.recoveryLoopLocked(ctx, kind)

	h.recoveryInProgress = false
	h.cancelRecovery = nil
	h.finishRecoveryLocked(kind, result, attempts, old, start)
}

// recoveryLoopLocked runs recovery paths until one finishes, switching path
// when the stored error changes class mid-run.
func (h *ErrorHandler) recoveryLoopLocked(ctx context.Context, kind RecoveryKind) (RecoveryResult, int) {
	total := 0
	for {
		var result RecoveryResult
		var n int
		switch kind {
		case RecoveryNoSpace:
			result, n = h.recoverFromNoSpace(ctx)
		case RecoveryRetryableIO:
			result, n = h.recoverFromRetryableBGIOError(ctx)
		default:
			return RecoveryAbandoned, total
		}
		total += n
		if result != recoveryRetarget {
			return result, total
		}
		kind = h.recoveryKindLocked()
		h.logger.Infow("Background error changed during recovery; switching path", "kind", kind)
	}
}

// checkRecoveryLocked re-validates shared state after the recovery goroutine
// wakes or re-acquires the mutex. done is true when the run must stop.
func (h *ErrorHandler) checkRecoveryLocked(kind RecoveryKind, reason types.Reason) (RecoveryResult, bool) {
	if h.endRecovery {
		return RecoveryCancelled, true
	}
	if h.bgError.IsOK() {
		return RecoveryRecovered, true
	}
	current := h.recoveryKindLocked()
	switch {
	case current == RecoveryNone:
		return RecoveryAbandoned, true
	case current != kind:
		return recoveryRetarget, true
	case kind == RecoveryRetryableIO && h.bgReason != reason:
		return recoveryRetarget, true
	}
	return 0, false
}

// recoverFromNoSpace polls capacity on a backoff schedule until space
// returns, the stored error changes, or recovery is cancelled. There is no
// attempt cap: capacity shortages are expected to resolve externally.
func (h *ErrorHandler) recoverFromNoSpace(ctx context.Context) (RecoveryResult, int) {
	b := newBackoff(h.opts, h.clock)
	reason := h.bgReason
	attempts := 0
	for {
		if result, done := h.checkRecoveryLocked(RecoveryNoSpace, reason); done {
			return result, attempts
		}
		h.cond.WaitFor(b.NextBackOff())
		if result, done := h.checkRecoveryLocked(RecoveryNoSpace, reason); done {
			return result, attempts
		}

		attempts++
		h.mu.Unlock()
		ok, err := h.space.EnoughSpaceAvailable(ctx)
		h.mu.Lock()

		if result, done := h.checkRecoveryLocked(RecoveryNoSpace, reason); done {
			return result, attempts
		}
		h.metrics.ObserveRecoveryAttempt(RecoveryNoSpace, err == nil && ok)
		if err != nil {
			h.logger.Warnw("Capacity probe failed", "attempt", attempts, "error", err)
			continue
		}
		if !ok {
			h.logger.Debugw("Not enough space yet", "attempt", attempts)
			continue
		}
		if h.clearErrorLocked().IsOK() {
			return RecoveryRecovered, attempts
		}
		return RecoveryAbandoned, attempts
	}
}

// recoverFromRetryableBGIOError re-runs the failed operation through its
// retry hook, waiting on the backoff schedule between attempts, until it
// succeeds or Options.MaxRetryAttempts attempts have failed. Failed attempts
// are recorded as recovery errors; the stored error stays hard.
func (h *ErrorHandler) recoverFromRetryableBGIOError(ctx context.Context) (RecoveryResult, int) {
	b := newBackoff(h.opts, h.clock)
	reason := h.bgReason
	hook := h.hooks[reason]

	for attempt := 1; attempt <= h.opts.MaxRetryAttempts; attempt++ {
		if result, done := h.checkRecoveryLocked(RecoveryRetryableIO, reason); done {
			return result, attempt - 1
		}
		h.mu.Unlock()
		out := hook(ctx, reason)
		h.mu.Lock()

		if result, done := h.checkRecoveryLocked(RecoveryRetryableIO, reason); done {
			return result, attempt
		}
		h.metrics.ObserveRecoveryAttempt(RecoveryRetryableIO, out.IsOK())
		if out.IsOK() {
			if h.clearErrorLocked().IsOK() {
				return RecoveryRecovered, attempt
			}
			return RecoveryAbandoned, attempt
		}

		h.logger.Warnw("Retry attempt failed",
			"reason", reason, "attempt", attempt, "maxAttempts", h.opts.MaxRetryAttempts, "error", out.String())
		h.recordErrorLocked(out, types.ReasonAutoRecovery)
		if result, done := h.checkRecoveryLocked(RecoveryRetryableIO, reason); done {
			return result, attempt
		}
		if attempt == h.opts.MaxRetryAttempts {
			break
		}

		h.cond.WaitFor(b.NextBackOff())
	}
	return RecoveryExhausted, h.opts.MaxRetryAttempts
}

// finishRecoveryLocked reports the end of a recovery run and wakes waiters.
func (h *ErrorHandler) finishRecoveryLocked(kind RecoveryKind, result RecoveryResult, attempts int, old types.Outcome, start time.Time) {
	h.metrics.ObserveRecoveryEnd(kind, result, h.clock.Since(start))

	kv := []any{"kind", kind, "result", result, "attempts", attempts, "error", old.String()}
	switch result {
	case RecoveryRecovered:
		h.logger.Infow("Background error recovery succeeded", kv...)
	case RecoveryExhausted:
		h.logger.Errorw("Background error recovery gave up; manual recovery required",
			append(kv, "recoveryError", h.recoveryError.String())...)
	default:
		h.logger.Warnw("Background error recovery stopped", kv...)
	}

	info := RecoveryEndInfo{
		Kind:          kind,
		Result:        result,
		Attempts:      attempts,
		OldError:      old,
		NewError:      h.bgError,
		RecoveryError: h.recoveryError,
	}
	h.notify("recovery_end", func(l EventListener) { l.OnErrorRecoveryEnd(info) })
	h.cond.Broadcast()
}

// RecoverFromBGError attempts to recover from the stored background error.
//
// With isManual set, the recovery runs synchronously on the caller: one
// capacity probe for a no-space error, otherwise one call of the retry hook
// for the failing reason (or a plain clear when no hook is registered). It
// works with auto-recovery disabled or after an automatic run gave up, and
// returns the resulting status. A running automatic recovery yields Busy.
//
// Without isManual, it (re)starts the automatic recovery goroutine and
// returns ok once started. Auto-recovery must be enabled.
//
// Fatal and unrecoverable errors are returned unchanged.
func (h *ErrorHandler) RecoverFromBGError(isManual bool) types.Outcome {
	h.assertHeld()
	if h.closed {
		return types.ShutdownInProgress("error handler closed")
	}
	if h.bgError.IsOK() {
		return types.OK()
	}
	if h.bgError.Severity >= types.SeverityFatal {
		return h.bgError
	}
	if h.recoveryInProgress {
		return types.Busy("recovery already in progress")
	}

	if !isManual {
		if !h.autoRecovery {
			return types.NotSupported("auto recovery is disabled")
		}
		kind := h.recoveryKindLocked()
		if kind == RecoveryNone {
			return h.bgError
		}
		if kind == RecoveryRetryableIO {
			if err := h.startRecoverFromRetryableBGIOError(h.bgError); err != nil {
				return types.Busy(err.Error())
			}
		} else {
			h.startRecoveryLocked(kind)
		}
		return types.OK()
	}
	return h.recoverManuallyLocked()
}

// recoverManuallyLocked runs one recovery attempt on the calling goroutine.
func (h *ErrorHandler) recoverManuallyLocked() types.Outcome {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.recoveryInProgress = true
	h.endRecovery = false
	h.cancelRecovery = cancel

	start := h.clock.Now()
	old := h.bgError
	reason := h.bgReason
	h.logger.Infow("Starting manual recovery", "reason", reason, "error", old.String())

	var out types.Outcome
	if h.noSpaceError && h.space != nil {
		h.mu.Unlock()
		ok, err := h.space.EnoughSpaceAvailable(ctx)
		h.mu.Lock()
		switch {
		case err != nil:
			out = types.FromError(err)
		case !ok:
			out = types.NoSpace("not enough space available")
		}
	} else if hook := h.hooks[reason]; hook != nil {
		h.mu.Unlock()
		out = hook(ctx, reason)
		h.mu.Lock()
	}

	result := RecoveryExhausted
	switch {
	case h.endRecovery:
		result = RecoveryCancelled
		out = types.New(types.CodeAborted, types.SubCodeNone, "recovery cancelled")
	case h.bgError.IsOK():
		result = RecoveryRecovered
		out = types.OK()
	case out.IsOK():
		out = h.clearErrorLocked()
		if out.IsOK() {
			result = RecoveryRecovered
		} else {
			result = RecoveryAbandoned
		}
	default:
		out = out.WithSeverity(ClassifyOutcome(types.ReasonAutoRecovery, out))
		h.setRecoveryErrorLocked(out)
	}

	h.recoveryInProgress = false
	h.cancelRecovery = nil
	h.finishRecoveryLocked(RecoveryManual, result, 1, old, start)
	return out
}

// CancelErrorRecovery stops a running recovery and waits for it to end,
// whether it runs on the recovery goroutine or as a manual recovery on
// another caller. The host mutex is released while waiting. Calling it when
// no recovery is running is a no-op.
func (h *ErrorHandler) CancelErrorRecovery() {
	h.assertHeld()
	for {
		h.endRecovery = true
		if h.cancelRecovery != nil {
			h.cancelRecovery()
		}
		h.cond.Broadcast()

		if done := h.recoveryDone; done != nil {
			h.mu.Unlock()
			<-done
			h.mu.Lock()
			if h.recoveryDone == done {
				h.recoveryDone = nil
			}
			continue
		}
		if !h.recoveryInProgress {
			return
		}
		// A manual recovery has no goroutine to join; it broadcasts when it ends.
		h.cond.Wait()
	}
}
