// Package engine is a minimal storage host around errhandler.ErrorHandler.
// It owns the host mutex, runs flush and compaction jobs, turns their
// failures into background errors, and re-runs failed jobs on request of
// the recovery goroutine.
package engine

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jathurchan/bgerr/errhandler"
	"github.com/jathurchan/bgerr/fsprobe"
	"github.com/jathurchan/bgerr/logger"
	"github.com/jathurchan/bgerr/types"
)

// Job is a unit of background or foreground work. A non-nil error is
// converted with types.FromError and recorded as a background error.
type Job func(ctx context.Context) error

// retryableReasons are the origins the engine can re-run automatically.
var retryableReasons = []types.Reason{
	types.ReasonFlush,
	types.ReasonFlushNoWAL,
	types.ReasonCompaction,
	types.ReasonManifestWrite,
}

// Config configures an Engine.
type Config struct {
	DataDir           string
	MinFreeBytes      uint64
	MaxBackgroundJobs int
	Recovery          errhandler.Options
}

// Dependencies are optional collaborators. Zero values select defaults.
type Dependencies struct {
	Logger  logger.Logger
	Metrics errhandler.Metrics

	// SpaceMonitor overrides the statfs-based monitor on DataDir.
	SpaceMonitor errhandler.SpaceMonitor

	Listeners []errhandler.EventListener
}

// Status is a point-in-time view of the error state.
type Status struct {
	BackgroundError       types.Outcome
	RecoveryError         types.Outcome
	RecoveryInProgress    bool
	Stopped               bool
	BackgroundWorkStopped bool
}

type pendingJob struct {
	job Job
}

// Engine runs background jobs under a shared error handler.
type Engine struct {
	mu      sync.Mutex
	handler *errhandler.ErrorHandler
	logger  logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	jobs   errgroup.Group

	// failed holds the last failed job per retryable reason. Guarded by mu.
	failed map[types.Reason]*pendingJob
	closed bool
}

// Open creates the data directory if needed and returns a running Engine.
func Open(cfg Config, deps Dependencies) (*Engine, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("engine: data directory must be set")
	}
	if cfg.MaxBackgroundJobs < 1 {
		return nil, fmt.Errorf("engine: MaxBackgroundJobs must be >= 1, got %d", cfg.MaxBackgroundJobs)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: create data directory: %w", err)
	}

	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	space := deps.SpaceMonitor
	if space == nil {
		m, err := fsprobe.NewDiskSpaceMonitor(cfg.DataDir, cfg.MinFreeBytes)
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		space = m
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		logger: log.WithComponent("engine"),
		ctx:    ctx,
		cancel: cancel,
		failed: make(map[types.Reason]*pendingJob),
	}
	e.jobs.SetLimit(cfg.MaxBackgroundJobs)

	hooks := make(map[types.Reason]errhandler.RetryFunc, len(retryableReasons))
	for _, r := range retryableReasons {
		hooks[r] = e.retryFailed
	}

	h, err := errhandler.NewErrorHandler(cfg.Recovery, errhandler.Dependencies{
		Mu:           &e.mu,
		Logger:       log,
		Metrics:      deps.Metrics,
		SpaceMonitor: space,
		RetryHooks:   hooks,
		Listeners:    deps.Listeners,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("engine: %w", err)
	}
	e.handler = h

	e.logger.Infow("Engine opened",
		"dataDir", cfg.DataDir,
		"maxBackgroundJobs", cfg.MaxBackgroundJobs,
		"autoRecovery", cfg.Recovery.AutoRecovery)
	return e, nil
}

// RunBackground schedules job as background work of the given reason. It
// blocks while MaxBackgroundJobs jobs are running. A failure is recorded as a
// background error and the job is kept for automatic retry.
func (e *Engine) RunBackground(reason types.Reason, job Job) error {
	if !reason.IsValid() || reason == types.ReasonAutoRecovery {
		return fmt.Errorf("%w: %s", ErrInvalidReason, reason)
	}

	e.mu.Lock()
	switch {
	case e.closed:
		e.mu.Unlock()
		return ErrClosed
	case e.handler.IsBackgroundWorkStopped():
		bg := e.handler.BackgroundError()
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBackgroundWorkStopped, bg)
	}
	e.mu.Unlock()

	e.jobs.Go(func() error {
		if err := job(e.ctx); err != nil {
			e.ReportError(reason, err, job)
		}
		return nil
	})
	return nil
}

// ReportError records err as a background error for reason. When job is
// non-nil and the reason is retryable, it is kept so recovery can re-run it.
func (e *Engine) ReportError(reason types.Reason, err error, job Job) types.Outcome {
	o := types.FromError(err)

	e.mu.Lock()
	defer e.mu.Unlock()
	if job != nil {
		e.failed[reason] = &pendingJob{job: job}
	}
	stored := e.handler.RecordError(o, reason)
	e.logger.Debugw("Background job failed", "reason", reason, "error", o.String(), "stored", stored.String())
	return stored
}

// retryFailed is the recovery hook for every retryable reason. It runs
// without the host mutex.
func (e *Engine) retryFailed(ctx context.Context, reason types.Reason) types.Outcome {
	e.mu.Lock()
	pending := e.failed[reason]
	e.mu.Unlock()
	if pending == nil {
		e.logger.Warnw("No failed job to re-run; clearing background error", "reason", reason)
		return types.OK()
	}

	out := types.FromError(pending.job(ctx))
	if out.IsOK() {
		e.mu.Lock()
		if e.failed[reason] == pending {
			delete(e.failed, reason)
		}
		e.mu.Unlock()
	}
	return out
}

// Admit reports whether a new write may proceed.
func (e *Engine) Admit() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.admitLocked()
}

func (e *Engine) admitLocked() error {
	if e.closed {
		return ErrClosed
	}
	if e.handler.IsStopped() {
		return fmt.Errorf("%w: %w", ErrWriteStopped, e.handler.BackgroundError().Err())
	}
	return nil
}

// Write runs op as a foreground write once admitted. A failure is recorded
// as a write-ahead-log error and returned.
func (e *Engine) Write(ctx context.Context, op Job) error {
	if err := e.Admit(); err != nil {
		return err
	}
	if err := op(ctx); err != nil {
		e.ReportError(types.ReasonWALWrite, err, nil)
		return err
	}
	return nil
}

// Status returns the current error state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		BackgroundError:       e.handler.BackgroundError(),
		RecoveryError:         e.handler.RecoveryError(),
		RecoveryInProgress:    e.handler.IsRecoveryInProgress(),
		Stopped:               e.handler.IsStopped(),
		BackgroundWorkStopped: e.handler.IsBackgroundWorkStopped(),
	}
}

// Resume runs a manual recovery and returns its outcome.
func (e *Engine) Resume() types.Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return types.ShutdownInProgress("engine closed")
	}
	out := e.handler.RecoverFromBGError(true)
	e.logger.Infow("Manual resume finished", "result", out.String())
	return out
}

// Wait blocks until every scheduled background job has returned.
func (e *Engine) Wait() {
	_ = e.jobs.Wait()
}

// Close stops recovery, releases the error handler, cancels running jobs
// and waits for them.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.handler.EndAutoRecovery()
	err := e.handler.Close()
	e.mu.Unlock()

	e.cancel()
	e.Wait()
	e.logger.Infow("Engine closed")
	return err
}
