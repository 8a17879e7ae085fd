package engine

import "errors"

var (
	// ErrWriteStopped is returned by Admit and Write while a hard or worse
	// background error is stored. The returned error also wraps the stored
	// outcome, so errors.Is matches the types sentinels.
	ErrWriteStopped = errors.New("engine: writes stopped by background error")

	// ErrBackgroundWorkStopped is returned by RunBackground while flush and
	// compaction are halted.
	ErrBackgroundWorkStopped = errors.New("engine: background work stopped")

	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine: closed")

	// ErrInvalidReason is returned for a background reason the engine does not know.
	ErrInvalidReason = errors.New("engine: invalid background reason")
)
