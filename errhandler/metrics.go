package errhandler

import (
	"time"

	"github.com/jathurchan/bgerr/types"
)

// Metrics defines an interface for recording error-handling metrics.
// Implementations must be safe for concurrent use.
type Metrics interface {
	// ObserveBackgroundError records an error reported through RecordError,
	// whether or not it replaced the stored error.
	// Counter: bgerr_background_errors_total (labeled by reason, severity)
	ObserveBackgroundError(reason types.Reason, severity types.Severity)

	// ObserveSeverity sets the severity of the stored background error.
	// Gauge: bgerr_background_error_severity
	ObserveSeverity(severity types.Severity)

	// ObserveRecoveryStart records that a recovery goroutine was spawned.
	// Counter: bgerr_recovery_started_total (labeled by kind)
	ObserveRecoveryStart(kind RecoveryKind)

	// ObserveRecoveryAttempt records one capacity poll or retry-hook call.
	// Counter: bgerr_recovery_attempts_total (labeled by kind, success)
	ObserveRecoveryAttempt(kind RecoveryKind, success bool)

	// ObserveRecoveryEnd records how a recovery run ended and how long it took.
	// Histogram: bgerr_recovery_duration_seconds (labeled by kind, result)
	ObserveRecoveryEnd(kind RecoveryKind, result RecoveryResult, duration time.Duration)
}

// noOpMetrics is a Metrics implementation that does nothing.
type noOpMetrics struct{}

// NewNoOpMetrics returns a Metrics implementation that discards all observations.
func NewNoOpMetrics() Metrics {
	return &noOpMetrics{}
}

func (m *noOpMetrics) ObserveBackgroundError(reason types.Reason, severity types.Severity) {}
func (m *noOpMetrics) ObserveSeverity(severity types.Severity)                             {}
func (m *noOpMetrics) ObserveRecoveryStart(kind RecoveryKind)                              {}
func (m *noOpMetrics) ObserveRecoveryAttempt(kind RecoveryKind, success bool)              {}

func (m *noOpMetrics) ObserveRecoveryEnd(kind RecoveryKind, result RecoveryResult, duration time.Duration) {}
