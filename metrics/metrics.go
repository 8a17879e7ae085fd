// Package metrics exports background error handling metrics to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jathurchan/bgerr/errhandler"
	"github.com/jathurchan/bgerr/types"
)

const namespace = "bgerr"

// Prometheus implements errhandler.Metrics on a Prometheus registerer.
type Prometheus struct {
	backgroundErrors *prometheus.CounterVec
	severity         prometheus.Gauge
	recoveryStarted  *prometheus.CounterVec
	recoveryAttempts *prometheus.CounterVec
	recoveryDuration *prometheus.HistogramVec
}

var _ errhandler.Metrics = (*Prometheus)(nil)

// NewPrometheus registers the error handling collectors on reg.
// A nil reg registers on the default registerer.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Prometheus{
		backgroundErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "background_errors_total",
				Help:      "Background errors reported, stored or not.",
			},
			[]string{"reason", "severity"},
		),
		severity: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "background_error_severity",
				Help:      "Severity of the stored background error (0 none, 1 soft, 2 hard, 3 fatal, 4 unrecoverable).",
			},
		),
		recoveryStarted: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recovery_started_total",
				Help:      "Automatic recovery runs started.",
			},
			[]string{"kind"},
		),
		recoveryAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recovery_attempts_total",
				Help:      "Capacity polls and retry-hook calls made by recovery.",
			},
			[]string{"kind", "success"},
		),
		recoveryDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "recovery_duration_seconds",
				Help:      "Duration of recovery runs.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"kind", "result"},
		),
	}
}

func (p *Prometheus) ObserveBackgroundError(reason types.Reason, severity types.Severity) {
	p.backgroundErrors.WithLabelValues(reason.String(), severity.String()).Inc()
}

func (p *Prometheus) ObserveSeverity(severity types.Severity) {
	p.severity.Set(float64(severity))
}

func (p *Prometheus) ObserveRecoveryStart(kind errhandler.RecoveryKind) {
	p.recoveryStarted.WithLabelValues(kind.String()).Inc()
}

func (p *Prometheus) ObserveRecoveryAttempt(kind errhandler.RecoveryKind, success bool) {
	p.recoveryAttempts.WithLabelValues(kind.String(), strconv.FormatBool(success)).Inc()
}

func (p *Prometheus) ObserveRecoveryEnd(kind errhandler.RecoveryKind, result errhandler.RecoveryResult, duration time.Duration) {
	p.recoveryDuration.WithLabelValues(kind.String(), result.String()).Observe(duration.Seconds())
}
