package server

import (
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/jathurchan/bgerr/errhandler"
	"github.com/jathurchan/bgerr/logger"
	"github.com/jathurchan/bgerr/types"
)

// HealthReporter mirrors the background error state into a gRPC health
// server. A service is NOT_SERVING while writes are stopped.
type HealthReporter struct {
	errhandler.NoOpEventListener

	health  *health.Server
	service string
	logger  logger.Logger
}

var _ errhandler.EventListener = (*HealthReporter)(nil)

// NewHealthReporter reports on service ("" is the overall server health).
func NewHealthReporter(hs *health.Server, service string, log logger.Logger) *HealthReporter {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	hs.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)
	return &HealthReporter{
		health:  hs,
		service: service,
		logger:  log.WithComponent("health"),
	}
}

// OnBackgroundError implements errhandler.EventListener.
func (r *HealthReporter) OnBackgroundError(reason types.Reason, bgError types.Outcome) {
	r.set(bgError)
}

// OnErrorRecoveryEnd implements errhandler.EventListener.
func (r *HealthReporter) OnErrorRecoveryEnd(info errhandler.RecoveryEndInfo) {
	r.set(info.NewError)
}

func (r *HealthReporter) set(bgError types.Outcome) {
	st := servingStatus(bgError)
	r.health.SetServingStatus(r.service, st)
	r.logger.Debugw("Health status updated", "service", r.service, "status", st.String(), "error", bgError.String())
}

func servingStatus(o types.Outcome) healthpb.HealthCheckResponse_ServingStatus {
	if !o.IsOK() && o.Severity >= types.SeverityHard {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}
