// Package server exposes the engine's background error state over gRPC:
// health reporting, a write-guard interceptor, and status mapping.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/jathurchan/bgerr/logger"
)

// Config configures a Server.
type Config struct {
	// RetryDelay is advertised in RetryInfo on recoverable write rejections.
	RetryDelay time.Duration

	// WriteMethods are the full gRPC method names guarded by WriteGuard.
	WriteMethods []string
}

// Server is a gRPC server whose health and write admission follow the
// engine's background error state.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger logger.Logger

	mu      sync.Mutex
	started bool
	stopped bool
}

// New builds a Server. hs is the health server the engine's HealthReporter
// writes to; it is registered on the gRPC server. Extra options are appended
// after the write-guard interceptor.
func New(cfg Config, a Admitter, hs *health.Server, log logger.Logger, opts ...grpc.ServerOption) *Server {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	log = log.WithComponent("server")

	guard := WriteGuard(a, MethodSet(cfg.WriteMethods...), cfg.RetryDelay, log)
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(guard)}, opts...)

	gs := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(gs, hs)

	return &Server{
		grpc:   gs,
		health: hs,
		logger: log,
	}
}

// GRPC returns the underlying server so services can be registered before Serve.
func (s *Server) GRPC() *grpc.Server {
	return s.grpc
}

// Serve accepts connections on lis until Stop is called. lis is closed on
// return.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	switch {
	case s.stopped:
		s.mu.Unlock()
		_ = lis.Close()
		return ErrServerStopped
	case s.started:
		s.mu.Unlock()
		return ErrServerAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	s.logger.Infow("gRPC server listening", "address", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Stop marks every service NOT_SERVING and drains in-flight RPCs. When ctx
// ends first, remaining RPCs are cancelled and ErrShutdownTimeout is returned.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Infow("gRPC server stopped")
		return nil
	case <-ctx.Done():
		s.grpc.Stop()
		<-done
		s.logger.Warnw("gRPC server shutdown timed out; remaining RPCs cancelled")
		return ErrShutdownTimeout
	}
}
