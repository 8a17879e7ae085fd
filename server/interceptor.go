package server

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/jathurchan/bgerr/logger"
)

// Admitter decides whether a write may proceed. *engine.Engine implements it.
type Admitter interface {
	Admit() error
}

// WriteGuard returns an interceptor that rejects the methods selected by
// isWrite while the admitter refuses writes. The rejection carries the
// background error's status and, when recoverable, retryDelay as RetryInfo.
func WriteGuard(a Admitter, isWrite func(fullMethod string) bool, retryDelay time.Duration, log logger.Logger) grpc.UnaryServerInterceptor {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	log = log.WithComponent("write-guard")

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if isWrite == nil || !isWrite(info.FullMethod) {
			return handler(ctx, req)
		}
		if err := a.Admit(); err != nil {
			log.Debugw("Rejecting write", "method", info.FullMethod, "error", err)
			return nil, ToStatusError(err, retryDelay)
		}
		return handler(ctx, req)
	}
}

// MethodSet returns an isWrite predicate matching the given full method names.
func MethodSet(methods ...string) func(string) bool {
	set := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		set[m] = struct{}{}
	}
	return func(fullMethod string) bool {
		_, ok := set[fullMethod]
		return ok
	}
}
