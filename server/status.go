package server

import (
	"context"
	"errors"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/protoadapt"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/jathurchan/bgerr/engine"
	"github.com/jathurchan/bgerr/types"
)

// ErrorDomain is the ErrorInfo domain attached to background-error statuses.
const ErrorDomain = "bgerr"

// StatusFromOutcome maps an outcome to a gRPC status. Non-ok statuses carry
// an ErrorInfo with the outcome's code, sub-code and severity; outcomes the
// engine may recover from on its own also carry a RetryInfo with retryDelay.
func StatusFromOutcome(o types.Outcome, retryDelay time.Duration) *status.Status {
	if o.IsOK() {
		return status.New(codes.OK, "")
	}

	st := status.New(grpcCode(o), o.String())
	details := []protoadapt.MessageV1{
		&errdetails.ErrorInfo{
			Reason: errorReason(o),
			Domain: ErrorDomain,
			Metadata: map[string]string{
				"code":     o.Code.String(),
				"sub_code": o.SubCode.String(),
				"severity": o.Severity.String(),
			},
		},
	}
	if retryable(o) && retryDelay > 0 {
		details = append(details, &errdetails.RetryInfo{RetryDelay: durationpb.New(retryDelay)})
	}

	withDetails, err := st.WithDetails(details...)
	if err != nil {
		return st
	}
	return withDetails
}

// ToStatusError converts an engine error into a gRPC status error. Errors
// that already carry a status are returned unchanged.
func ToStatusError(err error, retryDelay time.Duration) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var oe *types.OutcomeError
	switch {
	case errors.As(err, &oe):
		return StatusFromOutcome(oe.Outcome, retryDelay).Err()
	case errors.Is(err, engine.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	return StatusFromOutcome(types.FromError(err), retryDelay).Err()
}

func grpcCode(o types.Outcome) codes.Code {
	switch {
	case o.Code == types.CodeCorruption:
		return codes.DataLoss
	case o.IsNoSpace():
		return codes.ResourceExhausted
	case o.Severity >= types.SeverityFatal:
		return codes.FailedPrecondition
	}

	switch o.Code {
	case types.CodeNotFound:
		return codes.NotFound
	case types.CodeInvalidArgument:
		return codes.InvalidArgument
	case types.CodeNotSupported:
		return codes.FailedPrecondition
	case types.CodeTimedOut:
		return codes.DeadlineExceeded
	case types.CodeBusy, types.CodeTryAgain, types.CodeAborted:
		return codes.Aborted
	case types.CodeShutdownInProgress, types.CodeIOError:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

func errorReason(o types.Outcome) string {
	switch {
	case o.Code == types.CodeCorruption:
		return "DATA_CORRUPTED"
	case o.IsNoSpace():
		return "NO_SPACE"
	case o.Severity >= types.SeverityHard:
		return "WRITES_STOPPED"
	default:
		return "BACKGROUND_ERROR"
	}
}

// retryable reports whether the engine can clear the outcome without an operator.
func retryable(o types.Outcome) bool {
	if o.Code == types.CodeCorruption || o.Severity >= types.SeverityFatal {
		return false
	}
	return o.Code != types.CodeShutdownInProgress && o.Code != types.CodeNotSupported
}
