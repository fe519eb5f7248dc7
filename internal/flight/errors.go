package flight

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ruddy/internal/domain"
)

// ErrorDomain is the ErrorInfo domain attached to statuses built from
// domain errors.
const ErrorDomain = "ruddy"

// ErrorInfo reasons, one per domain error kind.
const (
	ReasonInvalidAddress = "INVALID_ADDRESS"
	ReasonInvalidTicket  = "INVALID_TICKET"
	ReasonNoSuchDataset  = "NO_SUCH_DATASET"
	ReasonEngine         = "ENGINE_FAILURE"
)

// toStatus maps domain errors onto gRPC status codes and tags the status
// with the error kind. Errors that already carry a status pass through.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var (
		invalidAddress *domain.InvalidAddressError
		invalidTicket  *domain.InvalidTicketError
		noSuchDataset  *domain.NoSuchDatasetError
		engineErr      *domain.EngineError
		transport      *domain.TransportError
	)
	switch {
	case errors.As(err, &invalidAddress):
		return withReason(codes.InvalidArgument, ReasonInvalidAddress, err)
	case errors.As(err, &invalidTicket):
		return withReason(codes.InvalidArgument, ReasonInvalidTicket, err)
	case errors.As(err, &noSuchDataset):
		return withReason(codes.NotFound, ReasonNoSuchDataset, err)
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.As(err, &transport):
		if st, ok := status.FromError(transport.Err); ok {
			return st.Err()
		}
		return status.Error(codes.Unavailable, err.Error())
	case errors.As(err, &engineErr):
		return withReason(codes.Internal, ReasonEngine, err)
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func withReason(code codes.Code, reason string, err error) error {
	st, detailErr := status.New(code, err.Error()).WithDetails(&errdetails.ErrorInfo{
		Reason: reason,
		Domain: ErrorDomain,
	})
	if detailErr != nil {
		return status.Error(code, err.Error())
	}
	return st.Err()
}

// FromStatus turns a status produced by the server back into the matching
// domain error. Other errors are wrapped as transport failures.
func FromStatus(op string, err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return domain.ErrTransport(op, err)
	}

	switch reasonOf(st) {
	case ReasonInvalidAddress:
		return domain.ErrInvalidAddress("%s", st.Message())
	case ReasonInvalidTicket:
		return domain.ErrInvalidTicket("%s", st.Message())
	case ReasonNoSuchDataset:
		return domain.ErrNoSuchDataset("%s", st.Message())
	case ReasonEngine:
		return domain.ErrEngine(op, errors.New(st.Message()))
	}

	switch st.Code() {
	case codes.NotFound:
		return domain.ErrNoSuchDataset("%s", st.Message())
	case codes.Internal:
		return domain.ErrEngine(op, errors.New(st.Message()))
	default:
		return domain.ErrTransport(op, err)
	}
}

// reasonOf returns the ErrorInfo reason toStatus attached, or "".
func reasonOf(st *status.Status) string {
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == ErrorDomain {
			return info.GetReason()
		}
	}
	return ""
}
