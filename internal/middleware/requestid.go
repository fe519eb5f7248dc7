package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"ruddy/internal/domain"
)

// Metadata keys carried on every call.
const (
	HeaderRequestID = "request_id"
	HeaderDatabase  = "database"
	HeaderSchema    = "schema"
)

// ExtractCallContext reads the call headers from incoming metadata. Only the
// first value of each key is used and kept verbatim. A missing request id is
// replaced with a fresh UUID.
func ExtractCallContext(md metadata.MD) domain.CallContext {
	first := func(key string) string {
		if v := md.Get(key); len(v) > 0 {
			return v[0]
		}
		return ""
	}

	cc := domain.CallContext{
		RequestID: first(HeaderRequestID),
		Database:  first(HeaderDatabase),
		Schema:    first(HeaderSchema),
	}
	if cc.RequestID == "" {
		cc.RequestID = uuid.NewString()
	}
	return cc
}

// RequestIDFromContext returns the request id of the current call, or an
// empty string outside of one.
func RequestIDFromContext(ctx context.Context) string {
	cc, _ := domain.CallContextFrom(ctx)
	return cc.RequestID
}

func incomingCallContext(ctx context.Context) domain.CallContext {
	md, _ := metadata.FromIncomingContext(ctx)
	return ExtractCallContext(md)
}

// UnaryCallContext stores the call headers in the handler context and echoes
// the request id back in the response headers.
func UnaryCallContext(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		cc := incomingCallContext(ctx)
		if err := grpc.SetHeader(ctx, metadata.Pairs(HeaderRequestID, cc.RequestID)); err != nil {
			logger.Debug("echo request id", "error", err)
		}

		start := time.Now()
		resp, err := handler(domain.WithCallContext(ctx, cc), req)
		logCall(logger, info.FullMethod, cc, start, err)
		return resp, err
	}
}

// StreamCallContext is the streaming counterpart of UnaryCallContext.
func StreamCallContext(logger *slog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		cc := incomingCallContext(ss.Context())
		if err := ss.SetHeader(metadata.Pairs(HeaderRequestID, cc.RequestID)); err != nil {
			logger.Debug("echo request id", "error", err)
		}

		start := time.Now()
		err := handler(srv, &callContextStream{ServerStream: ss, ctx: domain.WithCallContext(ss.Context(), cc)})
		logCall(logger, info.FullMethod, cc, start, err)
		return err
	}
}

type callContextStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *callContextStream) Context() context.Context {
	return s.ctx
}

func logCall(logger *slog.Logger, method string, cc domain.CallContext, start time.Time, err error) {
	attrs := []any{
		"method", method,
		"request_id", cc.RequestID,
		"duration", time.Since(start),
	}
	if cc.Database != "" {
		attrs = append(attrs, "database", cc.Database)
	}
	if cc.Schema != "" {
		attrs = append(attrs, "schema", cc.Schema)
	}
	if err != nil {
		attrs = append(attrs, "code", status.Code(err).String(), "error", err)
		logger.Warn("call failed", attrs...)
		return
	}
	logger.Info("call", attrs...)
}
