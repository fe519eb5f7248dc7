package middleware

import (
	"context"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/google/uuid"
	"google.golang.org/grpc/metadata"
)

type requestIDKey struct{}

// WithRequestID pins the request id sent on every call made with ctx, so the
// calls of one client operation share a single id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// OutgoingRequestID returns the id pinned by WithRequestID.
func OutgoingRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// HeaderBridge attaches the call headers to every outgoing Flight call.
// Empty Database or Schema values are not sent.
type HeaderBridge struct {
	Database string
	Schema   string
	Logger   *slog.Logger
}

var (
	_ flight.CustomClientMiddleware  = (*HeaderBridge)(nil)
	_ flight.ClientHeadersMiddleware = (*HeaderBridge)(nil)
)

// StartCall implements flight.CustomClientMiddleware.
func (h *HeaderBridge) StartCall(ctx context.Context) context.Context {
	id := OutgoingRequestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}

	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	md.Set(HeaderRequestID, id)
	if h.Database != "" {
		md.Set(HeaderDatabase, h.Database)
	}
	if h.Schema != "" {
		md.Set(HeaderSchema, h.Schema)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

// HeadersReceived implements flight.ClientHeadersMiddleware.
func (h *HeaderBridge) HeadersReceived(ctx context.Context, md metadata.MD) {
	if h.Logger == nil {
		return
	}
	if ids := md.Get(HeaderRequestID); len(ids) > 0 {
		h.Logger.Debug("response headers", "request_id", ids[0])
	}
}
