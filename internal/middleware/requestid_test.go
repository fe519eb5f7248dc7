package middleware

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"ruddy/internal/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestExtractCallContext(t *testing.T) {
	md := metadata.Pairs(
		HeaderRequestID, "req-1",
		HeaderDatabase, "warehouse.duckdb",
		HeaderSchema, "staging",
		HeaderSchema, "ignored",
	)
	cc := ExtractCallContext(md)
	assert.Equal(t, domain.CallContext{RequestID: "req-1", Database: "warehouse.duckdb", Schema: "staging"}, cc)
}

func TestExtractCallContext_KeepsRequestIDVerbatim(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantNew bool
	}{
		{name: "plain", id: "abc-123_DEF.4"},
		{name: "missing", id: "", wantNew: true},
		{name: "punctuation", id: "trace:abc/123"},
		{name: "spaces", id: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01 x"},
		{name: "long", id: strings.Repeat("a", 300)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := metadata.MD{}
			if tt.id != "" {
				md.Set(HeaderRequestID, tt.id)
			}
			cc := ExtractCallContext(md)
			require.NotEmpty(t, cc.RequestID)
			if tt.wantNew {
				assert.NotEqual(t, tt.id, cc.RequestID)
			} else {
				assert.Equal(t, tt.id, cc.RequestID)
			}
		})
	}
}

func TestUnaryCallContext(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		HeaderRequestID, "req-42",
		HeaderDatabase, "other.duckdb",
	))

	var got domain.CallContext
	_, err := UnaryCallContext(discard)(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/svc/Method"},
		func(ctx context.Context, req any) (any, error) {
			got, _ = domain.CallContextFrom(ctx)
			return nil, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "req-42", got.RequestID)
	assert.Equal(t, "other.duckdb", got.Database)
	assert.Empty(t, got.Schema)
}

type fakeServerStream struct {
	grpc.ServerStream
	ctx    context.Context
	header metadata.MD
}

func (f *fakeServerStream) Context() context.Context { return f.ctx }

func (f *fakeServerStream) SetHeader(md metadata.MD) error {
	f.header = metadata.Join(f.header, md)
	return nil
}

func TestStreamCallContext_EchoesOnlyRequestID(t *testing.T) {
	ss := &fakeServerStream{ctx: metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		HeaderRequestID, "req-7",
		HeaderDatabase, "db",
		HeaderSchema, "s",
	))}

	var seen string
	err := StreamCallContext(discard)(nil, ss, &grpc.StreamServerInfo{FullMethod: "/svc/Stream"},
		func(srv any, stream grpc.ServerStream) error {
			seen = RequestIDFromContext(stream.Context())
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, "req-7", seen)
	assert.Equal(t, []string{"req-7"}, ss.header.Get(HeaderRequestID))
	assert.Empty(t, ss.header.Get(HeaderDatabase))
	assert.Empty(t, ss.header.Get(HeaderSchema))
}

func TestRequestIDFromContext_OutsideCall(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))
}
