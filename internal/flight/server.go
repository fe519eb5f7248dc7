// Package flight serves a DuckDB engine over Arrow Flight.
package flight

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	arrowflight "github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	grpcHealth "google.golang.org/grpc/health"
	grpcHealthV1 "google.golang.org/grpc/health/grpc_health_v1"

	"ruddy/internal/catalog"
	"ruddy/internal/domain"
	"ruddy/internal/engine"
	"ruddy/internal/locator"
	"ruddy/internal/metrics"
	"ruddy/internal/middleware"
)

// Backend is the engine the service dispatches to. *engine.DuckDB
// implements it.
type Backend interface {
	Defaults() domain.ConnectionDefaults
	CatalogRows(ctx context.Context, filter catalog.Filter) iter.Seq2[catalog.Row, error]
	QuerySchema(ctx context.Context, query string) (*arrow.Schema, error)
	Query(ctx context.Context, query string) (engine.Cursor, error)
	CreateTable(ctx context.Context, table domain.TableIdentity, schema *arrow.Schema) error
	Append(ctx context.Context, table domain.TableIdentity, batch arrow.RecordBatch) (int64, error)
}

var _ Backend = (*engine.DuckDB)(nil)

// Options tune optional server behaviour. The zero value serves without
// metrics or rate limiting.
type Options struct {
	Metrics   *metrics.Metrics
	RateLimit middleware.RateLimitConfig
	Allocator memory.Allocator
}

// Server listens on the locator's host and port and serves the Flight
// service plus the gRPC health service.
type Server struct {
	loc     locator.Locator
	backend Backend
	logger  *slog.Logger
	opts    Options

	mu         sync.Mutex
	ln         net.Listener
	grpcServer *grpc.Server
	health     *grpcHealth.Server
	wg         sync.WaitGroup
}

func NewServer(loc locator.Locator, backend Backend, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Allocator == nil {
		opts.Allocator = memory.DefaultAllocator
	}
	return &Server{loc: loc, backend: backend, logger: logger, opts: opts}
}

func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return fmt.Errorf("flight listener already started")
	}

	ln, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", s.loc.HostPort())
	if err != nil {
		return fmt.Errorf("listen flight: %w", err)
	}

	unary := []grpc.UnaryServerInterceptor{middleware.UnaryCallContext(s.logger)}
	stream := []grpc.StreamServerInterceptor{middleware.StreamCallContext(s.logger)}
	if s.opts.Metrics != nil {
		unary = append([]grpc.UnaryServerInterceptor{s.opts.Metrics.GRPC.UnaryServerInterceptor()}, unary...)
		stream = append([]grpc.StreamServerInterceptor{s.opts.Metrics.GRPC.StreamServerInterceptor()}, stream...)
	}
	if limiter := middleware.NewRateLimiter(s.opts.RateLimit); limiter.Enabled() {
		unary = append(unary, limiter.Unary())
		stream = append(stream, limiter.Stream())
	}

	grpcSrv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(stream...),
	)
	location := advertisedLocation(s.loc, ln.Addr())
	arrowflight.RegisterFlightServiceServer(grpcSrv, newService(location, s.backend, s.logger, s.opts))
	healthSrv := grpcHealth.NewServer()
	healthSrv.SetServingStatus("", grpcHealthV1.HealthCheckResponse_SERVING)
	grpcHealthV1.RegisterHealthServer(grpcSrv, healthSrv)
	if s.opts.Metrics != nil {
		s.opts.Metrics.GRPC.InitializeMetrics(grpcSrv)
	}

	s.ln = ln
	s.grpcServer = grpcSrv
	s.health = healthSrv
	s.wg.Add(1)
	go s.serveLoop()
	s.logger.Info("flight listener started", "addr", ln.Addr().String(), "location", location)
	return nil
}

// advertisedLocation is the URI put into flight endpoints: the locator's
// scheme and host with the port actually bound.
func advertisedLocation(loc locator.Locator, addr net.Addr) string {
	host := loc.Host
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return fmt.Sprintf("%s://%s", loc.Scheme, net.JoinHostPort(host, fmt.Sprint(tcp.Port)))
	}
	return loc.Location()
}

func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Location returns the URI clients should connect to, or "" before Start.
func (s *Server) Location() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return advertisedLocation(s.loc, s.ln.Addr())
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	grpcSrv := s.grpcServer
	healthSrv := s.health
	s.ln = nil
	s.grpcServer = nil
	s.health = nil
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	if healthSrv != nil {
		healthSrv.Shutdown()
	}

	if grpcSrv != nil {
		stopped := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			grpcSrv.Stop()
			return fmt.Errorf("flight shutdown: %w", ctx.Err())
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flight shutdown wait: %w", ctx.Err())
	}
}

func (s *Server) serveLoop() {
	defer s.wg.Done()

	s.mu.Lock()
	ln := s.ln
	grpcSrv := s.grpcServer
	s.mu.Unlock()

	if ln == nil || grpcSrv == nil {
		return
	}
	if err := grpcSrv.Serve(ln); err != nil {
		s.logger.Debug("flight gRPC server stopped", "error", err)
	}
}
