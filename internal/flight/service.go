package flight

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow"
	arrowflight "github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ruddy/internal/catalog"
	"ruddy/internal/domain"
	"ruddy/internal/engine"
	"ruddy/internal/metrics"
	"ruddy/internal/middleware"
	"ruddy/internal/ticket"
)

// ActionTraceID returns the request id the server assigned to the call.
const ActionTraceID = "get-trace-id"

type service struct {
	arrowflight.BaseFlightServer

	location string
	backend  Backend
	logger   *slog.Logger
	metrics  *metrics.Metrics
	alloc    memory.Allocator
}

func newService(location string, backend Backend, logger *slog.Logger, opts Options) *service {
	return &service{
		location: location,
		backend:  backend,
		logger:   logger,
		metrics:  opts.Metrics,
		alloc:    opts.Allocator,
	}
}

// scope returns the defaults of the current call (server defaults under the
// caller's overrides) and the listing filter the overrides imply. Without
// overrides the filter is empty and every attached catalog is listed.
func (s *service) scope(ctx context.Context) (domain.ConnectionDefaults, catalog.Filter) {
	cc, _ := domain.CallContextFrom(ctx)
	defaults := s.backend.Defaults().Overlay(cc.Overrides())

	var filter catalog.Filter
	if cc.Database != "" {
		filter.Catalog = domain.CatalogLabel(cc.Database)
	}
	if cc.Schema != "" {
		filter.Schema = cc.Schema
	}
	return defaults, filter
}

func (s *service) listings(ctx context.Context, database string, filter catalog.Filter) iter.Seq2[catalog.Listing, error] {
	return catalog.List(s.backend.CatalogRows(ctx, filter), database, filter)
}

func (s *service) ListFlights(_ *arrowflight.Criteria, stream arrowflight.FlightService_ListFlightsServer) error {
	ctx := stream.Context()
	defaults, filter := s.scope(ctx)
	s.logger.Debug("list flights", "request_id", middleware.RequestIDFromContext(ctx), "database", defaults.Database, "filter", filter)

	for l, err := range s.listings(ctx, defaults.Database, filter) {
		if err != nil {
			return toStatus(err)
		}
		info, err := s.listingInfo(l)
		if err != nil {
			return toStatus(err)
		}
		if err := stream.Send(info); err != nil {
			return toStatus(domain.ErrTransport("send flight info", err))
		}
	}
	return nil
}

func (s *service) GetFlightInfo(ctx context.Context, desc *arrowflight.FlightDescriptor) (*arrowflight.FlightInfo, error) {
	info, err := s.describe(ctx, desc)
	if err != nil {
		return nil, toStatus(err)
	}
	return info, nil
}

func (s *service) GetSchema(ctx context.Context, desc *arrowflight.FlightDescriptor) (*arrowflight.SchemaResult, error) {
	info, err := s.describe(ctx, desc)
	if err != nil {
		return nil, toStatus(err)
	}
	return &arrowflight.SchemaResult{Schema: info.Schema}, nil
}

// describe resolves a path descriptor to exactly one listing, or runs a
// command descriptor to learn its result schema.
func (s *service) describe(ctx context.Context, desc *arrowflight.FlightDescriptor) (*arrowflight.FlightInfo, error) {
	if desc == nil {
		return nil, domain.ErrInvalidAddress("flight descriptor is required")
	}
	requestID := middleware.RequestIDFromContext(ctx)

	switch desc.Type {
	case arrowflight.DescriptorPATH:
		defaults, _ := s.scope(ctx)
		table, err := domain.ResolveFromPath(desc.Path, defaults)
		if err != nil {
			return nil, err
		}
		filter := catalog.Filter{
			Catalog: table.CatalogName,
			Schema:  table.SchemaOrDefault(),
			Table:   table.Name,
		}
		s.logger.Debug("describe table", "request_id", requestID, "table", table.QualifiedName())
		next, stop := iter.Pull2(s.listings(ctx, table.DatabaseOrDefault(), filter))
		defer stop()
		l, err, ok := next()
		if !ok {
			return nil, domain.ErrNoSuchDataset("could not find dataset %s", table.QualifiedName())
		}
		if err != nil {
			return nil, err
		}
		return s.listingInfo(l)

	case arrowflight.DescriptorCMD:
		query := string(desc.Cmd)
		if query == "" {
			return nil, domain.ErrInvalidAddress("command descriptor is empty")
		}
		s.logger.Debug("describe command", "request_id", requestID, "sql", query)
		schema, err := s.backend.QuerySchema(ctx, query)
		if err != nil {
			return nil, err
		}
		t, err := ticket.ForCommand(query)
		if err != nil {
			return nil, err
		}
		return s.flightInfo(schema, desc, t), nil

	default:
		return nil, domain.ErrInvalidAddress("unsupported descriptor type %s", desc.Type)
	}
}

func (s *service) listingInfo(l catalog.Listing) (*arrowflight.FlightInfo, error) {
	t, err := ticket.ForTable(l.Table)
	if err != nil {
		return nil, err
	}
	desc := &arrowflight.FlightDescriptor{
		Type: arrowflight.DescriptorPATH,
		Path: []string{l.Table.CatalogName, l.Table.SchemaName, l.Table.Name},
	}
	return s.flightInfo(l.Schema(), desc, t), nil
}

func (s *service) flightInfo(schema *arrow.Schema, desc *arrowflight.FlightDescriptor, t []byte) *arrowflight.FlightInfo {
	return &arrowflight.FlightInfo{
		Schema:           arrowflight.SerializeSchema(schema, s.alloc),
		FlightDescriptor: desc,
		Endpoint: []*arrowflight.FlightEndpoint{{
			Ticket:   &arrowflight.Ticket{Ticket: t},
			Location: []*arrowflight.Location{{Uri: s.location}},
		}},
		TotalRecords: -1,
		TotalBytes:   -1,
	}
}

func (s *service) DoGet(tkt *arrowflight.Ticket, stream arrowflight.FlightService_DoGetServer) error {
	ctx := stream.Context()
	requestID := middleware.RequestIDFromContext(ctx)

	t, err := ticket.Decode(tkt.GetTicket())
	if err != nil {
		return toStatus(err)
	}
	if s.metrics != nil {
		s.metrics.TicketsDecoded.WithLabelValues(string(t.Kind())).Inc()
	}

	var query string
	switch t := t.(type) {
	case ticket.TableFetch:
		query = engine.SelectAll(t.Table)
		s.logger.Debug("fetch table", "request_id", requestID, "table", t.Table.QualifiedName(), "sql", query)
	case ticket.Command:
		query = t.Text
		s.logger.Debug("fetch command", "request_id", requestID, "sql", query)
	}

	cur, err := s.backend.Query(ctx, query)
	if err != nil {
		return toStatus(err)
	}
	defer func() {
		if err := cur.Close(); err != nil {
			s.logger.Error("close cursor", "request_id", requestID, "error", err)
		}
	}()

	w := arrowflight.NewRecordWriter(stream, ipc.WithSchema(cur.Schema()), ipc.WithAllocator(s.alloc))
	var rows int64
	for cur.Next() {
		batch := cur.Batch()
		if err := w.Write(batch); err != nil {
			_ = w.Close()
			return toStatus(domain.ErrTransport("write batch", err))
		}
		rows += batch.NumRows()
	}
	if err := cur.Err(); err != nil {
		_ = w.Close()
		return toStatus(err)
	}
	if s.metrics != nil {
		s.metrics.RowsRead.Add(float64(rows))
	}
	if err := w.Close(); err != nil {
		s.logger.Error("close record writer", "request_id", requestID, "error", err)
	}
	return nil
}

func (s *service) DoPut(stream arrowflight.FlightService_DoPutServer) error {
	ctx := stream.Context()
	requestID := middleware.RequestIDFromContext(ctx)

	rdr, err := arrowflight.NewRecordReader(stream, ipc.WithAllocator(s.alloc))
	if err != nil {
		return toStatus(domain.ErrTransport("open record reader", err))
	}
	defer rdr.Release()

	desc := rdr.LatestFlightDescriptor()
	if desc == nil || desc.Type != arrowflight.DescriptorPATH {
		return toStatus(domain.ErrInvalidAddress("write requires a path descriptor"))
	}
	defaults, _ := s.scope(ctx)
	table, err := domain.ResolveFromPath(desc.Path, defaults)
	if err != nil {
		return toStatus(err)
	}
	s.logger.Info("receiving data for table", "request_id", requestID, "table", table.QualifiedName())

	var (
		created bool
		written int64
	)
	for rdr.Next() {
		if !created {
			if err := s.backend.CreateTable(ctx, table, rdr.Schema()); err != nil {
				return toStatus(err)
			}
			created = true
		}
		n, err := s.backend.Append(ctx, table, rdr.Record())
		written += n
		if err != nil {
			s.recordWritten(written)
			return toStatus(err)
		}
	}
	s.recordWritten(written)
	if err := rdr.Err(); err != nil && !errors.Is(err, io.EOF) {
		return toStatus(domain.ErrTransport("read batch", err))
	}

	if !created {
		s.logger.Info("nothing to write", "request_id", requestID, "table", table.QualifiedName())
		return nil
	}
	s.logger.Debug("write complete", "request_id", requestID, "table", table.QualifiedName(), "rows", written)
	return nil
}

func (s *service) recordWritten(n int64) {
	if s.metrics != nil && n > 0 {
		s.metrics.RowsWritten.Add(float64(n))
	}
}

func (s *service) ListActions(_ *arrowflight.Empty, stream arrowflight.FlightService_ListActionsServer) error {
	return stream.Send(&arrowflight.ActionType{
		Type:        ActionTraceID,
		Description: "Get the trace context ID.",
	})
}

func (s *service) DoAction(action *arrowflight.Action, stream arrowflight.FlightService_DoActionServer) error {
	switch action.GetType() {
	case ActionTraceID:
		id := middleware.RequestIDFromContext(stream.Context())
		return stream.Send(&arrowflight.Result{Body: []byte(id)})
	default:
		return status.Errorf(codes.Unimplemented, "unknown action %q", action.GetType())
	}
}
