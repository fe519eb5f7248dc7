// Package client talks to a ruddy Flight server.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	arrowflight "github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"ruddy/internal/domain"
	"ruddy/internal/flight"
	"ruddy/internal/locator"
	"ruddy/internal/middleware"
	"ruddy/internal/ticket"
)

// Dataset is one table or command result as described by the server.
type Dataset struct {
	// Table is the addressed table; zero for command results.
	Table  domain.TableIdentity
	Schema *arrow.Schema
	Info   *arrowflight.FlightInfo
}

// Client is a Flight client bound to one locator. Its database and schema
// parameters are sent as overrides on every call.
type Client struct {
	loc      locator.Locator
	defaults domain.ConnectionDefaults
	fc       arrowflight.Client
	alloc    memory.Allocator
	logger   *slog.Logger
}

// New dials the locator's host and port.
func New(loc locator.Locator, logger *slog.Logger, opts ...grpc.DialOption) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bridge := &middleware.HeaderBridge{
		Database: loc.Database(),
		Schema:   loc.Schema(),
		Logger:   logger,
	}
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	fc, err := arrowflight.NewClientWithMiddleware(
		loc.HostPort(),
		nil,
		[]arrowflight.ClientMiddleware{arrowflight.CreateClientMiddleware(bridge)},
		dialOpts...,
	)
	if err != nil {
		return nil, domain.ErrTransport("dial "+loc.Location(), err)
	}
	return &Client{
		loc:      loc,
		defaults: loc.Defaults(),
		fc:       fc,
		alloc:    memory.DefaultAllocator,
		logger:   logger,
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.fc.Close()
}

// Locator returns the locator the client was created with.
func (c *Client) Locator() locator.Locator {
	return c.loc
}

// call pins one request id for every RPC made with the returned context,
// unless the caller already pinned one.
func call(ctx context.Context) context.Context {
	if middleware.OutgoingRequestID(ctx) != "" {
		return ctx
	}
	return middleware.WithRequestID(ctx, uuid.NewString())
}

// ResolveTable turns a dotted name (table, schema.table or
// database.schema.table) into a TableIdentity using the locator's database
// and schema, falling back to the in-memory database and main schema.
func (c *Client) ResolveTable(name string) (domain.TableIdentity, error) {
	if name == "" {
		return domain.TableIdentity{}, domain.ErrInvalidAddress("expected table name")
	}
	return domain.ResolveFromPath(strings.Split(name, "."), c.defaults.Resolve())
}

// pathDescriptor validates a dotted name and sends its segments as given,
// so the server fills whatever the name leaves out with its own defaults.
func pathDescriptor(name string) (*arrowflight.FlightDescriptor, error) {
	if name == "" {
		return nil, domain.ErrInvalidAddress("expected table name")
	}
	segments := strings.Split(name, ".")
	if _, err := domain.ResolveFromPath(segments, domain.ConnectionDefaults{}); err != nil {
		return nil, err
	}
	return &arrowflight.FlightDescriptor{Type: arrowflight.DescriptorPATH, Path: segments}, nil
}

// ListTables streams every table the server lists for this client.
func (c *Client) ListTables(ctx context.Context) iter.Seq2[Dataset, error] {
	return func(yield func(Dataset, error) bool) {
		ctx, cancel := context.WithCancel(call(ctx))
		defer cancel()

		stream, err := c.fc.ListFlights(ctx, &arrowflight.Criteria{})
		if err != nil {
			yield(Dataset{}, flight.FromStatus("list flights", err))
			return
		}
		for {
			info, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Dataset{}, flight.FromStatus("list flights", err))
				return
			}
			ds, err := c.dataset(info)
			if !yield(ds, err) || err != nil {
				return
			}
		}
	}
}

// DescribePath returns the dataset of the named table.
func (c *Client) DescribePath(ctx context.Context, name string) (Dataset, error) {
	desc, err := pathDescriptor(name)
	if err != nil {
		return Dataset{}, err
	}
	info, err := c.fc.GetFlightInfo(call(ctx), desc)
	if err != nil {
		return Dataset{}, flight.FromStatus("describe "+name, err)
	}
	return c.dataset(info)
}

// DescribeCommand returns the result schema of a query without fetching rows.
func (c *Client) DescribeCommand(ctx context.Context, query string) (Dataset, error) {
	desc := &arrowflight.FlightDescriptor{Type: arrowflight.DescriptorCMD, Cmd: []byte(query)}
	info, err := c.fc.GetFlightInfo(call(ctx), desc)
	if err != nil {
		return Dataset{}, flight.FromStatus("describe command", err)
	}
	return c.dataset(info)
}

func (c *Client) dataset(info *arrowflight.FlightInfo) (Dataset, error) {
	schema, err := arrowflight.DeserializeSchema(info.GetSchema(), c.alloc)
	if err != nil {
		return Dataset{}, domain.ErrTransport("decode schema", err)
	}
	ds := Dataset{Schema: schema, Info: info}
	if len(info.GetEndpoint()) == 0 {
		return ds, nil
	}
	t, err := ticket.Decode(info.GetEndpoint()[0].GetTicket().GetTicket())
	if err != nil {
		return Dataset{}, err
	}
	if tf, ok := t.(ticket.TableFetch); ok {
		ds.Table = tf.Table
	}
	return ds, nil
}

// RecordReader streams a fetch result. Release ends the call.
type RecordReader struct {
	*arrowflight.Reader
	op     string
	cancel context.CancelFunc
}

// Err returns the error that ended the stream early, translated like every
// other client error. A clean end of stream is nil.
func (r *RecordReader) Err() error {
	err := r.Reader.Err()
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return flight.FromStatus(r.op, err)
}

// Release releases the reader and cancels the underlying call.
func (r *RecordReader) Release() {
	r.Reader.Release()
	r.cancel()
}

func (c *Client) doGet(ctx context.Context, op string, t []byte) (*RecordReader, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream, err := c.fc.DoGet(ctx, &arrowflight.Ticket{Ticket: t})
	if err != nil {
		cancel()
		return nil, flight.FromStatus(op, err)
	}
	rdr, err := arrowflight.NewRecordReader(stream, ipc.WithAllocator(c.alloc))
	if err != nil {
		cancel()
		return nil, flight.FromStatus(op, err)
	}
	return &RecordReader{Reader: rdr, op: op, cancel: cancel}, nil
}

// TableReader describes the named table and streams the endpoint the
// server returned for it.
func (c *Client) TableReader(ctx context.Context, name string) (*RecordReader, error) {
	ctx = call(ctx)
	ds, err := c.DescribePath(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(ds.Info.GetEndpoint()) == 0 {
		return nil, domain.ErrNoSuchDataset("no endpoint for %s", name)
	}
	return c.doGet(ctx, "read "+ds.Table.QualifiedName(), ds.Info.GetEndpoint()[0].GetTicket().GetTicket())
}

// QueryReader runs the query and streams its result.
func (c *Client) QueryReader(ctx context.Context, query string) (*RecordReader, error) {
	t, err := ticket.ForCommand(query)
	if err != nil {
		return nil, err
	}
	return c.doGet(call(ctx), "query", t)
}

// ReadTable reads the whole named table into memory.
func (c *Client) ReadTable(ctx context.Context, name string) (arrow.Table, error) {
	rdr, err := c.TableReader(ctx, name)
	if err != nil {
		return nil, err
	}
	return c.collect(rdr)
}

// ReadQuery runs the query and reads its whole result into memory.
func (c *Client) ReadQuery(ctx context.Context, query string) (arrow.Table, error) {
	rdr, err := c.QueryReader(ctx, query)
	if err != nil {
		return nil, err
	}
	return c.collect(rdr)
}

func (c *Client) collect(rdr *RecordReader) (arrow.Table, error) {
	defer rdr.Release()

	var recs []arrow.RecordBatch
	defer func() {
		for _, r := range recs {
			r.Release()
		}
	}()
	for rdr.Next() {
		rec := rdr.Record()
		rec.Retain()
		recs = append(recs, rec)
	}
	if err := rdr.Err(); err != nil {
		return nil, err
	}
	return array.NewTableFromRecords(rdr.Schema(), recs), nil
}

// Write sends every batch of rdr to the named table, creating it on the
// server when it does not exist. It returns the number of rows sent.
func (c *Client) Write(ctx context.Context, name string, rdr array.RecordReader) (int64, error) {
	desc, err := pathDescriptor(name)
	if err != nil {
		return 0, err
	}
	op := "write " + name

	ctx, cancel := context.WithCancel(call(ctx))
	defer cancel()

	stream, err := c.fc.DoPut(ctx)
	if err != nil {
		return 0, flight.FromStatus(op, err)
	}

	w := arrowflight.NewRecordWriter(stream, ipc.WithSchema(rdr.Schema()), ipc.WithAllocator(c.alloc))
	w.SetFlightDescriptor(desc)

	var rows int64
	for rdr.Next() {
		rec := rdr.Record()
		if err := w.Write(rec); err != nil {
			_ = w.Close()
			return rows, c.putResult(stream, op, err)
		}
		rows += rec.NumRows()
	}
	if err := rdr.Err(); err != nil {
		_ = w.Close()
		return rows, fmt.Errorf("read input batches: %w", err)
	}
	if err := w.Close(); err != nil {
		return rows, c.putResult(stream, op, err)
	}
	if err := stream.CloseSend(); err != nil {
		return rows, flight.FromStatus(op, err)
	}
	if err := c.putResult(stream, op, nil); err != nil {
		return rows, err
	}
	return rows, nil
}

// putResult drains the server's responses. The call's final status takes
// precedence over a local send error, which is usually just io.EOF.
func (c *Client) putResult(stream arrowflight.FlightService_DoPutClient, op string, sendErr error) error {
	for {
		_, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			if sendErr != nil {
				return domain.ErrTransport(op, sendErr)
			}
			return nil
		}
		if err != nil {
			return flight.FromStatus(op, err)
		}
	}
}

// TraceID asks the server for the request id it assigned to the call.
func (c *Client) TraceID(ctx context.Context) (string, error) {
	stream, err := c.fc.DoAction(call(ctx), &arrowflight.Action{Type: flight.ActionTraceID})
	if err != nil {
		return "", flight.FromStatus("trace id", err)
	}
	res, err := stream.Recv()
	if err != nil {
		return "", flight.FromStatus("trace id", err)
	}
	return string(res.GetBody()), nil
}
