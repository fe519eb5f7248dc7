// Package testutil provides shared mock implementations of engine-facing
// interfaces for use in tests across the codebase.
package testutil

import (
	"context"
	"iter"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"

	"ruddy/internal/catalog"
	"ruddy/internal/domain"
	"ruddy/internal/engine"
)

// === Backend Mock ===

// MockBackend implements the Flight service backend. Every method panics
// unless its Fn field is set, except Defaults, which falls back to the
// package defaults.
type MockBackend struct {
	DefaultsValue domain.ConnectionDefaults

	CatalogRowsFn func(ctx context.Context, filter catalog.Filter) iter.Seq2[catalog.Row, error]
	QuerySchemaFn func(ctx context.Context, query string) (*arrow.Schema, error)
	QueryFn       func(ctx context.Context, query string) (engine.Cursor, error)
	CreateTableFn func(ctx context.Context, table domain.TableIdentity, schema *arrow.Schema) error
	AppendFn      func(ctx context.Context, table domain.TableIdentity, batch arrow.RecordBatch) (int64, error)

	mu      sync.Mutex
	Queries []string               // collected query text for assertions
	Created []domain.TableIdentity // collected CreateTable targets
}

// Defaults implements the interface method for testing.
func (m *MockBackend) Defaults() domain.ConnectionDefaults {
	return m.DefaultsValue.Resolve()
}

// CatalogRows implements the interface method for testing.
func (m *MockBackend) CatalogRows(ctx context.Context, filter catalog.Filter) iter.Seq2[catalog.Row, error] {
	if m.CatalogRowsFn != nil {
		return m.CatalogRowsFn(ctx, filter)
	}
	panic("unexpected call to MockBackend.CatalogRows")
}

// QuerySchema implements the interface method for testing.
func (m *MockBackend) QuerySchema(ctx context.Context, query string) (*arrow.Schema, error) {
	m.record(query)
	if m.QuerySchemaFn != nil {
		return m.QuerySchemaFn(ctx, query)
	}
	panic("unexpected call to MockBackend.QuerySchema")
}

// Query implements the interface method for testing.
func (m *MockBackend) Query(ctx context.Context, query string) (engine.Cursor, error) {
	m.record(query)
	if m.QueryFn != nil {
		return m.QueryFn(ctx, query)
	}
	panic("unexpected call to MockBackend.Query")
}

// CreateTable implements the interface method for testing.
func (m *MockBackend) CreateTable(ctx context.Context, table domain.TableIdentity, schema *arrow.Schema) error {
	m.mu.Lock()
	m.Created = append(m.Created, table)
	m.mu.Unlock()
	if m.CreateTableFn != nil {
		return m.CreateTableFn(ctx, table, schema)
	}
	panic("unexpected call to MockBackend.CreateTable")
}

// Append implements the interface method for testing.
func (m *MockBackend) Append(ctx context.Context, table domain.TableIdentity, batch arrow.RecordBatch) (int64, error) {
	if m.AppendFn != nil {
		return m.AppendFn(ctx, table, batch)
	}
	panic("unexpected call to MockBackend.Append")
}

func (m *MockBackend) record(query string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Queries = append(m.Queries, query)
}

// LastQuery returns the last collected query, or "" if none.
func (m *MockBackend) LastQuery() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Queries) == 0 {
		return ""
	}
	return m.Queries[len(m.Queries)-1]
}

// CreatedTables returns the collected CreateTable targets.
func (m *MockBackend) CreatedTables() []domain.TableIdentity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TableIdentity(nil), m.Created...)
}

// Rows returns a catalog row sequence over rows that fails with err after
// the last row when err is non-nil.
func Rows(rows []catalog.Row, err error) iter.Seq2[catalog.Row, error] {
	return func(yield func(catalog.Row, error) bool) {
		for _, r := range rows {
			if !yield(r, nil) {
				return
			}
		}
		if err != nil {
			yield(catalog.Row{}, err)
		}
	}
}

// === Cursor Mock ===

// MockCursor replays fixed batches and then reports Err. It takes
// ownership of the batches and releases them on Close.
type MockCursor struct {
	SchemaValue *arrow.Schema
	Batches     []arrow.RecordBatch
	ErrValue    error
	CloseErr    error

	pos    int
	Closed bool
}

// Schema implements the interface method for testing.
func (c *MockCursor) Schema() *arrow.Schema { return c.SchemaValue }

// Next implements the interface method for testing.
func (c *MockCursor) Next() bool {
	if c.pos >= len(c.Batches) {
		return false
	}
	c.pos++
	return true
}

// Batch implements the interface method for testing.
func (c *MockCursor) Batch() arrow.RecordBatch {
	if c.pos == 0 {
		return nil
	}
	return c.Batches[c.pos-1]
}

// Err implements the interface method for testing.
func (c *MockCursor) Err() error {
	if c.pos < len(c.Batches) {
		return nil
	}
	return c.ErrValue
}

// Close implements the interface method for testing.
func (c *MockCursor) Close() error {
	if !c.Closed {
		for _, b := range c.Batches {
			b.Release()
		}
		c.Closed = true
	}
	return c.CloseErr
}
