package engine

import (
	"context"
	"database/sql"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"ruddy/internal/catalog"
	"ruddy/internal/domain"
)

// Cursor streams a query result as record batches. The batch returned by
// Batch is owned by the cursor and released on the next call to Next or
// Close; callers that keep it must Retain it.
type Cursor interface {
	Schema() *arrow.Schema
	Next() bool
	Batch() arrow.RecordBatch
	Err() error
	Close() error
}

// QuerySchema runs the query and returns the Arrow schema of its result.
func (e *DuckDB) QuerySchema(ctx context.Context, query string) (*arrow.Schema, error) {
	e.logger.Debug("query schema", "sql", query)
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, domain.ErrEngine("query", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			e.logger.Error("close rows", "error", err)
		}
	}()
	return schemaOf(rows)
}

// Query runs the query and returns a cursor over its result.
func (e *DuckDB) Query(ctx context.Context, query string) (Cursor, error) {
	e.logger.Debug("query", "sql", query)
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, domain.ErrEngine("query", err)
	}
	schema, err := schemaOf(rows)
	if err != nil {
		_ = rows.Close()
		return nil, err
	}
	return &rowCursor{
		rows:      rows,
		schema:    schema,
		alloc:     e.alloc,
		batchSize: e.batchSize,
	}, nil
}

func schemaOf(rows *sql.Rows) (*arrow.Schema, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, domain.ErrEngine("column types", err)
	}
	fields := make([]arrow.Field, len(colTypes))
	for i, ct := range colTypes {
		fields[i] = arrow.Field{Name: ct.Name(), Type: catalog.ArrowType(ct.DatabaseTypeName()), Nullable: true}
	}
	return arrow.NewSchema(fields, nil), nil
}

type rowCursor struct {
	rows      *sql.Rows
	schema    *arrow.Schema
	alloc     memory.Allocator
	batchSize int

	cur  arrow.RecordBatch
	err  error
	done bool
}

func (c *rowCursor) Schema() *arrow.Schema { return c.schema }

func (c *rowCursor) Batch() arrow.RecordBatch { return c.cur }

func (c *rowCursor) Err() error { return c.err }

func (c *rowCursor) Next() bool {
	c.release()
	if c.done || c.err != nil {
		return false
	}
	rec, more, err := rowsToRecord(c.rows, c.schema, c.alloc, c.batchSize)
	if err != nil {
		c.err = err
		return false
	}
	c.done = !more
	if rec == nil {
		return false
	}
	c.cur = rec
	return true
}

func (c *rowCursor) Close() error {
	c.release()
	c.done = true
	if err := c.rows.Close(); err != nil {
		return domain.ErrEngine("close rows", err)
	}
	return nil
}

func (c *rowCursor) release() {
	if c.cur != nil {
		c.cur.Release()
		c.cur = nil
	}
}

// rowsToRecord reads up to batchSize rows into one record batch. more is
// false once the rows are exhausted; rec is nil when no row was read.
func rowsToRecord(rows *sql.Rows, schema *arrow.Schema, alloc memory.Allocator, batchSize int) (rec arrow.RecordBatch, more bool, err error) {
	builder := array.NewRecordBuilder(alloc, schema)
	defer builder.Release()

	numFields := schema.NumFields()
	values := make([]interface{}, numFields)
	valuePtrs := make([]interface{}, numFields)
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	count := 0
	more = true
	for count < batchSize {
		if !rows.Next() {
			more = false
			break
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, false, domain.ErrEngine("scan", err)
		}
		for i, val := range values {
			if err := appendValue(builder.Field(i), val); err != nil {
				return nil, false, domain.ErrEngine("convert column "+schema.Field(i).Name, err)
			}
		}
		count++
	}

	if err := rows.Err(); err != nil {
		return nil, false, domain.ErrEngine("read rows", err)
	}
	if count == 0 {
		return nil, more, nil
	}
	return builder.NewRecordBatch(), more, nil
}
