// Package engine runs catalog scans, queries and table writes against DuckDB
// and converts between database/sql rows and Arrow record batches.
package engine

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/duckdb/duckdb-go/v2"

	"ruddy/internal/ddl"
	"ruddy/internal/domain"
)

// DefaultBatchSize is the number of rows per streamed record batch.
const DefaultBatchSize = 1024

// DuckDB is a pooled DuckDB handle. Every pooled connection shares one
// database instance, so concurrent calls each get their own connection.
type DuckDB struct {
	db        *sql.DB
	defaults  domain.ConnectionDefaults
	batchSize int
	alloc     memory.Allocator
	logger    *slog.Logger
}

// Open opens the database named by defaults (":memory:" when empty) and
// makes defaults.Schema the search schema of every connection, creating it
// when missing.
func Open(ctx context.Context, defaults domain.ConnectionDefaults, logger *slog.Logger) (*DuckDB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	defaults = defaults.Resolve()

	dsn := defaults.Database
	if dsn == domain.MemoryDatabase {
		dsn = ""
	}

	createSchema, err := ddl.CreateSchema("", defaults.Schema)
	if err != nil {
		return nil, domain.ErrInvalidAddress("%v", err)
	}
	setSchema, err := ddl.SetSchema(defaults.Schema)
	if err != nil {
		return nil, domain.ErrInvalidAddress("%v", err)
	}
	connector, err := duckdb.NewConnector(dsn, func(execer driver.ExecerContext) error {
		for _, stmt := range []string{createSchema, setSchema} {
			if _, err := execer.ExecContext(context.Background(), stmt, nil); err != nil {
				return fmt.Errorf("init connection (%s): %w", stmt, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, domain.ErrEngine("open duckdb", err)
	}

	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, domain.ErrEngine("ping duckdb", err)
	}

	logger.Debug("duckdb opened", "database", defaults.Database, "schema", defaults.Schema)
	return &DuckDB{
		db:        db,
		defaults:  defaults,
		batchSize: DefaultBatchSize,
		alloc:     memory.DefaultAllocator,
		logger:    logger,
	}, nil
}

// Defaults returns the database and schema this engine was opened with.
func (e *DuckDB) Defaults() domain.ConnectionDefaults {
	return e.defaults
}

// SetBatchSize changes the number of rows per streamed batch.
func (e *DuckDB) SetBatchSize(n int) {
	if n > 0 {
		e.batchSize = n
	}
}

// SetAllocator replaces the allocator used for outgoing record batches.
func (e *DuckDB) SetAllocator(alloc memory.Allocator) {
	if alloc != nil {
		e.alloc = alloc
	}
}

// DB exposes the underlying pool.
func (e *DuckDB) DB() *sql.DB {
	return e.db
}

// Exec runs a statement that returns no rows.
func (e *DuckDB) Exec(ctx context.Context, stmt string) error {
	e.logger.Debug("exec", "sql", stmt)
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return domain.ErrEngine("exec", err)
	}
	return nil
}

// Close closes the pool. database/sql also closes the connector, which
// releases the database instance.
func (e *DuckDB) Close() error {
	return e.db.Close()
}
