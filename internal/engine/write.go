package engine

import (
	"context"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/duckdb/duckdb-go/v2"

	"ruddy/internal/ddl"
	"ruddy/internal/domain"
)

// DuckDBType maps an Arrow type to the column type used when creating a
// table. Types without a native counterpart are stored as VARCHAR.
func DuckDBType(t arrow.DataType) string {
	switch t.ID() {
	case arrow.BOOL:
		return "BOOLEAN"
	case arrow.INT8:
		return "TINYINT"
	case arrow.INT16:
		return "SMALLINT"
	case arrow.INT32:
		return "INTEGER"
	case arrow.INT64:
		return "BIGINT"
	case arrow.UINT8:
		return "UTINYINT"
	case arrow.UINT16:
		return "USMALLINT"
	case arrow.UINT32:
		return "UINTEGER"
	case arrow.UINT64:
		return "UBIGINT"
	case arrow.FLOAT32:
		return "FLOAT"
	case arrow.FLOAT64:
		return "DOUBLE"
	case arrow.DECIMAL128:
		d := t.(*arrow.Decimal128Type)
		return fmt.Sprintf("DECIMAL(%d,%d)", d.Precision, d.Scale)
	case arrow.DATE32, arrow.DATE64:
		return "DATE"
	case arrow.TIME32, arrow.TIME64:
		return "TIME"
	case arrow.TIMESTAMP:
		return "TIMESTAMP"
	case arrow.BINARY, arrow.LARGE_BINARY:
		return "BLOB"
	default:
		return "VARCHAR"
	}
}

// CreateTableSQL renders an idempotent CREATE TABLE for the schema.
func CreateTableSQL(table domain.TableIdentity, schema *arrow.Schema) (string, error) {
	cols := make([]ddl.ColumnDef, schema.NumFields())
	for i, f := range schema.Fields() {
		cols[i] = ddl.ColumnDef{Name: f.Name, Type: DuckDBType(f.Type)}
	}
	stmt, err := ddl.CreateTable(table.CatalogName, table.SchemaName, table.Name, cols)
	if err != nil {
		return "", domain.ErrInvalidAddress("cannot create %s: %v", table.QualifiedName(), err)
	}
	return stmt, nil
}

// CreateTable creates the table's schema and the table itself when they do
// not exist yet. An existing table is left untouched.
func (e *DuckDB) CreateTable(ctx context.Context, table domain.TableIdentity, schema *arrow.Schema) error {
	createSchema, err := ddl.CreateSchema(table.CatalogName, table.SchemaOrDefault())
	if err != nil {
		return domain.ErrInvalidAddress("cannot create %s: %v", table.QualifiedName(), err)
	}
	createTable, err := CreateTableSQL(table, schema)
	if err != nil {
		return err
	}
	for _, stmt := range []string{createSchema, createTable} {
		if err := e.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append inserts every row of the batch into the table through a DuckDB
// appender and returns the number of rows written. Rows already flushed by
// an earlier call are not rolled back when a later one fails.
func (e *DuckDB) Append(ctx context.Context, table domain.TableIdentity, batch arrow.RecordBatch) (int64, error) {
	if batch.NumRows() == 0 {
		return 0, nil
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return 0, domain.ErrEngine("acquire connection", err)
	}
	defer func() { _ = conn.Close() }()

	err = conn.Raw(func(raw any) error {
		driverConn, ok := raw.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected raw conn type %T", raw)
		}

		appender, err := duckdb.NewAppender(driverConn, table.CatalogName, table.SchemaOrDefault(), table.Name)
		if err != nil {
			return fmt.Errorf("create appender for %s: %w", table.QualifiedName(), err)
		}

		row := make([]driver.Value, batch.NumCols())
		for i := 0; i < int(batch.NumRows()); i++ {
			for j, col := range batch.Columns() {
				v, err := arrowValue(col, i)
				if err != nil {
					_ = appender.Close()
					return fmt.Errorf("row %d column %q: %w", i, batch.ColumnName(j), err)
				}
				row[j] = v
			}
			if err := appender.AppendRow(row...); err != nil {
				_ = appender.Close()
				return fmt.Errorf("append row %d: %w", i, err)
			}
		}

		// Close flushes.
		if err := appender.Close(); err != nil {
			return fmt.Errorf("flush appender: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, domain.ErrEngine("append", err)
	}

	e.logger.Debug("appended batch", "table", table.QualifiedName(), "rows", batch.NumRows())
	return batch.NumRows(), nil
}

// arrowValue converts element i of arr to the Go value the appender expects
// for the column type chosen by DuckDBType.
func arrowValue(arr arrow.Array, i int) (driver.Value, error) {
	if arr.IsNull(i) {
		return nil, nil
	}

	switch a := arr.(type) {
	case *array.Boolean:
		return a.Value(i), nil
	case *array.Int8:
		return a.Value(i), nil
	case *array.Int16:
		return a.Value(i), nil
	case *array.Int32:
		return a.Value(i), nil
	case *array.Int64:
		return a.Value(i), nil
	case *array.Uint8:
		return a.Value(i), nil
	case *array.Uint16:
		return a.Value(i), nil
	case *array.Uint32:
		return a.Value(i), nil
	case *array.Uint64:
		return a.Value(i), nil
	case *array.Float32:
		return a.Value(i), nil
	case *array.Float64:
		return a.Value(i), nil
	case *array.Decimal128:
		typ := a.DataType().(*arrow.Decimal128Type)
		return duckdb.Decimal{
			Width: uint8(typ.Precision),
			Scale: uint8(typ.Scale),
			Value: a.Value(i).BigInt(),
		}, nil
	case *array.Date32:
		return a.Value(i).ToTime(), nil
	case *array.Date64:
		return a.Value(i).ToTime(), nil
	case *array.Time32:
		unit := a.DataType().(*arrow.Time32Type).Unit
		return a.Value(i).ToTime(unit), nil
	case *array.Time64:
		unit := a.DataType().(*arrow.Time64Type).Unit
		return a.Value(i).ToTime(unit), nil
	case *array.Timestamp:
		typ := a.DataType().(*arrow.TimestampType)
		return a.Value(i).ToTime(typ.Unit).In(time.UTC), nil
	case *array.String:
		return a.Value(i), nil
	case *array.LargeString:
		return a.Value(i), nil
	case *array.Binary:
		return append([]byte(nil), a.Value(i)...), nil
	case *array.LargeBinary:
		return append([]byte(nil), a.Value(i)...), nil
	default:
		return a.ValueStr(i), nil
	}
}
