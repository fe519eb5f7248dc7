package engine

import (
	"context"
	"iter"
	"strings"

	"ruddy/internal/catalog"
	"ruddy/internal/ddl"
	"ruddy/internal/domain"
)

const catalogRowsQuery = `SELECT
	dense_rank() OVER (ORDER BY table_catalog, table_schema, table_name) AS table_id,
	table_catalog, table_schema, table_name, column_name, data_type
FROM information_schema.columns`

// buildCatalogQuery pushes the filter into the information schema scan.
func buildCatalogQuery(filter catalog.Filter) (string, []interface{}) {
	var (
		conds = []string{"table_catalog NOT IN ('system', 'temp')"}
		args  []interface{}
	)
	if filter.Catalog != "" {
		conds = append(conds, "table_catalog = ?")
		args = append(args, filter.Catalog)
	}
	if filter.Schema != "" {
		conds = append(conds, "table_schema = ?")
		args = append(args, filter.Schema)
	}
	if filter.Table != "" {
		conds = append(conds, "table_name = ?")
		args = append(args, filter.Table)
	}

	query := catalogRowsQuery + "\nWHERE " + strings.Join(conds, " AND ")
	query += "\nORDER BY table_catalog, table_schema, table_name, ordinal_position"
	return query, args
}

// CatalogRows streams one row per (table, column), grouped and ordered as
// catalog.List expects. The query runs anew on every iteration.
func (e *DuckDB) CatalogRows(ctx context.Context, filter catalog.Filter) iter.Seq2[catalog.Row, error] {
	return func(yield func(catalog.Row, error) bool) {
		query, args := buildCatalogQuery(filter)
		e.logger.Debug("catalog scan", "sql", query, "args", args)

		rows, err := e.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(catalog.Row{}, domain.ErrEngine("catalog scan", err))
			return
		}
		defer func() {
			if err := rows.Close(); err != nil {
				e.logger.Error("close catalog rows", "error", err)
			}
		}()

		for rows.Next() {
			var r catalog.Row
			if err := rows.Scan(&r.GroupKey, &r.Catalog, &r.Schema, &r.Table, &r.Column, &r.TypeName); err != nil {
				yield(catalog.Row{}, domain.ErrEngine("scan catalog row", err))
				return
			}
			if !yield(r, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(catalog.Row{}, domain.ErrEngine("catalog scan", err))
		}
	}
}

// SelectAll returns the full-table select used for table fetches.
func SelectAll(t domain.TableIdentity) string {
	return ddl.SelectAll(t.CatalogName, t.SchemaName, t.Name)
}
