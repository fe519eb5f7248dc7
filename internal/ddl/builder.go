// Package ddl builds the DuckDB statements the engine issues for schemas,
// tables and table scans.
package ddl

import (
	"fmt"
	"strings"
)

// ColumnDef describes a column for CREATE TABLE.
type ColumnDef struct {
	Name string
	Type string
}

// CreateSchema returns CREATE SCHEMA IF NOT EXISTS [<catalog>.]"<name>".
// An empty catalog leaves the schema unqualified.
func CreateSchema(catalog, name string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid schema name: %w", err)
	}
	return "CREATE SCHEMA IF NOT EXISTS " + QualifiedName(catalog, name), nil
}

// SetSchema returns the statement that makes name the session's default schema.
func SetSchema(name string) (string, error) {
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid schema name: %w", err)
	}
	return "SET schema = " + QuoteLiteral(name), nil
}

// CreateTable returns
// CREATE TABLE IF NOT EXISTS [<catalog>.][<schema>.]"<table>" ("<col1>" TYPE1, ...).
// Empty catalog and schema parts are left out.
func CreateTable(catalog, schema, table string, columns []ColumnDef) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("at least one column is required")
	}

	colDefs := make([]string, 0, len(columns))
	for _, c := range columns {
		if err := ValidateIdentifier(c.Name); err != nil {
			return "", fmt.Errorf("invalid column name %q: %w", c.Name, err)
		}
		if err := ValidateColumnType(c.Type); err != nil {
			return "", fmt.Errorf("invalid column type for %q: %w", c.Name, err)
		}
		colDefs = append(colDefs, QuoteIdentifier(c.Name)+" "+c.Type)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		QualifiedName(catalog, schema, table),
		strings.Join(colDefs, ", "),
	), nil
}

// SelectAll returns SELECT * FROM [<catalog>.][<schema>.]"<table>".
func SelectAll(catalog, schema, table string) string {
	return "SELECT * FROM " + QualifiedName(catalog, schema, table)
}
