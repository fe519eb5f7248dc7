package ddl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSchema(t *testing.T) {
	tests := []struct {
		name    string
		catalog string
		schema  string
		want    string
		wantErr string
	}{
		{
			name:    "qualified",
			catalog: "memory",
			schema:  "staging",
			want:    `CREATE SCHEMA IF NOT EXISTS "memory"."staging"`,
		},
		{
			name:   "unqualified",
			schema: "main",
			want:   `CREATE SCHEMA IF NOT EXISTS "main"`,
		},
		{
			name:    "empty_name",
			catalog: "memory",
			wantErr: "invalid schema name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CreateSchema(tt.catalog, tt.schema)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetSchema(t *testing.T) {
	got, err := SetSchema("o'brien")
	require.NoError(t, err)
	assert.Equal(t, `SET schema = 'o''brien'`, got)

	_, err = SetSchema("")
	require.Error(t, err)
}

func TestCreateTable(t *testing.T) {
	tests := []struct {
		name    string
		catalog string
		schema  string
		table   string
		columns []ColumnDef
		want    string
		wantErr string
	}{
		{
			name:    "fully_qualified",
			catalog: "warehouse",
			schema:  "main",
			table:   `odd"name`,
			columns: []ColumnDef{{Name: "a", Type: "INTEGER"}, {Name: "b", Type: "DECIMAL(12,4)"}},
			want:    `CREATE TABLE IF NOT EXISTS "warehouse"."main"."odd""name" ("a" INTEGER, "b" DECIMAL(12,4))`,
		},
		{
			name:    "bare_table",
			table:   "t",
			columns: []ColumnDef{{Name: "x", Type: "VARCHAR"}},
			want:    `CREATE TABLE IF NOT EXISTS "t" ("x" VARCHAR)`,
		},
		{
			name:    "no_columns",
			table:   "t",
			wantErr: "at least one column",
		},
		{
			name:    "empty_table",
			columns: []ColumnDef{{Name: "x", Type: "VARCHAR"}},
			wantErr: "invalid table name",
		},
		{
			name:    "empty_column_name",
			table:   "t",
			columns: []ColumnDef{{Name: "", Type: "VARCHAR"}},
			wantErr: "invalid column name",
		},
		{
			name:    "bad_type",
			table:   "t",
			columns: []ColumnDef{{Name: "x", Type: "INT; DROP TABLE t"}},
			wantErr: "invalid column type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CreateTable(tt.catalog, tt.schema, tt.table, tt.columns)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectAll(t *testing.T) {
	assert.Equal(t, `SELECT * FROM "memory"."main"."t"`, SelectAll("memory", "main", "t"))
	assert.Equal(t, `SELECT * FROM "t"`, SelectAll("", "", "t"))
}
