package domain

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Fallbacks used when neither the locator nor the caller supplies a database or schema.
const (
	MemoryDatabase  = ":memory:"
	MemoryCatalog   = "memory"
	DefaultDatabase = MemoryDatabase
	DefaultSchema   = "main"
)

// ConnectionDefaults fill the database and schema of a table address when
// the address leaves them out.
type ConnectionDefaults struct {
	Database string
	Schema   string
}

// Resolve returns a copy with empty fields replaced by the package fallbacks.
func (d ConnectionDefaults) Resolve() ConnectionDefaults {
	if d.Database == "" {
		d.Database = DefaultDatabase
	}
	if d.Schema == "" {
		d.Schema = DefaultSchema
	}
	return d
}

// Overlay returns d with every non-empty field of o taking precedence.
func (d ConnectionDefaults) Overlay(o ConnectionDefaults) ConnectionDefaults {
	if o.Database != "" {
		d.Database = o.Database
	}
	if o.Schema != "" {
		d.Schema = o.Schema
	}
	return d
}

// TableIdentity addresses one table in the engine.
type TableIdentity struct {
	Name        string
	Database    string
	SchemaName  string
	CatalogName string
}

// NewTableIdentity builds a TableIdentity. When catalogName is empty it is
// derived from the database (or DefaultDatabase when that is empty too).
func NewTableIdentity(name, database, schemaName, catalogName string) (TableIdentity, error) {
	if name == "" {
		return TableIdentity{}, ErrInvalidAddress("table name is required")
	}
	t := TableIdentity{
		Name:        name,
		Database:    database,
		SchemaName:  schemaName,
		CatalogName: catalogName,
	}
	if t.CatalogName == "" {
		t.CatalogName = CatalogLabel(t.DatabaseOrDefault())
	}
	return t, nil
}

// CatalogLabel returns the engine catalog name a database attaches as:
// "memory" for the in-memory database, otherwise the first non-empty
// dot-delimited segment of the file's basename.
func CatalogLabel(database string) string {
	if database == MemoryDatabase {
		return MemoryCatalog
	}
	for _, seg := range strings.Split(filepath.Base(database), ".") {
		if seg != "" {
			return seg
		}
	}
	return ""
}

// ResolveFromPath turns up to three path segments into a TableIdentity.
// Segments are right-aligned against (database, schema, name); missing or
// empty database and schema take the defaults. Byte segments must be UTF-8.
func ResolveFromPath[S ~string | ~[]byte](segments []S, defaults ConnectionDefaults) (TableIdentity, error) {
	if len(segments) > 3 {
		return TableIdentity{}, ErrInvalidAddress("table path has %d segments, at most 3 allowed", len(segments))
	}

	var slots [3]string
	offset := 3 - len(segments)
	for i, seg := range segments {
		s := string(seg)
		if !utf8.ValidString(s) {
			return TableIdentity{}, ErrInvalidAddress("table path segment %d is not valid UTF-8", i)
		}
		slots[offset+i] = s
	}

	database, schema, name := slots[0], slots[1], slots[2]
	if name == "" {
		return TableIdentity{}, ErrInvalidAddress("expected table name")
	}
	if database == "" {
		database = defaults.Database
	}
	if schema == "" {
		schema = defaults.Schema
	}
	return NewTableIdentity(name, database, schema, "")
}

// QualifiedName returns catalog.schema.name when both catalog and schema are
// known, otherwise just the table name.
func (t TableIdentity) QualifiedName() string {
	if t.CatalogName != "" && t.SchemaName != "" {
		return t.CatalogName + "." + t.SchemaName + "." + t.Name
	}
	return t.Name
}

// DatabaseOrDefault returns the database or DefaultDatabase.
func (t TableIdentity) DatabaseOrDefault() string {
	if t.Database == "" {
		return DefaultDatabase
	}
	return t.Database
}

// SchemaOrDefault returns the schema or DefaultSchema.
func (t TableIdentity) SchemaOrDefault() string {
	if t.SchemaName == "" {
		return DefaultSchema
	}
	return t.SchemaName
}

// Resolved returns a copy with an empty database or schema replaced by its
// default. The catalog name is kept.
func (t TableIdentity) Resolved() TableIdentity {
	t.Database = t.DatabaseOrDefault()
	t.SchemaName = t.SchemaOrDefault()
	if t.CatalogName == "" {
		t.CatalogName = CatalogLabel(t.Database)
	}
	return t
}

// Path returns the three-segment address of the table.
func (t TableIdentity) Path() []string {
	return []string{t.DatabaseOrDefault(), t.SchemaOrDefault(), t.Name}
}

func (t TableIdentity) String() string {
	return t.QualifiedName()
}
