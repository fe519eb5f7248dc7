// Package catalog groups the engine's flat column metadata into one
// listing per table.
package catalog

import (
	"iter"

	"github.com/apache/arrow-go/v18/arrow"

	"ruddy/internal/domain"
)

// Row is one (table, column) pair of catalog metadata. Rows of the same
// table share a GroupKey and arrive contiguously, ordered by column position.
type Row struct {
	GroupKey int64
	Catalog  string
	Schema   string
	Table    string
	Column   string
	TypeName string
}

// Column is a named, typed column of a listed table.
type Column struct {
	Name string
	Type arrow.DataType
}

// Listing describes one table and its ordered columns.
type Listing struct {
	Table   domain.TableIdentity
	Columns []Column
}

// Schema returns the listing's columns as a nullable Arrow schema.
func (l Listing) Schema() *arrow.Schema {
	fields := make([]arrow.Field, len(l.Columns))
	for i, c := range l.Columns {
		fields[i] = arrow.Field{Name: c.Name, Type: c.Type, Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// Filter narrows a listing to matching labels. Empty fields match anything.
type Filter struct {
	Catalog string
	Schema  string
	Table   string
}

// Match reports whether the labels pass the filter.
func (f Filter) Match(catalog, schema, table string) bool {
	return (f.Catalog == "" || f.Catalog == catalog) &&
		(f.Schema == "" || f.Schema == schema) &&
		(f.Table == "" || f.Table == table)
}

// group accumulates the columns of the table currently being scanned.
type group struct {
	open    bool
	key     int64
	first   Row
	columns []Column
}

func (g *group) start(r Row) {
	g.open = true
	g.key = r.GroupKey
	g.first = r
	g.columns = []Column{{Name: r.Column, Type: ArrowType(r.TypeName)}}
}

func (g *group) add(r Row) {
	g.columns = append(g.columns, Column{Name: r.Column, Type: ArrowType(r.TypeName)})
}

func (g *group) listing(database string) (Listing, error) {
	if g.first.Catalog != "" && g.first.Catalog != domain.CatalogLabel(database) {
		// Attached under another name; the catalog is its address.
		database = g.first.Catalog
	}
	tbl, err := domain.NewTableIdentity(g.first.Table, database, g.first.Schema, g.first.Catalog)
	if err != nil {
		return Listing{}, err
	}
	return Listing{Table: tbl, Columns: g.columns}, nil
}

// List folds rows into listings in a single pass, emitting a listing each
// time the group key changes and once more at the end. database is recorded
// on every TableIdentity of its own catalog; tables of other catalogs carry
// their catalog name instead. When no row passes the filter the sequence
// yields a domain.NoSuchDatasetError.
func List(rows iter.Seq2[Row, error], database string, filter Filter) iter.Seq2[Listing, error] {
	return func(yield func(Listing, error) bool) {
		var (
			g       group
			emitted int
		)
		flush := func() bool {
			l, err := g.listing(database)
			if err != nil {
				yield(Listing{}, err)
				return false
			}
			emitted++
			return yield(l, nil)
		}

		for r, err := range rows {
			if err != nil {
				yield(Listing{}, err)
				return
			}
			if !filter.Match(r.Catalog, r.Schema, r.Table) {
				continue
			}
			switch {
			case !g.open:
				g.start(r)
			case r.GroupKey != g.key:
				if !flush() {
					return
				}
				g.start(r)
			default:
				g.add(r)
			}
		}

		if g.open {
			if !flush() {
				return
			}
		}
		if emitted == 0 {
			yield(Listing{}, domain.ErrNoSuchDataset("could not find any dataset"))
		}
	}
}
