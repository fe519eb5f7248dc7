package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"golang.org/x/term"
)

func validateOutputFormat(output string) error {
	if output != "" && output != "table" && output != "json" {
		return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printRow(tw io.Writer, cells ...string) {
	_, _ = fmt.Fprintln(tw, strings.Join(cells, "\t"))
}

// batchStream is the part of a record reader the printers need.
type batchStream interface {
	Schema() *arrow.Schema
	Next() bool
	Record() arrow.RecordBatch
	Err() error
}

// printBatches writes every batch of rdr as JSON lines or as one aligned
// table and returns the number of rows printed.
func printBatches(w io.Writer, format string, rdr batchStream) (int64, error) {
	var rows int64
	if format == "json" {
		for rdr.Next() {
			rec := rdr.Record()
			if err := array.RecordToJSON(rec, w); err != nil {
				return rows, fmt.Errorf("encode batch: %w", err)
			}
			rows += rec.NumRows()
		}
		return rows, rdr.Err()
	}

	tw := newTabWriter(w)
	header := make([]string, rdr.Schema().NumFields())
	for i, f := range rdr.Schema().Fields() {
		header[i] = strings.ToUpper(f.Name)
	}
	printRow(tw, header...)

	cells := make([]string, len(header))
	for rdr.Next() {
		rec := rdr.Record()
		for i := 0; i < int(rec.NumRows()); i++ {
			for j, col := range rec.Columns() {
				cells[j] = cellString(col, i)
			}
			printRow(tw, cells...)
		}
		rows += rec.NumRows()
	}
	if err := rdr.Err(); err != nil {
		_ = tw.Flush()
		return rows, err
	}
	return rows, tw.Flush()
}

func cellString(col arrow.Array, i int) string {
	if col.IsNull(i) {
		return "NULL"
	}
	return col.ValueStr(i)
}
