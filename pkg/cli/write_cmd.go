package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/spf13/cobra"
)

const csvChunkRows = 4096

func newWriteCmd(a *app) *cobra.Command {
	var (
		csvPath   string
		delimiter string
	)
	cmd := &cobra.Command{
		Use:   "write NAME --csv FILE",
		Short: "Append a CSV file to a table, creating the table if needed",
		Long: "Append a CSV file with a header row to a table. Column types are inferred " +
			"from the data. Use --csv - to read standard input.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(delimiter) != 1 {
				return fmt.Errorf("--delimiter must be a single character")
			}

			var in io.Reader = cmd.InOrStdin()
			if csvPath != "-" {
				f, err := os.Open(csvPath) //nolint:gosec // user-supplied input file
				if err != nil {
					return fmt.Errorf("open csv: %w", err)
				}
				defer func() { _ = f.Close() }()
				in = f
			}

			rdr, err := readCSV(in, rune(delimiter[0]))
			if err != nil {
				return err
			}
			defer rdr.Release()

			c, err := a.newClient()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			rows, err := c.Write(cmd.Context(), args[0], rdr)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.format(out) == "json" {
				return printJSON(out, map[string]interface{}{"table": args[0], "rows": rows})
			}
			_, _ = fmt.Fprintf(out, "wrote %d rows to %s\n", rows, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file to load, or - for standard input")
	cmd.Flags().StringVar(&delimiter, "delimiter", ",", "CSV field delimiter")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}

// readCSV decodes the whole input with inferred column types. The inferring
// reader only knows its schema after the first chunk, and the writer needs
// the schema up front, so the chunks are buffered here.
func readCSV(in io.Reader, delimiter rune) (array.RecordReader, error) {
	r := csv.NewInferringReader(in,
		csv.WithHeader(true),
		csv.WithComma(delimiter),
		csv.WithChunk(csvChunkRows),
		csv.WithAllocator(memory.DefaultAllocator),
	)
	defer r.Release()

	var recs []arrow.RecordBatch
	release := func() {
		for _, rec := range recs {
			rec.Release()
		}
	}
	for r.Next() {
		rec := r.Record()
		rec.Retain()
		recs = append(recs, rec)
	}
	if err := r.Err(); err != nil {
		release()
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("csv input has no rows")
	}

	rdr, err := array.NewRecordReader(recs[0].Schema(), recs)
	release()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rdr, nil
}
