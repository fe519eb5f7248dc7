package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"ruddy/internal/client"
)

type columnView struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

type datasetView struct {
	Database string       `json:"database"`
	Catalog  string       `json:"catalog"`
	Schema   string       `json:"schema"`
	Name     string       `json:"name"`
	Columns  []columnView `json:"columns"`
}

func viewOf(ds client.Dataset) datasetView {
	v := datasetView{
		Database: ds.Table.Database,
		Catalog:  ds.Table.CatalogName,
		Schema:   ds.Table.SchemaName,
		Name:     ds.Table.Name,
		Columns:  []columnView{},
	}
	if ds.Schema != nil {
		for _, f := range ds.Schema.Fields() {
			v.Columns = append(v.Columns, columnView{Name: f.Name, Type: f.Type.String(), Nullable: f.Nullable})
		}
	}
	return v
}

func newTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables the server exposes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.newClient()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			views := []datasetView{}
			for ds, err := range c.ListTables(cmd.Context()) {
				if err != nil {
					return err
				}
				views = append(views, viewOf(ds))
			}

			out := cmd.OutOrStdout()
			if a.format(out) == "json" {
				return printJSON(out, views)
			}
			tw := newTabWriter(out)
			printRow(tw, "CATALOG", "SCHEMA", "NAME", "COLUMNS")
			for _, v := range views {
				printRow(tw, v.Catalog, v.Schema, v.Name, strconv.Itoa(len(v.Columns)))
			}
			return tw.Flush()
		},
	}
}

func newDescribeCmd(a *app) *cobra.Command {
	var sqlMode bool
	cmd := &cobra.Command{
		Use:   "describe NAME",
		Short: "Show the schema of a table, or of a query with --sql",
		Long: "Show the schema of a table. NAME is table, schema.table or database.schema.table " +
			"and is completed with the locator's database and schema.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.newClient()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			var ds client.Dataset
			if sqlMode {
				ds, err = c.DescribeCommand(cmd.Context(), args[0])
			} else {
				ds, err = c.DescribePath(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			return printDataset(cmd.OutOrStdout(), a.format(cmd.OutOrStdout()), viewOf(ds))
		},
	}
	cmd.Flags().BoolVar(&sqlMode, "sql", false, "Treat the argument as a SQL query")
	return cmd
}

func printDataset(out io.Writer, format string, v datasetView) error {
	if format == "json" {
		return printJSON(out, v)
	}
	if v.Name != "" {
		_, _ = fmt.Fprintf(out, "%s.%s.%s\n", v.Catalog, v.Schema, v.Name)
	}
	tw := newTabWriter(out)
	printRow(tw, "COLUMN", "TYPE", "NULLABLE")
	for _, col := range v.Columns {
		printRow(tw, col.Name, col.Type, strconv.FormatBool(col.Nullable))
	}
	return tw.Flush()
}
