package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"ruddy/internal/client"
)

func newQueryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "query SQL",
		Short: "Run a SQL query on the server and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return a.stream(cmd, func(ctx context.Context, c *client.Client) (*client.RecordReader, error) {
				return c.QueryReader(ctx, query)
			})
		},
	}
}

func newReadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read NAME",
		Short: "Print every row of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.stream(cmd, func(ctx context.Context, c *client.Client) (*client.RecordReader, error) {
				return c.TableReader(ctx, args[0])
			})
		},
	}
}

// stream opens a reader with open and prints its batches as they arrive.
func (a *app) stream(cmd *cobra.Command, open func(context.Context, *client.Client) (*client.RecordReader, error)) error {
	c, err := a.newClient()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	rdr, err := open(cmd.Context(), c)
	if err != nil {
		return err
	}
	defer rdr.Release()

	out := cmd.OutOrStdout()
	rows, err := printBatches(out, a.format(out), rdr)
	if err != nil {
		return err
	}
	a.logger.Debug("printed result", "rows", rows)
	return nil
}
