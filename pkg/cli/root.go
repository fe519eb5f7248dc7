// Package cli implements the ruddy command line: a Flight server command
// and client commands that list, describe, read and write tables.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"ruddy/internal/client"
	"ruddy/internal/config"
	"ruddy/internal/domain"
	"ruddy/internal/flight"
	"ruddy/internal/locator"
)

var (
	version = "dev"
	commit  = "none"
)

// DefaultLocator is used when neither flag, environment nor profile names one.
const DefaultLocator = "grpc://localhost:1881"

// Execute runs the CLI.
func Execute() int {
	return execute(os.Args[1:], os.Stdout, os.Stderr)
}

func execute(args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			errObj := map[string]interface{}{
				"error": err.Error(),
			}
			if reason := errorReason(err); reason != "" {
				errObj["reason"] = reason
			}
			_ = printJSON(stdout, errObj)
		} else {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func errorReason(err error) string {
	var (
		addrErr   *domain.InvalidAddressError
		ticketErr *domain.InvalidTicketError
		notFound  *domain.NoSuchDatasetError
		engineErr *domain.EngineError
		transport *domain.TransportError
	)
	switch {
	case errors.As(err, &addrErr):
		return flight.ReasonInvalidAddress
	case errors.As(err, &ticketErr):
		return flight.ReasonInvalidTicket
	case errors.As(err, &notFound):
		return flight.ReasonNoSuchDataset
	case errors.As(err, &engineErr):
		return flight.ReasonEngine
	case errors.As(err, &transport):
		return "TRANSPORT"
	}
	return ""
}

// app holds what PersistentPreRunE resolves for the subcommands.
type app struct {
	locator string
	output  string
	profile string

	settings *config.Settings
	logger   *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "ruddy",
		Short:         "DuckDB over Arrow Flight",
		Long:          "Serve a DuckDB database over Arrow Flight, or list, describe, query and load its tables.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.resolve(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.locator, "locator", "l", DefaultLocator, "Flight locator, scheme://host[:port][?database=...&schema=...]")
	rootCmd.PersistentFlags().StringVarP(&a.output, "output", "o", "", "Output format (table, json); defaults to table on a terminal")
	rootCmd.PersistentFlags().StringVarP(&a.profile, "profile", "p", "", "Config profile to use")

	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newTablesCmd(a))
	rootCmd.AddCommand(newDescribeCmd(a))
	rootCmd.AddCommand(newQueryCmd(a))
	rootCmd.AddCommand(newReadCmd(a))
	rootCmd.AddCommand(newWriteCmd(a))
	rootCmd.AddCommand(newVersionCmd(a))
	rootCmd.AddCommand(newCommandsCmd(a))
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

// resolve applies precedence flag > env > profile > default and loads the
// process settings.
func (a *app) resolve(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(config.EnvFile()); err != nil {
		return err
	}
	settings, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	a.settings = settings
	a.logger = config.NewLogger(settings)
	slog.SetDefault(a.logger)
	for _, w := range settings.Warnings {
		a.logger.Warn(w)
	}

	var p Profile
	cfg, err := LoadUserConfig()
	if err == nil {
		if p, err = cfg.ActiveProfile(a.profile); err != nil {
			return err
		}
	} else if a.profile != "" {
		// An explicit profile needs the file.
		return err
	}

	flags := cmd.Flags()
	if !flags.Changed("locator") {
		if v := os.Getenv("RUDDY_LOCATOR"); v != "" {
			a.locator = v
		} else if p.Locator != "" {
			a.locator = p.Locator
		}
	}
	if !flags.Changed("output") {
		if v := os.Getenv("RUDDY_OUTPUT"); v != "" {
			a.output = v
		} else if p.Output != "" {
			a.output = p.Output
		}
	}
	return validateOutputFormat(a.output)
}

func (a *app) parseLocator() (locator.Locator, error) {
	loc, err := locator.Parse(a.locator)
	if err != nil {
		return locator.Locator{}, domain.ErrInvalidAddress("%v", err)
	}
	return loc, nil
}

func (a *app) newClient() (*client.Client, error) {
	loc, err := a.parseLocator()
	if err != nil {
		return nil, err
	}
	return client.New(loc, a.logger)
}

// format returns the effective output format for w.
func (a *app) format(w io.Writer) string {
	if a.output != "" {
		return a.output
	}
	if isTerminal(w) {
		return "table"
	}
	return "json"
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "completion [bash|zsh|fish|powershell]",
		Short:     "Generate shell completion scripts",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
}
