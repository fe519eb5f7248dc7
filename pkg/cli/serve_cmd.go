package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ruddy/internal/engine"
	"ruddy/internal/flight"
	"ruddy/internal/metrics"
	"ruddy/internal/middleware"
)

func newServeCmd(a *app) *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "serve [LOCATOR]",
		Short: "Serve a DuckDB database over Arrow Flight",
		Long: "Serve a DuckDB database over Arrow Flight on the locator's host and port. " +
			"The locator's database parameter names the database file (in-memory when absent) " +
			"and its schema parameter the default schema.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				a.locator = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()
			return a.serve(ctx, batchSize, nil)
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", engine.DefaultBatchSize, "Rows per streamed record batch")
	return cmd
}

// serve runs the Flight server, and the ops HTTP listener when configured,
// until ctx is done. ready, when set, receives the server once it listens.
func (a *app) serve(ctx context.Context, batchSize int, ready func(*flight.Server)) error {
	loc, err := a.parseLocator()
	if err != nil {
		return err
	}

	eng, err := engine.Open(ctx, loc.Defaults(), a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			a.logger.Error("close engine", "error", err)
		}
	}()
	eng.SetBatchSize(batchSize)

	m := metrics.New()
	srv := flight.NewServer(loc, eng, a.logger, flight.Options{
		Metrics: m,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: a.settings.RateLimitRPS,
			Burst:             a.settings.RateLimitBurst,
		},
	})
	if err := srv.Start(); err != nil {
		return err
	}
	a.logger.Info("serving", "location", srv.Location(), "database", eng.Defaults().Database, "schema", eng.Defaults().Schema)

	g, gctx := errgroup.WithContext(ctx)

	var opsSrv *http.Server
	if a.settings.MetricsAddr != "" {
		ln, err := net.Listen("tcp", a.settings.MetricsAddr)
		if err != nil {
			_ = srv.Shutdown(context.Background())
			return fmt.Errorf("listen metrics: %w", err)
		}
		opsSrv = &http.Server{
			Handler:           m.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		a.logger.Info("ops listener started", "addr", ln.Addr().String())
		g.Go(func() error {
			if err := opsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	if ready != nil {
		ready(srv)
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.settings.ShutdownTimeout)
		defer cancel()

		var errs []error
		if opsSrv != nil {
			errs = append(errs, opsSrv.Shutdown(shutdownCtx))
		}
		errs = append(errs, srv.Shutdown(shutdownCtx))
		return errors.Join(errs...)
	})

	return g.Wait()
}
