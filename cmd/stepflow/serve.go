package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/petrijr/stepflow"
	"github.com/petrijr/stepflow/pkg/metrics"
	"github.com/petrijr/stepflow/pkg/monitor"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the demo pipeline periodically and serve its state over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, closeStore, err := openStore(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			prom, err := metrics.NewPrometheusObserver(reg)
			if err != nil {
				return fmt.Errorf("register metrics: %w", err)
			}

			observers := []stepflow.Observer{monitor.NewMirror(store, a.logger), prom}

			srv := &http.Server{
				Addr: a.cfg.ListenAddr,
				Handler: monitor.NewHandler(store,
					monitor.WithHandlerLogger(a.logger),
					monitor.WithMetrics(reg),
				),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("stepflow: serving", "listen_addr", srv.Addr, "store", a.cfg.Store)
				errCh <- srv.ListenAndServe()
			}()
			go runPeriodically(ctx, a.logger, interval, observers)

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			a.logger.Info("stepflow: shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&a.cfg.ListenAddr, "listen", a.cfg.ListenAddr, "HTTP listen address")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "time between pipeline runs")
	return cmd
}

// runPeriodically runs a fresh demo workflow every interval until ctx is
// done.
func runPeriodically(ctx context.Context, logger *slog.Logger, interval time.Duration, observers []stepflow.Observer) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 1; ; n++ {
		orderID := fmt.Sprintf("A-%04d", n)
		if err := runDemoOnce(ctx, logger, orderID, observers); err != nil {
			logger.Warn("demo run failed", "order_id", orderID, "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runDemoOnce(ctx context.Context, logger *slog.Logger, orderID string, observers []stepflow.Observer) error {
	wf := newDemoWorkflow(demoOptions{logger: logger, observers: observers})
	defer wf.Close()
	return wf.Run(ctx, demoSeed(orderID))
}
