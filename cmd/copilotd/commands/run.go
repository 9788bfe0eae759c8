package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the automation cycle on a ticker until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		coord, settings, registry, err := buildCoordinator()
		if err != nil {
			return err
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("metrics_server_failed")
			}
		}()

		period := time.Duration(settings.CyclePeriodSeconds) * time.Second
		if period <= 0 {
			period = 5 * time.Minute
		}
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info().Dur("period", period).Msg("automation_loop_started")
		runOnce(ctx, coord)
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("automation_loop_stopping")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = server.Shutdown(shutdownCtx)
				return nil
			case <-ticker.C:
				runOnce(ctx, coord)
			}
		}
	},
}

func runOnce(ctx context.Context, coord interface {
	RunCycle(context.Context) error
}) {
	cycleCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := coord.RunCycle(cycleCtx); err != nil {
		log.Error().Err(err).Msg("automation_cycle_failed")
	}
}
