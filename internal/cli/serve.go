package cli

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/orchid/internal/config"
	"github.com/harun/orchid/pkg/gateway"
	"github.com/harun/orchid/pkg/history"
	"github.com/harun/orchid/pkg/orchestrator"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the websocket gateway server",
	Long: `Run the websocket gateway server. Clients connect over websocket,
start turns, and answer clarification and plan-review prompts on the same
connection. Prometheus metrics are served on a separate port.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime(true)
	if err != nil {
		return err
	}
	defer rt.close()

	zl := rt.logger.GetZerolog()

	if rt.cfg.Gateway.SharedSecret == "" {
		return fmt.Errorf("gateway.shared_secret must be set to serve")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := gateway.NewServer(gateway.Config{
		Host:         rt.cfg.Gateway.Host,
		Port:         rt.cfg.Gateway.Port,
		SharedSecret: rt.cfg.Gateway.SharedSecret,
		Orchestrator: rt.orch,
		Logger:       zl,
	})
	if err != nil {
		return err
	}

	// Nightly pruning of archived sessions.
	cleanup, err := history.NewCleanup(history.CleanupConfig{
		Store:     rt.store,
		Retention: time.Duration(rt.cfg.History.RetentionDays) * 24 * time.Hour,
		Schedule:  rt.cfg.History.CronSchedule,
		Logger:    zl,
	})
	if err != nil {
		return err
	}
	if err := cleanup.Start(); err != nil {
		return err
	}
	defer cleanup.Stop()

	// Apply log level and mode changes without a restart. Mode reaches each
	// session at its next turn boundary; sessions mid-turn keep their mode.
	watcher, err := config.NewWatcher(config.WatcherConfig{
		Loader: config.NewLoader(cfgFile),
		OnReload: func(cfg *config.Config) {
			if err := rt.logger.SetLevel(cfg.Logging.Level); err != nil {
				zl.Warn().Err(err).Msg("Reloaded log level not applied")
			}
			if err := rt.orch.SetDefaultMode(orchestrator.Mode(cfg.Orchestrator.Mode)); err != nil {
				zl.Warn().Err(err).Str("mode", cfg.Orchestrator.Mode).Msg("Reloaded mode not applied")
				return
			}
			zl.Info().
				Str("mode", cfg.Orchestrator.Mode).
				Str("log_level", cfg.Logging.Level).
				Msg("Config reloaded")
		},
		Logger: zl,
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		zl.Warn().Err(err).Msg("Config watcher failed to start")
	} else {
		defer watcher.Stop()
	}

	metricsServer := &http.Server{
		Addr:    net.JoinHostPort(rt.cfg.Gateway.Host, fmt.Sprintf("%d", rt.cfg.Gateway.MetricsPort)),
		Handler: rt.metrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		zl.Info().Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	metricsServer.Shutdown(shutdownCtx)
	return server.Shutdown(shutdownCtx)
}
