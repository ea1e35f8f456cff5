package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riskpulse/riskpulse/internal/api"
	"github.com/riskpulse/riskpulse/internal/config"
	"github.com/riskpulse/riskpulse/internal/export"
	"github.com/riskpulse/riskpulse/internal/types"
	"github.com/riskpulse/riskpulse/internal/webui"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	serveExportOnExit string
	serveAutostart    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitor with its HTTP API and dashboard",
	Long: `Load the configuration directory and run the monitor until interrupted.

The HTTP API, websocket stream, Prometheus metrics and dashboard are served
on api.listen. When telemetry.yaml enables a gNMI target its values feed the
monitor; otherwise a random walk is sampled.

Examples:
  riskpulse serve
  riskpulse serve --config /etc/riskpulse --autostart
  riskpulse serve --export-on-exit /var/lib/riskpulse/last-session.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, serveOptions{
			ConfigDir:    configDirFlag,
			LogLevel:     logLevelFlag,
			ExportOnExit: serveExportOnExit,
			Autostart:    serveAutostart,
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveExportOnExit, "export-on-exit", "", "Write a final snapshot to this path on shutdown (.json or .yaml)")
	serveCmd.Flags().BoolVar(&serveAutostart, "autostart", false, "Start sampling immediately (also monitor.autostart)")
}

type serveOptions struct {
	ConfigDir    string
	LogLevel     string
	ExportOnExit string
	Autostart    bool
}

func runServe(ctx context.Context, opts serveOptions) error {
	cfg, err := config.LoadConfigDir(opts.ConfigDir)
	if err != nil {
		return err
	}

	logBuffer := webui.NewLogBuffer(cfg.Monitor.Log.BufferSize)
	logger, logFile, err := newLogger(os.Stdout, cfg.Monitor.Log, opts.LogLevel, logBuffer)
	if err != nil {
		return err
	}
	defer logFile.Close()

	logger.Info().
		Str("config_dir", opts.ConfigDir).
		Int("rules", len(cfg.Monitor.Rules)).
		Int("channels", len(cfg.Alerts.Channels)).
		Bool("telemetry", cfg.Telemetry.Enabled).
		Msg("Starting riskpulse")

	a, err := newApp(cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	a.monitor.Subscribe(a.engine.HandleTick)

	server := api.NewServer(a.monitor, logger, cfg.Monitor.API)
	server.SetAlertEngine(a.engine)
	server.SetMetrics(a.metrics)
	server.SetLogBuffer(logBuffer)
	server.SetDefaultSettings(cfg.Settings())
	if a.collector != nil {
		server.SetCollector(a.collector)
	}
	server.SetReloadFunc(func() ([]types.ThresholdRule, error) {
		logger.Info().Str("config_dir", opts.ConfigDir).Msg("Reloading rules")
		return config.LoadRules(opts.ConfigDir)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return a.engine.Run(gctx) })
	if a.collector != nil {
		g.Go(func() error { return a.collector.Run(gctx) })
	}

	if opts.Autostart || cfg.Monitor.Monitor.Autostart {
		if err := a.monitor.Start(cfg.Settings()); err != nil {
			logger.Error().Err(err).Msg("Failed to start monitor")
		}
	}

	logger.Info().Str("address", cfg.Monitor.API.Listen).Msg("riskpulse running, press Ctrl+C to stop")

	err = g.Wait()
	logger.Info().Msg("Shutting down...")
	a.monitor.Stop()

	if opts.ExportOnExit != "" {
		if exportErr := exportOnExit(opts.ExportOnExit, a); exportErr != nil {
			logger.Error().Err(exportErr).Str("path", opts.ExportOnExit).Msg("Failed to write final snapshot")
		} else {
			logger.Info().Str("path", opts.ExportOnExit).Msg("Final snapshot written")
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("riskpulse stopped: %w", err)
	}
	logger.Info().Msg("riskpulse stopped")
	return nil
}

func exportOnExit(path string, a *app) error {
	select {
	case err := <-export.SaveAsync(path, a.monitor.ExportSnapshot()):
		return err
	case <-time.After(10 * time.Second):
		return fmt.Errorf("timed out writing %s", path)
	}
}
