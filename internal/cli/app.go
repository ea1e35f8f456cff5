package cli

import (
	"fmt"
	"math/rand"

	"github.com/riskpulse/riskpulse/internal/alerter"
	"github.com/riskpulse/riskpulse/internal/collector"
	"github.com/riskpulse/riskpulse/internal/config"
	"github.com/riskpulse/riskpulse/internal/metrics"
	"github.com/riskpulse/riskpulse/internal/monitor"
	"github.com/riskpulse/riskpulse/internal/notifier"
	"github.com/riskpulse/riskpulse/internal/sampler"
	"github.com/rs/zerolog"
)

// app holds the wired components shared by serve and simulate
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	metrics   *metrics.Recorder
	monitor   *monitor.Controller
	notifier  *notifier.Notifier
	engine    *alerter.Engine
	collector *collector.Collector // nil unless telemetry is enabled
}

type appOptions struct {
	Scheduler monitor.Scheduler
	Clock     monitor.Clock
	// Synthetic forces the random-walk sampler even when telemetry is enabled
	Synthetic bool
}

func newApp(cfg *config.Config, logger zerolog.Logger, opts appOptions) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewRecorder(),
	}

	src, err := a.buildSampler(opts.Synthetic)
	if err != nil {
		return nil, err
	}

	a.monitor = monitor.New(monitor.Options{
		Sampler:        src,
		Scheduler:      opts.Scheduler,
		Clock:          opts.Clock,
		Logger:         logger,
		Rules:          cfg.Monitor.Rules,
		AlertRetention: cfg.Monitor.Monitor.AlertRetention,
		Recorder:       a.metrics,
	})

	a.notifier, err = notifier.FromConfig(cfg.Alerts, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build notifier: %w", err)
	}
	a.notifier.SetRecorder(a.metrics)

	a.engine = alerter.NewEngine(cfg, a.notifier, logger)
	a.engine.SetRecorder(a.metrics)

	return a, nil
}

func (a *app) buildSampler(synthetic bool) (sampler.Sampler, error) {
	profiles := a.cfg.Monitor.Metrics
	if !a.cfg.Telemetry.Enabled || synthetic {
		var rng *rand.Rand
		if seed := a.cfg.Monitor.Monitor.Seed; seed != 0 {
			rng = rand.New(rand.NewSource(seed))
		}
		return sampler.NewRandomWalk(profiles, rng), nil
	}

	cache := collector.NewCache()
	col, err := collector.NewCollector(a.cfg.Telemetry, cache, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry collector: %w", err)
	}
	a.collector = col
	return collector.NewSampler(cache, profiles), nil
}

// close releases notification channels
func (a *app) close() {
	if err := a.notifier.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to close notification channels")
	}
}
