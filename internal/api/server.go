// Package api exposes the monitor over HTTP: query and control endpoints,
// snapshot download, a websocket tick stream, Prometheus metrics and the
// dashboard.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riskpulse/riskpulse/internal/alerter"
	"github.com/riskpulse/riskpulse/internal/collector"
	"github.com/riskpulse/riskpulse/internal/config"
	"github.com/riskpulse/riskpulse/internal/metrics"
	"github.com/riskpulse/riskpulse/internal/monitor"
	"github.com/riskpulse/riskpulse/internal/types"
	"github.com/riskpulse/riskpulse/internal/version"
	"github.com/riskpulse/riskpulse/internal/webui"
	"github.com/rs/zerolog"
)

// RulesReloadFunc returns a fresh rule set, typically re-read from disk
type RulesReloadFunc func() ([]types.ThresholdRule, error)

// Server provides HTTP API endpoints and web UI
type Server struct {
	monitor     *monitor.Controller
	logger      zerolog.Logger
	cfg         config.APIConfig
	hub         *Hub
	unsubscribe func()
	startTime   time.Time

	mu        sync.RWMutex
	engine    *alerter.Engine
	metrics   *metrics.Recorder
	logBuffer *webui.LogBuffer
	collector *collector.Collector
	settings  monitor.Settings
	reload    RulesReloadFunc
	version   version.Info
}

// NewServer creates a new API server and subscribes its stream hub to ctrl
func NewServer(ctrl *monitor.Controller, logger zerolog.Logger, cfg config.APIConfig) *Server {
	logger = logger.With().Str("component", "api").Logger()
	s := &Server{
		monitor:   ctrl,
		logger:    logger,
		cfg:       cfg,
		hub:       NewHub(logger),
		startTime: time.Now(),
		settings:  monitor.Settings{Interval: time.Second, MaxDataPoints: 60},
		version:   version.Get(),
	}
	s.unsubscribe = ctrl.Subscribe(s.hub.Broadcast)
	return s
}

// SetAlertEngine exposes firing alerts and resets routing state on reset
func (s *Server) SetAlertEngine(e *alerter.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = e
}

// SetMetrics enables GET /metrics
func (s *Server) SetMetrics(r *metrics.Recorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = r
}

// SetLogBuffer sets the log buffer for the web UI
func (s *Server) SetLogBuffer(lb *webui.LogBuffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logBuffer = lb
}

// SetCollector reports telemetry health in /status and the dashboard
func (s *Server) SetCollector(c *collector.Collector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collector = c
}

// SetDefaultSettings sets the settings used by a start request without a body
func (s *Server) SetDefaultSettings(settings monitor.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

// SetReloadFunc sets the function to call when a rule reload is requested
func (s *Server) SetReloadFunc(fn RulesReloadFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reload = fn
}

// SetVersion overrides the reported build information
func (s *Server) SetVersion(info version.Info) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = info
}

// Routes builds the HTTP handler
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	// the stream is long-lived and stays outside the request timeout
	r.Get("/api/stream", s.hub.ServeWS)

	r.Group(func(r chi.Router) {
		if s.cfg.WriteTimeout > 0 {
			r.Use(middleware.Timeout(s.cfg.WriteTimeout))
		}

		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/", s.handleWebUI)

		r.Route("/api", func(r chi.Router) {
			r.Get("/state", s.handleState)
			r.Get("/series", s.handleSeries)
			r.Get("/alerts", s.handleAlerts)
			r.Get("/rules", s.handleRules)
			r.Patch("/rules/{metric}", s.handleUpdateRule)
			r.Post("/reload", s.handleReload)
			r.Post("/monitor/{action}", s.handleControl)
			r.Get("/export", s.handleExport)
			r.Get("/logs", s.handleLogs)
		})
	})

	return r
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Routes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: 0, // per-route timeout; the stream must outlive it
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("address", s.cfg.Listen).
			Msg("Starting API server with Web UI")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("API server stopped")
	return nil
}

// Close detaches the stream hub from the monitor and drops its clients
func (s *Server) Close() {
	s.unsubscribe()
	s.hub.Close()
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("HTTP request")
		})
	}
}
