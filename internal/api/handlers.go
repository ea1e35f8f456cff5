package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/riskpulse/riskpulse/internal/alerter"
	"github.com/riskpulse/riskpulse/internal/collector"
	"github.com/riskpulse/riskpulse/internal/export"
	"github.com/riskpulse/riskpulse/internal/monitor"
	"github.com/riskpulse/riskpulse/internal/types"
	"github.com/riskpulse/riskpulse/internal/version"
	"github.com/riskpulse/riskpulse/internal/webui"
)

const (
	defaultLogLimit = 200
	maxBodyBytes    = 1 << 20
)

type errorResponse struct {
	Ok      bool   `json:"ok"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// startRequest overrides the default session settings; omitted fields keep them
type startRequest struct {
	IntervalMs    *int64 `json:"interval_ms"`
	MaxDataPoints *int   `json:"max_data_points"`
}

type statusResponse struct {
	Monitor       monitor.Status          `json:"monitor"`
	FiringAlerts  int                     `json:"firing_alerts"`
	StreamClients int                     `json:"stream_clients"`
	Uptime        string                  `json:"uptime"`
	Time          time.Time               `json:"time"`
	Version       version.Info            `json:"version"`
	Telemetry     *collector.TargetHealth `json:"telemetry,omitempty"`
}

// handleHealth returns service health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus returns current state summary
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	engine := s.engine
	col := s.collector
	info := s.version
	s.mu.RUnlock()

	resp := statusResponse{
		Monitor:       s.monitor.Status(),
		StreamClients: s.hub.Clients(),
		Uptime:        formatDuration(time.Since(s.startTime)),
		Time:          time.Now().UTC(),
		Version:       info,
	}
	if engine != nil {
		resp.FiringAlerts = len(engine.GetActiveAlerts())
	}
	if col != nil {
		health := col.Health()
		resp.Telemetry = &health
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.State())
}

// handleSeries returns the buffered samples, optionally only the last ?limit=n
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	series := s.monitor.State().Series
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		if limit < len(series) {
			series = series[len(series)-limit:]
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"series": series,
		"count":  len(series),
	})
}

// handleAlerts returns the alert log and the conditions currently firing
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	engine := s.engine
	s.mu.RUnlock()

	alerts := s.monitor.State().Alerts
	firing := []alerter.ActiveAlert{}
	if engine != nil {
		firing = engine.GetActiveAlerts()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
		"firing": firing,
	})
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": s.monitor.Rules(),
	})
}

// handleUpdateRule patches every rule watching {metric}
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	metric := chi.URLParam(r, "metric")

	var patch types.RulePatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if patch.IsEmpty() {
		writeError(w, http.StatusBadRequest, "empty_patch", "no rule fields to update")
		return
	}
	if patch.Comparison != nil {
		c, err := types.ParseComparison(string(*patch.Comparison))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_rule", err.Error())
			return
		}
		patch.Comparison = &c
	}
	if patch.Severity != nil {
		sev, err := types.ParseSeverity(string(*patch.Severity))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_rule", err.Error())
			return
		}
		patch.Severity = &sev
	}

	err := s.monitor.UpdateRule(metric, patch)
	switch {
	case errors.Is(err, monitor.ErrUnknownRule):
		writeError(w, http.StatusNotFound, "unknown_rule", fmt.Sprintf("no rule for metric %s", metric))
		return
	case errors.Is(err, monitor.ErrInvalidConfiguration):
		writeError(w, http.StatusBadRequest, "invalid_rule", err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": s.monitor.Rules(),
	})
}

// handleReload replaces the rule set with a freshly loaded one
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	reload := s.reload
	s.mu.RUnlock()

	if reload == nil {
		writeError(w, http.StatusNotImplemented, "reload_unavailable", "rule reload not configured")
		return
	}

	s.logger.Info().Msg("Rule reload requested via API")

	rules, err := reload()
	if err == nil {
		err = s.monitor.SetRules(rules)
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Rule reload failed")
		writeError(w, http.StatusBadRequest, "reload_failed", err.Error())
		return
	}

	s.logger.Info().Int("rule_count", len(rules)).Msg("Rules reloaded")
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"rule_count": len(rules),
	})
}

// handleControl drives the monitor lifecycle
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")

	s.mu.RLock()
	engine := s.engine
	settings := s.settings
	s.mu.RUnlock()

	switch action {
	case "start":
		var req startRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
			return
		}
		if req.IntervalMs != nil {
			settings.Interval = time.Duration(*req.IntervalMs) * time.Millisecond
		}
		if req.MaxDataPoints != nil {
			settings.MaxDataPoints = *req.MaxDataPoints
		}
		if err := s.monitor.Start(settings); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_configuration", err.Error())
			return
		}
	case "pause":
		s.monitor.Pause()
	case "resume":
		s.monitor.Resume()
	case "stop":
		s.monitor.Stop()
	case "reset":
		s.monitor.Reset()
		if engine != nil {
			engine.Reset()
		}
	default:
		writeError(w, http.StatusNotFound, "unknown_action", fmt.Sprintf("unknown monitor action %s", action))
		return
	}

	writeJSON(w, http.StatusOK, s.monitor.Status())
}

// handleExport downloads a snapshot as JSON or YAML
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_format", err.Error())
		return
	}

	snap := s.monitor.ExportSnapshot()
	data, err := export.Marshal(snap, format)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode snapshot")
		writeError(w, http.StatusInternalServerError, "export_failed", err.Error())
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(snap, format)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleLogs returns recent log entries, optionally ?level=warn&limit=50
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	lb := s.logBuffer
	s.mu.RUnlock()

	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries := []webui.LogEntry{}
	if lb != nil {
		entries = lb.Filter(r.URL.Query().Get("level"), limit)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	rec := s.metrics
	s.mu.RUnlock()

	if rec == nil {
		http.NotFound(w, r)
		return
	}
	rec.Handler().ServeHTTP(w, r)
}

// MetricValue is one latest reading on the dashboard
type MetricValue struct {
	Name  string
	Value float64
}

// DashboardData holds all data for the web UI template
type DashboardData struct {
	Status     monitor.Status
	Uptime     string
	Latest     []MetricValue
	LastSample time.Time
	Alerts     []types.Alert
	Firing     []alerter.ActiveAlert
	Rules      []types.ThresholdRule
	Logs       []webui.LogEntry
	Telemetry  *collector.TargetHealth
	Version    version.Info
}

// handleWebUI renders the dashboard
func (s *Server) handleWebUI(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	engine := s.engine
	lb := s.logBuffer
	col := s.collector
	info := s.version
	s.mu.RUnlock()

	state := s.monitor.State()
	data := DashboardData{
		Status:  s.monitor.Status(),
		Uptime:  formatDuration(time.Since(s.startTime)),
		Rules:   state.Rules,
		Version: info,
	}

	var latest types.Sample
	if n := len(state.Series); n > 0 {
		latest = state.Series[n-1]
		data.LastSample = latest.Timestamp
	}
	for _, name := range types.MetricNames() {
		v, _ := latest.Value(name)
		data.Latest = append(data.Latest, MetricValue{Name: name, Value: v})
	}

	// newest first, at most 20
	for i := len(state.Alerts) - 1; i >= 0 && len(data.Alerts) < 20; i-- {
		data.Alerts = append(data.Alerts, state.Alerts[i])
	}
	if engine != nil {
		data.Firing = engine.GetActiveAlerts()
	}
	if lb != nil {
		data.Logs = lb.GetRecentEntries(100)
	}
	if col != nil {
		health := col.Health()
		data.Telemetry = &health
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := webui.Templates.ExecuteTemplate(w, "base", data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to render template")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// decodeJSON decodes an optional JSON body; an empty body leaves v untouched
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Ok: false, Code: code, Message: message})
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}
	if d < 24*time.Hour {
		return d.Round(time.Minute).String()
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd %dh", days, hours)
}
