package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/riskpulse/riskpulse/internal/alerter"
	"github.com/riskpulse/riskpulse/internal/config"
	"github.com/riskpulse/riskpulse/internal/export"
	"github.com/riskpulse/riskpulse/internal/metrics"
	"github.com/riskpulse/riskpulse/internal/monitor"
	"github.com/riskpulse/riskpulse/internal/notifier"
	"github.com/riskpulse/riskpulse/internal/sampler"
	"github.com/riskpulse/riskpulse/internal/types"
	"github.com/riskpulse/riskpulse/internal/webui"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type nopSender struct{}

func (nopSender) Send(context.Context, notifier.Event, []string) error { return nil }

type testEnv struct {
	server   *Server
	ctrl     *monitor.Controller
	sched    *monitor.ManualScheduler
	engine   *alerter.Engine
	recorder *metrics.Recorder
	logs     *webui.LogBuffer
	handler  http.Handler
}

// riskScore counts 1, 2, 3... so the rule above 2 fires from the third sample
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	n := 0
	counter := sampler.Func(func(at time.Time, _ *types.Sample) types.Sample {
		n++
		return types.Sample{Timestamp: at, RiskScore: float64(n), SystemLoad: 40, ErrorRate: 0.5}
	})

	sched := monitor.NewManualScheduler(testStart)
	rec := metrics.NewRecorder()
	logs := webui.NewLogBuffer(50)
	logger := zerolog.New(logs)

	ctrl := monitor.New(monitor.Options{
		Sampler:   counter,
		Scheduler: sched,
		Clock:     sched.Now,
		Logger:    logger,
		Recorder:  rec,
		Rules: []types.ThresholdRule{
			{Metric: types.MetricRiskScore, Comparison: types.ComparisonAbove, Limit: 2, Severity: types.SeverityHigh, Enabled: true},
		},
		AlertRetention: 5,
	})

	engine := alerter.NewEngine(&config.Config{}, nopSender{}, zerolog.Nop())
	ctrl.Subscribe(func(ev monitor.TickEvent) { engine.Process(context.Background(), ev) })

	s := NewServer(ctrl, logger, config.APIConfig{Listen: ":0", WriteTimeout: 5 * time.Second})
	s.SetAlertEngine(engine)
	s.SetMetrics(rec)
	s.SetLogBuffer(logs)
	s.SetDefaultSettings(monitor.Settings{Interval: time.Second, MaxDataPoints: 10})
	t.Cleanup(s.Close)

	return &testEnv{
		server:   s,
		ctrl:     ctrl,
		sched:    sched,
		engine:   engine,
		recorder: rec,
		logs:     logs,
		handler:  s.Routes(),
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, w)["status"])
}

func TestControlLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/monitor/start", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	status := decode[monitor.Status](t, w)
	assert.Equal(t, "running", status.State)
	assert.Equal(t, 1, status.SeriesLength)
	assert.Equal(t, int64(1000), status.IntervalMs)

	env.sched.Advance(2 * time.Second)

	w = env.do(t, http.MethodPost, "/api/monitor/pause", "")
	assert.Equal(t, "paused", decode[monitor.Status](t, w).State)

	env.sched.Advance(time.Second)
	w = env.do(t, http.MethodPost, "/api/monitor/resume", "")
	status = decode[monitor.Status](t, w)
	assert.Equal(t, "running", status.State)
	assert.Equal(t, uint64(1), status.TicksDropped)
	assert.Equal(t, 3, status.SeriesLength)

	require.NotEmpty(t, env.engine.GetActiveAlerts())
	w = env.do(t, http.MethodPost, "/api/monitor/reset", "")
	status = decode[monitor.Status](t, w)
	assert.Equal(t, 0, status.SeriesLength)
	assert.True(t, status.IsConnected, "reset keeps the session running")
	assert.Empty(t, env.engine.GetActiveAlerts(), "reset clears routing state")

	w = env.do(t, http.MethodPost, "/api/monitor/stop", "")
	assert.Equal(t, "stopped", decode[monitor.Status](t, w).State)

	w = env.do(t, http.MethodPost, "/api/monitor/explode", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartSettings(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		code     int
		errCode  string
		interval int64
		window   int
	}{
		{"override", `{"interval_ms": 250, "max_data_points": 3}`, http.StatusOK, "", 250, 3},
		{"partial override", `{"max_data_points": 4}`, http.StatusOK, "", 1000, 4},
		{"zero interval", `{"interval_ms": 0}`, http.StatusBadRequest, "invalid_configuration", 0, 0},
		{"negative window", `{"max_data_points": -1}`, http.StatusBadRequest, "invalid_configuration", 0, 0},
		{"unknown field", `{"speed": 2}`, http.StatusBadRequest, "invalid_body", 0, 0},
		{"malformed", `{`, http.StatusBadRequest, "invalid_body", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.do(t, http.MethodPost, "/api/monitor/start", tt.body)
			require.Equal(t, tt.code, w.Code, w.Body.String())

			if tt.errCode != "" {
				resp := decode[errorResponse](t, w)
				assert.Equal(t, tt.errCode, resp.Code)
				assert.False(t, env.ctrl.Status().IsConnected)
				return
			}
			status := decode[monitor.Status](t, w)
			assert.Equal(t, tt.interval, status.IntervalMs)
			assert.Equal(t, tt.window, status.MaxDataPoints)
		})
	}
}

func TestInvalidStartMessage(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/monitor/start", `{"interval_ms": -5}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[errorResponse](t, w).Message, "interval")
}

func TestUpdateRule(t *testing.T) {
	tests := []struct {
		name   string
		metric string
		body   string
		code   int
	}{
		{"raise limit", types.MetricRiskScore, `{"limit": 8.5}`, http.StatusOK},
		{"mixed case enums", types.MetricRiskScore, `{"comparison": "Below", "severity": "CRITICAL"}`, http.StatusOK},
		{"disable", types.MetricRiskScore, `{"enabled": false}`, http.StatusOK},
		{"unknown metric", types.MetricErrorRate, `{"limit": 1}`, http.StatusNotFound},
		{"bad comparison", types.MetricRiskScore, `{"comparison": "sideways"}`, http.StatusBadRequest},
		{"bad severity", types.MetricRiskScore, `{"severity": "urgent"}`, http.StatusBadRequest},
		{"empty patch", types.MetricRiskScore, `{}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			before := env.ctrl.Rules()

			w := env.do(t, http.MethodPatch, "/api/rules/"+tt.metric, tt.body)
			require.Equal(t, tt.code, w.Code, w.Body.String())
			if tt.code != http.StatusOK {
				assert.Equal(t, before, env.ctrl.Rules(), "rejected patch leaves rules unchanged")
			}
		})
	}
}

func TestUpdateRuleApplies(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPatch, "/api/rules/riskScore", `{"limit": 8.5, "severity": "critical"}`)
	require.Equal(t, http.StatusOK, w.Code)

	rules := env.ctrl.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, 8.5, rules[0].Limit)
	assert.Equal(t, types.SeverityCritical, rules[0].Severity)

	w = env.do(t, http.MethodGet, "/api/rules", "")
	got := decode[map[string][]types.ThresholdRule](t, w)
	assert.Equal(t, rules, got["rules"])
}

func TestSeriesAndAlerts(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.ctrl.Start(monitor.Settings{Interval: time.Second, MaxDataPoints: 10}))
	env.sched.Advance(4 * time.Second)

	w := env.do(t, http.MethodGet, "/api/series?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var series struct {
		Series []types.Sample `json:"series"`
		Count  int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &series))
	assert.Equal(t, 2, series.Count)
	assert.Equal(t, 4.0, series.Series[0].RiskScore)
	assert.Equal(t, 5.0, series.Series[1].RiskScore)

	w = env.do(t, http.MethodGet, "/api/series?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/alerts", "")
	require.Equal(t, http.StatusOK, w.Code)
	var alerts struct {
		Alerts []types.Alert         `json:"alerts"`
		Count  int                   `json:"count"`
		Firing []alerter.ActiveAlert `json:"firing"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &alerts))
	assert.Equal(t, 3, alerts.Count, "samples 3, 4 and 5 breach")
	require.Len(t, alerts.Firing, 1)
	assert.Equal(t, "riskScore|above", alerts.Firing[0].Key)
	assert.Equal(t, 3, alerts.Firing[0].Occurrences)

	w = env.do(t, http.MethodGet, "/api/state", "")
	state := decode[monitor.State](t, w)
	assert.Len(t, state.Series, 5)
	assert.True(t, state.IsConnected)
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.ctrl.Start(monitor.Settings{Interval: time.Second, MaxDataPoints: 10}))
	env.sched.Advance(2 * time.Second)

	w := env.do(t, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[statusResponse](t, w)
	assert.Equal(t, "running", resp.Monitor.State)
	assert.Equal(t, uint64(3), resp.Monitor.TicksSampled)
	assert.Equal(t, 1, resp.FiringAlerts)
	assert.Nil(t, resp.Telemetry)
}

func TestExport(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.ctrl.Start(monitor.Settings{Interval: time.Second, MaxDataPoints: 10}))
	env.sched.Advance(3 * time.Second)

	for _, format := range []export.Format{export.FormatJSON, export.FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/export?format="+string(format), "")
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, format.ContentType(), w.Header().Get("Content-Type"))
			assert.Contains(t, w.Header().Get("Content-Disposition"), "riskpulse-20240301T120003Z."+format.Extension())

			snap, err := export.Read(w.Body, format)
			require.NoError(t, err)
			assert.Equal(t, env.ctrl.ExportSnapshot(), snap)
		})
	}

	w := env.do(t, http.MethodGet, "/api/export?format=xml", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogs(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.ctrl.Start(monitor.Settings{Interval: time.Second, MaxDataPoints: 10}))

	w := env.do(t, http.MethodGet, "/api/logs", "")
	require.Equal(t, http.StatusOK, w.Code)
	var logs struct {
		Entries []webui.LogEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	messages := make([]string, 0, len(logs.Entries))
	for _, e := range logs.Entries {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "Monitor started")

	w = env.do(t, http.MethodGet, "/api/logs?level=error", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	assert.Empty(t, logs.Entries)

	w = env.do(t, http.MethodGet, "/api/logs?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.ctrl.Start(monitor.Settings{Interval: time.Second, MaxDataPoints: 10}))

	w := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "riskpulse_ticks_sampled_total 1")

	bare := NewServer(env.ctrl, zerolog.Nop(), config.APIConfig{})
	defer bare.Close()
	w = httptest.NewRecorder()
	bare.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReload(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/reload", "")
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	next := []types.ThresholdRule{
		{Metric: types.MetricErrorRate, Comparison: types.ComparisonAbove, Limit: 2, Severity: types.SeverityMedium, Enabled: true},
		{Metric: types.MetricSystemLoad, Comparison: types.ComparisonAbove, Limit: 90, Severity: types.SeverityHigh, Enabled: true},
	}
	env.server.SetReloadFunc(func() ([]types.ThresholdRule, error) { return next, nil })
	w = env.do(t, http.MethodPost, "/api/reload", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, next, env.ctrl.Rules())

	env.server.SetReloadFunc(func() ([]types.ThresholdRule, error) { return nil, errors.New("monitor.yaml: bad indent") })
	w = env.do(t, http.MethodPost, "/api/reload", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, next, env.ctrl.Rules(), "failed reload keeps rules")
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.ctrl.Start(monitor.Settings{Interval: time.Second, MaxDataPoints: 10}))
	env.sched.Advance(3 * time.Second)

	w := env.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, body, "RiskPulse")
	assert.Contains(t, body, `id="v-riskScore">4.00<`)
	assert.Contains(t, body, "riskScore|above")
	assert.Contains(t, body, "Monitor started")

	w = env.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStream(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.Eventually(t, func() bool { return env.server.hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, env.ctrl.Start(monitor.Settings{Interval: time.Second, MaxDataPoints: 10}))
	env.sched.Advance(2 * time.Second)

	for i := 1; i <= 3; i++ {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var ev monitor.TickEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		assert.Equal(t, float64(i), ev.Sample.RiskScore, fmt.Sprintf("tick %d", i))
		assert.Equal(t, testStart.Add(time.Duration(i-1)*time.Second), ev.Sample.Timestamp)
		if i < 3 {
			assert.Empty(t, ev.Alerts)
		} else {
			require.Len(t, ev.Alerts, 1)
		}
	}

	env.server.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{1500 * time.Millisecond, "2s"},
		{90 * time.Second, "2m0s"},
		{5*time.Hour + 20*time.Minute, "5h20m0s"},
		{48 * time.Hour, "2d"},
		{50 * time.Hour, "2d 2h"},
		{13 * 24 * time.Hour, "13d"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatDuration(tt.in))
		})
	}
}
