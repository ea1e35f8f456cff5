package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/riskpulse/riskpulse/internal/monitor"
	"github.com/riskpulse/riskpulse/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const monitorYAML = `
monitor:
  interval: 500ms
  max_data_points: 120
  alert_retention: 25
  autostart: true
metrics:
  riskScore:
    baseline: 6
    range: 3
rules:
  - metric: riskScore
    comparison: ABOVE
    limit: 8.5
    severity: High
    enabled: true
  - metric: errorRate
    comparison: above
    limit: 2
    severity: critical
    enabled: false
api:
  listen: "127.0.0.1:9090"
`

const alertsYAML = `
channels:
  oncall:
    type: apprise
    url_env: ONCALL_URL
    escalation_delay: 120
  chat:
    type: telegram
    token_env: TG_TOKEN
    chat_id_env: TG_CHAT
  bus:
    type: kafka
    brokers: ["localhost:9092"]
    topic: riskpulse.alerts
  audit:
    type: log
alert_rules:
  critical:
    channels: [oncall, chat]
  default:
    channels: [audit, bus]
alert_behavior:
  deduplication_window: 1m
  flap_threshold: 3
`

const telemetryYAML = `
enabled: true
target: "10.0.0.1:9339"
username_env: GNMI_USER
password_env: GNMI_PASS
paths:
  - path: /system/state/risk-score
    metric: riskScore
  - path: /system/state/cpu-load
    metric: systemLoad
    scale: 100
`

func writeConfigDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestLoadConfigDir(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{
		"monitor.yaml":   monitorYAML,
		"alerts.yaml":    alertsYAML,
		"telemetry.yaml": telemetryYAML,
	})

	cfg, err := LoadConfigDir(dir)
	require.NoError(t, err)

	assert.Equal(t, monitor.Settings{Interval: 500 * time.Millisecond, MaxDataPoints: 120}, cfg.Settings())
	assert.Equal(t, 25, cfg.Monitor.Monitor.AlertRetention)
	assert.True(t, cfg.Monitor.Monitor.Autostart)
	assert.Equal(t, "127.0.0.1:9090", cfg.Monitor.API.Listen)
	assert.Equal(t, 6.0, cfg.Monitor.Metrics[types.MetricRiskScore].Baseline)

	require.Len(t, cfg.Monitor.Rules, 2)
	assert.Equal(t, types.ComparisonAbove, cfg.Monitor.Rules[0].Comparison, "comparison is normalized")
	assert.Equal(t, types.SeverityHigh, cfg.Monitor.Rules[0].Severity, "severity is normalized")
	assert.False(t, cfg.Monitor.Rules[1].Enabled)

	assert.Len(t, cfg.Alerts.Channels, 4)
	assert.Equal(t, time.Minute, cfg.Alerts.AlertBehavior.DeduplicationWindow)
	assert.Equal(t, 3, cfg.Alerts.AlertBehavior.FlapThreshold)
	assert.True(t, cfg.NotifyResolved())

	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.Telemetry.SampleInterval, "defaults to the monitor interval")
	assert.Equal(t, 1.0, cfg.Telemetry.Paths[0].Scale)
	assert.Equal(t, 100.0, cfg.Telemetry.Paths[1].Scale)
}

func TestLoadConfigDirDefaults(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{"monitor.yaml": "rules: []\n"})

	cfg, err := LoadConfigDir(dir)
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.Monitor.Monitor.Interval)
	assert.Equal(t, 60, cfg.Monitor.Monitor.MaxDataPoints)
	assert.Equal(t, monitor.DefaultAlertRetention, cfg.Monitor.Monitor.AlertRetention)
	assert.Equal(t, ":8080", cfg.Monitor.API.Listen)
	assert.Equal(t, "info", cfg.Monitor.Log.Level)
	assert.Equal(t, 5*time.Minute, cfg.Alerts.AlertBehavior.DeduplicationWindow)
	assert.Equal(t, 256, cfg.Alerts.AlertBehavior.QueueSize)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Empty(t, cfg.Alerts.Channels)
}

func TestLoadConfigDirMissingMonitor(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{"alerts.yaml": alertsYAML})

	_, err := LoadConfigDir(dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Contains(t, err.Error(), "monitor.yaml")
}

func TestLoadConfigDirMalformedYAML(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{"monitor.yaml": "monitor: [unclosed"})

	_, err := LoadConfigDir(dir)
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{
			name:    "negative interval",
			files:   map[string]string{"monitor.yaml": "monitor:\n  interval: -1s\n"},
			wantErr: "interval",
		},
		{
			name:    "negative retention",
			files:   map[string]string{"monitor.yaml": "monitor:\n  alert_retention: -2\n"},
			wantErr: "alert_retention",
		},
		{
			name:    "unknown metric profile",
			files:   map[string]string{"monitor.yaml": "metrics:\n  latency:\n    baseline: 1\n"},
			wantErr: "unknown metric latency",
		},
		{
			name:    "bad rule comparison",
			files:   map[string]string{"monitor.yaml": "rules:\n  - metric: riskScore\n    comparison: near\n    severity: low\n"},
			wantErr: "rule 0",
		},
		{
			name: "unknown channel type",
			files: map[string]string{
				"monitor.yaml": "rules: []\n",
				"alerts.yaml":  "channels:\n  x:\n    type: pager\n",
			},
			wantErr: "channel x",
		},
		{
			name: "kafka without topic",
			files: map[string]string{
				"monitor.yaml": "rules: []\n",
				"alerts.yaml":  "channels:\n  bus:\n    type: kafka\n    brokers: [a:1]\n",
			},
			wantErr: "brokers and topic",
		},
		{
			name: "rule references unknown channel",
			files: map[string]string{
				"monitor.yaml": "rules: []\n",
				"alerts.yaml":  "alert_rules:\n  high:\n    channels: [nowhere]\n",
			},
			wantErr: "unknown channel nowhere",
		},
		{
			name: "alert rule that is not a severity",
			files: map[string]string{
				"monitor.yaml": "rules: []\n",
				"alerts.yaml":  "alert_rules:\n  urgent:\n    channels: []\n",
			},
			wantErr: "alert rule urgent",
		},
		{
			name: "telemetry without target",
			files: map[string]string{
				"monitor.yaml":   "rules: []\n",
				"telemetry.yaml": "enabled: true\npaths:\n  - path: /a\n    metric: riskScore\n",
			},
			wantErr: "target is required",
		},
		{
			name: "telemetry unknown metric",
			files: map[string]string{
				"monitor.yaml":   "rules: []\n",
				"telemetry.yaml": "enabled: true\ntarget: h:1\npaths:\n  - path: /a\n    metric: temperature\n",
			},
			wantErr: "unknown metric temperature",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfigDir(writeConfigDir(t, tt.files))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfigDirReadsDotEnv(t *testing.T) {
	const key = "RISKPULSE_TEST_GNMI_USER"
	t.Cleanup(func() { os.Unsetenv(key) })

	dir := writeConfigDir(t, map[string]string{
		"monitor.yaml":   "rules: []\n",
		"telemetry.yaml": "enabled: true\ntarget: h:1\nusername_env: " + key + "\npaths:\n  - path: /a\n    metric: riskScore\n",
		".env":           key + "=admin\n",
	})

	cfg, err := LoadConfigDir(dir)
	require.NoError(t, err)

	user, pass := cfg.Telemetry.Credentials()
	assert.Equal(t, "admin", user)
	assert.Empty(t, pass)
}

func TestLoadRules(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{"monitor.yaml": monitorYAML})

	rules, err := LoadRules(dir)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, types.SeverityHigh, rules[0].Severity)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "monitor.yaml"), []byte("rules:\n  - metric: riskScore\n    comparison: above\n    severity: extreme\n"), 0o644))
	_, err = LoadRules(dir)
	assert.Error(t, err)
}
