package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/riskpulse/riskpulse/internal/monitor"
	"github.com/riskpulse/riskpulse/internal/types"
	"gopkg.in/yaml.v3"
)

// LoadConfigDir loads all configuration files from a directory. A .env file
// in the directory is loaded first; variables already set in the process win.
func LoadConfigDir(dir string) (*Config, error) {
	cfg := &Config{}

	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("loading .env: %w", err)
		}
	}

	if err := loadYAML(filepath.Join(dir, "monitor.yaml"), &cfg.Monitor); err != nil {
		return nil, fmt.Errorf("loading monitor.yaml: %w", err)
	}

	if err := loadOptionalYAML(filepath.Join(dir, "alerts.yaml"), &cfg.Alerts); err != nil {
		return nil, fmt.Errorf("loading alerts.yaml: %w", err)
	}

	if err := loadOptionalYAML(filepath.Join(dir, "telemetry.yaml"), &cfg.Telemetry); err != nil {
		return nil, fmt.Errorf("loading telemetry.yaml: %w", err)
	}

	applyDefaults(cfg)

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadRules reloads only the rule set from monitor.yaml
func LoadRules(dir string) ([]types.ThresholdRule, error) {
	var file MonitorFile
	if err := loadYAML(filepath.Join(dir, "monitor.yaml"), &file); err != nil {
		return nil, fmt.Errorf("loading monitor.yaml: %w", err)
	}
	normalizeRules(file.Rules)
	for i, rule := range file.Rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return file.Rules, nil
}

// loadYAML loads a YAML file into a struct
func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

func loadOptionalYAML(path string, out interface{}) error {
	err := loadYAML(path, out)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func applyDefaults(cfg *Config) {
	m := &cfg.Monitor
	if m.Monitor.Interval == 0 {
		m.Monitor.Interval = time.Second
	}
	if m.Monitor.MaxDataPoints == 0 {
		m.Monitor.MaxDataPoints = 60
	}
	if m.Monitor.AlertRetention == 0 {
		m.Monitor.AlertRetention = monitor.DefaultAlertRetention
	}
	if m.API.Listen == "" {
		m.API.Listen = ":8080"
	}
	if m.API.ReadTimeout == 0 {
		m.API.ReadTimeout = 10 * time.Second
	}
	if m.API.WriteTimeout == 0 {
		m.API.WriteTimeout = 30 * time.Second
	}
	if m.Log.Level == "" {
		m.Log.Level = "info"
	}
	if m.Log.MaxSizeMB == 0 {
		m.Log.MaxSizeMB = 50
	}
	if m.Log.MaxBackups == 0 {
		m.Log.MaxBackups = 3
	}
	if m.Log.MaxAgeDays == 0 {
		m.Log.MaxAgeDays = 14
	}
	if m.Log.BufferSize == 0 {
		m.Log.BufferSize = 1000
	}
	normalizeRules(m.Rules)

	b := &cfg.Alerts.AlertBehavior
	if b.DeduplicationWindow == 0 {
		b.DeduplicationWindow = 5 * time.Minute
	}
	if b.FlapThreshold == 0 {
		b.FlapThreshold = 4
	}
	if b.FlapWindow == 0 {
		b.FlapWindow = 2 * time.Minute
	}
	if b.QueueSize == 0 {
		b.QueueSize = 256
	}
	if b.RetryAttempts == 0 {
		b.RetryAttempts = 3
	}
	if b.RetryDelay == 0 {
		b.RetryDelay = 2 * time.Second
	}
	if b.NotifyResolved == nil {
		enabled := true
		b.NotifyResolved = &enabled
	}

	t := &cfg.Telemetry
	if t.SampleInterval == 0 {
		t.SampleInterval = m.Monitor.Interval
	}
	if t.Timeout == 0 {
		t.Timeout = 10 * time.Second
	}
	for i := range t.Paths {
		if t.Paths[i].Scale == 0 {
			t.Paths[i].Scale = 1
		}
	}
}

// normalizeRules lowercases comparison and severity names in place
func normalizeRules(rules []types.ThresholdRule) {
	for i := range rules {
		if c, err := types.ParseComparison(string(rules[i].Comparison)); err == nil {
			rules[i].Comparison = c
		}
		if s, err := types.ParseSeverity(string(rules[i].Severity)); err == nil {
			rules[i].Severity = s
		}
	}
}

// ValidateConfig validates the configuration
func ValidateConfig(cfg *Config) error {
	if err := cfg.Settings().Validate(); err != nil {
		return err
	}
	if cfg.Monitor.Monitor.AlertRetention < 0 {
		return fmt.Errorf("monitor.alert_retention must not be negative")
	}

	for name, profile := range cfg.Monitor.Metrics {
		if !types.IsKnownMetric(name) {
			return fmt.Errorf("metrics: unknown metric %s", name)
		}
		if profile.Baseline < 0 || profile.Range < 0 {
			return fmt.Errorf("metrics %s: baseline and range must not be negative", name)
		}
	}

	for i, rule := range cfg.Monitor.Rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}

	if err := validateAlerts(&cfg.Alerts); err != nil {
		return err
	}

	return validateTelemetry(&cfg.Telemetry)
}

func validateAlerts(alerts *AlertConfig) error {
	for name, channel := range alerts.Channels {
		switch channel.Type {
		case ChannelApprise:
			if channel.URLEnv == "" {
				return fmt.Errorf("channel %s: url_env is required", name)
			}
		case ChannelTelegram:
			if channel.TokenEnv == "" || channel.ChatIDEnv == "" {
				return fmt.Errorf("channel %s: token_env and chat_id_env are required", name)
			}
		case ChannelKafka:
			if len(channel.Brokers) == 0 || channel.Topic == "" {
				return fmt.Errorf("channel %s: brokers and topic are required", name)
			}
		case ChannelLog:
		default:
			return fmt.Errorf("channel %s: type must be one of apprise, telegram, kafka, log", name)
		}
		for _, sev := range channel.SeverityFilter {
			if _, err := types.ParseSeverity(sev); err != nil {
				return fmt.Errorf("channel %s: %w", name, err)
			}
		}
		if channel.EscalationDelay < 0 {
			return fmt.Errorf("channel %s: escalation_delay must not be negative", name)
		}
	}

	// Validate alert rules reference valid channels
	for ruleName, rule := range alerts.AlertRules {
		if ruleName != "default" {
			if _, err := types.ParseSeverity(ruleName); err != nil {
				return fmt.Errorf("alert rule %s: must be a severity or 'default'", ruleName)
			}
		}
		for _, chName := range rule.Channels {
			if _, ok := alerts.Channels[chName]; !ok {
				return fmt.Errorf("alert rule %s: references unknown channel %s", ruleName, chName)
			}
		}
	}

	if alerts.AlertBehavior.FlapThreshold < 2 {
		return fmt.Errorf("alert_behavior.flap_threshold must be at least 2")
	}
	if alerts.AlertBehavior.RetryAttempts < 1 {
		return fmt.Errorf("alert_behavior.retry_attempts must be at least 1")
	}
	return nil
}

func validateTelemetry(t *TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	if t.Target == "" {
		return fmt.Errorf("telemetry: target is required")
	}
	if len(t.Paths) == 0 {
		return fmt.Errorf("telemetry: at least one path is required")
	}
	seen := make(map[string]bool)
	for _, p := range t.Paths {
		if p.Path == "" {
			return fmt.Errorf("telemetry: path is required")
		}
		if !types.IsKnownMetric(p.Metric) {
			return fmt.Errorf("telemetry path %s: unknown metric %s", p.Path, p.Metric)
		}
		if seen[p.Path] {
			return fmt.Errorf("telemetry path %s: listed twice", p.Path)
		}
		seen[p.Path] = true
	}
	return nil
}

// Settings returns the monitor session settings
func (c *Config) Settings() monitor.Settings {
	return monitor.Settings{
		Interval:      c.Monitor.Monitor.Interval,
		MaxDataPoints: c.Monitor.Monitor.MaxDataPoints,
	}
}

// NotifyResolved reports whether resolved alerts are announced
func (c *Config) NotifyResolved() bool {
	return c.Alerts.AlertBehavior.NotifyResolved == nil || *c.Alerts.AlertBehavior.NotifyResolved
}

// Credentials resolves the gNMI username and password from the environment
func (t TelemetryConfig) Credentials() (username, password string) {
	if t.UsernameEnv != "" {
		username = os.Getenv(t.UsernameEnv)
	}
	if t.PasswordEnv != "" {
		password = os.Getenv(t.PasswordEnv)
	}
	return username, password
}
