package config

import (
	"time"

	"github.com/riskpulse/riskpulse/internal/sampler"
	"github.com/riskpulse/riskpulse/internal/types"
)

// Config represents the complete riskpulse configuration
type Config struct {
	Monitor   MonitorFile     `yaml:"-"`
	Alerts    AlertConfig     `yaml:"-"`
	Telemetry TelemetryConfig `yaml:"-"`
}

// MonitorFile is the layout of monitor.yaml
type MonitorFile struct {
	Monitor MonitorConfig              `yaml:"monitor"`
	Metrics map[string]sampler.Profile `yaml:"metrics,omitempty"`
	Rules   []types.ThresholdRule      `yaml:"rules"`
	API     APIConfig                  `yaml:"api"`
	Log     LogConfig                  `yaml:"log"`
}

// MonitorConfig contains session settings
type MonitorConfig struct {
	Interval       time.Duration `yaml:"interval"`
	MaxDataPoints  int           `yaml:"max_data_points"`
	AlertRetention int           `yaml:"alert_retention"`
	Autostart      bool          `yaml:"autostart"`
	Seed           int64         `yaml:"seed,omitempty"` // 0 seeds from the clock
}

// APIConfig configures the HTTP surface
type APIConfig struct {
	Listen       string        `yaml:"listen"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LogConfig configures logging outputs
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
	BufferSize int    `yaml:"buffer_size,omitempty"`
}

// AlertConfig defines alert routing and behavior (alerts.yaml)
type AlertConfig struct {
	Channels      map[string]ChannelConfig `yaml:"channels"`
	AlertRules    map[string]AlertRule     `yaml:"alert_rules"`
	AlertBehavior AlertBehavior            `yaml:"alert_behavior"`
}

// Channel types
const (
	ChannelApprise  = "apprise"
	ChannelTelegram = "telegram"
	ChannelKafka    = "kafka"
	ChannelLog      = "log"
)

// ChannelConfig defines a notification channel
type ChannelConfig struct {
	Type            string   `yaml:"type"`
	URLEnv          string   `yaml:"url_env,omitempty"`     // apprise
	TokenEnv        string   `yaml:"token_env,omitempty"`   // telegram
	ChatIDEnv       string   `yaml:"chat_id_env,omitempty"` // telegram
	Brokers         []string `yaml:"brokers,omitempty"`     // kafka
	Topic           string   `yaml:"topic,omitempty"`       // kafka
	SeverityFilter  []string `yaml:"severity_filter,omitempty"`
	EscalationDelay int      `yaml:"escalation_delay,omitempty"` // seconds
}

// AlertRule routes a severity to channels
type AlertRule struct {
	Channels []string `yaml:"channels"`
}

// AlertBehavior defines alert behavior settings
type AlertBehavior struct {
	DeduplicationWindow time.Duration `yaml:"deduplication_window"`
	FlapThreshold       int           `yaml:"flap_threshold"`
	FlapWindow          time.Duration `yaml:"flap_window"`
	QueueSize           int           `yaml:"queue_size"`
	RetryAttempts       int           `yaml:"retry_attempts"`
	RetryDelay          time.Duration `yaml:"retry_delay"`
	NotifyResolved      *bool         `yaml:"notify_resolved,omitempty"`
}

// TelemetryConfig configures the gNMI telemetry source (telemetry.yaml)
type TelemetryConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Target         string        `yaml:"target"`
	UsernameEnv    string        `yaml:"username_env,omitempty"`
	PasswordEnv    string        `yaml:"password_env,omitempty"`
	TLS            TLSConfig     `yaml:"tls"`
	SampleInterval time.Duration `yaml:"sample_interval"`
	Timeout        time.Duration `yaml:"timeout"`
	Paths          []MetricPath  `yaml:"paths"`
}

// TLSConfig holds gNMI transport security settings
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	ServerName         string `yaml:"server_name,omitempty"`
	CAFile             string `yaml:"ca_file,omitempty"`
	CertFile           string `yaml:"cert_file,omitempty"`
	KeyFile            string `yaml:"key_file,omitempty"`
}

// MetricPath maps a gNMI path to a sample metric
type MetricPath struct {
	Path   string  `yaml:"path"`
	Metric string  `yaml:"metric"`
	Scale  float64 `yaml:"scale,omitempty"`
}
