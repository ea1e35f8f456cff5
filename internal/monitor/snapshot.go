package monitor

import (
	"time"

	"github.com/riskpulse/riskpulse/internal/types"
)

// SnapshotVersion is bumped when the exported layout changes
const SnapshotVersion = 1

// SessionSettings are the session parameters recorded in an export
type SessionSettings struct {
	IntervalMs     int64 `json:"interval_ms" yaml:"interval_ms"`
	MaxDataPoints  int   `json:"max_data_points" yaml:"max_data_points"`
	AlertRetention int   `json:"alert_retention" yaml:"alert_retention"`
}

// Snapshot is a self-contained, serializable copy of the monitor's data
type Snapshot struct {
	Version     int                   `json:"version" yaml:"version"`
	ExportedAt  time.Time             `json:"exported_at" yaml:"exported_at"`
	Settings    SessionSettings       `json:"settings" yaml:"settings"`
	IsConnected bool                  `json:"is_connected" yaml:"is_connected"`
	IsPaused    bool                  `json:"is_paused" yaml:"is_paused"`
	Series      []types.Sample        `json:"series" yaml:"series"`
	Alerts      []types.Alert         `json:"alerts" yaml:"alerts"`
	Rules       []types.ThresholdRule `json:"rules" yaml:"rules"`
}

// State is the query view consumed by rendering layers
type State struct {
	Series      []types.Sample        `json:"series"`
	Alerts      []types.Alert         `json:"alerts"`
	Rules       []types.ThresholdRule `json:"rules"`
	IsConnected bool                  `json:"is_connected"`
	IsPaused    bool                  `json:"is_paused"`
}

// Status summarizes the session without copying buffers
type Status struct {
	State          string        `json:"state"`
	IsConnected    bool          `json:"is_connected"`
	IsPaused       bool          `json:"is_paused"`
	Interval       time.Duration `json:"-"`
	IntervalMs     int64         `json:"interval_ms"`
	MaxDataPoints  int           `json:"max_data_points"`
	AlertRetention int           `json:"alert_retention"`
	SeriesLength   int           `json:"series_length"`
	AlertCount     int           `json:"alert_count"`
	TicksSampled   uint64        `json:"ticks_sampled"`
	TicksDropped   uint64        `json:"ticks_dropped"`
	AlertsRaised   uint64        `json:"alerts_raised"`
	StartedAt      time.Time     `json:"started_at,omitempty"`
}

// TickEvent is delivered to subscribers once per produced sample
type TickEvent struct {
	Sample types.Sample  `json:"sample"`
	Alerts []types.Alert `json:"alerts"`
}
