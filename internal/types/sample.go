package types

import "time"

// Metric names tracked by the monitor. They double as the JSON field names of
// Sample so that a rule's metric always matches a serialized sample field.
const (
	MetricRiskScore  = "riskScore"
	MetricSystemLoad = "systemLoad"
	MetricErrorRate  = "errorRate"
)

// Sample is one timestamped snapshot of all tracked metric values
type Sample struct {
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
	RiskScore  float64   `json:"riskScore" yaml:"riskScore"`
	SystemLoad float64   `json:"systemLoad" yaml:"systemLoad"`
	ErrorRate  float64   `json:"errorRate" yaml:"errorRate"`
}

// metricField maps a metric name to its accessor and setter on Sample
type metricField struct {
	get func(s Sample) float64
	set func(s *Sample, v float64)
}

var metricNames = []string{MetricRiskScore, MetricSystemLoad, MetricErrorRate}

var metricRegistry = map[string]metricField{
	MetricRiskScore: {
		get: func(s Sample) float64 { return s.RiskScore },
		set: func(s *Sample, v float64) { s.RiskScore = v },
	},
	MetricSystemLoad: {
		get: func(s Sample) float64 { return s.SystemLoad },
		set: func(s *Sample, v float64) { s.SystemLoad = v },
	},
	MetricErrorRate: {
		get: func(s Sample) float64 { return s.ErrorRate },
		set: func(s *Sample, v float64) { s.ErrorRate = v },
	},
}

// MetricNames returns the tracked metric names in declaration order
func MetricNames() []string {
	out := make([]string, len(metricNames))
	copy(out, metricNames)
	return out
}

// IsKnownMetric reports whether name is a field of Sample
func IsKnownMetric(name string) bool {
	_, ok := metricRegistry[name]
	return ok
}

// Value returns the value of the named metric. The second result is false
// when the name does not correspond to a Sample field.
func (s Sample) Value(name string) (float64, bool) {
	field, ok := metricRegistry[name]
	if !ok {
		return 0, false
	}
	return field.get(s), true
}

// WithValue returns a copy of the sample with the named metric replaced.
// Unknown names leave the copy unchanged.
func (s Sample) WithValue(name string, v float64) Sample {
	if field, ok := metricRegistry[name]; ok {
		field.set(&s, v)
	}
	return s
}

// Values returns all metric values keyed by name
func (s Sample) Values() map[string]float64 {
	out := make(map[string]float64, len(metricNames))
	for _, name := range metricNames {
		out[name] = metricRegistry[name].get(s)
	}
	return out
}
