package types

import (
	"fmt"
	"time"
)

// Alert records a rule breach observed in one sample
type Alert struct {
	ID            string     `json:"id" yaml:"id"`
	Metric        string     `json:"metric" yaml:"metric"`
	ObservedValue float64    `json:"observed_value" yaml:"observed_value"`
	Limit         float64    `json:"limit" yaml:"limit"`
	Comparison    Comparison `json:"comparison" yaml:"comparison"`
	Severity      Severity   `json:"severity" yaml:"severity"`
	Timestamp     time.Time  `json:"timestamp" yaml:"timestamp"`
	Message       string     `json:"message" yaml:"message"`
}

// Key identifies the rule condition that raised the alert
func (a Alert) Key() string {
	return a.Metric + "|" + string(a.Comparison)
}

// DescribeBreach renders a human readable breach message
func DescribeBreach(metric string, value float64, comparison Comparison, limit float64) string {
	return fmt.Sprintf("%s %.2f is %s limit %.2f", metric, value, comparison, limit)
}
