package types

import (
	"fmt"
	"math"
	"strings"
)

// Comparison selects the direction in which a rule's limit is breached
type Comparison string

const (
	ComparisonAbove Comparison = "above"
	ComparisonBelow Comparison = "below"
)

// ParseComparison normalizes a comparison name
func ParseComparison(value string) (Comparison, error) {
	c := Comparison(strings.ToLower(strings.TrimSpace(value)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown comparison %q", value)
	}
	return c, nil
}

// Valid reports whether c is a supported comparison
func (c Comparison) Valid() bool {
	return c == ComparisonAbove || c == ComparisonBelow
}

// Severity of a rule and the alerts it raises
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// ParseSeverity normalizes a severity name
func ParseSeverity(value string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(value)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown severity %q", value)
	}
	return s, nil
}

// Valid reports whether s is a supported severity
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank orders severities from low (1) to critical (4). Unknown severities rank 0.
func (s Severity) Rank() int {
	return severityRank[s]
}

// ThresholdRule is a user-configurable condition on a single metric
type ThresholdRule struct {
	Metric     string     `json:"metric" yaml:"metric"`
	Comparison Comparison `json:"comparison" yaml:"comparison"`
	Limit      float64    `json:"limit" yaml:"limit"`
	Severity   Severity   `json:"severity" yaml:"severity"`
	Enabled    bool       `json:"enabled" yaml:"enabled"`
}

// Breached reports whether value violates the rule, ignoring Enabled
func (r ThresholdRule) Breached(value float64) bool {
	switch r.Comparison {
	case ComparisonAbove:
		return value > r.Limit
	case ComparisonBelow:
		return value < r.Limit
	default:
		return false
	}
}

// Key identifies the condition a rule watches
func (r ThresholdRule) Key() string {
	return r.Metric + "|" + string(r.Comparison)
}

// Validate checks the rule's fields. A metric that is not a Sample field is
// accepted; such rules are skipped during evaluation.
func (r ThresholdRule) Validate() error {
	if strings.TrimSpace(r.Metric) == "" {
		return fmt.Errorf("metric is required")
	}
	if !r.Comparison.Valid() {
		return fmt.Errorf("metric %s: comparison must be 'above' or 'below'", r.Metric)
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("metric %s: severity must be one of low, medium, high, critical", r.Metric)
	}
	if math.IsNaN(r.Limit) || math.IsInf(r.Limit, 0) {
		return fmt.Errorf("metric %s: limit must be a finite number", r.Metric)
	}
	return nil
}

// RulePatch holds a partial update for a rule. Nil fields are left unchanged.
type RulePatch struct {
	Comparison *Comparison `json:"comparison,omitempty"`
	Limit      *float64    `json:"limit,omitempty"`
	Severity   *Severity   `json:"severity,omitempty"`
	Enabled    *bool       `json:"enabled,omitempty"`
}

// Apply returns a copy of r with the patch applied
func (r ThresholdRule) Apply(p RulePatch) ThresholdRule {
	if p.Comparison != nil {
		r.Comparison = *p.Comparison
	}
	if p.Limit != nil {
		r.Limit = *p.Limit
	}
	if p.Severity != nil {
		r.Severity = *p.Severity
	}
	if p.Enabled != nil {
		r.Enabled = *p.Enabled
	}
	return r
}

// IsEmpty reports whether the patch changes nothing
func (p RulePatch) IsEmpty() bool {
	return p.Comparison == nil && p.Limit == nil && p.Severity == nil && p.Enabled == nil
}
