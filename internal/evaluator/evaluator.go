package evaluator

import (
	"github.com/google/uuid"
	"github.com/riskpulse/riskpulse/internal/types"
	"github.com/rs/zerolog"
)

// IDFunc generates alert identifiers
type IDFunc func() string

// Evaluator compares samples against threshold rules
type Evaluator struct {
	logger zerolog.Logger
	newID  IDFunc
}

// NewEvaluator creates a new threshold evaluator
func NewEvaluator(logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		logger: logger.With().Str("component", "evaluator").Logger(),
		newID:  uuid.NewString,
	}
}

// WithIDFunc replaces the alert id generator
func (e *Evaluator) WithIDFunc(fn IDFunc) *Evaluator {
	if fn != nil {
		e.newID = fn
	}
	return e
}

// Evaluate returns one alert per enabled rule the sample breaches, in rule
// order. Rules naming a metric the sample does not carry are skipped.
func (e *Evaluator) Evaluate(sample types.Sample, rules []types.ThresholdRule) []types.Alert {
	var alerts []types.Alert

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}

		value, ok := sample.Value(rule.Metric)
		if !ok {
			e.logger.Debug().
				Str("metric", rule.Metric).
				Msg("Skipping rule for unknown metric")
			continue
		}

		if !rule.Breached(value) {
			continue
		}

		alerts = append(alerts, types.Alert{
			ID:            e.newID(),
			Metric:        rule.Metric,
			ObservedValue: value,
			Limit:         rule.Limit,
			Comparison:    rule.Comparison,
			Severity:      rule.Severity,
			Timestamp:     sample.Timestamp,
			Message:       types.DescribeBreach(rule.Metric, value, rule.Comparison, rule.Limit),
		})
	}

	return alerts
}
