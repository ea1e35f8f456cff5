package notifier

import (
	"context"

	"github.com/rs/zerolog"
)

// LogChannel writes notifications to the structured log
type LogChannel struct {
	name   string
	logger zerolog.Logger
}

// NewLogChannel creates a log channel
func NewLogChannel(name string, logger zerolog.Logger) *LogChannel {
	return &LogChannel{
		name:   name,
		logger: logger.With().Str("channel", name).Logger(),
	}
}

// Name implements Channel
func (c *LogChannel) Name() string { return c.name }

// Send implements Channel
func (c *LogChannel) Send(_ context.Context, event Event) error {
	e := c.logger.Warn()
	if event.State == StateResolved {
		e = c.logger.Info()
	}
	e.Str("alert_id", event.Alert.ID).
		Str("metric", event.Alert.Metric).
		Float64("value", event.Alert.ObservedValue).
		Float64("limit", event.Alert.Limit).
		Str("severity", string(event.Alert.Severity)).
		Str("state", event.State).
		Bool("escalated", event.Escalated).
		Msg(event.Alert.Message)
	return nil
}
