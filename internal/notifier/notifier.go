package notifier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/riskpulse/riskpulse/internal/config"
	"github.com/riskpulse/riskpulse/internal/types"
	"github.com/rs/zerolog"
)

// Notification states
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Event is one notification about an alert condition
type Event struct {
	Alert      types.Alert `json:"alert"`
	State      string      `json:"state"`
	FiredAt    time.Time   `json:"fired_at"`
	ResolvedAt *time.Time  `json:"resolved_at,omitempty"`
	Escalated  bool        `json:"escalated,omitempty"`
}

// Channel delivers events to one destination
type Channel interface {
	Name() string
	Send(ctx context.Context, event Event) error
}

// DeliveryRecorder observes delivery attempts
type DeliveryRecorder interface {
	NotificationSent(channel string, err error)
}

// Notifier routes events to named channels with retry
type Notifier struct {
	logger        zerolog.Logger
	channels      map[string]Channel
	filters       map[string]map[types.Severity]bool
	retryAttempts int
	retryDelay    time.Duration
	recorder      DeliveryRecorder
}

// NewNotifier creates a notifier without channels
func NewNotifier(logger zerolog.Logger, retryAttempts int, retryDelay time.Duration) *Notifier {
	if retryAttempts < 1 {
		retryAttempts = 1
	}
	return &Notifier{
		logger:        logger.With().Str("component", "notifier").Logger(),
		channels:      make(map[string]Channel),
		filters:       make(map[string]map[types.Severity]bool),
		retryAttempts: retryAttempts,
		retryDelay:    retryDelay,
	}
}

// FromConfig builds a notifier with every channel in alerts.yaml. Secrets are
// read from the environment named by each channel.
func FromConfig(cfg config.AlertConfig, logger zerolog.Logger) (*Notifier, error) {
	n := NewNotifier(logger, cfg.AlertBehavior.RetryAttempts, cfg.AlertBehavior.RetryDelay)

	for name, ch := range cfg.Channels {
		var channel Channel
		switch ch.Type {
		case config.ChannelApprise:
			channel = NewAppriseChannel(name, os.Getenv(ch.URLEnv), os.Getenv("APPRISE_API_URL"), logger)
		case config.ChannelTelegram:
			chatID, err := strconv.ParseInt(os.Getenv(ch.ChatIDEnv), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("channel %s: %s must hold a numeric chat id: %w", name, ch.ChatIDEnv, err)
			}
			channel = NewTelegramChannel(name, os.Getenv(ch.TokenEnv), chatID)
		case config.ChannelKafka:
			channel = NewKafkaChannel(name, ch.Brokers, ch.Topic)
		case config.ChannelLog:
			channel = NewLogChannel(name, logger)
		default:
			return nil, fmt.Errorf("channel %s: unsupported type %s", name, ch.Type)
		}
		n.AddChannel(channel, ch.SeverityFilter...)
	}

	return n, nil
}

// AddChannel registers a channel. When severities are given the channel only
// receives events of those severities.
func (n *Notifier) AddChannel(ch Channel, severities ...string) {
	n.channels[ch.Name()] = ch
	if len(severities) == 0 {
		delete(n.filters, ch.Name())
		return
	}
	allowed := make(map[types.Severity]bool, len(severities))
	for _, s := range severities {
		if sev, err := types.ParseSeverity(s); err == nil {
			allowed[sev] = true
		}
	}
	n.filters[ch.Name()] = allowed
}

// SetRecorder installs a delivery recorder
func (n *Notifier) SetRecorder(r DeliveryRecorder) {
	n.recorder = r
}

// Channels returns the registered channel names
func (n *Notifier) Channels() []string {
	names := make([]string, 0, len(n.channels))
	for name := range n.channels {
		names = append(names, name)
	}
	return names
}

// Send delivers an event to the named channels. Every channel is attempted;
// the returned error joins the failures.
func (n *Notifier) Send(ctx context.Context, event Event, channelNames []string) error {
	var errs []error

	for _, name := range channelNames {
		channel, ok := n.channels[name]
		if !ok {
			n.logger.Warn().
				Str("channel", name).
				Msg("Channel not configured, skipping")
			continue
		}

		if allowed, filtered := n.filters[name]; filtered && !allowed[event.Alert.Severity] {
			n.logger.Debug().
				Str("channel", name).
				Str("severity", string(event.Alert.Severity)).
				Msg("Severity filtered for channel")
			continue
		}

		err := Retry(ctx, n.logger, n.retryAttempts, n.retryDelay, func() error {
			return channel.Send(ctx, event)
		})
		if n.recorder != nil {
			n.recorder.NotificationSent(name, err)
		}

		if err != nil {
			n.logger.Error().
				Err(err).
				Str("channel", name).
				Str("alert_id", event.Alert.ID).
				Msg("Failed to send notification")
			errs = append(errs, fmt.Errorf("channel %s: %w", name, err))
			continue
		}

		n.logger.Info().
			Str("channel", name).
			Str("alert_id", event.Alert.ID).
			Str("state", event.State).
			Msg("Notification sent")
	}

	return errors.Join(errs...)
}

// Close releases channel resources
func (n *Notifier) Close() error {
	var errs []error
	for _, ch := range n.channels {
		if c, ok := ch.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("channel %s: %w", ch.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// FormatMessage renders an event as a title and plain-text body
func FormatMessage(event Event) (title, body string) {
	var emoji string
	switch event.Alert.Severity {
	case types.SeverityCritical:
		emoji = "🔴"
	case types.SeverityHigh:
		emoji = "🟠"
	case types.SeverityMedium:
		emoji = "⚠️"
	default:
		emoji = "ℹ️"
	}

	if event.State == StateResolved {
		emoji = "🟢"
	}

	prefix := ""
	if event.Escalated {
		prefix = "ESCALATED "
	}

	a := event.Alert
	title = fmt.Sprintf("%s %sRiskPulse Alert: %s", emoji, prefix, a.Metric)
	body = fmt.Sprintf("%s\n\nMetric: %s\nValue: %.2f\nLimit: %s %.2f\nSeverity: %s\nState: %s\nFired at: %s",
		a.Message, a.Metric, a.ObservedValue, a.Comparison, a.Limit, a.Severity, event.State,
		event.FiredAt.Format(time.RFC3339))

	if event.ResolvedAt != nil {
		body += fmt.Sprintf("\nResolved at: %s (after %s)",
			event.ResolvedAt.Format(time.RFC3339), event.ResolvedAt.Sub(event.FiredAt).Round(time.Second))
	}

	return title, body
}
