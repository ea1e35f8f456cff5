package alerter

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/riskpulse/riskpulse/internal/config"
	"github.com/riskpulse/riskpulse/internal/monitor"
	"github.com/riskpulse/riskpulse/internal/notifier"
	"github.com/riskpulse/riskpulse/internal/types"
	"github.com/rs/zerolog"
)

// Suppression reasons reported to the Recorder
const (
	SuppressedDedup     = "dedup"
	SuppressedFlapping  = "flapping"
	SuppressedQueueFull = "queue_full"
)

const sendTimeout = 30 * time.Second

// Sender delivers notification events to named channels
type Sender interface {
	Send(ctx context.Context, event notifier.Event, channels []string) error
}

// Recorder observes routing decisions
type Recorder interface {
	NotificationSuppressed(reason string)
	FiringAlerts(n int)
}

type nopRecorder struct{}

func (nopRecorder) NotificationSuppressed(string) {}
func (nopRecorder) FiringAlerts(int)              {}

// ActiveAlert is the routing state of one alert condition (metric|comparison)
type ActiveAlert struct {
	Key          string      `json:"key"`
	Alert        types.Alert `json:"alert"`
	State        string      `json:"state"`
	FiredAt      time.Time   `json:"fired_at"`
	ResolvedAt   *time.Time  `json:"resolved_at,omitempty"`
	LastNotified time.Time   `json:"last_notified,omitempty"`
	Occurrences  int         `json:"occurrences"`
	Flapping     bool        `json:"flapping"`
}

type outbound struct {
	event    notifier.Event
	channels []string
}

// Engine manages alert lifecycle and routing. It consumes monitor tick events
// from a bounded queue so notification delivery never stalls sampling.
type Engine struct {
	config       *config.Config
	sender       Sender
	logger       zerolog.Logger
	flap         *FlapDetector
	escalation   *EscalationManager
	recorder     Recorder
	queue        chan monitor.TickEvent
	activeAlerts map[string]*ActiveAlert
	mu           sync.RWMutex
}

// NewEngine creates a new alert engine
func NewEngine(cfg *config.Config, sender Sender, logger zerolog.Logger) *Engine {
	logger = logger.With().Str("component", "alerter").Logger()
	behavior := cfg.Alerts.AlertBehavior

	queueSize := behavior.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}
	// a threshold below 2 would flag every first transition
	flapThreshold := behavior.FlapThreshold
	if flapThreshold < 2 {
		flapThreshold = math.MaxInt32
	}

	e := &Engine{
		config:       cfg,
		sender:       sender,
		logger:       logger,
		flap:         NewFlapDetector(logger, flapThreshold, behavior.FlapWindow),
		recorder:     nopRecorder{},
		queue:        make(chan monitor.TickEvent, queueSize),
		activeAlerts: make(map[string]*ActiveAlert),
	}

	rules := make(map[string]EscalationRule)
	for name, ch := range cfg.Alerts.Channels {
		if ch.EscalationDelay > 0 {
			rules[name] = EscalationRule{Channel: name, Delay: time.Duration(ch.EscalationDelay) * time.Second}
		}
	}
	e.escalation = NewEscalationManager(logger, rules, e.escalate)

	return e
}

// SetRecorder installs a routing recorder
func (e *Engine) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	e.recorder = r
}

// HandleTick enqueues a tick event. It never blocks; when the queue is full
// the event is dropped. Suitable as a monitor subscriber.
func (e *Engine) HandleTick(ev monitor.TickEvent) {
	select {
	case e.queue <- ev:
	default:
		e.recorder.NotificationSuppressed(SuppressedQueueFull)
		e.logger.Warn().
			Time("timestamp", ev.Sample.Timestamp).
			Int("alerts", len(ev.Alerts)).
			Msg("Alert queue full, dropping tick")
	}
}

// Run drains the queue until ctx is cancelled
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info().Msg("Alert engine started")
	defer e.escalation.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Alert engine stopped")
			return nil
		case ev := <-e.queue:
			e.Process(ctx, ev)
		}
	}
}

// Process updates alert state from one tick and sends the resulting
// notifications. Time is taken from the sample so replayed ticks behave the
// same as live ones.
func (e *Engine) Process(ctx context.Context, ev monitor.TickEvent) {
	now := ev.Sample.Timestamp
	dedup := e.config.Alerts.AlertBehavior.DeduplicationWindow

	var out []outbound

	e.mu.Lock()

	// settle flapping conditions before looking at the new sample
	for key, active := range e.activeAlerts {
		if !active.Flapping || !e.flap.CheckStable(key, now) {
			continue
		}
		active.Flapping = false
		if active.State == notifier.StateFiring {
			channels := e.getChannelsForSeverity(active.Alert.Severity)
			out = append(out, outbound{event: e.eventFor(active), channels: channels})
			active.LastNotified = now
			e.escalation.StartEscalation(active.Alert, channels)
		}
	}

	breached := make(map[string]bool, len(ev.Alerts))
	for _, alert := range ev.Alerts {
		key := alert.Key()
		if breached[key] {
			continue
		}
		breached[key] = true

		existing, exists := e.activeAlerts[key]
		if exists && existing.State == notifier.StateFiring {
			existing.Alert = alert
			existing.Occurrences++
			if existing.Flapping {
				continue
			}
			if now.Sub(existing.LastNotified) < dedup {
				e.recorder.NotificationSuppressed(SuppressedDedup)
				e.logger.Debug().
					Str("key", key).
					Msg("Alert already firing, skipping duplicate")
				continue
			}
			existing.LastNotified = now
			out = append(out, outbound{event: e.eventFor(existing), channels: e.getChannelsForSeverity(alert.Severity)})
			continue
		}

		flapping, _ := e.flap.RecordChange(key, now)
		active := &ActiveAlert{
			Key:         key,
			Alert:       alert,
			State:       notifier.StateFiring,
			FiredAt:     now,
			Occurrences: 1,
			Flapping:    flapping,
		}
		e.activeAlerts[key] = active

		e.logger.Info().
			Str("key", key).
			Str("alert_id", alert.ID).
			Str("severity", string(alert.Severity)).
			Float64("value", alert.ObservedValue).
			Bool("flapping", flapping).
			Msg("Alert fired")

		if flapping {
			e.recorder.NotificationSuppressed(SuppressedFlapping)
			continue
		}

		channels := e.getChannelsForSeverity(alert.Severity)
		active.LastNotified = now
		out = append(out, outbound{event: e.eventFor(active), channels: channels})
		e.escalation.StartEscalation(alert, channels)
	}

	for key, active := range e.activeAlerts {
		if active.State != notifier.StateFiring || breached[key] {
			continue
		}

		resolvedAt := now
		active.State = notifier.StateResolved
		active.ResolvedAt = &resolvedAt
		flapping, _ := e.flap.RecordChange(key, now)
		active.Flapping = flapping
		e.escalation.CancelEscalation(key)

		e.logger.Info().
			Str("key", key).
			Dur("duration", now.Sub(active.FiredAt)).
			Msg("Alert resolved")

		switch {
		case flapping:
			e.recorder.NotificationSuppressed(SuppressedFlapping)
		case e.config.NotifyResolved() && !active.LastNotified.IsZero():
			out = append(out, outbound{event: e.eventFor(active), channels: e.getChannelsForSeverity(active.Alert.Severity)})
		}
	}

	e.flap.Cleanup(now)
	e.recorder.FiringAlerts(e.firingCountLocked())
	e.mu.Unlock()

	for _, o := range out {
		e.send(ctx, o.event, o.channels)
	}
}

// Reset forgets all alert state and cancels pending escalations
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activeAlerts = make(map[string]*ActiveAlert)
	e.escalation.Stop()
	e.recorder.FiringAlerts(0)
}

// GetActiveAlerts returns the firing alert conditions, oldest first
func (e *Engine) GetActiveAlerts() []ActiveAlert {
	e.mu.RLock()
	defer e.mu.RUnlock()

	alerts := make([]ActiveAlert, 0, len(e.activeAlerts))
	for _, alert := range e.activeAlerts {
		if alert.State == notifier.StateFiring {
			alerts = append(alerts, *alert)
		}
	}
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].FiredAt.Equal(alerts[j].FiredAt) {
			return alerts[i].Key < alerts[j].Key
		}
		return alerts[i].FiredAt.Before(alerts[j].FiredAt)
	})
	return alerts
}

// getChannelsForSeverity returns notification channels for a given severity
func (e *Engine) getChannelsForSeverity(severity types.Severity) []string {
	// Check for severity-specific rule
	if rule, ok := e.config.Alerts.AlertRules[string(severity)]; ok {
		return rule.Channels
	}

	// Fall back to default
	if rule, ok := e.config.Alerts.AlertRules["default"]; ok {
		return rule.Channels
	}

	return []string{}
}

func (e *Engine) eventFor(active *ActiveAlert) notifier.Event {
	ev := notifier.Event{
		Alert:   active.Alert,
		State:   active.State,
		FiredAt: active.FiredAt,
	}
	if active.ResolvedAt != nil {
		resolvedAt := *active.ResolvedAt
		ev.ResolvedAt = &resolvedAt
	}
	return ev
}

func (e *Engine) firingCountLocked() int {
	n := 0
	for _, alert := range e.activeAlerts {
		if alert.State == notifier.StateFiring {
			n++
		}
	}
	return n
}

// escalate is the EscalationManager callback
func (e *Engine) escalate(alert types.Alert, channels []string) {
	e.mu.RLock()
	active, ok := e.activeAlerts[alert.Key()]
	var ev notifier.Event
	if ok {
		ev = e.eventFor(active)
	}
	e.mu.RUnlock()

	if !ok || ev.State != notifier.StateFiring {
		return
	}
	ev.Escalated = true
	e.send(context.Background(), ev, channels)
}

func (e *Engine) send(ctx context.Context, event notifier.Event, channels []string) {
	if len(channels) == 0 {
		e.logger.Debug().
			Str("alert_id", event.Alert.ID).
			Msg("No channels routed for alert")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := e.sender.Send(ctx, event, channels); err != nil {
		e.logger.Error().
			Err(err).
			Str("alert_id", event.Alert.ID).
			Str("state", event.State).
			Msg("Failed to send alert notification")
	}
}
