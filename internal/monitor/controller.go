package monitor

import (
	"sync"
	"time"

	"github.com/riskpulse/riskpulse/internal/evaluator"
	"github.com/riskpulse/riskpulse/internal/sampler"
	"github.com/riskpulse/riskpulse/internal/types"
	"github.com/rs/zerolog"
)

type runState int

const (
	stateStopped runState = iota
	stateRunning
	statePaused
)

func (s runState) String() string {
	switch s {
	case stateRunning:
		return "running"
	case statePaused:
		return "paused"
	default:
		return "stopped"
	}
}

// Settings configure a monitoring session
type Settings struct {
	Interval      time.Duration
	MaxDataPoints int
}

// Validate rejects non-positive capacities and intervals that are not a
// positive whole number of milliseconds, the resolution snapshots carry.
func (s Settings) Validate() error {
	if s.Interval <= 0 {
		return &ConfigError{Field: "interval", Reason: "must be positive"}
	}
	if s.Interval%time.Millisecond != 0 {
		return &ConfigError{Field: "interval", Reason: "must be a whole number of milliseconds"}
	}
	if s.MaxDataPoints <= 0 {
		return &ConfigError{Field: "max_data_points", Reason: "must be positive"}
	}
	return nil
}

// RuleEvaluator turns a sample into the alerts it raises
type RuleEvaluator interface {
	Evaluate(sample types.Sample, rules []types.ThresholdRule) []types.Alert
}

// Recorder receives instrumentation callbacks from the tick handler
type Recorder interface {
	TickSampled(sample types.Sample, alerts []types.Alert)
	TickDropped()
	BufferLengths(series, alerts int)
}

type nopRecorder struct{}

func (nopRecorder) TickSampled(types.Sample, []types.Alert) {}
func (nopRecorder) TickDropped()                            {}
func (nopRecorder) BufferLengths(int, int)                  {}

// Options wire a Controller. Zero fields get defaults, except Logger.
type Options struct {
	Sampler        sampler.Sampler
	Evaluator      RuleEvaluator
	Scheduler      Scheduler
	Clock          Clock
	Logger         zerolog.Logger
	Rules          []types.ThresholdRule
	AlertRetention int
	Recorder       Recorder
}

type subscriber struct {
	id int
	fn func(TickEvent)
}

// Controller owns a monitoring session: it samples on a schedule, keeps the
// rolling series and alert log, evaluates rules and notifies subscribers.
type Controller struct {
	sampler   sampler.Sampler
	evaluator RuleEvaluator
	scheduler Scheduler
	clock     Clock
	logger    zerolog.Logger
	recorder  Recorder

	// mu guards everything below; notifyMu orders subscriber delivery
	mu        sync.Mutex
	notifyMu  sync.Mutex
	state     runState
	session   uint64
	cancel    func()
	settings  Settings
	startedAt time.Time
	rules     []types.ThresholdRule
	series    *SeriesBuffer
	alerts    *AlertLog
	sampled   uint64
	dropped   uint64
	raised    uint64

	subMu       sync.RWMutex
	subscribers []subscriber
	nextSubID   int
}

// New creates a stopped controller
func New(opts Options) *Controller {
	c := &Controller{
		sampler:   opts.Sampler,
		evaluator: opts.Evaluator,
		scheduler: opts.Scheduler,
		clock:     opts.Clock,
		logger:    opts.Logger.With().Str("component", "monitor").Logger(),
		recorder:  opts.Recorder,
		rules:     cloneRules(opts.Rules),
		series:    NewSeriesBuffer(1),
		alerts:    NewAlertLog(opts.AlertRetention),
	}
	if c.sampler == nil {
		c.sampler = sampler.NewRandomWalk(nil, nil)
	}
	if c.evaluator == nil {
		c.evaluator = evaluator.NewEvaluator(opts.Logger)
	}
	if c.scheduler == nil {
		c.scheduler = TickerScheduler{}
	}
	if c.clock == nil {
		c.clock = SystemClock
	}
	if c.recorder == nil {
		c.recorder = nopRecorder{}
	}
	return c
}

// Start begins a session. It produces one sample immediately and then one
// per interval. Starting a running or paused monitor is a no-op.
// Subscribers must not call Start from their handler.
func (c *Controller) Start(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != stateStopped {
		c.mu.Unlock()
		c.logger.Debug().Msg("Monitor already running, ignoring start")
		return nil
	}

	c.settings = s
	c.series.Resize(s.MaxDataPoints)
	c.session++
	session := c.session
	c.state = stateRunning
	c.startedAt = c.clock()

	event, ok := c.produceLocked()
	c.cancel = c.scheduler.Every(s.Interval, func() { c.tick(session) })

	c.notifyMu.Lock()
	c.mu.Unlock()
	if ok {
		c.broadcast(event)
	}
	c.notifyMu.Unlock()

	c.logger.Info().
		Dur("interval", s.Interval).
		Int("max_data_points", s.MaxDataPoints).
		Msg("Monitor started")
	return nil
}

// Pause suppresses sampling; ticks that fire while paused are dropped
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateRunning {
		return
	}
	c.state = statePaused
	c.logger.Info().Msg("Monitor paused")
}

// Resume restores sampling after Pause
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != statePaused {
		return
	}
	c.state = stateRunning
	c.logger.Info().Msg("Monitor resumed")
}

// Stop cancels the schedule. Buffers are kept.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateStopped {
		return
	}
	c.state = stateStopped
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.logger.Info().Msg("Monitor stopped")
}

// Reset clears the series and the alert log without touching the run state
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.series.Clear()
	c.alerts.Clear()
	c.recorder.BufferLengths(0, 0)
	c.logger.Info().Msg("Monitor buffers reset")
}

// UpdateRule applies patch to every rule watching metric
func (c *Controller) UpdateRule(metric string, patch types.RulePatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	updated := cloneRules(c.rules)
	matched := false
	for i, rule := range updated {
		if rule.Metric != metric {
			continue
		}
		matched = true
		next := rule.Apply(patch)
		if err := next.Validate(); err != nil {
			return &ConfigError{Field: "rule", Reason: err.Error()}
		}
		updated[i] = next
	}
	if !matched {
		return ErrUnknownRule
	}

	c.rules = updated
	c.logger.Info().Str("metric", metric).Msg("Rule updated")
	return nil
}

// SetRules replaces the rule set
func (c *Controller) SetRules(rules []types.ThresholdRule) error {
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return &ConfigError{Field: "rule", Reason: err.Error()}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = cloneRules(rules)
	c.logger.Info().Int("rule_count", len(rules)).Msg("Rules replaced")
	return nil
}

// Rules returns a copy of the rule set
func (c *Controller) Rules() []types.ThresholdRule {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneRules(c.rules)
}

// State returns copies of the series, alerts and rules plus run flags
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Series:      c.series.Items(),
		Alerts:      c.alerts.Items(),
		Rules:       cloneRules(c.rules),
		IsConnected: c.state != stateStopped,
		IsPaused:    c.state == statePaused,
	}
}

// Status returns counters and session settings
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:          c.state.String(),
		IsConnected:    c.state != stateStopped,
		IsPaused:       c.state == statePaused,
		Interval:       c.settings.Interval,
		IntervalMs:     c.settings.Interval.Milliseconds(),
		MaxDataPoints:  c.settings.MaxDataPoints,
		AlertRetention: c.alerts.Cap(),
		SeriesLength:   c.series.Len(),
		AlertCount:     c.alerts.Len(),
		TicksSampled:   c.sampled,
		TicksDropped:   c.dropped,
		AlertsRaised:   c.raised,
		StartedAt:      c.startedAt,
	}
}

// ExportSnapshot returns a deep copy of the current data. It has no side effects.
func (c *Controller) ExportSnapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: c.clock(),
		Settings: SessionSettings{
			IntervalMs:     c.settings.Interval.Milliseconds(),
			MaxDataPoints:  c.settings.MaxDataPoints,
			AlertRetention: c.alerts.Cap(),
		},
		IsConnected: c.state != stateStopped,
		IsPaused:    c.state == statePaused,
		Series:      c.series.Items(),
		Alerts:      c.alerts.Items(),
		Rules:       cloneRules(c.rules),
	}
}

// Subscribe registers fn to receive every tick event. Handlers run on the
// tick goroutine and should return quickly.
func (c *Controller) Subscribe(fn func(TickEvent)) (unsubscribe func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.nextSubID++
	id := c.nextSubID
	c.subscribers = append(c.subscribers, subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			for i, s := range c.subscribers {
				if s.id == id {
					c.subscribers = append(c.subscribers[:i:i], c.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

// tick is the scheduled handler for one session
func (c *Controller) tick(session uint64) {
	c.mu.Lock()
	if c.session != session || c.state == stateStopped {
		c.mu.Unlock()
		return
	}
	if c.state == statePaused {
		c.dropped++
		c.recorder.TickDropped()
		c.mu.Unlock()
		c.logger.Debug().Msg("Tick dropped while paused")
		return
	}

	event, ok := c.produceLocked()

	c.notifyMu.Lock()
	c.mu.Unlock()
	if ok {
		c.broadcast(event)
	}
	c.notifyMu.Unlock()
}

// produceLocked samples, stores and evaluates one tick. Must be called with c.mu held.
func (c *Controller) produceLocked() (TickEvent, bool) {
	var prev *types.Sample
	if last, ok := c.series.Newest(); ok {
		prev = &last
	}

	sample := c.sampler.Next(c.clock(), prev)
	if err := c.series.Append(sample); err != nil {
		c.logger.Warn().
			Err(err).
			Time("timestamp", sample.Timestamp).
			Msg("Dropping sample")
		return TickEvent{}, false
	}

	alerts := c.evaluator.Evaluate(sample, c.rules)
	for _, alert := range alerts {
		c.alerts.Append(alert)
		c.logger.Info().
			Str("alert_id", alert.ID).
			Str("metric", alert.Metric).
			Float64("value", alert.ObservedValue).
			Str("severity", string(alert.Severity)).
			Msg("Threshold breached")
	}

	c.sampled++
	c.raised += uint64(len(alerts))
	c.recorder.TickSampled(sample, alerts)
	c.recorder.BufferLengths(c.series.Len(), c.alerts.Len())

	out := make([]types.Alert, len(alerts))
	copy(out, alerts)
	return TickEvent{Sample: sample, Alerts: out}, true
}

// broadcast delivers an event to a snapshot of the subscriber list
func (c *Controller) broadcast(event TickEvent) {
	c.subMu.RLock()
	subs := make([]subscriber, len(c.subscribers))
	copy(subs, c.subscribers)
	c.subMu.RUnlock()

	for _, s := range subs {
		s.fn(event)
	}
}

func cloneRules(rules []types.ThresholdRule) []types.ThresholdRule {
	out := make([]types.ThresholdRule, len(rules))
	copy(out, rules)
	return out
}
