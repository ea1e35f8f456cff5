// Package metrics exposes monitor and alert routing instrumentation to Prometheus
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riskpulse/riskpulse/internal/types"
)

const namespace = "riskpulse"

// Recorder collects riskpulse metrics on a private registry. It satisfies
// monitor.Recorder and the alerter's delivery hooks.
type Recorder struct {
	registry *prometheus.Registry

	ticksSampled  prometheus.Counter
	ticksDropped  prometheus.Counter
	alertsRaised  *prometheus.CounterVec
	metricValue   *prometheus.GaugeVec
	seriesLength  prometheus.Gauge
	alertLogSize  prometheus.Gauge
	notifications *prometheus.CounterVec
	suppressed    *prometheus.CounterVec
	firing        prometheus.Gauge
}

// NewRecorder creates a recorder with Go and process collectors registered
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		ticksSampled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_sampled_total",
			Help:      "Ticks that produced a sample",
		}),
		ticksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_dropped_total",
			Help:      "Ticks dropped while the monitor was paused",
		}),
		alertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_raised_total",
			Help:      "Threshold breaches by metric and severity",
		}, []string{"metric", "severity"}),
		metricValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "metric_value",
			Help:      "Latest sampled value per metric",
		}, []string{"metric"}),
		seriesLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "series_length",
			Help:      "Samples currently held in the rolling series",
		}),
		alertLogSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alert_log_length",
			Help:      "Alerts currently held in the alert log",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification attempts by channel and result",
		}, []string{"channel", "result"}),
		suppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_suppressed_total",
			Help:      "Notifications skipped by reason",
		}, []string{"reason"}),
		firing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alerts_firing",
			Help:      "Alert conditions currently firing",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.ticksSampled,
		r.ticksDropped,
		r.alertsRaised,
		r.metricValue,
		r.seriesLength,
		r.alertLogSize,
		r.notifications,
		r.suppressed,
		r.firing,
	)
	return r
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// TickSampled records one produced sample and the alerts it raised
func (r *Recorder) TickSampled(sample types.Sample, alerts []types.Alert) {
	r.ticksSampled.Inc()
	for name, value := range sample.Values() {
		r.metricValue.WithLabelValues(name).Set(value)
	}
	for _, a := range alerts {
		r.alertsRaised.WithLabelValues(a.Metric, string(a.Severity)).Inc()
	}
}

// TickDropped records a tick suppressed by pause
func (r *Recorder) TickDropped() {
	r.ticksDropped.Inc()
}

// BufferLengths records the current series and alert log sizes
func (r *Recorder) BufferLengths(series, alerts int) {
	r.seriesLength.Set(float64(series))
	r.alertLogSize.Set(float64(alerts))
}

// NotificationSent records a delivery attempt on a channel
func (r *Recorder) NotificationSent(channel string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.notifications.WithLabelValues(channel, result).Inc()
}

// NotificationSuppressed records a notification skipped by dedup, flap or queue overflow
func (r *Recorder) NotificationSuppressed(reason string) {
	r.suppressed.WithLabelValues(reason).Inc()
}

// FiringAlerts records the number of firing alert conditions
func (r *Recorder) FiringAlerts(n int) {
	r.firing.Set(float64(n))
}
