package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/riskpulse/riskpulse/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickSampled(t *testing.T) {
	r := NewRecorder()

	sample := types.Sample{Timestamp: time.Now(), RiskScore: 9, SystemLoad: 42.5, ErrorRate: 0.3}
	alerts := []types.Alert{
		{Metric: types.MetricRiskScore, Severity: types.SeverityHigh},
		{Metric: types.MetricRiskScore, Severity: types.SeverityHigh},
		{Metric: types.MetricErrorRate, Severity: types.SeverityLow},
	}
	r.TickSampled(sample, alerts)
	r.TickSampled(sample, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.ticksSampled))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.alertsRaised.WithLabelValues(types.MetricRiskScore, "high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.alertsRaised.WithLabelValues(types.MetricErrorRate, "low")))
	assert.Equal(t, 42.5, testutil.ToFloat64(r.metricValue.WithLabelValues(types.MetricSystemLoad)))
}

func TestBufferAndDropCounters(t *testing.T) {
	r := NewRecorder()

	r.TickDropped()
	r.TickDropped()
	r.BufferLengths(7, 3)
	r.FiringAlerts(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.ticksDropped))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.seriesLength))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.alertLogSize))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.firing))
}

func TestNotificationCounters(t *testing.T) {
	r := NewRecorder()

	r.NotificationSent("telegram", nil)
	r.NotificationSent("telegram", errors.New("timeout"))
	r.NotificationSent("kafka", nil)
	r.NotificationSuppressed("dedup")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.notifications.WithLabelValues("telegram", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.notifications.WithLabelValues("telegram", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.notifications.WithLabelValues("kafka", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.suppressed.WithLabelValues("dedup")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRecorder()
	r.TickSampled(types.Sample{RiskScore: 1}, nil)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "riskpulse_ticks_sampled_total 1")
	assert.Contains(t, string(body), `riskpulse_metric_value{metric="riskScore"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
