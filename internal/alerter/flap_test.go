package alerter

import (
	"sync"
	"testing"
	"time"

	"github.com/riskpulse/riskpulse/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestFlapDetector(t *testing.T) {
	f := NewFlapDetector(zerolog.Nop(), 3, time.Minute)
	key := "riskScore|above"

	flapping, started := f.RecordChange(key, t0)
	assert.False(t, flapping)
	assert.False(t, started)

	f.RecordChange(key, t0.Add(10*time.Second))
	flapping, started = f.RecordChange(key, t0.Add(20*time.Second))
	assert.True(t, flapping)
	assert.True(t, started)

	flapping, started = f.RecordChange(key, t0.Add(30*time.Second))
	assert.True(t, flapping)
	assert.False(t, started)
	assert.True(t, f.IsFlapping(key))

	assert.False(t, f.CheckStable(key, t0.Add(40*time.Second)))
	assert.True(t, f.CheckStable(key, t0.Add(2*time.Minute)))
	assert.False(t, f.IsFlapping(key))
	assert.False(t, f.CheckStable(key, t0.Add(3*time.Minute)), "only reports the transition once")
}

func TestFlapDetectorWindow(t *testing.T) {
	f := NewFlapDetector(zerolog.Nop(), 3, time.Minute)
	key := "errorRate|above"

	// transitions spread wider than the window never flap
	for i := 0; i < 10; i++ {
		flapping, _ := f.RecordChange(key, t0.Add(time.Duration(i)*45*time.Second))
		assert.False(t, flapping)
	}
}

func TestFlapDetectorCleanup(t *testing.T) {
	f := NewFlapDetector(zerolog.Nop(), 2, time.Minute)

	f.RecordChange("a", t0)
	f.RecordChange("a", t0.Add(time.Second))
	f.RecordChange("b", t0.Add(50*time.Second))
	assert.True(t, f.IsFlapping("a"))

	f.Cleanup(t0.Add(90 * time.Second))

	assert.False(t, f.IsFlapping("a"))
	assert.NotContains(t, f.history, "a")
	assert.Contains(t, f.history, "b")
}

func TestEscalationFires(t *testing.T) {
	var mu sync.Mutex
	var got []string
	m := NewEscalationManager(zerolog.Nop(), map[string]EscalationRule{
		"pager": {Channel: "pager", Delay: 20 * time.Millisecond},
		"chat":  {Channel: "chat", Delay: 10 * time.Millisecond},
	}, func(alert types.Alert, channels []string) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, channels...)
	})

	alert := breach(types.MetricRiskScore, types.SeverityCritical, 9)
	m.StartEscalation(alert, []string{"pager", "chat", "audit"})
	assert.Equal(t, 1, m.Pending())

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"pager", "chat"}, got)
	assert.Eventually(t, func() bool { return m.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestEscalationCancel(t *testing.T) {
	fired := make(chan struct{}, 1)
	m := NewEscalationManager(zerolog.Nop(), map[string]EscalationRule{
		"pager": {Channel: "pager", Delay: 30 * time.Millisecond},
	}, func(types.Alert, []string) { fired <- struct{}{} })

	alert := breach(types.MetricRiskScore, types.SeverityCritical, 9)
	m.StartEscalation(alert, []string{"audit"})
	assert.Equal(t, 0, m.Pending(), "no channel has a delay")

	m.StartEscalation(alert, []string{"pager"})
	m.CancelEscalation(alert.Key())
	assert.Equal(t, 0, m.Pending())

	m.StartEscalation(alert, []string{"pager"})
	m.Stop()

	select {
	case <-fired:
		t.Fatal("cancelled escalation fired")
	case <-time.After(80 * time.Millisecond):
	}
}
