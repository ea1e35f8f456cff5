package alerter

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FlapDetector tracks rapid fire/resolve transitions and suppresses flapping alerts.
type FlapDetector struct {
	log       zerolog.Logger
	threshold int           // number of transitions to trigger flap
	window    time.Duration // time window for threshold
	mu        sync.Mutex
	history   map[string][]time.Time // key: metric|comparison -> transition times
	flapping  map[string]bool
}

// NewFlapDetector creates a new flap detector.
func NewFlapDetector(log zerolog.Logger, threshold int, window time.Duration) *FlapDetector {
	return &FlapDetector{
		log:       log.With().Str("component", "flap-detector").Logger(),
		threshold: threshold,
		window:    window,
		history:   make(map[string][]time.Time),
		flapping:  make(map[string]bool),
	}
}

// RecordChange records a transition at the given time and returns whether the
// condition is flapping. If flapping just started, returns (true, true). If
// already flapping, returns (true, false). Otherwise (false, false).
func (f *FlapDetector) RecordChange(key string, at time.Time) (flapping bool, justStarted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pruned := prune(f.history[key], at.Add(-f.window))
	pruned = append(pruned, at)
	f.history[key] = pruned

	if len(pruned) >= f.threshold {
		wasFlapping := f.flapping[key]
		f.flapping[key] = true
		if !wasFlapping {
			f.log.Warn().Str("key", key).Int("changes", len(pruned)).Msg("flapping detected")
			return true, true
		}
		return true, false
	}

	return f.flapping[key], false
}

// IsFlapping returns whether a condition is currently marked as flapping.
func (f *FlapDetector) IsFlapping(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flapping[key]
}

// CheckStable reports whether a flapping condition has settled, i.e. fewer
// than threshold transitions remain inside the window ending at now.
func (f *FlapDetector) CheckStable(key string, now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.flapping[key] {
		return false
	}

	if len(prune(f.history[key], now.Add(-f.window))) < f.threshold {
		delete(f.flapping, key)
		f.log.Info().Str("key", key).Msg("flapping stopped")
		return true
	}
	return false
}

// Cleanup removes history older than the window. Call periodically.
func (f *FlapDetector) Cleanup(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cutoff := now.Add(-f.window)
	for key, timestamps := range f.history {
		pruned := prune(timestamps, cutoff)
		if len(pruned) == 0 {
			delete(f.history, key)
			delete(f.flapping, key)
		} else {
			f.history[key] = pruned
		}
	}
}

func prune(timestamps []time.Time, cutoff time.Time) []time.Time {
	out := make([]time.Time, 0, len(timestamps)+1)
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			out = append(out, ts)
		}
	}
	return out
}
