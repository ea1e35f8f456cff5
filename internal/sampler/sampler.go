// Package sampler produces metric samples for the monitor. RandomWalk is the
// synthetic source used when no telemetry collector is configured.
package sampler

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/riskpulse/riskpulse/internal/types"
)

// Sampler produces the next sample. prev is nil for the first sample of a
// session, which makes any implementation restartable.
type Sampler interface {
	Next(at time.Time, prev *types.Sample) types.Sample
}

// Func adapts a plain function to Sampler
type Func func(at time.Time, prev *types.Sample) types.Sample

// Next calls f
func (f Func) Next(at time.Time, prev *types.Sample) types.Sample {
	return f(at, prev)
}

// Profile is the baseline and perturbation range of one metric
type Profile struct {
	Baseline float64 `yaml:"baseline" json:"baseline"`
	Range    float64 `yaml:"range" json:"range"`
}

// DefaultProfiles returns the built-in baselines and ranges
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		types.MetricRiskScore:  {Baseline: 5, Range: 2},
		types.MetricSystemLoad: {Baseline: 45, Range: 10},
		types.MetricErrorRate:  {Baseline: 1, Range: 0.5},
	}
}

// RandomWalk perturbs each metric of the previous sample by a uniform amount
// in [-range/2, +range/2], clamped at zero.
type RandomWalk struct {
	profiles map[string]Profile
	mu       sync.Mutex
	rng      *rand.Rand
}

// NewRandomWalk creates a random-walk sampler. Metrics missing from profiles
// use the default profile; a nil rng is seeded from the clock.
func NewRandomWalk(profiles map[string]Profile, rng *rand.Rand) *RandomWalk {
	merged := DefaultProfiles()
	for name, p := range profiles {
		if types.IsKnownMetric(name) {
			merged[name] = p
		}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &RandomWalk{profiles: merged, rng: rng}
}

// Next implements Sampler
func (w *RandomWalk) Next(at time.Time, prev *types.Sample) types.Sample {
	next := types.Sample{Timestamp: at}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, name := range types.MetricNames() {
		profile := w.profiles[name]
		if prev == nil {
			next = next.WithValue(name, math.Max(0, profile.Baseline))
			continue
		}
		last, _ := prev.Value(name)
		delta := (w.rng.Float64() - 0.5) * profile.Range
		next = next.WithValue(name, math.Max(0, last+delta))
	}
	return next
}

// Profiles returns a copy of the effective profiles
func (w *RandomWalk) Profiles() map[string]Profile {
	out := make(map[string]Profile, len(w.profiles))
	for k, v := range w.profiles {
		out[k] = v
	}
	return out
}
