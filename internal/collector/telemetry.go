package collector

import (
	"math"
	"sync"
	"time"

	"github.com/riskpulse/riskpulse/internal/sampler"
	"github.com/riskpulse/riskpulse/internal/types"
)

// Reading is the latest telemetry value received for a metric
type Reading struct {
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
	Path  string    `json:"path"`
}

// Cache holds the latest reading per metric
type Cache struct {
	mu     sync.RWMutex
	latest map[string]Reading
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{latest: make(map[string]Reading)}
}

// Set stores a reading, ignoring one older than what is already cached
func (c *Cache) Set(metric string, r Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.latest[metric]; ok && r.At.Before(cur.At) {
		return
	}
	c.latest[metric] = r
}

// Get returns the latest reading for metric
func (c *Cache) Get(metric string) (Reading, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.latest[metric]
	return r, ok
}

// Readings returns a copy of all cached readings
func (c *Cache) Readings() map[string]Reading {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Reading, len(c.latest))
	for k, v := range c.latest {
		out[k] = v
	}
	return out
}

// Sampler builds monitor samples from cached telemetry. A metric with no
// reading yet keeps its previous value, or starts at its profile baseline.
type Sampler struct {
	cache    *Cache
	profiles map[string]sampler.Profile
}

var _ sampler.Sampler = (*Sampler)(nil)

// NewSampler creates a telemetry-backed sampler
func NewSampler(cache *Cache, profiles map[string]sampler.Profile) *Sampler {
	merged := sampler.DefaultProfiles()
	for name, p := range profiles {
		if types.IsKnownMetric(name) {
			merged[name] = p
		}
	}
	return &Sampler{cache: cache, profiles: merged}
}

func prevValue(prev *types.Sample, name string) (float64, bool) {
	if prev == nil {
		return 0, false
	}
	v, ok := prev.Value(name)
	return v, ok && isFinite(v)
}

// Next implements sampler.Sampler
func (s *Sampler) Next(at time.Time, prev *types.Sample) types.Sample {
	next := types.Sample{Timestamp: at}
	for _, name := range types.MetricNames() {
		var v float64
		if r, ok := s.cache.Get(name); ok && isFinite(r.Value) {
			v = r.Value
		} else if p, ok := prevValue(prev, name); ok {
			v = p
		} else {
			v = s.profiles[name].Baseline
		}
		next = next.WithValue(name, math.Max(0, v))
	}
	return next
}
