package monitor

import (
	"sort"
	"sync"
	"time"
)

// Scheduler runs fn every interval until the returned cancel func is called.
// Cancel must be idempotent and must not wait for an in-flight fn.
type Scheduler interface {
	Every(interval time.Duration, fn func()) (cancel func())
}

// Clock returns the current time
type Clock func() time.Time

// SystemClock returns wall-clock UTC time truncated to milliseconds
func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// TickerScheduler runs each job on its own goroutine driven by a time.Ticker
type TickerScheduler struct{}

// Every implements Scheduler
func (TickerScheduler) Every(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				// A tick and a cancel can be ready together; cancel wins.
				select {
				case <-done:
					return
				default:
				}
				fn()
			}
		}
	}()

	return func() {
		once.Do(func() { close(done) })
	}
}

// ManualScheduler is a virtual-time scheduler. Jobs only run from Advance,
// on the caller's goroutine, so tests and offline simulations are deterministic.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	jobs   map[int]*manualJob
}

type manualJob struct {
	id       int
	interval time.Duration
	next     time.Time
	fn       func()
}

// NewManualScheduler creates a scheduler whose clock starts at start
func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{
		now:  start,
		jobs: make(map[int]*manualJob),
	}
}

// Now returns the virtual time. It can be used as a Clock.
func (m *ManualScheduler) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Every implements Scheduler
func (m *ManualScheduler) Every(interval time.Duration, fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.jobs[id] = &manualJob{
		id:       id,
		interval: interval,
		next:     m.now.Add(interval),
		fn:       fn,
	}

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.jobs, id)
	}
}

// Advance moves virtual time forward by d, running every job that falls due
// in chronological order. Jobs may cancel themselves or others while running.
func (m *ManualScheduler) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)

	for {
		job := m.nextDueLocked(target)
		if job == nil {
			break
		}
		m.now = job.next
		job.next = job.next.Add(job.interval)
		fn := job.fn

		m.mu.Unlock()
		fn()
		m.mu.Lock()
	}

	m.now = target
	m.mu.Unlock()
}

// Active returns the number of scheduled jobs
func (m *ManualScheduler) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// nextDueLocked returns the earliest job due at or before target, ties broken
// by registration order. Must be called with m.mu held.
func (m *ManualScheduler) nextDueLocked(target time.Time) *manualJob {
	due := make([]*manualJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		if !job.next.After(target) {
			due = append(due, job)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].next.Equal(due[j].next) {
			return due[i].id < due[j].id
		}
		return due[i].next.Before(due[j].next)
	})
	return due[0]
}
