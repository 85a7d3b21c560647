package health

import (
	"sync"
	"time"
)

// Known dependency names tracked by the orchestrator.
const (
	DepProfileProvider = "profile-provider"
	DepMediaStore      = "media-store"
	DepPublisher       = "publisher"
)

// DefaultFailureThreshold is the number of consecutive failures after
// which a dependency is reported unhealthy.
const DefaultFailureThreshold = 5

type record struct {
	consecutiveFailures int
	lastSuccess         time.Time
	lastFailure         time.Time
}

// Monitor is a per-dependency circuit breaker. Counters live for the
// process lifetime and are only cleared by an explicit Reset.
type Monitor struct {
	mu        sync.Mutex
	threshold int
	records   map[string]*record
	now       func() time.Time
}

// NewMonitor creates a monitor. threshold <= 0 selects the default.
func NewMonitor(threshold int) *Monitor {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	return &Monitor{
		threshold: threshold,
		records:   make(map[string]*record),
		now:       time.Now,
	}
}

// RecordSuccess clears the consecutive-failure counter for dep.
func (m *Monitor) RecordSuccess(dep string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.record(dep)
	r.consecutiveFailures = 0
	r.lastSuccess = m.now()
}

// RecordFailure increments the consecutive-failure counter for dep.
func (m *Monitor) RecordFailure(dep string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.record(dep)
	r.consecutiveFailures++
	r.lastFailure = m.now()
}

// IsHealthy reports whether dep is below the failure threshold.
// An unknown dependency is healthy.
func (m *Monitor) IsHealthy(dep string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[dep]
	if !ok {
		return true
	}
	return r.consecutiveFailures < m.threshold
}

// Score returns a 0..100 health score for dep: 100 at zero consecutive
// failures, degrading linearly to 0 at the failure threshold.
func (m *Monitor) Score(dep string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[dep]
	if !ok {
		return 100
	}
	score := 100 - r.consecutiveFailures*100/m.threshold
	if score < 0 {
		return 0
	}
	return score
}

// Scores returns a snapshot of all tracked dependency scores.
func (m *Monitor) Scores() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]int, len(m.records))
	for dep, r := range m.records {
		score := 100 - r.consecutiveFailures*100/m.threshold
		if score < 0 {
			score = 0
		}
		out[dep] = score
	}
	return out
}

// Reset clears the failure counter for dep. Operator action only.
func (m *Monitor) Reset(dep string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.records[dep]; ok {
		r.consecutiveFailures = 0
	}
}

// LastSuccess returns the time of the last recorded success for dep.
func (m *Monitor) LastSuccess(dep string) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.records[dep]; ok {
		return r.lastSuccess
	}
	return time.Time{}
}

func (m *Monitor) record(dep string) *record {
	r, ok := m.records[dep]
	if !ok {
		r = &record{}
		m.records[dep] = r
	}
	return r
}
