// Package health implements the Lexicanum batch diagnostic probe and the
// per-sentry circuit breaker that quarantines unreliable penitent sentries.
package health

import (
	"sync"
	"time"
)

// State classifies a sentry's most recent diagnostic accuracy.
type State string

const (
	StateHealthy     State = "Healthy"
	StateDegraded    State = "Degraded"
	StateCompromised State = "Compromised"
	StateDead        State = "Dead"
)

// Config tunes the health monitor's thresholds. Zero value is invalid; use
// DefaultConfig.
type Config struct {
	HealthyThreshold     float64       // score >= this is Healthy
	DegradedFloor        float64       // score >= this (and < HealthyThreshold) is Degraded
	ConsecutiveFailuresForDead int      // consecutive probe failures before Dead
	CircuitBreakerTimeout time.Duration // time a quarantine stays in effect before a retry is allowed
	DegradedWeight       float64       // vote weight applied to a Degraded sentry's verdict
}

// DefaultConfig matches §4.4's default thresholds.
func DefaultConfig() Config {
	return Config{
		HealthyThreshold:           0.7,
		DegradedFloor:              0.3,
		ConsecutiveFailuresForDead: 3,
		CircuitBreakerTimeout:      5 * time.Minute,
		DegradedWeight:             0.5,
	}
}

// sentryHealth is the monitor's internal view of one sentry.
type sentryHealth struct {
	state               State
	score               float64
	consecutiveFailures int
	quarantinedAt       time.Time
	manuallyQuarantined bool
}

// Monitor tracks health state for a fixed population of sentries, gating
// consensus participation through a circuit breaker the way
// immunity_verifier's isCircuitOpen/recordFailure gate request handling.
type Monitor struct {
	mu      sync.Mutex
	config  Config
	sentries map[string]*sentryHealth
	now     func() time.Time
}

// NewMonitor builds a Monitor with the given config. now defaults to
// time.Now; tests may override it via WithClock for deterministic
// circuit-breaker-timeout assertions.
func NewMonitor(config Config) *Monitor {
	return &Monitor{
		config:   config,
		sentries: make(map[string]*sentryHealth),
		now:      time.Now,
	}
}

// WithClock overrides the monitor's time source.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

func (m *Monitor) entry(sentryID string) *sentryHealth {
	h, ok := m.sentries[sentryID]
	if !ok {
		h = &sentryHealth{state: StateHealthy, score: 1.0}
		m.sentries[sentryID] = h
	}
	return h
}

// RecordProbe records the outcome of a Lexicanum batch diagnostic: accuracy
// against the 10 labeled prompts, in [0,1]. A transition into Compromised
// trips the circuit breaker immediately.
func (m *Monitor) RecordProbe(sentryID string, accuracy float64) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.entry(sentryID)
	h.score = accuracy
	h.consecutiveFailures = 0

	switch {
	case accuracy >= m.config.HealthyThreshold:
		h.state = StateHealthy
	case accuracy >= m.config.DegradedFloor:
		h.state = StateDegraded
	default:
		h.state = StateCompromised
		h.quarantinedAt = m.now()
	}
	return h.state
}

// RecordProbeFailure records that a diagnostic probe call itself failed
// (network error, unparseable batch response). After
// ConsecutiveFailuresForDead in a row, the sentry transitions to Dead and is
// quarantined.
func (m *Monitor) RecordProbeFailure(sentryID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.entry(sentryID)
	h.consecutiveFailures++
	if h.consecutiveFailures >= m.config.ConsecutiveFailuresForDead {
		h.state = StateDead
		h.quarantinedAt = m.now()
	}
	return h.state
}

// IsQuarantined reports whether sentryID should be excluded from consensus
// right now: Compromised or Dead and still within the circuit breaker
// timeout, or manually quarantined by an operator.
func (m *Monitor) IsQuarantined(sentryID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.sentries[sentryID]
	if !ok {
		return false
	}
	if h.manuallyQuarantined {
		return true
	}
	if h.state != StateCompromised && h.state != StateDead {
		return false
	}
	return m.now().Sub(h.quarantinedAt) < m.config.CircuitBreakerTimeout
}

// Weight returns the vote weight a sentry's verdict should carry: 1.0 for
// Healthy, DegradedWeight for Degraded, 0 otherwise (quarantined sentries
// are excluded from consensus entirely by the caller before Weight matters).
func (m *Monitor) Weight(sentryID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.sentries[sentryID]
	if !ok {
		return 1.0
	}
	switch h.state {
	case StateHealthy:
		return 1.0
	case StateDegraded:
		return m.config.DegradedWeight
	default:
		return 0
	}
}

// State returns the last recorded state for a sentry, defaulting to Healthy
// for a sentry the monitor has never seen.
func (m *Monitor) State(sentryID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.sentries[sentryID]
	if !ok {
		return StateHealthy
	}
	return h.state
}

// Quarantine is the manual operator action referenced in §4.4; it is
// ledger-logged by the caller, not by Monitor itself.
func (m *Monitor) Quarantine(sentryID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(sentryID).manuallyQuarantined = true
}

// Release lifts a manual quarantine. It does not reset circuit-breaker
// state from automatic quarantines; RecordProbe must clear that.
func (m *Monitor) Release(sentryID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.sentries[sentryID]; ok {
		h.manuallyQuarantined = false
	}
}

// AllQuarantined reports whether every sentry in ids is currently
// quarantined, the condition under which the Vault fails closed (§4.4).
func (m *Monitor) AllQuarantined(ids []string) bool {
	if len(ids) == 0 {
		return true
	}
	for _, id := range ids {
		if !m.IsQuarantined(id) {
			return false
		}
	}
	return true
}
