// Package circuit implements the Circuit Breaker (C5): a per-agent-kind
// health state machine guarding delegation, grounded on the reference
// repo's rate limiter — a mutex-guarded Store with atomic
// check-and-record — generalised from a token/count window into a
// closed/open/half-open breaker per spec.md §4.4.
package circuit

import (
	"sync"
	"time"
)

// State is one of the three circuit states.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Config tunes the breaker. Zero values are replaced by the spec.md §6.5
// defaults in NewBreaker.
type Config struct {
	FailureThreshold int           // default 5
	CooldownMs       time.Duration // default 60s
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.CooldownMs <= 0 {
		c.CooldownMs = 60 * time.Second
	}
	return c
}

// circuitState is the mutable per-agent record, mirroring spec.md §3.6.
type circuitState struct {
	state          State
	failureCount   int
	successCount   int
	lastFailure    *time.Time
	lastSuccess    *time.Time
	openedAt       *time.Time
	halfOpenProbed bool
}

// Snapshot is the read-only view of a circuit's state, per spec.md §3.6.
type Snapshot struct {
	State        State
	FailureCount int
	SuccessCount int
	LastFailure  *time.Time
	LastSuccess  *time.Time
	OpenedAt     *time.Time
}

// Breaker is the Circuit Breaker (C5): one state machine per agent kind,
// guarded by a single mutex — mutation only ever happens through
// RecordSuccess/RecordFailure, and IsAllowed's only side effect is the
// timed open->half-open transition, exactly as spec.md §4.4 requires.
type Breaker struct {
	mu     sync.Mutex
	cfg    Config
	agents map[string]*circuitState
}

// NewBreaker creates a circuit breaker with the given config.
func NewBreaker(cfg Config) *Breaker {
	return &Breaker{
		cfg:    cfg.withDefaults(),
		agents: make(map[string]*circuitState),
	}
}

func (b *Breaker) stateFor(agent string) *circuitState {
	s, ok := b.agents[agent]
	if !ok {
		s = &circuitState{state: StateClosed}
		b.agents[agent] = s
	}
	return s
}

// IsAllowed reports whether a delegation to agent may proceed. If the
// circuit is open and the cooldown has elapsed, this call itself performs
// the open->half-open transition and returns true for exactly one probe;
// subsequent calls return false until that probe resolves.
func (b *Breaker) IsAllowed(agent string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stateFor(agent)

	switch s.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if s.halfOpenProbed {
			return false
		}
		s.halfOpenProbed = true
		return true
	case StateOpen:
		if s.openedAt != nil && time.Since(*s.openedAt) >= b.cfg.CooldownMs {
			s.state = StateHalfOpen
			s.halfOpenProbed = true
			return true
		}
		return false
	}
	return false
}

// RecordSuccess records a successful delegation outcome.
func (b *Breaker) RecordSuccess(agent string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stateFor(agent)
	now := time.Now()
	s.successCount++
	s.lastSuccess = &now

	switch s.state {
	case StateHalfOpen:
		s.state = StateClosed
		s.failureCount = 0
		s.halfOpenProbed = false
		s.openedAt = nil
	case StateClosed:
		s.failureCount = 0
	}
}

// RecordFailure records a failed delegation outcome, tripping the breaker
// open if the consecutive-failure threshold is reached (closed state) or
// immediately (half-open probe failed), refreshing the cooldown timestamp.
func (b *Breaker) RecordFailure(agent string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stateFor(agent)
	now := time.Now()
	s.failureCount++
	s.lastFailure = &now

	switch s.state {
	case StateHalfOpen:
		s.state = StateOpen
		s.openedAt = &now
		s.halfOpenProbed = false
	case StateClosed:
		if s.failureCount >= b.cfg.FailureThreshold {
			s.state = StateOpen
			s.openedAt = &now
		}
	}
}

// Get returns a point-in-time snapshot of an agent's circuit state.
func (b *Breaker) Get(agent string) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stateFor(agent)
	return Snapshot{
		State:        s.state,
		FailureCount: s.failureCount,
		SuccessCount: s.successCount,
		LastFailure:  s.lastFailure,
		LastSuccess:  s.lastSuccess,
		OpenedAt:     s.openedAt,
	}
}

// Reset clears an agent's circuit back to closed, used by admin tooling
// and tests.
func (b *Breaker) Reset(agent string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.agents, agent)
}
