// Package breaker implements a per-gateway circuit breaker guarding outbound
// FCM/APNs calls from cascading into a saturated or down provider (§4.2).
package breaker

import (
	"sync"
	"time"

	"github.com/ilindan-dev/notifyhub/internal/config"
	"github.com/rs/zerolog"
)

// State is one of the three circuit-breaker states.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

type outcome struct {
	ts      time.Time
	success bool
}

// Stats is a snapshot of a breaker's rolling counters, reported as gauges.
type Stats struct {
	State         State
	TotalRequests int
	Failures      int
	ErrorRate     float64
}

// Breaker is a single gateway's circuit breaker. Safe for concurrent use.
type Breaker struct {
	mu     sync.Mutex
	name   string
	cfg    config.BreakerConfig
	logger zerolog.Logger

	state State

	// CLOSED-state rolling window.
	records []outcome
	badSince *time.Time

	// OPEN-state bookkeeping.
	openedAt time.Time

	// HALF_OPEN-state bookkeeping.
	halfOpenAdmitted int
	halfOpenSuccess  int
}

// New builds a breaker for the named gateway ("fcm" | "apns"), starting CLOSED.
func New(name string, cfg config.BreakerConfig, logger *zerolog.Logger) *Breaker {
	return &Breaker{
		name:   name,
		cfg:    cfg,
		state:  StateClosed,
		logger: logger.With().Str("component", "breaker").Str("gateway", name).Logger(),
	}
}

// AllowRequest reports whether a call to the gateway should proceed, driving
// the OPEN → HALF_OPEN transition on timeout expiry as a side effect.
func (b *Breaker) AllowRequest(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(b.openedAt) >= b.cfg.OpenTimeout {
			b.transitionToHalfOpen(now)
			return true
		}
		return false
	case StateHalfOpen:
		if b.halfOpenAdmitted >= b.cfg.HalfOpenMaxRequests {
			return false
		}
		b.halfOpenAdmitted++
		return true
	default:
		return true
	}
}

// RecordSuccess reports a successful gateway call.
func (b *Breaker) RecordSuccess(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.appendRecord(now, true)
		b.evaluateClosed(now)
	case StateHalfOpen:
		b.halfOpenSuccess++
		if b.halfOpenSuccess >= b.cfg.HalfOpenSuccessThreshold {
			b.transitionToClosed()
		}
	}
}

// RecordFailure reports a failed gateway call.
func (b *Breaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.appendRecord(now, false)
		b.evaluateClosed(now)
	case StateHalfOpen:
		b.transitionToOpen(now)
	}
}

// GetState returns the current state.
func (b *Breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// GetStats returns a snapshot of the rolling window for metrics/logging.
func (b *Breaker) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	total, failures := len(b.records), 0
	for _, r := range b.records {
		if !r.success {
			failures++
		}
	}
	rate := 0.0
	if total > 0 {
		rate = float64(failures) / float64(total)
	}
	return Stats{State: b.state, TotalRequests: total, Failures: failures, ErrorRate: rate}
}

func (b *Breaker) appendRecord(now time.Time, success bool) {
	b.records = append(b.records, outcome{ts: now, success: success})
	cutoff := now.Add(-b.cfg.WindowSize)
	i := 0
	for ; i < len(b.records); i++ {
		if b.records[i].ts.After(cutoff) {
			break
		}
	}
	if i > 0 {
		b.records = b.records[i:]
	}
}

// evaluateClosed checks whether the rolling window has breached
// errorThreshold for errorDuration, opening the circuit if so (§4.2).
func (b *Breaker) evaluateClosed(now time.Time) {
	total := len(b.records)
	if total < b.cfg.MinimumRequests {
		b.badSince = nil
		return
	}
	failures := 0
	for _, r := range b.records {
		if !r.success {
			failures++
		}
	}
	rate := float64(failures) / float64(total)

	if rate <= b.cfg.ErrorThreshold {
		b.badSince = nil
		return
	}
	if b.badSince == nil {
		t := now
		b.badSince = &t
	}
	if now.Sub(*b.badSince) >= b.cfg.ErrorDuration {
		b.transitionToOpen(now)
	}
}

func (b *Breaker) transitionToOpen(now time.Time) {
	b.state = StateOpen
	b.openedAt = now
	b.badSince = nil
	b.halfOpenAdmitted = 0
	b.halfOpenSuccess = 0
	b.logger.Warn().Msg("circuit breaker opened")
}

func (b *Breaker) transitionToHalfOpen(now time.Time) {
	b.state = StateHalfOpen
	b.halfOpenAdmitted = 1
	b.halfOpenSuccess = 0
	b.logger.Info().Msg("circuit breaker half-open")
}

func (b *Breaker) transitionToClosed() {
	b.state = StateClosed
	b.records = nil
	b.badSince = nil
	b.halfOpenAdmitted = 0
	b.halfOpenSuccess = 0
	b.logger.Info().Msg("circuit breaker closed")
}

// Registry holds one Breaker per gateway name, constructed once at startup.
type Registry struct {
	mu       sync.Mutex
	cfg      config.BreakerConfig
	logger   zerolog.Logger
	breakers map[string]*Breaker
}

// NewRegistry builds an empty breaker registry.
func NewRegistry(cfg config.BreakerConfig, logger *zerolog.Logger) *Registry {
	return &Registry{cfg: cfg, logger: *logger, breakers: make(map[string]*Breaker)}
}

// For returns the breaker for the named gateway, creating it on first use.
func (r *Registry) For(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	if !ok {
		b = New(name, r.cfg, &r.logger)
		r.breakers[name] = b
	}
	return b
}

// Names returns the gateway names registered so far, for the resource
// monitor's per-gateway sampling pass (§4.12).
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	return names
}
