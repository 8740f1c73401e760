package breaker

import (
	"testing"
	"time"

	"github.com/ilindan-dev/notifyhub/internal/config"
	"github.com/rs/zerolog"
)

func testConfig() config.BreakerConfig {
	return config.BreakerConfig{
		ErrorThreshold:           0.5,
		WindowSize:               time.Hour,
		MinimumRequests:          4,
		OpenTimeout:              time.Minute,
		HalfOpenSuccessThreshold: 2,
		HalfOpenMaxRequests:      2,
		ErrorDuration:            0, // opens as soon as threshold breaches, for deterministic tests
	}
}

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func TestBreakerOpensAfterErrorThresholdBreached(t *testing.T) {
	b := New("fcm", testConfig(), testLogger())
	now := time.Now()

	b.RecordSuccess(now)
	b.RecordFailure(now)
	b.RecordFailure(now)
	b.RecordFailure(now)

	if got := b.GetState(); got != StateOpen {
		t.Fatalf("state = %v, want OPEN after 3/4 failures", got)
	}
	if b.AllowRequest(now) {
		t.Error("AllowRequest should be false while OPEN and before openTimeout elapses")
	}
}

func TestBreakerStaysClosedBelowMinimumRequests(t *testing.T) {
	b := New("fcm", testConfig(), testLogger())
	now := time.Now()

	b.RecordFailure(now)
	b.RecordFailure(now)

	if got := b.GetState(); got != StateClosed {
		t.Fatalf("state = %v, want CLOSED below minimumRequests", got)
	}
}

func TestBreakerTransitionsToHalfOpenAfterTimeout(t *testing.T) {
	cfg := testConfig()
	b := New("fcm", cfg, testLogger())
	now := time.Now()

	for i := 0; i < 4; i++ {
		b.RecordFailure(now)
	}
	if got := b.GetState(); got != StateOpen {
		t.Fatalf("state = %v, want OPEN", got)
	}

	later := now.Add(cfg.OpenTimeout)
	if !b.AllowRequest(later) {
		t.Fatal("AllowRequest should admit a probe once openTimeout has elapsed")
	}
	if got := b.GetState(); got != StateHalfOpen {
		t.Fatalf("state = %v, want HALF_OPEN", got)
	}
}

func TestBreakerHalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	cfg := testConfig()
	b := New("fcm", cfg, testLogger())
	now := time.Now()

	for i := 0; i < 4; i++ {
		b.RecordFailure(now)
	}
	later := now.Add(cfg.OpenTimeout)
	b.AllowRequest(later) // transitions to HALF_OPEN, consumes one admission slot

	b.RecordSuccess(later)
	if got := b.GetState(); got != StateHalfOpen {
		t.Fatalf("state = %v, want HALF_OPEN after 1/2 successes", got)
	}
	b.RecordSuccess(later)
	if got := b.GetState(); got != StateClosed {
		t.Fatalf("state = %v, want CLOSED after halfOpenSuccessThreshold successes", got)
	}
}

func TestBreakerHalfOpenReopensOnFailure(t *testing.T) {
	cfg := testConfig()
	b := New("fcm", cfg, testLogger())
	now := time.Now()

	for i := 0; i < 4; i++ {
		b.RecordFailure(now)
	}
	later := now.Add(cfg.OpenTimeout)
	b.AllowRequest(later)

	b.RecordFailure(later)
	if got := b.GetState(); got != StateOpen {
		t.Fatalf("state = %v, want OPEN after a HALF_OPEN failure", got)
	}
	if b.AllowRequest(later) {
		t.Error("AllowRequest should be false immediately after reopening")
	}
}

func TestBreakerHalfOpenCapsAdmittedRequests(t *testing.T) {
	cfg := testConfig()
	b := New("fcm", cfg, testLogger())
	now := time.Now()

	for i := 0; i < 4; i++ {
		b.RecordFailure(now)
	}
	later := now.Add(cfg.OpenTimeout)
	b.AllowRequest(later) // admission 1 of halfOpenMaxRequests=2

	if !b.AllowRequest(later) {
		t.Fatal("second admission should be allowed within halfOpenMaxRequests")
	}
	if b.AllowRequest(later) {
		t.Error("third admission should be refused once halfOpenMaxRequests is reached")
	}
}

func TestRegistryReturnsSameBreakerPerName(t *testing.T) {
	reg := NewRegistry(testConfig(), testLogger())
	a := reg.For("fcm")
	b := reg.For("fcm")
	if a != b {
		t.Error("Registry.For should return the same *Breaker instance for a repeated name")
	}
	c := reg.For("apns")
	if a == c {
		t.Error("Registry.For should return distinct breakers for distinct gateway names")
	}
}
