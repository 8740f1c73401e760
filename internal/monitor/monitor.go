// Package monitor implements the C12 resource monitor: it samples process
// and circuit-breaker health every 15s and exposes the counters the rest of
// the pipeline feeds into. Serving these over an endpoint is out of scope
// (§4.12) — Monitor only samples and snapshots them to the configured sink.
package monitor

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/ilindan-dev/notifyhub/internal/breaker"
	"github.com/rs/zerolog"
)

// Counters are the process-wide counters other components increment as they
// handle notifications (§4.12).
type Counters struct {
	created   int64
	delivered int64
	failed    int64
}

func (c *Counters) IncCreated()   { atomic.AddInt64(&c.created, 1) }
func (c *Counters) IncDelivered() { atomic.AddInt64(&c.delivered, 1) }
func (c *Counters) IncFailed()    { atomic.AddInt64(&c.failed, 1) }

func (c *Counters) snapshot() (created, delivered, failed int64) {
	return atomic.LoadInt64(&c.created), atomic.LoadInt64(&c.delivered), atomic.LoadInt64(&c.failed)
}

// GaugeSink receives a flattened gauge/counter snapshot each sampling tick,
// backed in production by a Redis pipeline write (§4.12 "C12 gauges
// snapshot").
type GaugeSink interface {
	SetGauges(ctx context.Context, values map[string]float64) error
}

// Monitor is the C12 sampler.
type Monitor struct {
	breakers *breaker.Registry
	counters *Counters
	sink     GaugeSink
	interval time.Duration
	logger   zerolog.Logger
}

// New builds the C12 resource monitor, sampling every interval (15s per
// §4.12's default).
func New(breakers *breaker.Registry, counters *Counters, sink GaugeSink, interval time.Duration, logger *zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{
		breakers: breakers,
		counters: counters,
		sink:     sink,
		interval: interval,
		logger:   logger.With().Str("component", "resource_monitor").Logger(),
	}
}

// Run samples on m.interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sample(ctx)
		}
	}
}

// Sample takes one snapshot: heap stats, per-gateway circuit-breaker state,
// and the cumulative delivery counters, then hands it to the sink.
func (m *Monitor) Sample(ctx context.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	created, delivered, failed := m.counters.snapshot()

	values := map[string]float64{
		"heap_alloc_bytes":              float64(mem.HeapAlloc),
		"heap_sys_bytes":                float64(mem.HeapSys),
		"goroutines":                    float64(runtime.NumGoroutine()),
		"notifications_created_total":   float64(created),
		"notifications_delivered_total": float64(delivered),
		"notifications_failed_total":    float64(failed),
	}
	for _, name := range m.breakers.Names() {
		b := m.breakers.For(name)
		stats := b.GetStats()
		values["circuit_breaker."+name+".error_rate"] = stats.ErrorRate
		values["circuit_breaker."+name+".total_requests"] = float64(stats.TotalRequests)
		values["circuit_breaker."+name+".open"] = stateToFloat(stats.State)
	}

	if m.sink != nil {
		if err := m.sink.SetGauges(ctx, values); err != nil {
			m.logger.Error().Err(err).Msg("failed to publish gauge snapshot")
			return
		}
	}
	m.logger.Debug().
		Uint64("heap_alloc", mem.HeapAlloc).
		Int("goroutines", runtime.NumGoroutine()).
		Int64("notifications_created", created).
		Int64("notifications_delivered", delivered).
		Int64("notifications_failed", failed).
		Msg("resource sample")
}

func stateToFloat(s breaker.State) float64 {
	if s == breaker.StateOpen {
		return 1
	}
	return 0
}
