// Package stampede coalesces concurrent cache-fill calls and serves
// stale-while-revalidate reads so that a hot key's refresh never triggers a
// thundering herd against the origin (§4.3).
package stampede

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// maxInFlight bounds how long a caller will attach to an in-flight call
// before starting a fresh one, per §4.3.
const maxInFlight = 30 * time.Second

// inFlight tracks the currently running singleflight call for a key: which
// generation it is, and when it started, so a caller arriving after
// maxInFlight can tell the in-flight call is stuck and start a new one.
type inFlight struct {
	gen     int
	started time.Time
}

// Guard coalesces concurrent fetches for the same key and layers a
// stale-while-revalidate policy on top of a DurableCache.
type Guard struct {
	group    singleflight.Group
	mu       sync.Mutex
	inFlight map[string]inFlight

	durable DurableCache
	locker  DistributedLocker
	logger  zerolog.Logger
}

// DurableCache is the backing store Guard reads/writes age-stamped values
// through (go-redis in production, per §4.3/§6).
type DurableCache interface {
	Get(ctx context.Context, key string) (value []byte, age time.Duration, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// DistributedLocker guards a background refresh so only one process
// refreshes a given key at a time.
type DistributedLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// NewGuard builds a stampede guard over the given durable cache and
// distributed locker.
func NewGuard(durable DurableCache, locker DistributedLocker, logger *zerolog.Logger) *Guard {
	return &Guard{
		inFlight: make(map[string]inFlight),
		durable:  durable,
		locker:   locker,
		logger:   logger.With().Str("component", "stampede_guard").Logger(),
	}
}

// Fetch is the fetch function passed to Coalesce/GetOrSetWithSWR.
type Fetch func(ctx context.Context) ([]byte, error)

// Coalesce runs fn for key, attaching concurrent callers to the same
// in-flight call. If that call has been running for at least maxInFlight,
// it's treated as stuck: the caller starts a fresh call under a new
// generation instead of waiting on it indefinitely (§4.3).
func (g *Guard) Coalesce(ctx context.Context, key string, fn Fetch) ([]byte, error) {
	g.mu.Lock()
	f, ok := g.inFlight[key]
	if !ok || time.Since(f.started) >= maxInFlight {
		f = inFlight{gen: f.gen + 1, started: time.Now()}
		g.inFlight[key] = f
	}
	doKey := doKeyFor(key, f.gen)
	g.mu.Unlock()

	v, err, _ := g.group.Do(doKey, func() (interface{}, error) {
		defer func() {
			g.mu.Lock()
			if g.inFlight[key].gen == f.gen {
				delete(g.inFlight, key)
			}
			g.mu.Unlock()
		}()
		return fn(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func doKeyFor(key string, gen int) string {
	return fmt.Sprintf("%s#%d", key, gen)
}

// SWRPolicy configures GetOrSetWithSWR's staleness windows.
type SWRPolicy struct {
	Fresh           time.Duration
	Stale           time.Duration
	UseDurableCache bool
}

// GetOrSetWithSWR returns a fresh cached value immediately, serves a stale
// value while refreshing it in the background, or does a coalesced
// synchronous fetch on a full miss (§4.3).
func (g *Guard) GetOrSetWithSWR(ctx context.Context, key string, fn Fetch, policy SWRPolicy) ([]byte, error) {
	if policy.UseDurableCache {
		if value, age, found, err := g.durable.Get(ctx, key); err == nil && found {
			if age < policy.Fresh {
				return value, nil
			}
			if age < policy.Fresh+policy.Stale {
				g.refreshInBackground(key, fn, policy)
				return value, nil
			}
		}
	}

	v, err := g.Coalesce(ctx, key, fn)
	if err != nil {
		return nil, err
	}
	if policy.UseDurableCache {
		if err := g.durable.Set(ctx, key, v, policy.Fresh+policy.Stale); err != nil {
			g.logger.Error().Err(err).Str("key", key).Msg("failed to populate durable cache after fetch")
		}
	}
	return v, nil
}

// refreshInBackground starts an async refresh guarded by a per-key
// distributed lock so only one process refreshes a stale key at a time. A
// failed refresh is logged and the stale value already returned to the
// caller stands.
func (g *Guard) refreshInBackground(key string, fn Fetch, policy SWRPolicy) {
	go func() {
		ctx := context.Background()
		acquired, err := g.locker.TryLock(ctx, key, 10*time.Second)
		if err != nil || !acquired {
			return
		}
		defer func() {
			if err := g.locker.Unlock(ctx, key); err != nil {
				g.logger.Error().Err(err).Str("key", key).Msg("failed to release refresh lock")
			}
		}()

		v, err := g.Coalesce(ctx, key, fn)
		if err != nil {
			g.logger.Error().Err(err).Str("key", key).Msg("background SWR refresh failed, stale value still served")
			return
		}
		if err := g.durable.Set(ctx, key, v, policy.Fresh+policy.Stale); err != nil {
			g.logger.Error().Err(err).Str("key", key).Msg("failed to persist refreshed value")
		}
	}()
}
