// Package idempotency implements the C1 tiered de-duplication store:
// process-local → fast-cache → durable store lookups, a dual-write
// mark-processed, and a fail-open distributed lock (§4.1).
package idempotency

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	"github.com/ilindan-dev/notifyhub/internal/domain/repository"
	"github.com/rs/zerolog"
)

// maxLocalEntries bounds the process-local set; on overflow the oldest half
// (by insertion time) is evicted (§4.1).
const maxLocalEntries = 10000

// FastCache is the cache tier backing isProcessed/tryAcquireLock, backed by
// Redis in production.
type FastCache interface {
	Exists(ctx context.Context, key string) (bool, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Store is the C1 idempotency store.
type Store struct {
	mu        sync.Mutex
	local     map[string]time.Time
	fast      FastCache
	durable   repository.IdempotencyRepository
	logger    zerolog.Logger
}

// NewStore builds an idempotency store over the given fast and durable tiers.
func NewStore(fast FastCache, durable repository.IdempotencyRepository, logger *zerolog.Logger) *Store {
	return &Store{
		local:   make(map[string]time.Time),
		fast:    fast,
		durable: durable,
		logger:  logger.With().Str("component", "idempotency_store").Logger(),
	}
}

// BuildKey constructs the de-dup key: the intent form when actorID,
// targetID and resourceID are all present (catching retries that mint a
// fresh eventID), otherwise the event form (§4.1).
func BuildKey(eventType, eventID, actorID, targetID, resourceID string) string {
	if actorID != "" && targetID != "" && resourceID != "" {
		return fmt.Sprintf("intent:%s:%s:%s:%s", eventType, actorID, targetID, resourceID)
	}
	return fmt.Sprintf("event:%s:%s", eventType, eventID)
}

// IsProcessed checks process-local, then fast-cache, then the durable store,
// in that order, short-circuiting on the first hit. It fails open (returns
// false) only when the durable store is also unreachable.
func (s *Store) IsProcessed(ctx context.Context, key string) bool {
	s.mu.Lock()
	_, local := s.local[key]
	s.mu.Unlock()
	if local {
		return true
	}

	if s.fast != nil {
		found, err := s.fast.Exists(ctx, key)
		if err != nil {
			s.logger.Error().Err(err).Str("key", key).Msg("fast-cache lookup failed, falling through to durable store")
		} else if found {
			s.rememberLocal(key)
			return true
		}
	}

	record, err := s.durable.Find(ctx, key)
	if err != nil {
		if err == repository.ErrNotFound {
			return false
		}
		s.logger.Error().Err(err).Str("key", key).Msg("durable idempotency lookup failed, failing open")
		return false
	}
	if record != nil {
		s.rememberLocal(key)
		return true
	}
	return false
}

// MarkProcessed dual-writes the fast cache and the durable store. Cache
// errors are logged and swallowed; durable-store errors are surfaced.
func (s *Store) MarkProcessed(ctx context.Context, key string, record *model.IdempotencyRecord) error {
	if s.fast != nil {
		payload := []byte(record.NotificationID)
		if err := s.fast.SetWithTTL(ctx, key, payload, 7*24*time.Hour); err != nil {
			s.logger.Error().Err(err).Str("key", key).Msg("failed to mark processed in fast cache")
		}
	}

	if err := s.durable.Upsert(ctx, record); err != nil {
		return fmt.Errorf("idempotency: durable upsert: %w", err)
	}

	s.rememberLocal(key)
	return nil
}

// TryAcquireLock attempts an atomic set-if-absent in the fast cache. It
// fails open (returns true) when the cache is unavailable, trading a rare
// duplicate delivery for never freezing the pipeline (§4.1).
func (s *Store) TryAcquireLock(ctx context.Context, key string, ttl time.Duration) bool {
	if s.fast == nil {
		return true
	}
	acquired, err := s.fast.SetNX(ctx, key, ttl)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("lock acquisition failed, failing open")
		return true
	}
	return acquired
}

// ReleaseLock releases a lock acquired by TryAcquireLock.
func (s *Store) ReleaseLock(ctx context.Context, key string) {
	if s.fast == nil {
		return
	}
	if err := s.fast.Delete(ctx, key); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("failed to release lock")
	}
}

func (s *Store) rememberLocal(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.local[key] = time.Now()
	if len(s.local) <= maxLocalEntries {
		return
	}
	s.evictOldestHalfLocked()
}

// evictOldestHalfLocked drops the oldest half of entries by insertion time.
// Callers must hold s.mu.
func (s *Store) evictOldestHalfLocked() {
	type entry struct {
		key string
		at  time.Time
	}
	entries := make([]entry, 0, len(s.local))
	for k, t := range s.local {
		entries = append(entries, entry{k, t})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })
	for _, e := range entries[:len(entries)/2] {
		delete(s.local, e.key)
	}
}
