// Package keybuilder centralizes every cache-key namespace so that no two
// components can accidentally collide on a Redis key, mirroring the
// teacher's single-purpose key builder generalized to every cache namespace
// this service uses.
package keybuilder

import "fmt"

const (
	nsNotification    = "notification"
	nsGroupRead       = "group_read"
	nsUnreadCount     = "unread_count"
	nsFollowerCount   = "follower_count"
	nsFollowing       = "following"
	nsIdempotency     = "idempotency"
	nsIdempotencyLock = "idempotency_lock"
	nsSingleflight    = "sf"
	nsBreakerStats    = "breaker_stats"
	nsJWTBlocklist    = "jwt_blocklist"
)

// Notification builds the per-notification cache key.
func Notification(id string) string {
	return fmt.Sprintf("%s:%s", nsNotification, id)
}

// GroupRead builds the per-user, per-group read-state key.
func GroupRead(userID, groupNotificationID string) string {
	return fmt.Sprintf("%s:%s:%s", nsGroupRead, userID, groupNotificationID)
}

// UnreadCount builds the per-user unread-count cache key.
func UnreadCount(userID string) string {
	return fmt.Sprintf("%s:%s", nsUnreadCount, userID)
}

// FollowerCount builds the per-actor follower-count cache key.
func FollowerCount(actorUserID string) string {
	return fmt.Sprintf("%s:%s", nsFollowerCount, actorUserID)
}

// Following builds the per-(user,actor) is-following cache key.
func Following(userID, actorUserID string) string {
	return fmt.Sprintf("%s:%s:%s", nsFollowing, userID, actorUserID)
}

// Idempotency builds the idempotency-cache key for a deterministic
// idempotency key (already namespaced by the caller — see §4.1).
func Idempotency(key string) string {
	return fmt.Sprintf("%s:%s", nsIdempotency, key)
}

// IdempotencyLock builds the distributed-lock key for tryAcquireLock (§4.1).
func IdempotencyLock(key string) string {
	return fmt.Sprintf("%s:%s", nsIdempotencyLock, key)
}

// Singleflight builds the stampede-guard refresh-lock key for a cache key (§4.3).
func Singleflight(key string) string {
	return fmt.Sprintf("%s:%s", nsSingleflight, key)
}

// BreakerStats builds the circuit-breaker gauge-export key for a gateway.
func BreakerStats(gateway string) string {
	return fmt.Sprintf("%s:%s", nsBreakerStats, gateway)
}

// JWTBlocklist builds the revoked-credential blocklist key for a token ID.
func JWTBlocklist(jti string) string {
	return fmt.Sprintf("%s:%s", nsJWTBlocklist, jti)
}
