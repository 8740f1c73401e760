// Package fanout decides between fanout-on-write (personal Notification
// rows) and fanout-on-read (a single GroupNotification) based on the
// actor's reach, and builds the GroupNotification when fanout-on-read wins
// (§4.8).
package fanout

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/notifyhub/internal/config"
	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	"github.com/ilindan-dev/notifyhub/internal/domain/repository"
	"github.com/ilindan-dev/notifyhub/internal/stampede"
	"github.com/rs/zerolog"
)

// followerServiceDeadline bounds the external follower-count lookup (§4.8).
const followerServiceDeadline = 2 * time.Second

// FollowerService is the external, out-of-module service that knows an
// actor's follower count.
type FollowerService interface {
	FollowerCount(ctx context.Context, actorUserID string) (int, error)
}

// Selector implements the C8 fanout decision and GroupNotification creation.
type Selector struct {
	cfg       config.FanoutConfig
	followers FollowerService
	guard     *stampede.Guard
	groups    repository.GroupNotificationRepository
	logger    zerolog.Logger
}

// NewSelector builds a fanout selector.
func NewSelector(cfg config.FanoutConfig, followers FollowerService, guard *stampede.Guard, groups repository.GroupNotificationRepository, logger *zerolog.Logger) *Selector {
	return &Selector{
		cfg:       cfg,
		followers: followers,
		guard:     guard,
		groups:    groups,
		logger:    logger.With().Str("component", "fanout_selector").Logger(),
	}
}

// ShouldUseFanoutOnRead implements the §4.8 decision. When followerCount is
// known the threshold compares directly; otherwise it is resolved through
// the stampede guard's stale-while-revalidate cache over the external
// follower service, defaulting to false (safer to over-fanout-on-write than
// to lose a notification) on any failure.
func (s *Selector) ShouldUseFanoutOnRead(ctx context.Context, actorUserID string, followerCount *int) bool {
	if followerCount != nil {
		return *followerCount >= s.cfg.FollowerThreshold
	}

	key := fmt.Sprintf("follower_count:%s", actorUserID)
	value, err := s.guard.GetOrSetWithSWR(ctx, key, func(fetchCtx context.Context) ([]byte, error) {
		fetchCtx, cancel := context.WithTimeout(fetchCtx, followerServiceDeadline)
		defer cancel()
		count, err := s.followers.FollowerCount(fetchCtx, actorUserID)
		if err != nil {
			return nil, err
		}
		return []byte(strconv.Itoa(count)), nil
	}, stampede.SWRPolicy{Fresh: 5 * time.Minute, Stale: 10 * time.Minute, UseDurableCache: true})
	if err != nil {
		s.logger.Warn().Err(err).Str("actor_user_id", actorUserID).Msg("follower count lookup failed, defaulting to fanout-on-write")
		return false
	}

	count, err := strconv.Atoi(string(value))
	if err != nil {
		s.logger.Error().Err(err).Str("actor_user_id", actorUserID).Msg("malformed cached follower count, defaulting to fanout-on-write")
		return false
	}
	return count >= s.cfg.FollowerThreshold
}

// BroadcastEventInput is the §4.7-derived input to CreateGroupNotification.
type BroadcastEventInput struct {
	EventID            uuid.UUID
	EventType          model.EventType
	ActorUserID        string
	ActorFollowerCount int
	Title              string
	Body               string
	Data               map[string]any
	ImageURL           string
	PushStrategy       model.PushStrategy // empty = auto-decide
	EstimatedReach     int
}

// CreateGroupNotification persists a GroupNotification for a fanout-on-read
// event, choosing a push strategy when the caller did not pin one (§4.8).
func (s *Selector) CreateGroupNotification(ctx context.Context, in BroadcastEventInput, now time.Time) (*model.GroupNotification, error) {
	g := model.NewGroupNotification(in.EventID, in.EventType, in.ActorUserID, in.ActorFollowerCount, now)
	g.Title = in.Title
	g.Body = in.Body
	g.Data = in.Data
	g.ImageURL = in.ImageURL
	g.EstimatedReach = in.EstimatedReach

	strategy := in.PushStrategy
	if strategy == "" {
		if in.EstimatedReach > s.cfg.TopicReachThreshold {
			strategy = model.PushTopic
		} else {
			strategy = model.PushIndividual
		}
	}
	g.PushStrategy = strategy
	if strategy == model.PushTopic {
		g.BroadcastTopic = fmt.Sprintf("user_%s_followers", in.ActorUserID)
	}

	return s.groups.Save(ctx, g)
}
