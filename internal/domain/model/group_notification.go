package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the high-reach broadcast event types fanned out on read.
type EventType string

const (
	EventPostCreated       EventType = "PostCreated"
	EventLiveStreamStarted EventType = "LiveStreamStarted"
	EventStoryPosted       EventType = "StoryPosted"
	EventAnnouncementMade  EventType = "AnnouncementMade"
)

// TargetAudience scopes who a GroupNotification is relevant to.
type TargetAudience string

const (
	AudienceFollowers   TargetAudience = "followers"
	AudienceSubscribers TargetAudience = "subscribers"
	AudienceCustom      TargetAudience = "custom"
)

// PushStrategy decides how a GroupNotification is pushed to gateways.
type PushStrategy string

const (
	PushNone       PushStrategy = "none"
	PushTopic      PushStrategy = "topic"
	PushIndividual PushStrategy = "individual"
)

// GroupNotification is the fanout-on-read entity: one stored row regardless
// of audience size; per-user read state lives in the fast cache (§3).
type GroupNotification struct {
	GroupNotificationID uuid.UUID
	EventID             uuid.UUID
	EventType           EventType
	ActorUserID         string
	ActorFollowerCount  int

	Title    string
	Body     string
	Data     map[string]any
	Priority Priority

	ActionURL string
	ImageURL  string

	TargetAudience TargetAudience
	TargetUserIDs  []string
	ExcludeUserIDs []string

	PushStrategy   PushStrategy
	BroadcastTopic string

	CreatedAt time.Time
	ExpiresAt *time.Time
	IsActive  bool

	ViewCount     int
	ClickCount    int
	ActualReach   int
	EstimatedReach int

	// RetryAt/Attempts support the §4.9 "topic push" retry path: a failed
	// topic send reschedules the GroupNotification itself rather than any
	// per-device row.
	RetryAt  *time.Time
	Attempts int
}

// NewGroupNotification constructs a GroupNotification snapshot at creation time.
func NewGroupNotification(eventID uuid.UUID, eventType EventType, actorUserID string, actorFollowerCount int, now time.Time) *GroupNotification {
	return &GroupNotification{
		GroupNotificationID: uuid.New(),
		EventID:             eventID,
		EventType:           eventType,
		ActorUserID:         actorUserID,
		ActorFollowerCount:  actorFollowerCount,
		TargetAudience:      AudienceFollowers,
		CreatedAt:           now,
		IsActive:            true,
	}
}

// IsRelevantTo reports whether a recipient should see this broadcast, per the
// §4.10 relevance rule: not excluded AND (following actor OR explicitly
// targeted OR audience is custom).
func (g *GroupNotification) IsRelevantTo(userID string, isFollowing bool) bool {
	for _, excluded := range g.ExcludeUserIDs {
		if excluded == userID {
			return false
		}
	}
	if g.TargetAudience == AudienceCustom {
		return true
	}
	for _, target := range g.TargetUserIDs {
		if target == userID {
			return true
		}
	}
	return isFollowing
}
