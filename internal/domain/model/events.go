package model

import "time"

// EventEnvelope is the common header every inbound broker message carries
// (§6): eventId, timestamp, version, plus the discriminator.
type EventEnvelope struct {
	EventID   string    `json:"eventId"`
	EventType string    `json:"eventType"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// UserFollowedEvent is the `user.followed` inbound payload.
type UserFollowedEvent struct {
	EventEnvelope
	FollowerID string `json:"followerId"`
	FolloweeID string `json:"followeeId"`
	ActionURL  string `json:"actionUrl"`
}

// CommentCreatedEvent is the `comment.created` inbound payload.
type CommentCreatedEvent struct {
	EventEnvelope
	CommenterID string `json:"commenterId"`
	PostID      string `json:"postId"`
	PostOwnerID string `json:"postOwnerId"`
	CommentText string `json:"commentText"`
	ActionURL   string `json:"actionUrl"`
}

// MentionCreatedEvent is the `mention.created` inbound payload.
type MentionCreatedEvent struct {
	EventEnvelope
	MentionerID     string `json:"mentionerId"`
	MentionedUserID string `json:"mentionedUserId"`
	ContextType     string `json:"contextType"` // comment | post
	ContextID       string `json:"contextId"`
	MentionText     string `json:"mentionText"`
	ActionURL       string `json:"actionUrl"`
}

// LikeCreatedEvent is the `like.created` inbound payload.
type LikeCreatedEvent struct {
	EventEnvelope
	LikerID       string `json:"likerId"`
	TargetOwnerID string `json:"targetOwnerId"`
	TargetType    string `json:"targetType"` // post | comment
	TargetID      string `json:"targetId"`
	ActionURL     string `json:"actionUrl"`
}

// BroadcastEvent covers the four high-follower broadcast event types:
// PostCreated | LiveStreamStarted | StoryPosted | AnnouncementMade (§6).
type BroadcastEvent struct {
	EventEnvelope
	ActorUserID        string         `json:"actorUserId"`
	ActorFollowerCount int            `json:"actorFollowerCount"`
	Title              string         `json:"title"`
	Body               string         `json:"body"`
	Data               map[string]any `json:"data"`
	ActionURL          string         `json:"actionUrl"`
	ImageURL           string         `json:"imageUrl"`
	TargetAudience     string         `json:"targetAudience"`
	TargetUserIDs      []string       `json:"targetUserIds"`
	ExcludeUserIDs     []string       `json:"excludeUserIds"`
	PushStrategy       string         `json:"pushStrategy"`
	BroadcastTopic     string         `json:"broadcastTopic"`
}

// EventProcessedEvent is the outbound `notification.event.processed` message (§6).
type EventProcessedEvent struct {
	OriginalEventID   string    `json:"originalEventId"`
	OriginalEventType string    `json:"originalEventType"`
	NotificationID    string    `json:"notificationId,omitempty"`
	ProcessedAt       time.Time `json:"processedAt"`
	Success           bool      `json:"success"`
	Error             string    `json:"error,omitempty"`
	CorrelationID     string    `json:"correlationId"`
}

// DeliveryStats summarizes the per-device outcome for outbound status events.
type DeliveryStats struct {
	TotalDevices     int `json:"totalDevices"`
	SentDevices      int `json:"sentDevices"`
	DeliveredDevices int `json:"deliveredDevices"`
	FailedDevices    int `json:"failedDevices"`
}

// NotificationStatusEvent is the outbound
// `notification.delivered|sent|failed` message (§6).
type NotificationStatusEvent struct {
	NotificationID string        `json:"notificationId"`
	UserID         string        `json:"userId"`
	Category       Category      `json:"category"`
	Source         string        `json:"source"`
	Timestamp      time.Time     `json:"timestamp"`
	DeliveryStats  DeliveryStats `json:"deliveryStats"`
}
