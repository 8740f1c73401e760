package eventhandler

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/ilindan-dev/notifyhub/internal/domain/model"
)

// inboundEventTypes enumerates the eventType discriminators this handler
// accepts (§6).
const (
	eventTypeUserFollowed    = "user.followed"
	eventTypeCommentCreated  = "comment.created"
	eventTypeMentionCreated  = "mention.created"
	eventTypeLikeCreated     = "like.created"
	eventTypePostCreated     = "PostCreated"
	eventTypeLiveStream      = "LiveStreamStarted"
	eventTypeStoryPosted     = "StoryPosted"
	eventTypeAnnouncement    = "AnnouncementMade"
)

// decoded is the handler's internal, normalized view of an inbound event
// regardless of its concrete discriminator (§4.7 steps 1-5).
type decoded struct {
	eventID       string
	eventType     string
	correlationID string

	isBroadcast bool

	// Personal-notification fields.
	recipientUserID string
	actorUserID     string
	targetUserID    string
	resourceID      string
	category        model.Category
	priority        model.Priority
	title           string
	body            string
	actionURL       string

	// Broadcast fields.
	actorFollowerCount int
	data               map[string]any
	imageURL           string
	targetAudience     string
	targetUserIDs      []string
	excludeUserIDs     []string
	pushStrategy       string
	broadcastTopic     string
}

// decodeAndValidate parses payload per its eventType discriminator and
// validates the required fields for that type. A malformed payload returns
// a non-nil error, which callers must treat as nack-without-requeue (§4.7
// step 2).
func decodeAndValidate(eventType string, payload []byte) (*decoded, error) {
	switch eventType {
	case eventTypeUserFollowed:
		return decodeUserFollowed(payload)
	case eventTypeCommentCreated:
		return decodeCommentCreated(payload)
	case eventTypeMentionCreated:
		return decodeMentionCreated(payload)
	case eventTypeLikeCreated:
		return decodeLikeCreated(payload)
	case eventTypePostCreated, eventTypeLiveStream, eventTypeStoryPosted, eventTypeAnnouncement:
		return decodeBroadcast(eventType, payload)
	default:
		return nil, fmt.Errorf("eventhandler: unrecognized eventType %q", eventType)
	}
}

func correlationOrSynthesize(eventID string) string {
	if eventID != "" {
		return eventID
	}
	return uuid.New().String()
}

func decodeUserFollowed(payload []byte) (*decoded, error) {
	var e model.UserFollowedEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("eventhandler: decode user.followed: %w", err)
	}
	if e.FolloweeID == "" || e.FollowerID == "" {
		return nil, fmt.Errorf("eventhandler: user.followed missing followerId/followeeId")
	}
	return &decoded{
		eventID:         e.EventID,
		eventType:       eventTypeUserFollowed,
		correlationID:   correlationOrSynthesize(e.EventID),
		recipientUserID: e.FolloweeID,
		actorUserID:     e.FollowerID,
		resourceID:      e.FollowerID,
		category:        model.CategoryFollow,
		priority:        model.PriorityNormal,
		title:           "New follower",
		body:            "Someone started following you",
		actionURL:       e.ActionURL,
	}, nil
}

func decodeCommentCreated(payload []byte) (*decoded, error) {
	var e model.CommentCreatedEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("eventhandler: decode comment.created: %w", err)
	}
	if e.PostOwnerID == "" || e.PostID == "" {
		return nil, fmt.Errorf("eventhandler: comment.created missing postOwnerId/postId")
	}
	return &decoded{
		eventID:         e.EventID,
		eventType:       eventTypeCommentCreated,
		correlationID:   correlationOrSynthesize(e.EventID),
		recipientUserID: e.PostOwnerID,
		actorUserID:     e.CommenterID,
		resourceID:      e.PostID,
		category:        model.CategoryComment,
		priority:        model.PriorityNormal,
		title:           "New comment",
		body:            e.CommentText,
		actionURL:       e.ActionURL,
	}, nil
}

func decodeMentionCreated(payload []byte) (*decoded, error) {
	var e model.MentionCreatedEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("eventhandler: decode mention.created: %w", err)
	}
	if e.MentionedUserID == "" || e.ContextID == "" {
		return nil, fmt.Errorf("eventhandler: mention.created missing mentionedUserId/contextId")
	}
	return &decoded{
		eventID:         e.EventID,
		eventType:       eventTypeMentionCreated,
		correlationID:   correlationOrSynthesize(e.EventID),
		recipientUserID: e.MentionedUserID,
		actorUserID:     e.MentionerID,
		resourceID:      e.ContextID,
		category:        model.CategoryMention,
		priority:        model.PriorityHigh,
		title:           "You were mentioned",
		body:            e.MentionText,
		actionURL:       e.ActionURL,
	}, nil
}

func decodeLikeCreated(payload []byte) (*decoded, error) {
	var e model.LikeCreatedEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("eventhandler: decode like.created: %w", err)
	}
	if e.TargetOwnerID == "" || e.TargetID == "" {
		return nil, fmt.Errorf("eventhandler: like.created missing targetOwnerId/targetId")
	}
	return &decoded{
		eventID:         e.EventID,
		eventType:       eventTypeLikeCreated,
		correlationID:   correlationOrSynthesize(e.EventID),
		recipientUserID: e.TargetOwnerID,
		actorUserID:     e.LikerID,
		resourceID:      fmt.Sprintf("%s-%s", e.LikerID, e.TargetID),
		category:        model.CategoryLike,
		priority:        model.PriorityLow,
		title:           "New like",
		body:            "Someone liked your " + e.TargetType,
		actionURL:       e.ActionURL,
	}, nil
}

func decodeBroadcast(eventType string, payload []byte) (*decoded, error) {
	var e model.BroadcastEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("eventhandler: decode %s: %w", eventType, err)
	}
	if e.ActorUserID == "" || e.Title == "" {
		return nil, fmt.Errorf("eventhandler: %s missing actorUserId/title", eventType)
	}
	return &decoded{
		eventID:            e.EventID,
		eventType:          eventType,
		correlationID:      correlationOrSynthesize(e.EventID),
		isBroadcast:        true,
		actorUserID:        e.ActorUserID,
		actorFollowerCount: e.ActorFollowerCount,
		title:              e.Title,
		body:               e.Body,
		data:               e.Data,
		imageURL:           e.ImageURL,
		actionURL:          e.ActionURL,
		targetAudience:     e.TargetAudience,
		targetUserIDs:      e.TargetUserIDs,
		excludeUserIDs:     e.ExcludeUserIDs,
		pushStrategy:       e.PushStrategy,
		broadcastTopic:     e.BroadcastTopic,
	}, nil
}
