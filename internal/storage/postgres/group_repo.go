package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	repo "github.com/ilindan-dev/notifyhub/internal/domain/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var _ repo.GroupNotificationRepository = (*GroupNotificationRepository)(nil)

// GroupNotificationRepository persists model.GroupNotification rows, the
// fanout-on-read broadcast entity (C8).
type GroupNotificationRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewGroupNotificationRepository builds the postgres-backed repository.
func NewGroupNotificationRepository(pool *pgxpool.Pool, logger *zerolog.Logger) *GroupNotificationRepository {
	return &GroupNotificationRepository{pool: pool, logger: logger.With().Str("layer", "postgres_repository").Str("entity", "group_notification").Logger()}
}

const groupColumns = `
	group_notification_id, event_id, event_type, actor_user_id, actor_follower_count,
	title, body, data, priority, action_url, image_url,
	target_audience, target_user_ids, exclude_user_ids,
	push_strategy, broadcast_topic, created_at, expires_at, is_active,
	view_count, click_count, actual_reach, estimated_reach, retry_at, attempts`

func (r *GroupNotificationRepository) Save(ctx context.Context, g *model.GroupNotification) (*model.GroupNotification, error) {
	data, err := marshalJSON(g.Data)
	if err != nil {
		return nil, err
	}
	if g.GroupNotificationID == uuid.Nil {
		g.GroupNotificationID = uuid.New()
	}
	row := db(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO group_notifications (`+groupColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
		RETURNING `+groupColumns,
		g.GroupNotificationID, g.EventID, string(g.EventType), g.ActorUserID, g.ActorFollowerCount,
		g.Title, g.Body, data, string(g.Priority), g.ActionURL, g.ImageURL,
		string(g.TargetAudience), g.TargetUserIDs, g.ExcludeUserIDs,
		string(g.PushStrategy), g.BroadcastTopic, g.CreatedAt, g.ExpiresAt, g.IsActive,
		g.ViewCount, g.ClickCount, g.ActualReach, g.EstimatedReach, g.RetryAt, g.Attempts,
	)
	created, err := scanGroup(row)
	if err != nil {
		return nil, fmt.Errorf("postgres: save group notification: %w", err)
	}
	return created, nil
}

func (r *GroupNotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.GroupNotification, error) {
	row := db(ctx, r.pool).QueryRow(ctx, `SELECT `+groupColumns+` FROM group_notifications WHERE group_notification_id = $1`, id)
	g, err := scanGroup(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get group notification: %w", err)
	}
	return g, nil
}

func (r *GroupNotificationRepository) Update(ctx context.Context, g *model.GroupNotification) error {
	tag, err := db(ctx, r.pool).Exec(ctx, `
		UPDATE group_notifications SET
			is_active = $2, view_count = $3, click_count = $4,
			actual_reach = $5, retry_at = $6, attempts = $7
		WHERE group_notification_id = $1`,
		g.GroupNotificationID, g.IsActive, g.ViewCount, g.ClickCount, g.ActualReach, g.RetryAt, g.Attempts,
	)
	if err != nil {
		return fmt.Errorf("postgres: update group notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *GroupNotificationRepository) FindActiveForUser(ctx context.Context, since *time.Time, cursor *repo.Cursor) ([]*model.GroupNotification, error) {
	sql := `SELECT ` + groupColumns + ` FROM group_notifications WHERE is_active = true AND (expires_at IS NULL OR expires_at > now())`
	var args []any
	if since != nil {
		args = append(args, *since)
		sql += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if cursor != nil {
		args = append(args, cursor.CreatedAt, cursor.ID)
		sql += fmt.Sprintf(` AND (created_at, group_notification_id) < ($%d, $%d)`, len(args)-1, len(args))
	}
	sql += ` ORDER BY created_at DESC, group_notification_id DESC LIMIT 100`

	rows, err := db(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: find active group notifications: %w", err)
	}
	return collectGroups(rows)
}

func (r *GroupNotificationRepository) FindRetryableTopicPush(ctx context.Context, now time.Time, limit int) ([]*model.GroupNotification, error) {
	rows, err := db(ctx, r.pool).Query(ctx, `
		SELECT `+groupColumns+` FROM group_notifications
		WHERE push_strategy = 'topic' AND retry_at IS NOT NULL AND retry_at <= $1
		ORDER BY retry_at ASC LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: find retryable topic push: %w", err)
	}
	return collectGroups(rows)
}

func (r *GroupNotificationRepository) IncrementViewCount(ctx context.Context, id uuid.UUID) error {
	_, err := db(ctx, r.pool).Exec(ctx, `UPDATE group_notifications SET view_count = view_count + 1 WHERE group_notification_id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: increment view count: %w", err)
	}
	return nil
}

func (r *GroupNotificationRepository) IncrementClickCount(ctx context.Context, id uuid.UUID) error {
	_, err := db(ctx, r.pool).Exec(ctx, `UPDATE group_notifications SET click_count = click_count + 1 WHERE group_notification_id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: increment click count: %w", err)
	}
	return nil
}

func scanGroup(row pgx.Row) (*model.GroupNotification, error) {
	var (
		g                          model.GroupNotification
		eventType, priority        string
		targetAudience, pushStrat string
		data                       []byte
	)
	err := row.Scan(
		&g.GroupNotificationID, &g.EventID, &eventType, &g.ActorUserID, &g.ActorFollowerCount,
		&g.Title, &g.Body, &data, &priority, &g.ActionURL, &g.ImageURL,
		&targetAudience, &g.TargetUserIDs, &g.ExcludeUserIDs,
		&pushStrat, &g.BroadcastTopic, &g.CreatedAt, &g.ExpiresAt, &g.IsActive,
		&g.ViewCount, &g.ClickCount, &g.ActualReach, &g.EstimatedReach, &g.RetryAt, &g.Attempts,
	)
	if err != nil {
		return nil, err
	}
	g.EventType = model.EventType(eventType)
	g.Priority = model.Priority(priority)
	g.TargetAudience = model.TargetAudience(targetAudience)
	g.PushStrategy = model.PushStrategy(pushStrat)
	if err := unmarshalJSON(data, &g.Data); err != nil {
		return nil, fmt.Errorf("unmarshal group data: %w", err)
	}
	return &g, nil
}

func collectGroups(rows pgx.Rows) ([]*model.GroupNotification, error) {
	defer rows.Close()
	var out []*model.GroupNotification
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan group notification row: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
