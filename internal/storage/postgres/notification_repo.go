package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	repo "github.com/ilindan-dev/notifyhub/internal/domain/repository"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var _ repo.NotificationRepository = (*NotificationRepository)(nil)

// NotificationRepository persists model.Notification rows, including the
// lease-based claim query the delivery worker pool (C9) relies on.
type NotificationRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewNotificationRepository builds the postgres-backed NotificationRepository.
func NewNotificationRepository(pool *pgxpool.Pool, logger *zerolog.Logger) *NotificationRepository {
	return &NotificationRepository{pool: pool, logger: logger.With().Str("layer", "postgres_repository").Str("entity", "notification").Logger()}
}

const notificationColumns = `
	notification_id, user_id, title, body, data, image_url, icon_url,
	category, priority, tags, urgent, schedule_at, timezone, expires_at,
	status, is_read, read_at, locked_by, locked_at, lock_expiry,
	delivery_attempts, delivery_last_attempt, devices, interactions,
	source, campaign, metadata, resource_id, created_at, updated_at`

func (r *NotificationRepository) Save(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	data, err := marshalJSON(n.Data)
	if err != nil {
		return nil, err
	}
	metadata, err := marshalJSON(n.Metadata)
	if err != nil {
		return nil, err
	}
	devices, err := marshalJSON(n.Delivery.Devices)
	if err != nil {
		return nil, err
	}
	interactions, err := marshalJSON(n.Interactions)
	if err != nil {
		return nil, err
	}

	if n.NotificationID == uuid.Nil {
		n.NotificationID = uuid.New()
	}

	row := db(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30)
		RETURNING `+notificationColumns,
		n.NotificationID, n.UserID, n.Title, n.Body, data, n.ImageURL, n.IconURL,
		string(n.Category), string(n.Priority), n.Tags, n.Urgent, n.ScheduleAt, n.Timezone, n.ExpiresAt,
		string(n.Status), n.IsRead, n.ReadAt, nullStr(n.LockedBy), n.LockedAt, n.LockExpiry,
		n.Delivery.Attempts, n.Delivery.LastAttempt, devices, interactions,
		n.Source, n.Campaign, metadata, n.ResourceID, n.CreatedAt, n.UpdatedAt,
	)

	created, err := scanNotification(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, repo.ErrDuplicateRecord
		}
		r.logger.Error().Err(err).Msg("failed to insert notification")
		return nil, fmt.Errorf("postgres: insert notification: %w", err)
	}
	return created, nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	row := db(ctx, r.pool).QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE notification_id = $1`, id)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get notification by id: %w", err)
	}
	return n, nil
}

func (r *NotificationRepository) GetByResourceID(ctx context.Context, userID string, category model.Category, resourceID string) (*model.Notification, error) {
	row := db(ctx, r.pool).QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE user_id = $1 AND category = $2 AND resource_id = $3`, userID, string(category), resourceID)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get notification by resource id: %w", err)
	}
	return n, nil
}

func (r *NotificationRepository) Update(ctx context.Context, n *model.Notification) error {
	devices, err := marshalJSON(n.Delivery.Devices)
	if err != nil {
		return err
	}
	interactions, err := marshalJSON(n.Interactions)
	if err != nil {
		return err
	}

	tag, err := db(ctx, r.pool).Exec(ctx, `
		UPDATE notifications SET
			status = $2, is_read = $3, read_at = $4,
			locked_by = $5, locked_at = $6, lock_expiry = $7,
			delivery_attempts = $8, delivery_last_attempt = $9,
			devices = $10, interactions = $11, updated_at = $12
		WHERE notification_id = $1`,
		n.NotificationID, string(n.Status), n.IsRead, n.ReadAt,
		nullStr(n.LockedBy), n.LockedAt, n.LockExpiry,
		n.Delivery.Attempts, n.Delivery.LastAttempt,
		devices, interactions, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *NotificationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db(ctx, r.pool).Exec(ctx, `UPDATE notifications SET status = $2, updated_at = now() WHERE notification_id = $1`, id, string(model.StatusCancelled))
	if err != nil {
		return fmt.Errorf("postgres: cancel notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// LeaseBatch claims up to limit due notifications for workerID: pending or
// scheduled-and-due rows, failed rows under maxRetries, whose lease is empty
// or expired (§4.9 lease-acquisition predicate). SKIP LOCKED lets concurrent
// workers claim disjoint batches without blocking on each other.
func (r *NotificationRepository) LeaseBatch(ctx context.Context, workerID string, limit int, lockTTL time.Duration, maxRetries int, now time.Time) ([]*model.Notification, error) {
	rows, err := db(ctx, r.pool).Query(ctx, `
		WITH claimable AS (
			SELECT notification_id FROM notifications
			WHERE (lock_expiry IS NULL OR lock_expiry <= $1)
			  AND (
			  	(status = 'pending' AND (schedule_at IS NULL OR schedule_at <= $1))
			  	OR (status = 'scheduled' AND schedule_at <= $1)
			  	OR (status = 'failed' AND delivery_attempts < $2)
			  )
			  AND expires_at > $1
			ORDER BY priority = 'critical' DESC, priority = 'high' DESC, created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE notifications n SET locked_by = $4, locked_at = $1, lock_expiry = $5
		FROM claimable c
		WHERE n.notification_id = c.notification_id
		RETURNING `+prefixColumns("n", notificationColumns),
		now, maxRetries, limit, workerID, now.Add(lockTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: lease batch: %w", err)
	}
	return collectNotifications(rows)
}

func (r *NotificationRepository) ReleaseLeasesFor(ctx context.Context, workerID string) error {
	_, err := db(ctx, r.pool).Exec(ctx, `UPDATE notifications SET locked_by = NULL, locked_at = NULL, lock_expiry = NULL WHERE locked_by = $1`, workerID)
	if err != nil {
		return fmt.Errorf("postgres: release leases: %w", err)
	}
	return nil
}

func (r *NotificationRepository) FindDueScheduled(ctx context.Context, now time.Time, limit int) ([]*model.Notification, error) {
	rows, err := db(ctx, r.pool).Query(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE status = 'scheduled' AND schedule_at <= $1 ORDER BY schedule_at ASC LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: find due scheduled: %w", err)
	}
	return collectNotifications(rows)
}

func (r *NotificationRepository) FindExpiredScheduled(ctx context.Context, now time.Time, limit int) ([]*model.Notification, error) {
	rows, err := db(ctx, r.pool).Query(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE status = 'scheduled' AND expires_at <= $1 ORDER BY expires_at ASC LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: find expired scheduled: %w", err)
	}
	return collectNotifications(rows)
}

func (r *NotificationRepository) FindRetryableFailed(ctx context.Context, maxRetries int, olderThan time.Time, limit int) ([]*model.Notification, error) {
	rows, err := db(ctx, r.pool).Query(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE status = 'failed' AND delivery_attempts < $1 AND delivery_last_attempt <= $2 AND expires_at > now()
		ORDER BY delivery_last_attempt ASC LIMIT $3`, maxRetries, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: find retryable failed: %w", err)
	}
	return collectNotifications(rows)
}

// FindPersonalForUser applies the §4.10 cursor predicate: strictly-less-than
// on (created_at, notification_id) so a page boundary mid-tie never skips or
// repeats a row.
func (r *NotificationRepository) FindPersonalForUser(ctx context.Context, userID string, q repo.InboxQuery) ([]*model.Notification, error) {
	sql := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1`
	args := []any{userID}

	if !q.IncludeRead {
		sql += ` AND is_read = false`
	}
	if q.Since != nil {
		args = append(args, *q.Since)
		sql += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	if q.Cursor != nil {
		args = append(args, q.Cursor.CreatedAt, q.Cursor.ID)
		sql += fmt.Sprintf(` AND (created_at, notification_id) < ($%d, $%d)`, len(args)-1, len(args))
	}
	args = append(args, q.Limit)
	sql += fmt.Sprintf(` ORDER BY created_at DESC, notification_id DESC LIMIT $%d`, len(args))

	rows, err := db(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: find personal for user: %w", err)
	}
	return collectNotifications(rows)
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := db(ctx, r.pool).QueryRow(ctx, `SELECT count(*) FROM notifications WHERE user_id = $1 AND is_read = false`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count unread: %w", err)
	}
	return count, nil
}

// CountForInbox returns the personal-notification count matching the same
// filters FindPersonalForUser applies, ignoring the cursor, for the §6
// `total` field.
func (r *NotificationRepository) CountForInbox(ctx context.Context, userID string, includeRead bool, since *time.Time) (int, error) {
	sql := `SELECT count(*) FROM notifications WHERE user_id = $1`
	args := []any{userID}
	if !includeRead {
		sql += ` AND is_read = false`
	}
	if since != nil {
		args = append(args, *since)
		sql += fmt.Sprintf(` AND created_at >= $%d`, len(args))
	}
	var count int
	if err := db(ctx, r.pool).QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count for inbox: %w", err)
	}
	return count, nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id uuid.UUID, userID string, now time.Time) error {
	tag, err := db(ctx, r.pool).Exec(ctx, `UPDATE notifications SET is_read = true, read_at = $3 WHERE notification_id = $1 AND user_id = $2`, id, userID, now)
	if err != nil {
		return fmt.Errorf("postgres: mark read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *NotificationRepository) MarkReadBatch(ctx context.Context, ids []uuid.UUID, userID string, now time.Time) (int, error) {
	tag, err := db(ctx, r.pool).Exec(ctx, `UPDATE notifications SET is_read = true, read_at = $3 WHERE notification_id = ANY($1) AND user_id = $2`, ids, userID, now)
	if err != nil {
		return 0, fmt.Errorf("postgres: mark read batch: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ArchiveOlderThan moves up to batchSize expired/terminal rows older than
// cutoff into notifications_archive, deleting them from the live table in
// the same statement pair (§4.11). dryRun only counts candidates.
func (r *NotificationRepository) ArchiveOlderThan(ctx context.Context, cutoff time.Time, batchSize int, dryRun bool) (int, error) {
	q := db(ctx, r.pool)

	if dryRun {
		var count int
		err := q.QueryRow(ctx, `
			SELECT count(*) FROM (
				SELECT notification_id FROM notifications
				WHERE created_at < $1 AND (status IN ('delivered','failed','cancelled') OR expires_at <= now())
				LIMIT $2
			) t`, cutoff, batchSize).Scan(&count)
		if err != nil {
			return 0, fmt.Errorf("postgres: archive dry-run count: %w", err)
		}
		return count, nil
	}

	rows, err := q.Query(ctx, `
		WITH moved AS (
			DELETE FROM notifications
			WHERE notification_id IN (
				SELECT notification_id FROM notifications
				WHERE created_at < $1 AND (status IN ('delivered','failed','cancelled') OR expires_at <= now())
				ORDER BY created_at ASC
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			RETURNING `+notificationColumns+`
		)
		INSERT INTO notifications_archive SELECT * FROM moved RETURNING notification_id`,
		cutoff, batchSize,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: archive older than: %w", err)
	}
	defer rows.Close()
	count := 0
	for rows.Next() {
		count++
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("postgres: archive older than: %w", err)
	}
	return count, nil
}

// prefixColumns qualifies a comma-separated column list with alias, needed
// when a RETURNING clause follows an UPDATE ... FROM join.
func prefixColumns(alias, columns string) string {
	out := ""
	first := true
	for _, col := range splitColumns(columns) {
		if !first {
			out += ", "
		}
		out += alias + "." + col
		first = false
	}
	return out
}

func splitColumns(columns string) []string {
	var out []string
	cur := ""
	for _, r := range columns {
		switch r {
		case ',':
			out = append(out, trimSpace(cur))
			cur = ""
		case '\n', '\t':
		default:
			cur += string(r)
		}
	}
	if trimSpace(cur) != "" {
		out = append(out, trimSpace(cur))
	}
	return out
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && s[start] == ' ' {
		start++
	}
	for end > start && s[end-1] == ' ' {
		end--
	}
	return s[start:end]
}

type notificationRow struct {
	notificationID       uuid.UUID
	userID               string
	title                string
	body                 string
	data                 []byte
	imageURL             string
	iconURL              string
	category             string
	priority             string
	tags                 []string
	urgent               bool
	scheduleAt           *time.Time
	timezone             string
	expiresAt            time.Time
	status               string
	isRead               bool
	readAt               *time.Time
	lockedBy             pgtype.Text
	lockedAt             *time.Time
	lockExpiry           *time.Time
	deliveryAttempts     int
	deliveryLastAttempt  *time.Time
	devices              []byte
	interactions         []byte
	source               string
	campaign             string
	metadata             []byte
	resourceID           string
	createdAt            time.Time
	updatedAt            time.Time
}

func scanNotification(row pgx.Row) (*model.Notification, error) {
	var rr notificationRow
	err := row.Scan(
		&rr.notificationID, &rr.userID, &rr.title, &rr.body, &rr.data, &rr.imageURL, &rr.iconURL,
		&rr.category, &rr.priority, &rr.tags, &rr.urgent, &rr.scheduleAt, &rr.timezone, &rr.expiresAt,
		&rr.status, &rr.isRead, &rr.readAt, &rr.lockedBy, &rr.lockedAt, &rr.lockExpiry,
		&rr.deliveryAttempts, &rr.deliveryLastAttempt, &rr.devices, &rr.interactions,
		&rr.source, &rr.campaign, &rr.metadata, &rr.resourceID, &rr.createdAt, &rr.updatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rr.toDomain()
}

func collectNotifications(rows pgx.Rows) ([]*model.Notification, error) {
	defer rows.Close()
	var out []*model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan notification row: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (rr *notificationRow) toDomain() (*model.Notification, error) {
	n := &model.Notification{
		NotificationID: rr.notificationID,
		UserID:         rr.userID,
		Title:          rr.title,
		Body:           rr.body,
		ImageURL:       rr.imageURL,
		IconURL:        rr.iconURL,
		Category:       model.Category(rr.category),
		Priority:       model.Priority(rr.priority),
		Tags:           rr.tags,
		Urgent:         rr.urgent,
		ScheduleAt:     rr.scheduleAt,
		Timezone:       rr.timezone,
		ExpiresAt:      rr.expiresAt,
		Status:         model.Status(rr.status),
		IsRead:         rr.isRead,
		ReadAt:         rr.readAt,
		LockedAt:       rr.lockedAt,
		LockExpiry:     rr.lockExpiry,
		Source:         rr.source,
		Campaign:       rr.campaign,
		ResourceID:     rr.resourceID,
		CreatedAt:      rr.createdAt,
		UpdatedAt:      rr.updatedAt,
		Delivery: model.Delivery{
			Attempts:    rr.deliveryAttempts,
			LastAttempt: rr.deliveryLastAttempt,
		},
	}
	if rr.lockedBy.Valid {
		n.LockedBy = rr.lockedBy.String
	}
	if err := unmarshalJSON(rr.data, &n.Data); err != nil {
		return nil, fmt.Errorf("unmarshal data: %w", err)
	}
	if err := unmarshalJSON(rr.metadata, &n.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if err := unmarshalJSON(rr.devices, &n.Delivery.Devices); err != nil {
		return nil, fmt.Errorf("unmarshal devices: %w", err)
	}
	if err := unmarshalJSON(rr.interactions, &n.Interactions); err != nil {
		return nil, fmt.Errorf("unmarshal interactions: %w", err)
	}
	return n, nil
}

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("postgres: marshal jsonb: %w", err)
	}
	return b, nil
}

func unmarshalJSON(b []byte, v any) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return json.Unmarshal(b, v)
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
