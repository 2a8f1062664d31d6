package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"

	"feed-engine/internal/domain"
	"feed-engine/internal/infra/metrics"
)

// CreateNotification реализует domain.NotificationRepo.
func (p *Postgres) CreateNotification(ctx context.Context, n domain.Notification) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var postID *int64
	if n.PostID != nil {
		id := int64(*n.PostID)
		postID = &id
	}
	createdAt := n.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO notifications (user_id, type, actor_id, post_id, created_at)
VALUES ($1, $2, $3, $4, $5)
`, int64(n.UserID), string(n.Type), int64(n.ActorID), postID, createdAt)
	metrics.ObserveNetworkRequest("postgres", "notifications_insert", "notifications", start, err)
	return err
}

// ListNotifications реализует domain.NotificationRepo.
func (p *Postgres) ListNotifications(ctx context.Context, user domain.UserID, unreadOnly bool, before domain.Cursor, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	at, id := cursorArgs(before)
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, type, actor_id, post_id, read, created_at
FROM notifications
WHERE user_id = $1 AND (NOT $2 OR NOT read)
  AND ($3::timestamptz IS NULL OR (created_at, id) < ($3, $4))
ORDER BY created_at DESC, id DESC
LIMIT $5
`, int64(user), unreadOnly, at, id, limit)
	metrics.ObserveNetworkRequest("postgres", "notifications_list", "notifications", start, err)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Notification, error) {
		var n domain.Notification
		var userID, actor int64
		var typ string
		var postID sql.NullInt64
		if err := row.Scan(&n.ID, &userID, &typ, &actor, &postID, &n.Read, &n.CreatedAt); err != nil {
			return domain.Notification{}, err
		}
		n.UserID = domain.UserID(userID)
		n.ActorID = domain.UserID(actor)
		n.Type = domain.NotificationType(typ)
		n.CreatedAt = n.CreatedAt.UTC()
		if postID.Valid {
			id := domain.PostID(postID.Int64)
			n.PostID = &id
		}
		return n, nil
	})
}

// MarkAllRead реализует domain.NotificationRepo.
func (p *Postgres) MarkAllRead(ctx context.Context, user domain.UserID) (int64, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE user_id = $1 AND NOT read`, int64(user))
	metrics.ObserveNetworkRequest("postgres", "notifications_mark_read", "notifications", start, err)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}
