package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"feed-engine/internal/domain"
	"feed-engine/internal/infra/metrics"
)

// InsertEdge реализует domain.FollowRepo.
func (p *Postgres) InsertEdge(ctx context.Context, follower, followee domain.UserID, at time.Time) (bool, error) {
	if follower == followee {
		return false, domain.ErrSelfFollow
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
INSERT INTO follow_edges (follower_id, followee_id, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (follower_id, followee_id) DO NOTHING
`, int64(follower), int64(followee), at.UTC())
	metrics.ObserveNetworkRequest("postgres", "follow_edges_insert", "follow_edges", start, err)
	if err != nil {
		if pgCode(err) == pgCheckViolation {
			return false, domain.ErrSelfFollow
		}
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// DeleteEdge реализует domain.FollowRepo.
func (p *Postgres) DeleteEdge(ctx context.Context, follower, followee domain.UserID) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `DELETE FROM follow_edges WHERE follower_id=$1 AND followee_id=$2`, int64(follower), int64(followee))
	metrics.ObserveNetworkRequest("postgres", "follow_edges_delete", "follow_edges", start, err)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// EdgeExists реализует domain.FollowRepo.
func (p *Postgres) EdgeExists(ctx context.Context, follower, followee domain.UserID) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var exists bool
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM follow_edges WHERE follower_id=$1 AND followee_id=$2)`, int64(follower), int64(followee)).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "follow_edges_exists", "follow_edges", start, err)
	return exists, err
}

// ListFollowers реализует domain.FollowRepo.
func (p *Postgres) ListFollowers(ctx context.Context, user domain.UserID, before domain.Cursor, limit int) ([]domain.FollowEdge, error) {
	return p.listEdges(ctx, "follow_edges_list_followers", `
SELECT follower_id, followee_id, created_at
FROM follow_edges
WHERE followee_id = $1
  AND ($2::timestamptz IS NULL OR (created_at, follower_id) < ($2, $3))
ORDER BY created_at DESC, follower_id DESC
LIMIT $4
`, user, before, limit)
}

// ListFollowing реализует domain.FollowRepo.
func (p *Postgres) ListFollowing(ctx context.Context, user domain.UserID, before domain.Cursor, limit int) ([]domain.FollowEdge, error) {
	return p.listEdges(ctx, "follow_edges_list_following", `
SELECT follower_id, followee_id, created_at
FROM follow_edges
WHERE follower_id = $1
  AND ($2::timestamptz IS NULL OR (created_at, followee_id) < ($2, $3))
ORDER BY created_at DESC, followee_id DESC
LIMIT $4
`, user, before, limit)
}

func (p *Postgres) listEdges(ctx context.Context, op, query string, user domain.UserID, before domain.Cursor, limit int) ([]domain.FollowEdge, error) {
	if limit <= 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	at, id := cursorArgs(before)
	start := time.Now()
	rows, err := p.pool.Query(ctx, query, int64(user), at, id, limit)
	metrics.ObserveNetworkRequest("postgres", op, "follow_edges", start, err)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.FollowEdge, error) {
		var (
			edge               domain.FollowEdge
			follower, followee int64
		)
		err := row.Scan(&follower, &followee, &edge.CreatedAt)
		edge.FollowerID = domain.UserID(follower)
		edge.FolloweeID = domain.UserID(followee)
		edge.CreatedAt = edge.CreatedAt.UTC()
		return edge, err
	})
}

// AllFollowing реализует domain.FollowRepo.
func (p *Postgres) AllFollowing(ctx context.Context, user domain.UserID) ([]domain.UserID, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT followee_id FROM follow_edges WHERE follower_id=$1`, int64(user))
	metrics.ObserveNetworkRequest("postgres", "follow_edges_all_following", "follow_edges", start, err)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.UserID, error) {
		var id int64
		err := row.Scan(&id)
		return domain.UserID(id), err
	})
}

// CountEdges реализует domain.FollowRepo.
func (p *Postgres) CountEdges(ctx context.Context, user domain.UserID) (domain.GraphStats, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var stats domain.GraphStats
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT
    (SELECT count(*) FROM follow_edges WHERE followee_id = $1),
    (SELECT count(*) FROM follow_edges WHERE follower_id = $1)
`, int64(user)).Scan(&stats.Followers, &stats.Following)
	metrics.ObserveNetworkRequest("postgres", "follow_edges_count", "follow_edges", start, err)
	return stats, err
}
