package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"feed-engine/internal/domain"
	"feed-engine/internal/infra/metrics"
)

const counterColumns = `like_count, retweet_count, reply_count, bookmark_count`

// counterColumn возвращает колонку счётчика. Имя подставляется в SQL только из этого списка.
func counterColumn(kind domain.InteractionKind) (string, error) {
	switch kind {
	case domain.KindLike:
		return "like_count", nil
	case domain.KindRetweet:
		return "retweet_count", nil
	case domain.KindReply:
		return "reply_count", nil
	case domain.KindBookmark:
		return "bookmark_count", nil
	}
	return "", fmt.Errorf("%w: unknown interaction kind %q", domain.ErrValidation, kind)
}

func scanCounts(row pgx.Row) (domain.Counts, error) {
	var c domain.Counts
	err := row.Scan(&c.Likes, &c.Retweets, &c.Replies, &c.Bookmarks)
	return c, err
}

func selectCounts(ctx context.Context, q pgx.Tx, post domain.PostID) (domain.Counts, error) {
	counts, err := scanCounts(q.QueryRow(ctx, `SELECT `+counterColumns+` FROM post_counters WHERE post_id=$1`, int64(post)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Counts{}, fmt.Errorf("post %d: %w", post, domain.ErrNotFound)
	}
	return counts, err
}

// InsertInteraction реализует domain.InteractionRepo.
func (p *Postgres) InsertInteraction(ctx context.Context, in domain.Interaction) (bool, domain.Counts, error) {
	if !in.Kind.Unique() {
		return false, domain.Counts{}, fmt.Errorf("%w: kind %q is not stored as interaction", domain.ErrValidation, in.Kind)
	}
	column, err := counterColumn(in.Kind)
	if err != nil {
		return false, domain.Counts{}, err
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		inserted bool
		counts   domain.Counts
	)
	err = p.inTx(ctx, "interactions", func(tx pgx.Tx) error {
		start := time.Now()
		res, err := tx.Exec(ctx, `
INSERT INTO interactions (actor_id, post_id, kind)
VALUES ($1, $2, $3)
ON CONFLICT (actor_id, post_id, kind) WHERE kind <> 'reply' DO NOTHING
`, int64(in.ActorID), int64(in.PostID), string(in.Kind))
		metrics.ObserveNetworkRequest("postgres", "interactions_insert", "interactions", start, err)
		if err != nil {
			if pgCode(err) == pgForeignKeyViolation {
				return fmt.Errorf("post %d: %w", in.PostID, domain.ErrNotFound)
			}
			return err
		}
		inserted = res.RowsAffected() > 0
		if !inserted {
			counts, err = selectCounts(ctx, tx, in.PostID)
			return err
		}
		start = time.Now()
		counts, err = scanCounts(tx.QueryRow(ctx, `
UPDATE post_counters SET `+column+` = `+column+` + 1
WHERE post_id = $1
RETURNING `+counterColumns, int64(in.PostID)))
		metrics.ObserveNetworkRequest("postgres", "post_counters_increment", "post_counters", start, err)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("post %d: %w", in.PostID, domain.ErrNotFound)
		}
		return err
	})
	if err != nil {
		return false, domain.Counts{}, err
	}
	return inserted, counts, nil
}

// DeleteInteraction реализует domain.InteractionRepo.
func (p *Postgres) DeleteInteraction(ctx context.Context, actor domain.UserID, post domain.PostID, kind domain.InteractionKind) (bool, domain.Counts, error) {
	column, err := counterColumn(kind)
	if err != nil {
		return false, domain.Counts{}, err
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		removed bool
		counts  domain.Counts
	)
	err = p.inTx(ctx, "interactions", func(tx pgx.Tx) error {
		start := time.Now()
		res, err := tx.Exec(ctx, `
DELETE FROM interactions
WHERE actor_id = $1 AND post_id = $2 AND kind = $3 AND kind <> 'reply'
`, int64(actor), int64(post), string(kind))
		metrics.ObserveNetworkRequest("postgres", "interactions_delete", "interactions", start, err)
		if err != nil {
			return err
		}
		removed = res.RowsAffected() > 0
		if !removed {
			counts, err = selectCounts(ctx, tx, post)
			return err
		}
		start = time.Now()
		counts, err = scanCounts(tx.QueryRow(ctx, `
UPDATE post_counters SET `+column+` = `+column+` - 1
WHERE post_id = $1 AND `+column+` > 0
RETURNING `+counterColumns, int64(post)))
		metrics.ObserveNetworkRequest("postgres", "post_counters_decrement", "post_counters", start, err)
		if errors.Is(err, pgx.ErrNoRows) {
			metrics.IncInvariantViolation("counter_underflow")
			counts, err = selectCounts(ctx, tx, post)
		}
		return err
	})
	if err != nil {
		return false, domain.Counts{}, err
	}
	return removed, counts, nil
}

// Counts реализует domain.InteractionRepo.
func (p *Postgres) Counts(ctx context.Context, post domain.PostID) (domain.Counts, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	counts, err := scanCounts(p.pool.QueryRow(ctx, `SELECT `+counterColumns+` FROM post_counters WHERE post_id=$1`, int64(post)))
	metrics.ObserveNetworkRequest("postgres", "post_counters_get", "post_counters", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Counts{}, fmt.Errorf("post %d: %w", post, domain.ErrNotFound)
	}
	return counts, err
}

// CountsMany реализует domain.InteractionRepo.
func (p *Postgres) CountsMany(ctx context.Context, posts []domain.PostID) (map[domain.PostID]domain.Counts, error) {
	out := make(map[domain.PostID]domain.Counts, len(posts))
	if len(posts) == 0 {
		return out, nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT post_id, `+counterColumns+` FROM post_counters WHERE post_id = ANY($1)`, postIDs(posts))
	metrics.ObserveNetworkRequest("postgres", "post_counters_get_many", "post_counters", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id int64
			c  domain.Counts
		)
		if err := rows.Scan(&id, &c.Likes, &c.Retweets, &c.Replies, &c.Bookmarks); err != nil {
			return nil, err
		}
		out[domain.PostID(id)] = c
	}
	return out, rows.Err()
}

// ViewerState реализует domain.InteractionRepo.
func (p *Postgres) ViewerState(ctx context.Context, viewer domain.UserID, posts []domain.PostID) (map[domain.PostID]domain.ViewerState, error) {
	out := make(map[domain.PostID]domain.ViewerState, len(posts))
	if viewer == 0 || len(posts) == 0 {
		return out, nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT post_id, kind FROM interactions
WHERE actor_id = $1 AND post_id = ANY($2) AND kind <> 'reply'
`, int64(viewer), postIDs(posts))
	metrics.ObserveNetworkRequest("postgres", "interactions_viewer_state", "interactions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   int64
			kind string
		)
		if err := rows.Scan(&id, &kind); err != nil {
			return nil, err
		}
		state := out[domain.PostID(id)]
		switch domain.InteractionKind(kind) {
		case domain.KindLike:
			state.Liked = true
		case domain.KindRetweet:
			state.Retweeted = true
		case domain.KindBookmark:
			state.Bookmarked = true
		}
		out[domain.PostID(id)] = state
	}
	return out, rows.Err()
}

// ListByActor реализует domain.InteractionRepo.
func (p *Postgres) ListByActor(ctx context.Context, actor domain.UserID, kind domain.InteractionKind, before domain.Cursor, limit int) ([]domain.Interaction, error) {
	if limit <= 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	at, id := cursorArgs(before)
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT post_id, created_at FROM interactions
WHERE actor_id = $1 AND kind = $2
  AND ($3::timestamptz IS NULL OR (created_at, post_id) < ($3, $4))
ORDER BY created_at DESC, post_id DESC
LIMIT $5
`, int64(actor), string(kind), at, id, limit)
	metrics.ObserveNetworkRequest("postgres", "interactions_list_by_actor", "interactions", start, err)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Interaction, error) {
		in := domain.Interaction{ActorID: actor, Kind: kind}
		var postID int64
		err := row.Scan(&postID, &in.CreatedAt)
		in.PostID = domain.PostID(postID)
		in.CreatedAt = in.CreatedAt.UTC()
		return in, err
	})
}
