package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"feed-engine/internal/domain"
	"feed-engine/internal/infra/metrics"
)

const tagColumns = `post_id, state, label, confidence, retry_count, in_flight, updated_at`

func scanTag(row pgx.Row) (domain.EmotionTag, error) {
	var (
		tag        domain.EmotionTag
		postID     int64
		state      string
		label      sql.NullString
		confidence sql.NullFloat64
	)
	if err := row.Scan(&postID, &state, &label, &confidence, &tag.RetryCount, &tag.InFlight, &tag.UpdatedAt); err != nil {
		return domain.EmotionTag{}, err
	}
	tag.PostID = domain.PostID(postID)
	tag.State = domain.EmotionState(state)
	tag.UpdatedAt = tag.UpdatedAt.UTC()
	if label.Valid {
		tag.Label = label.String
	}
	if confidence.Valid {
		c := confidence.Float64
		tag.Confidence = &c
	}
	return tag, nil
}

// GetTag реализует domain.EmotionTagRepo.
func (p *Postgres) GetTag(ctx context.Context, post domain.PostID) (domain.EmotionTag, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := scanTag(p.pool.QueryRow(ctx, `SELECT `+tagColumns+` FROM emotion_tags WHERE post_id=$1`, int64(post)))
	metrics.ObserveNetworkRequest("postgres", "emotion_tags_get", "emotion_tags", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EmotionTag{}, fmt.Errorf("tag %d: %w", post, domain.ErrNotFound)
	}
	return tag, err
}

// GetTags реализует domain.EmotionTagRepo.
func (p *Postgres) GetTags(ctx context.Context, posts []domain.PostID) (map[domain.PostID]domain.EmotionTag, error) {
	out := make(map[domain.PostID]domain.EmotionTag, len(posts))
	if len(posts) == 0 {
		return out, nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+tagColumns+` FROM emotion_tags WHERE post_id = ANY($1)`, postIDs(posts))
	metrics.ObserveNetworkRequest("postgres", "emotion_tags_get_many", "emotion_tags", start, err)
	if err != nil {
		return nil, err
	}
	tags, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.EmotionTag, error) { return scanTag(row) })
	if err != nil {
		return nil, err
	}
	for _, tag := range tags {
		out[tag.PostID] = tag
	}
	return out, nil
}

// ClaimAttempt реализует domain.EmotionTagRepo.
func (p *Postgres) ClaimAttempt(ctx context.Context, post domain.PostID, now, staleBefore time.Time) (domain.EmotionTag, bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := scanTag(p.pool.QueryRow(ctx, `
UPDATE emotion_tags
SET in_flight = TRUE, retry_count = retry_count + 1, updated_at = $2
WHERE post_id = $1 AND state = 'pending' AND (NOT in_flight OR updated_at < $3)
RETURNING `+tagColumns, int64(post), now.UTC(), staleBefore.UTC()))
	metrics.ObserveNetworkRequest("postgres", "emotion_tags_claim", "emotion_tags", start, err)
	if err == nil {
		return tag, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.EmotionTag{}, false, err
	}
	tag, err = p.GetTag(ctx, post)
	if err != nil {
		return domain.EmotionTag{}, false, err
	}
	return tag, false, nil
}

// RenewAttempt реализует domain.EmotionTagRepo.
func (p *Postgres) RenewAttempt(ctx context.Context, post domain.PostID, now time.Time) (domain.EmotionTag, bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := scanTag(p.pool.QueryRow(ctx, `
UPDATE emotion_tags
SET retry_count = retry_count + 1, updated_at = $2
WHERE post_id = $1 AND state = 'pending' AND in_flight
RETURNING `+tagColumns, int64(post), now.UTC()))
	metrics.ObserveNetworkRequest("postgres", "emotion_tags_renew", "emotion_tags", start, err)
	if err == nil {
		return tag, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.EmotionTag{}, false, err
	}
	tag, err = p.GetTag(ctx, post)
	if err != nil {
		return domain.EmotionTag{}, false, err
	}
	return tag, false, nil
}

// ReleaseAttempt реализует domain.EmotionTagRepo.
func (p *Postgres) ReleaseAttempt(ctx context.Context, post domain.PostID, now time.Time, refund bool) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE emotion_tags
SET in_flight = FALSE,
    retry_count = CASE WHEN $3 AND retry_count > 0 THEN retry_count - 1 ELSE retry_count END,
    updated_at = $2
WHERE post_id = $1 AND state = 'pending' AND in_flight
`, int64(post), now.UTC(), refund)
	metrics.ObserveNetworkRequest("postgres", "emotion_tags_release", "emotion_tags", start, err)
	return err
}

// CompleteTag реализует domain.EmotionTagRepo.
func (p *Postgres) CompleteTag(ctx context.Context, post domain.PostID, label string, confidence float64, now time.Time) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
UPDATE emotion_tags
SET state = 'ready', label = $2, confidence = $3, in_flight = FALSE, updated_at = $4
WHERE post_id = $1 AND state = 'pending'
`, int64(post), label, confidence, now.UTC())
	metrics.ObserveNetworkRequest("postgres", "emotion_tags_complete", "emotion_tags", start, err)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// FailTag реализует domain.EmotionTagRepo.
func (p *Postgres) FailTag(ctx context.Context, post domain.PostID, now time.Time) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
UPDATE emotion_tags SET state = 'failed', in_flight = FALSE, updated_at = $2
WHERE post_id = $1 AND state = 'pending'
`, int64(post), now.UTC())
	metrics.ObserveNetworkRequest("postgres", "emotion_tags_fail", "emotion_tags", start, err)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// ListClaimable реализует domain.EmotionTagRepo.
func (p *Postgres) ListClaimable(ctx context.Context, staleBefore time.Time, limit int) ([]domain.EmotionTag, error) {
	if limit <= 0 {
		limit = 1000
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+tagColumns+` FROM emotion_tags
WHERE state = 'pending' AND (NOT in_flight OR updated_at < $1)
ORDER BY post_id
LIMIT $2
`, staleBefore.UTC(), limit)
	metrics.ObserveNetworkRequest("postgres", "emotion_tags_list_claimable", "emotion_tags", start, err)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.EmotionTag, error) { return scanTag(row) })
}

const moodColumns = `t.post_id, p.author_id, t.label, t.confidence, p.created_at, t.updated_at`

func scanMood(row pgx.Row) (domain.MoodEntry, error) {
	var (
		entry      domain.MoodEntry
		postID     int64
		authorID   int64
		label      sql.NullString
		confidence sql.NullFloat64
	)
	if err := row.Scan(&postID, &authorID, &label, &confidence, &entry.PostedAt, &entry.AnalyzedAt); err != nil {
		return domain.MoodEntry{}, err
	}
	entry.PostID = domain.PostID(postID)
	entry.AuthorID = domain.UserID(authorID)
	entry.Label = label.String
	entry.Confidence = confidence.Float64
	entry.PostedAt = entry.PostedAt.UTC()
	entry.AnalyzedAt = entry.AnalyzedAt.UTC()
	return entry, nil
}

// ListReadyByAuthor реализует domain.EmotionTagRepo.
func (p *Postgres) ListReadyByAuthor(ctx context.Context, author domain.UserID, before domain.Cursor, limit int) ([]domain.MoodEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	at, id := cursorArgs(before)
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+moodColumns+`
FROM emotion_tags t
JOIN posts p ON p.id = t.post_id
WHERE p.author_id = $1 AND p.deleted_at IS NULL AND t.state = 'ready'
  AND ($2::timestamptz IS NULL OR (p.created_at, p.id) < ($2, $3))
ORDER BY p.created_at DESC, p.id DESC
LIMIT $4
`, int64(author), at, id, limit)
	metrics.ObserveNetworkRequest("postgres", "emotion_tags_ready_by_author", "emotion_tags", start, err)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.MoodEntry, error) { return scanMood(row) })
}

// LatestMoods реализует domain.EmotionTagRepo.
func (p *Postgres) LatestMoods(ctx context.Context, authors []domain.UserID, since time.Time) (map[domain.UserID]domain.MoodEntry, error) {
	out := make(map[domain.UserID]domain.MoodEntry, len(authors))
	if len(authors) == 0 {
		return out, nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT DISTINCT ON (p.author_id) `+moodColumns+`
FROM emotion_tags t
JOIN posts p ON p.id = t.post_id
WHERE p.author_id = ANY($1) AND p.deleted_at IS NULL AND t.state = 'ready' AND p.created_at >= $2
ORDER BY p.author_id, p.created_at DESC, p.id DESC
`, userIDs(authors), since.UTC())
	metrics.ObserveNetworkRequest("postgres", "emotion_tags_latest_moods", "emotion_tags", start, err)
	if err != nil {
		return nil, err
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.MoodEntry, error) { return scanMood(row) })
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		out[entry.AuthorID] = entry
	}
	return out, nil
}
