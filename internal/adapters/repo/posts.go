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

const postColumns = `id, author_id, body, hashtags, COALESCE(image_ref, ''), parent_id, created_at, deleted_at`

func scanPost(row pgx.Row) (domain.Post, error) {
	var (
		post      domain.Post
		id        int64
		author    int64
		parentID  sql.NullInt64
		deletedAt sql.NullTime
	)
	if err := row.Scan(&id, &author, &post.Body, &post.Hashtags, &post.ImageRef, &parentID, &post.CreatedAt, &deletedAt); err != nil {
		return domain.Post{}, err
	}
	post.ID = domain.PostID(id)
	post.AuthorID = domain.UserID(author)
	post.CreatedAt = post.CreatedAt.UTC()
	if parentID.Valid {
		parent := domain.PostID(parentID.Int64)
		post.ParentID = &parent
	}
	if deletedAt.Valid {
		ts := deletedAt.Time.UTC()
		post.DeletedAt = &ts
	}
	if post.Hashtags == nil {
		post.Hashtags = []string{}
	}
	return post, nil
}

func collectPosts(rows pgx.Rows) ([]domain.Post, error) {
	defer rows.Close()
	var posts []domain.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// CreatePost реализует domain.PostRepo.
func (p *Postgres) CreatePost(ctx context.Context, in domain.NewPost) (domain.Post, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	hashtags := in.Hashtags
	if hashtags == nil {
		hashtags = []string{}
	}
	var parent *int64
	if in.ParentID != nil {
		id := int64(*in.ParentID)
		parent = &id
	}

	var post domain.Post
	err := p.inTx(ctx, "posts", func(tx pgx.Tx) error {
		if parent != nil {
			var deletedAt sql.NullTime
			start := time.Now()
			err := tx.QueryRow(ctx, `SELECT deleted_at FROM posts WHERE id=$1 FOR SHARE`, *parent).Scan(&deletedAt)
			metrics.ObserveNetworkRequest("postgres", "posts_lock_parent", "posts", start, err)
			if errors.Is(err, pgx.ErrNoRows) || (err == nil && deletedAt.Valid) {
				return fmt.Errorf("parent %d: %w", *parent, domain.ErrNotFound)
			}
			if err != nil {
				return err
			}
		}

		start := time.Now()
		row := tx.QueryRow(ctx, `
INSERT INTO posts (author_id, body, hashtags, image_ref, parent_id)
VALUES ($1, $2, $3, NULLIF($4, ''), $5)
RETURNING `+postColumns, int64(in.AuthorID), in.Body, hashtags, in.ImageRef, parent)
		var err error
		post, err = scanPost(row)
		metrics.ObserveNetworkRequest("postgres", "posts_insert", "posts", start, err)
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		batch.Queue(`INSERT INTO post_counters (post_id) VALUES ($1)`, int64(post.ID))
		if parent != nil {
			batch.Queue(`INSERT INTO interactions (actor_id, post_id, kind, created_at) VALUES ($1, $2, 'reply', $3)`, int64(post.AuthorID), *parent, post.CreatedAt)
			batch.Queue(`UPDATE post_counters SET reply_count = reply_count + 1 WHERE post_id=$1`, *parent)
		}
		if post.HasImage() {
			batch.Queue(`INSERT INTO emotion_tags (post_id, state, updated_at) VALUES ($1, 'pending', $2)`, int64(post.ID), post.CreatedAt)
		}
		start = time.Now()
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				metrics.ObserveNetworkRequest("postgres", "posts_create_batch", "posts", start, err)
				return err
			}
		}
		err = br.Close()
		metrics.ObserveNetworkRequest("postgres", "posts_create_batch", "posts", start, err)
		return err
	})
	if err != nil {
		return domain.Post{}, err
	}
	return post, nil
}

// GetPost реализует domain.PostRepo.
func (p *Postgres) GetPost(ctx context.Context, id domain.PostID) (domain.Post, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	post, err := scanPost(p.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id=$1`, int64(id)))
	metrics.ObserveNetworkRequest("postgres", "posts_get", "posts", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Post{}, fmt.Errorf("post %d: %w", id, domain.ErrNotFound)
	}
	return post, err
}

// GetPosts реализует domain.PostRepo.
func (p *Postgres) GetPosts(ctx context.Context, ids []domain.PostID) (map[domain.PostID]domain.Post, error) {
	out := make(map[domain.PostID]domain.Post, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ANY($1)`, postIDs(ids))
	metrics.ObserveNetworkRequest("postgres", "posts_get_many", "posts", start, err)
	if err != nil {
		return nil, err
	}
	posts, err := collectPosts(rows)
	if err != nil {
		return nil, err
	}
	for _, post := range posts {
		out[post.ID] = post
	}
	return out, nil
}

// ListByAuthors реализует domain.PostRepo.
func (p *Postgres) ListByAuthors(ctx context.Context, authors []domain.UserID, before domain.Cursor, limit int) ([]domain.Post, error) {
	if len(authors) == 0 || limit <= 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	at, id := cursorArgs(before)
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+postColumns+`
FROM posts
WHERE author_id = ANY($1) AND deleted_at IS NULL
  AND ($2::timestamptz IS NULL OR (created_at, id) < ($2, $3))
ORDER BY created_at DESC, id DESC
LIMIT $4
`, userIDs(authors), at, id, limit)
	metrics.ObserveNetworkRequest("postgres", "posts_list_by_authors", "posts", start, err)
	if err != nil {
		return nil, err
	}
	return collectPosts(rows)
}

// ListReplies реализует domain.PostRepo.
func (p *Postgres) ListReplies(ctx context.Context, parent domain.PostID, after domain.Cursor, limit int) ([]domain.Post, error) {
	if limit <= 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	at, id := cursorArgs(after)
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+postColumns+`
FROM posts
WHERE parent_id = $1 AND deleted_at IS NULL
  AND ($2::timestamptz IS NULL OR (created_at, id) > ($2, $3))
ORDER BY created_at, id
LIMIT $4
`, int64(parent), at, id, limit)
	metrics.ObserveNetworkRequest("postgres", "posts_list_replies", "posts", start, err)
	if err != nil {
		return nil, err
	}
	return collectPosts(rows)
}

// SoftDelete реализует domain.PostRepo. Повторное удаление ничего не меняет.
func (p *Postgres) SoftDelete(ctx context.Context, id domain.PostID, at time.Time) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var found bool
	err := p.pool.QueryRow(ctx, `
WITH upd AS (
    UPDATE posts SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL RETURNING id
)
SELECT EXISTS (SELECT 1 FROM posts WHERE id = $1)
`, int64(id), at.UTC()).Scan(&found)
	metrics.ObserveNetworkRequest("postgres", "posts_soft_delete", "posts", start, err)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("post %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// CountByAuthor реализует domain.PostRepo.
func (p *Postgres) CountByAuthor(ctx context.Context, author domain.UserID) (int64, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var n int64
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM posts WHERE author_id=$1 AND deleted_at IS NULL`, int64(author)).Scan(&n)
	metrics.ObserveNetworkRequest("postgres", "posts_count_by_author", "posts", start, err)
	return n, err
}

// RecentAuthors реализует domain.PostRepo.
func (p *Postgres) RecentAuthors(ctx context.Context, since time.Time, exclude []domain.UserID, limit int) ([]domain.AuthorActivity, error) {
	if limit <= 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT author_id, max(created_at) AS last_post_at
FROM posts
WHERE deleted_at IS NULL AND created_at >= $1 AND NOT (author_id = ANY($2))
GROUP BY author_id
ORDER BY last_post_at DESC, author_id DESC
LIMIT $3
`, since.UTC(), userIDs(exclude), limit)
	metrics.ObserveNetworkRequest("postgres", "posts_recent_authors", "posts", start, err)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AuthorActivity, error) {
		var (
			a      domain.AuthorActivity
			author int64
		)
		if err := row.Scan(&author, &a.LastPostAt); err != nil {
			return domain.AuthorActivity{}, err
		}
		a.UserID = domain.UserID(author)
		a.LastPostAt = a.LastPostAt.UTC()
		return a, nil
	})
}
