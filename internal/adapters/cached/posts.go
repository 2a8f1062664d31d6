// Package cached содержит декораторы репозиториев со сквозным кэшированием чтений.
package cached

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"feed-engine/internal/domain"
)

// PostRepo кэширует посты по id. Источником истины остаётся вложенный репозиторий:
// ошибки кэша только логируются, запись инвалидирует ключ.
type PostRepo struct {
	domain.PostRepo
	cache domain.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

var _ domain.PostRepo = (*PostRepo)(nil)

// NewPostRepo оборачивает репозиторий постов кэшем.
func NewPostRepo(inner domain.PostRepo, cache domain.Cache, ttl time.Duration, logger zerolog.Logger) *PostRepo {
	return &PostRepo{PostRepo: inner, cache: cache, ttl: ttl, log: logger}
}

func postKey(id domain.PostID) string {
	return "post:" + id.String()
}

// GetPost читает пост из кэша, при промахе — из репозитория.
func (r *PostRepo) GetPost(ctx context.Context, id domain.PostID) (domain.Post, error) {
	if post, ok := r.lookup(ctx, id); ok {
		return post, nil
	}
	post, err := r.PostRepo.GetPost(ctx, id)
	if err != nil {
		return domain.Post{}, err
	}
	r.store(ctx, post)
	return post, nil
}

// GetPosts читает из кэша всё, что есть, остальное догружает одним запросом.
func (r *PostRepo) GetPosts(ctx context.Context, ids []domain.PostID) (map[domain.PostID]domain.Post, error) {
	out := make(map[domain.PostID]domain.Post, len(ids))
	var missing []domain.PostID
	for _, id := range ids {
		if post, ok := r.lookup(ctx, id); ok {
			out[id] = post
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}
	loaded, err := r.PostRepo.GetPosts(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, post := range loaded {
		out[id] = post
		r.store(ctx, post)
	}
	return out, nil
}

// SoftDelete помечает пост удалённым и сбрасывает кэш.
func (r *PostRepo) SoftDelete(ctx context.Context, id domain.PostID, at time.Time) error {
	if err := r.PostRepo.SoftDelete(ctx, id, at); err != nil {
		return err
	}
	if err := r.cache.Delete(ctx, postKey(id)); err != nil {
		r.log.Warn().Err(err).Int64("post_id", int64(id)).Msg("cache: не удалось сбросить пост")
	}
	return nil
}

func (r *PostRepo) lookup(ctx context.Context, id domain.PostID) (domain.Post, bool) {
	data, err := r.cache.Get(ctx, postKey(id))
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			r.log.Warn().Err(err).Int64("post_id", int64(id)).Msg("cache: ошибка чтения")
		}
		return domain.Post{}, false
	}
	var post domain.Post
	if err := json.Unmarshal(data, &post); err != nil {
		r.log.Warn().Err(err).Int64("post_id", int64(id)).Msg("cache: повреждённая запись")
		_ = r.cache.Delete(ctx, postKey(id))
		return domain.Post{}, false
	}
	return post, true
}

func (r *PostRepo) store(ctx context.Context, post domain.Post) {
	data, err := json.Marshal(post)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, postKey(post.ID), data, r.ttl); err != nil {
		r.log.Warn().Err(err).Int64("post_id", int64(post.ID)).Msg("cache: не удалось сохранить пост")
	}
}
