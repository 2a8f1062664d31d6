package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"feed-engine/internal/domain"
	"feed-engine/internal/infra/metrics"
)

// Service собирает ленту и треды из постов, графа, реакций и эмоциональных тегов.
// Блокировки на всю страницу не берутся: счётчики и теги читаются снимком на момент запроса.
type Service struct {
	posts        domain.PostRepo
	follows      domain.FollowRepo
	interactions domain.InteractionRepo
	tags         domain.EmotionTagRepo
	limits       domain.PageLimits
	log          zerolog.Logger
	now          func() time.Time
}

// NewService создаёт сборщик ленты.
func NewService(posts domain.PostRepo, follows domain.FollowRepo, interactions domain.InteractionRepo, tags domain.EmotionTagRepo, limits domain.PageLimits, logger zerolog.Logger) *Service {
	return &Service{
		posts:        posts,
		follows:      follows,
		interactions: interactions,
		tags:         tags,
		limits:       limits,
		log:          logger,
		now:          time.Now,
	}
}

// GetFeed возвращает посты читателя и тех, на кого он подписан, по убыванию (created_at, id).
func (s *Service) GetFeed(ctx context.Context, viewer domain.UserID, before domain.Cursor, limit int) (domain.Page[domain.FeedItem], error) {
	start := time.Now()
	defer metrics.ObserveFeedBuild(start)

	limit = s.limits.Clamp(limit)
	following, err := s.follows.AllFollowing(ctx, viewer)
	if err != nil {
		return domain.Page[domain.FeedItem]{}, fmt.Errorf("подписки читателя: %w", err)
	}
	authors := lo.Uniq(append(following, viewer))
	rows, err := s.posts.ListByAuthors(ctx, authors, before, limit+1)
	if err != nil {
		return domain.Page[domain.FeedItem]{}, fmt.Errorf("посты ленты: %w", err)
	}
	return s.page(ctx, viewer, rows, limit)
}

// ListByAuthor возвращает посты автора с производными данными.
func (s *Service) ListByAuthor(ctx context.Context, viewer, author domain.UserID, before domain.Cursor, limit int) (domain.Page[domain.FeedItem], error) {
	limit = s.limits.Clamp(limit)
	rows, err := s.posts.ListByAuthors(ctx, []domain.UserID{author}, before, limit+1)
	if err != nil {
		return domain.Page[domain.FeedItem]{}, fmt.Errorf("посты автора: %w", err)
	}
	return s.page(ctx, viewer, rows, limit)
}

// GetPost возвращает неудалённый пост со счётчиками, тегом и реакциями читателя.
func (s *Service) GetPost(ctx context.Context, viewer domain.UserID, id domain.PostID) (domain.FeedItem, error) {
	post, err := s.livePost(ctx, id)
	if err != nil {
		return domain.FeedItem{}, err
	}
	items, err := s.decorate(ctx, viewer, []domain.Post{post})
	if err != nil {
		return domain.FeedItem{}, err
	}
	return items[0], nil
}

// GetThread возвращает пост, ссылку на родителя и прямые ответы по возрастанию времени.
// Удалённый родитель показывается как сирота, а не как ошибка.
func (s *Service) GetThread(ctx context.Context, viewer domain.UserID, id domain.PostID, after domain.Cursor, limit int) (domain.Thread, error) {
	root, err := s.GetPost(ctx, viewer, id)
	if err != nil {
		return domain.Thread{}, err
	}
	thread := domain.Thread{Root: root}
	if root.Post.ParentID != nil {
		thread.Parent = s.parentRef(ctx, *root.Post.ParentID)
	}
	replies, err := s.replies(ctx, viewer, id, after, limit)
	if err != nil {
		return domain.Thread{}, err
	}
	thread.Replies = replies.Items
	thread.NextCursor = replies.NextCursor
	return thread, nil
}

// ListReplies возвращает прямые ответы на пост по возрастанию времени.
func (s *Service) ListReplies(ctx context.Context, viewer domain.UserID, id domain.PostID, after domain.Cursor, limit int) (domain.Page[domain.FeedItem], error) {
	if _, err := s.posts.GetPost(ctx, id); err != nil {
		return domain.Page[domain.FeedItem]{}, err
	}
	return s.replies(ctx, viewer, id, after, limit)
}

// ListBookmarks возвращает посты из закладок читателя, последние добавленные первыми.
// Курсор строится по времени закладки, удалённые посты пропускаются.
func (s *Service) ListBookmarks(ctx context.Context, viewer domain.UserID, before domain.Cursor, limit int) (domain.Page[domain.FeedItem], error) {
	limit = s.limits.Clamp(limit)
	rows, err := s.interactions.ListByActor(ctx, viewer, domain.KindBookmark, before, limit+1)
	if err != nil {
		return domain.Page[domain.FeedItem]{}, fmt.Errorf("закладки: %w", err)
	}
	rows, next := domain.TrimPage(rows, limit, func(in domain.Interaction) domain.Cursor {
		return domain.CursorAt(in.CreatedAt, int64(in.PostID))
	})
	ids := lo.Map(rows, func(in domain.Interaction, _ int) domain.PostID { return in.PostID })
	found, err := s.posts.GetPosts(ctx, ids)
	if err != nil {
		return domain.Page[domain.FeedItem]{}, fmt.Errorf("посты закладок: %w", err)
	}
	posts := make([]domain.Post, 0, len(ids))
	for _, id := range ids {
		if post, ok := found[id]; ok && !post.Deleted() {
			posts = append(posts, post)
		}
	}
	items, err := s.decorate(ctx, viewer, posts)
	if err != nil {
		return domain.Page[domain.FeedItem]{}, err
	}
	return domain.Page[domain.FeedItem]{Items: items, NextCursor: next}, nil
}

func (s *Service) replies(ctx context.Context, viewer domain.UserID, id domain.PostID, after domain.Cursor, limit int) (domain.Page[domain.FeedItem], error) {
	limit = s.limits.Clamp(limit)
	rows, err := s.posts.ListReplies(ctx, id, after, limit+1)
	if err != nil {
		return domain.Page[domain.FeedItem]{}, fmt.Errorf("ответы: %w", err)
	}
	return s.page(ctx, viewer, rows, limit)
}

func (s *Service) page(ctx context.Context, viewer domain.UserID, rows []domain.Post, limit int) (domain.Page[domain.FeedItem], error) {
	posts, next := domain.TrimPage(rows, limit, domain.PostCursor)
	items, err := s.decorate(ctx, viewer, posts)
	if err != nil {
		return domain.Page[domain.FeedItem]{}, err
	}
	return domain.Page[domain.FeedItem]{Items: items, NextCursor: next}, nil
}

// decorate добавляет к постам счётчики, реакции читателя и теги тремя пакетными чтениями.
// Недоступные теги не ломают выдачу: пост показывается с тегом в pending.
func (s *Service) decorate(ctx context.Context, viewer domain.UserID, posts []domain.Post) ([]domain.FeedItem, error) {
	items := make([]domain.FeedItem, 0, len(posts))
	if len(posts) == 0 {
		return items, nil
	}
	ids := lo.Map(posts, func(p domain.Post, _ int) domain.PostID { return p.ID })

	counts, err := s.interactions.CountsMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("счётчики: %w", err)
	}
	viewerState, err := s.interactions.ViewerState(ctx, viewer, ids)
	if err != nil {
		return nil, fmt.Errorf("реакции читателя: %w", err)
	}
	withImage := lo.FilterMap(posts, func(p domain.Post, _ int) (domain.PostID, bool) { return p.ID, p.HasImage() })
	tags := map[domain.PostID]domain.EmotionTag{}
	if len(withImage) > 0 {
		if tags, err = s.tags.GetTags(ctx, withImage); err != nil {
			s.log.Warn().Err(err).Msg("feed: теги недоступны, показываем pending")
			tags = map[domain.PostID]domain.EmotionTag{}
		}
	}

	for _, post := range posts {
		items = append(items, domain.FeedItem{
			Post:    post,
			Counts:  counts[post.ID],
			Viewer:  viewerState[post.ID],
			Emotion: tagView(post, tags),
		})
	}
	return items, nil
}

func (s *Service) parentRef(ctx context.Context, id domain.PostID) *domain.ParentRef {
	parent, err := s.posts.GetPost(ctx, id)
	if err != nil || parent.Deleted() {
		if err != nil {
			s.log.Debug().Err(err).Int64("post_id", int64(id)).Msg("feed: родитель недоступен")
		}
		return &domain.ParentRef{ID: id, Deleted: true}
	}
	return &domain.ParentRef{ID: id, Post: &parent}
}

func (s *Service) livePost(ctx context.Context, id domain.PostID) (domain.Post, error) {
	post, err := s.posts.GetPost(ctx, id)
	if err != nil {
		return domain.Post{}, err
	}
	if post.Deleted() {
		return domain.Post{}, fmt.Errorf("post %d: %w", id, domain.ErrNotFound)
	}
	return post, nil
}

// TagView возвращает отображаемое состояние тега поста.
func TagView(post domain.Post, tag *domain.EmotionTag) domain.TagView {
	if !post.HasImage() {
		return domain.TagView{State: domain.EmotionNone}
	}
	if tag == nil {
		return domain.TagView{State: domain.EmotionPending}
	}
	view := domain.TagView{State: tag.State}
	if tag.State == domain.EmotionReady {
		view.Label = tag.Label
		view.Confidence = tag.Confidence
	}
	return view
}

func tagView(post domain.Post, tags map[domain.PostID]domain.EmotionTag) domain.TagView {
	tag, ok := tags[post.ID]
	if !ok {
		return TagView(post, nil)
	}
	return TagView(post, &tag)
}
