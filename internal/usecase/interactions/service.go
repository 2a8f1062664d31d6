package interactions

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"feed-engine/internal/domain"
	"feed-engine/internal/infra/metrics"
)

// Service ведёт реакции на посты и их счётчики.
type Service struct {
	repo     domain.InteractionRepo
	posts    domain.PostRepo
	notifier domain.Notifier
	limits   domain.PageLimits
	log      zerolog.Logger
	now      func() time.Time
}

// NewService создаёт сервис реакций.
func NewService(repo domain.InteractionRepo, posts domain.PostRepo, notifier domain.Notifier, limits domain.PageLimits, logger zerolog.Logger) *Service {
	return &Service{repo: repo, posts: posts, notifier: notifier, limits: limits, log: logger, now: time.Now}
}

// Apply записывает реакцию. Повтор уникальной реакции возвращает AlreadyApplied, а не ошибку.
// Ответы создаются через сервис постов, поэтому kind=reply здесь отклоняется.
func (s *Service) Apply(ctx context.Context, actor domain.UserID, postID domain.PostID, kind domain.InteractionKind) (domain.ApplyResult, error) {
	if err := validateKind(kind); err != nil {
		return domain.ApplyResult{}, err
	}
	if actor <= 0 {
		return domain.ApplyResult{}, fmt.Errorf("%w: actor is required", domain.ErrValidation)
	}
	post, err := s.livePost(ctx, postID)
	if err != nil {
		return domain.ApplyResult{}, err
	}
	applied, counts, err := s.repo.InsertInteraction(ctx, domain.Interaction{
		ActorID:   actor,
		PostID:    postID,
		Kind:      kind,
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.ApplyResult{}, fmt.Errorf("запись реакции: %w", err)
	}
	if !applied {
		metrics.IncInteraction(string(kind), string(domain.OutcomeAlreadyApplied))
		return domain.ApplyResult{Outcome: domain.OutcomeAlreadyApplied, Counts: counts}, nil
	}
	metrics.IncInteraction(string(kind), string(domain.OutcomeApplied))
	s.notify(ctx, actor, post, kind)
	return domain.ApplyResult{Outcome: domain.OutcomeApplied, Counts: counts}, nil
}

// Revoke снимает реакцию. Отсутствующая реакция не ошибка, счётчик не меняется.
// Снять реакцию можно и с удалённого поста.
func (s *Service) Revoke(ctx context.Context, actor domain.UserID, postID domain.PostID, kind domain.InteractionKind) (domain.Counts, error) {
	if err := validateKind(kind); err != nil {
		return domain.Counts{}, err
	}
	if _, err := s.posts.GetPost(ctx, postID); err != nil {
		return domain.Counts{}, err
	}
	removed, counts, err := s.repo.DeleteInteraction(ctx, actor, postID, kind)
	if err != nil {
		return domain.Counts{}, fmt.Errorf("снятие реакции: %w", err)
	}
	outcome := "revoked"
	if !removed {
		outcome = "not_applied"
	}
	metrics.IncInteraction(string(kind), outcome)
	return counts, nil
}

// GetCounts возвращает текущие счётчики поста.
func (s *Service) GetCounts(ctx context.Context, postID domain.PostID) (domain.Counts, error) {
	return s.repo.Counts(ctx, postID)
}

// ListBookmarks возвращает закладки пользователя, новые первыми.
func (s *Service) ListBookmarks(ctx context.Context, actor domain.UserID, before domain.Cursor, limit int) (domain.Page[domain.Interaction], error) {
	limit = s.limits.Clamp(limit)
	rows, err := s.repo.ListByActor(ctx, actor, domain.KindBookmark, before, limit+1)
	if err != nil {
		return domain.Page[domain.Interaction]{}, fmt.Errorf("закладки: %w", err)
	}
	items, next := domain.TrimPage(rows, limit, func(in domain.Interaction) domain.Cursor {
		return domain.CursorAt(in.CreatedAt, int64(in.PostID))
	})
	return domain.Page[domain.Interaction]{Items: items, NextCursor: next}, nil
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

func (s *Service) notify(ctx context.Context, actor domain.UserID, post domain.Post, kind domain.InteractionKind) {
	if s.notifier == nil || actor == post.AuthorID {
		return
	}
	var typ domain.NotificationType
	switch kind {
	case domain.KindLike:
		typ = domain.NotifyLike
	case domain.KindRetweet:
		typ = domain.NotifyRetweet
	default:
		return
	}
	postID := post.ID
	s.notifier.Notify(ctx, domain.Notification{UserID: post.AuthorID, Type: typ, ActorID: actor, PostID: &postID})
}

func validateKind(kind domain.InteractionKind) error {
	if _, err := domain.ParseInteractionKind(string(kind)); err != nil {
		return err
	}
	if !kind.Unique() {
		return fmt.Errorf("%w: %s is created as a reply post", domain.ErrValidation, kind)
	}
	return nil
}
