package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"feed-engine/internal/domain"
	"feed-engine/internal/infra/metrics"
)

// Stats — сводка по пользователю для профиля.
type Stats struct {
	Followers int64 `json:"followers"`
	Following int64 `json:"following"`
	Posts     int64 `json:"posts"`
}

// PostCounter считает посты автора.
type PostCounter interface {
	CountByAuthor(ctx context.Context, author domain.UserID) (int64, error)
}

// Service управляет подписками.
type Service struct {
	repo     domain.FollowRepo
	posts    PostCounter
	notifier domain.Notifier
	limits   domain.PageLimits
	log      zerolog.Logger
	now      func() time.Time
}

// NewService создаёт сервис графа подписок.
func NewService(repo domain.FollowRepo, posts PostCounter, notifier domain.Notifier, limits domain.PageLimits, logger zerolog.Logger) *Service {
	return &Service{repo: repo, posts: posts, notifier: notifier, limits: limits, log: logger, now: time.Now}
}

// Follow создаёт подписку. Повторная подписка не ошибка: Changed будет false.
func (s *Service) Follow(ctx context.Context, follower, followee domain.UserID) (domain.FollowResult, error) {
	if err := validatePair(follower, followee); err != nil {
		return domain.FollowResult{}, err
	}
	created, err := s.repo.InsertEdge(ctx, follower, followee, s.now())
	if err != nil {
		return domain.FollowResult{}, fmt.Errorf("подписка: %w", err)
	}
	metrics.IncFollow("follow", created)
	if created && s.notifier != nil {
		s.notifier.Notify(ctx, domain.Notification{UserID: followee, Type: domain.NotifyFollow, ActorID: follower})
	}
	s.log.Debug().Int64("follower", int64(follower)).Int64("followee", int64(followee)).Bool("changed", created).Msg("graph: подписка")
	return domain.FollowResult{Following: true, Changed: created}, nil
}

// Unfollow удаляет подписку. Отсутствующая связь не ошибка.
func (s *Service) Unfollow(ctx context.Context, follower, followee domain.UserID) (domain.FollowResult, error) {
	if err := validatePair(follower, followee); err != nil {
		return domain.FollowResult{}, err
	}
	removed, err := s.repo.DeleteEdge(ctx, follower, followee)
	if err != nil {
		return domain.FollowResult{}, fmt.Errorf("отписка: %w", err)
	}
	metrics.IncFollow("unfollow", removed)
	return domain.FollowResult{Following: false, Changed: removed}, nil
}

// IsFollowing проверяет наличие связи a → b.
func (s *Service) IsFollowing(ctx context.Context, a, b domain.UserID) (bool, error) {
	if a == b {
		return false, nil
	}
	return s.repo.EdgeExists(ctx, a, b)
}

// ListFollowers возвращает подписчиков пользователя, новые первыми.
func (s *Service) ListFollowers(ctx context.Context, user domain.UserID, before domain.Cursor, limit int) (domain.Page[domain.FollowEdge], error) {
	limit = s.limits.Clamp(limit)
	rows, err := s.repo.ListFollowers(ctx, user, before, limit+1)
	if err != nil {
		return domain.Page[domain.FollowEdge]{}, fmt.Errorf("подписчики: %w", err)
	}
	items, next := domain.TrimPage(rows, limit, func(e domain.FollowEdge) domain.Cursor {
		return domain.CursorAt(e.CreatedAt, int64(e.FollowerID))
	})
	return domain.Page[domain.FollowEdge]{Items: items, NextCursor: next}, nil
}

// ListFollowing возвращает подписки пользователя, новые первыми.
func (s *Service) ListFollowing(ctx context.Context, user domain.UserID, before domain.Cursor, limit int) (domain.Page[domain.FollowEdge], error) {
	limit = s.limits.Clamp(limit)
	rows, err := s.repo.ListFollowing(ctx, user, before, limit+1)
	if err != nil {
		return domain.Page[domain.FollowEdge]{}, fmt.Errorf("подписки: %w", err)
	}
	items, next := domain.TrimPage(rows, limit, func(e domain.FollowEdge) domain.Cursor {
		return domain.CursorAt(e.CreatedAt, int64(e.FolloweeID))
	})
	return domain.Page[domain.FollowEdge]{Items: items, NextCursor: next}, nil
}

// Stats возвращает число подписчиков, подписок и постов.
func (s *Service) Stats(ctx context.Context, user domain.UserID) (Stats, error) {
	edges, err := s.repo.CountEdges(ctx, user)
	if err != nil {
		return Stats{}, fmt.Errorf("счётчики графа: %w", err)
	}
	out := Stats{Followers: edges.Followers, Following: edges.Following}
	if s.posts != nil {
		n, err := s.posts.CountByAuthor(ctx, user)
		if err != nil {
			return Stats{}, fmt.Errorf("счётчик постов: %w", err)
		}
		out.Posts = n
	}
	return out, nil
}

func validatePair(follower, followee domain.UserID) error {
	if follower <= 0 || followee <= 0 {
		return fmt.Errorf("%w: user ids are required", domain.ErrValidation)
	}
	if follower == followee {
		return domain.ErrSelfFollow
	}
	return nil
}
