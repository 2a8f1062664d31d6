package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"feed-engine/internal/domain"
)

// Service сохраняет и выдаёт уведомления пользователей.
type Service struct {
	repo   domain.NotificationRepo
	limits domain.PageLimits
	log    zerolog.Logger
	now    func() time.Time
}

var _ domain.Notifier = (*Service)(nil)

// NewService создаёт сервис уведомлений.
func NewService(repo domain.NotificationRepo, limits domain.PageLimits, logger zerolog.Logger) *Service {
	return &Service{repo: repo, limits: limits, log: logger, now: time.Now}
}

// Notify сохраняет уведомление. Ошибка только логируется: вызывающая операция уже выполнена.
func (s *Service) Notify(ctx context.Context, n domain.Notification) {
	if n.UserID <= 0 || n.UserID == n.ActorID {
		return
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		s.log.Warn().Err(err).
			Int64("user_id", int64(n.UserID)).
			Str("type", string(n.Type)).
			Msg("notify: не удалось сохранить уведомление")
	}
}

// List возвращает уведомления пользователя, новые первыми, страницами по (created_at, id).
func (s *Service) List(ctx context.Context, user domain.UserID, unreadOnly bool, before domain.Cursor, limit int) (domain.Page[domain.Notification], error) {
	limit = s.limits.Clamp(limit)
	rows, err := s.repo.ListNotifications(ctx, user, unreadOnly, before, limit+1)
	if err != nil {
		return domain.Page[domain.Notification]{}, fmt.Errorf("уведомления: %w", err)
	}
	items, next := domain.TrimPage(rows, limit, func(n domain.Notification) domain.Cursor {
		return domain.CursorAt(n.CreatedAt, n.ID)
	})
	if items == nil {
		items = []domain.Notification{}
	}
	return domain.Page[domain.Notification]{Items: items, NextCursor: next}, nil
}

// MarkRead отмечает все уведомления пользователя прочитанными.
func (s *Service) MarkRead(ctx context.Context, user domain.UserID) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, user)
	if err != nil {
		return 0, fmt.Errorf("отметка уведомлений: %w", err)
	}
	return n, nil
}
