package memory

import (
	"context"
	"sort"

	"feed-engine/internal/domain"
)

// CreateNotification реализует domain.NotificationRepo.
func (s *Store) CreateNotification(_ context.Context, n domain.Notification) error {
	s.notifMu.Lock()
	defer s.notifMu.Unlock()
	s.nextNotif++
	n.ID = s.nextNotif
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.tick()
	}
	s.notifs[n.UserID] = append(s.notifs[n.UserID], n)
	return nil
}

// ListNotifications реализует domain.NotificationRepo. Новые уведомления идут первыми.
func (s *Store) ListNotifications(_ context.Context, user domain.UserID, unreadOnly bool, before domain.Cursor, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.notifMu.RLock()
	out := make([]domain.Notification, 0, len(s.notifs[user]))
	for _, n := range s.notifs[user] {
		if unreadOnly && n.Read {
			continue
		}
		if before.Before(n.CreatedAt, n.ID) {
			out = append(out, n)
		}
	}
	s.notifMu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkAllRead реализует domain.NotificationRepo.
func (s *Store) MarkAllRead(_ context.Context, user domain.UserID) (int64, error) {
	s.notifMu.Lock()
	defer s.notifMu.Unlock()
	var n int64
	for i := range s.notifs[user] {
		if !s.notifs[user][i].Read {
			s.notifs[user][i].Read = true
			n++
		}
	}
	return n, nil
}
