package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"feed-engine/internal/adapters/memory"
	"feed-engine/internal/domain"
)

type failingRepo struct {
	domain.NotificationRepo
}

func (failingRepo) CreateNotification(context.Context, domain.Notification) error {
	return errors.New("db down")
}

func TestNotifyListAndMarkRead(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store, domain.PageLimits{Default: 20, Max: 100}, zerolog.Nop())
	ctx := context.Background()
	postID := domain.PostID(7)

	svc.Notify(ctx, domain.Notification{UserID: 1, Type: domain.NotifyLike, ActorID: 2, PostID: &postID})
	svc.Notify(ctx, domain.Notification{UserID: 1, Type: domain.NotifyFollow, ActorID: 3})
	svc.Notify(ctx, domain.Notification{UserID: 1, Type: domain.NotifyLike, ActorID: 1, PostID: &postID})

	page, err := svc.List(ctx, 1, false, domain.Cursor{}, 0)
	items := page.Items
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(items) != 2 || items[0].Type != domain.NotifyFollow || items[1].Type != domain.NotifyLike {
		t.Fatalf("ожидали [follow, like] без уведомления самому себе, получили %+v", items)
	}
	if items[0].CreatedAt.IsZero() {
		t.Fatalf("ожидали время создания")
	}

	n, err := svc.MarkRead(ctx, 1)
	if err != nil || n != 2 {
		t.Fatalf("ожидали 2 прочитанных, получили %d (%v)", n, err)
	}
	unread, _ := svc.List(ctx, 1, true, domain.Cursor{}, 0)
	if len(unread.Items) != 0 || unread.NextCursor != "" {
		t.Fatalf("ожидали пустой список непрочитанных, получили %d", len(unread.Items))
	}
}

func TestNotifySwallowsErrors(t *testing.T) {
	svc := NewService(failingRepo{}, domain.PageLimits{}, zerolog.Nop())
	svc.Notify(context.Background(), domain.Notification{UserID: 1, Type: domain.NotifyFollow, ActorID: 2})
}

func TestNotificationsPagination(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store, domain.PageLimits{Default: 20, Max: 100}, zerolog.Nop())
	ctx := context.Background()
	// Одинаковое время у нескольких уведомлений: порядок задаёт id.
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		svc.Notify(ctx, domain.Notification{UserID: 1, Type: domain.NotifyFollow, ActorID: domain.UserID(i + 2), CreatedAt: at.Add(time.Duration(i/2) * time.Second)})
	}

	var actors []domain.UserID
	cursor := domain.Cursor{}
	for pages := 0; ; pages++ {
		if pages > 10 {
			t.Fatalf("пагинация не завершилась")
		}
		page, err := svc.List(ctx, 1, false, cursor, 3)
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		for _, n := range page.Items {
			actors = append(actors, n.ActorID)
		}
		if page.NextCursor == "" {
			break
		}
		if cursor, err = domain.DecodeCursor(page.NextCursor); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	want := []domain.UserID{8, 7, 6, 5, 4, 3, 2}
	if len(actors) != len(want) {
		t.Fatalf("ожидали %v, получили %v", want, actors)
	}
	for i := range want {
		if actors[i] != want[i] {
			t.Fatalf("ожидали %v, получили %v", want, actors)
		}
	}
}
