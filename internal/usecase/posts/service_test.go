package posts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"feed-engine/internal/adapters/memory"
	"feed-engine/internal/domain"
)

type stubDispatcher struct {
	posts []domain.PostID
	err   error
}

func (d *stubDispatcher) Dispatch(_ context.Context, post domain.Post) error {
	d.posts = append(d.posts, post.ID)
	return d.err
}

type stubNotifier struct {
	mu    sync.Mutex
	items []domain.Notification
}

func (n *stubNotifier) Notify(_ context.Context, item domain.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, item)
}

func newService(t *testing.T) (*Service, *memory.Store, *stubDispatcher, *stubNotifier) {
	t.Helper()
	store := memory.NewStore()
	d := &stubDispatcher{}
	n := &stubNotifier{}
	svc := NewService(store, d, n, 0, domain.PageLimits{Default: 20, Max: 100}, zerolog.Nop())
	return svc, store, d, n
}

func TestExtractHashtags(t *testing.T) {
	tests := []struct {
		body string
		want []string
	}{
		{body: "hello #world", want: []string{"world"}},
		{body: "#Go #go #GO и #ещё_тег", want: []string{"go", "ещё_тег"}},
		{body: "без тегов", want: nil},
		{body: "#b #a #b", want: []string{"b", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			got := ExtractHashtags(tt.body)
			if len(got) != len(tt.want) {
				t.Fatalf("ожидали %v, получили %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("ожидали %v, получили %v", tt.want, got)
				}
			}
		})
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _, _, _ := newService(t)
	tests := []struct {
		name string
		in   CreateInput
	}{
		{name: "empty body", in: CreateInput{AuthorID: 1, Body: "   "}},
		{name: "too long", in: CreateInput{AuthorID: 1, Body: strings.Repeat("я", DefaultMaxLength+1)}},
		{name: "no author", in: CreateInput{Body: "hi"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), tt.in); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("ожидали ErrValidation, получили %v", err)
			}
		})
	}

	if _, err := svc.Create(context.Background(), CreateInput{AuthorID: 1, Body: strings.Repeat("я", DefaultMaxLength)}); err != nil {
		t.Fatalf("пост предельной длины должен приниматься: %v", err)
	}
}

func TestCreateDispatchesOnlyWithImage(t *testing.T) {
	svc, store, d, _ := newService(t)
	ctx := context.Background()

	plain, err := svc.Create(ctx, CreateInput{AuthorID: 1, Body: "hello #world"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(plain.Hashtags) != 1 || plain.Hashtags[0] != "world" {
		t.Fatalf("ожидали [world], получили %v", plain.Hashtags)
	}
	if _, err := store.GetTag(ctx, plain.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("у поста без снимка не должно быть тега")
	}

	d.err = errors.New("queue down")
	withImage, err := svc.Create(ctx, CreateInput{AuthorID: 1, Body: "selfie", ImageRef: "img://1"})
	if err != nil {
		t.Fatalf("сбой очереди не должен ломать создание: %v", err)
	}
	if len(d.posts) != 1 || d.posts[0] != withImage.ID {
		t.Fatalf("ожидали постановку в очередь только поста со снимком, получили %v", d.posts)
	}
	tag, err := store.GetTag(ctx, withImage.ID)
	if err != nil || tag.State != domain.EmotionPending {
		t.Fatalf("ожидали pending тег, получили %+v (%v)", tag, err)
	}
}

func TestReplyNotifiesParentAuthor(t *testing.T) {
	svc, store, _, n := newService(t)
	ctx := context.Background()
	parent, _ := svc.Create(ctx, CreateInput{AuthorID: 1, Body: "root"})

	if _, err := svc.Reply(ctx, 2, parent.ID, "answer", ""); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := svc.Reply(ctx, 1, parent.ID, "self answer", ""); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(n.items) != 1 || n.items[0].UserID != 1 || n.items[0].ActorID != 2 || n.items[0].Type != domain.NotifyReply {
		t.Fatalf("ожидали одно уведомление автору родителя, получили %+v", n.items)
	}
	counts, _ := store.Counts(ctx, parent.ID)
	if counts.Replies != 2 {
		t.Fatalf("ожидали 2 ответа, получили %d", counts.Replies)
	}

	if _, err := svc.Reply(ctx, 2, 999, "lost", ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ответ на несуществующий пост: ожидали ErrNotFound, получили %v", err)
	}
}

func TestSoftDelete(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	post, _ := svc.Create(ctx, CreateInput{AuthorID: 1, Body: "x"})

	if err := svc.SoftDelete(ctx, post.ID, 2); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("ожидали ErrForbidden, получили %v", err)
	}
	if err := svc.SoftDelete(ctx, 999, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
	if err := svc.SoftDelete(ctx, post.ID, 1); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := svc.SoftDelete(ctx, post.ID, 1); err != nil {
		t.Fatalf("повторное удаление должно быть идемпотентным: %v", err)
	}
	if _, err := svc.Get(ctx, post.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("удалённый пост не должен отдаваться, получили %v", err)
	}
	page, _ := svc.ListByAuthor(ctx, 1, domain.Cursor{}, 10)
	if len(page.Items) != 0 {
		t.Fatalf("удалённый пост не должен попадать в список автора")
	}
	if n, _ := svc.CountByAuthor(ctx, 1); n != 0 {
		t.Fatalf("ожидали 0 постов, получили %d", n)
	}
}

func TestListByAuthorPagination(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := svc.Create(ctx, CreateInput{AuthorID: 7, Body: "post"}); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	var seen []domain.PostID
	cursor := domain.Cursor{}
	for {
		page, err := svc.ListByAuthor(ctx, 7, cursor, 2)
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		for _, p := range page.Items {
			seen = append(seen, p.ID)
		}
		if page.NextCursor == "" {
			break
		}
		cursor, _ = domain.DecodeCursor(page.NextCursor)
	}
	if len(seen) != 5 {
		t.Fatalf("ожидали 5 постов, получили %v", seen)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] >= seen[i-1] {
			t.Fatalf("ожидали убывающий порядок, получили %v", seen)
		}
	}
}
