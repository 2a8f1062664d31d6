package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"feed-engine/internal/domain"
)

func mustPost(t *testing.T, s *Store, in domain.NewPost) domain.Post {
	t.Helper()
	post, err := s.CreatePost(context.Background(), in)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	return post
}

func TestCreatePostAssignsMonotonicTime(t *testing.T) {
	s := NewStore()
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	a := mustPost(t, s, domain.NewPost{AuthorID: 1, Body: "a"})
	b := mustPost(t, s, domain.NewPost{AuthorID: 1, Body: "b"})
	if !b.CreatedAt.After(a.CreatedAt) {
		t.Fatalf("время создания должно строго возрастать: %s, %s", a.CreatedAt, b.CreatedAt)
	}
	if b.ID <= a.ID {
		t.Fatalf("id должны возрастать")
	}
}

func TestCreatePostWithImageCreatesPendingTag(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	withImage := mustPost(t, s, domain.NewPost{AuthorID: 1, Body: "pic", ImageRef: "img://1"})
	plain := mustPost(t, s, domain.NewPost{AuthorID: 1, Body: "text"})

	tag, err := s.GetTag(ctx, withImage.ID)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if tag.State != domain.EmotionPending || tag.RetryCount != 0 || tag.InFlight {
		t.Fatalf("ожидали свежий pending тег, получили %+v", tag)
	}
	if _, err := s.GetTag(ctx, plain.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("у поста без снимка не должно быть тега, получили %v", err)
	}
}

func TestReplyBumpsParentCounterAndRejectsDeletedParent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	root := mustPost(t, s, domain.NewPost{AuthorID: 1, Body: "root"})
	parentID := root.ID
	mustPost(t, s, domain.NewPost{AuthorID: 2, Body: "r1", ParentID: &parentID})
	mustPost(t, s, domain.NewPost{AuthorID: 2, Body: "r2", ParentID: &parentID})

	counts, _ := s.Counts(ctx, root.ID)
	if counts.Replies != 2 {
		t.Fatalf("ожидали 2 ответа, получили %d", counts.Replies)
	}
	replies, _ := s.ListReplies(ctx, root.ID, domain.Cursor{}, 10)
	if len(replies) != 2 || replies[0].Body != "r1" {
		t.Fatalf("ответы должны идти по возрастанию времени: %+v", replies)
	}

	_ = s.SoftDelete(ctx, root.ID, time.Now())
	if _, err := s.CreatePost(ctx, domain.NewPost{AuthorID: 2, Body: "late", ParentID: &parentID}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ответ на удалённый пост должен давать ErrNotFound, получили %v", err)
	}
	missing := domain.PostID(999)
	if _, err := s.CreatePost(ctx, domain.NewPost{AuthorID: 2, Body: "x", ParentID: &missing}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ответ на несуществующий пост должен давать ErrNotFound, получили %v", err)
	}
}

func TestListByAuthorsPagination(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		mustPost(t, s, domain.NewPost{AuthorID: domain.UserID(1 + i%2), Body: "p"})
	}
	deleted := mustPost(t, s, domain.NewPost{AuthorID: 1, Body: "gone"})
	_ = s.SoftDelete(ctx, deleted.ID, time.Now())
	mustPost(t, s, domain.NewPost{AuthorID: 3, Body: "stranger"})

	full, _ := s.ListByAuthors(ctx, []domain.UserID{1, 2}, domain.Cursor{}, 100)
	if len(full) != 7 {
		t.Fatalf("ожидали 7 постов, получили %d", len(full))
	}

	var paged []domain.Post
	cursor := domain.Cursor{}
	for {
		page, _ := s.ListByAuthors(ctx, []domain.UserID{1, 2, 1}, cursor, 3)
		if len(page) == 0 {
			break
		}
		paged = append(paged, page...)
		last := page[len(page)-1]
		cursor = domain.CursorAt(last.CreatedAt, int64(last.ID))
	}
	if len(paged) != len(full) {
		t.Fatalf("ожидали %d постов, получили %d", len(full), len(paged))
	}
	for i := range full {
		if paged[i].ID != full[i].ID {
			t.Fatalf("позиция %d: ожидали %d, получили %d", i, full[i].ID, paged[i].ID)
		}
	}
}

func TestLikeIdempotentUnderConcurrency(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	post := mustPost(t, s, domain.NewPost{AuthorID: 1, Body: "x"})

	const workers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, err := s.InsertInteraction(ctx, domain.Interaction{ActorID: 7, PostID: post.ID, Kind: domain.KindLike})
			if err != nil {
				t.Errorf("не ожидали ошибку: %v", err)
				return
			}
			if ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	counts, _ := s.Counts(ctx, post.ID)
	if applied != 1 || counts.Likes != 1 {
		t.Fatalf("ожидали ровно одно применение и 1 лайк, получили %d и %d", applied, counts.Likes)
	}
}

func TestApplyRevokeInterleavingNeverNegative(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	post := mustPost(t, s, domain.NewPost{AuthorID: 1, Body: "x"})

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, counts, _ := s.InsertInteraction(ctx, domain.Interaction{ActorID: 3, PostID: post.ID, Kind: domain.KindRetweet})
				if counts.Retweets < 0 || counts.Retweets > 1 {
					t.Errorf("счётчик вне [0,1]: %d", counts.Retweets)
				}
				return
			}
			_, counts, _ := s.DeleteInteraction(ctx, 3, post.ID, domain.KindRetweet)
			if counts.Retweets < 0 || counts.Retweets > 1 {
				t.Errorf("счётчик вне [0,1]: %d", counts.Retweets)
			}
		}(i)
	}
	wg.Wait()

	counts, _ := s.Counts(ctx, post.ID)
	state, _ := s.ViewerState(ctx, 3, []domain.PostID{post.ID})
	want := int64(0)
	if state[post.ID].Retweeted {
		want = 1
	}
	if counts.Retweets != want {
		t.Fatalf("счётчик %d не совпадает с наличием записи (%v)", counts.Retweets, state[post.ID].Retweeted)
	}
}

func TestRevokeAbsentIsNoop(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	post := mustPost(t, s, domain.NewPost{AuthorID: 1, Body: "x"})
	removed, counts, err := s.DeleteInteraction(ctx, 5, post.ID, domain.KindBookmark)
	if err != nil || removed || counts.Bookmarks != 0 {
		t.Fatalf("ожидали no-op, получили %v %+v %v", removed, counts, err)
	}
}

func TestInsertInteractionRejectsReplyKind(t *testing.T) {
	s := NewStore()
	post := mustPost(t, s, domain.NewPost{AuthorID: 1, Body: "x"})
	_, _, err := s.InsertInteraction(context.Background(), domain.Interaction{ActorID: 2, PostID: post.ID, Kind: domain.KindReply})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("ожидали ErrValidation, получили %v", err)
	}
}

func TestFollowConvergesToLastMutation(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ops := []bool{true, true, false, true, false, false, true}
	for _, follow := range ops {
		if follow {
			_, _ = s.InsertEdge(ctx, 1, 2, time.Now())
		} else {
			_, _ = s.DeleteEdge(ctx, 1, 2)
		}
	}
	exists, _ := s.EdgeExists(ctx, 1, 2)
	if !exists {
		t.Fatalf("последняя операция follow — связь должна существовать")
	}
	stats, _ := s.CountEdges(ctx, 2)
	if stats.Followers != 1 {
		t.Fatalf("ожидали одного подписчика, получили %d", stats.Followers)
	}
	if _, err := s.InsertEdge(ctx, 4, 4, time.Now()); !errors.Is(err, domain.ErrSelfFollow) {
		t.Fatalf("ожидали ErrSelfFollow, получили %v", err)
	}
}

func TestListFollowersOrderedNewestFirst(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	for _, follower := range []domain.UserID{10, 11, 12} {
		_, _ = s.InsertEdge(ctx, follower, 1, time.Now())
	}
	page, _ := s.ListFollowers(ctx, 1, domain.Cursor{}, 2)
	if len(page) != 2 || page[0].FollowerID != 12 || page[1].FollowerID != 11 {
		t.Fatalf("неверный порядок: %+v", page)
	}
	last := page[len(page)-1]
	rest, _ := s.ListFollowers(ctx, 1, domain.CursorAt(last.CreatedAt, int64(last.FollowerID)), 2)
	if len(rest) != 1 || rest[0].FollowerID != 10 {
		t.Fatalf("неверная вторая страница: %+v", rest)
	}
}

func TestTagLifecycle(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	post := mustPost(t, s, domain.NewPost{AuthorID: 1, Body: "x", ImageRef: "img"})
	now := time.Now()

	tag, ok, err := s.ClaimAttempt(ctx, post.ID, now, now.Add(-time.Minute))
	if err != nil || !ok || tag.RetryCount != 1 || !tag.InFlight {
		t.Fatalf("ожидали успешный захват, получили %+v %v %v", tag, ok, err)
	}
	if _, ok, _ := s.ClaimAttempt(ctx, post.ID, now, now.Add(-time.Minute)); ok {
		t.Fatalf("повторный захват занятого тега недопустим")
	}
	claimable, _ := s.ListClaimable(ctx, now.Add(-time.Minute), 10)
	if len(claimable) != 0 {
		t.Fatalf("занятый тег не должен быть доступен для захвата")
	}
	_ = s.ReleaseAttempt(ctx, post.ID, now, false)
	if _, ok, _ := s.ClaimAttempt(ctx, post.ID, now, now.Add(-time.Minute)); !ok {
		t.Fatalf("после освобождения тег снова доступен")
	}

	done, _ := s.FailTag(ctx, post.ID, now)
	if !done {
		t.Fatalf("ожидали перевод в failed")
	}
	if done, _ := s.CompleteTag(ctx, post.ID, "happy", 0.9, now); done {
		t.Fatalf("терминальный failed не должен перезаписываться")
	}
	tag, _ = s.GetTag(ctx, post.ID)
	if tag.State != domain.EmotionFailed || tag.Label != "" {
		t.Fatalf("ожидали failed без метки, получили %+v", tag)
	}
}

func TestRenewAndRefundAttempt(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	post := mustPost(t, s, domain.NewPost{AuthorID: 1, Body: "x", ImageRef: "img"})
	now := time.Now()

	if _, ok, _ := s.RenewAttempt(ctx, post.ID, now); ok {
		t.Fatalf("продолжить можно только занятый тег")
	}
	_, _, _ = s.ClaimAttempt(ctx, post.ID, now, now.Add(-time.Minute))
	tag, ok, err := s.RenewAttempt(ctx, post.ID, now.Add(time.Second))
	if err != nil || !ok || tag.RetryCount != 2 || !tag.InFlight {
		t.Fatalf("ожидали вторую попытку под тем же захватом, получили %+v %v %v", tag, ok, err)
	}
	if claimable, _ := s.ListClaimable(ctx, now.Add(-time.Minute), 10); len(claimable) != 0 {
		t.Fatalf("тег между попытками не должен быть доступен для захвата")
	}

	_ = s.ReleaseAttempt(ctx, post.ID, now, true)
	tag, _ = s.GetTag(ctx, post.ID)
	if tag.InFlight || tag.RetryCount != 1 {
		t.Fatalf("прерванная попытка не должна засчитываться, получили %+v", tag)
	}

	_, _ = s.CompleteTag(ctx, post.ID, "joy", 0.8, now)
	if _, ok, _ := s.RenewAttempt(ctx, post.ID, now); ok {
		t.Fatalf("завершённый тег нельзя продолжить")
	}
}

func TestStaleClaimCanBeRetaken(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	post := mustPost(t, s, domain.NewPost{AuthorID: 1, Body: "x", ImageRef: "img"})
	old := time.Now().Add(-time.Hour)
	_, _, _ = s.ClaimAttempt(ctx, post.ID, old, old.Add(-time.Minute))

	now := time.Now()
	tag, ok, _ := s.ClaimAttempt(ctx, post.ID, now, now.Add(-time.Minute))
	if !ok || tag.RetryCount != 2 {
		t.Fatalf("зависшая попытка должна перехватываться, получили %+v %v", tag, ok)
	}
}

func TestNotifications(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	for _, typ := range []domain.NotificationType{domain.NotifyLike, domain.NotifyFollow} {
		_ = s.CreateNotification(ctx, domain.Notification{UserID: 1, ActorID: 2, Type: typ})
	}
	list, _ := s.ListNotifications(ctx, 1, false, domain.Cursor{}, 10)
	if len(list) != 2 || list[0].Type != domain.NotifyFollow {
		t.Fatalf("новые уведомления должны идти первыми: %+v", list)
	}
	n, _ := s.MarkAllRead(ctx, 1)
	if n != 2 {
		t.Fatalf("ожидали 2 прочитанных, получили %d", n)
	}
	unread, _ := s.ListNotifications(ctx, 1, true, domain.Cursor{}, 10)
	if len(unread) != 0 {
		t.Fatalf("непрочитанных не осталось")
	}
}

func TestRecentAuthorsAndLatestMoodsRespectWindow(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	s.now = func() time.Time { return clock }

	old := mustPost(t, s, domain.NewPost{AuthorID: 1, Body: "old", ImageRef: "img://1"})
	_, _ = s.CompleteTag(ctx, old.ID, "sad", 0.5, clock)
	clock = base.Add(48 * time.Hour)
	fresh := mustPost(t, s, domain.NewPost{AuthorID: 2, Body: "fresh", ImageRef: "img://2"})
	_, _ = s.CompleteTag(ctx, fresh.ID, "happy", 0.9, clock)
	mustPost(t, s, domain.NewPost{AuthorID: 3, Body: "text"})

	since := base.Add(24 * time.Hour)
	authors, err := s.RecentAuthors(ctx, since, []domain.UserID{3}, 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(authors) != 1 || authors[0].UserID != 2 || !authors[0].LastPostAt.Equal(fresh.CreatedAt) {
		t.Fatalf("ожидали только автора 2, получили %+v", authors)
	}

	moods, err := s.LatestMoods(ctx, []domain.UserID{1, 2, 3}, since)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(moods) != 1 || moods[2].Label != "happy" || moods[2].PostID != fresh.ID {
		t.Fatalf("ожидали только настроение автора 2, получили %+v", moods)
	}

	history, err := s.ListReadyByAuthor(ctx, 1, domain.Cursor{}, 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(history) != 1 || history[0].Label != "sad" || history[0].Confidence != 0.5 {
		t.Fatalf("история не ограничена окном, ожидали sad, получили %+v", history)
	}
}
