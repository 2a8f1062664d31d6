package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"feed-engine/internal/domain"
)

// CreatePost реализует domain.PostRepo.
func (s *Store) CreatePost(_ context.Context, in domain.NewPost) (domain.Post, error) {
	s.postsMu.Lock()
	defer s.postsMu.Unlock()

	if in.ParentID != nil {
		parent, ok := s.posts[*in.ParentID]
		if !ok || parent.Deleted() {
			return domain.Post{}, fmt.Errorf("parent %d: %w", *in.ParentID, domain.ErrNotFound)
		}
	}

	s.nextPost++
	post := domain.Post{
		ID:        domain.PostID(s.nextPost),
		AuthorID:  in.AuthorID,
		Body:      in.Body,
		Hashtags:  append([]string{}, in.Hashtags...),
		ImageRef:  in.ImageRef,
		CreatedAt: s.tick(),
	}
	if in.ParentID != nil {
		parentID := *in.ParentID
		post.ParentID = &parentID
	}
	s.posts[post.ID] = post
	s.byAuthor[post.AuthorID] = append(s.byAuthor[post.AuthorID], post.ID)
	s.counters[post.ID] = &postCounters{}

	if post.ParentID != nil {
		s.replies[*post.ParentID] = append(s.replies[*post.ParentID], post.ID)
		s.counters[*post.ParentID].replies.Add(1)
	}
	if post.HasImage() {
		s.tagsMu.Lock()
		s.tags[post.ID] = &domain.EmotionTag{
			PostID:    post.ID,
			State:     domain.EmotionPending,
			UpdatedAt: post.CreatedAt,
		}
		s.tagsMu.Unlock()
	}
	return post, nil
}

// GetPost реализует domain.PostRepo.
func (s *Store) GetPost(_ context.Context, id domain.PostID) (domain.Post, error) {
	s.postsMu.RLock()
	defer s.postsMu.RUnlock()
	post, ok := s.posts[id]
	if !ok {
		return domain.Post{}, fmt.Errorf("post %d: %w", id, domain.ErrNotFound)
	}
	return post, nil
}

// GetPosts реализует domain.PostRepo. Отсутствующие id пропускаются.
func (s *Store) GetPosts(_ context.Context, ids []domain.PostID) (map[domain.PostID]domain.Post, error) {
	s.postsMu.RLock()
	defer s.postsMu.RUnlock()
	out := make(map[domain.PostID]domain.Post, len(ids))
	for _, id := range ids {
		if post, ok := s.posts[id]; ok {
			out[id] = post
		}
	}
	return out, nil
}

// ListByAuthors реализует domain.PostRepo.
func (s *Store) ListByAuthors(_ context.Context, authors []domain.UserID, before domain.Cursor, limit int) ([]domain.Post, error) {
	if limit <= 0 || len(authors) == 0 {
		return nil, nil
	}
	s.postsMu.RLock()
	defer s.postsMu.RUnlock()

	seen := make(map[domain.UserID]struct{}, len(authors))
	var out []domain.Post
	for _, author := range authors {
		if _, dup := seen[author]; dup {
			continue
		}
		seen[author] = struct{}{}
		ids := s.byAuthor[author]
		taken := 0
		// ids автора уже упорядочены по возрастанию времени создания.
		for i := len(ids) - 1; i >= 0 && taken < limit; i-- {
			post := s.posts[ids[i]]
			if post.Deleted() || !before.Before(post.CreatedAt, int64(post.ID)) {
				continue
			}
			out = append(out, post)
			taken++
		}
	}
	sortDesc(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListReplies реализует domain.PostRepo.
func (s *Store) ListReplies(_ context.Context, parent domain.PostID, after domain.Cursor, limit int) ([]domain.Post, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.postsMu.RLock()
	defer s.postsMu.RUnlock()
	var out []domain.Post
	for _, id := range s.replies[parent] {
		post := s.posts[id]
		if post.Deleted() || !after.After(post.CreatedAt, int64(post.ID)) {
			continue
		}
		out = append(out, post)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// SoftDelete реализует domain.PostRepo. Повторное удаление ничего не меняет.
func (s *Store) SoftDelete(_ context.Context, id domain.PostID, at time.Time) error {
	s.postsMu.Lock()
	defer s.postsMu.Unlock()
	post, ok := s.posts[id]
	if !ok {
		return fmt.Errorf("post %d: %w", id, domain.ErrNotFound)
	}
	if post.Deleted() {
		return nil
	}
	deletedAt := at.UTC()
	post.DeletedAt = &deletedAt
	s.posts[id] = post
	return nil
}

// CountByAuthor реализует domain.PostRepo.
func (s *Store) CountByAuthor(_ context.Context, author domain.UserID) (int64, error) {
	s.postsMu.RLock()
	defer s.postsMu.RUnlock()
	var n int64
	for _, id := range s.byAuthor[author] {
		if !s.posts[id].Deleted() {
			n++
		}
	}
	return n, nil
}

// RecentAuthors реализует domain.PostRepo.
func (s *Store) RecentAuthors(_ context.Context, since time.Time, exclude []domain.UserID, limit int) ([]domain.AuthorActivity, error) {
	if limit <= 0 {
		return nil, nil
	}
	skip := make(map[domain.UserID]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	s.postsMu.RLock()
	defer s.postsMu.RUnlock()

	var out []domain.AuthorActivity
	for author, ids := range s.byAuthor {
		if _, ok := skip[author]; ok {
			continue
		}
		for i := len(ids) - 1; i >= 0; i-- {
			post := s.posts[ids[i]]
			if post.CreatedAt.Before(since) {
				break
			}
			if !post.Deleted() {
				out = append(out, domain.AuthorActivity{UserID: author, LastPostAt: post.CreatedAt})
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastPostAt.Equal(out[j].LastPostAt) {
			return out[i].LastPostAt.After(out[j].LastPostAt)
		}
		return out[i].UserID > out[j].UserID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) postExists(id domain.PostID) bool {
	s.postsMu.RLock()
	defer s.postsMu.RUnlock()
	_, ok := s.posts[id]
	return ok
}

func sortDesc(posts []domain.Post) {
	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].ID > posts[j].ID
	})
}
