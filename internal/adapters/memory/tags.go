package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"feed-engine/internal/domain"
)

// GetTag реализует domain.EmotionTagRepo.
func (s *Store) GetTag(_ context.Context, post domain.PostID) (domain.EmotionTag, error) {
	s.tagsMu.Lock()
	defer s.tagsMu.Unlock()
	tag, ok := s.tags[post]
	if !ok {
		return domain.EmotionTag{}, fmt.Errorf("tag %d: %w", post, domain.ErrNotFound)
	}
	return copyTag(tag), nil
}

// GetTags реализует domain.EmotionTagRepo.
func (s *Store) GetTags(_ context.Context, posts []domain.PostID) (map[domain.PostID]domain.EmotionTag, error) {
	s.tagsMu.Lock()
	defer s.tagsMu.Unlock()
	out := make(map[domain.PostID]domain.EmotionTag, len(posts))
	for _, id := range posts {
		if tag, ok := s.tags[id]; ok {
			out[id] = copyTag(tag)
		}
	}
	return out, nil
}

// ClaimAttempt реализует domain.EmotionTagRepo.
func (s *Store) ClaimAttempt(_ context.Context, post domain.PostID, now, staleBefore time.Time) (domain.EmotionTag, bool, error) {
	s.tagsMu.Lock()
	defer s.tagsMu.Unlock()
	tag, ok := s.tags[post]
	if !ok {
		return domain.EmotionTag{}, false, fmt.Errorf("tag %d: %w", post, domain.ErrNotFound)
	}
	if !claimable(tag, staleBefore) {
		return copyTag(tag), false, nil
	}
	tag.InFlight = true
	tag.RetryCount++
	tag.UpdatedAt = now.UTC()
	return copyTag(tag), true, nil
}

// RenewAttempt реализует domain.EmotionTagRepo.
func (s *Store) RenewAttempt(_ context.Context, post domain.PostID, now time.Time) (domain.EmotionTag, bool, error) {
	s.tagsMu.Lock()
	defer s.tagsMu.Unlock()
	tag, ok := s.tags[post]
	if !ok {
		return domain.EmotionTag{}, false, fmt.Errorf("tag %d: %w", post, domain.ErrNotFound)
	}
	if tag.State != domain.EmotionPending || !tag.InFlight {
		return copyTag(tag), false, nil
	}
	tag.RetryCount++
	tag.UpdatedAt = now.UTC()
	return copyTag(tag), true, nil
}

// ReleaseAttempt реализует domain.EmotionTagRepo.
func (s *Store) ReleaseAttempt(_ context.Context, post domain.PostID, now time.Time, refund bool) error {
	s.tagsMu.Lock()
	defer s.tagsMu.Unlock()
	tag, ok := s.tags[post]
	if !ok {
		return fmt.Errorf("tag %d: %w", post, domain.ErrNotFound)
	}
	if tag.State == domain.EmotionPending && tag.InFlight {
		tag.InFlight = false
		if refund && tag.RetryCount > 0 {
			tag.RetryCount--
		}
		tag.UpdatedAt = now.UTC()
	}
	return nil
}

// CompleteTag реализует domain.EmotionTagRepo.
func (s *Store) CompleteTag(_ context.Context, post domain.PostID, label string, confidence float64, now time.Time) (bool, error) {
	s.tagsMu.Lock()
	defer s.tagsMu.Unlock()
	tag, ok := s.tags[post]
	if !ok {
		return false, fmt.Errorf("tag %d: %w", post, domain.ErrNotFound)
	}
	if tag.State != domain.EmotionPending {
		return false, nil
	}
	tag.State = domain.EmotionReady
	tag.Label = label
	tag.Confidence = &confidence
	tag.InFlight = false
	tag.UpdatedAt = now.UTC()
	return true, nil
}

// FailTag реализует domain.EmotionTagRepo.
func (s *Store) FailTag(_ context.Context, post domain.PostID, now time.Time) (bool, error) {
	s.tagsMu.Lock()
	defer s.tagsMu.Unlock()
	tag, ok := s.tags[post]
	if !ok {
		return false, fmt.Errorf("tag %d: %w", post, domain.ErrNotFound)
	}
	if tag.State != domain.EmotionPending {
		return false, nil
	}
	tag.State = domain.EmotionFailed
	tag.InFlight = false
	tag.UpdatedAt = now.UTC()
	return true, nil
}

// ListClaimable реализует domain.EmotionTagRepo.
func (s *Store) ListClaimable(_ context.Context, staleBefore time.Time, limit int) ([]domain.EmotionTag, error) {
	s.tagsMu.Lock()
	var out []domain.EmotionTag
	for _, tag := range s.tags {
		if claimable(tag, staleBefore) {
			out = append(out, copyTag(tag))
		}
	}
	s.tagsMu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].PostID < out[j].PostID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// claimable: тег в pending и попытка не идёт либо зависла дольше staleBefore.
func claimable(tag *domain.EmotionTag, staleBefore time.Time) bool {
	if tag.State != domain.EmotionPending {
		return false
	}
	return !tag.InFlight || tag.UpdatedAt.Before(staleBefore)
}

func copyTag(tag *domain.EmotionTag) domain.EmotionTag {
	out := *tag
	if tag.Confidence != nil {
		c := *tag.Confidence
		out.Confidence = &c
	}
	return out
}

// ListReadyByAuthor реализует domain.EmotionTagRepo.
func (s *Store) ListReadyByAuthor(_ context.Context, author domain.UserID, before domain.Cursor, limit int) ([]domain.MoodEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.postsMu.RLock()
	defer s.postsMu.RUnlock()
	s.tagsMu.Lock()
	defer s.tagsMu.Unlock()

	var out []domain.MoodEntry
	ids := s.byAuthor[author]
	for i := len(ids) - 1; i >= 0 && len(out) < limit; i-- {
		post := s.posts[ids[i]]
		if post.Deleted() || !before.Before(post.CreatedAt, int64(post.ID)) {
			continue
		}
		if entry, ok := s.readyEntry(post); ok {
			out = append(out, entry)
		}
	}
	return out, nil
}

// LatestMoods реализует domain.EmotionTagRepo.
func (s *Store) LatestMoods(_ context.Context, authors []domain.UserID, since time.Time) (map[domain.UserID]domain.MoodEntry, error) {
	out := make(map[domain.UserID]domain.MoodEntry, len(authors))
	s.postsMu.RLock()
	defer s.postsMu.RUnlock()
	s.tagsMu.Lock()
	defer s.tagsMu.Unlock()

	for _, author := range authors {
		ids := s.byAuthor[author]
		for i := len(ids) - 1; i >= 0; i-- {
			post := s.posts[ids[i]]
			if post.CreatedAt.Before(since) {
				break
			}
			if post.Deleted() {
				continue
			}
			if entry, ok := s.readyEntry(post); ok {
				out[author] = entry
				break
			}
		}
	}
	return out, nil
}

// readyEntry вызывается под postsMu и tagsMu.
func (s *Store) readyEntry(post domain.Post) (domain.MoodEntry, bool) {
	tag, ok := s.tags[post.ID]
	if !ok || tag.State != domain.EmotionReady {
		return domain.MoodEntry{}, false
	}
	entry := domain.MoodEntry{
		PostID:     post.ID,
		AuthorID:   post.AuthorID,
		Label:      tag.Label,
		PostedAt:   post.CreatedAt,
		AnalyzedAt: tag.UpdatedAt,
	}
	if tag.Confidence != nil {
		entry.Confidence = *tag.Confidence
	}
	return entry, true
}
