package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"

	"feed-engine/internal/domain"
)

const (
	// moodWindow — за какой срок настроение пользователя считается текущим при подборе.
	moodWindow = 24 * time.Hour
	// activityWindow ограничивает кандидатов авторами, писавшими за этот срок.
	activityWindow = 30 * 24 * time.Hour
	candidatePool  = 100
)

var suggestionLimits = domain.PageLimits{Default: 5, Max: 20}

// MoodHistory возвращает готовые теги на собственных постах пользователя, новые первыми.
func (s *Service) MoodHistory(ctx context.Context, user domain.UserID, before domain.Cursor, limit int) (domain.Page[domain.MoodEntry], error) {
	limit = s.limits.Clamp(limit)
	rows, err := s.tags.ListReadyByAuthor(ctx, user, before, limit+1)
	if err != nil {
		return domain.Page[domain.MoodEntry]{}, fmt.Errorf("история настроения: %w", err)
	}
	items, next := domain.TrimPage(rows, limit, func(e domain.MoodEntry) domain.Cursor {
		return domain.CursorAt(e.PostedAt, int64(e.PostID))
	})
	if items == nil {
		items = []domain.MoodEntry{}
	}
	return domain.Page[domain.MoodEntry]{Items: items, NextCursor: next}, nil
}

// CurrentMood возвращает метку последнего классифицированного снимка пользователя.
// Без снимков настроение нейтральное с нулевой уверенностью.
func (s *Service) CurrentMood(ctx context.Context, user domain.UserID) (domain.Mood, error) {
	rows, err := s.tags.ListReadyByAuthor(ctx, user, domain.Cursor{}, 1)
	if err != nil {
		return domain.Mood{}, fmt.Errorf("текущее настроение: %w", err)
	}
	if len(rows) == 0 {
		return domain.Mood{Label: domain.NeutralMood}, nil
	}
	last := rows[0]
	return domain.Mood{
		Label:      last.Label,
		Confidence: last.Confidence,
		PostID:     &last.PostID,
		AnalyzedAt: &last.AnalyzedAt,
	}, nil
}

// Suggest подбирает авторов, на которых читатель ещё не подписан. Если за последние сутки
// у читателя есть настроение, первыми идут авторы с тем же настроением, затем остальные;
// внутри групп порядок по свежести последнего поста.
func (s *Service) Suggest(ctx context.Context, viewer domain.UserID, limit int) ([]domain.Suggestion, error) {
	limit = suggestionLimits.Clamp(limit)
	now := s.now()

	following, err := s.follows.AllFollowing(ctx, viewer)
	if err != nil {
		return nil, fmt.Errorf("подписки читателя: %w", err)
	}
	authors, err := s.posts.RecentAuthors(ctx, now.Add(-activityWindow), append(following, viewer), candidatePool)
	if err != nil {
		return nil, fmt.Errorf("активные авторы: %w", err)
	}
	out := make([]domain.Suggestion, 0, limit)
	if len(authors) == 0 {
		return out, nil
	}

	ids := lo.Map(authors, func(a domain.AuthorActivity, _ int) domain.UserID { return a.UserID })
	moods, err := s.tags.LatestMoods(ctx, append(ids, viewer), now.Add(-moodWindow))
	if err != nil {
		return nil, fmt.Errorf("настроения авторов: %w", err)
	}
	own, hasMood := moods[viewer]

	var similar, rest []domain.AuthorActivity
	for _, a := range authors {
		if m, ok := moods[a.UserID]; hasMood && ok && m.Label == own.Label {
			similar = append(similar, a)
			continue
		}
		rest = append(rest, a)
	}
	for _, a := range append(similar, rest...) {
		if len(out) == limit {
			break
		}
		sg := domain.Suggestion{UserID: a.UserID, LastPostAt: a.LastPostAt}
		if m, ok := moods[a.UserID]; ok {
			sg.Mood = &m
			sg.SimilarMood = hasMood && m.Label == own.Label
		}
		stats, err := s.follows.CountEdges(ctx, a.UserID)
		if err != nil {
			return nil, fmt.Errorf("подписчики %d: %w", a.UserID, err)
		}
		sg.Followers = stats.Followers
		if sg.Posts, err = s.posts.CountByAuthor(ctx, a.UserID); err != nil {
			return nil, fmt.Errorf("посты %d: %w", a.UserID, err)
		}
		out = append(out, sg)
	}
	s.log.Debug().Int64("viewer", int64(viewer)).Int("candidates", len(authors)).Int("similar", len(similar)).Msg("feed: подобраны рекомендации")
	return out, nil
}
