package posts

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"feed-engine/internal/domain"
	"feed-engine/internal/infra/metrics"
)

// DefaultMaxLength — ограничение длины поста в символах.
const DefaultMaxLength = 280

var hashtagRegex = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)

// CreateInput содержит параметры нового поста.
type CreateInput struct {
	AuthorID domain.UserID
	Body     string
	ParentID *domain.PostID
	ImageRef string
}

// Service управляет постами.
type Service struct {
	repo       domain.PostRepo
	dispatcher domain.EmotionDispatcher
	notifier   domain.Notifier
	maxLength  int
	limits     domain.PageLimits
	log        zerolog.Logger
	now        func() time.Time
}

// NewService создаёт сервис постов. dispatcher и notifier могут быть nil.
func NewService(repo domain.PostRepo, dispatcher domain.EmotionDispatcher, notifier domain.Notifier, maxLength int, limits domain.PageLimits, logger zerolog.Logger) *Service {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Service{
		repo:       repo,
		dispatcher: dispatcher,
		notifier:   notifier,
		maxLength:  maxLength,
		limits:     limits,
		log:        logger,
		now:        time.Now,
	}
}

// ExtractHashtags возвращает хэштеги текста в нижнем регистре без повторов в порядке появления.
func ExtractHashtags(body string) []string {
	matches := hashtagRegex.FindAllStringSubmatch(body, -1)
	tags := lo.Map(matches, func(m []string, _ int) string {
		return strings.ToLower(m[1])
	})
	return lo.Uniq(tags)
}

// Create проверяет и сохраняет пост. Классификация снимка запускается асинхронно:
// ошибка постановки в очередь не ломает создание, тег остаётся в pending.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Post, error) {
	if in.AuthorID <= 0 {
		return domain.Post{}, fmt.Errorf("%w: author is required", domain.ErrValidation)
	}
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return domain.Post{}, fmt.Errorf("%w: body is empty", domain.ErrValidation)
	}
	if n := utf8.RuneCountInString(body); n > s.maxLength {
		return domain.Post{}, fmt.Errorf("%w: body is %d characters, max %d", domain.ErrValidation, n, s.maxLength)
	}

	post, err := s.repo.CreatePost(ctx, domain.NewPost{
		AuthorID: in.AuthorID,
		Body:     body,
		Hashtags: ExtractHashtags(body),
		ImageRef: strings.TrimSpace(in.ImageRef),
		ParentID: in.ParentID,
	})
	if err != nil {
		return domain.Post{}, fmt.Errorf("создание поста: %w", err)
	}
	metrics.IncPostCreated(post.HasImage())

	if post.IsReply() {
		s.notifyReply(ctx, post)
	}
	if post.HasImage() && s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, post); err != nil {
			s.log.Warn().Err(err).Int64("post_id", int64(post.ID)).Msg("posts: не удалось поставить снимок в очередь")
		}
	}
	return post, nil
}

// Reply создаёт ответ на пост.
func (s *Service) Reply(ctx context.Context, author domain.UserID, parent domain.PostID, body, imageRef string) (domain.Post, error) {
	return s.Create(ctx, CreateInput{AuthorID: author, Body: body, ParentID: &parent, ImageRef: imageRef})
}

// Get возвращает неудалённый пост.
func (s *Service) Get(ctx context.Context, id domain.PostID) (domain.Post, error) {
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return domain.Post{}, err
	}
	if post.Deleted() {
		return domain.Post{}, fmt.Errorf("post %d: %w", id, domain.ErrNotFound)
	}
	return post, nil
}

// ListByAuthor возвращает посты автора по убыванию времени создания.
func (s *Service) ListByAuthor(ctx context.Context, author domain.UserID, before domain.Cursor, limit int) (domain.Page[domain.Post], error) {
	limit = s.limits.Clamp(limit)
	rows, err := s.repo.ListByAuthors(ctx, []domain.UserID{author}, before, limit+1)
	if err != nil {
		return domain.Page[domain.Post]{}, fmt.Errorf("посты автора: %w", err)
	}
	items, next := domain.TrimPage(rows, limit, domain.PostCursor)
	return domain.Page[domain.Post]{Items: items, NextCursor: next}, nil
}

// SoftDelete помечает пост удалённым. Удалять может только автор; повторное удаление ничего не меняет.
func (s *Service) SoftDelete(ctx context.Context, id domain.PostID, requestor domain.UserID) error {
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if post.AuthorID != requestor {
		return fmt.Errorf("post %d: %w", id, domain.ErrForbidden)
	}
	if post.Deleted() {
		return nil
	}
	if err := s.repo.SoftDelete(ctx, id, s.now()); err != nil {
		return fmt.Errorf("удаление поста: %w", err)
	}
	return nil
}

// CountByAuthor возвращает число неудалённых постов автора.
func (s *Service) CountByAuthor(ctx context.Context, author domain.UserID) (int64, error) {
	return s.repo.CountByAuthor(ctx, author)
}

func (s *Service) notifyReply(ctx context.Context, reply domain.Post) {
	if s.notifier == nil {
		return
	}
	parent, err := s.repo.GetPost(ctx, *reply.ParentID)
	if err != nil {
		s.log.Warn().Err(err).Int64("post_id", int64(reply.ID)).Msg("posts: родитель ответа не найден")
		return
	}
	if parent.AuthorID == reply.AuthorID {
		return
	}
	postID := parent.ID
	s.notifier.Notify(ctx, domain.Notification{
		UserID:  parent.AuthorID,
		Type:    domain.NotifyReply,
		ActorID: reply.AuthorID,
		PostID:  &postID,
	})
}
