package domain

import (
	"fmt"
	"time"
)

// Post описывает сообщение пользователя. После создания меняется только отметка удаления.
type Post struct {
	ID        PostID     `json:"id"`
	AuthorID  UserID     `json:"author_id"`
	Body      string     `json:"body"`
	Hashtags  []string   `json:"hashtags"`
	ImageRef  string     `json:"image_ref,omitempty"`
	ParentID  *PostID    `json:"parent_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Deleted сообщает, помечен ли пост удалённым.
func (p Post) Deleted() bool { return p.DeletedAt != nil }

// IsReply сообщает, является ли пост ответом.
func (p Post) IsReply() bool { return p.ParentID != nil }

// HasImage сообщает, приложены ли к посту данные снимка.
func (p Post) HasImage() bool { return p.ImageRef != "" }

// NewPost содержит параметры создания поста.
type NewPost struct {
	AuthorID UserID
	Body     string
	Hashtags []string
	ImageRef string
	ParentID *PostID
}

// FollowEdge описывает направленную подписку.
type FollowEdge struct {
	FollowerID UserID    `json:"follower_id"`
	FolloweeID UserID    `json:"followee_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// FollowResult описывает состояние связи после мутации.
type FollowResult struct {
	Following bool `json:"following"`
	Changed   bool `json:"changed"`
}

// GraphStats содержит агрегаты графа для пользователя.
type GraphStats struct {
	Followers int64 `json:"followers"`
	Following int64 `json:"following"`
}

// InteractionKind описывает тип реакции.
type InteractionKind string

const (
	KindLike     InteractionKind = "like"
	KindRetweet  InteractionKind = "retweet"
	KindReply    InteractionKind = "reply"
	KindBookmark InteractionKind = "bookmark"
)

// Unique сообщает, допускается ли не более одной реакции этого типа на пару (актор, пост).
func (k InteractionKind) Unique() bool {
	switch k {
	case KindLike, KindRetweet, KindBookmark:
		return true
	}
	return false
}

// ParseInteractionKind проверяет тип реакции.
func ParseInteractionKind(raw string) (InteractionKind, error) {
	kind := InteractionKind(raw)
	switch kind {
	case KindLike, KindRetweet, KindReply, KindBookmark:
		return kind, nil
	}
	return "", fmt.Errorf("%w: unknown interaction kind %q", ErrValidation, raw)
}

// Interaction описывает реакцию пользователя на пост.
type Interaction struct {
	ActorID   UserID          `json:"actor_id"`
	PostID    PostID          `json:"post_id"`
	Kind      InteractionKind `json:"kind"`
	CreatedAt time.Time       `json:"created_at"`
}

// Counts содержит счётчики реакций поста.
type Counts struct {
	Likes     int64 `json:"like_count"`
	Retweets  int64 `json:"retweet_count"`
	Replies   int64 `json:"reply_count"`
	Bookmarks int64 `json:"bookmark_count"`
}

// Get возвращает значение счётчика для типа реакции.
func (c Counts) Get(kind InteractionKind) int64 {
	switch kind {
	case KindLike:
		return c.Likes
	case KindRetweet:
		return c.Retweets
	case KindReply:
		return c.Replies
	case KindBookmark:
		return c.Bookmarks
	}
	return 0
}

// ApplyOutcome описывает результат применения реакции.
type ApplyOutcome string

const (
	// OutcomeApplied — реакция записана.
	OutcomeApplied ApplyOutcome = "applied"
	// OutcomeAlreadyApplied — такая реакция уже была, повтор ничего не изменил.
	OutcomeAlreadyApplied ApplyOutcome = "already_applied"
)

// ApplyResult возвращается при применении реакции.
type ApplyResult struct {
	Outcome ApplyOutcome `json:"outcome"`
	Counts  Counts       `json:"counts"`
}

// Applied сообщает, изменила ли операция состояние.
func (r ApplyResult) Applied() bool { return r.Outcome == OutcomeApplied }

// ViewerState содержит собственные реакции читателя на пост.
type ViewerState struct {
	Liked      bool `json:"liked"`
	Retweeted  bool `json:"retweeted"`
	Bookmarked bool `json:"bookmarked"`
}

// EmotionState описывает жизненный цикл эмоционального тега.
type EmotionState string

const (
	// EmotionNone — у поста нет снимка, тег не создаётся.
	EmotionNone    EmotionState = "none"
	EmotionPending EmotionState = "pending"
	EmotionReady   EmotionState = "ready"
	EmotionFailed  EmotionState = "failed"
)

// EmotionTag хранит результат асинхронной классификации снимка поста.
type EmotionTag struct {
	PostID     PostID       `json:"post_id"`
	State      EmotionState `json:"state"`
	Label      string       `json:"label,omitempty"`
	Confidence *float64     `json:"confidence,omitempty"`
	RetryCount int          `json:"retry_count"`
	InFlight   bool         `json:"-"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Terminal сообщает, что тег больше не изменится.
func (t EmotionTag) Terminal() bool {
	return t.State == EmotionReady || t.State == EmotionFailed
}

// TagView — представление тега в выдаче.
type TagView struct {
	State      EmotionState `json:"state"`
	Label      string       `json:"label,omitempty"`
	Confidence *float64     `json:"confidence,omitempty"`
}

// FeedItem — пост с производными данными для выдачи.
type FeedItem struct {
	Post    Post        `json:"post"`
	Counts  Counts      `json:"counts"`
	Viewer  ViewerState `json:"viewer"`
	Emotion TagView     `json:"emotion"`
}

// ParentRef ссылается на родителя ответа. Удалённый родитель показывается как сирота.
type ParentRef struct {
	ID      PostID `json:"id"`
	Deleted bool   `json:"deleted"`
	Post    *Post  `json:"post,omitempty"`
}

// Thread — пост с прямыми ответами.
type Thread struct {
	Root       FeedItem   `json:"root"`
	Parent     *ParentRef `json:"parent,omitempty"`
	Replies    []FeedItem `json:"replies"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// Page — страница выдачи с курсором следующей страницы.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// NotificationType описывает событие уведомления.
type NotificationType string

const (
	NotifyLike    NotificationType = "like"
	NotifyRetweet NotificationType = "retweet"
	NotifyReply   NotificationType = "reply"
	NotifyFollow  NotificationType = "follow"
)

// Notification сообщает пользователю о реакции или подписке.
type Notification struct {
	ID        int64            `json:"id"`
	UserID    UserID           `json:"user_id"`
	Type      NotificationType `json:"type"`
	ActorID   UserID           `json:"actor_id"`
	PostID    *PostID          `json:"post_id,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}

// NeutralMood возвращается, когда у пользователя нет ни одного классифицированного снимка.
const NeutralMood = "neutral"

// MoodEntry — готовый тег на собственном посте пользователя.
type MoodEntry struct {
	PostID     PostID    `json:"post_id"`
	AuthorID   UserID    `json:"author_id"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	PostedAt   time.Time `json:"posted_at"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// Mood — текущее настроение пользователя по последнему классифицированному снимку.
type Mood struct {
	Label      string     `json:"mood"`
	Confidence float64    `json:"confidence"`
	PostID     *PostID    `json:"post_id,omitempty"`
	AnalyzedAt *time.Time `json:"analyzed_at,omitempty"`
}

// AuthorActivity — автор и время его последнего неудалённого поста.
type AuthorActivity struct {
	UserID     UserID    `json:"user_id"`
	LastPostAt time.Time `json:"last_post_at"`
}

// Suggestion — кандидат для подписки.
type Suggestion struct {
	UserID      UserID     `json:"user_id"`
	Followers   int64      `json:"followers"`
	Posts       int64      `json:"posts"`
	LastPostAt  time.Time  `json:"last_post_at"`
	Mood        *MoodEntry `json:"mood,omitempty"`
	SimilarMood bool       `json:"similar_mood"`
}
