package domain

import (
	"context"
	"time"
)

// PostRepo хранит посты. Хранилище только дописывает, кроме отметки удаления.
type PostRepo interface {
	// CreatePost сохраняет пост. Если у поста есть снимок, в той же операции создаётся
	// тег в состоянии pending; если пост является ответом, увеличивается счётчик ответов родителя.
	CreatePost(ctx context.Context, post NewPost) (Post, error)
	// GetPost возвращает пост, в том числе удалённый, или ErrNotFound.
	GetPost(ctx context.Context, id PostID) (Post, error)
	GetPosts(ctx context.Context, ids []PostID) (map[PostID]Post, error)
	// ListByAuthors возвращает неудалённые посты авторов строго после курсора
	// в порядке убывания (created_at, id).
	ListByAuthors(ctx context.Context, authors []UserID, before Cursor, limit int) ([]Post, error)
	// ListReplies возвращает неудалённые прямые ответы строго после курсора
	// в порядке возрастания (created_at, id).
	ListReplies(ctx context.Context, parent PostID, after Cursor, limit int) ([]Post, error)
	SoftDelete(ctx context.Context, id PostID, at time.Time) error
	CountByAuthor(ctx context.Context, author UserID) (int64, error)
	// RecentAuthors возвращает авторов неудалённых постов, созданных не раньше since,
	// кроме exclude, по убыванию времени последнего поста.
	RecentAuthors(ctx context.Context, since time.Time, exclude []UserID, limit int) ([]AuthorActivity, error)
}

// FollowRepo хранит направленные подписки. Мутации одной пары атомарны.
type FollowRepo interface {
	// InsertEdge создаёт связь и возвращает false, если она уже была.
	InsertEdge(ctx context.Context, follower, followee UserID, at time.Time) (bool, error)
	// DeleteEdge удаляет связь и возвращает false, если её не было.
	DeleteEdge(ctx context.Context, follower, followee UserID) (bool, error)
	EdgeExists(ctx context.Context, follower, followee UserID) (bool, error)
	// ListFollowers и ListFollowing сортируют по убыванию (created_at, id второй стороны).
	ListFollowers(ctx context.Context, user UserID, before Cursor, limit int) ([]FollowEdge, error)
	ListFollowing(ctx context.Context, user UserID, before Cursor, limit int) ([]FollowEdge, error)
	AllFollowing(ctx context.Context, user UserID) ([]UserID, error)
	CountEdges(ctx context.Context, user UserID) (GraphStats, error)
}

// InteractionRepo хранит реакции и поддерживает агрегаты счётчиков.
type InteractionRepo interface {
	// InsertInteraction атомарно проверяет уникальность (актор, пост, тип) и увеличивает счётчик.
	// Возвращает false без ошибки, если реакция уже есть.
	InsertInteraction(ctx context.Context, in Interaction) (bool, Counts, error)
	// DeleteInteraction удаляет реакцию и уменьшает счётчик только если запись существовала.
	DeleteInteraction(ctx context.Context, actor UserID, post PostID, kind InteractionKind) (bool, Counts, error)
	Counts(ctx context.Context, post PostID) (Counts, error)
	CountsMany(ctx context.Context, posts []PostID) (map[PostID]Counts, error)
	ViewerState(ctx context.Context, viewer UserID, posts []PostID) (map[PostID]ViewerState, error)
	// ListByActor сортирует по убыванию (created_at, post_id).
	ListByActor(ctx context.Context, actor UserID, kind InteractionKind, before Cursor, limit int) ([]Interaction, error)
}

// EmotionTagRepo хранит эмоциональные теги. Переходы из pending выполняются условно,
// терминальные состояния не перезаписываются.
type EmotionTagRepo interface {
	GetTag(ctx context.Context, post PostID) (EmotionTag, error)
	GetTags(ctx context.Context, posts []PostID) (map[PostID]EmotionTag, error)
	// ClaimAttempt отмечает попытку классификации, если тег в pending и не занят другой
	// попыткой (или занят дольше staleBefore). Возвращает false, если попытку начать нельзя.
	ClaimAttempt(ctx context.Context, post PostID, now, staleBefore time.Time) (EmotionTag, bool, error)
	// RenewAttempt начинает следующую попытку, не отпуская тег: счётчик растёт, отметка
	// обновляется. Возвращает false, если тег уже не в pending или не занят.
	RenewAttempt(ctx context.Context, post PostID, now time.Time) (EmotionTag, bool, error)
	// ReleaseAttempt снимает отметку попытки, оставляя тег в pending. С refund попытка
	// не засчитывается в бюджет повторов.
	ReleaseAttempt(ctx context.Context, post PostID, now time.Time, refund bool) error
	// CompleteTag переводит тег в ready, только пока он в pending.
	CompleteTag(ctx context.Context, post PostID, label string, confidence float64, now time.Time) (bool, error)
	// FailTag переводит тег в failed, только пока он в pending.
	FailTag(ctx context.Context, post PostID, now time.Time) (bool, error)
	// ListClaimable возвращает теги в pending без активной попытки. Тег, занятый серией
	// попыток (в том числе в паузе между ними), попадает сюда только после staleBefore.
	ListClaimable(ctx context.Context, staleBefore time.Time, limit int) ([]EmotionTag, error)
	// ListReadyByAuthor возвращает готовые теги неудалённых постов автора строго после
	// курсора в порядке убывания (created_at, id) поста.
	ListReadyByAuthor(ctx context.Context, author UserID, before Cursor, limit int) ([]MoodEntry, error)
	// LatestMoods возвращает для каждого автора последний готовый тег на посте,
	// созданном не раньше since. Авторы без такого тега в ответ не попадают.
	LatestMoods(ctx context.Context, authors []UserID, since time.Time) (map[UserID]MoodEntry, error)
}

// NotificationRepo хранит уведомления.
type NotificationRepo interface {
	CreateNotification(ctx context.Context, n Notification) error
	// ListNotifications сортирует по убыванию (created_at, id).
	ListNotifications(ctx context.Context, user UserID, unreadOnly bool, before Cursor, limit int) ([]Notification, error)
	MarkAllRead(ctx context.Context, user UserID) (int64, error)
}

// Notifier доставляет уведомления. Ошибки доставки не влияют на вызывающую операцию.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// EmotionDispatcher ставит пост со снимком в очередь классификации.
type EmotionDispatcher interface {
	Dispatch(ctx context.Context, post Post) error
}

// Classifier — внешний классификатор эмоций по снимку.
type Classifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (ClassifyResult, error)
}

// ClassifyRequest содержит снимок: ссылку или сами байты.
type ClassifyRequest struct {
	PostID   PostID
	ImageRef string
	Image    []byte
}

// ClassifyResult — ответ классификатора. Scores может содержать распределение по меткам.
type ClassifyResult struct {
	Label      string             `json:"label"`
	Confidence float64            `json:"confidence"`
	Scores     map[string]float64 `json:"scores,omitempty"`
}

// Cache используется для сквозного кэширования чтений.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
