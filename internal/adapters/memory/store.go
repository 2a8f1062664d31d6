// Package memory хранит данные ленты в памяти процесса: для разработки и тестов.
package memory

import (
	"sync"
	"time"

	"feed-engine/internal/domain"
)

const lockStripes = 64

// Store реализует все репозитории домена поверх map'ов.
type Store struct {
	clockMu sync.Mutex
	last    time.Time
	now     func() time.Time

	postsMu  sync.RWMutex
	posts    map[domain.PostID]domain.Post
	byAuthor map[domain.UserID][]domain.PostID
	replies  map[domain.PostID][]domain.PostID
	nextPost int64
	counters map[domain.PostID]*postCounters

	graphMu   sync.RWMutex
	following map[domain.UserID]map[domain.UserID]time.Time
	followers map[domain.UserID]map[domain.UserID]time.Time

	// stripes сериализуют проверку и вставку реакции по ключу (актор, пост, тип).
	stripes [lockStripes]sync.Mutex
	ixMu    sync.RWMutex
	ix      map[ixKey]time.Time
	byActor map[actorKind]map[domain.PostID]time.Time

	tagsMu sync.Mutex
	tags   map[domain.PostID]*domain.EmotionTag

	notifMu   sync.RWMutex
	notifs    map[domain.UserID][]domain.Notification
	nextNotif int64
}

var (
	_ domain.PostRepo         = (*Store)(nil)
	_ domain.FollowRepo       = (*Store)(nil)
	_ domain.InteractionRepo  = (*Store)(nil)
	_ domain.EmotionTagRepo   = (*Store)(nil)
	_ domain.NotificationRepo = (*Store)(nil)
)

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		now:       time.Now,
		posts:     make(map[domain.PostID]domain.Post),
		byAuthor:  make(map[domain.UserID][]domain.PostID),
		replies:   make(map[domain.PostID][]domain.PostID),
		counters:  make(map[domain.PostID]*postCounters),
		following: make(map[domain.UserID]map[domain.UserID]time.Time),
		followers: make(map[domain.UserID]map[domain.UserID]time.Time),
		ix:        make(map[ixKey]time.Time),
		byActor:   make(map[actorKind]map[domain.PostID]time.Time),
		tags:      make(map[domain.PostID]*domain.EmotionTag),
		notifs:    make(map[domain.UserID][]domain.Notification),
	}
}

// tick возвращает строго возрастающее время с точностью до микросекунды,
// как хранит Postgres, чтобы порядок (created_at, id) совпадал между бэкендами.
func (s *Store) tick() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	now := s.now().UTC().Truncate(time.Microsecond)
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return now
}
