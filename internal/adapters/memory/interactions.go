package memory

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"feed-engine/internal/domain"
	"feed-engine/internal/infra/metrics"
)

type ixKey struct {
	actor domain.UserID
	post  domain.PostID
	kind  domain.InteractionKind
}

type actorKind struct {
	actor domain.UserID
	kind  domain.InteractionKind
}

type postCounters struct {
	likes     atomic.Int64
	retweets  atomic.Int64
	replies   atomic.Int64
	bookmarks atomic.Int64
}

func (c *postCounters) field(kind domain.InteractionKind) *atomic.Int64 {
	switch kind {
	case domain.KindLike:
		return &c.likes
	case domain.KindRetweet:
		return &c.retweets
	case domain.KindReply:
		return &c.replies
	case domain.KindBookmark:
		return &c.bookmarks
	}
	return nil
}

func (c *postCounters) snapshot() domain.Counts {
	return domain.Counts{
		Likes:     c.likes.Load(),
		Retweets:  c.retweets.Load(),
		Replies:   c.replies.Load(),
		Bookmarks: c.bookmarks.Load(),
	}
}

// decrement уменьшает счётчик, не опускаясь ниже нуля.
func decrement(v *atomic.Int64) bool {
	for {
		cur := v.Load()
		if cur <= 0 {
			return false
		}
		if v.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

func (s *Store) stripe(k ixKey) *sync.Mutex {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(k.actor))
	binary.LittleEndian.PutUint64(buf[8:], uint64(k.post))
	h := fnv.New32a()
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(k.kind))
	return &s.stripes[h.Sum32()%lockStripes]
}

func (s *Store) countersFor(post domain.PostID) (*postCounters, bool) {
	s.postsMu.RLock()
	defer s.postsMu.RUnlock()
	c, ok := s.counters[post]
	return c, ok
}

// InsertInteraction реализует domain.InteractionRepo.
func (s *Store) InsertInteraction(_ context.Context, in domain.Interaction) (bool, domain.Counts, error) {
	if !in.Kind.Unique() {
		return false, domain.Counts{}, fmt.Errorf("%w: kind %q is not stored as interaction", domain.ErrValidation, in.Kind)
	}
	counters, ok := s.countersFor(in.PostID)
	if !ok {
		return false, domain.Counts{}, fmt.Errorf("post %d: %w", in.PostID, domain.ErrNotFound)
	}
	key := ixKey{actor: in.ActorID, post: in.PostID, kind: in.Kind}
	lock := s.stripe(key)
	lock.Lock()
	defer lock.Unlock()

	s.ixMu.RLock()
	_, exists := s.ix[key]
	s.ixMu.RUnlock()
	if exists {
		return false, counters.snapshot(), nil
	}

	at := s.tick()
	s.ixMu.Lock()
	s.ix[key] = at
	ak := actorKind{actor: in.ActorID, kind: in.Kind}
	if s.byActor[ak] == nil {
		s.byActor[ak] = make(map[domain.PostID]time.Time)
	}
	s.byActor[ak][in.PostID] = at
	s.ixMu.Unlock()

	counters.field(in.Kind).Add(1)
	return true, counters.snapshot(), nil
}

// DeleteInteraction реализует domain.InteractionRepo.
func (s *Store) DeleteInteraction(_ context.Context, actor domain.UserID, post domain.PostID, kind domain.InteractionKind) (bool, domain.Counts, error) {
	counters, ok := s.countersFor(post)
	if !ok {
		return false, domain.Counts{}, fmt.Errorf("post %d: %w", post, domain.ErrNotFound)
	}
	key := ixKey{actor: actor, post: post, kind: kind}
	lock := s.stripe(key)
	lock.Lock()
	defer lock.Unlock()

	s.ixMu.Lock()
	_, exists := s.ix[key]
	if exists {
		delete(s.ix, key)
		delete(s.byActor[actorKind{actor: actor, kind: kind}], post)
	}
	s.ixMu.Unlock()
	if !exists {
		return false, counters.snapshot(), nil
	}
	if !decrement(counters.field(kind)) {
		metrics.IncInvariantViolation("counter_underflow")
	}
	return true, counters.snapshot(), nil
}

// Counts реализует domain.InteractionRepo.
func (s *Store) Counts(_ context.Context, post domain.PostID) (domain.Counts, error) {
	counters, ok := s.countersFor(post)
	if !ok {
		return domain.Counts{}, fmt.Errorf("post %d: %w", post, domain.ErrNotFound)
	}
	return counters.snapshot(), nil
}

// CountsMany реализует domain.InteractionRepo.
func (s *Store) CountsMany(_ context.Context, posts []domain.PostID) (map[domain.PostID]domain.Counts, error) {
	s.postsMu.RLock()
	defer s.postsMu.RUnlock()
	out := make(map[domain.PostID]domain.Counts, len(posts))
	for _, id := range posts {
		if c, ok := s.counters[id]; ok {
			out[id] = c.snapshot()
		}
	}
	return out, nil
}

// ViewerState реализует domain.InteractionRepo.
func (s *Store) ViewerState(_ context.Context, viewer domain.UserID, posts []domain.PostID) (map[domain.PostID]domain.ViewerState, error) {
	out := make(map[domain.PostID]domain.ViewerState, len(posts))
	if viewer == 0 {
		return out, nil
	}
	s.ixMu.RLock()
	defer s.ixMu.RUnlock()
	for _, id := range posts {
		_, liked := s.ix[ixKey{actor: viewer, post: id, kind: domain.KindLike}]
		_, retweeted := s.ix[ixKey{actor: viewer, post: id, kind: domain.KindRetweet}]
		_, bookmarked := s.ix[ixKey{actor: viewer, post: id, kind: domain.KindBookmark}]
		out[id] = domain.ViewerState{Liked: liked, Retweeted: retweeted, Bookmarked: bookmarked}
	}
	return out, nil
}

// ListByActor реализует domain.InteractionRepo.
func (s *Store) ListByActor(_ context.Context, actor domain.UserID, kind domain.InteractionKind, before domain.Cursor, limit int) ([]domain.Interaction, error) {
	s.ixMu.RLock()
	out := make([]domain.Interaction, 0, len(s.byActor[actorKind{actor: actor, kind: kind}]))
	for post, at := range s.byActor[actorKind{actor: actor, kind: kind}] {
		if before.Before(at, int64(post)) {
			out = append(out, domain.Interaction{ActorID: actor, PostID: post, Kind: kind, CreatedAt: at})
		}
	}
	s.ixMu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].PostID > out[j].PostID
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
