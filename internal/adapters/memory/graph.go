package memory

import (
	"context"
	"sort"
	"time"

	"feed-engine/internal/domain"
)

// InsertEdge реализует domain.FollowRepo.
func (s *Store) InsertEdge(_ context.Context, follower, followee domain.UserID, _ time.Time) (bool, error) {
	if follower == followee {
		return false, domain.ErrSelfFollow
	}
	s.graphMu.Lock()
	defer s.graphMu.Unlock()
	if _, ok := s.following[follower][followee]; ok {
		return false, nil
	}
	at := s.tick()
	if s.following[follower] == nil {
		s.following[follower] = make(map[domain.UserID]time.Time)
	}
	if s.followers[followee] == nil {
		s.followers[followee] = make(map[domain.UserID]time.Time)
	}
	s.following[follower][followee] = at
	s.followers[followee][follower] = at
	return true, nil
}

// DeleteEdge реализует domain.FollowRepo.
func (s *Store) DeleteEdge(_ context.Context, follower, followee domain.UserID) (bool, error) {
	s.graphMu.Lock()
	defer s.graphMu.Unlock()
	if _, ok := s.following[follower][followee]; !ok {
		return false, nil
	}
	delete(s.following[follower], followee)
	delete(s.followers[followee], follower)
	return true, nil
}

// EdgeExists реализует domain.FollowRepo.
func (s *Store) EdgeExists(_ context.Context, follower, followee domain.UserID) (bool, error) {
	s.graphMu.RLock()
	defer s.graphMu.RUnlock()
	_, ok := s.following[follower][followee]
	return ok, nil
}

// ListFollowers реализует domain.FollowRepo.
func (s *Store) ListFollowers(_ context.Context, user domain.UserID, before domain.Cursor, limit int) ([]domain.FollowEdge, error) {
	s.graphMu.RLock()
	defer s.graphMu.RUnlock()
	edges := make([]domain.FollowEdge, 0, len(s.followers[user]))
	for follower, at := range s.followers[user] {
		if before.Before(at, int64(follower)) {
			edges = append(edges, domain.FollowEdge{FollowerID: follower, FolloweeID: user, CreatedAt: at})
		}
	}
	return pageEdges(edges, limit, func(e domain.FollowEdge) domain.UserID { return e.FollowerID }), nil
}

// ListFollowing реализует domain.FollowRepo.
func (s *Store) ListFollowing(_ context.Context, user domain.UserID, before domain.Cursor, limit int) ([]domain.FollowEdge, error) {
	s.graphMu.RLock()
	defer s.graphMu.RUnlock()
	edges := make([]domain.FollowEdge, 0, len(s.following[user]))
	for followee, at := range s.following[user] {
		if before.Before(at, int64(followee)) {
			edges = append(edges, domain.FollowEdge{FollowerID: user, FolloweeID: followee, CreatedAt: at})
		}
	}
	return pageEdges(edges, limit, func(e domain.FollowEdge) domain.UserID { return e.FolloweeID }), nil
}

// AllFollowing реализует domain.FollowRepo.
func (s *Store) AllFollowing(_ context.Context, user domain.UserID) ([]domain.UserID, error) {
	s.graphMu.RLock()
	defer s.graphMu.RUnlock()
	out := make([]domain.UserID, 0, len(s.following[user]))
	for followee := range s.following[user] {
		out = append(out, followee)
	}
	return out, nil
}

// CountEdges реализует domain.FollowRepo.
func (s *Store) CountEdges(_ context.Context, user domain.UserID) (domain.GraphStats, error) {
	s.graphMu.RLock()
	defer s.graphMu.RUnlock()
	return domain.GraphStats{
		Followers: int64(len(s.followers[user])),
		Following: int64(len(s.following[user])),
	}, nil
}

func pageEdges(edges []domain.FollowEdge, limit int, other func(domain.FollowEdge) domain.UserID) []domain.FollowEdge {
	sort.Slice(edges, func(i, j int) bool {
		if !edges[i].CreatedAt.Equal(edges[j].CreatedAt) {
			return edges[i].CreatedAt.After(edges[j].CreatedAt)
		}
		return other(edges[i]) > other(edges[j])
	})
	if limit >= 0 && len(edges) > limit {
		edges = edges[:limit]
	}
	return edges
}
