package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"feed-engine/internal/domain"
)

type lruItem struct {
	data      []byte
	expiresAt time.Time
}

// LRUCache — локальный кэш процесса с вытеснением по LRU и TTL на запись.
type LRUCache struct {
	items *lru.Cache[string, lruItem]
	now   func() time.Time
}

var _ domain.Cache = (*LRUCache)(nil)

// NewLRU создаёт кэш заданной ёмкости.
func NewLRU(size int) (*LRUCache, error) {
	items, err := lru.New[string, lruItem](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &LRUCache{items: items, now: time.Now}, nil
}

// Get возвращает копию значения или domain.ErrCacheMiss, если ключа нет или он истёк.
func (c *LRUCache) Get(_ context.Context, key string) ([]byte, error) {
	item, ok := c.items.Get(key)
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	if !item.expiresAt.IsZero() && c.now().After(item.expiresAt) {
		c.items.Remove(key)
		return nil, domain.ErrCacheMiss
	}
	return append([]byte(nil), item.data...), nil
}

// Set сохраняет значение. Нулевой ttl означает запись без срока жизни.
func (c *LRUCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	item := lruItem{data: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = c.now().Add(ttl)
	}
	c.items.Add(key, item)
	return nil
}

// Delete удаляет значение.
func (c *LRUCache) Delete(_ context.Context, key string) error {
	c.items.Remove(key)
	return nil
}

// Len возвращает число записей, включая ещё не вытесненные истёкшие.
func (c *LRUCache) Len() int {
	return c.items.Len()
}
