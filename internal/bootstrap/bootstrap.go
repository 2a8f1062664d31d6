// Package bootstrap собирает адаптеры по конфигурации для исполняемых сервисов.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"feed-engine/internal/adapters/cached"
	"feed-engine/internal/adapters/classifier"
	"feed-engine/internal/adapters/memory"
	"feed-engine/internal/adapters/repo"
	"feed-engine/internal/domain"
	"feed-engine/internal/infra/cache"
	"feed-engine/internal/infra/config"
	"feed-engine/internal/infra/db"
	applog "feed-engine/internal/infra/log"
	"feed-engine/internal/infra/queue"
	"feed-engine/internal/usecase/emotion"
)

// Storage объединяет все репозитории. Его реализуют memory.Store и repo.Postgres.
type Storage interface {
	domain.PostRepo
	domain.FollowRepo
	domain.InteractionRepo
	domain.EmotionTagRepo
	domain.NotificationRepo
}

var (
	_ Storage = (*memory.Store)(nil)
	_ Storage = (*repo.Postgres)(nil)
)

// Deps — собранные зависимости и функции их закрытия.
type Deps struct {
	Storage Storage
	Posts   domain.PostRepo
	Queue   domain.ClassificationQueue

	redis   *redis.Client
	closers []func()
}

// Close освобождает ресурсы в обратном порядке.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// Open подключает хранилище, кэш постов и очередь классификации.
func Open(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (*Deps, error) {
	d := &Deps{}
	if err := d.openStorage(ctx, cfg, logger); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.openCache(cfg, logger); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.openQueue(cfg); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// RedisQueue возвращает очередь Redis, если она выбрана в конфигурации.
func (d *Deps) RedisQueue() (*queue.RedisQueue, bool) {
	q, ok := d.Queue.(*queue.RedisQueue)
	return q, ok
}

func (d *Deps) openStorage(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) error {
	if cfg.StorageBackend != config.BackendPostgres {
		d.Storage = memory.NewStore()
		return nil
	}
	pool, err := db.Connect(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	d.closers = append(d.closers, pool.Close)
	pg := repo.NewPostgres(pool)
	if cfg.PGEnsureSchema {
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		bootLog := applog.Component(logger, "bootstrap")
		bootLog.Info().Msg("bootstrap: схема БД проверена")
	}
	d.Storage = pg
	return nil
}

func (d *Deps) openCache(cfg config.AppConfig, logger zerolog.Logger) error {
	d.Posts = d.Storage
	var c domain.Cache
	switch cfg.Cache.Backend {
	case config.BackendNone:
		return nil
	case config.BackendRedis:
		c = cache.NewRedis(d.redisClient(cfg), "feed:")
	default:
		lru, err := cache.NewLRU(cfg.Cache.Size)
		if err != nil {
			return fmt.Errorf("lru cache: %w", err)
		}
		c = lru
	}
	d.Posts = cached.NewPostRepo(d.Storage, c, cfg.Cache.TTL, applog.Component(logger, "cache"))
	return nil
}

func (d *Deps) openQueue(cfg config.AppConfig) error {
	switch cfg.Queue.Backend {
	case config.BackendRedis:
		d.Queue = queue.NewRedisQueue(d.redisClient(cfg), cfg.Queue.Key)
	case config.BackendRabbitMQ:
		q, err := queue.NewRabbitQueue(cfg.Queue.RabbitURL, cfg.Queue.Key)
		if err != nil {
			return fmt.Errorf("rabbitmq queue: %w", err)
		}
		d.closers = append(d.closers, func() { _ = q.Close() })
		d.Queue = q
	default:
		q := queue.NewMemoryQueue(cfg.Queue.Capacity)
		d.closers = append(d.closers, q.Close)
		d.Queue = q
	}
	return nil
}

func (d *Deps) redisClient(cfg config.AppConfig) *redis.Client {
	if d.redis == nil {
		d.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		client := d.redis
		d.closers = append(d.closers, func() { _ = client.Close() })
	}
	return d.redis
}

// NewClassifier выбирает клиент классификатора.
func NewClassifier(cfg config.AppConfig) domain.Classifier {
	if cfg.Classifier.Backend == config.BackendHTTP {
		return classifier.NewHTTPClient(cfg.Classifier.URL, cfg.Classifier.Timeout)
	}
	return classifier.NewStub(0)
}

// PipelineConfig переносит настройки классификатора в конфигурацию конвейера.
func PipelineConfig(cfg config.AppConfig) emotion.Config {
	return emotion.Config{
		Timeout:        cfg.Classifier.Timeout,
		LateGrace:      cfg.Classifier.LateGrace,
		MaxAttempts:    cfg.Classifier.MaxAttempts,
		BackoffInitial: cfg.Classifier.BackoffInitial,
		BackoffMax:     cfg.Classifier.BackoffMax,
		Workers:        cfg.Classifier.Workers,
		StaleAfter:     cfg.Classifier.StaleAfter,
	}
}

// PageLimits возвращает лимиты пагинации из конфигурации.
func PageLimits(cfg config.AppConfig) domain.PageLimits {
	return domain.PageLimits{Default: cfg.Limits.PageDefault, Max: cfg.Limits.PageMax}
}
