package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"feed-engine/internal/domain"
	"feed-engine/internal/infra/metrics"
)

// RedisQueue реализует очередь задач на базе Redis lists.
// Полученная задача переносится в список обработки и удаляется из него после подтверждения.
type RedisQueue struct {
	client     *redis.Client
	key        string
	processing string
}

var _ domain.ClassificationQueue = (*RedisQueue)(nil)

// NewRedisQueue создаёт очередь по указанному ключу.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key, processing: key + ":processing"}
}

// Enqueue публикует задачу в очередь.
func (q *RedisQueue) Enqueue(ctx context.Context, job domain.ClassificationJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди.
func (q *RedisQueue) Receive(ctx context.Context) (domain.ClassificationJob, domain.AckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.ClassificationJob{}, nil, err
		}

		raw, err := q.client.BLMove(ctx, q.key, q.processing, "RIGHT", "LEFT", time.Second).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.ClassificationJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.ClassificationJob{}, nil, err
		}
		var job domain.ClassificationJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			_ = q.client.LRem(context.Background(), q.processing, 1, raw).Err()
			return domain.ClassificationJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		return job, q.ackFunc(raw), nil
	}
}

func (q *RedisQueue) ackFunc(raw string) domain.AckFunc {
	return func(success bool) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		start := time.Now()
		_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, q.processing, 1, raw)
			if !success {
				pipe.LPush(ctx, q.key, raw)
			}
			return nil
		})
		metrics.ObserveNetworkRequest("redis", "ack", q.key, start, err)
		if err != nil {
			return fmt.Errorf("ack job: %w", err)
		}
		return nil
	}
}

// Requeue возвращает в очередь задачи, зависшие в списке обработки после падения воркера.
func (q *RedisQueue) Requeue(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processing, q.key, "RIGHT", "LEFT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("requeue: %w", err)
		}
		moved++
	}
}
