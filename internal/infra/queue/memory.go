package queue

import (
	"context"
	"sync"

	"feed-engine/internal/domain"
)

// MemoryQueue — очередь задач классификации внутри процесса.
// Enqueue не блокируется: при заполненном буфере возвращается domain.ErrQueueFull.
type MemoryQueue struct {
	jobs chan domain.ClassificationJob

	mu     sync.Mutex
	closed bool
}

var _ domain.ClassificationQueue = (*MemoryQueue)(nil)

// NewMemoryQueue создаёт очередь с буфером заданной ёмкости.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemoryQueue{jobs: make(chan domain.ClassificationJob, capacity)}
}

// Enqueue кладёт задачу в буфер.
func (q *MemoryQueue) Enqueue(ctx context.Context, job domain.ClassificationJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return domain.ErrQueueFull
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// Receive ждёт задачу. Отрицательное подтверждение возвращает задачу в конец очереди.
func (q *MemoryQueue) Receive(ctx context.Context) (domain.ClassificationJob, domain.AckFunc, error) {
	select {
	case <-ctx.Done():
		return domain.ClassificationJob{}, nil, ctx.Err()
	case job, ok := <-q.jobs:
		if !ok {
			return domain.ClassificationJob{}, nil, context.Canceled
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.Enqueue(context.Background(), job)
		}
		return job, ack, nil
	}
}

// Len возвращает число ожидающих задач.
func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}

// Close прекращает приём задач. Уже поставленные задачи остаются доступны для Receive.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
}
