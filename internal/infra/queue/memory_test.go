package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"feed-engine/internal/domain"
)

func TestMemoryQueueFull(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()
	if err := q.Enqueue(ctx, domain.ClassificationJob{ID: "a", PostID: 1}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := q.Enqueue(ctx, domain.ClassificationJob{ID: "b", PostID: 2}); !errors.Is(err, domain.ErrQueueFull) {
		t.Fatalf("ожидали ErrQueueFull, получили %v", err)
	}
}

func TestMemoryQueueNackRequeues(t *testing.T) {
	q := NewMemoryQueue(2)
	ctx := context.Background()
	_ = q.Enqueue(ctx, domain.ClassificationJob{ID: "a", PostID: 7})

	job, ack, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if job.PostID != 7 {
		t.Fatalf("ожидали пост 7, получили %d", job.PostID)
	}
	if err := ack(false); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("задача должна вернуться в очередь")
	}
	_, ack, _ = q.Receive(ctx)
	_ = ack(true)
	if q.Len() != 0 {
		t.Fatalf("подтверждённая задача не должна возвращаться")
	}
}

func TestMemoryQueueReceiveCancelled(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, _, err := q.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("ожидали отмену контекста, получили %v", err)
	}
}

func TestMemoryQueueClose(t *testing.T) {
	q := NewMemoryQueue(2)
	ctx := context.Background()
	_ = q.Enqueue(ctx, domain.ClassificationJob{ID: "a"})
	q.Close()
	if err := q.Enqueue(ctx, domain.ClassificationJob{ID: "b"}); !errors.Is(err, domain.ErrQueueFull) {
		t.Fatalf("закрытая очередь не должна принимать задачи")
	}
	if job, _, err := q.Receive(ctx); err != nil || job.ID != "a" {
		t.Fatalf("ожидали оставшуюся задачу, получили %+v (%v)", job, err)
	}
	if _, _, err := q.Receive(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("ожидали завершение после закрытия, получили %v", err)
	}
}
