package domain

import (
	"context"
	"time"
)

// ClassificationJob содержит задачу классификации снимка поста.
type ClassificationJob struct {
	ID         string    `json:"job_id"`
	PostID     PostID    `json:"post_id"`
	ImageRef   string    `json:"image_ref"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Resumed    bool      `json:"resumed,omitempty"`
}

// ClassificationQueue описывает очередь задач классификации.
type ClassificationQueue interface {
	Enqueue(ctx context.Context, job ClassificationJob) error
	Receive(ctx context.Context) (ClassificationJob, AckFunc, error)
}

// AckFunc подтверждает успешную обработку или запрашивает повтор доставки задачи.
type AckFunc func(success bool) error
