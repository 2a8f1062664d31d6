package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"feed-engine/internal/domain"
	"feed-engine/internal/infra/metrics"
)

// RabbitQueue реализует очередь задач через AMQP.
// Очередь durable, сообщения persistent, подтверждение ручное.
type RabbitQueue struct {
	conn  *amqp.Connection
	queue string

	pubMu sync.Mutex
	pub   *amqp.Channel

	consumeOnce sync.Once
	consumeErr  error
	deliveries  <-chan amqp.Delivery
	sub         *amqp.Channel
}

var _ domain.ClassificationQueue = (*RabbitQueue)(nil)

// NewRabbitQueue подключается к брокеру и объявляет очередь.
func NewRabbitQueue(amqpURL, queue string) (*RabbitQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := pub.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitQueue{conn: conn, queue: queue, pub: pub}, nil
}

// Enqueue публикует задачу в очередь.
func (q *RabbitQueue) Enqueue(ctx context.Context, job domain.ClassificationJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	start := time.Now()
	err = q.pub.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    job.EnqueuedAt,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

func (q *RabbitQueue) startConsume() error {
	q.consumeOnce.Do(func() {
		ch, err := q.conn.Channel()
		if err != nil {
			q.consumeErr = fmt.Errorf("open channel: %w", err)
			return
		}
		if err := ch.Qos(1, 0, false); err != nil {
			q.consumeErr = fmt.Errorf("set qos: %w", err)
			return
		}
		deliveries, err := ch.Consume(q.queue, "", false, false, false, false, nil)
		if err != nil {
			q.consumeErr = fmt.Errorf("consume: %w", err)
			return
		}
		q.sub = ch
		q.deliveries = deliveries
	})
	return q.consumeErr
}

// Receive блокирующе читает задачу из очереди.
func (q *RabbitQueue) Receive(ctx context.Context) (domain.ClassificationJob, domain.AckFunc, error) {
	if err := q.startConsume(); err != nil {
		return domain.ClassificationJob{}, nil, err
	}
	for {
		select {
		case <-ctx.Done():
			return domain.ClassificationJob{}, nil, ctx.Err()
		case d, ok := <-q.deliveries:
			if !ok {
				return domain.ClassificationJob{}, nil, errors.New("rabbitmq: delivery channel closed")
			}
			var job domain.ClassificationJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				_ = d.Nack(false, false)
				return domain.ClassificationJob{}, nil, fmt.Errorf("decode job: %w", err)
			}
			ack := func(success bool) error {
				if success {
					return d.Ack(false)
				}
				return d.Nack(false, true)
			}
			return job, ack, nil
		}
	}
}

// Close закрывает каналы и соединение.
func (q *RabbitQueue) Close() error {
	if q.sub != nil {
		_ = q.sub.Close()
	}
	_ = q.pub.Close()
	return q.conn.Close()
}
