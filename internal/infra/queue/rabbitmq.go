package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"forum-digest/internal/domain"
	"forum-digest/internal/infra/metrics"
)

// Channel — часть amqp.Channel, используемая очередью.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// RabbitBatchQueue реализует очередь пачек поверх AMQP с ручным
// подтверждением доставки.
type RabbitBatchQueue struct {
	conn  *amqp.Connection
	ch    Channel
	queue string

	mu         sync.Mutex
	deliveries <-chan amqp.Delivery
}

// NewRabbitBatchQueue подключается к брокеру и объявляет durable очередь.
func NewRabbitBatchQueue(amqpURL, queue string) (*RabbitBatchQueue, error) {
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
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	q := NewRabbitBatchQueueWithChannel(ch, queue)
	q.conn = conn
	return q, nil
}

// NewRabbitBatchQueueWithChannel использует готовый канал.
func NewRabbitBatchQueueWithChannel(ch Channel, queue string) *RabbitBatchQueue {
	return &RabbitBatchQueue{ch: ch, queue: queue}
}

// Enqueue публикует задачу в очередь через exchange по умолчанию.
func (q *RabbitBatchQueue) Enqueue(ctx context.Context, job domain.DigestBatchJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    job.RequestedAt,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Receive ждёт следующую доставку. Подтверждение с success=false
// возвращает сообщение брокеру для повторной доставки.
func (q *RabbitBatchQueue) Receive(ctx context.Context) (domain.DigestBatchJob, domain.AckFunc, error) {
	deliveries, err := q.consume()
	if err != nil {
		return domain.DigestBatchJob{}, nil, err
	}
	select {
	case <-ctx.Done():
		return domain.DigestBatchJob{}, nil, ctx.Err()
	case d, ok := <-deliveries:
		if !ok {
			q.reset(deliveries)
			return domain.DigestBatchJob{}, nil, fmt.Errorf("rabbitmq: %w", domain.ErrQueueClosed)
		}
		var job domain.DigestBatchJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			_ = d.Nack(false, false)
			return domain.DigestBatchJob{}, nil, fmt.Errorf("decode job: %w", err)
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

func (q *RabbitBatchQueue) consume() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}
	deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if errors.Is(err, amqp.ErrClosed) {
		return nil, fmt.Errorf("consume: %w: %w", domain.ErrQueueClosed, err)
	}
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	q.deliveries = deliveries
	return deliveries, nil
}

func (q *RabbitBatchQueue) reset(closed <-chan amqp.Delivery) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries == closed {
		q.deliveries = nil
	}
}

// Close закрывает канал и соединение.
func (q *RabbitBatchQueue) Close() error {
	err := q.ch.Close()
	if q.conn != nil {
		err = errors.Join(err, q.conn.Close())
	}
	return err
}

var _ domain.BatchQueue = (*RabbitBatchQueue)(nil)
