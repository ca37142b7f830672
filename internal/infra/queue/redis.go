package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"forum-digest/internal/domain"
	"forum-digest/internal/infra/metrics"
)

// RedisClient описывает команды Redis, нужные очереди.
type RedisClient interface {
	LPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// RedisBatchQueue реализует очередь пачек на базе Redis lists.
type RedisBatchQueue struct {
	client RedisClient
	key    string
}

// NewRedisBatchQueue создаёт очередь по указанному ключу.
func NewRedisBatchQueue(client RedisClient, key string) *RedisBatchQueue {
	return &RedisBatchQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisBatchQueue) Enqueue(ctx context.Context, job domain.DigestBatchJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return q.push(ctx, payload)
}

func (q *RedisBatchQueue) push(ctx context.Context, payload []byte) error {
	start := time.Now()
	err := q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу. Подтверждение с success=false
// возвращает задачу в конец очереди.
func (q *RedisBatchQueue) Receive(ctx context.Context) (domain.DigestBatchJob, domain.AckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.DigestBatchJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.DigestBatchJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.DigestBatchJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.DigestBatchJob{}, nil, errors.New("redis queue: unexpected response")
		}
		payload := []byte(res[1])
		var job domain.DigestBatchJob
		if err := json.Unmarshal(payload, &job); err != nil {
			return domain.DigestBatchJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.push(context.Background(), payload)
		}
		return job, ack, nil
	}
}

var _ domain.BatchQueue = (*RedisBatchQueue)(nil)
