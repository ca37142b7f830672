package queue

import (
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"

	"forum-digest/internal/domain"
)

// Backend-имена очереди.
const (
	BackendRedis    = "redis"
	BackendRabbitMQ = "rabbitmq"
)

// Open создаёт очередь выбранного бэкенда. Возвращаемый io.Closer
// освобождает соединение.
func Open(backend, redisAddr, rabbitURL, key string) (domain.BatchQueue, io.Closer, error) {
	switch backend {
	case BackendRedis, "":
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		return NewRedisBatchQueue(client, key), client, nil
	case BackendRabbitMQ:
		q, err := NewRabbitBatchQueue(rabbitURL, key)
		if err != nil {
			return nil, nil, err
		}
		return q, q, nil
	default:
		return nil, nil, fmt.Errorf("unknown queue backend %q", backend)
	}
}
