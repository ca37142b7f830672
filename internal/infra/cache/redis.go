package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"forum-digest/internal/domain"
	"forum-digest/internal/infra/metrics"
)

// Client описывает команды Redis, нужные журналу.
type Client interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisLedger реализует domain.RunLedger без Postgres: запись окна живёт
// ttl, поэтому Prune ничего не удаляет.
type RedisLedger struct {
	client Client
	prefix string
	ttl    time.Duration
}

// NewRedisLedger создаёт журнал запусков в Redis.
func NewRedisLedger(client Client, prefix string, ttl time.Duration) *RedisLedger {
	if prefix == "" {
		prefix = "forum_digest:run"
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisLedger{client: client, prefix: prefix, ttl: ttl}
}

// Acquire атомарно занимает окно через SETNX.
func (l *RedisLedger) Acquire(ctx context.Context, window domain.TimeWindow, mode domain.Mode, node string) (bool, string, error) {
	key := l.key(window, mode)
	start := time.Now()
	ok, err := l.client.SetNX(ctx, key, node, l.ttl).Result()
	metrics.ObserveNetworkRequest("redis", "ledger_setnx", l.prefix, start, err)
	if err != nil {
		return false, "", fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if ok {
		return true, node, nil
	}

	start = time.Now()
	owner, err := l.client.Get(ctx, key).Result()
	metrics.ObserveNetworkRequest("redis", "ledger_get", l.prefix, start, ignoreNil(err))
	if errors.Is(err, redis.Nil) {
		// ключ истёк между SETNX и GET
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return false, owner, nil
}

// Prune ничего не делает: записи удаляет сам Redis по ttl.
func (l *RedisLedger) Prune(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (l *RedisLedger) key(window domain.TimeWindow, mode domain.Mode) string {
	return fmt.Sprintf("%s:%s:%d:%d", l.prefix, mode, window.From.UTC().Unix(), window.To.UTC().Unix())
}

func ignoreNil(err error) error {
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

var _ domain.RunLedger = (*RedisLedger)(nil)
