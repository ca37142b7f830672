// Package dispatch нарезает поток подписчиков на пачки фиксированного
// размера и ставит их в асинхронную очередь.
package dispatch

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"forum-digest/internal/domain"
	"forum-digest/internal/infra/metrics"
)

// Stats хранит итог одного прохода диспетчера.
type Stats struct {
	Users   int
	Batches int
	Failed  int
}

// Dispatcher группирует подписчиков в пачки по batchSize.
type Dispatcher struct {
	queue     domain.BatchQueue
	batchSize int
	log       zerolog.Logger
	newID     func() string
	now       func() time.Time
}

// NewDispatcher создаёт диспетчер. batchSize должен быть положительным.
func NewDispatcher(queue domain.BatchQueue, batchSize int, logger zerolog.Logger) (*Dispatcher, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", domain.ErrInvalidConfig, batchSize)
	}
	return &Dispatcher{
		queue:     queue,
		batchSize: batchSize,
		log:       logger,
		newID:     uuid.NewString,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Dispatch потребляет последовательность подписчиков. Полная пачка
// отправляется сразу, остаток отправляется последним. Ошибка постановки в
// очередь логируется и не останавливает проход. Ошибка последовательности
// прерывает проход, уже отправленные пачки остаются в очереди.
func (d *Dispatcher) Dispatch(ctx context.Context, users iter.Seq2[domain.User, error], window domain.TimeWindow, mode domain.Mode) (Stats, error) {
	var stats Stats
	buf := make([]domain.User, 0, d.batchSize)
	for user, err := range users {
		if err != nil {
			return stats, err
		}
		stats.Users++
		buf = append(buf, user)
		if len(buf) == d.batchSize {
			d.submit(ctx, buf, window, mode, &stats)
			buf = make([]domain.User, 0, d.batchSize)
		}
	}
	if len(buf) > 0 {
		d.submit(ctx, buf, window, mode, &stats)
	}
	d.log.Info().
		Str("mode", mode.String()).
		Int("users", stats.Users).
		Int("batches", stats.Batches).
		Int("failed", stats.Failed).
		Msg("dispatch: подписчики распределены по пачкам")
	return stats, nil
}

func (d *Dispatcher) submit(ctx context.Context, batch []domain.User, window domain.TimeWindow, mode domain.Mode, stats *Stats) {
	job := domain.DigestBatchJob{
		ID:          d.newID(),
		Users:       batch,
		From:        window.From,
		To:          window.To,
		Mode:        mode,
		RequestedAt: d.now(),
	}
	stats.Batches++
	if err := d.queue.Enqueue(ctx, job); err != nil {
		stats.Failed++
		metrics.BatchSubmitErrors.WithLabelValues(mode.String()).Inc()
		d.log.Error().Err(err).Str("job", job.ID).Int("size", len(batch)).Msg("dispatch: не удалось поставить пачку в очередь")
		return
	}
	metrics.BatchesSubmitted.WithLabelValues(mode.String()).Inc()
	d.log.Debug().Str("job", job.ID).Int("size", len(batch)).Msg("dispatch: пачка поставлена в очередь")
}
