// Package schedule выполняет плановую отправку дайджестов по расписанию.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/rs/zerolog"

	"forum-digest/internal/domain"
	"forum-digest/internal/usecase/dispatch"
	"forum-digest/internal/usecase/subscribers"
	"forum-digest/internal/usecase/window"
)

// Dispatcher ставит пачки подписчиков в очередь.
type Dispatcher interface {
	Dispatch(ctx context.Context, users iter.Seq2[domain.User, error], window domain.TimeWindow, mode domain.Mode) (dispatch.Stats, error)
}

// Options задаёт параметры плановых запусков.
type Options struct {
	IntervalMinutes int
	GCDays          int
	Node            string
	Modes           []domain.Mode
	// Retries ограничивает повторы отправки окна при сбое выборки подписчиков.
	// Окно уже закреплено за узлом, поэтому повтор не обращается к журналу.
	Retries    int
	RetryDelay time.Duration
}

// Service раз в интервал берёт последнее завершившееся окно и отправляет
// его один раз на весь кластер.
type Service struct {
	store      domain.PreferenceStore
	ledger     domain.RunLedger
	dispatcher Dispatcher
	opts       Options
	now        func() time.Time
	log        zerolog.Logger
}

// NewService создаёт сервис расписания.
func NewService(store domain.PreferenceStore, ledger domain.RunLedger, dispatcher Dispatcher, opts Options, logger zerolog.Logger) (*Service, error) {
	if _, err := window.TimeSlice(opts.IntervalMinutes, time.Now()); err != nil {
		return nil, err
	}
	if len(opts.Modes) == 0 {
		opts.Modes = domain.Modes
	}
	return &Service{
		store:      store,
		ledger:     ledger,
		dispatcher: dispatcher,
		opts:       opts,
		now:        time.Now,
		log:        logger,
	}, nil
}

// Tick выполняет один плановый запуск. Ошибка одного режима не мешает
// обработке остальных и возвращается после обхода всех режимов.
func (s *Service) Tick(ctx context.Context) error {
	now := s.now().UTC()
	win, err := window.TimeSlice(s.opts.IntervalMinutes, now)
	if err != nil {
		return err
	}

	if s.opts.GCDays > 0 {
		before := now.AddDate(0, 0, -s.opts.GCDays)
		removed, err := s.ledger.Prune(ctx, before)
		if err != nil {
			s.log.Error().Err(err).Msg("schedule: не удалось очистить журнал запусков")
		} else if removed > 0 {
			s.log.Info().Int64("removed", removed).Time("before", before).Msg("schedule: журнал запусков очищен")
		}
	}

	var firstErr error
	for _, mode := range s.opts.Modes {
		if err := s.runMode(ctx, win, mode); err != nil {
			s.log.Error().Err(err).Str("mode", mode.String()).Msg("schedule: плановая отправка не удалась")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Service) runMode(ctx context.Context, win domain.TimeWindow, mode domain.Mode) error {
	acquired, owner, err := s.ledger.Acquire(ctx, win, mode, s.opts.Node)
	if err != nil {
		return fmt.Errorf("acquire %s window: %w", mode, err)
	}
	if !acquired {
		s.log.Info().
			Str("mode", mode.String()).
			Str("owner", owner).
			Time("from", win.From).
			Time("to", win.To).
			Msg("schedule: окно уже отправлено другим узлом")
		return nil
	}
	var stats dispatch.Stats
	for attempt := 0; ; attempt++ {
		stats, err = s.dispatcher.Dispatch(ctx, subscribers.Subscribed(ctx, s.store, mode), win, mode)
		if err == nil || !errors.Is(err, domain.ErrSubscriberQuery) || attempt >= s.opts.Retries {
			break
		}
		s.log.Warn().Err(err).Int("attempt", attempt+1).Str("mode", mode.String()).Msg("schedule: сбой выборки подписчиков, повторяем")
		if !sleep(ctx, s.opts.RetryDelay) {
			return ctx.Err()
		}
	}
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", mode, err)
	}
	s.log.Info().
		Str("mode", mode.String()).
		Time("from", win.From).
		Time("to", win.To).
		Int("users", stats.Users).
		Int("batches", stats.Batches).
		Msg("schedule: окно отправлено")
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
