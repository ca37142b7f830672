// Package subscribers строит последовательность получателей дайджеста.
//
// Оба варианта возвращают одноразовую последовательность: повторный проход
// выдаёт domain.ErrSequenceConsumed. Если нужен повторный проход, результат
// следует собрать через Collect.
package subscribers

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"forum-digest/internal/domain"
	"forum-digest/internal/infra/metrics"
)

// Explicit загружает пользователей по списку идентификаторов. Каждый
// идентификатор требует отдельного запроса, поэтому вариант предназначен
// только для диагностики. Порядок сохраняется, дубликаты не удаляются.
// Пользователи, которых не удалось получить или у которых нет подписки на
// режим, пропускаются с предупреждением.
func Explicit(ctx context.Context, store domain.PreferenceStore, ids []string, mode domain.Mode, logger zerolog.Logger) iter.Seq2[domain.User, error] {
	users := make([]domain.User, 0, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		user, err := store.FetchUser(ctx, id)
		if err != nil {
			logger.Warn().Err(err).Str("user", id).Str("mode", mode.String()).Msg("subscribers: не удалось получить пользователя, пропускаем")
			continue
		}
		if !user.Subscribed(mode) {
			logger.Warn().Err(domain.ErrMissingPreference).Str("user", id).Str("mode", mode.String()).Msg("subscribers: у пользователя нет подписки на дайджест")
			continue
		}
		users = append(users, user)
	}
	metrics.SubscribersTotal.WithLabelValues(mode.String()).Add(float64(len(users)))
	return singlePass(func(yield func(domain.User, error) bool) {
		for _, user := range users {
			if !yield(user, nil) {
				return
			}
		}
	})
}

// Subscribed лениво перечисляет всех подписчиков режима из сервиса
// пользователей. Ошибка выборки завершает последовательность и оборачивается
// в domain.ErrSubscriberQuery.
func Subscribed(ctx context.Context, store domain.PreferenceStore, mode domain.Mode) iter.Seq2[domain.User, error] {
	counter := metrics.SubscribersTotal.WithLabelValues(mode.String())
	return singlePass(func(yield func(domain.User, error) bool) {
		for user, err := range store.DigestSubscribers(ctx, mode) {
			if err != nil {
				yield(domain.User{}, fmt.Errorf("%w: %w", domain.ErrSubscriberQuery, err))
				return
			}
			counter.Inc()
			if !yield(user, nil) {
				return
			}
		}
	})
}

// Collect материализует последовательность.
func Collect(seq iter.Seq2[domain.User, error]) ([]domain.User, error) {
	var users []domain.User
	for user, err := range seq {
		if err != nil {
			return users, err
		}
		users = append(users, user)
	}
	return users, nil
}

// IndexByID строит отображение идентификатор → пользователь.
func IndexByID(users []domain.User) map[string]domain.User {
	out := make(map[string]domain.User, len(users))
	for _, user := range users {
		out[user.ID] = user
	}
	return out
}

func singlePass(seq iter.Seq2[domain.User, error]) iter.Seq2[domain.User, error] {
	var used atomic.Bool
	return func(yield func(domain.User, error) bool) {
		if used.Swap(true) {
			yield(domain.User{}, domain.ErrSequenceConsumed)
			return
		}
		seq(yield)
	}
}
