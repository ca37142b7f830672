// Package aggregate собирает дайджесты пользователей из активности форума.
package aggregate

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/rs/zerolog"

	"forum-digest/internal/domain"
)

// Aggregator запрашивает активность у сервиса обсуждений и лениво строит
// дайджесты. Состояние между вызовами и режимами не разделяется.
type Aggregator struct {
	source domain.ContentSource
	links  Links
	log    zerolog.Logger
}

// NewAggregator создаёт агрегатор.
func NewAggregator(source domain.ContentSource, links Links, logger zerolog.Logger) *Aggregator {
	return &Aggregator{source: source, links: links, log: logger}
}

// Aggregate выполняет один запрос к сервису обсуждений и возвращает
// последовательность пар (идентификатор пользователя, дайджест). Пустые
// дайджесты пропускаются, поэтому пар может быть меньше, чем пользователей.
// Дайджест каждого пользователя строится только при чтении его элемента.
func (a *Aggregator) Aggregate(ctx context.Context, usersByID map[string]domain.User, window domain.TimeWindow, mode domain.Mode) (iter.Seq2[string, domain.Digest], error) {
	if len(usersByID) == 0 {
		return func(func(string, domain.Digest) bool) {}, nil
	}

	build := BuildNarrow
	var (
		payload domain.ContentPayload
		err     error
	)
	if mode.IsBroad() {
		build = BuildBroad
		payload, err = a.source.FetchBroad(ctx, coursesByUser(usersByID), window)
	} else {
		payload, err = a.source.FetchNarrow(ctx, sortedKeys(usersByID), window)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s content: %w", mode, err)
	}
	a.log.Debug().Int("users", len(usersByID)).Int("with_content", len(payload)).Str("mode", mode.String()).Msg("aggregate: получена активность")

	userIDs := sortedKeys(payload)
	return func(yield func(string, domain.Digest) bool) {
		for _, id := range userIDs {
			user, ok := usersByID[id]
			if !ok {
				a.log.Warn().Str("user", id).Msg("aggregate: сервис обсуждений вернул неизвестного пользователя")
				continue
			}
			digest := build(user, payload[id], window, a.links)
			if digest.Empty() {
				continue
			}
			if !yield(id, digest) {
				return
			}
		}
	}, nil
}

func coursesByUser(usersByID map[string]domain.User) map[string][]string {
	out := make(map[string][]string, len(usersByID))
	for id, user := range usersByID {
		courses := user.CourseIDs()
		slices.Sort(courses)
		out[id] = courses
	}
	return out
}
