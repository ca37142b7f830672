// Package pipeline связывает этапы одного запуска: окно, источник
// подписчиков и ровно один терминальный потребитель.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/rs/zerolog"

	"forum-digest/internal/domain"
	"forum-digest/internal/usecase/digest"
	"forum-digest/internal/usecase/dispatch"
	"forum-digest/internal/usecase/preview"
	"forum-digest/internal/usecase/subscribers"
	"forum-digest/internal/usecase/window"
)

// Dispatcher ставит пачки подписчиков в очередь.
type Dispatcher interface {
	Dispatch(ctx context.Context, users iter.Seq2[domain.User, error], window domain.TimeWindow, mode domain.Mode) (dispatch.Stats, error)
}

// Request описывает один запуск.
type Request struct {
	To      string
	Minutes int
	UserIDs []string
	Mode    domain.Mode
	RunMode RunMode
}

// Pipeline выполняет запуск.
type Pipeline struct {
	resolver   *window.Resolver
	store      domain.PreferenceStore
	aggregator preview.Aggregator
	preview    *preview.Renderer
	dispatcher Dispatcher
	serializer *digest.Serializer
	out        io.Writer
	log        zerolog.Logger
}

// Deps собирает зависимости конвейера.
type Deps struct {
	Resolver   *window.Resolver
	Store      domain.PreferenceStore
	Aggregator preview.Aggregator
	Preview    *preview.Renderer
	Dispatcher Dispatcher
	Serializer *digest.Serializer
	Out        io.Writer
}

// New создаёт конвейер.
func New(deps Deps, logger zerolog.Logger) *Pipeline {
	serializer := deps.Serializer
	if serializer == nil {
		serializer = digest.NewSerializer(nil)
	}
	return &Pipeline{
		resolver:   deps.Resolver,
		store:      deps.Store,
		aggregator: deps.Aggregator,
		preview:    deps.Preview,
		dispatcher: deps.Dispatcher,
		serializer: serializer,
		out:        deps.Out,
		log:        logger,
	}
}

// Run выполняет запуск. Ошибка содержит имя этапа, на котором она возникла.
func (p *Pipeline) Run(ctx context.Context, req Request) error {
	win, err := p.resolver.Resolve(req.To, req.Minutes)
	if err != nil {
		return fmt.Errorf("window: %w", err)
	}
	p.log.Info().
		Time("from", win.From).
		Time("to", win.To).
		Str("mode", req.Mode.String()).
		Str("run", req.RunMode.Kind.String()).
		Int("explicit_users", len(req.UserIDs)).
		Msg("pipeline: запуск")

	users := p.source(ctx, req)

	switch req.RunMode.Kind {
	case RunShowUsers:
		return p.showUsers(users)
	case RunShowContent:
		return p.showContent(ctx, users, win, req.Mode)
	case RunShowRendered:
		return p.showRendered(ctx, users, win, req.Mode, req.RunMode.Format)
	default:
		stats, err := p.dispatcher.Dispatch(ctx, users, win, req.Mode)
		if err != nil {
			if errors.Is(err, domain.ErrSubscriberQuery) {
				return fmt.Errorf("subscribers: %w", err)
			}
			return fmt.Errorf("dispatch: %w", err)
		}
		p.log.Info().Int("users", stats.Users).Int("batches", stats.Batches).Int("failed", stats.Failed).Msg("pipeline: отправка завершена")
		return nil
	}
}

func (p *Pipeline) source(ctx context.Context, req Request) iter.Seq2[domain.User, error] {
	if len(req.UserIDs) > 0 {
		return subscribers.Explicit(ctx, p.store, req.UserIDs, req.Mode, p.log)
	}
	return subscribers.Subscribed(ctx, p.store, req.Mode)
}

func (p *Pipeline) showUsers(users iter.Seq2[domain.User, error]) error {
	list, err := subscribers.Collect(users)
	if err != nil {
		return fmt.Errorf("subscribers: %w", err)
	}
	if list == nil {
		list = []domain.User{}
	}
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(list); err != nil {
		return fmt.Errorf("show users: %w", err)
	}
	return nil
}

func (p *Pipeline) collect(users iter.Seq2[domain.User, error]) (map[string]domain.User, error) {
	list, err := subscribers.Collect(users)
	if err != nil {
		return nil, fmt.Errorf("subscribers: %w", err)
	}
	return subscribers.IndexByID(list), nil
}

func (p *Pipeline) showContent(ctx context.Context, users iter.Seq2[domain.User, error], win domain.TimeWindow, mode domain.Mode) error {
	byID, err := p.collect(users)
	if err != nil {
		return err
	}
	seq, err := p.aggregator.Aggregate(ctx, byID, win, mode)
	if err != nil {
		return fmt.Errorf("content: %w", err)
	}
	n, err := p.serializer.WriteSeq(p.out, seq)
	if err != nil {
		return fmt.Errorf("content: %w", err)
	}
	p.log.Info().Int("digests", n).Msg("pipeline: дайджесты выведены")
	return nil
}

func (p *Pipeline) showRendered(ctx context.Context, users iter.Seq2[domain.User, error], win domain.TimeWindow, mode domain.Mode, format preview.Format) error {
	byID, err := p.collect(users)
	if err != nil {
		return err
	}
	body, ok, err := p.preview.Preview(ctx, byID, win, mode, format)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if !ok {
		return nil
	}
	if _, err := io.WriteString(p.out, body); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return nil
}
