// Package preview отрисовывает первый собранный дайджест для проверки
// оператором без отправки писем.
package preview

import (
	"context"
	"fmt"
	"iter"

	"github.com/rs/zerolog"

	"forum-digest/internal/domain"
)

// Format определяет формат предпросмотра.
type Format string

const (
	FormatText Format = "text"
	FormatHTML Format = "html"
)

// Aggregator отдаёт последовательность дайджестов.
type Aggregator interface {
	Aggregate(ctx context.Context, usersByID map[string]domain.User, window domain.TimeWindow, mode domain.Mode) (iter.Seq2[string, domain.Digest], error)
}

// Renderer строит предпросмотр первого дайджеста.
type Renderer struct {
	aggregator Aggregator
	render     domain.DigestRenderer
	cfg        domain.PipelineConfig
	log        zerolog.Logger
}

// NewRenderer создаёт диагностический рендерер.
func NewRenderer(aggregator Aggregator, render domain.DigestRenderer, cfg domain.PipelineConfig, logger zerolog.Logger) *Renderer {
	return &Renderer{aggregator: aggregator, render: render, cfg: cfg, log: logger}
}

// Preview берёт ровно один дайджест из последовательности и возвращает его
// текстовое или HTML тело. Если дайджестов нет, возвращает ok=false без ошибки.
func (r *Renderer) Preview(ctx context.Context, usersByID map[string]domain.User, window domain.TimeWindow, mode domain.Mode, format Format) (body string, ok bool, err error) {
	if format != FormatText && format != FormatHTML {
		return "", false, fmt.Errorf("unknown preview format %q", format)
	}
	seq, err := r.aggregator.Aggregate(ctx, usersByID, window, mode)
	if err != nil {
		return "", false, err
	}

	var (
		userID string
		digest domain.Digest
		found  bool
	)
	for id, d := range seq {
		userID, digest, found = id, d, true
		break
	}
	if !found {
		r.log.Info().Str("format", string(format)).Str("mode", mode.String()).Msg("preview: дайджестов не найдено")
		return "", false, nil
	}

	title, description := r.cfg.Titles(mode)
	text, html, err := r.render.Render(usersByID[userID], digest, title, description, mode)
	if err != nil {
		return "", false, fmt.Errorf("render digest for user %s: %w", userID, err)
	}
	if format == FormatHTML {
		return html, true, nil
	}
	return text, true, nil
}
