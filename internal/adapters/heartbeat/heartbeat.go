// Package heartbeat сообщает внешнему мониторингу, что пачка обработана.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"forum-digest/internal/domain"
	"forum-digest/internal/infra/metrics"
)

// Snitch отправляет POST на адрес dead man's snitch.
type Snitch struct {
	url        string
	httpClient *http.Client
}

// NewSnitch создаёт heartbeat. Пустой url возвращает nil.
func NewSnitch(url string, client *http.Client) *Snitch {
	if url == "" {
		return nil
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Snitch{url: url, httpClient: client}
}

func (s *Snitch) Beat(ctx context.Context, _ domain.BatchReport) (err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveNetworkRequest("snitch", "beat", "dead_mans_snitch", start, err)
	}()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("snitch request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("snitch error: status=%d", resp.StatusCode)
	}
	return nil
}

// Multi рассылает heartbeat всем получателям и объединяет ошибки.
type Multi []domain.Heartbeat

// NewMulti отбрасывает nil получателей. Если не осталось ни одного,
// возвращает nil.
func NewMulti(beats ...domain.Heartbeat) domain.Heartbeat {
	var out Multi
	for _, b := range beats {
		if b == nil {
			continue
		}
		if s, ok := b.(*Snitch); ok && s == nil {
			continue
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (m Multi) Beat(ctx context.Context, report domain.BatchReport) error {
	var errs []error
	for _, b := range m {
		if err := b.Beat(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
