package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forum-digest/internal/domain"
)

type recordingSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (s *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if s.err != nil {
		return tgbotapi.Message{}, s.err
	}
	s.sent = append(s.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

var report = domain.BatchReport{
	JobID:   "job-1",
	Mode:    domain.ModeBroad,
	Window:  domain.TimeWindow{From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
	Users:   5,
	Digests: 3,
	Sent:    2,
	Failed:  1,
}

func TestBeatSendsReportToOpsChat(t *testing.T) {
	sender := &recordingSender{}
	require.NoError(t, NewNotifier(sender, -100).Beat(context.Background(), report))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(-100), sender.sent[0].ChatID)
	assert.Contains(t, sender.sent[0].Text, "job-1")
	assert.Contains(t, sender.sent[0].Text, "отправлено: 2, ошибок: 1")
}

func TestBeatReportsSendError(t *testing.T) {
	boom := errors.New("forbidden")
	err := NewNotifier(&recordingSender{err: boom}, 1).Beat(context.Background(), report)
	assert.ErrorIs(t, err, boom)
}

func TestFormatReportOmitsZeroFailures(t *testing.T) {
	r := report
	r.Failed = 0
	assert.NotContains(t, FormatReport(r), "ошибок")
}
