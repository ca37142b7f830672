// Package telegram отправляет служебные сводки по обработанным пачкам в
// операторский чат.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"forum-digest/internal/domain"
	"forum-digest/internal/infra/metrics"
)

// Sender покрывает часть tgbotapi.BotAPI, нужную уведомителю.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier реализует domain.Heartbeat сообщением в чат.
type Notifier struct {
	bot    Sender
	chatID int64
}

// NewNotifier создаёт уведомитель.
func NewNotifier(bot Sender, chatID int64) *Notifier {
	return &Notifier{bot: bot, chatID: chatID}
}

// Beat отправляет сводку по пачке.
func (n *Notifier) Beat(ctx context.Context, report domain.BatchReport) error {
	for _, part := range chunk(FormatReport(report), messageLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(n.chatID, part)
		msg.DisableWebPagePreview = true
		start := time.Now()
		_, err := n.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(n.chatID, 10), start, err)
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

// FormatReport форматирует сводку по пачке.
func FormatReport(r domain.BatchReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Дайджест %s, пачка %s\n", r.Mode, r.JobID)
	fmt.Fprintf(&b, "Окно: %s — %s\n", r.Window.From.UTC().Format(time.RFC3339), r.Window.To.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Пользователей: %d, дайджестов: %d, отправлено: %d", r.Users, r.Digests, r.Sent)
	if r.Failed > 0 {
		fmt.Fprintf(&b, ", ошибок: %d", r.Failed)
	}
	return b.String()
}

var _ domain.Heartbeat = (*Notifier)(nil)
