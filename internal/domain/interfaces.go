package domain

import (
	"context"
	"iter"
	"time"
)

// PreferenceStore описывает сервис пользователей и их предпочтений.
type PreferenceStore interface {
	// FetchUser возвращает пользователя или ErrUserNotFound.
	FetchUser(ctx context.Context, id string) (User, error)
	// DigestSubscribers лениво перечисляет подписчиков режима.
	DigestSubscribers(ctx context.Context, mode Mode) iter.Seq2[User, error]
}

// ItemContent представляет запись ветки в ответе сервиса обсуждений.
type ItemContent struct {
	Body      string
	Username  string
	UpdatedAt time.Time
	Type      string
}

// ThreadContent представляет ветку в ответе сервиса обсуждений.
type ThreadContent struct {
	CommentableID string
	Title         string
	GroupID       *int64
	Content       []ItemContent
}

// CourseContent — ветки курса по идентификатору ветки.
type CourseContent map[string]ThreadContent

// UserContent — активность пользователя по идентификатору курса.
type UserContent map[string]CourseContent

// ContentPayload группирует активность по идентификатору пользователя.
type ContentPayload map[string]UserContent

// ContentSource отдаёт сырую активность сервиса обсуждений за окно.
type ContentSource interface {
	FetchNarrow(ctx context.Context, userIDs []string, window TimeWindow) (ContentPayload, error)
	FetchBroad(ctx context.Context, coursesByUser map[string][]string, window TimeWindow) (ContentPayload, error)
}

// DigestRenderer превращает дайджест в текстовое и HTML тело письма.
type DigestRenderer interface {
	Render(user User, digest Digest, title, description string, mode Mode) (text, html string, err error)
}

// MailMessage описывает письмо с дайджестом.
type MailMessage struct {
	To      string
	From    string
	Subject string
	Text    string
	HTML    string
}

// Mailer отправляет письма.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

// BatchReport содержит итог обработки пачки воркером.
type BatchReport struct {
	JobID   string
	Mode    Mode
	Window  TimeWindow
	Users   int
	Digests int
	Sent    int
	Failed  int
}

// Heartbeat сигнализирует внешнему мониторингу об обработанной пачке.
type Heartbeat interface {
	Beat(ctx context.Context, report BatchReport) error
}
