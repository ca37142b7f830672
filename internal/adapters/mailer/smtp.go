// Package mailer отправляет письма с дайджестом по SMTP.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"time"

	"github.com/google/uuid"

	"forum-digest/internal/domain"
	"forum-digest/internal/infra/metrics"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTP отправляет письма через SMTP релей.
type SMTP struct {
	addr string
	auth smtp.Auth
	send sendFunc
	now  func() time.Time
}

// NewSMTP создаёт отправителя. Пустое имя пользователя отключает авторизацию.
func NewSMTP(addr, username, password string) (*SMTP, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("smtp addr %q: %w", addr, err)
	}
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTP{addr: addr, auth: auth, send: smtp.SendMail, now: time.Now}, nil
}

// Send отправляет письмо multipart/alternative с текстовой и HTML частью.
func (s *SMTP) Send(ctx context.Context, msg domain.MailMessage) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.To == "" {
		return fmt.Errorf("smtp: %w: empty address", domain.ErrPermanentRecipient)
	}
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return fmt.Errorf("smtp: %w: %q: %w", domain.ErrPermanentRecipient, msg.To, err)
	}
	start := time.Now()
	defer func() {
		metrics.ObserveNetworkRequest("smtp", "send_mail", s.addr, start, err)
	}()

	body, err := s.compose(msg)
	if err != nil {
		return err
	}
	if err := s.send(s.addr, s.auth, msg.From, []string{msg.To}, body); err != nil {
		if rejectedRecipient(err) {
			return fmt.Errorf("smtp send to %s: %w: %w", msg.To, domain.ErrPermanentRecipient, err)
		}
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

// rejectedRecipient распознаёт ответы 5xx, относящиеся к ящику получателя.
// Остальные ошибки считаются временными.
func rejectedRecipient(err error) bool {
	var protoErr *textproto.Error
	if !errors.As(err, &protoErr) {
		return false
	}
	switch protoErr.Code {
	case 550, 551, 553:
		return true
	}
	return false
}

func (s *SMTP) compose(msg domain.MailMessage) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=utf-8", msg.Text},
		{"text/html; charset=utf-8", msg.HTML},
	}
	for _, p := range parts {
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", p.contentType)
		header.Set("Content-Transfer-Encoding", "8bit")
		w, err := mw.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("compose mail: %w", err)
		}
		if _, err := w.Write([]byte(p.content)); err != nil {
			return nil, fmt.Errorf("compose mail: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("compose mail: %w", err)
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "From: %s\r\n", msg.From)
	fmt.Fprintf(&out, "To: %s\r\n", msg.To)
	fmt.Fprintf(&out, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&out, "Date: %s\r\n", s.now().UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&out, "Message-ID: <%s@forum-digest>\r\n", uuid.NewString())
	fmt.Fprintf(&out, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&out, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

var _ domain.Mailer = (*SMTP)(nil)
