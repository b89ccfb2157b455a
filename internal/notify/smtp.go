package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/hackgods/client-portal-scheduling/internal/logging"
)

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth
}

func NewSMTPSender(addr, from, username, password string) *SMTPSender {
	s := &SMTPSender{addr: addr, from: from}
	if username != "" {
		host, _, _ := net.SplitHostPort(addr)
		s.auth = smtp.PlainAuth("", username, password, host)
	}
	return s
}

func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	if err := checkHeaders(msg); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))

	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{msg.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

// Drain delivers queued messages until ctx is cancelled. A failed delivery
// is parked on the failed list and never retried here.
func Drain(ctx context.Context, q *RedisQueue, sender Sender, log logging.Logger, wait time.Duration) {
	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := q.Dequeue(ctx, wait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error(ctx, "dequeue failed", "err", err)
			time.Sleep(time.Second)
			continue
		}
		if msg == nil {
			continue
		}

		if err := sender.Send(ctx, *msg); err != nil {
			log.Warn(ctx, "delivery failed, parking message", "to", msg.To, "subject", msg.Subject, "err", err)
			if perr := q.Park(ctx, *msg); perr != nil {
				log.Error(ctx, "park failed", "to", msg.To, "err", perr)
			}
			continue
		}
		log.Info(ctx, "delivered", "to", msg.To, "subject", msg.Subject)
	}
}
