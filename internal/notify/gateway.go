// Package notify is the outbound email boundary. Enqueue only means the
// message was accepted for later delivery; delivery itself happens in the
// mailer process and is best-effort.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Message is a single outbound email.
type Message struct {
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	QueuedAt time.Time `json:"queued_at"`
}

// Gateway accepts messages for asynchronous delivery.
type Gateway interface {
	Enqueue(ctx context.Context, msg Message) error
}

var ErrInvalidHeader = errors.New("header value contains a line break")

// checkHeaders rejects recipients and subjects that would add extra mail
// headers when written out.
func checkHeaders(msg Message) error {
	if strings.ContainsAny(msg.To, "\r\n") {
		return fmt.Errorf("%w: to", ErrInvalidHeader)
	}
	if strings.ContainsAny(msg.Subject, "\r\n") {
		return fmt.Errorf("%w: subject", ErrInvalidHeader)
	}
	return nil
}
