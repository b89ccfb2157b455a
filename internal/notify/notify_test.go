package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/client-portal-scheduling/internal/logging"
)

func newQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisQueue(rdb, "mail:test"), mr
}

func TestRedisQueue_FIFO(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Message{To: "a@example.com", Subject: "first"}))
	require.NoError(t, q.Enqueue(ctx, Message{To: "b@example.com", Subject: "second"}))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	m1, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, m1)
	assert.Equal(t, "first", m1.Subject)
	assert.False(t, m1.QueuedAt.IsZero())

	m2, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, m2)
	assert.Equal(t, "second", m2.Subject)
}

func TestRedisQueue_RejectsMissingRecipient(t *testing.T) {
	q, _ := newQueue(t)

	err := q.Enqueue(context.Background(), Message{Subject: "x"})
	assert.ErrorIs(t, err, ErrNoRecipient)
}

func TestRedisQueue_RejectsHeaderInjection(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	err := q.Enqueue(ctx, Message{To: "a@example.com\r\nBcc: victim@example.com", Subject: "x"})
	assert.ErrorIs(t, err, ErrInvalidHeader)

	err = q.Enqueue(ctx, Message{To: "a@example.com", Subject: "hi\nX-Injected: 1"})
	assert.ErrorIs(t, err, ErrInvalidHeader)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSMTPSender_RejectsHeaderInjection(t *testing.T) {
	sender := NewSMTPSender("127.0.0.1:1", "portal@example.com", "", "")

	err := sender.Send(context.Background(), Message{To: "a@example.com\nBcc: victim@example.com", Subject: "x"})
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestRedisQueue_EnqueueFailsWhenRedisDown(t *testing.T) {
	q, mr := newQueue(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, q.Enqueue(ctx, Message{To: "a@example.com"}))
}

func TestRedisQueue_DequeueEmpty(t *testing.T) {
	q, _ := newQueue(t)

	msg, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

type recordingSender struct {
	mu   sync.Mutex
	sent []Message
	fail map[string]bool
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[msg.To] {
		return errors.New("mailbox unavailable")
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestDrain_DeliversAndParksFailures(t *testing.T) {
	q, mr := newQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Enqueue(ctx, Message{To: "ok@example.com", Subject: "hi"}))
	require.NoError(t, q.Enqueue(ctx, Message{To: "bounce@example.com", Subject: "hi"}))

	sender := &recordingSender{fail: map[string]bool{"bounce@example.com": true}}
	done := make(chan struct{})
	go func() {
		Drain(ctx, q, sender, logging.Discard(), time.Second)
		close(done)
	}()

	require.Eventually(t, func() bool {
		failed, _ := mr.List(q.FailedKey())
		return sender.count() == 1 && len(failed) == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("drain did not stop after cancel")
	}
}

func TestTemplates(t *testing.T) {
	data := Invitation{
		ClientName: "Ada",
		Date:       "2025-03-10",
		Time:       "09:00",
		Location:   "HQ",
		DaysUntil:  7,
		Token:      "abc123",
		BaseURL:    "https://portal.example.com",
	}

	inv, err := InvitationMessage("ada@example.com", data)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", inv.To)
	assert.Contains(t, inv.Subject, "2025-03-10")
	assert.Contains(t, inv.Body, "2025-03-10 at 09:00 (HQ)")
	assert.Contains(t, inv.Body, "https://portal.example.com/appointments/invitation?token=abc123")

	res, err := RescheduleMessage("ada@example.com", data)
	require.NoError(t, err)
	assert.Contains(t, res.Body, "moved to 2025-03-10")

	rem, err := ReminderMessage("ada@example.com", data)
	require.NoError(t, err)
	assert.Contains(t, rem.Body, "in 7 days")

	data.DaysUntil = 1
	data.Location = ""
	rem, err = ReminderMessage("ada@example.com", data)
	require.NoError(t, err)
	assert.Contains(t, rem.Body, "in 1 day:")
	assert.NotContains(t, rem.Body, "()")
}
