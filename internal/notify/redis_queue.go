package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNoRecipient = errors.New("message has no recipient")

// RedisQueue is a Gateway backed by a Redis list. Producers LPUSH, the
// mailer BRPOPs, so delivery order is FIFO.
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Key() string { return q.key }

// FailedKey is where undeliverable messages are parked.
func (q *RedisQueue) FailedKey() string { return q.key + ":failed" }

func (q *RedisQueue) Enqueue(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	if err := checkHeaders(msg); err != nil {
		return err
	}
	if msg.QueuedAt.IsZero() {
		msg.QueuedAt = time.Now().UTC()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("push to %s: %w", q.key, err)
	}
	return nil
}

// Dequeue blocks up to wait for the next message. It returns (nil, nil)
// when nothing arrived in time.
func (q *RedisQueue) Dequeue(ctx context.Context, wait time.Duration) (*Message, error) {
	res, err := q.client.BRPop(ctx, wait, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("pop from %s: %w", q.key, err)
	}

	// res is [key, value]
	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &msg, nil
}

// Park moves a message that could not be delivered to the failed list.
func (q *RedisQueue) Park(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return q.client.LPush(ctx, q.FailedKey(), data).Err()
}

// Len reports the number of messages waiting for delivery.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
