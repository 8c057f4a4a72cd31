// Package queue implements the durable FIFO transport between pipeline
// stages on top of Redis lists.
//
// Key structure:
//
//	{namespace}:{stage}      - work queue for one stage (RPUSH/BLPOP)
//	{namespace}:{stage}:dlq  - dead letters for that stage
//
// Delivery is at-least-once: a popped message that is not re-pushed by its
// consumer is gone. The transport keeps no delivery state and performs no
// redelivery; the stages own re-enqueue through their retry logic.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned when a pop finds no message before its deadline.
var ErrEmpty = errors.New("queue is empty")

// connectTimeout bounds the startup ping.
const connectTimeout = 5 * time.Second

// Queue is a named-channel client over one Redis connection. A single
// Queue serves every key a process touches.
type Queue struct {
	client *redis.Client
}

// Connect parses a Redis URL, opens a client and verifies the connection
// with a ping. Stage processes treat an error here as fatal.
func Connect(ctx context.Context, url string) (*Queue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

// New wraps an existing Redis client. The caller keeps ownership of the
// client's lifecycle.
func New(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Client exposes the underlying Redis client so collaborators that need
// raw commands (the fusion deduper) can share the connection.
func (q *Queue) Client() *redis.Client {
	return q.client
}

// Push appends a message to the tail of key.
func (q *Queue) Push(ctx context.Context, key string, value []byte) error {
	if err := q.client.RPush(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", key, err)
	}
	return nil
}

// PushJSON marshals v and appends it to the tail of key.
func (q *Queue) PushJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message for %s: %w", key, err)
	}
	return q.Push(ctx, key, data)
}

// BlockingPop removes and returns the head of key, waiting up to timeout
// for a message to arrive. Returns ErrEmpty on timeout.
func (q *Queue) BlockingPop(ctx context.Context, key string, timeout time.Duration) ([]byte, error) {
	res, err := q.client.BLPop(ctx, timeout, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop from %s: %w", key, err)
	}
	// BLPOP replies [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BLPOP reply from %s: %d elements", key, len(res))
	}
	return []byte(res[1]), nil
}

// Pop removes and returns the head of key without blocking. Returns
// ErrEmpty when the queue has no messages.
func (q *Queue) Pop(ctx context.Context, key string) ([]byte, error) {
	res, err := q.client.LPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop from %s: %w", key, err)
	}
	return []byte(res), nil
}

// Len returns the number of messages waiting on key.
func (q *Queue) Len(ctx context.Context, key string) (int64, error) {
	n, err := q.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get length of %s: %w", key, err)
	}
	return n, nil
}

// Peek returns up to n messages from the head of key without removing
// them. Used by operator tooling to inspect DLQs.
func (q *Queue) Peek(ctx context.Context, key string, n int64) ([][]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	res, err := q.client.LRange(ctx, key, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to peek %s: %w", key, err)
	}
	msgs := make([][]byte, len(res))
	for i, s := range res {
		msgs[i] = []byte(s)
	}
	return msgs, nil
}

// Close releases the underlying Redis connection.
func (q *Queue) Close() error {
	return q.client.Close()
}
