package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestQueue(t *testing.T) (*miniredis.Miniredis, *Queue) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, New(client)
}

func TestPushPopFIFO(t *testing.T) {
	_, q := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, "test:raw", []byte("first")))
	require.NoError(t, q.Push(ctx, "test:raw", []byte("second")))
	require.NoError(t, q.Push(ctx, "test:raw", []byte("third")))

	for _, want := range []string{"first", "second", "third"} {
		msg, err := q.Pop(ctx, "test:raw")
		require.NoError(t, err)
		assert.Equal(t, want, string(msg))
	}

	_, err := q.Pop(ctx, "test:raw")
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestRequeueGoesToTail(t *testing.T) {
	_, q := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, "test:raw", []byte("a")))
	require.NoError(t, q.Push(ctx, "test:raw", []byte("b")))

	msg, err := q.Pop(ctx, "test:raw")
	require.NoError(t, err)
	require.Equal(t, "a", string(msg))

	// A requeued message lines up behind everything already waiting.
	require.NoError(t, q.Push(ctx, "test:raw", msg))

	msg, err = q.Pop(ctx, "test:raw")
	require.NoError(t, err)
	assert.Equal(t, "b", string(msg))

	msg, err = q.Pop(ctx, "test:raw")
	require.NoError(t, err)
	assert.Equal(t, "a", string(msg))
}

func TestBlockingPop(t *testing.T) {
	t.Run("returns waiting message", func(t *testing.T) {
		_, q := setupTestQueue(t)
		ctx := context.Background()

		require.NoError(t, q.Push(ctx, "test:score", []byte("ready")))

		msg, err := q.BlockingPop(ctx, "test:score", time.Second)
		require.NoError(t, err)
		assert.Equal(t, "ready", string(msg))
	})

	t.Run("times out on empty queue", func(t *testing.T) {
		_, q := setupTestQueue(t)

		start := time.Now()
		_, err := q.BlockingPop(context.Background(), "test:score", 50*time.Millisecond)
		assert.ErrorIs(t, err, ErrEmpty)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}

func TestPushJSON(t *testing.T) {
	_, q := setupTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.PushJSON(ctx, "test:fuse", map[string]int{"retryCount": 2}))

	msg, err := q.Pop(ctx, "test:fuse")
	require.NoError(t, err)
	assert.JSONEq(t, `{"retryCount":2}`, string(msg))
}

func TestLenAndPeek(t *testing.T) {
	_, q := setupTestQueue(t)
	ctx := context.Background()

	for _, v := range []string{"one", "two", "three"} {
		require.NoError(t, q.Push(ctx, "test:raw:dlq", []byte(v)))
	}

	n, err := q.Len(ctx, "test:raw:dlq")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	msgs, err := q.Peek(ctx, "test:raw:dlq", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", string(msgs[0]))
	assert.Equal(t, "two", string(msgs[1]))

	// Peek does not consume.
	n, err = q.Len(ctx, "test:raw:dlq")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestConnectRejectsBadURL(t *testing.T) {
	_, err := Connect(context.Background(), "not-a-url")
	assert.Error(t, err)
}

func TestConnectPingsServer(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	q, err := Connect(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.Push(context.Background(), "test:raw", []byte("ping")))
}

func TestDefaultKeys(t *testing.T) {
	keys := DefaultKeys("civicsignal")

	assert.Equal(t, "civicsignal:raw", keys.Raw)
	assert.Equal(t, "civicsignal:raw:dlq", keys.RawDLQ)
	assert.Equal(t, "civicsignal:normalize", keys.Normalize)
	assert.Equal(t, "civicsignal:score", keys.Score)
	assert.Equal(t, "civicsignal:score:dlq", keys.ScoreDLQ)
	assert.Equal(t, "civicsignal:fuse", keys.Fuse)
	assert.Equal(t, "civicsignal:fuse:dlq", keys.FuseDLQ)
	assert.Equal(t, "civicsignal:export", keys.Export)
	assert.Equal(t, "civicsignal:export:dlq", keys.ExportDLQ)

	dlqs := keys.DLQs()
	assert.Len(t, dlqs, 4)
	assert.Equal(t, "civicsignal:score:dlq", dlqs["score"])
}
