package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewQueue(client, "test_events")
}

func TestPushPop(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	msg := &EventMessage{
		EventID:    "evt_1",
		Provider:   "stripe",
		Type:       "payment_intent.succeeded",
		OccurredAt: time.Now().Truncate(time.Second),
		Payload:    json.RawMessage(`{"id":"pi_1"}`),
	}
	require.NoError(t, q.Push(ctx, msg))

	n, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, msg.EventID, got.EventID)
	assert.Equal(t, msg.Provider, got.Provider)
	assert.JSONEq(t, string(msg.Payload), string(got.Payload))
}

func TestPopOrder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Push(ctx, &EventMessage{EventID: id, Provider: "stripe", OccurredAt: time.Now()}))
	}

	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Pop(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want, got.EventID, "queue must be FIFO")
	}
}

func TestMarkSeen(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	fresh, err := q.MarkSeen(ctx, "evt_x", time.Hour)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = q.MarkSeen(ctx, "evt_x", time.Hour)
	require.NoError(t, err)
	assert.False(t, fresh, "second delivery of the same id is not fresh")

	fresh, err = q.MarkSeen(ctx, "evt_y", time.Hour)
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestForgetReopensIngress(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	fresh, err := q.MarkSeen(ctx, "evt_x", time.Hour)
	require.NoError(t, err)
	assert.True(t, fresh)

	require.NoError(t, q.Forget(ctx, "evt_x"))

	fresh, err = q.MarkSeen(ctx, "evt_x", time.Hour)
	require.NoError(t, err)
	assert.True(t, fresh, "a forgotten id passes the fast path again")
}
