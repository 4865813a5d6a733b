package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Queue struct {
	client    *redis.Client
	queueName string
}

// EventMessage is a verified webhook event waiting for reconciliation.
// The raw payload travels with it so the worker never re-reads the request.
type EventMessage struct {
	EventID    string          `json:"event_id"`
	Provider   string          `json:"provider"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

func NewQueue(client *redis.Client, queueName string) *Queue {
	return &Queue{
		client:    client,
		queueName: queueName,
	}
}

// Push enqueues an event.
func (q *Queue) Push(ctx context.Context, msg *EventMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return q.client.LPush(ctx, q.queueName, data).Err()
}

// Pop blocks until an event arrives or the timeout elapses.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*EventMessage, error) {
	result, err := q.client.BRPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // timeout, nothing queued
		}
		return nil, fmt.Errorf("failed to pop from queue: %w", err)
	}

	if len(result) < 2 {
		return nil, nil
	}

	var msg EventMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	return &msg, nil
}

// Length returns the queue depth.
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueName).Result()
}

// MarkSeen sets the idempotency fast path for an event id. Returns false
// when the id was already seen. The payment_events unique index remains the
// durable backstop if this key expires or redis restarts.
func (q *Queue) MarkSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("webhook:seen:%s", eventID)
	return q.client.SetNX(ctx, key, 1, ttl).Result()
}

// Forget clears the idempotency marker so a provider redelivery of the
// event id passes the ingress fast path again.
func (q *Queue) Forget(ctx context.Context, eventID string) error {
	key := fmt.Sprintf("webhook:seen:%s", eventID)
	return q.client.Del(ctx, key).Err()
}
