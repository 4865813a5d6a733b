package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelBillingUpdates = "billing_updates"
)

// BillingMessage carries an authoritative account transition from the
// reconcile worker to whichever server process holds the user's websocket.
type BillingMessage struct {
	UserID  int64  `json:"user_id"`
	State   string `json:"state"` // confirmed, cancelled, failed
	Tier    string `json:"tier,omitempty"`
	Credits int    `json:"credits,omitempty"`
	EventID string `json:"event_id,omitempty"`
}

// Publisher publishes billing updates over redis.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) PublishBillingUpdate(ctx context.Context, msg *BillingMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal billing message: %w", err)
	}
	return p.client.Publish(ctx, ChannelBillingUpdates, data).Err()
}

// Subscriber receives billing updates.
type Subscriber struct {
	client *redis.Client
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Listen delivers messages to handler until the context is cancelled.
func (s *Subscriber) Listen(ctx context.Context, handler func(*BillingMessage)) error {
	sub := s.client.Subscribe(ctx, ChannelBillingUpdates)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg BillingMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				continue
			}
			handler(&msg)
		}
	}
}
