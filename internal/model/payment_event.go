package model

import (
	"time"
)

// Payment event processing states.
const (
	EventReceived  = "received"
	EventProcessed = "processed"
	EventSkipped   = "skipped" // stale or unroutable, intentionally not applied
	EventFailed    = "failed"
)

// PaymentEvent records every provider webhook delivery. The unique index on
// EventID is the durable idempotency backstop behind the redis fast path.
type PaymentEvent struct {
	ID          int64      `gorm:"primaryKey" json:"id"`
	EventID     string     `gorm:"size:100;uniqueIndex;not null" json:"event_id"`
	Provider    string     `gorm:"size:20;not null;index" json:"provider"`
	Type        string     `gorm:"size:100;not null" json:"type"`
	UserID      int64      `gorm:"index" json:"user_id"`
	Payload     string     `gorm:"type:text" json:"-"`
	Status      string     `gorm:"size:20;default:received;index" json:"status"`
	Error       string     `gorm:"size:500" json:"error,omitempty"`
	OccurredAt  time.Time  `gorm:"not null" json:"occurred_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (PaymentEvent) TableName() string {
	return "payment_events"
}
