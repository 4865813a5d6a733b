package model

import (
	"time"
)

// Subscription statuses. A pending row is the optimistic client-side state;
// only the reconcile worker promotes it to active.
const (
	SubscriptionPending   = "pending"
	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
	SubscriptionExpired   = "expired"
)

type Subscription struct {
	ID             int64      `gorm:"primaryKey" json:"id"`
	UserID         int64      `gorm:"not null;index" json:"user_id"`
	Tier           string     `gorm:"size:20;not null" json:"tier"`
	Amount         float64    `gorm:"type:decimal(10,2)" json:"amount,omitempty"`
	EssayQuota     int        `json:"essay_quota"`
	StartedAt      time.Time  `gorm:"not null" json:"started_at"`
	ExpiresAt      *time.Time `gorm:"index" json:"expires_at,omitempty"`
	Status         string     `gorm:"size:20;default:pending;index" json:"status"`
	Provider       string     `gorm:"size:20" json:"provider,omitempty"` // stripe, paypal
	ProviderSubID  string     `gorm:"size:100;index" json:"provider_sub_id,omitempty"`
	CorrelationID  string     `gorm:"size:64;uniqueIndex" json:"-"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}
