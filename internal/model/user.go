package model

import (
	"time"
)

// Subscription tiers.
const (
	TierFree       = "free"
	TierEssentials = "essentials"
	TierPro        = "pro"
)

// QuotaUnlimited marks a tier without an essay ceiling.
const QuotaUnlimited = -1

type User struct {
	ID                    int64      `gorm:"primaryKey" json:"id"`
	Username              string     `gorm:"size:50;uniqueIndex;not null" json:"username"`
	Email                 *string    `gorm:"size:100;uniqueIndex" json:"email,omitempty"`
	PasswordHash          *string    `gorm:"size:255" json:"-"`
	GithubID              *string    `gorm:"column:github_id;size:50;uniqueIndex" json:"-"`
	EmailVerified         bool       `gorm:"default:false" json:"email_verified"`
	VerificationCode      *string    `gorm:"size:100" json:"-"`
	VerificationExpiresAt *time.Time `json:"-"`

	SubscriptionTier      string     `gorm:"size:20;default:free" json:"subscription_tier"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
	CancelAtPeriodEnd     bool       `gorm:"default:false" json:"cancel_at_period_end"`

	EssayQuota   int        `gorm:"default:2" json:"essay_quota"`
	EssaysUsed   int        `gorm:"default:0" json:"essays_used"`
	EssayCredits int        `gorm:"default:0" json:"essay_credits"`
	CycleResetAt *time.Time `json:"cycle_reset_at,omitempty"`

	PaymentProvider        string     `gorm:"size:20" json:"payment_provider,omitempty"`
	ProviderCustomerID     *string    `gorm:"size:100" json:"-"`
	ProviderSubscriptionID *string    `gorm:"size:100;index" json:"-"`
	LastPaymentAmount      float64    `gorm:"type:decimal(10,2)" json:"last_payment_amount,omitempty"`
	LastPaymentMethod      string     `gorm:"size:20" json:"last_payment_method,omitempty"`
	LastBillingEventAt     *time.Time `json:"-"`

	// Version guards read-modify-write updates of the whole record.
	Version   int64     `gorm:"default:0" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Unlimited reports whether the user's current quota has no ceiling.
func (u *User) Unlimited() bool {
	return u.EssayQuota == QuotaUnlimited
}

// SubscriptionExpired reports whether a paid period has lapsed.
// Free accounts never carry an expiry.
func (u *User) SubscriptionExpired(now time.Time) bool {
	return u.SubscriptionExpiresAt != nil && now.After(*u.SubscriptionExpiresAt)
}
