package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/phdwriter/essay_go_server/config"
	"github.com/phdwriter/essay_go_server/internal/model"
)

// SetupTestDB opens a fresh in-memory sqlite database with the full schema.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Subscription{},
		&model.PaymentEvent{},
		&model.Essay{},
	))
	return db
}

// SetupTestRedis starts an embedded redis and returns a connected client.
func SetupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

// TestConfig returns a config with the default plan table.
func TestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Mode: "test"},
		JWT:    config.JWTConfig{Secret: "test-secret", ExpireHours: 24},
		Essay:  config.EssayConfig{MinWordCount: 500, MaxWordCount: 10000},
		Queue:  config.QueueConfig{WebhookQueue: "webhook_events", MaxWorkers: 1},
		Plans: config.PlansConfig{
			Tiers: map[string]config.PlanTier{
				"free":       {EssayQuota: 2},
				"essentials": {EssayQuota: 5, MonthlyPrice: 29.99, AnnualPrice: 299.99, StripePriceID: "price_ess", PayPalPlanID: "P-ESS"},
				"pro":        {EssayQuota: -1, MonthlyPrice: 49.99, AnnualPrice: 499.99, StripePriceID: "price_pro", PayPalPlanID: "P-PRO"},
			},
		},
	}
}

// UserOption mutates a test user before insertion.
type UserOption func(*model.User)

func WithTier(tier string, quota int) UserOption {
	return func(u *model.User) {
		u.SubscriptionTier = tier
		u.EssayQuota = quota
	}
}

func WithUsage(used int) UserOption {
	return func(u *model.User) { u.EssaysUsed = used }
}

func WithCredits(credits int) UserOption {
	return func(u *model.User) { u.EssayCredits = credits }
}

func WithExpiry(at time.Time) UserOption {
	return func(u *model.User) { u.SubscriptionExpiresAt = &at }
}

func WithProviderSub(provider, subID string) UserOption {
	return func(u *model.User) {
		u.PaymentProvider = provider
		u.ProviderSubscriptionID = &subID
	}
}

func WithLastBillingEvent(at time.Time) UserOption {
	return func(u *model.User) { u.LastBillingEventAt = &at }
}

var userSeq int

// CreateTestUser inserts a verified free-tier user and returns it.
func CreateTestUser(t *testing.T, db *gorm.DB, opts ...UserOption) *model.User {
	t.Helper()

	userSeq++
	email := fmt.Sprintf("user%d@example.com", userSeq)
	hash := "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy" // "password"
	user := &model.User{
		Username:         fmt.Sprintf("user%d", userSeq),
		Email:            &email,
		PasswordHash:     &hash,
		EmailVerified:    true,
		SubscriptionTier: model.TierFree,
		EssayQuota:       2,
	}
	for _, opt := range opts {
		opt(user)
	}
	require.NoError(t, db.Create(user).Error)
	return user
}
