package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/phdwriter/essay_go_server/config"
	"github.com/phdwriter/essay_go_server/internal/model"
	"github.com/phdwriter/essay_go_server/internal/pkg/email"
	"github.com/phdwriter/essay_go_server/internal/pkg/lock"
	"github.com/phdwriter/essay_go_server/internal/pkg/payment"
	"github.com/phdwriter/essay_go_server/internal/pkg/pubsub"
	"github.com/phdwriter/essay_go_server/internal/pkg/queue"
	"github.com/phdwriter/essay_go_server/internal/repository"
	"github.com/phdwriter/essay_go_server/internal/testutil"
)

type reconcileFixture struct {
	svc       *ReconcileService
	userRepo  *repository.UserRepository
	subRepo   *repository.SubscriptionRepository
	eventRepo *repository.PaymentEventRepository
	locks     *lock.AccountLock
	db        *gorm.DB
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	db := testutil.SetupTestDB(t)
	redisClient := testutil.SetupTestRedis(t)

	userRepo := repository.NewUserRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	eventRepo := repository.NewPaymentEventRepository(db)
	locks := lock.NewAccountLock(redisClient, 5*time.Second)

	svc := NewReconcileService(
		userRepo,
		subRepo,
		eventRepo,
		pubsub.NewPublisher(redisClient),
		email.NewService(&config.EmailConfig{}),
		locks,
		testutil.TestConfig(),
	)
	return &reconcileFixture{svc: svc, userRepo: userRepo, subRepo: subRepo, eventRepo: eventRepo, locks: locks, db: db}
}

func stripeSubEvent(eventID, subID string, userID int64, tier, status string, at time.Time) *queue.EventMessage {
	payload, _ := json.Marshal(map[string]interface{}{
		"id":     subID,
		"status": status,
		"metadata": map[string]string{
			"tier":    tier,
			"user_id": fmt.Sprintf("%d", userID),
		},
	})
	return &queue.EventMessage{
		EventID:    eventID,
		Provider:   payment.ProviderStripe,
		Type:       "customer.subscription.updated",
		OccurredAt: at,
		Payload:    payload,
	}
}

func TestApplyActivatesSubscription(t *testing.T) {
	f := newReconcileFixture(t)
	user := testutil.CreateTestUser(t, f.db)

	require.NoError(t, f.subRepo.Create(&model.Subscription{
		UserID:        user.ID,
		Tier:          model.TierEssentials,
		Status:        model.SubscriptionPending,
		Provider:      payment.ProviderStripe,
		ProviderSubID: "sub_abc",
		CorrelationID: "corr-1",
		StartedAt:     time.Now(),
	}))

	at := time.Now().Truncate(time.Second)
	msg := stripeSubEvent("evt_1", "sub_abc", user.ID, model.TierEssentials, "active", at)
	require.NoError(t, f.svc.Apply(context.Background(), msg))

	fresh, err := f.userRepo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TierEssentials, fresh.SubscriptionTier)
	assert.Equal(t, 5, fresh.EssayQuota)
	require.NotNil(t, fresh.SubscriptionExpiresAt)
	require.NotNil(t, fresh.LastBillingEventAt)

	sub, err := f.subRepo.GetByProviderSubID("sub_abc")
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionActive, sub.Status)

	row, err := f.eventRepo.GetByEventID("evt_1")
	require.NoError(t, err)
	assert.Equal(t, model.EventProcessed, row.Status)
	assert.Equal(t, user.ID, row.UserID)
}

func TestApplyDuplicateDeliveryIsNoop(t *testing.T) {
	f := newReconcileFixture(t)
	user := testutil.CreateTestUser(t, f.db)

	payload, _ := json.Marshal(map[string]interface{}{
		"id":     "pi_1",
		"amount": 3999,
		"metadata": map[string]string{
			"type":    "essay_payment",
			"user_id": fmt.Sprintf("%d", user.ID),
		},
	})
	msg := &queue.EventMessage{
		EventID:    "evt_dup",
		Provider:   payment.ProviderStripe,
		Type:       "payment_intent.succeeded",
		OccurredAt: time.Now(),
		Payload:    payload,
	}

	require.NoError(t, f.svc.Apply(context.Background(), msg))
	require.NoError(t, f.svc.Apply(context.Background(), msg))
	require.NoError(t, f.svc.Apply(context.Background(), msg))

	fresh, err := f.userRepo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.EssayCredits, "retried delivery must grant exactly one credit")
	assert.Equal(t, 39.99, fresh.LastPaymentAmount)
}

func TestApplyResumesAfterTransientFailure(t *testing.T) {
	f := newReconcileFixture(t)
	user := testutil.CreateTestUser(t, f.db)

	msg := stripeSubEvent("evt_retry", "sub_retry", user.ID, model.TierEssentials, "active", time.Now())

	// Hold the account lock so the first attempt fails after the event row
	// was inserted.
	release, err := f.locks.Acquire(context.Background(), user.ID)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	err = f.svc.Apply(short, msg)
	cancel()
	require.Error(t, err)

	row, err := f.eventRepo.GetByEventID("evt_retry")
	require.NoError(t, err)
	assert.Equal(t, model.EventFailed, row.Status)

	// The retry must pick the failed row back up, not treat the delivery as
	// an already applied duplicate.
	release()
	require.NoError(t, f.svc.Apply(context.Background(), msg))

	fresh, err := f.userRepo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TierEssentials, fresh.SubscriptionTier)

	row, err = f.eventRepo.GetByEventID("evt_retry")
	require.NoError(t, err)
	assert.Equal(t, model.EventProcessed, row.Status)
}

func TestApplyOutOfOrderEventSkipped(t *testing.T) {
	f := newReconcileFixture(t)

	lastApplied := time.Now()
	user := testutil.CreateTestUser(t, f.db,
		testutil.WithTier(model.TierEssentials, 5),
		testutil.WithProviderSub(payment.ProviderStripe, "sub_late"),
		testutil.WithLastBillingEvent(lastApplied),
	)

	// a delayed activation from before the last applied event must not win
	stale := stripeSubEvent("evt_stale", "sub_late", user.ID, model.TierPro, "active", lastApplied.Add(-time.Hour))
	require.NoError(t, f.svc.Apply(context.Background(), stale))

	fresh, err := f.userRepo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TierEssentials, fresh.SubscriptionTier, "stale event must not change tier")

	row, err := f.eventRepo.GetByEventID("evt_stale")
	require.NoError(t, err)
	assert.Equal(t, model.EventSkipped, row.Status)
}

func TestApplyPayPalCancellationDowngrades(t *testing.T) {
	f := newReconcileFixture(t)
	user := testutil.CreateTestUser(t, f.db,
		testutil.WithTier(model.TierPro, model.QuotaUnlimited),
		testutil.WithProviderSub(payment.ProviderPayPal, "I-SUB1"),
	)

	payload, _ := json.Marshal(map[string]interface{}{"id": "I-SUB1"})
	msg := &queue.EventMessage{
		EventID:    "wh_cancel",
		Provider:   payment.ProviderPayPal,
		Type:       "BILLING.SUBSCRIPTION.CANCELLED",
		OccurredAt: time.Now(),
		Payload:    payload,
	}
	require.NoError(t, f.svc.Apply(context.Background(), msg))

	fresh, err := f.userRepo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TierFree, fresh.SubscriptionTier)
	assert.Equal(t, 2, fresh.EssayQuota)
	assert.Nil(t, fresh.ProviderSubscriptionID)
}

func TestApplyPayPalActivation(t *testing.T) {
	f := newReconcileFixture(t)
	user := testutil.CreateTestUser(t, f.db)

	payload, _ := json.Marshal(map[string]interface{}{
		"id":        "I-NEW",
		"custom_id": fmt.Sprintf("%d", user.ID),
		"plan_id":   "P-PRO",
	})
	msg := &queue.EventMessage{
		EventID:    "wh_activate",
		Provider:   payment.ProviderPayPal,
		Type:       "BILLING.SUBSCRIPTION.ACTIVATED",
		OccurredAt: time.Now(),
		Payload:    payload,
	}
	require.NoError(t, f.svc.Apply(context.Background(), msg))

	fresh, err := f.userRepo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TierPro, fresh.SubscriptionTier)
	assert.Equal(t, model.QuotaUnlimited, fresh.EssayQuota)
	assert.Equal(t, payment.ProviderPayPal, fresh.PaymentProvider)
}

func TestApplyUnknownEventTypeSkipped(t *testing.T) {
	f := newReconcileFixture(t)

	msg := &queue.EventMessage{
		EventID:    "evt_unknown",
		Provider:   payment.ProviderStripe,
		Type:       "charge.refunded",
		OccurredAt: time.Now(),
		Payload:    json.RawMessage(`{"id":"ch_1"}`),
	}
	require.NoError(t, f.svc.Apply(context.Background(), msg))

	row, err := f.eventRepo.GetByEventID("evt_unknown")
	require.NoError(t, err)
	assert.Equal(t, model.EventSkipped, row.Status)
}

func TestApplyUnroutableEventSkipped(t *testing.T) {
	f := newReconcileFixture(t)

	payload, _ := json.Marshal(map[string]interface{}{"id": "sub_ghost"})
	msg := &queue.EventMessage{
		EventID:    "evt_ghost",
		Provider:   payment.ProviderStripe,
		Type:       "customer.subscription.deleted",
		OccurredAt: time.Now(),
		Payload:    payload,
	}
	require.NoError(t, f.svc.Apply(context.Background(), msg))

	row, err := f.eventRepo.GetByEventID("evt_ghost")
	require.NoError(t, err)
	assert.Equal(t, model.EventSkipped, row.Status)
}

func TestCancelThenResubscribeRoundTrip(t *testing.T) {
	f := newReconcileFixture(t)
	user := testutil.CreateTestUser(t, f.db,
		testutil.WithTier(model.TierEssentials, 5),
		testutil.WithProviderSub(payment.ProviderStripe, "sub_old"),
	)

	t0 := time.Now().Add(-time.Minute)
	cancel := &queue.EventMessage{
		EventID:    "evt_c",
		Provider:   payment.ProviderStripe,
		Type:       "customer.subscription.deleted",
		OccurredAt: t0,
		Payload:    json.RawMessage(`{"id":"sub_old"}`),
	}
	require.NoError(t, f.svc.Apply(context.Background(), cancel))

	fresh, _ := f.userRepo.GetByID(user.ID)
	require.Equal(t, model.TierFree, fresh.SubscriptionTier)

	reactivate := stripeSubEvent("evt_r", "sub_new", user.ID, model.TierEssentials, "active", t0.Add(30*time.Second))
	require.NoError(t, f.svc.Apply(context.Background(), reactivate))

	fresh, _ = f.userRepo.GetByID(user.ID)
	assert.Equal(t, model.TierEssentials, fresh.SubscriptionTier)
	assert.Equal(t, 5, fresh.EssayQuota)
	require.NotNil(t, fresh.ProviderSubscriptionID)
	assert.Equal(t, "sub_new", *fresh.ProviderSubscriptionID)
}
