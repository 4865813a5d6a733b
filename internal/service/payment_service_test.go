package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phdwriter/essay_go_server/internal/model"
	"github.com/phdwriter/essay_go_server/internal/model/dto"
	"github.com/phdwriter/essay_go_server/internal/pkg/payment"
	"github.com/phdwriter/essay_go_server/internal/repository"
	"github.com/phdwriter/essay_go_server/internal/testutil"
)

type stubStripe struct {
	cancelCalls []string
	failWith    error
}

func (s *stubStripe) EnsureCustomer(ctx context.Context, customerID, email, name string) (string, error) {
	if s.failWith != nil {
		return "", s.failWith
	}
	if customerID != "" {
		return customerID, nil
	}
	return "cus_test", nil
}

func (s *stubStripe) CreateSubscription(ctx context.Context, customerID, priceID string, userID int64, tier string) (*payment.SubscriptionResult, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	return &payment.SubscriptionResult{
		SubscriptionID: "sub_test",
		CustomerID:     customerID,
		ClientSecret:   "pi_secret_test",
	}, nil
}

func (s *stubStripe) CreateEssayPayment(ctx context.Context, amountCents int64, wordCount int, userID int64) (string, error) {
	if s.failWith != nil {
		return "", s.failWith
	}
	return "pi_essay_secret", nil
}

func (s *stubStripe) CancelSubscription(ctx context.Context, subscriptionID string) error {
	s.cancelCalls = append(s.cancelCalls, subscriptionID)
	return s.failWith
}

type stubPayPal struct{}

func (s *stubPayPal) CreateSubscription(ctx context.Context, planID, userID, returnURL, cancelURL string) (*payment.PayPalResult, error) {
	return &payment.PayPalResult{ID: "I-TEST", ApprovalURL: "https://paypal.example/approve/I-TEST"}, nil
}

func (s *stubPayPal) CreateOrder(ctx context.Context, amount float64, wordCount int, userID, returnURL, cancelURL string) (*payment.PayPalResult, error) {
	return &payment.PayPalResult{ID: "ORDER-1", ApprovalURL: "https://paypal.example/approve/ORDER-1"}, nil
}

func (s *stubPayPal) CancelSubscription(ctx context.Context, subscriptionID string) error {
	return nil
}

func TestChargeSubscriptionStripe(t *testing.T) {
	db := testutil.SetupTestDB(t)
	userRepo := repository.NewUserRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	svc := &PaymentService{
		userRepo: userRepo, subRepo: subRepo,
		stripe: &stubStripe{}, paypal: &stubPayPal{},
		cfg: testutil.TestConfig(),
	}
	user := testutil.CreateTestUser(t, db)

	resp, err := svc.Charge(context.Background(), user.ID, &dto.ChargeRequest{
		Purpose:  "subscription",
		Provider: "stripe",
		Tier:     model.TierEssentials,
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_secret_test", resp.ClientSecret)
	assert.Empty(t, resp.ApprovalURL)
	assert.Equal(t, 29.99, resp.Amount)
	require.NotEmpty(t, resp.CorrelationID)

	// a pending row exists; the tier itself is untouched until reconcile
	sub, err := subRepo.GetByCorrelationID(resp.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionPending, sub.Status)
	assert.Equal(t, "sub_test", sub.ProviderSubID)

	fresh, err := userRepo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TierFree, fresh.SubscriptionTier, "charge must not upgrade the account")
	require.NotNil(t, fresh.ProviderCustomerID)
	assert.Equal(t, "cus_test", *fresh.ProviderCustomerID)
}

func TestChargeSubscriptionPayPal(t *testing.T) {
	db := testutil.SetupTestDB(t)
	userRepo := repository.NewUserRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	svc := &PaymentService{
		userRepo: userRepo, subRepo: subRepo,
		stripe: &stubStripe{}, paypal: &stubPayPal{},
		cfg: testutil.TestConfig(),
	}
	user := testutil.CreateTestUser(t, db)

	resp, err := svc.Charge(context.Background(), user.ID, &dto.ChargeRequest{
		Purpose:  "subscription",
		Provider: "paypal",
		Tier:     model.TierPro,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.ClientSecret)
	assert.Equal(t, "https://paypal.example/approve/I-TEST", resp.ApprovalURL)
	assert.Equal(t, 49.99, resp.Amount)
}

func TestChargeEssayUsesCanonicalPrice(t *testing.T) {
	db := testutil.SetupTestDB(t)
	userRepo := repository.NewUserRepository(db)
	svc := &PaymentService{
		userRepo: userRepo, subRepo: repository.NewSubscriptionRepository(db),
		stripe: &stubStripe{}, paypal: &stubPayPal{},
		cfg: testutil.TestConfig(),
	}
	user := testutil.CreateTestUser(t, db)

	resp, err := svc.Charge(context.Background(), user.ID, &dto.ChargeRequest{
		Purpose:   "essay",
		Provider:  "stripe",
		WordCount: 4000,
	})
	require.NoError(t, err)
	assert.Equal(t, 39.99, resp.Amount, "charge amount must match the quote table")
	assert.Equal(t, "pi_essay_secret", resp.ClientSecret)
}

func TestChargeUnknownTierRejected(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := &PaymentService{
		userRepo: repository.NewUserRepository(db),
		subRepo:  repository.NewSubscriptionRepository(db),
		stripe:   &stubStripe{}, paypal: &stubPayPal{},
		cfg: testutil.TestConfig(),
	}
	user := testutil.CreateTestUser(t, db)

	_, err := svc.Charge(context.Background(), user.ID, &dto.ChargeRequest{
		Purpose: "subscription", Provider: "stripe", Tier: "platinum",
	})
	require.ErrorIs(t, err, ErrUnknownTier)

	// buying the free tier makes no sense either
	_, err = svc.Charge(context.Background(), user.ID, &dto.ChargeRequest{
		Purpose: "subscription", Provider: "stripe", Tier: model.TierFree,
	})
	require.ErrorIs(t, err, ErrUnknownTier)
}

func TestChargeProviderFailureLeavesNoState(t *testing.T) {
	db := testutil.SetupTestDB(t)
	subRepo := repository.NewSubscriptionRepository(db)
	svc := &PaymentService{
		userRepo: repository.NewUserRepository(db),
		subRepo:  subRepo,
		stripe: &stubStripe{failWith: &payment.ProviderError{
			Provider: "stripe", Kind: payment.KindTimeout, Message: "deadline exceeded",
		}},
		paypal: &stubPayPal{},
		cfg:    testutil.TestConfig(),
	}
	user := testutil.CreateTestUser(t, db)

	_, err := svc.Charge(context.Background(), user.ID, &dto.ChargeRequest{
		Purpose: "subscription", Provider: "stripe", Tier: model.TierEssentials,
	})
	require.Error(t, err)
	assert.True(t, payment.IsTimeout(err))

	_, err = subRepo.LatestForUser(user.ID)
	require.Error(t, err, "no pending row may exist after a failed charge")
}

func TestCancelSubscription(t *testing.T) {
	db := testutil.SetupTestDB(t)
	userRepo := repository.NewUserRepository(db)
	stripe := &stubStripe{}
	svc := &PaymentService{
		userRepo: userRepo,
		subRepo:  repository.NewSubscriptionRepository(db),
		stripe:   stripe, paypal: &stubPayPal{},
		cfg: testutil.TestConfig(),
	}

	future := time.Now().Add(20 * 24 * time.Hour)
	user := testutil.CreateTestUser(t, db,
		testutil.WithTier(model.TierPro, model.QuotaUnlimited),
		testutil.WithExpiry(future),
		testutil.WithProviderSub("stripe", "sub_live"),
	)

	resp, err := svc.Cancel(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, resp.Cancelled)
	assert.Equal(t, []string{"sub_live"}, stripe.cancelCalls)

	// access is kept until period end; only the renewal flag flips
	fresh, err := userRepo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TierPro, fresh.SubscriptionTier)
	assert.True(t, fresh.CancelAtPeriodEnd)
}

func TestCancelWithoutSubscription(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := &PaymentService{
		userRepo: repository.NewUserRepository(db),
		subRepo:  repository.NewSubscriptionRepository(db),
		stripe:   &stubStripe{}, paypal: &stubPayPal{},
		cfg: testutil.TestConfig(),
	}
	user := testutil.CreateTestUser(t, db)

	_, err := svc.Cancel(context.Background(), user.ID)
	require.ErrorIs(t, err, ErrNoSubscription)
}

func TestQuoteMatchesPriceTable(t *testing.T) {
	svc := &PaymentService{cfg: testutil.TestConfig()}
	q := svc.Quote(4000)
	assert.Equal(t, 39.99, q.Price)
	assert.Equal(t, "USD", q.Currency)
}
