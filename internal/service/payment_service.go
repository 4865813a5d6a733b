package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/phdwriter/essay_go_server/config"
	"github.com/phdwriter/essay_go_server/internal/model"
	"github.com/phdwriter/essay_go_server/internal/model/dto"
	"github.com/phdwriter/essay_go_server/internal/pkg/payment"
	"github.com/phdwriter/essay_go_server/internal/repository"
)

var (
	ErrUnknownTier         = errors.New("unknown subscription tier")
	ErrAlreadySubscribed   = errors.New("account already has an active subscription")
	ErrNoSubscription      = errors.New("account has no subscription to cancel")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)

// providerCallTimeout bounds every outbound provider call so a hung
// gateway cannot pin a request handler.
const providerCallTimeout = 15 * time.Second

type stripeGateway interface {
	EnsureCustomer(ctx context.Context, customerID, email, name string) (string, error)
	CreateSubscription(ctx context.Context, customerID, priceID string, userID int64, tier string) (*payment.SubscriptionResult, error)
	CreateEssayPayment(ctx context.Context, amountCents int64, wordCount int, userID int64) (string, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

type paypalGateway interface {
	CreateSubscription(ctx context.Context, planID, userID, returnURL, cancelURL string) (*payment.PayPalResult, error)
	CreateOrder(ctx context.Context, amount float64, wordCount int, userID, returnURL, cancelURL string) (*payment.PayPalResult, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

// PaymentService initiates charges and records the optimistic pending
// state. It never upgrades an account: tier changes only happen when the
// provider's webhook event is reconciled.
type PaymentService struct {
	userRepo *repository.UserRepository
	subRepo  *repository.SubscriptionRepository
	stripe   stripeGateway
	paypal   paypalGateway
	cfg      *config.Config
}

func NewPaymentService(userRepo *repository.UserRepository, subRepo *repository.SubscriptionRepository, stripe *payment.StripeClient, paypal *payment.PayPalClient, cfg *config.Config) *PaymentService {
	return &PaymentService{
		userRepo: userRepo,
		subRepo:  subRepo,
		stripe:   stripe,
		paypal:   paypal,
		cfg:      cfg,
	}
}

// Quote prices a one-time essay purchase. Uses the same table as Charge.
func (s *PaymentService) Quote(wordCount int) *dto.QuoteResponse {
	return &dto.QuoteResponse{
		WordCount: wordCount,
		Price:     PerEssayPrice(wordCount),
		Currency:  "USD",
	}
}

// Charge starts either a subscription or a one-time essay payment. The
// response carries only the continuation the client needs; provider
// secrets stay server-side.
func (s *PaymentService) Charge(ctx context.Context, userID int64, req *dto.ChargeRequest) (*dto.ChargeResponse, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, providerCallTimeout)
	defer cancel()

	switch req.Purpose {
	case "subscription":
		return s.chargeSubscription(ctx, user, req)
	case "essay":
		return s.chargeEssay(ctx, user, req)
	default:
		return nil, fmt.Errorf("unsupported charge purpose %q", req.Purpose)
	}
}

func (s *PaymentService) chargeSubscription(ctx context.Context, user *model.User, req *dto.ChargeRequest) (*dto.ChargeResponse, error) {
	tier, ok := s.cfg.Plans.Tiers[req.Tier]
	if !ok || req.Tier == model.TierFree {
		return nil, ErrUnknownTier
	}
	if user.SubscriptionTier != model.TierFree && !user.SubscriptionExpired(time.Now()) && !user.CancelAtPeriodEnd {
		return nil, ErrAlreadySubscribed
	}

	correlationID := uuid.NewString()
	resp := &dto.ChargeResponse{
		Provider:      req.Provider,
		CorrelationID: correlationID,
		Amount:        tier.MonthlyPrice,
	}

	pending := &model.Subscription{
		UserID:        user.ID,
		Tier:          req.Tier,
		Amount:        tier.MonthlyPrice,
		EssayQuota:    tier.EssayQuota,
		StartedAt:     time.Now(),
		Status:        model.SubscriptionPending,
		Provider:      req.Provider,
		CorrelationID: correlationID,
	}

	switch req.Provider {
	case payment.ProviderStripe:
		customerID, err := s.stripe.EnsureCustomer(ctx, deref(user.ProviderCustomerID), deref(user.Email), user.Username)
		if err != nil {
			return nil, err
		}
		if customerID != deref(user.ProviderCustomerID) {
			// billing metadata only, never touches tier or quota
			if err := s.userRepo.UpdateFields(user.ID, map[string]interface{}{"provider_customer_id": customerID}); err != nil {
				return nil, err
			}
		}

		result, err := s.stripe.CreateSubscription(ctx, customerID, tier.StripePriceID, user.ID, req.Tier)
		if err != nil {
			return nil, err
		}
		pending.ProviderSubID = result.SubscriptionID
		resp.ClientSecret = result.ClientSecret

	case payment.ProviderPayPal:
		result, err := s.paypal.CreateSubscription(ctx, tier.PayPalPlanID,
			strconv.FormatInt(user.ID, 10), s.cfg.PayPal.ReturnURL, s.cfg.PayPal.CancelURL)
		if err != nil {
			return nil, err
		}
		pending.ProviderSubID = result.ID
		resp.ApprovalURL = result.ApprovalURL

	default:
		return nil, ErrProviderUnavailable
	}

	if err := s.subRepo.Create(pending); err != nil {
		return nil, err
	}

	log.Info().
		Int64("user_id", user.ID).
		Str("tier", req.Tier).
		Str("provider", req.Provider).
		Str("correlation_id", correlationID).
		Msg("subscription charge initiated")
	return resp, nil
}

func (s *PaymentService) chargeEssay(ctx context.Context, user *model.User, req *dto.ChargeRequest) (*dto.ChargeResponse, error) {
	if req.WordCount < s.cfg.Essay.MinWordCount || req.WordCount > s.cfg.Essay.MaxWordCount {
		return nil, fmt.Errorf("word count %d outside allowed range", req.WordCount)
	}

	price := PerEssayPrice(req.WordCount)
	resp := &dto.ChargeResponse{
		Provider:      req.Provider,
		CorrelationID: uuid.NewString(),
		Amount:        price,
	}

	switch req.Provider {
	case payment.ProviderStripe:
		secret, err := s.stripe.CreateEssayPayment(ctx, PerEssayPriceCents(req.WordCount), req.WordCount, user.ID)
		if err != nil {
			return nil, err
		}
		resp.ClientSecret = secret

	case payment.ProviderPayPal:
		result, err := s.paypal.CreateOrder(ctx, price, req.WordCount,
			strconv.FormatInt(user.ID, 10), s.cfg.PayPal.ReturnURL, s.cfg.PayPal.CancelURL)
		if err != nil {
			return nil, err
		}
		resp.ApprovalURL = result.ApprovalURL

	default:
		return nil, ErrProviderUnavailable
	}

	log.Info().
		Int64("user_id", user.ID).
		Int("word_count", req.WordCount).
		Float64("amount", price).
		Str("provider", req.Provider).
		Msg("essay charge initiated")
	return resp, nil
}

// Cancel asks the provider to stop renewing. Access continues until the
// period ends; the authoritative downgrade arrives through the webhook.
// Cancelling an already-cancelled subscription succeeds.
func (s *PaymentService) Cancel(ctx context.Context, userID int64) (*dto.CancelSubscriptionResponse, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}

	if user.ProviderSubscriptionID == nil {
		if user.SubscriptionTier == model.TierFree {
			return nil, ErrNoSubscription
		}
		// already cancelled at the provider, nothing left to do
		return &dto.CancelSubscriptionResponse{
			Cancelled: true,
			Tier:      user.SubscriptionTier,
			Note:      "subscription already cancelled",
		}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, providerCallTimeout)
	defer cancel()

	subID := *user.ProviderSubscriptionID
	switch user.PaymentProvider {
	case payment.ProviderStripe:
		err = s.stripe.CancelSubscription(ctx, subID)
	case payment.ProviderPayPal:
		err = s.paypal.CancelSubscription(ctx, subID)
	default:
		return nil, ErrProviderUnavailable
	}
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.UpdateFields(userID, map[string]interface{}{"cancel_at_period_end": true}); err != nil {
		return nil, err
	}
	if sub, err := s.subRepo.GetByProviderSubID(subID); err == nil {
		_ = s.subRepo.MarkCancelled(sub.ID, time.Now())
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warn().Err(err).Str("provider_sub_id", subID).Msg("failed to look up subscription row on cancel")
	}

	log.Info().Int64("user_id", userID).Str("tier", user.SubscriptionTier).Msg("subscription cancelled")
	return &dto.CancelSubscriptionResponse{
		Cancelled: true,
		Tier:      user.SubscriptionTier,
		Note:      "access continues until the end of the current billing period",
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
