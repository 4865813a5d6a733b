package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/phdwriter/essay_go_server/config"
	"github.com/phdwriter/essay_go_server/internal/model"
	"github.com/phdwriter/essay_go_server/internal/pkg/email"
	"github.com/phdwriter/essay_go_server/internal/pkg/lock"
	"github.com/phdwriter/essay_go_server/internal/pkg/payment"
	"github.com/phdwriter/essay_go_server/internal/pkg/pubsub"
	"github.com/phdwriter/essay_go_server/internal/pkg/queue"
	"github.com/phdwriter/essay_go_server/internal/repository"
)

// Transition actions derived from provider events.
const (
	actionActivate      = "activate"
	actionDowngrade     = "downgrade"
	actionGrantCredit   = "grant_credit"
	actionPaymentFailed = "payment_failed"
	actionIgnore        = "ignore"
)

type transition struct {
	action        string
	prov          string
	userID        int64
	providerSubID string
	tier          string
	amount        float64
	reason        string // set when action == actionIgnore
}

// ReconcileService applies verified webhook events to accounts. It is the
// only code path that changes subscription tier or grants credits, so every
// billing invariant is enforced here: duplicate deliveries are dropped,
// out-of-order deliveries are skipped, and each account is processed under
// a distributed lock.
type ReconcileService struct {
	userRepo  *repository.UserRepository
	subRepo   *repository.SubscriptionRepository
	eventRepo *repository.PaymentEventRepository
	publisher *pubsub.Publisher
	emailSvc  *email.Service
	locks     *lock.AccountLock
	cfg       *config.Config
}

func NewReconcileService(
	userRepo *repository.UserRepository,
	subRepo *repository.SubscriptionRepository,
	eventRepo *repository.PaymentEventRepository,
	publisher *pubsub.Publisher,
	emailSvc *email.Service,
	locks *lock.AccountLock,
	cfg *config.Config,
) *ReconcileService {
	return &ReconcileService{
		userRepo:  userRepo,
		subRepo:   subRepo,
		eventRepo: eventRepo,
		publisher: publisher,
		emailSvc:  emailSvc,
		locks:     locks,
		cfg:       cfg,
	}
}

// Apply processes one queued event end to end. Returning nil means the
// event is settled (applied, skipped or duplicate); an error means the
// caller may retry.
func (s *ReconcileService) Apply(ctx context.Context, msg *queue.EventMessage) error {
	row := &model.PaymentEvent{
		EventID:    msg.EventID,
		Provider:   msg.Provider,
		Type:       msg.Type,
		Payload:    string(msg.Payload),
		Status:     model.EventReceived,
		OccurredAt: msg.OccurredAt,
	}
	if err := s.eventRepo.Create(row); err != nil {
		if !errors.Is(err, repository.ErrDuplicateEvent) {
			return err
		}
		// The row may belong to an attempt that never settled (lock held,
		// transient DB failure). Only a processed or skipped row means the
		// event is done; anything else is resumed against the existing row.
		existing, getErr := s.eventRepo.GetByEventID(msg.EventID)
		if getErr != nil {
			return getErr
		}
		if existing.Status == model.EventProcessed || existing.Status == model.EventSkipped {
			log.Debug().Str("event_id", msg.EventID).Msg("duplicate webhook delivery dropped")
			return nil
		}
		log.Info().Str("event_id", msg.EventID).Str("status", existing.Status).Msg("resuming unsettled billing event")
		row = existing
	}

	tr, err := s.normalize(msg)
	if err != nil {
		_ = s.eventRepo.MarkFailed(row.ID, err.Error())
		return err
	}
	if tr.action == actionIgnore {
		return s.eventRepo.MarkSkipped(row.ID, tr.reason)
	}

	userID, err := s.resolveUser(tr)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.eventRepo.MarkSkipped(row.ID, "no matching account")
		}
		_ = s.eventRepo.MarkFailed(row.ID, err.Error())
		return err
	}

	release, err := s.locks.Acquire(ctx, userID)
	if err != nil {
		_ = s.eventRepo.MarkFailed(row.ID, "account lock not acquired")
		return err
	}
	defer release()

	if err := s.applyTransition(ctx, row, tr, userID, msg.OccurredAt); err != nil {
		_ = s.eventRepo.MarkFailed(row.ID, err.Error())
		return err
	}
	return nil
}

func (s *ReconcileService) applyTransition(ctx context.Context, row *model.PaymentEvent, tr *transition, userID int64, occurredAt time.Time) error {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return err
	}

	// Tier transitions must not run backwards: a delayed activation must
	// not overwrite a later cancellation. Credit grants are additive and
	// always safe to apply.
	stateChange := tr.action == actionActivate || tr.action == actionDowngrade
	if stateChange && user.LastBillingEventAt != nil && occurredAt.Before(*user.LastBillingEventAt) {
		log.Warn().
			Str("event_id", row.EventID).
			Time("occurred_at", occurredAt).
			Time("last_applied", *user.LastBillingEventAt).
			Msg("out-of-order billing event skipped")
		return s.eventRepo.MarkSkipped(row.ID, "older than last applied event")
	}

	update := &pubsub.BillingMessage{UserID: userID, EventID: row.EventID}

	switch tr.action {
	case actionActivate:
		quota := s.cfg.TierQuota(tr.tier)
		expiresAt := occurredAt.AddDate(0, 1, 0)
		subID := tr.providerSubID
		if err := s.userRepo.SetSubscription(userID, tr.tier, quota, &expiresAt, tr.provider(), &subID, occurredAt); err != nil {
			return err
		}
		if tr.amount > 0 {
			_ = s.userRepo.UpdateFields(userID, map[string]interface{}{
				"last_payment_amount": tr.amount,
				"last_payment_method": tr.provider(),
			})
		}
		if sub, err := s.subRepo.GetByProviderSubID(tr.providerSubID); err == nil {
			_ = s.subRepo.Activate(sub.ID, tr.providerSubID, expiresAt)
		}
		update.State = "confirmed"
		update.Tier = tr.tier
		log.Info().Int64("user_id", userID).Str("tier", tr.tier).Str("event_id", row.EventID).Msg("subscription activated")

	case actionDowngrade:
		if err := s.userRepo.ClearSubscription(userID, s.cfg.FreeQuota(), occurredAt); err != nil {
			return err
		}
		if tr.providerSubID != "" {
			if sub, err := s.subRepo.GetByProviderSubID(tr.providerSubID); err == nil {
				_ = s.subRepo.MarkCancelled(sub.ID, occurredAt)
			}
		}
		update.State = "cancelled"
		update.Tier = model.TierFree
		log.Info().Int64("user_id", userID).Str("event_id", row.EventID).Msg("subscription ended, account downgraded")

	case actionGrantCredit:
		if err := s.userRepo.GrantCredit(userID); err != nil {
			return err
		}
		if tr.amount > 0 {
			_ = s.userRepo.UpdateFields(userID, map[string]interface{}{
				"last_payment_amount": tr.amount,
				"last_payment_method": tr.provider(),
			})
		}
		update.State = "confirmed"
		if fresh, err := s.userRepo.GetByID(userID); err == nil {
			update.Credits = fresh.EssayCredits
		}
		log.Info().Int64("user_id", userID).Str("event_id", row.EventID).Msg("essay credit granted")

	case actionPaymentFailed:
		update.State = "failed"
		update.Tier = user.SubscriptionTier
		if user.Email != nil {
			if err := s.emailSvc.SendPaymentFailed(*user.Email, user.SubscriptionTier); err != nil {
				log.Warn().Err(err).Int64("user_id", userID).Msg("failed to send payment-failed email")
			}
		}
		log.Warn().Int64("user_id", userID).Str("event_id", row.EventID).Msg("renewal payment failed")
	}

	if err := s.publisher.PublishBillingUpdate(ctx, update); err != nil {
		// the account state is already correct; the UI will catch up on reload
		log.Warn().Err(err).Int64("user_id", userID).Msg("failed to publish billing update")
	}

	return s.eventRepo.MarkProcessed(row.ID, userID)
}

func (s *ReconcileService) resolveUser(tr *transition) (int64, error) {
	if tr.userID > 0 {
		return tr.userID, nil
	}
	if tr.providerSubID != "" {
		if user, err := s.userRepo.GetByProviderSubscriptionID(tr.providerSubID); err == nil {
			return user.ID, nil
		}
		if sub, err := s.subRepo.GetByProviderSubID(tr.providerSubID); err == nil {
			return sub.UserID, nil
		}
	}
	return 0, gorm.ErrRecordNotFound
}

func (tr *transition) provider() string {
	return tr.prov
}

// normalize maps a provider event to a tier transition.
func (s *ReconcileService) normalize(msg *queue.EventMessage) (*transition, error) {
	switch msg.Provider {
	case payment.ProviderStripe:
		return s.normalizeStripe(msg)
	case payment.ProviderPayPal:
		return s.normalizePayPal(msg)
	default:
		return nil, fmt.Errorf("unknown provider %q", msg.Provider)
	}
}

type stripeObject struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Customer string            `json:"customer"`
	Amount   int64             `json:"amount"`
	Metadata map[string]string `json:"metadata"`
	Parent   *struct {
		SubscriptionDetails *struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (s *ReconcileService) normalizeStripe(msg *queue.EventMessage) (*transition, error) {
	var obj stripeObject
	if err := json.Unmarshal(msg.Payload, &obj); err != nil {
		return nil, fmt.Errorf("failed to parse stripe payload: %w", err)
	}

	tr := &transition{prov: payment.ProviderStripe}
	if id := obj.Metadata["user_id"]; id != "" {
		tr.userID, _ = strconv.ParseInt(id, 10, 64)
	}

	switch msg.Type {
	case "payment_intent.succeeded":
		if obj.Metadata["type"] != "essay_payment" {
			tr.action = actionIgnore
			tr.reason = "payment intent is not an essay purchase"
			return tr, nil
		}
		tr.action = actionGrantCredit
		tr.amount = float64(obj.Amount) / 100

	case "customer.subscription.created", "customer.subscription.updated":
		if obj.Status != "active" {
			tr.action = actionIgnore
			tr.reason = "subscription not active yet: " + obj.Status
			return tr, nil
		}
		tier := obj.Metadata["tier"]
		if _, ok := s.cfg.Plans.Tiers[tier]; !ok {
			return nil, fmt.Errorf("stripe subscription %s carries unknown tier %q", obj.ID, tier)
		}
		tr.action = actionActivate
		tr.tier = tier
		tr.providerSubID = obj.ID
		tr.amount = s.cfg.Plans.Tiers[tier].MonthlyPrice

	case "customer.subscription.deleted":
		tr.action = actionDowngrade
		tr.providerSubID = obj.ID

	case "invoice.payment_failed":
		tr.action = actionPaymentFailed
		if obj.Parent != nil && obj.Parent.SubscriptionDetails != nil {
			tr.providerSubID = obj.Parent.SubscriptionDetails.Subscription
		}

	default:
		tr.action = actionIgnore
		tr.reason = "unhandled stripe event type " + msg.Type
	}
	return tr, nil
}

type paypalResource struct {
	ID       string `json:"id"`
	CustomID string `json:"custom_id"`
	PlanID   string `json:"plan_id"`
	Amount   *struct {
		Value string `json:"value"`
	} `json:"amount"`
}

func (s *ReconcileService) normalizePayPal(msg *queue.EventMessage) (*transition, error) {
	var res paypalResource
	if err := json.Unmarshal(msg.Payload, &res); err != nil {
		return nil, fmt.Errorf("failed to parse paypal payload: %w", err)
	}

	tr := &transition{prov: payment.ProviderPayPal}
	if res.CustomID != "" {
		tr.userID, _ = strconv.ParseInt(res.CustomID, 10, 64)
	}

	switch msg.Type {
	case "PAYMENT.CAPTURE.COMPLETED":
		tr.action = actionGrantCredit
		if res.Amount != nil {
			tr.amount, _ = strconv.ParseFloat(res.Amount.Value, 64)
		}

	case "BILLING.SUBSCRIPTION.ACTIVATED":
		tier := s.tierForPayPalPlan(res.PlanID)
		if tier == "" {
			return nil, fmt.Errorf("paypal subscription %s carries unknown plan %q", res.ID, res.PlanID)
		}
		tr.action = actionActivate
		tr.tier = tier
		tr.providerSubID = res.ID
		tr.amount = s.cfg.Plans.Tiers[tier].MonthlyPrice

	case "BILLING.SUBSCRIPTION.CANCELLED", "BILLING.SUBSCRIPTION.EXPIRED", "BILLING.SUBSCRIPTION.SUSPENDED":
		tr.action = actionDowngrade
		tr.providerSubID = res.ID

	case "BILLING.SUBSCRIPTION.PAYMENT.FAILED":
		tr.action = actionPaymentFailed
		tr.providerSubID = res.ID

	default:
		tr.action = actionIgnore
		tr.reason = "unhandled paypal event type " + msg.Type
	}
	return tr, nil
}

func (s *ReconcileService) tierForPayPalPlan(planID string) string {
	for name, tier := range s.cfg.Plans.Tiers {
		if tier.PayPalPlanID != "" && tier.PayPalPlanID == planID {
			return name
		}
	}
	return ""
}
