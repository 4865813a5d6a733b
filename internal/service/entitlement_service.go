package service

import (
	"errors"
	"time"

	"github.com/phdwriter/essay_go_server/config"
	"github.com/phdwriter/essay_go_server/internal/model"
	"github.com/phdwriter/essay_go_server/internal/model/dto"
	"github.com/phdwriter/essay_go_server/internal/repository"
)

var ErrEssayLimitReached = errors.New("essay limit reached for current plan")

// CanGenerateEssay decides whether the account may generate an essay right
// now. Pure read of the snapshot; no side effects.
//
// pro is never metered. An essentials account inside its paid period is
// never metered either; once the period has lapsed it falls back to the
// metered comparison like a free account. It must NOT silently keep
// unlimited access past expiry.
func CanGenerateEssay(user *model.User, now time.Time) bool {
	switch user.SubscriptionTier {
	case model.TierPro:
		return true
	case model.TierEssentials:
		if user.SubscriptionExpired(now) {
			return meteredAllowed(user)
		}
		return true
	default:
		return meteredAllowed(user)
	}
}

func meteredAllowed(user *model.User) bool {
	if user.Unlimited() {
		return true
	}
	return user.EssaysUsed < user.EssayQuota || user.EssayCredits > 0
}

type EntitlementService struct {
	userRepo *repository.UserRepository
	cfg      *config.Config
}

func NewEntitlementService(userRepo *repository.UserRepository, cfg *config.Config) *EntitlementService {
	return &EntitlementService{
		userRepo: userRepo,
		cfg:      cfg,
	}
}

// Check loads the account and evaluates it.
func (s *EntitlementService) Check(userID int64) (bool, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return false, err
	}
	return CanGenerateEssay(user, time.Now()), nil
}

// Consume spends one metered essay after the work succeeded. Paid tiers in
// an active period are not metered by count. For metered accounts the spend
// is a single guarded UPDATE, so two requests that both passed the
// entitlement check cannot both get the last slot: the loser is denied
// here instead of overshooting the ceiling. viaCredit reports whether a
// purchased credit covered the essay.
func (s *EntitlementService) Consume(userID int64) (viaCredit bool, err error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return false, err
	}

	now := time.Now()
	switch user.SubscriptionTier {
	case model.TierPro:
		return false, nil
	case model.TierEssentials:
		if !user.SubscriptionExpired(now) {
			return false, nil
		}
		// lapsed period: quota is frozen, only purchased credits can be spent
		if user.EssaysUsed < user.EssayQuota {
			return false, nil
		}
		ok, err := s.userRepo.ConsumeCredit(userID)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, ErrEssayLimitReached
		}
		return true, nil
	default:
		ok, err := s.userRepo.ConsumeQuota(userID)
		if err != nil {
			return false, err
		}
		if ok {
			return false, nil
		}
		ok, err = s.userRepo.ConsumeCredit(userID)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, ErrEssayLimitReached
		}
		return true, nil
	}
}

// Refund hands back a spend from Consume after the essay failed to
// persist, so a storage error does not burn a slot or a credit.
func (s *EntitlementService) Refund(userID int64, viaCredit bool) error {
	if viaCredit {
		return s.userRepo.GrantCredit(userID)
	}
	_, err := s.userRepo.RefundQuota(userID)
	return err
}

// GetQuotaInfo builds the dashboard quota summary.
func (s *EntitlementService) GetQuotaInfo(userID int64) (*dto.QuotaInfo, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}

	info := &dto.QuotaInfo{
		Tier:        user.SubscriptionTier,
		Quota:       user.EssayQuota,
		Used:        user.EssaysUsed,
		Credits:     user.EssayCredits,
		CanGenerate: CanGenerateEssay(user, time.Now()),
	}

	if user.Unlimited() {
		info.Remaining = model.QuotaUnlimited
	} else {
		remaining := user.EssayQuota - user.EssaysUsed
		if remaining < 0 {
			remaining = 0
		}
		info.Remaining = remaining
	}

	if user.CycleResetAt != nil {
		info.CycleResetAt = user.CycleResetAt.Format(time.RFC3339)
	}

	return info, nil
}
