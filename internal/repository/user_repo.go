package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/phdwriter/essay_go_server/internal/model"
)

// ErrVersionConflict is returned when an optimistic update lost the race.
var ErrVersionConflict = errors.New("user record was modified concurrently")

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(user *model.User) error {
	return r.db.Create(user).Error
}

func (r *UserRepository) GetByID(id int64) (*model.User, error) {
	var user model.User
	err := r.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByEmail(email string) (*model.User, error) {
	var user model.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByUsername(username string) (*model.User, error) {
	var user model.User
	err := r.db.Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByGithubID(githubID string) (*model.User, error) {
	var user model.User
	err := r.db.Where("github_id = ?", githubID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByVerificationCode(code string) (*model.User, error) {
	var user model.User
	err := r.db.Where("verification_code = ?", code).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByProviderSubscriptionID(subID string) (*model.User, error) {
	var user model.User
	err := r.db.Where("provider_subscription_id = ?", subID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateFields applies a partial update. Callers name the fields they own;
// the whole record is never blind-written.
func (r *UserRepository) UpdateFields(id int64, fields map[string]interface{}) error {
	return r.db.Model(&model.User{}).Where("id = ?", id).Updates(fields).Error
}

// UpdateWithVersion applies a partial update only if the record still has
// the expected version. Returns ErrVersionConflict when it does not.
func (r *UserRepository) UpdateWithVersion(id, version int64, fields map[string]interface{}) error {
	fields["version"] = gorm.Expr("version + 1")
	res := r.db.Model(&model.User{}).
		Where("id = ? AND version = ?", id, version).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// ConsumeQuota atomically spends one metered essay for a free-tier account.
// The WHERE clause carries the ceiling check so two concurrent requests
// cannot both pass it: the second sees RowsAffected == 0.
func (r *UserRepository) ConsumeQuota(id int64) (bool, error) {
	res := r.db.Model(&model.User{}).
		Where("id = ? AND subscription_tier = ? AND essays_used < essay_quota", id, model.TierFree).
		Update("essays_used", gorm.Expr("essays_used + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ConsumeCredit atomically spends one purchased essay credit.
func (r *UserRepository) ConsumeCredit(id int64) (bool, error) {
	res := r.db.Model(&model.User{}).
		Where("id = ? AND essay_credits > 0", id).
		Update("essay_credits", gorm.Expr("essay_credits - 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RefundQuota returns one metered essay slot after the work it paid for
// failed. Guarded the same way as ConsumeQuota so usage never goes negative
// and paid tiers stay untouched.
func (r *UserRepository) RefundQuota(id int64) (bool, error) {
	res := r.db.Model(&model.User{}).
		Where("id = ? AND subscription_tier = ? AND essays_used > 0", id, model.TierFree).
		Update("essays_used", gorm.Expr("essays_used - 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GrantCredit adds one purchased essay credit.
func (r *UserRepository) GrantCredit(id int64) error {
	return r.db.Model(&model.User{}).Where("id = ?", id).
		Update("essay_credits", gorm.Expr("essay_credits + 1")).Error
}

// SetSubscription applies an authoritative tier change. Tier and ceiling
// move in the same statement so the quota invariant cannot be observed
// half-applied.
func (r *UserRepository) SetSubscription(id int64, tier string, quota int, expiresAt *time.Time, provider string, providerSubID *string, eventAt time.Time) error {
	return r.db.Model(&model.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"subscription_tier":        tier,
		"essay_quota":              quota,
		"subscription_expires_at":  expiresAt,
		"payment_provider":         provider,
		"provider_subscription_id": providerSubID,
		"cancel_at_period_end":     false,
		"last_billing_event_at":    eventAt,
	}).Error
}

// ClearSubscription reverts an account to the free tier.
func (r *UserRepository) ClearSubscription(id int64, freeQuota int, eventAt time.Time) error {
	return r.db.Model(&model.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"subscription_tier":        model.TierFree,
		"essay_quota":              freeQuota,
		"subscription_expires_at":  nil,
		"provider_subscription_id": nil,
		"cancel_at_period_end":     false,
		"last_billing_event_at":    eventAt,
	}).Error
}

// ResetDueCycles rolls over usage for accounts whose billing cycle ended.
func (r *UserRepository) ResetDueCycles(now, nextResetAt time.Time) (int64, error) {
	res := r.db.Model(&model.User{}).
		Where("cycle_reset_at IS NOT NULL AND cycle_reset_at <= ?", now).
		Updates(map[string]interface{}{
			"essays_used":    0,
			"cycle_reset_at": nextResetAt,
		})
	return res.RowsAffected, res.Error
}

// DeleteStaleUnverified removes accounts that never completed email
// verification within the grace window.
func (r *UserRepository) DeleteStaleUnverified(before time.Time) (int64, error) {
	res := r.db.Where("email_verified = ? AND created_at < ?", false, before).
		Delete(&model.User{})
	return res.RowsAffected, res.Error
}

func (r *UserRepository) ExistsByEmail(email string) (bool, error) {
	var count int64
	err := r.db.Model(&model.User{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

func (r *UserRepository) ExistsByUsername(username string) (bool, error) {
	var count int64
	err := r.db.Model(&model.User{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}
