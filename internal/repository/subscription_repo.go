package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/phdwriter/essay_go_server/internal/model"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(sub *model.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *SubscriptionRepository) GetByCorrelationID(correlationID string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.Where("correlation_id = ?", correlationID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *SubscriptionRepository) GetByProviderSubID(providerSubID string) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.Where("provider_sub_id = ?", providerSubID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// LatestForUser returns the newest subscription row for the account.
func (r *SubscriptionRepository) LatestForUser(userID int64) (*model.Subscription, error) {
	var sub model.Subscription
	err := r.db.Where("user_id = ?", userID).Order("id DESC").First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Activate promotes a pending row once its provider event arrives.
func (r *SubscriptionRepository) Activate(id int64, providerSubID string, expiresAt time.Time) error {
	return r.db.Model(&model.Subscription{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":          model.SubscriptionActive,
		"provider_sub_id": providerSubID,
		"expires_at":      expiresAt,
	}).Error
}

func (r *SubscriptionRepository) MarkCancelled(id int64, at time.Time) error {
	return r.db.Model(&model.Subscription{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       model.SubscriptionCancelled,
		"cancelled_at": at,
	}).Error
}

// ExpirePending abandons pending rows older than the cutoff; the user never
// completed the provider confirmation step.
func (r *SubscriptionRepository) ExpirePending(cutoff time.Time) (int64, error) {
	res := r.db.Model(&model.Subscription{}).
		Where("status = ? AND created_at < ?", model.SubscriptionPending, cutoff).
		Update("status", model.SubscriptionExpired)
	return res.RowsAffected, res.Error
}
