package repository

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/phdwriter/essay_go_server/internal/model"
)

// ErrDuplicateEvent means this event id was already recorded; the delivery
// is a provider retry and must not be applied again.
var ErrDuplicateEvent = errors.New("payment event already recorded")

type PaymentEventRepository struct {
	db *gorm.DB
}

func NewPaymentEventRepository(db *gorm.DB) *PaymentEventRepository {
	return &PaymentEventRepository{db: db}
}

// Create inserts the event row. The unique index on event_id turns a
// duplicate delivery into ErrDuplicateEvent.
func (r *PaymentEventRepository) Create(event *model.PaymentEvent) error {
	err := r.db.Create(event).Error
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateEvent
	}
	return err
}

func (r *PaymentEventRepository) GetByEventID(eventID string) (*model.PaymentEvent, error) {
	var event model.PaymentEvent
	err := r.db.Where("event_id = ?", eventID).First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *PaymentEventRepository) MarkProcessed(id int64, userID int64) error {
	now := time.Now()
	return r.db.Model(&model.PaymentEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       model.EventProcessed,
		"user_id":      userID,
		"processed_at": now,
	}).Error
}

func (r *PaymentEventRepository) MarkSkipped(id int64, reason string) error {
	now := time.Now()
	return r.db.Model(&model.PaymentEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       model.EventSkipped,
		"error":        reason,
		"processed_at": now,
	}).Error
}

func (r *PaymentEventRepository) MarkFailed(id int64, errMsg string) error {
	return r.db.Model(&model.PaymentEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status": model.EventFailed,
		"error":  errMsg,
	}).Error
}

// DeleteProcessedBefore purges old processed/skipped rows.
func (r *PaymentEventRepository) DeleteProcessedBefore(cutoff time.Time) (int64, error) {
	res := r.db.Where("status IN ? AND created_at < ?",
		[]string{model.EventProcessed, model.EventSkipped}, cutoff).
		Delete(&model.PaymentEvent{})
	return res.RowsAffected, res.Error
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate entry") || strings.Contains(msg, "unique constraint")
}
