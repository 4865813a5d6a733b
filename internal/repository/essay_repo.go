package repository

import (
	"gorm.io/gorm"

	"github.com/phdwriter/essay_go_server/internal/model"
)

type EssayRepository struct {
	db *gorm.DB
}

func NewEssayRepository(db *gorm.DB) *EssayRepository {
	return &EssayRepository{db: db}
}

func (r *EssayRepository) Create(essay *model.Essay) error {
	return r.db.Create(essay).Error
}

func (r *EssayRepository) GetByID(id int64) (*model.Essay, error) {
	var essay model.Essay
	err := r.db.Where("id = ?", id).First(&essay).Error
	if err != nil {
		return nil, err
	}
	return &essay, nil
}

func (r *EssayRepository) ListByUser(userID int64, page, pageSize int) ([]model.Essay, int64, error) {
	var essays []model.Essay
	var total int64

	q := r.db.Model(&model.Essay{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&essays).Error
	if err != nil {
		return nil, 0, err
	}
	return essays, total, nil
}

func (r *EssayRepository) SetDocumentURL(id int64, url string) error {
	return r.db.Model(&model.Essay{}).Where("id = ?", id).
		Update("document_url", url).Error
}

func (r *EssayRepository) CountByUser(userID int64) (int64, error) {
	var count int64
	err := r.db.Model(&model.Essay{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
