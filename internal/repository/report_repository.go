package repository

import (
	"skillset_backend/internal/model"

	"gorm.io/gorm"
)

type ReportRepository struct {
	DB *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{DB: db}
}

func (r *ReportRepository) WithTx(tx *gorm.DB) *ReportRepository {
	return &ReportRepository{DB: tx}
}

func (r *ReportRepository) Create(rp *model.Report) error {
	return r.DB.Create(rp).Error
}

func (r *ReportRepository) FindByAttempt(attemptID uint) (*model.Report, error) {
	var rp model.Report
	if err := r.DB.Where("attempt_id = ?", attemptID).First(&rp).Error; err != nil {
		return nil, err
	}
	return &rp, nil
}

func (r *ReportRepository) ExistsForAttempt(attemptID uint) (bool, error) {
	var n int64
	err := r.DB.Model(&model.Report{}).Where("attempt_id = ?", attemptID).Count(&n).Error
	return n > 0, err
}
