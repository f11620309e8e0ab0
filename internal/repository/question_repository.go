package repository

import (
	"skillset_backend/internal/model"

	"gorm.io/gorm"
)

type QuestionRepository struct {
	DB *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: db}
}

func (r *QuestionRepository) WithTx(tx *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: tx}
}

func (r *QuestionRepository) Create(q *model.Question) error {
	return r.DB.Create(q).Error
}

func (r *QuestionRepository) FindByID(id uint) (*model.Question, error) {
	var q model.Question
	if err := r.DB.First(&q, id).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *QuestionRepository) UpdateStatus(id uint, status string) error {
	return r.DB.Model(&model.Question{}).Where("id = ?", id).Update("status", status).Error
}

// ListLiveBySkill 只返回已审核题目，按ID升序；草稿永远不会进入考试
func (r *QuestionRepository) ListLiveBySkill(skillID uint) ([]model.Question, error) {
	var qs []model.Question
	err := r.DB.Where("skill_id = ? AND status = ?", skillID, model.QuestionApproved).
		Order("id ASC").
		Find(&qs).Error
	return qs, err
}

func (r *QuestionRepository) ListBySkill(skillID uint) ([]model.Question, error) {
	var qs []model.Question
	err := r.DB.Where("skill_id = ?", skillID).Order("id ASC").Find(&qs).Error
	return qs, err
}
