package repository

import (
	"skillset_backend/internal/model"

	"gorm.io/gorm"
)

type RemediationRepository struct {
	DB *gorm.DB
}

func NewRemediationRepository(db *gorm.DB) *RemediationRepository {
	return &RemediationRepository{DB: db}
}

func (r *RemediationRepository) WithTx(tx *gorm.DB) *RemediationRepository {
	return &RemediationRepository{DB: tx}
}

func (r *RemediationRepository) Create(rm *model.Remediation) error {
	return r.DB.Create(rm).Error
}

// LatestFor 指定 (教师, 学生, 技能) 的最新补救记录；不存在返回 nil
func (r *RemediationRepository) LatestFor(teacherID, studentID, skillID uint) (*model.Remediation, error) {
	var rows []model.Remediation
	err := r.DB.Where("teacher_id = ? AND student_id = ? AND skill_id = ?", teacherID, studentID, skillID).
		Order("created_at DESC, id DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *RemediationRepository) ListByStudent(studentID uint) ([]model.Remediation, error) {
	var rows []model.Remediation
	err := r.DB.Where("student_id = ?", studentID).Order("created_at DESC, id DESC").Find(&rows).Error
	return rows, err
}

func (r *RemediationRepository) ListForStudentSkill(studentID, skillID uint) ([]model.Remediation, error) {
	var rows []model.Remediation
	err := r.DB.Where("student_id = ? AND skill_id = ?", studentID, skillID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	return rows, err
}
