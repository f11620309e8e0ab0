package repository

import (
	"time"

	"skillset_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StatusRepository struct {
	DB *gorm.DB
}

func NewStatusRepository(db *gorm.DB) *StatusRepository {
	return &StatusRepository{DB: db}
}

func (r *StatusRepository) WithTx(tx *gorm.DB) *StatusRepository {
	return &StatusRepository{DB: tx}
}

func (r *StatusRepository) Find(studentID, skillID uint) (*model.StudentSkillStatus, error) {
	var st model.StudentSkillStatus
	err := r.DB.Where("student_id = ? AND skill_id = ?", studentID, skillID).First(&st).Error
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// FindOrInit 返回已有状态行；不存在时返回未保存的锁定状态
func (r *StatusRepository) FindOrInit(studentID, skillID uint) (*model.StudentSkillStatus, error) {
	var rows []model.StudentSkillStatus
	err := r.DB.Where("student_id = ? AND skill_id = ?", studentID, skillID).Limit(1).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &model.StudentSkillStatus{StudentID: studentID, SkillID: skillID}, nil
	}
	return &rows[0], nil
}

// Save 插入或更新单行（以 student_id+skill_id 唯一键为准）
func (r *StatusRepository) Save(st *model.StudentSkillStatus) error {
	if st.ID != 0 {
		return r.DB.Save(st).Error
	}
	return r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "student_id"}, {Name: "skill_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"unlocked", "completed", "unlocked_at", "extra_attempt_week", "updated_at"}),
	}).Create(st).Error
}

// CreateMissing 批量创建状态行，已存在的 (student, skill) 保持不变
func (r *StatusRepository) CreateMissing(rows []model.StudentSkillStatus) error {
	if len(rows) == 0 {
		return nil
	}
	return r.DB.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, 200).Error
}

func (r *StatusRepository) SetUnlocked(st *model.StudentSkillStatus, unlocked bool, now time.Time) error {
	st.Unlocked = unlocked
	if unlocked && st.UnlockedAt == nil {
		t := now
		st.UnlockedAt = &t
	}
	return r.Save(st)
}

func (r *StatusRepository) GrantExtraAttempt(studentID, skillID uint, week string) error {
	st, err := r.FindOrInit(studentID, skillID)
	if err != nil {
		return err
	}
	st.ExtraAttemptWeek = model.GrantFor(week)
	return r.Save(st)
}

// ConsumeExtraAttempt 条件更新：仅当授权恰好为该周时清空，返回是否消费成功。
// 并发请求中只有一个能看到 RowsAffected == 1。
func (r *StatusRepository) ConsumeExtraAttempt(studentID, skillID uint, week string) (bool, error) {
	res := r.DB.Model(&model.StudentSkillStatus{}).
		Where("student_id = ? AND skill_id = ? AND extra_attempt_week = ?", studentID, skillID, week).
		Update("extra_attempt_week", model.WeekGrant{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *StatusRepository) MarkCompleted(studentID, skillID uint) error {
	return r.DB.Model(&model.StudentSkillStatus{}).
		Where("student_id = ? AND skill_id = ?", studentID, skillID).
		Update("completed", true).Error
}

func (r *StatusRepository) ListByStudent(studentID uint) ([]model.StudentSkillStatus, error) {
	var rows []model.StudentSkillStatus
	err := r.DB.Where("student_id = ?", studentID).Order("skill_id ASC").Find(&rows).Error
	return rows, err
}

// ListUnlockedSkills 学生已解锁的启用技能，按顺序号排列
func (r *StatusRepository) ListUnlockedSkills(studentID uint) ([]model.Skill, error) {
	var skills []model.Skill
	err := r.DB.Table("skills").
		Joins("JOIN student_skill_statuses ss ON ss.skill_id = skills.id").
		Where("ss.student_id = ? AND ss.unlocked = ? AND skills.active = ?", studentID, true, true).
		Order("skills.order_index ASC, skills.id ASC").
		Find(&skills).Error
	return skills, err
}
