package repository

import (
	"time"

	"skillset_backend/internal/model"

	"gorm.io/gorm"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) WithTx(tx *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: tx}
}

// Create 插入新的考试记录；(student, skill, week, sequence) 唯一索引冲突由调用方转换为业务拒绝
func (r *AttemptRepository) Create(a *model.Attempt) error {
	return r.DB.Create(a).Error
}

func (r *AttemptRepository) FindByID(id uint) (*model.Attempt, error) {
	var a model.Attempt
	if err := r.DB.First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// FindCurrent 本周最新一次考试（sequence 最大）；不存在返回 nil
func (r *AttemptRepository) FindCurrent(studentID, skillID uint, week string) (*model.Attempt, error) {
	var rows []model.Attempt
	err := r.DB.Where("student_id = ? AND skill_id = ? AND week_key = ?", studentID, skillID, week).
		Order("sequence DESC").
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

// LatestFinished 学生在该技能上最近一次已提交的考试；不存在返回 nil
func (r *AttemptRepository) LatestFinished(studentID, skillID uint) (*model.Attempt, error) {
	var rows []model.Attempt
	err := r.DB.Where("student_id = ? AND skill_id = ? AND status = ? AND ended_at IS NOT NULL", studentID, skillID, model.AttemptSubmitted).
		Order("ended_at DESC, id DESC").
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

// Finalize 以 status=in_progress 为条件写入终态，返回是否由本次调用完成提交
func (r *AttemptRepository) Finalize(a *model.Attempt) (bool, error) {
	res := r.DB.Model(&model.Attempt{}).
		Where("id = ? AND status = ?", a.ID, model.AttemptInProgress).
		Updates(map[string]interface{}{
			"status":          model.AttemptSubmitted,
			"score":           a.Score,
			"ended_at":        a.EndedAt,
			"elapsed_seconds": a.ElapsedSeconds,
			"answers":         a.Answers,
			"graded":          a.Graded,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *AttemptRepository) ListByStudent(studentID uint) ([]model.Attempt, error) {
	var rows []model.Attempt
	err := r.DB.Where("student_id = ?", studentID).Order("started_at DESC, id DESC").Find(&rows).Error
	return rows, err
}

// FinishedRow 教师报表/导出视图
type FinishedRow struct {
	AttemptID      uint       `json:"attemptId"`
	StudentID      uint       `json:"studentId"`
	StudentNameAr  string     `json:"studentNameAr"`
	StudentNameEn  string     `json:"studentNameEn"`
	StudentNumber  *string    `json:"studentNumber,omitempty"`
	SkillID        uint       `json:"skillId"`
	SkillNameAr    string     `json:"skillNameAr"`
	SkillNameEn    string     `json:"skillNameEn"`
	WeekKey        string     `json:"weekKey"`
	Score          int        `json:"score"`
	ElapsedSeconds int        `json:"elapsedSeconds"`
	StartedAt      time.Time  `json:"startedAt"`
	EndedAt        *time.Time `json:"endedAt,omitempty"`
	ReportURL      *string    `json:"reportUrl,omitempty"`
}

// ListFinishedForTeacher 教师名下学生的已提交考试，最新在前
func (r *AttemptRepository) ListFinishedForTeacher(teacherID uint, limit int) ([]FinishedRow, error) {
	var rows []FinishedRow
	q := r.DB.Table("attempts a").
		Select(`a.id AS attempt_id, a.student_id, u.name_ar AS student_name_ar, u.name_en AS student_name_en,
			u.student_number, a.skill_id, s.name_ar AS skill_name_ar, s.name_en AS skill_name_en,
			a.week_key, a.score, a.elapsed_seconds, a.started_at, a.ended_at, rp.url AS report_url`).
		Joins("JOIN users u ON u.id = a.student_id").
		Joins("JOIN skills s ON s.id = a.skill_id").
		Joins("LEFT JOIN reports rp ON rp.attempt_id = a.id").
		Where("u.teacher_id = ? AND a.status = ?", teacherID, model.AttemptSubmitted).
		Order("a.ended_at DESC, a.id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Scan(&rows).Error
	return rows, err
}

// SkillAverage 单个技能的平均分
type SkillAverage struct {
	SkillID  uint
	AvgScore float64
}

// WeakestSkills 按平均分升序（并列按 skill_id 升序）取前 limit 个，只统计已提交考试
func (r *AttemptRepository) WeakestSkills(studentID uint, limit int) ([]SkillAverage, error) {
	var rows []SkillAverage
	err := r.DB.Model(&model.Attempt{}).
		Select("skill_id, AVG(score) AS avg_score").
		Where("student_id = ? AND status = ?", studentID, model.AttemptSubmitted).
		Group("skill_id").
		Order("avg_score ASC, skill_id ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// SubmittedWithoutReport 已提交但尚未生成报告的考试（仅限已有负责教师的学生）
func (r *AttemptRepository) SubmittedWithoutReport(limit int) ([]model.Attempt, error) {
	var rows []model.Attempt
	err := r.DB.Where("status = ?", model.AttemptSubmitted).
		Where("NOT EXISTS (SELECT 1 FROM reports rp WHERE rp.attempt_id = attempts.id)").
		Where("EXISTS (SELECT 1 FROM users u WHERE u.id = attempts.student_id AND u.teacher_id IS NOT NULL)").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
