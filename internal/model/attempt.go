package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	AttemptInProgress = "in_progress"
	AttemptSubmitted  = "submitted"
)

// AnswerSet maps a question id (decimal string) to the student's raw responses.
type AnswerSet map[string][]string

// GradedQuestion 提交时的判分快照，报告补生成只依据它，与题库后续改动无关
type GradedQuestion struct {
	QuestionID uint         `json:"questionId"`
	Type       QuestionType `json:"type"`
	PromptAr   string       `json:"promptAr"`
	PromptEn   string       `json:"promptEn,omitempty"`
	Expected   []string     `json:"expected,omitempty"`
	Given      []string     `json:"given,omitempty"`
	Correct    bool         `json:"correct"`
	Graded     bool         `json:"graded"`
}

// swagger:model Attempt
type Attempt struct {
	BaseModel
	StudentID uint   `gorm:"not null;uniqueIndex:uq_attempt_week;index" json:"studentId"`
	SkillID   uint   `gorm:"not null;uniqueIndex:uq_attempt_week;index" json:"skillId"`
	WeekKey   string `gorm:"size:12;not null;uniqueIndex:uq_attempt_week" json:"weekKey"`
	// Sequence 同一周内的第几次（额外机会 +1）
	Sequence int `gorm:"not null;default:1;uniqueIndex:uq_attempt_week" json:"sequence"`

	StartedAt      time.Time                     `json:"startedAt"`
	EndedAt        *time.Time                    `json:"endedAt,omitempty"`
	ElapsedSeconds int                           `json:"elapsedSeconds"`
	Score          int                           `json:"score"`
	Status         string                        `gorm:"size:20;index;not null" json:"status"`
	Answers        datatypes.JSONType[AnswerSet] `json:"answers"`
	// 标准答案在快照里，不随考试记录下发
	Graded datatypes.JSONType[[]GradedQuestion] `json:"-"`
}

func (Attempt) TableName() string {
	return "attempts"
}

func (a *Attempt) Submitted() bool {
	return a.Status == AttemptSubmitted
}
