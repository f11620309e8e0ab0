package model

import (
	"gorm.io/datatypes"
)

type QuestionType string

const (
	QuestionSingleChoice      QuestionType = "mcq_single"
	QuestionMultiChoice       QuestionType = "mcq_multi"
	QuestionTrueFalse         QuestionType = "true_false"
	QuestionFreeText          QuestionType = "short_text"
	QuestionNumeric           QuestionType = "numeric"
	QuestionCheckpointVideo   QuestionType = "video_checkpoint"
	QuestionImageSingleChoice QuestionType = "image_mcq_single"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionSingleChoice, QuestionMultiChoice, QuestionTrueFalse, QuestionFreeText,
		QuestionNumeric, QuestionCheckpointVideo, QuestionImageSingleChoice:
		return true
	}
	return false
}

// IsChoice 选择类题型（需要选项）
func (t QuestionType) IsChoice() bool {
	switch t {
	case QuestionSingleChoice, QuestionMultiChoice, QuestionTrueFalse, QuestionCheckpointVideo, QuestionImageSingleChoice:
		return true
	}
	return false
}

const (
	QuestionDraft    = "draft"
	QuestionApproved = "approved"
)

type Choice struct {
	ID     string `json:"id"`
	TextAr string `json:"textAr"`
	TextEn string `json:"textEn,omitempty"`
}

// swagger:model Question
type Question struct {
	BaseModel
	SkillID       uint                         `gorm:"index;not null" json:"skillId"`
	Type          QuestionType                 `gorm:"size:50;not null" json:"type"`
	PromptAr      string                       `gorm:"type:text;not null" json:"promptAr"`
	PromptEn      string                       `gorm:"type:text" json:"promptEn"`
	Options       datatypes.JSONType[[]Choice] `json:"options"`
	Correct       datatypes.JSONType[[]string] `json:"correct,omitempty"`
	Media         datatypes.JSON               `json:"media,omitempty"` // video_url / image url
	Meta          datatypes.JSON               `json:"meta,omitempty"`  // checkpoint_seconds 等
	Status        string                       `gorm:"size:20;index;not null" json:"status"`
	CreatedByID   uint                         `json:"createdById"`
	CreatedByRole UserRole                     `gorm:"size:20" json:"createdByRole"`
}

func (Question) TableName() string {
	return "questions"
}

func (q *Question) Prompt(lang Lang) string {
	return pick(lang, q.PromptAr, q.PromptEn)
}

func (q *Question) CorrectAnswers() []string {
	return q.Correct.Data()
}

func (q *Question) Choices() []Choice {
	return q.Options.Data()
}

func (q *Question) Live() bool {
	return q.Status == QuestionApproved
}

// ForStudent returns a copy with the answer key removed.
func (q Question) ForStudent() Question {
	q.Correct = datatypes.NewJSONType[[]string](nil)
	return q
}
