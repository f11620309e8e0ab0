package model

// swagger:model Report
type Report struct {
	BaseModel
	AttemptID  uint   `gorm:"not null;uniqueIndex" json:"attemptId"`
	TeacherID  uint   `gorm:"not null;index" json:"teacherId"`
	URL        string `gorm:"type:text;not null" json:"url"`
	StorageKey string `gorm:"type:text" json:"-"`
}

func (Report) TableName() string {
	return "reports"
}
