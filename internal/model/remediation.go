package model

// swagger:model Remediation
type Remediation struct {
	BaseModel
	TeacherID  uint   `gorm:"not null;index:idx_remediation_lookup" json:"teacherId"`
	StudentID  uint   `gorm:"not null;index:idx_remediation_lookup" json:"studentId"`
	SkillID    uint   `gorm:"not null;index:idx_remediation_lookup" json:"skillId"`
	NotesAr    string `gorm:"type:text" json:"notesAr"`
	NotesEn    string `gorm:"type:text" json:"notesEn"`
	FileName   string `gorm:"size:255" json:"fileName"`
	FileURL    string `gorm:"type:text" json:"fileUrl"`
	StorageKey string `gorm:"type:text" json:"-"`
}

func (Remediation) TableName() string {
	return "remediations"
}
