package model

const (
	DefaultPassThreshold = 60
	DefaultTimeLimitMin  = 10
)

// swagger:model Skill
type Skill struct {
	BaseModel
	NameAr        string `gorm:"size:200;not null" json:"nameAr"`
	NameEn        string `gorm:"size:200" json:"nameEn"`
	DescriptionAr string `gorm:"type:text" json:"descriptionAr"`
	DescriptionEn string `gorm:"type:text" json:"descriptionEn"`
	OrderIndex    int    `gorm:"index" json:"orderIndex"`                  // 顺序：order n 依赖 order n-1
	PassThreshold int    `gorm:"not null;default:60" json:"passThreshold"` // 及格线（百分比）
	TimeLimitMin  int    `json:"timeLimitMin"`                             // 限时（分钟）
	Active        bool   `gorm:"index" json:"active"`
}

func (Skill) TableName() string {
	return "skills"
}

func (s *Skill) DisplayName(lang Lang) string {
	return pick(lang, s.NameAr, s.NameEn)
}

// EffectivePassThreshold falls back to the default for rows written before the column had one.
func (s *Skill) EffectivePassThreshold() int {
	if s.PassThreshold <= 0 {
		return DefaultPassThreshold
	}
	return s.PassThreshold
}

func (s *Skill) EffectiveTimeLimitSeconds() int {
	if s.TimeLimitMin <= 0 {
		return DefaultTimeLimitMin * 60
	}
	return s.TimeLimitMin * 60
}

func (s *Skill) Passed(score int) bool {
	return score >= s.EffectivePassThreshold()
}
