package model

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// WeekGrant 额外考试机会：要么不存在，要么绑定到某个具体的周键
type WeekGrant struct {
	Week    string
	Present bool
}

func GrantFor(week string) WeekGrant {
	return WeekGrant{Week: week, Present: true}
}

// Matches is true only for a present grant of exactly this week. Grants of other weeks are inert.
func (g WeekGrant) Matches(week string) bool {
	return g.Present && g.Week == week
}

func (g WeekGrant) Value() (driver.Value, error) {
	if !g.Present {
		return nil, nil
	}
	return g.Week, nil
}

func (g *WeekGrant) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*g = WeekGrant{}
	case string:
		*g = GrantFor(v)
	case []byte:
		*g = GrantFor(string(v))
	default:
		return fmt.Errorf("week grant: unsupported type %T", src)
	}
	return nil
}

func (WeekGrant) GormDataType() string {
	return "string"
}

// swagger:model StudentSkillStatus
type StudentSkillStatus struct {
	BaseModel
	StudentID        uint       `gorm:"not null;uniqueIndex:uq_student_skill" json:"studentId"`
	SkillID          uint       `gorm:"not null;uniqueIndex:uq_student_skill;index" json:"skillId"`
	Unlocked         bool       `json:"unlocked"`
	Completed        bool       `json:"completed"`
	UnlockedAt       *time.Time `json:"unlockedAt,omitempty"`
	ExtraAttemptWeek WeekGrant  `gorm:"size:12" json:"-"`
}

func (StudentSkillStatus) TableName() string {
	return "student_skill_statuses"
}
