package model

type UserRole string

const (
	Student  UserRole = "student"
	Teacher  UserRole = "teacher"
	Chairman UserRole = "chairman"
)

// swagger:model User
type User struct {
	BaseModel
	Username      string   `gorm:"size:80;uniqueIndex;not null" json:"username"`
	NameAr        string   `gorm:"size:200;not null;default:''" json:"nameAr"`
	NameEn        string   `gorm:"size:200" json:"nameEn"`
	Role          UserRole `gorm:"size:20;index;not null" json:"role"`
	Email         string   `gorm:"size:200" json:"email"`
	StudentNumber *string  `gorm:"size:50;uniqueIndex" json:"studentNumber,omitempty"` // 学号
	TeacherID     *uint    `gorm:"index" json:"teacherId,omitempty"`                   // 负责教师
	PasswordHash  string   `gorm:"size:255" json:"-"`
	Language      string   `gorm:"size:10;default:'ar'" json:"language"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) DisplayName(lang Lang) string {
	return pick(lang, u.NameAr, u.NameEn)
}

// BelongsTo reports whether teacherID is this student's responsible teacher.
func (u *User) BelongsTo(teacherID uint) bool {
	return u.Role == Student && u.TeacherID != nil && *u.TeacherID == teacherID
}
