package util

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound          = errors.New("user not found")
	ErrStudentNotFound       = errors.New("student not found")
	ErrTeacherNotFound       = errors.New("teacher not found")
	ErrSkillNotFound         = errors.New("skill not found")
	ErrQuestionNotFound      = errors.New("question not found")
	ErrAttemptNotFound       = errors.New("attempt not found")
	ErrReportNotFound        = errors.New("report not found")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrInvalidCredentials    = errors.New("invalid username or password")
	ErrUsernameTaken         = errors.New("username already exists")
	ErrAttemptSubmitted      = errors.New("attempt already submitted")
	ErrAttemptNotSubmitted   = errors.New("attempt not submitted yet")
	ErrReportAlreadyExists   = errors.New("report already exists")
	ErrStudentHasNoTeacher   = errors.New("student has no responsible teacher")
	ErrQuestionNotApprovable = errors.New("question not approvable")
	ErrUnsupportedFile       = errors.New("unsupported file type")
	ErrEmptyRemediation      = errors.New("remediation needs notes or a file")
	ErrInvalidRole           = errors.New("invalid role")
)

// PolicyDenied 业务规则拒绝（锁定、本周已测试、前置技能未通过等），可直接展示给用户
type PolicyDenied struct {
	Reason string
}

func (e *PolicyDenied) Error() string {
	return e.Reason
}

func Deny(reason string) error {
	return &PolicyDenied{Reason: reason}
}

// IsPolicyDenied reports whether err carries a user-facing denial and returns its reason.
func IsPolicyDenied(err error) (string, bool) {
	var pd *PolicyDenied
	if errors.As(err, &pd) {
		return pd.Reason, true
	}
	return "", false
}

func IsNotFound(err error) bool {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrStudentNotFound),
		errors.Is(err, ErrTeacherNotFound),
		errors.Is(err, ErrSkillNotFound),
		errors.Is(err, ErrQuestionNotFound),
		errors.Is(err, ErrAttemptNotFound),
		errors.Is(err, ErrReportNotFound):
		return true
	}
	return false
}

// IsUniqueViolation 识别唯一索引冲突（gorm TranslateError 以及各驱动的原始报错）
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}
