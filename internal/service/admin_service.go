package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"skillset_backend/internal/model"
	"skillset_backend/internal/repository"
	"skillset_backend/internal/util"
	"skillset_backend/pkg/logger"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var validate = validator.New()

// AdminService 主任侧：技能、用户、题库管理
type AdminService struct {
	DB           *gorm.DB
	UserRepo     *repository.UserRepository
	SkillRepo    *repository.SkillRepository
	QuestionRepo *repository.QuestionRepository
	StatusRepo   *repository.StatusRepository
	Clock        util.Clock
}

func NewAdminService(db *gorm.DB, clock util.Clock) *AdminService {
	return &AdminService{
		DB:           db,
		UserRepo:     repository.NewUserRepository(db),
		SkillRepo:    repository.NewSkillRepository(db),
		QuestionRepo: repository.NewQuestionRepository(db),
		StatusRepo:   repository.NewStatusRepository(db),
		Clock:        clock,
	}
}

type CreateSkillRequest struct {
	NameAr        string `json:"nameAr" validate:"required,max=200"`
	NameEn        string `json:"nameEn" validate:"max=200"`
	DescriptionAr string `json:"descriptionAr"`
	DescriptionEn string `json:"descriptionEn"`
	OrderIndex    int    `json:"orderIndex" validate:"gte=0"`
	PassThreshold *int   `json:"passThreshold" validate:"omitempty,gte=1,lte=100"` // 省略时取默认 60，显式 0 被拒绝
	TimeLimitMin  int    `json:"timeLimitMin" validate:"gte=0,lte=600"`
}

// CreateSkill 新技能对所有现有学生初始化为锁定状态
func (s *AdminService) CreateSkill(ctx context.Context, req CreateSkillRequest) (*model.Skill, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	skill := &model.Skill{
		NameAr:        strings.TrimSpace(req.NameAr),
		NameEn:        strings.TrimSpace(req.NameEn),
		DescriptionAr: req.DescriptionAr,
		DescriptionEn: req.DescriptionEn,
		OrderIndex:    req.OrderIndex,
		PassThreshold: model.DefaultPassThreshold,
		TimeLimitMin:  req.TimeLimitMin,
		Active:        true,
	}
	if req.PassThreshold != nil {
		skill.PassThreshold = *req.PassThreshold
	}
	if skill.TimeLimitMin == 0 {
		skill.TimeLimitMin = model.DefaultTimeLimitMin
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.SkillRepo.WithTx(tx).Create(skill); err != nil {
			return err
		}
		ids, err := s.UserRepo.WithTx(tx).ListStudentIDs()
		if err != nil {
			return err
		}
		rows := make([]model.StudentSkillStatus, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, model.StudentSkillStatus{StudentID: id, SkillID: skill.ID})
		}
		return s.StatusRepo.WithTx(tx).CreateMissing(rows)
	})
	if err != nil {
		return nil, err
	}
	logger.Log.Info("Skill created", zap.Uint("skillID", skill.ID), zap.Int("order", skill.OrderIndex))
	return skill, nil
}

// DeleteSkill 级联删除状态、题目、考试、报告和补救记录
func (s *AdminService) DeleteSkill(ctx context.Context, skillID uint) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.SkillRepo.WithTx(tx).DeleteCascade(skillID)
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.ErrSkillNotFound
	}
	return err
}

func (s *AdminService) ListSkills(ctx context.Context) ([]model.Skill, error) {
	return s.SkillRepo.WithTx(s.DB.WithContext(ctx)).ListAll()
}

type CreateUserRequest struct {
	Username      string         `json:"username" validate:"required,min=3,max=80"`
	Password      string         `json:"password" validate:"required,min=6"`
	NameAr        string         `json:"nameAr" validate:"required,max=200"`
	NameEn        string         `json:"nameEn" validate:"max=200"`
	Role          model.UserRole `json:"role" validate:"required,oneof=student teacher"`
	Email         string         `json:"email" validate:"omitempty,email"`
	StudentNumber string         `json:"studentNumber" validate:"max=50"`
	TeacherID     *uint          `json:"teacherId"`
}

// CreateUser 创建教师或学生；新学生为每个技能建立状态行，最低顺序的技能直接解锁
func (s *AdminService) CreateUser(ctx context.Context, req CreateUserRequest) (*model.User, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Username:     strings.TrimSpace(req.Username),
		NameAr:       strings.TrimSpace(req.NameAr),
		NameEn:       strings.TrimSpace(req.NameEn),
		Role:         req.Role,
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: string(hash),
		Language:     string(model.LangAR),
	}
	if req.Role == model.Student {
		if n := strings.TrimSpace(req.StudentNumber); n != "" {
			user.StudentNumber = &n
		}
		user.TeacherID = req.TeacherID
	}

	now := s.Clock.Now()
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.UserRepo.WithTx(tx)
		if user.TeacherID != nil {
			t, err := users.FindByID(*user.TeacherID)
			if err != nil || t.Role != model.Teacher {
				return util.ErrTeacherNotFound
			}
		}
		if err := users.Create(user); err != nil {
			if util.IsUniqueViolation(err) {
				return util.ErrUsernameTaken
			}
			return err
		}
		if user.Role != model.Student {
			return nil
		}
		return s.provisionStudent(tx, user.ID, now)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AdminService) provisionStudent(tx *gorm.DB, studentID uint, now time.Time) error {
	skills, err := s.SkillRepo.WithTx(tx).ListActive()
	if err != nil || len(skills) == 0 {
		return err
	}
	first := skills[0].OrderIndex
	for _, sk := range skills {
		if sk.OrderIndex == 1 {
			first = 1
			break
		}
	}
	rows := make([]model.StudentSkillStatus, 0, len(skills))
	for _, sk := range skills {
		st := model.StudentSkillStatus{StudentID: studentID, SkillID: sk.ID}
		if sk.OrderIndex == first {
			st.Unlocked = true
			ts := now
			st.UnlockedAt = &ts
		}
		rows = append(rows, st)
	}
	return s.StatusRepo.WithTx(tx).CreateMissing(rows)
}

type ChoiceInput struct {
	ID     string `json:"id" validate:"required,max=20"`
	TextAr string `json:"textAr" validate:"required"`
	TextEn string `json:"textEn"`
}

type AddQuestionRequest struct {
	SkillID  uint               `json:"skillId" validate:"required"`
	Type     model.QuestionType `json:"type" validate:"required"`
	PromptAr string             `json:"promptAr" validate:"required"`
	PromptEn string             `json:"promptEn"`
	Options  []ChoiceInput      `json:"options" validate:"dive"`
	Correct  []string           `json:"correct"`
	Media    datatypes.JSON     `json:"media" swaggertype:"object"`
	Meta     datatypes.JSON     `json:"meta" swaggertype:"object"`
}

// AddQuestion 题目一律以草稿创建，审核后才会进入考试
func (s *AdminService) AddQuestion(ctx context.Context, actorID uint, role model.UserRole, req AddQuestionRequest) (*model.Question, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", util.ErrQuestionNotApprovable, req.Type)
	}
	if _, err := findSkill(s.SkillRepo, req.SkillID); err != nil {
		return nil, err
	}

	choices := make([]model.Choice, 0, len(req.Options))
	for _, o := range req.Options {
		choices = append(choices, model.Choice{ID: strings.TrimSpace(o.ID), TextAr: o.TextAr, TextEn: o.TextEn})
	}
	correct := make([]string, 0, len(req.Correct))
	for _, c := range req.Correct {
		if c = strings.TrimSpace(c); c != "" {
			correct = append(correct, c)
		}
	}

	q := &model.Question{
		SkillID:       req.SkillID,
		Type:          req.Type,
		PromptAr:      strings.TrimSpace(req.PromptAr),
		PromptEn:      strings.TrimSpace(req.PromptEn),
		Options:       datatypes.NewJSONType(choices),
		Correct:       datatypes.NewJSONType(correct),
		Media:         req.Media,
		Meta:          req.Meta,
		Status:        model.QuestionDraft,
		CreatedByID:   actorID,
		CreatedByRole: role,
	}
	if err := s.QuestionRepo.WithTx(s.DB.WithContext(ctx)).Create(q); err != nil {
		return nil, err
	}
	return q, nil
}

// CheckApprovable 选择题至少两个选项且答案必须是已有选项；单选类恰好一个答案；文本题需要答案
func CheckApprovable(q *model.Question) error {
	correct := q.CorrectAnswers()
	if strings.TrimSpace(q.PromptAr) == "" && strings.TrimSpace(q.PromptEn) == "" {
		return fmt.Errorf("%w: empty prompt", util.ErrQuestionNotApprovable)
	}
	if len(correct) == 0 {
		return fmt.Errorf("%w: missing correct answer", util.ErrQuestionNotApprovable)
	}
	if !q.Type.IsChoice() {
		return nil
	}

	choices := q.Choices()
	if len(choices) < 2 {
		return fmt.Errorf("%w: needs at least two options", util.ErrQuestionNotApprovable)
	}
	ids := make(map[string]bool, len(choices))
	for _, c := range choices {
		ids[c.ID] = true
	}
	for _, c := range correct {
		if !ids[c] {
			return fmt.Errorf("%w: answer %q is not an option", util.ErrQuestionNotApprovable, c)
		}
	}
	if q.Type != model.QuestionMultiChoice && len(correct) != 1 {
		return fmt.Errorf("%w: single-answer type needs exactly one answer", util.ErrQuestionNotApprovable)
	}
	return nil
}

func (s *AdminService) ApproveQuestion(ctx context.Context, questionID uint) (*model.Question, error) {
	questions := s.QuestionRepo.WithTx(s.DB.WithContext(ctx))
	q, err := questions.FindByID(questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrQuestionNotFound
		}
		return nil, err
	}
	if err := CheckApprovable(q); err != nil {
		return nil, err
	}
	if err := questions.UpdateStatus(q.ID, model.QuestionApproved); err != nil {
		return nil, err
	}
	q.Status = model.QuestionApproved
	return q, nil
}

func (s *AdminService) ListQuestions(ctx context.Context, skillID uint) ([]model.Question, error) {
	return s.QuestionRepo.WithTx(s.DB.WithContext(ctx)).ListBySkill(skillID)
}

func (s *AdminService) ListUsers(ctx context.Context, role model.UserRole) ([]model.User, error) {
	switch role {
	case model.Student, model.Teacher, model.Chairman:
	default:
		return nil, util.ErrInvalidRole
	}
	return s.UserRepo.WithTx(s.DB.WithContext(ctx)).ListByRole(role)
}
