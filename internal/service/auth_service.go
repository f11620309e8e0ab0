package service

import (
	"context"
	"errors"

	"skillset_backend/internal/config"
	"skillset_backend/internal/model"
	"skillset_backend/internal/repository"
	"skillset_backend/internal/util"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthService struct {
	UserRepo *repository.UserRepository
	Cfg      *config.Config
}

func NewAuthService(userRepo *repository.UserRepository, cfg *config.Config) *AuthService {
	return &AuthService{
		UserRepo: userRepo,
		Cfg:      cfg,
	}
}

type LoginResult struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.UserRepo.WithTx(s.UserRepo.DB.WithContext(ctx)).FindByUsername(username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, util.ErrInvalidCredentials
	}

	token, err := util.GenerateJWT(user, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, User: user}, nil
}

func (s *AuthService) CurrentUser(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.UserRepo.WithTx(s.UserRepo.DB.WithContext(ctx)).FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// SelectTeacher 学生选择负责教师，报告只会发给该教师
func (s *AuthService) SelectTeacher(ctx context.Context, studentID, teacherID uint) error {
	users := s.UserRepo.WithTx(s.UserRepo.DB.WithContext(ctx))
	teacher, err := users.FindByID(teacherID)
	if err != nil || teacher.Role != model.Teacher {
		return util.ErrTeacherNotFound
	}
	return users.UpdateTeacher(studentID, teacherID)
}

func (s *AuthService) ListTeachers(ctx context.Context) ([]model.User, error) {
	return s.UserRepo.WithTx(s.UserRepo.DB.WithContext(ctx)).ListByRole(model.Teacher)
}
