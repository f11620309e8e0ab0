package repository

import (
	"skillset_backend/internal/model"

	"gorm.io/gorm"
)

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

// WithTx 返回绑定到事务的仓库副本
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{DB: tx}
}

func (r *UserRepository) Create(user *model.User) error {
	return r.DB.Create(user).Error
}

func (r *UserRepository) FindByID(id uint) (*model.User, error) {
	var user model.User
	if err := r.DB.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByUsername(username string) (*model.User, error) {
	var user model.User
	if err := r.DB.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) ListByRole(role model.UserRole) ([]model.User, error) {
	var users []model.User
	err := r.DB.Where("role = ?", role).Order("id ASC").Find(&users).Error
	return users, err
}

// ListStudentIDs 返回全部学生ID，用于新技能的状态初始化
func (r *UserRepository) ListStudentIDs() ([]uint, error) {
	var ids []uint
	err := r.DB.Model(&model.User{}).Where("role = ?", model.Student).Order("id ASC").Pluck("id", &ids).Error
	return ids, err
}

func (r *UserRepository) ListStudentsByTeacher(teacherID uint) ([]model.User, error) {
	var users []model.User
	err := r.DB.Where("role = ? AND teacher_id = ?", model.Student, teacherID).
		Order("name_ar ASC, id ASC").
		Find(&users).Error
	return users, err
}

func (r *UserRepository) UpdateTeacher(studentID, teacherID uint) error {
	return r.DB.Model(&model.User{}).
		Where("id = ? AND role = ?", studentID, model.Student).
		Update("teacher_id", teacherID).Error
}
