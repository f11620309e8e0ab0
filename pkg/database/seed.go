package database

import (
	"errors"
	"log"

	"skillset_backend/internal/model"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type seedUser struct {
	user     model.User
	password string
}

// Seed 初始化演示数据（已存在则跳过），可重复执行
func Seed(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		chairman, err := ensureUser(tx, seedUser{
			user:     model.User{Username: "chairman", NameAr: "رئيس المدرسة", NameEn: "Chairman", Role: model.Chairman},
			password: "Chairman@123",
		})
		if err != nil {
			return err
		}
		teacher, err := ensureUser(tx, seedUser{
			user:     model.User{Username: "teacher1", NameAr: "المعلم الأول", NameEn: "Teacher One", Role: model.Teacher, Email: "teacher1@example.com"},
			password: "Teacher@123",
		})
		if err != nil {
			return err
		}
		number := "S1001"
		student, err := ensureUser(tx, seedUser{
			user: model.User{Username: "student_s1001", NameAr: "طالب تجريبي", NameEn: "Demo Student", Role: model.Student,
				StudentNumber: &number, TeacherID: &teacher.ID},
			password: "Student@123",
		})
		if err != nil {
			return err
		}

		var skill model.Skill
		err = tx.Order("id asc").First(&skill).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			skill = model.Skill{
				NameAr:        "مهارة القراءة",
				NameEn:        "Reading",
				DescriptionAr: "اختبار تجريبي لمهارة القراءة",
				OrderIndex:    1,
				PassThreshold: model.DefaultPassThreshold,
				TimeLimitMin:  model.DefaultTimeLimitMin,
				Active:        true,
			}
			if err := tx.Create(&skill).Error; err != nil {
				return err
			}
			questions := []model.Question{
				{
					SkillID:  skill.ID,
					Type:     model.QuestionSingleChoice,
					PromptAr: "اختر الإجابة الصحيحة: ٢ + ٢ = ؟",
					PromptEn: "Pick the right answer: 2 + 2 = ?",
					Options: datatypes.NewJSONType([]model.Choice{
						{ID: "a", TextAr: "3"}, {ID: "b", TextAr: "4"}, {ID: "c", TextAr: "5"},
					}),
					Correct:       datatypes.NewJSONType([]string{"b"}),
					Status:        model.QuestionApproved,
					CreatedByID:   chairman.ID,
					CreatedByRole: model.Chairman,
				},
				{
					SkillID:  skill.ID,
					Type:     model.QuestionCheckpointVideo,
					PromptAr: "شاهد الفيديو حتى الثانية 5 ثم أجب: ما لون الكلمة الظاهرة؟",
					PromptEn: "Watch until second 5, then answer: what colour is the word?",
					Options: datatypes.NewJSONType([]model.Choice{
						{ID: "a", TextAr: "أحمر", TextEn: "Red"}, {ID: "b", TextAr: "أزرق", TextEn: "Blue"},
					}),
					Correct:       datatypes.NewJSONType([]string{"a"}),
					Media:         datatypes.JSON(`{"video_url":"https://interactive-examples.mdn.mozilla.net/media/cc0-videos/flower.mp4"}`),
					Meta:          datatypes.JSON(`{"checkpoint_seconds":5}`),
					Status:        model.QuestionApproved,
					CreatedByID:   chairman.ID,
					CreatedByRole: model.Chairman,
				},
			}
			if err := tx.Create(&questions).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&model.StudentSkillStatus{}).
			Where("student_id = ? AND skill_id = ?", student.ID, skill.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			if err := tx.Create(&model.StudentSkillStatus{StudentID: student.ID, SkillID: skill.ID, Unlocked: true}).Error; err != nil {
				return err
			}
		}

		log.Println("Seed completed. chairman / Chairman@123, teacher1 / Teacher@123, student_s1001 / Student@123")
		return nil
	})
}

func ensureUser(tx *gorm.DB, su seedUser) (*model.User, error) {
	var existing model.User
	err := tx.Where("username = ?", su.user.Username).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(su.password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := su.user
	u.PasswordHash = string(hash)
	if err := tx.Create(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}
