package repository

import (
	"skillset_backend/internal/model"

	"gorm.io/gorm"
)

type SkillRepository struct {
	DB *gorm.DB
}

func NewSkillRepository(db *gorm.DB) *SkillRepository {
	return &SkillRepository{DB: db}
}

func (r *SkillRepository) WithTx(tx *gorm.DB) *SkillRepository {
	return &SkillRepository{DB: tx}
}

func (r *SkillRepository) Create(skill *model.Skill) error {
	return r.DB.Create(skill).Error
}

func (r *SkillRepository) FindByID(id uint) (*model.Skill, error) {
	var skill model.Skill
	if err := r.DB.First(&skill, id).Error; err != nil {
		return nil, err
	}
	return &skill, nil
}

func (r *SkillRepository) FindByIDs(ids []uint) (map[uint]*model.Skill, error) {
	out := make(map[uint]*model.Skill, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var skills []model.Skill
	if err := r.DB.Where("id IN ?", ids).Find(&skills).Error; err != nil {
		return nil, err
	}
	for i := range skills {
		out[skills[i].ID] = &skills[i]
	}
	return out, nil
}

func (r *SkillRepository) ListActive() ([]model.Skill, error) {
	var skills []model.Skill
	err := r.DB.Where("active = ?", true).Order("order_index ASC, id ASC").Find(&skills).Error
	return skills, err
}

func (r *SkillRepository) ListAll() ([]model.Skill, error) {
	var skills []model.Skill
	err := r.DB.Order("order_index ASC, id ASC").Find(&skills).Error
	return skills, err
}

// FindPrevious 查找 order_index 恰好为 order-1 的启用技能；多个时取ID最小者；不存在返回 nil
func (r *SkillRepository) FindPrevious(order int) (*model.Skill, error) {
	var skills []model.Skill
	err := r.DB.Where("active = ? AND order_index = ?", true, order-1).
		Order("id ASC").
		Limit(1).
		Find(&skills).Error
	if err != nil {
		return nil, err
	}
	if len(skills) == 0 {
		return nil, nil
	}
	return &skills[0], nil
}

// MinOrderIndex 返回启用技能中最小的顺序号；没有技能时 ok=false
func (r *SkillRepository) MinOrderIndex() (int, bool, error) {
	var min *int
	err := r.DB.Model(&model.Skill{}).Where("active = ?", true).Select("MIN(order_index)").Scan(&min).Error
	if err != nil || min == nil {
		return 0, false, err
	}
	return *min, true, nil
}

// DeleteCascade 删除技能及其全部从属数据，需在事务中调用
func (r *SkillRepository) DeleteCascade(skillID uint) error {
	attemptIDs := r.DB.Model(&model.Attempt{}).Select("id").Where("skill_id = ?", skillID)
	if err := r.DB.Where("attempt_id IN (?)", attemptIDs).Delete(&model.Report{}).Error; err != nil {
		return err
	}
	for _, m := range []interface{}{&model.Attempt{}, &model.StudentSkillStatus{}, &model.Question{}, &model.Remediation{}} {
		if err := r.DB.Where("skill_id = ?", skillID).Delete(m).Error; err != nil {
			return err
		}
	}
	res := r.DB.Delete(&model.Skill{}, skillID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
