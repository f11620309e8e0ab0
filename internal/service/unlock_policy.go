package service

import (
	"fmt"

	"skillset_backend/internal/model"
	"skillset_backend/internal/repository"

	"gorm.io/gorm"
)

// UnlockDecision 解锁判定结果；Allowed=false 时 Reason 给出阻塞的前置技能
type UnlockDecision struct {
	Allowed         bool   `json:"allowed"`
	Reason          string `json:"reason,omitempty"`
	PreviousSkillID uint   `json:"previousSkillId,omitempty"`
}

// UnlockPolicy 只读：判断教师能否为学生解锁某技能，不修改任何状态
type UnlockPolicy struct {
	SkillRepo       *repository.SkillRepository
	AttemptRepo     *repository.AttemptRepository
	RemediationRepo *repository.RemediationRepository
}

func NewUnlockPolicy(db *gorm.DB) *UnlockPolicy {
	return &UnlockPolicy{
		SkillRepo:       repository.NewSkillRepository(db),
		AttemptRepo:     repository.NewAttemptRepository(db),
		RemediationRepo: repository.NewRemediationRepository(db),
	}
}

func (p *UnlockPolicy) WithTx(tx *gorm.DB) *UnlockPolicy {
	return &UnlockPolicy{
		SkillRepo:       p.SkillRepo.WithTx(tx),
		AttemptRepo:     p.AttemptRepo.WithTx(tx),
		RemediationRepo: p.RemediationRepo.WithTx(tx),
	}
}

// CanUnlock 前置技能为 order_index-1 的启用技能：
// 没有前置直接放行；前置最近一次已提交考试及格放行；
// 不及格时需要该教师在考试结束之后上传过补救材料。
func (p *UnlockPolicy) CanUnlock(teacherID, studentID uint, skill *model.Skill) (UnlockDecision, error) {
	prev, err := p.SkillRepo.FindPrevious(skill.OrderIndex)
	if err != nil {
		return UnlockDecision{}, err
	}
	if prev == nil {
		return UnlockDecision{Allowed: true}, nil
	}

	name := prev.DisplayName(model.LangEN)
	decision := UnlockDecision{PreviousSkillID: prev.ID}

	last, err := p.AttemptRepo.LatestFinished(studentID, prev.ID)
	if err != nil {
		return UnlockDecision{}, err
	}
	if last == nil || last.EndedAt == nil {
		decision.Reason = fmt.Sprintf("prerequisite %q has no finished attempt", name)
		return decision, nil
	}
	if prev.Passed(last.Score) {
		decision.Allowed = true
		return decision, nil
	}

	rm, err := p.RemediationRepo.LatestFor(teacherID, studentID, prev.ID)
	if err != nil {
		return UnlockDecision{}, err
	}
	if rm != nil && rm.CreatedAt.After(*last.EndedAt) {
		decision.Allowed = true
		return decision, nil
	}

	decision.Reason = fmt.Sprintf("prerequisite %q not passed (score %d%%) and no remediation uploaded after the attempt", name, last.Score)
	return decision, nil
}
