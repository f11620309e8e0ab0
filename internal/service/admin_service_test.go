package service

import (
	"context"
	"errors"
	"testing"

	"skillset_backend/internal/model"
	"skillset_backend/internal/util"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
)

func TestCreateSkillProvisionsLockedStatuses(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	skill, err := e.admin.CreateSkill(ctx, CreateSkillRequest{NameAr: "Listening", OrderIndex: 3})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultPassThreshold, skill.PassThreshold)
	assert.Equal(t, model.DefaultTimeLimitMin, skill.TimeLimitMin)
	assert.True(t, skill.Active)

	for _, studentID := range []uint{e.student.ID, e.orphan.ID} {
		st, err := e.admin.StatusRepo.Find(studentID, skill.ID)
		require.NoError(t, err)
		assert.False(t, st.Unlocked)
	}

	threshold := func(v int) *int { return &v }
	_, err = e.admin.CreateSkill(ctx, CreateSkillRequest{NameAr: "Speaking", OrderIndex: 1, PassThreshold: threshold(120)})
	var verrs validator.ValidationErrors
	assert.True(t, errors.As(err, &verrs))

	// 显式 0 不会被静默替换为默认值
	_, err = e.admin.CreateSkill(ctx, CreateSkillRequest{NameAr: "Speaking", OrderIndex: 1, PassThreshold: threshold(0)})
	assert.True(t, errors.As(err, &verrs))

	strict, err := e.admin.CreateSkill(ctx, CreateSkillRequest{NameAr: "Grammar", OrderIndex: 4, PassThreshold: threshold(75)})
	require.NoError(t, err)
	assert.Equal(t, 75, strict.PassThreshold)
	assert.False(t, strict.Passed(74))
}

func TestCreateStudentUnlocksFirstSkill(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	u, err := e.admin.CreateUser(ctx, CreateUserRequest{
		Username:      "student3",
		Password:      "secret123",
		NameAr:        "Student Three",
		Role:          model.Student,
		StudentNumber: "S1003",
		TeacherID:     &e.teacher.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, u.StudentNumber)
	assert.Equal(t, "S1003", *u.StudentNumber)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("secret123")))

	stA, err := e.admin.StatusRepo.Find(u.ID, e.skillA.ID)
	require.NoError(t, err)
	assert.True(t, stA.Unlocked)
	stB, err := e.admin.StatusRepo.Find(u.ID, e.skillB.ID)
	require.NoError(t, err)
	assert.False(t, stB.Unlocked)

	_, err = e.admin.CreateUser(ctx, CreateUserRequest{Username: "student3", Password: "secret123", NameAr: "Dup", Role: model.Student})
	assert.ErrorIs(t, err, util.ErrUsernameTaken)

	_, err = e.admin.CreateUser(ctx, CreateUserRequest{Username: "student4", Password: "secret123", NameAr: "X", Role: model.Student, TeacherID: &e.student.ID})
	assert.ErrorIs(t, err, util.ErrTeacherNotFound)
}

func TestQuestionStartsAsDraftUntilApproved(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	q, err := e.admin.AddQuestion(ctx, e.teacher.ID, model.Teacher, AddQuestionRequest{
		SkillID:  e.skillB.ID,
		Type:     model.QuestionSingleChoice,
		PromptAr: "2+2?",
		Options:  []ChoiceInput{{ID: "a", TextAr: "3"}, {ID: "b", TextAr: "4"}},
		Correct:  []string{"b"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.QuestionDraft, q.Status)

	live, err := e.attempts.LiveQuestions(e.skillB.ID)
	require.NoError(t, err)
	assert.Empty(t, live)

	approved, err := e.admin.ApproveQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QuestionApproved, approved.Status)

	live, err = e.attempts.LiveQuestions(e.skillB.ID)
	require.NoError(t, err)
	assert.Len(t, live, 1)

	_, err = e.admin.ApproveQuestion(ctx, 99999)
	assert.ErrorIs(t, err, util.ErrQuestionNotFound)
}

func TestCheckApprovable(t *testing.T) {
	opts := datatypes.NewJSONType([]model.Choice{{ID: "a"}, {ID: "b"}})
	tests := []struct {
		name string
		q    model.Question
		ok   bool
	}{
		{"single ok", model.Question{Type: model.QuestionSingleChoice, PromptAr: "p", Options: opts, Correct: datatypes.NewJSONType([]string{"a"})}, true},
		{"single two answers", model.Question{Type: model.QuestionSingleChoice, PromptAr: "p", Options: opts, Correct: datatypes.NewJSONType([]string{"a", "b"})}, false},
		{"answer not an option", model.Question{Type: model.QuestionSingleChoice, PromptAr: "p", Options: opts, Correct: datatypes.NewJSONType([]string{"z"})}, false},
		{"one option", model.Question{Type: model.QuestionTrueFalse, PromptAr: "p", Options: datatypes.NewJSONType([]model.Choice{{ID: "a"}}), Correct: datatypes.NewJSONType([]string{"a"})}, false},
		{"multi ok", model.Question{Type: model.QuestionMultiChoice, PromptAr: "p", Options: opts, Correct: datatypes.NewJSONType([]string{"a", "b"})}, true},
		{"text ok", model.Question{Type: model.QuestionFreeText, PromptAr: "p", Correct: datatypes.NewJSONType([]string{"42"})}, true},
		{"text without answer", model.Question{Type: model.QuestionFreeText, PromptAr: "p"}, false},
		{"empty prompt", model.Question{Type: model.QuestionFreeText, Correct: datatypes.NewJSONType([]string{"42"})}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckApprovable(&tt.q)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, util.ErrQuestionNotApprovable)
			}
		})
	}
}

func TestDeleteSkillCascades(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a := e.finishAttempt(t, e.student.ID, e.skillA.ID, true, true, true)
	e.addRemediation(t, e.teacher.ID, e.student.ID, e.skillA.ID, baseTime)

	require.NoError(t, e.admin.DeleteSkill(ctx, e.skillA.ID))

	for _, m := range []interface{}{&model.Question{}, &model.StudentSkillStatus{}, &model.Attempt{}, &model.Remediation{}} {
		var n int64
		require.NoError(t, e.db.Model(m).Where("skill_id = ?", e.skillA.ID).Count(&n).Error)
		assert.Zero(t, n)
	}
	var reports int64
	require.NoError(t, e.db.Model(&model.Report{}).Where("attempt_id = ?", a.ID).Count(&reports).Error)
	assert.Zero(t, reports)

	assert.ErrorIs(t, e.admin.DeleteSkill(ctx, e.skillA.ID), util.ErrSkillNotFound)
}

func TestListUsersRejectsUnknownRole(t *testing.T) {
	e := newEnv(t)
	_, err := e.admin.ListUsers(context.Background(), "janitor")
	assert.ErrorIs(t, err, util.ErrInvalidRole)

	teachers, err := e.admin.ListUsers(context.Background(), model.Teacher)
	require.NoError(t, err)
	assert.Len(t, teachers, 2)
}
