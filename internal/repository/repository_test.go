package repository

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"skillset_backend/internal/model"
	"skillset_backend/internal/util"
	"skillset_backend/pkg/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenInMemory(fmt.Sprintf("repo_%d", dbSeq.Add(1)))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func createSkill(t *testing.T, db *gorm.DB, name string, order int, active bool) *model.Skill {
	t.Helper()
	s := &model.Skill{NameAr: name, NameEn: name, OrderIndex: order, PassThreshold: 60, TimeLimitMin: 10, Active: active}
	require.NoError(t, db.Create(s).Error)
	return s
}

func createUser(t *testing.T, db *gorm.DB, username string, role model.UserRole, teacherID *uint) *model.User {
	t.Helper()
	u := &model.User{Username: username, NameAr: username, Role: role, TeacherID: teacherID}
	require.NoError(t, db.Create(u).Error)
	return u
}

func TestAttemptUniquePerWeekAndSequence(t *testing.T) {
	db := openDB(t)
	repo := NewAttemptRepository(db)
	now := time.Date(2026, 2, 5, 9, 0, 0, 0, time.UTC)

	first := &model.Attempt{StudentID: 1, SkillID: 1, WeekKey: "2026-W06", Sequence: 1, StartedAt: now, Status: model.AttemptInProgress}
	require.NoError(t, repo.Create(first))

	dup := &model.Attempt{StudentID: 1, SkillID: 1, WeekKey: "2026-W06", Sequence: 1, StartedAt: now, Status: model.AttemptInProgress}
	err := repo.Create(dup)
	require.Error(t, err)
	assert.True(t, util.IsUniqueViolation(err))

	bonus := &model.Attempt{StudentID: 1, SkillID: 1, WeekKey: "2026-W06", Sequence: 2, StartedAt: now, Status: model.AttemptInProgress}
	require.NoError(t, repo.Create(bonus))

	next := &model.Attempt{StudentID: 1, SkillID: 1, WeekKey: "2026-W07", Sequence: 1, StartedAt: now, Status: model.AttemptInProgress}
	require.NoError(t, repo.Create(next))

	cur, err := repo.FindCurrent(1, 1, "2026-W06")
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, 2, cur.Sequence)

	none, err := repo.FindCurrent(1, 1, "2026-W10")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestFinalizeOnlyOnce(t *testing.T) {
	db := openDB(t)
	repo := NewAttemptRepository(db)
	now := time.Date(2026, 2, 5, 9, 0, 0, 0, time.UTC)

	a := &model.Attempt{StudentID: 1, SkillID: 1, WeekKey: "2026-W06", Sequence: 1, StartedAt: now, Status: model.AttemptInProgress}
	require.NoError(t, repo.Create(a))

	ended := now.Add(5 * time.Minute)
	a.Status = model.AttemptSubmitted
	a.Score = 75
	a.EndedAt = &ended
	a.ElapsedSeconds = 300
	ok, err := repo.Finalize(a)
	require.NoError(t, err)
	assert.True(t, ok)

	a.Score = 10
	ok, err = repo.Finalize(a)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.FindByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, 75, stored.Score)
	assert.Equal(t, model.AttemptSubmitted, stored.Status)

	latest, err := repo.LatestFinished(1, 1)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, a.ID, latest.ID)
}

func TestConsumeExtraAttemptOnce(t *testing.T) {
	db := openDB(t)
	repo := NewStatusRepository(db)

	require.NoError(t, repo.GrantExtraAttempt(1, 1, "2026-W06"))

	ok, err := repo.ConsumeExtraAttempt(1, 1, "2026-W07")
	require.NoError(t, err)
	assert.False(t, ok, "grant of another week is inert")

	ok, err = repo.ConsumeExtraAttempt(1, 1, "2026-W06")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ConsumeExtraAttempt(1, 1, "2026-W06")
	require.NoError(t, err)
	assert.False(t, ok)

	st, err := repo.Find(1, 1)
	require.NoError(t, err)
	assert.False(t, st.ExtraAttemptWeek.Present)
}

func TestSetUnlockedStampsFirstTimeOnly(t *testing.T) {
	db := openDB(t)
	repo := NewStatusRepository(db)
	t1 := time.Date(2026, 2, 5, 9, 0, 0, 0, time.UTC)

	st, err := repo.FindOrInit(3, 4)
	require.NoError(t, err)
	require.NoError(t, repo.SetUnlocked(st, true, t1))
	require.NotNil(t, st.UnlockedAt)

	require.NoError(t, repo.SetUnlocked(st, false, t1.Add(time.Hour)))
	require.NoError(t, repo.SetUnlocked(st, true, t1.Add(2*time.Hour)))

	stored, err := repo.Find(3, 4)
	require.NoError(t, err)
	assert.True(t, stored.Unlocked)
	require.NotNil(t, stored.UnlockedAt)
	assert.True(t, stored.UnlockedAt.Equal(t1))
}

func TestFindPreviousIgnoresInactive(t *testing.T) {
	db := openDB(t)
	repo := NewSkillRepository(db)

	createSkill(t, db, "retired", 1, false)
	a := createSkill(t, db, "A", 1, true)
	createSkill(t, db, "B", 2, true)

	prev, err := repo.FindPrevious(2)
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, a.ID, prev.ID)

	prev, err = repo.FindPrevious(1)
	require.NoError(t, err)
	assert.Nil(t, prev)

	min, ok, err := repo.MinOrderIndex()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, min)
}

func TestDeleteCascade(t *testing.T) {
	db := openDB(t)
	repo := NewSkillRepository(db)
	keep := createSkill(t, db, "keep", 1, true)
	gone := createSkill(t, db, "gone", 2, true)
	now := time.Now().UTC()

	for _, skillID := range []uint{keep.ID, gone.ID} {
		a := &model.Attempt{StudentID: 1, SkillID: skillID, WeekKey: "2026-W06", Sequence: 1, StartedAt: now, Status: model.AttemptSubmitted}
		require.NoError(t, db.Create(a).Error)
		require.NoError(t, db.Create(&model.Report{AttemptID: a.ID, TeacherID: 2, URL: "/uploads/x.pdf"}).Error)
		require.NoError(t, db.Create(&model.StudentSkillStatus{StudentID: 1, SkillID: skillID, Unlocked: true}).Error)
		require.NoError(t, db.Create(&model.Remediation{TeacherID: 2, StudentID: 1, SkillID: skillID, NotesEn: "x"}).Error)
		require.NoError(t, db.Create(&model.Question{SkillID: skillID, Type: model.QuestionFreeText, PromptAr: "q", Status: model.QuestionApproved}).Error)
	}

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return repo.WithTx(tx).DeleteCascade(gone.ID)
	}))

	count := func(m interface{}) int64 {
		var n int64
		require.NoError(t, db.Model(m).Count(&n).Error)
		return n
	}
	assert.EqualValues(t, 1, count(&model.Attempt{}))
	assert.EqualValues(t, 1, count(&model.Report{}))
	assert.EqualValues(t, 1, count(&model.StudentSkillStatus{}))
	assert.EqualValues(t, 1, count(&model.Remediation{}))
	assert.EqualValues(t, 1, count(&model.Question{}))
	assert.EqualValues(t, 1, count(&model.Skill{}))

	err := repo.DeleteCascade(gone.ID)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestSubmittedWithoutReportSkipsStudentsWithoutTeacher(t *testing.T) {
	db := openDB(t)
	repo := NewAttemptRepository(db)
	teacher := createUser(t, db, "t", model.Teacher, nil)
	owned := createUser(t, db, "s1", model.Student, &teacher.ID)
	orphan := createUser(t, db, "s2", model.Student, nil)
	now := time.Now().UTC()

	mk := func(studentID uint, status string) *model.Attempt {
		a := &model.Attempt{StudentID: studentID, SkillID: 1, WeekKey: "2026-W06", Sequence: 1, StartedAt: now, Status: status}
		require.NoError(t, repo.Create(a))
		return a
	}
	pending := mk(owned.ID, model.AttemptSubmitted)
	mk(orphan.ID, model.AttemptSubmitted)

	rows, err := repo.SubmittedWithoutReport(10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, pending.ID, rows[0].ID)

	require.NoError(t, NewReportRepository(db).Create(&model.Report{AttemptID: pending.ID, TeacherID: teacher.ID, URL: "u"}))
	rows, err = repo.SubmittedWithoutReport(10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestUniqueUsername(t *testing.T) {
	db := openDB(t)
	repo := NewUserRepository(db)
	require.NoError(t, repo.Create(&model.User{Username: "amal", NameAr: "أمل", Role: model.Student}))
	err := repo.Create(&model.User{Username: "amal", NameAr: "أمل", Role: model.Student})
	assert.True(t, util.IsUniqueViolation(err))
}
