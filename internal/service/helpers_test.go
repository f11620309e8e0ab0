package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"skillset_backend/internal/config"
	"skillset_backend/internal/model"
	"skillset_backend/internal/util"
	"skillset_backend/pkg/database"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := fmt.Sprintf("svc_%d_%s", dbSeq.Add(1), strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
	db, err := database.OpenInMemory(name)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

type fakeRenderer struct {
	mu    sync.Mutex
	err   error
	delay time.Duration
	calls int
	title string
	lines []string
}

func (r *fakeRenderer) Render(ctx context.Context, title string, lines []string) (*Artifact, error) {
	r.mu.Lock()
	r.calls++
	n := r.calls
	r.title = title
	r.lines = lines
	err := r.err
	delay := r.delay
	r.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("reports/fake-%d.pdf", n)
	return &Artifact{Key: key, URL: "/uploads/" + key, Data: []byte("%PDF-fake")}, nil
}

type delivery struct {
	to, subject, body string
	attachment        *Attachment
}

type fakeNotifier struct {
	mu   sync.Mutex
	ok   bool
	sent []delivery
}

func (n *fakeNotifier) Deliver(ctx context.Context, to, subject, body string, attachment *Attachment) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, delivery{to, subject, body, attachment})
	return n.ok
}

// env 一套共享同一数据库和时钟的服务
type env struct {
	db       *gorm.DB
	clock    *util.FixedClock
	settings *Settings
	storage  *StorageService
	renderer *fakeRenderer
	notifier *fakeNotifier

	attempts    *AttemptService
	reports     *ReportService
	progression *ProgressionService
	admin       *AdminService

	teacher, otherTeacher, student, orphan *model.User
	skillA, skillB                         *model.Skill
}

// 2026-02-05 是 ISO 2026-W06 的星期四
var baseTime = time.Date(2026, 2, 5, 9, 0, 0, 0, time.UTC)

func newEnv(t *testing.T) *env {
	t.Helper()
	db := openTestDB(t)
	e := &env{
		db:       db,
		clock:    &util.FixedClock{T: baseTime},
		renderer: &fakeRenderer{},
		notifier: &fakeNotifier{ok: true},
	}
	cfg := config.DefaultAssessmentConfig()
	cfg.ReportLang = "en"
	cfg.CollaboratorTimeoutSec = 1
	e.settings = NewSettings(cfg)
	e.storage = &StorageService{Provider: &LocalStorageProvider{Config: &config.StorageConfig{LocalPath: t.TempDir()}}}

	e.reports = NewReportService(db, e.storage, e.renderer, e.notifier, e.settings)
	e.attempts = NewAttemptService(db, e.reports, nil, e.settings, e.clock)
	e.progression = NewProgressionService(db, e.storage, e.settings, e.clock)
	e.admin = NewAdminService(db, e.clock)

	e.teacher = e.mustUser(t, "teacher1", model.Teacher, nil, "teacher1@example.com")
	e.otherTeacher = e.mustUser(t, "teacher2", model.Teacher, nil, "")
	e.student = e.mustUser(t, "student1", model.Student, &e.teacher.ID, "")
	e.orphan = e.mustUser(t, "student2", model.Student, nil, "")

	e.skillA = e.mustSkill(t, "Reading", 1)
	e.skillB = e.mustSkill(t, "Writing", 2)
	e.seedScoringQuestions(t, e.skillA.ID)

	e.setUnlocked(t, e.student.ID, e.skillA.ID, true)
	e.setUnlocked(t, e.orphan.ID, e.skillA.ID, true)
	return e
}

func (e *env) mustUser(t *testing.T, username string, role model.UserRole, teacherID *uint, email string) *model.User {
	t.Helper()
	u := &model.User{Username: username, NameAr: username, NameEn: username, Role: role, TeacherID: teacherID, Email: email}
	require.NoError(t, e.db.Create(u).Error)
	return u
}

func (e *env) mustSkill(t *testing.T, name string, order int) *model.Skill {
	t.Helper()
	s := &model.Skill{NameAr: name, NameEn: name, OrderIndex: order, PassThreshold: 60, TimeLimitMin: 10, Active: true}
	require.NoError(t, e.db.Create(s).Error)
	return s
}

func (e *env) mustQuestion(t *testing.T, skillID uint, typ model.QuestionType, status string, correct ...string) *model.Question {
	t.Helper()
	q := &model.Question{
		SkillID:  skillID,
		Type:     typ,
		PromptAr: fmt.Sprintf("%s question", typ),
		PromptEn: fmt.Sprintf("%s question", typ),
		Options: datatypes.NewJSONType([]model.Choice{
			{ID: "a", TextAr: "A"}, {ID: "b", TextAr: "B"}, {ID: "c", TextAr: "C"},
		}),
		Correct: datatypes.NewJSONType(correct),
		Status:  status,
	}
	require.NoError(t, e.db.Create(q).Error)
	return q
}

// seedScoringQuestions 两道单选(b)，一道多选{a,c}，一道填空(42)，外加一道草稿
func (e *env) seedScoringQuestions(t *testing.T, skillID uint) {
	e.mustQuestion(t, skillID, model.QuestionSingleChoice, model.QuestionApproved, "b")
	e.mustQuestion(t, skillID, model.QuestionSingleChoice, model.QuestionApproved, "b")
	e.mustQuestion(t, skillID, model.QuestionMultiChoice, model.QuestionApproved, "a", "c")
	e.mustQuestion(t, skillID, model.QuestionFreeText, model.QuestionApproved, "42")
	e.mustQuestion(t, skillID, model.QuestionSingleChoice, model.QuestionDraft, "a")
}

func (e *env) setUnlocked(t *testing.T, studentID, skillID uint, unlocked bool) {
	t.Helper()
	now := e.clock.Now()
	st := &model.StudentSkillStatus{StudentID: studentID, SkillID: skillID, Unlocked: unlocked, UnlockedAt: &now}
	require.NoError(t, e.db.Create(st).Error)
}

// answersFor 按 ID 顺序生成作答；correct 为 true 的题给出正确答案
func (e *env) answersFor(t *testing.T, skillID uint, correct ...bool) model.AnswerSet {
	t.Helper()
	var qs []model.Question
	require.NoError(t, e.db.Where("skill_id = ? AND status = ?", skillID, model.QuestionApproved).Order("id ASC").Find(&qs).Error)
	out := model.AnswerSet{}
	for i, q := range qs {
		key := fmt.Sprintf("%d", q.ID)
		if i < len(correct) && correct[i] {
			out[key] = q.CorrectAnswers()
		} else {
			out[key] = []string{"zzz"}
		}
	}
	return out
}

func (e *env) countAttempts(t *testing.T, studentID, skillID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.Attempt{}).Where("student_id = ? AND skill_id = ?", studentID, skillID).Count(&n).Error)
	return n
}

func denied(err error) string {
	reason, _ := util.IsPolicyDenied(err)
	return reason
}

var errBoom = errors.New("boom")
