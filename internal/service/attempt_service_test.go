package service

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"skillset_backend/internal/model"
	"skillset_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestStartAttemptRequiresUnlockedSkill(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.attempts.StartAttempt(ctx, e.student.ID, e.skillB.ID)
	assert.Equal(t, ReasonSkillUnavailable, denied(err))

	_, err = e.attempts.StartAttempt(ctx, e.student.ID, 9999)
	assert.ErrorIs(t, err, util.ErrSkillNotFound)
}

func TestStartAttemptResumesThenDeniesAfterSubmit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.attempts.StartAttempt(ctx, e.student.ID, e.skillA.ID)
	require.NoError(t, err)
	assert.False(t, first.Resumed)
	assert.Equal(t, "2026-W06", first.Attempt.WeekKey)
	assert.Equal(t, model.AttemptInProgress, first.Attempt.Status)

	again, err := e.attempts.StartAttempt(ctx, e.student.ID, e.skillA.ID)
	require.NoError(t, err)
	assert.True(t, again.Resumed)
	assert.Equal(t, first.Attempt.ID, again.Attempt.ID)

	_, err = e.attempts.SubmitAttempt(ctx, e.student.ID, first.Attempt.ID, e.answersFor(t, e.skillA.ID, true))
	require.NoError(t, err)

	_, err = e.attempts.StartAttempt(ctx, e.student.ID, e.skillA.ID)
	assert.Equal(t, ReasonAlreadyAttempted, denied(err))
	assert.EqualValues(t, 1, e.countAttempts(t, e.student.ID, e.skillA.ID))

	// 下一周重新获得配额
	e.clock.Advance(7 * 24 * time.Hour)
	next, err := e.attempts.StartAttempt(ctx, e.student.ID, e.skillA.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-W07", next.Attempt.WeekKey)
	assert.Equal(t, 1, next.Attempt.Sequence)
}

func TestExtraAttemptGrantAllowsExactlyOneBonus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.attempts.StartAttempt(ctx, e.student.ID, e.skillA.ID)
	require.NoError(t, err)
	_, err = e.attempts.SubmitAttempt(ctx, e.student.ID, first.Attempt.ID, e.answersFor(t, e.skillA.ID))
	require.NoError(t, err)

	week, err := e.progression.GrantExtraAttempt(ctx, e.teacher.ID, e.student.ID, e.skillA.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-W06", week)

	bonus, err := e.attempts.StartAttempt(ctx, e.student.ID, e.skillA.ID)
	require.NoError(t, err)
	assert.True(t, bonus.Bonus)
	assert.Equal(t, 2, bonus.Attempt.Sequence)

	st, err := e.attempts.StatusRepo.Find(e.student.ID, e.skillA.ID)
	require.NoError(t, err)
	assert.False(t, st.ExtraAttemptWeek.Present)

	_, err = e.attempts.SubmitAttempt(ctx, e.student.ID, bonus.Attempt.ID, e.answersFor(t, e.skillA.ID, true, true))
	require.NoError(t, err)

	_, err = e.attempts.StartAttempt(ctx, e.student.ID, e.skillA.ID)
	assert.Equal(t, ReasonAlreadyAttempted, denied(err))
	assert.EqualValues(t, 2, e.countAttempts(t, e.student.ID, e.skillA.ID))
}

func TestStaleGrantIsInert(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.progression.GrantExtraAttempt(ctx, e.teacher.ID, e.student.ID, e.skillA.ID)
	require.NoError(t, err)

	e.clock.Advance(7 * 24 * time.Hour)
	first, err := e.attempts.StartAttempt(ctx, e.student.ID, e.skillA.ID)
	require.NoError(t, err)
	assert.False(t, first.Bonus)
	_, err = e.attempts.SubmitAttempt(ctx, e.student.ID, first.Attempt.ID, e.answersFor(t, e.skillA.ID))
	require.NoError(t, err)

	_, err = e.attempts.StartAttempt(ctx, e.student.ID, e.skillA.ID)
	assert.Equal(t, ReasonAlreadyAttempted, denied(err))
}

func TestConcurrentStartsCreateSingleAttempt(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[uint]bool{}
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.attempts.StartAttempt(ctx, e.student.ID, e.skillA.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				_, isDenied := util.IsPolicyDenied(err)
				assert.True(t, isDenied, "unexpected error: %v", err)
				return
			}
			ids[res.Attempt.ID] = true
			if !res.Resumed {
				created++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)
	assert.EqualValues(t, 1, e.countAttempts(t, e.student.ID, e.skillA.ID))
}

func TestStartAttemptTranslatesUniqueViolation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	week := util.WeekKey(e.clock.Now())

	// 模拟另一请求在本次查询之后、插入之前抢先写入同一周的考试
	var injected atomic.Bool
	require.NoError(t, e.db.Callback().Create().Before("gorm:create").Register("test:concurrent_start", func(tx *gorm.DB) {
		if tx.Statement.Table != "attempts" || !injected.CompareAndSwap(false, true) {
			return
		}
		now := e.clock.Now()
		tx.Session(&gorm.Session{NewDB: true}).Exec(
			"INSERT INTO attempts (student_id, skill_id, week_key, sequence, started_at, status, score, elapsed_seconds, created_at, updated_at) VALUES (?, ?, ?, 1, ?, ?, 0, 0, ?, ?)",
			e.student.ID, e.skillA.ID, week, now, model.AttemptInProgress, now, now)
	}))

	_, err := e.attempts.StartAttempt(ctx, e.student.ID, e.skillA.ID)
	require.Error(t, err)
	assert.Equal(t, ReasonAlreadyAttempted, denied(err))
	assert.True(t, injected.Load())
	// 整个事务回滚，插入的冲突行也一并撤销
	assert.EqualValues(t, 0, e.countAttempts(t, e.student.ID, e.skillA.ID))
}

type heldLock struct{}

func (heldLock) Acquire(context.Context, uint, uint, string) (func(), bool, error) {
	return func() {}, false, nil
}

func TestHeldStartLockResumesInProgressAttempt(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.attempts.StartAttempt(ctx, e.student.ID, e.skillA.ID)
	require.NoError(t, err)

	e.attempts.Lock = heldLock{}
	again, err := e.attempts.StartAttempt(ctx, e.student.ID, e.skillA.ID)
	require.NoError(t, err)
	assert.True(t, again.Resumed)
	assert.Equal(t, first.Attempt.ID, again.Attempt.ID)

	// 没有进行中的考试时仍按并发开考拒绝
	_, err = e.attempts.StartAttempt(ctx, e.orphan.ID, e.skillA.ID)
	assert.Equal(t, ReasonStartInProgress, denied(err))

	_, err = e.attempts.StartAttempt(ctx, e.student.ID, e.skillB.ID)
	assert.Equal(t, ReasonStartInProgress, denied(err))
}

func TestSubmitIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	start, err := e.attempts.StartAttempt(ctx, e.student.ID, e.skillA.ID)
	require.NoError(t, err)

	res, err := e.attempts.SubmitAttempt(ctx, e.student.ID, start.Attempt.ID, e.answersFor(t, e.skillA.ID, true, true))
	require.NoError(t, err)
	assert.Equal(t, 50, res.Attempt.Score)

	_, err = e.attempts.SubmitAttempt(ctx, e.student.ID, start.Attempt.ID, e.answersFor(t, e.skillA.ID, true, true, true, true))
	assert.ErrorIs(t, err, util.ErrAttemptSubmitted)

	stored, err := e.attempts.AttemptRepo.FindByID(start.Attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, stored.Score)
	assert.Equal(t, model.AttemptSubmitted, stored.Status)
}

func TestSubmitClampsElapsed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	start, err := e.attempts.StartAttempt(ctx, e.student.ID, e.skillA.ID)
	require.NoError(t, err)

	e.clock.Advance(700 * time.Second)
	res, err := e.attempts.SubmitAttempt(ctx, e.student.ID, start.Attempt.ID, e.answersFor(t, e.skillA.ID))
	require.NoError(t, err)
	assert.Equal(t, 600, res.Attempt.ElapsedSeconds)

	stored, err := e.attempts.AttemptRepo.FindByID(start.Attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, 600, stored.ElapsedSeconds)
	require.NotNil(t, stored.EndedAt)
	assert.True(t, stored.EndedAt.Equal(baseTime.Add(700*time.Second)))
}

func TestSubmitWithinGraceKeepsElapsed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	start, err := e.attempts.StartAttempt(ctx, e.student.ID, e.skillA.ID)
	require.NoError(t, err)

	e.clock.Advance(603 * time.Second)
	res, err := e.attempts.SubmitAttempt(ctx, e.student.ID, start.Attempt.ID, e.answersFor(t, e.skillA.ID))
	require.NoError(t, err)
	assert.Equal(t, 603, res.Attempt.ElapsedSeconds)
}

func TestSubmitPassMarksCompletedAndPublishesReport(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	start, err := e.attempts.StartAttempt(ctx, e.student.ID, e.skillA.ID)
	require.NoError(t, err)
	e.clock.Advance(2 * time.Minute)

	res, err := e.attempts.SubmitAttempt(ctx, e.student.ID, start.Attempt.ID, e.answersFor(t, e.skillA.ID, true, true, true, true))
	require.NoError(t, err)
	assert.Equal(t, 100, res.Attempt.Score)
	assert.True(t, res.Passed)
	assert.Equal(t, 4, res.Total)
	require.NotNil(t, res.Report)
	assert.Equal(t, e.teacher.ID, res.Report.TeacherID)

	st, err := e.attempts.StatusRepo.Find(e.student.ID, e.skillA.ID)
	require.NoError(t, err)
	assert.True(t, st.Completed)

	// 及格不会自动解锁下一个技能
	_, err = e.attempts.StatusRepo.Find(e.student.ID, e.skillB.ID)
	assert.Error(t, err)

	assert.Equal(t, ReportTitle, e.renderer.title)
	require.Len(t, e.notifier.sent, 1)
	assert.Equal(t, "teacher1@example.com", e.notifier.sent[0].to)
	assert.Equal(t, ReportSubject, e.notifier.sent[0].subject)
	require.NotNil(t, e.notifier.sent[0].attachment)
	assert.Equal(t, util.MimePDF, e.notifier.sent[0].attachment.ContentType)
}

func TestSubmitFailDoesNotMarkCompleted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	start, err := e.attempts.StartAttempt(ctx, e.student.ID, e.skillA.ID)
	require.NoError(t, err)
	res, err := e.attempts.SubmitAttempt(ctx, e.student.ID, start.Attempt.ID, e.answersFor(t, e.skillA.ID, true))
	require.NoError(t, err)
	assert.Equal(t, 25, res.Attempt.Score)
	assert.False(t, res.Passed)

	st, err := e.attempts.StatusRepo.Find(e.student.ID, e.skillA.ID)
	require.NoError(t, err)
	assert.False(t, st.Completed)
}

func TestSubmitSurvivesRendererFailure(t *testing.T) {
	e := newEnv(t)
	e.renderer.err = errBoom
	ctx := context.Background()

	start, err := e.attempts.StartAttempt(ctx, e.student.ID, e.skillA.ID)
	require.NoError(t, err)
	res, err := e.attempts.SubmitAttempt(ctx, e.student.ID, start.Attempt.ID, e.answersFor(t, e.skillA.ID, true, true, true))
	require.NoError(t, err)
	assert.Nil(t, res.Report)

	stored, err := e.attempts.AttemptRepo.FindByID(start.Attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptSubmitted, stored.Status)
	assert.Equal(t, 75, stored.Score)

	exists, err := e.reports.ReportRepo.ExistsForAttempt(start.Attempt.ID)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, e.notifier.sent)
}

func TestSubmitSurvivesRendererTimeout(t *testing.T) {
	e := newEnv(t)
	e.renderer.delay = 5 * time.Second
	ctx := context.Background()

	start, err := e.attempts.StartAttempt(ctx, e.student.ID, e.skillA.ID)
	require.NoError(t, err)

	began := time.Now()
	res, err := e.attempts.SubmitAttempt(ctx, e.student.ID, start.Attempt.ID, e.answersFor(t, e.skillA.ID))
	require.NoError(t, err)
	assert.Nil(t, res.Report)
	assert.Less(t, time.Since(began), 4*time.Second)
}

func TestSubmitSurvivesNotifierFailure(t *testing.T) {
	e := newEnv(t)
	e.notifier.ok = false
	ctx := context.Background()

	start, err := e.attempts.StartAttempt(ctx, e.student.ID, e.skillA.ID)
	require.NoError(t, err)
	res, err := e.attempts.SubmitAttempt(ctx, e.student.ID, start.Attempt.ID, e.answersFor(t, e.skillA.ID))
	require.NoError(t, err)
	assert.NotNil(t, res.Report)
	assert.Len(t, e.notifier.sent, 1)
}

func TestSubmitWithoutTeacherSkipsReport(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	start, err := e.attempts.StartAttempt(ctx, e.orphan.ID, e.skillA.ID)
	require.NoError(t, err)
	res, err := e.attempts.SubmitAttempt(ctx, e.orphan.ID, start.Attempt.ID, e.answersFor(t, e.skillA.ID, true))
	require.NoError(t, err)
	assert.Nil(t, res.Report)
	assert.Equal(t, 0, e.renderer.calls)
}

func TestSubmitRejectsOtherStudent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	start, err := e.attempts.StartAttempt(ctx, e.student.ID, e.skillA.ID)
	require.NoError(t, err)

	_, err = e.attempts.SubmitAttempt(ctx, e.orphan.ID, start.Attempt.ID, nil)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	_, err = e.attempts.SubmitAttempt(ctx, e.student.ID, 424242, nil)
	assert.ErrorIs(t, err, util.ErrAttemptNotFound)
}

func TestSubmitIgnoresDraftQuestions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	var draft model.Question
	require.NoError(t, e.db.Where("skill_id = ? AND status = ?", e.skillA.ID, model.QuestionDraft).First(&draft).Error)

	start, err := e.attempts.StartAttempt(ctx, e.student.ID, e.skillA.ID)
	require.NoError(t, err)
	answers := e.answersFor(t, e.skillA.ID, true, true, true, true)
	answers[itoa(draft.ID)] = []string{"a"}

	res, err := e.attempts.SubmitAttempt(ctx, e.student.ID, start.Attempt.ID, answers)
	require.NoError(t, err)
	assert.Equal(t, 100, res.Attempt.Score)
	assert.Equal(t, 4, res.Total)
	_, kept := res.Attempt.Answers.Data()[itoa(draft.ID)]
	assert.False(t, kept)
}

func TestSubmitWithNoLiveQuestionsScoresZero(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.setUnlocked(t, e.student.ID, e.skillB.ID, true)

	start, err := e.attempts.StartAttempt(ctx, e.student.ID, e.skillB.ID)
	require.NoError(t, err)
	res, err := e.attempts.SubmitAttempt(ctx, e.student.ID, start.Attempt.ID, model.AnswerSet{"1": {"b"}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Attempt.Score)
}

func TestResumeAttempt(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	start, err := e.attempts.StartAttempt(ctx, e.student.ID, e.skillA.ID)
	require.NoError(t, err)

	e.clock.Advance(4 * time.Minute)
	live, err := e.attempts.ResumeAttempt(ctx, e.student.ID, start.Attempt.ID)
	require.NoError(t, err)
	assert.Len(t, live.Questions, 4)
	assert.Equal(t, 360, live.RemainingSeconds)
	for _, q := range live.Questions {
		assert.Empty(t, q.CorrectAnswers())
	}

	_, err = e.attempts.ResumeAttempt(ctx, e.orphan.ID, start.Attempt.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	_, err = e.attempts.SubmitAttempt(ctx, e.student.ID, start.Attempt.ID, nil)
	require.NoError(t, err)
	_, err = e.attempts.ResumeAttempt(ctx, e.student.ID, start.Attempt.ID)
	assert.ErrorIs(t, err, util.ErrAttemptSubmitted)

	view, err := e.attempts.AttemptResult(ctx, e.student.ID, start.Attempt.ID)
	require.NoError(t, err)
	assert.False(t, view.Passed)
	assert.True(t, view.HasReport)
}

func TestWeakestSkillsOrdering(t *testing.T) {
	e := newEnv(t)
	skillC := e.mustSkill(t, "C", 3)
	skillD := e.mustSkill(t, "D", 4)

	scores := map[uint]int{e.skillA.ID: 90, e.skillB.ID: 40, skillC.ID: 70, skillD.ID: 20}
	for skillID, score := range scores {
		ended := baseTime
		a := &model.Attempt{
			StudentID: e.student.ID,
			SkillID:   skillID,
			WeekKey:   "2026-W05",
			Sequence:  1,
			StartedAt: baseTime,
			EndedAt:   &ended,
			Score:     score,
			Status:    model.AttemptSubmitted,
		}
		require.NoError(t, e.db.Create(a).Error)
	}

	weak, err := LoadWeakest(e.attempts.AttemptRepo, e.attempts.SkillRepo, e.student.ID, 3, model.LangEN)
	require.NoError(t, err)
	require.Len(t, weak, 3)
	assert.Equal(t, skillD.ID, weak[0].SkillID)
	assert.Equal(t, e.skillB.ID, weak[1].SkillID)
	assert.Equal(t, skillC.ID, weak[2].SkillID)
	assert.Equal(t, "D", weak[0].Name)
	assert.InDelta(t, 20.0, weak[0].Average, 0.001)
}

func TestWeakestSkillsTieBreakBySkillID(t *testing.T) {
	e := newEnv(t)
	for _, skillID := range []uint{e.skillB.ID, e.skillA.ID} {
		ended := baseTime
		require.NoError(t, e.db.Create(&model.Attempt{
			StudentID: e.student.ID, SkillID: skillID, WeekKey: "2026-W05", Sequence: 1,
			StartedAt: baseTime, EndedAt: &ended, Score: 50, Status: model.AttemptSubmitted,
		}).Error)
	}
	weak, err := LoadWeakest(e.attempts.AttemptRepo, e.attempts.SkillRepo, e.student.ID, 3, model.LangEN)
	require.NoError(t, err)
	require.Len(t, weak, 2)
	assert.Equal(t, e.skillA.ID, weak[0].SkillID)
}

func TestDashboard(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	d, err := e.attempts.Dashboard(ctx, e.student.ID)
	require.NoError(t, err)
	require.Len(t, d.Skills, 1)
	assert.True(t, d.Skills[0].CanStart)

	start, err := e.attempts.StartAttempt(ctx, e.student.ID, e.skillA.ID)
	require.NoError(t, err)
	d, err = e.attempts.Dashboard(ctx, e.student.ID)
	require.NoError(t, err)
	require.NotNil(t, d.Skills[0].CurrentAttempt)
	assert.Equal(t, start.Attempt.ID, *d.Skills[0].CurrentAttempt)

	_, err = e.attempts.SubmitAttempt(ctx, e.student.ID, start.Attempt.ID, nil)
	require.NoError(t, err)
	d, err = e.attempts.Dashboard(ctx, e.student.ID)
	require.NoError(t, err)
	assert.False(t, d.Skills[0].CanStart)
	assert.Len(t, d.Attempts, 1)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
