package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"skillset_backend/internal/model"
	"skillset_backend/internal/repository"
	"skillset_backend/internal/util"
	"skillset_backend/pkg/logger"
	"skillset_backend/pkg/monitoring"
	"skillset_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ReasonSkillUnavailable = "skill not available"
	ReasonAlreadyAttempted = "already attempted this week"
	ReasonStartInProgress  = "another start request is in progress, retry shortly"
)

type AttemptService struct {
	DB              *gorm.DB
	UserRepo        *repository.UserRepository
	SkillRepo       *repository.SkillRepository
	QuestionRepo    *repository.QuestionRepository
	StatusRepo      *repository.StatusRepository
	AttemptRepo     *repository.AttemptRepository
	RemediationRepo *repository.RemediationRepository
	Reports         *ReportService
	Lock            StartLocker
	Settings        *Settings
	Clock           util.Clock
}

func NewAttemptService(db *gorm.DB, reports *ReportService, lock *AttemptLock, settings *Settings, clock util.Clock) *AttemptService {
	return &AttemptService{
		DB:              db,
		UserRepo:        repository.NewUserRepository(db),
		SkillRepo:       repository.NewSkillRepository(db),
		QuestionRepo:    repository.NewQuestionRepository(db),
		StatusRepo:      repository.NewStatusRepository(db),
		AttemptRepo:     repository.NewAttemptRepository(db),
		RemediationRepo: repository.NewRemediationRepository(db),
		Reports:         reports,
		Lock:            lock,
		Settings:        settings,
		Clock:           clock,
	}
}

// StartResult Resumed 表示返回的是本周未提交的同一场考试；Bonus 表示消费了额外机会
type StartResult struct {
	Attempt *model.Attempt `json:"attempt"`
	Resumed bool           `json:"resumed"`
	Bonus   bool           `json:"bonus"`
}

// StartAttempt 开考：技能须已解锁；每周一次，额外机会仅对授予的那一周有效且只能消费一次
func (s *AttemptService) StartAttempt(ctx context.Context, studentID, skillID uint) (*StartResult, error) {
	now := s.Clock.Now()
	week := util.WeekKey(now)

	release, ok, err := s.Lock.Acquire(ctx, studentID, skillID, week)
	if err != nil {
		// Redis 故障不影响开考，唯一索引兜底
		logger.Log.Warn("Attempt start lock unavailable", zap.Error(err))
	} else if !ok {
		// 重复点击开考：本周已有进行中的考试时直接续做
		cur, ferr := s.findResumable(ctx, studentID, skillID, week)
		if ferr != nil {
			return nil, ferr
		}
		if cur != nil {
			monitoring.AttemptStarts.WithLabelValues("resumed").Inc()
			return &StartResult{Attempt: cur, Resumed: true}, nil
		}
		monitoring.AttemptStarts.WithLabelValues("denied").Inc()
		return nil, util.Deny(ReasonStartInProgress)
	}
	defer release()

	var result StartResult
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		statuses := s.StatusRepo.WithTx(tx)
		attempts := s.AttemptRepo.WithTx(tx)

		skill, err := s.SkillRepo.WithTx(tx).FindByID(skillID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return util.ErrSkillNotFound
			}
			return err
		}
		st, err := statuses.Find(studentID, skillID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if st == nil || !st.Unlocked || !skill.Active {
			return util.Deny(ReasonSkillUnavailable)
		}

		cur, err := attempts.FindCurrent(studentID, skillID, week)
		if err != nil {
			return err
		}
		seq := 1
		switch {
		case cur == nil:
		case !cur.Submitted():
			result = StartResult{Attempt: cur, Resumed: true}
			return nil
		default:
			consumed, err := statuses.ConsumeExtraAttempt(studentID, skillID, week)
			if err != nil {
				return err
			}
			if !consumed {
				return util.Deny(ReasonAlreadyAttempted)
			}
			seq = cur.Sequence + 1
			result.Bonus = true
		}

		a := &model.Attempt{
			StudentID: studentID,
			SkillID:   skillID,
			WeekKey:   week,
			Sequence:  seq,
			StartedAt: now,
			Status:    model.AttemptInProgress,
			Answers:   datatypes.NewJSONType(model.AnswerSet{}),
		}
		if err := attempts.Create(a); err != nil {
			return err
		}
		result.Attempt = a
		return nil
	})
	if err != nil {
		if util.IsUniqueViolation(err) {
			err = util.Deny(ReasonAlreadyAttempted)
		}
		if _, denied := util.IsPolicyDenied(err); denied {
			monitoring.AttemptStarts.WithLabelValues("denied").Inc()
		}
		return nil, err
	}

	outcome := "created"
	switch {
	case result.Resumed:
		outcome = "resumed"
	case result.Bonus:
		outcome = "bonus"
	}
	monitoring.AttemptStarts.WithLabelValues(outcome).Inc()
	logger.Log.Info("Attempt started",
		zap.String("outcome", outcome),
		zap.Uint("attemptID", result.Attempt.ID),
		zap.Uint("studentID", studentID),
		zap.Uint("skillID", skillID),
		zap.String("week", week))
	return &result, nil
}

// findResumable 不加锁读取本周进行中的考试；技能不可用或没有进行中的考试时返回 nil
func (s *AttemptService) findResumable(ctx context.Context, studentID, skillID uint, week string) (*model.Attempt, error) {
	db := s.DB.WithContext(ctx)
	skill, err := s.SkillRepo.WithTx(db).FindByID(skillID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrSkillNotFound
		}
		return nil, err
	}
	st, err := s.StatusRepo.WithTx(db).Find(studentID, skillID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !st.Unlocked || !skill.Active {
		return nil, nil
	}
	cur, err := s.AttemptRepo.WithTx(db).FindCurrent(studentID, skillID, week)
	if err != nil || cur == nil || cur.Submitted() {
		return nil, err
	}
	return cur, nil
}

// LiveAttempt 进行中的考试视图，题目已去除标准答案
type LiveAttempt struct {
	Attempt          *model.Attempt   `json:"attempt"`
	Skill            *model.Skill     `json:"skill"`
	Questions        []model.Question `json:"questions"`
	RemainingSeconds int              `json:"remainingSeconds"`
}

// ResumeAttempt 只有考试本人可以继续；已提交的考试返回 ErrAttemptSubmitted，调用方应转到结果页
func (s *AttemptService) ResumeAttempt(ctx context.Context, studentID, attemptID uint) (*LiveAttempt, error) {
	a, err := s.ownedAttempt(studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Submitted() {
		return nil, util.ErrAttemptSubmitted
	}
	skill, err := s.SkillRepo.FindByID(a.SkillID)
	if err != nil {
		return nil, util.ErrSkillNotFound
	}
	qs, err := s.LiveQuestions(a.SkillID)
	if err != nil {
		return nil, err
	}

	remaining := skill.EffectiveTimeLimitSeconds() - int(s.Clock.Now().Sub(a.StartedAt).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return &LiveAttempt{Attempt: a, Skill: skill, Questions: qs, RemainingSeconds: remaining}, nil
}

// LiveQuestions 已审核题目，去除标准答案后下发给学生
func (s *AttemptService) LiveQuestions(skillID uint) ([]model.Question, error) {
	qs, err := s.QuestionRepo.ListLiveBySkill(skillID)
	if err != nil {
		return nil, err
	}
	out := make([]model.Question, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.ForStudent())
	}
	return out, nil
}

func (s *AttemptService) ownedAttempt(studentID, attemptID uint) (*model.Attempt, error) {
	a, err := s.AttemptRepo.FindByID(attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}
	if a.StudentID != studentID {
		return nil, util.ErrPermissionDenied
	}
	return a, nil
}

// SubmitResult 提交结果；Report 为空表示报告未生成（学生无负责教师或生成失败）
type SubmitResult struct {
	Attempt *model.Attempt `json:"attempt"`
	Passed  bool           `json:"passed"`
	Correct int            `json:"correct"`
	Total   int            `json:"total"`
	Weakest []WeakSkill    `json:"weakest"`
	Report  *model.Report  `json:"report,omitempty"`
}

// SubmitAttempt 判分并写入终态。重复提交返回 ErrAttemptSubmitted，分数不会改变。
// 报告与通知在事务提交之后进行，其失败只记录日志。
func (s *AttemptService) SubmitAttempt(ctx context.Context, studentID, attemptID uint, raw model.AnswerSet) (*SubmitResult, error) {
	ctx, span := tracing.Start(ctx, "attempt.finalize",
		attribute.Int64("attempt.id", int64(attemptID)),
		attribute.Int64("student.id", int64(studentID)))
	defer span.End()

	now := s.Clock.Now()
	cfg := s.Settings.Get()
	lang := s.Settings.Lang()

	var (
		res     SubmitResult
		skill   *model.Skill
		student *model.User
		graded  GradeResult
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attempts := s.AttemptRepo.WithTx(tx)
		skills := s.SkillRepo.WithTx(tx)

		a, err := attempts.FindByID(attemptID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return util.ErrAttemptNotFound
			}
			return err
		}
		if a.StudentID != studentID {
			return util.ErrPermissionDenied
		}
		if a.Submitted() {
			return util.ErrAttemptSubmitted
		}

		if skill, err = skills.FindByID(a.SkillID); err != nil {
			return util.ErrSkillNotFound
		}
		qs, err := s.QuestionRepo.WithTx(tx).ListLiveBySkill(a.SkillID)
		if err != nil {
			return err
		}

		graded = Grade(qs, raw)
		elapsed := ClampElapsed(int(now.Sub(a.StartedAt).Seconds()), skill.EffectiveTimeLimitSeconds(), cfg.GraceSeconds)
		ended := now
		a.Score = graded.Score
		a.EndedAt = &ended
		a.ElapsedSeconds = elapsed
		a.Status = model.AttemptSubmitted
		a.Answers = datatypes.NewJSONType(graded.Answers)
		a.Graded = datatypes.NewJSONType(graded.Snapshot())

		done, err := attempts.Finalize(a)
		if err != nil {
			return err
		}
		if !done {
			return util.ErrAttemptSubmitted
		}

		res.Attempt = a
		res.Passed = skill.Passed(a.Score)
		res.Correct = graded.Correct
		res.Total = graded.Total
		if res.Passed {
			if err := s.StatusRepo.WithTx(tx).MarkCompleted(studentID, a.SkillID); err != nil {
				return err
			}
		}

		res.Weakest, err = LoadWeakest(attempts, skills, studentID, cfg.WeakSkillLimit, lang)
		if err != nil {
			return err
		}
		student, err = s.UserRepo.WithTx(tx).FindByID(studentID)
		if err != nil {
			return util.ErrStudentNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := "fail"
	if res.Passed {
		result = "pass"
	}
	monitoring.AttemptSubmissions.WithLabelValues(result).Inc()
	monitoring.AttemptScores.Observe(float64(res.Attempt.Score))
	logger.Log.Info("Attempt submitted",
		zap.Uint("attemptID", attemptID),
		zap.Uint("studentID", studentID),
		zap.Uint("skillID", res.Attempt.SkillID),
		zap.Int("score", res.Attempt.Score),
		zap.Bool("passed", res.Passed))

	res.Report = s.publishReport(ctx, ReportInput{
		Attempt: res.Attempt,
		Skill:   skill,
		Student: student,
		Items:   graded.Items,
		Weakest: res.Weakest,
	})
	return &res, nil
}

// publishReport 报告失败不影响已提交的考试
func (s *AttemptService) publishReport(ctx context.Context, in ReportInput) *model.Report {
	if s.Reports == nil {
		return nil
	}
	rp, err := s.Reports.Publish(ctx, in)
	switch {
	case err == nil:
		return rp
	case errors.Is(err, util.ErrStudentHasNoTeacher):
		logger.Log.Info("Report skipped, student has no teacher", zap.Uint("attemptID", in.Attempt.ID))
	default:
		logger.Log.Error("Report generation failed",
			zap.Uint("attemptID", in.Attempt.ID),
			zap.Uint("studentID", in.Attempt.StudentID),
			zap.Uint("skillID", in.Attempt.SkillID),
			zap.Error(err))
	}
	return nil
}

// AttemptResultView 学生查看的考试结果
type AttemptResultView struct {
	Attempt      *model.Attempt      `json:"attempt"`
	Skill        *model.Skill        `json:"skill"`
	Passed       bool                `json:"passed"`
	HasReport    bool                `json:"hasReport"`
	Remediations []model.Remediation `json:"remediations"`
}

func (s *AttemptService) AttemptResult(ctx context.Context, studentID, attemptID uint) (*AttemptResultView, error) {
	a, err := s.ownedAttempt(studentID, attemptID)
	if err != nil {
		return nil, err
	}
	if !a.Submitted() {
		return nil, util.ErrAttemptNotSubmitted
	}
	skill, err := s.SkillRepo.FindByID(a.SkillID)
	if err != nil {
		return nil, util.ErrSkillNotFound
	}
	rms, err := s.RemediationRepo.ListForStudentSkill(studentID, a.SkillID)
	if err != nil {
		return nil, err
	}
	hasReport := false
	if s.Reports != nil {
		if hasReport, err = s.Reports.ReportRepo.ExistsForAttempt(a.ID); err != nil {
			return nil, err
		}
	}
	return &AttemptResultView{
		Attempt:      a,
		Skill:        skill,
		Passed:       skill.Passed(a.Score),
		HasReport:    hasReport,
		Remediations: rms,
	}, nil
}

// DashboardSkill 已解锁技能及本周状态
type DashboardSkill struct {
	Skill          model.Skill `json:"skill"`
	Completed      bool        `json:"completed"`
	WeekKey        string      `json:"weekKey"`
	CanStart       bool        `json:"canStart"`
	CurrentAttempt *uint       `json:"currentAttemptId,omitempty"`
}

type Dashboard struct {
	Student      *model.User         `json:"student"`
	Skills       []DashboardSkill    `json:"skills"`
	Attempts     []model.Attempt     `json:"attempts"`
	Remediations []model.Remediation `json:"remediations"`
}

func (s *AttemptService) Dashboard(ctx context.Context, studentID uint) (*Dashboard, error) {
	student, err := s.UserRepo.FindByID(studentID)
	if err != nil {
		return nil, util.ErrStudentNotFound
	}
	week := util.WeekKey(s.Clock.Now())

	skills, err := s.StatusRepo.ListUnlockedSkills(studentID)
	if err != nil {
		return nil, err
	}
	statuses, err := s.StatusRepo.ListByStudent(studentID)
	if err != nil {
		return nil, err
	}
	byskill := make(map[uint]model.StudentSkillStatus, len(statuses))
	for _, st := range statuses {
		byskill[st.SkillID] = st
	}

	out := make([]DashboardSkill, 0, len(skills))
	for _, sk := range skills {
		st := byskill[sk.ID]
		item := DashboardSkill{Skill: sk, Completed: st.Completed, WeekKey: week, CanStart: true}
		cur, err := s.AttemptRepo.FindCurrent(studentID, sk.ID, week)
		if err != nil {
			return nil, err
		}
		if cur != nil {
			if cur.Submitted() {
				item.CanStart = st.ExtraAttemptWeek.Matches(week)
			} else {
				id := cur.ID
				item.CurrentAttempt = &id
			}
		}
		out = append(out, item)
	}

	attempts, err := s.AttemptRepo.ListByStudent(studentID)
	if err != nil {
		return nil, err
	}
	rms, err := s.RemediationRepo.ListByStudent(studentID)
	if err != nil {
		return nil, err
	}
	return &Dashboard{Student: student, Skills: out, Attempts: attempts, Remediations: rms}, nil
}

// ParseAnswers 把表单形式 {"q_12": [...]} 或 {"12": [...]} 统一为以题目ID为键。
// 同一题目出现多种写法时，不带前缀的键优先，其余按字典序取第一个。
func ParseAnswers(in map[string][]string) model.AnswerSet {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, pj := strings.HasPrefix(keys[i], "q_"), strings.HasPrefix(keys[j], "q_")
		if pi != pj {
			return !pi
		}
		return keys[i] < keys[j]
	})

	out := make(model.AnswerSet, len(in))
	for _, k := range keys {
		id, err := strconv.ParseUint(strings.TrimPrefix(k, "q_"), 10, 64)
		if err != nil || id == 0 {
			continue
		}
		key := strconv.FormatUint(id, 10)
		if _, seen := out[key]; seen {
			continue
		}
		out[key] = in[k]
	}
	return out
}
