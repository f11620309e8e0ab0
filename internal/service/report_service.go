package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"skillset_backend/internal/model"
	"skillset_backend/internal/repository"
	"skillset_backend/internal/util"
	"skillset_backend/pkg/logger"
	"skillset_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ReportTitle   = "Test Result Report"
	ReportSubject = "Student test report"

	promptPreviewRunes = 120
	reportSeparator    = "----------------------------------------"
)

// WeakSkill 平均分最低的技能之一
type WeakSkill struct {
	SkillID uint    `json:"skillId"`
	Name    string  `json:"name"`
	Average float64 `json:"average"`
}

// ReportInput 生成报告所需的已提交考试上下文
type ReportInput struct {
	Attempt *model.Attempt
	Skill   *model.Skill
	Student *model.User
	Items   []GradedItem
	Weakest []WeakSkill
}

type ReportService struct {
	DB          *gorm.DB
	ReportRepo  *repository.ReportRepository
	AttemptRepo *repository.AttemptRepository
	SkillRepo   *repository.SkillRepository
	UserRepo    *repository.UserRepository
	Storage     *StorageService
	Renderer    ReportRenderer
	Notifier    Notifier
	Settings    *Settings
}

func NewReportService(db *gorm.DB, storage *StorageService, renderer ReportRenderer, notifier Notifier, settings *Settings) *ReportService {
	return &ReportService{
		DB:          db,
		ReportRepo:  repository.NewReportRepository(db),
		AttemptRepo: repository.NewAttemptRepository(db),
		SkillRepo:   repository.NewSkillRepository(db),
		UserRepo:    repository.NewUserRepository(db),
		Storage:     storage,
		Renderer:    renderer,
		Notifier:    notifier,
		Settings:    settings,
	}
}

// Publish 渲染报告、写入 Report 行并尽力通知负责教师。
// 学生没有负责教师时返回 ErrStudentHasNoTeacher，不生成任何产物。
func (s *ReportService) Publish(ctx context.Context, in ReportInput) (*model.Report, error) {
	if in.Student.TeacherID == nil {
		return nil, util.ErrStudentHasNoTeacher
	}
	teacher, err := s.UserRepo.FindByID(*in.Student.TeacherID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrTeacherNotFound
		}
		return nil, err
	}

	timeout := s.Settings.Get().CollaboratorTimeout()
	lines := BuildReportLines(in, s.Settings.Lang())

	art, err := callWithTimeout(ctx, timeout, func(ctx context.Context) (*Artifact, error) {
		return s.Renderer.Render(ctx, ReportTitle, lines)
	})
	if err != nil {
		monitoring.CollaboratorFailures.WithLabelValues("renderer").Inc()
		return nil, fmt.Errorf("render report: %w", err)
	}

	rp := &model.Report{
		AttemptID:  in.Attempt.ID,
		TeacherID:  teacher.ID,
		URL:        art.URL,
		StorageKey: art.Key,
	}
	if err := s.ReportRepo.Create(rp); err != nil {
		if util.IsUniqueViolation(err) {
			return nil, util.ErrReportAlreadyExists
		}
		return nil, err
	}

	s.notify(ctx, teacher, in, art)
	return rp, nil
}

func (s *ReportService) notify(ctx context.Context, teacher *model.User, in ReportInput, art *Artifact) {
	if teacher.Email == "" || s.Notifier == nil {
		return
	}
	lang := s.Settings.Lang()
	body := fmt.Sprintf("%s\n%s\n%d%%", in.Student.DisplayName(lang), in.Skill.DisplayName(lang), in.Attempt.Score)
	att := &Attachment{
		Name:        fmt.Sprintf("report_attempt_%d.pdf", in.Attempt.ID),
		ContentType: util.MimePDF,
		Data:        art.Data,
	}

	ok, _ := callWithTimeout(ctx, s.Settings.Get().CollaboratorTimeout(), func(ctx context.Context) (bool, error) {
		return s.Notifier.Deliver(ctx, teacher.Email, ReportSubject, body, att), nil
	})
	if !ok {
		monitoring.CollaboratorFailures.WithLabelValues("notifier").Inc()
		logger.Log.Warn("Report notification not delivered",
			zap.Uint("attemptID", in.Attempt.ID),
			zap.Uint("teacherID", teacher.ID))
	}
}

// LoadWeakest 统计学生已提交考试中平均分最低的技能
func LoadWeakest(attempts *repository.AttemptRepository, skills *repository.SkillRepository, studentID uint, limit int, lang model.Lang) ([]WeakSkill, error) {
	avgs, err := attempts.WeakestSkills(studentID, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(avgs))
	for _, a := range avgs {
		ids = append(ids, a.SkillID)
	}
	byID, err := skills.FindByIDs(ids)
	if err != nil {
		return nil, err
	}
	out := make([]WeakSkill, 0, len(avgs))
	for _, a := range avgs {
		w := WeakSkill{SkillID: a.SkillID, Average: a.AvgScore}
		if sk, ok := byID[a.SkillID]; ok {
			w.Name = sk.DisplayName(lang)
		}
		out = append(out, w)
	}
	return out, nil
}

// Regenerate 为已提交但没有报告的考试补生成报告，失败直接返回给调用方
func (s *ReportService) Regenerate(ctx context.Context, actorID uint, role model.UserRole, attemptID uint) (*model.Report, error) {
	attempt, err := s.AttemptRepo.FindByID(attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}
	if !attempt.Submitted() {
		return nil, util.ErrAttemptNotSubmitted
	}
	student, err := s.UserRepo.FindByID(attempt.StudentID)
	if err != nil {
		return nil, util.ErrStudentNotFound
	}
	switch role {
	case model.Chairman:
	case model.Teacher:
		if !student.BelongsTo(actorID) {
			return nil, util.ErrPermissionDenied
		}
	default:
		return nil, util.ErrPermissionDenied
	}

	exists, err := s.ReportRepo.ExistsForAttempt(attempt.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, util.ErrReportAlreadyExists
	}

	skill, err := s.SkillRepo.FindByID(attempt.SkillID)
	if err != nil {
		return nil, util.ErrSkillNotFound
	}
	cfg := s.Settings.Get()
	weakest, err := LoadWeakest(s.AttemptRepo, s.SkillRepo, student.ID, cfg.WeakSkillLimit, s.Settings.Lang())
	if err != nil {
		return nil, err
	}

	return s.Publish(ctx, ReportInput{
		Attempt: attempt,
		Skill:   skill,
		Student: student,
		Items:   ItemsFromSnapshot(attempt.Graded.Data()),
		Weakest: weakest,
	})
}

// RetryPending 后台补生成：逐个重试已提交但缺少报告的考试，返回成功数量
func (s *ReportService) RetryPending(ctx context.Context, limit int) (int, error) {
	pending, err := s.AttemptRepo.SubmittedWithoutReport(limit)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, a := range pending {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if _, err := s.Regenerate(ctx, 0, model.Chairman, a.ID); err != nil {
			if !errors.Is(err, util.ErrReportAlreadyExists) {
				logger.Log.Warn("Report retry failed", zap.Uint("attemptID", a.ID), zap.Error(err))
			}
			continue
		}
		done++
	}
	return done, nil
}

// ReportFile 报告下载内容，调用方负责关闭 Body
type ReportFile struct {
	Name        string
	ContentType string
	Body        io.ReadCloser
}

// Download 教师只能下载自己名下的报告，学生只能下载自己的，主任不受限
func (s *ReportService) Download(ctx context.Context, actorID uint, role model.UserRole, attemptID uint) (*ReportFile, error) {
	rp, err := s.ReportRepo.FindByAttempt(attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrReportNotFound
		}
		return nil, err
	}

	switch role {
	case model.Chairman:
	case model.Teacher:
		if rp.TeacherID != actorID {
			return nil, util.ErrPermissionDenied
		}
	case model.Student:
		attempt, err := s.AttemptRepo.FindByID(attemptID)
		if err != nil {
			return nil, util.ErrAttemptNotFound
		}
		if attempt.StudentID != actorID {
			return nil, util.ErrPermissionDenied
		}
	default:
		return nil, util.ErrPermissionDenied
	}

	body, err := s.Storage.Open(ctx, rp.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("open report %d: %w", rp.ID, err)
	}
	return &ReportFile{
		Name:        fmt.Sprintf("report_attempt_%d.pdf", attemptID),
		ContentType: util.MimePDF,
		Body:        body,
	}, nil
}

type reportLabels struct {
	student, skill, score, elapsed, date, answer, correct, weakest, pass, fail string
}

var labels = map[model.Lang]reportLabels{
	model.LangEN: {"Student", "Skill", "Score", "Elapsed (s)", "Date", "Answer", "Correct", "Weakest skills", "PASS", "FAIL"},
	model.LangAR: {"الطالب", "المهارة", "الدرجة", "المدة (ث)", "التاريخ", "الإجابة", "الإجابة الصحيحة", "أضعف المهارات", "ناجح", "راسب"},
}

// BuildReportLines 生成报告正文行（已本地化）
func BuildReportLines(in ReportInput, lang model.Lang) []string {
	l, ok := labels[lang]
	if !ok {
		l = labels[model.LangEN]
	}

	student := in.Student.DisplayName(lang)
	if in.Student.StudentNumber != nil && *in.Student.StudentNumber != "" {
		student += " (" + *in.Student.StudentNumber + ")"
	}
	verdict := l.fail
	if in.Skill.Passed(in.Attempt.Score) {
		verdict = l.pass
	}
	date := "-"
	if in.Attempt.EndedAt != nil {
		date = in.Attempt.EndedAt.UTC().Format(util.ReportTimeFormat)
	}

	lines := []string{
		fmt.Sprintf("%s: %s", l.student, student),
		fmt.Sprintf("%s: %s", l.skill, in.Skill.DisplayName(lang)),
		fmt.Sprintf("%s: %d%% (%s)", l.score, in.Attempt.Score, verdict),
		fmt.Sprintf("%s: %d", l.elapsed, in.Attempt.ElapsedSeconds),
		fmt.Sprintf("%s: %s", l.date, date),
		reportSeparator,
	}
	for i, item := range in.Items {
		lines = append(lines,
			fmt.Sprintf("%d. %s", i+1, util.Truncate(item.Question.Prompt(lang), promptPreviewRunes)),
			fmt.Sprintf("%s: %s", l.answer, joinOrDash(item.Given)),
			fmt.Sprintf("%s: %s", l.correct, joinOrDash(item.Question.CorrectAnswers())),
			"",
		)
	}
	if len(in.Weakest) > 0 {
		lines = append(lines, l.weakest+":")
		for _, w := range in.Weakest {
			lines = append(lines, fmt.Sprintf("- %s: %.1f%%", w.Name, w.Average))
		}
	}
	return lines
}

func joinOrDash(vals []string) string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return "-"
	}
	return strings.Join(out, ", ")
}
