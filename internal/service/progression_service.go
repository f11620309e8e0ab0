package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"skillset_backend/internal/model"
	"skillset_backend/internal/repository"
	"skillset_backend/internal/util"
	"skillset_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const teacherReportLimit = 200

// ProgressionService 教师侧：解锁/锁定、额外机会、补救材料、进度查看与导出
type ProgressionService struct {
	DB              *gorm.DB
	UserRepo        *repository.UserRepository
	SkillRepo       *repository.SkillRepository
	StatusRepo      *repository.StatusRepository
	AttemptRepo     *repository.AttemptRepository
	RemediationRepo *repository.RemediationRepository
	Policy          *UnlockPolicy
	Storage         *StorageService
	Settings        *Settings
	Clock           util.Clock
}

func NewProgressionService(db *gorm.DB, storage *StorageService, settings *Settings, clock util.Clock) *ProgressionService {
	return &ProgressionService{
		DB:              db,
		UserRepo:        repository.NewUserRepository(db),
		SkillRepo:       repository.NewSkillRepository(db),
		StatusRepo:      repository.NewStatusRepository(db),
		AttemptRepo:     repository.NewAttemptRepository(db),
		RemediationRepo: repository.NewRemediationRepository(db),
		Policy:          NewUnlockPolicy(db),
		Storage:         storage,
		Settings:        settings,
		Clock:           clock,
	}
}

// ownStudent 学生必须归属于该教师
func ownStudent(users *repository.UserRepository, teacherID, studentID uint) (*model.User, error) {
	student, err := users.FindByID(studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrStudentNotFound
		}
		return nil, err
	}
	if student.Role != model.Student {
		return nil, util.ErrStudentNotFound
	}
	if !student.BelongsTo(teacherID) {
		return nil, util.ErrPermissionDenied
	}
	return student, nil
}

func findSkill(skills *repository.SkillRepository, skillID uint) (*model.Skill, error) {
	skill, err := skills.FindByID(skillID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrSkillNotFound
		}
		return nil, err
	}
	return skill, nil
}

func (s *ProgressionService) ListStudents(ctx context.Context, teacherID uint) ([]model.User, error) {
	return s.UserRepo.WithTx(s.DB.WithContext(ctx)).ListStudentsByTeacher(teacherID)
}

// SetSkillUnlocked 解锁需通过解锁策略；锁定总是允许。状态行不存在时创建。
func (s *ProgressionService) SetSkillUnlocked(ctx context.Context, teacherID, studentID, skillID uint, unlocked bool) (*model.StudentSkillStatus, error) {
	now := s.Clock.Now()
	var st *model.StudentSkillStatus
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := ownStudent(s.UserRepo.WithTx(tx), teacherID, studentID); err != nil {
			return err
		}
		skill, err := findSkill(s.SkillRepo.WithTx(tx), skillID)
		if err != nil {
			return err
		}
		if unlocked {
			decision, err := s.Policy.WithTx(tx).CanUnlock(teacherID, studentID, skill)
			if err != nil {
				return err
			}
			if !decision.Allowed {
				return util.Deny(decision.Reason)
			}
		}

		statuses := s.StatusRepo.WithTx(tx)
		if st, err = statuses.FindOrInit(studentID, skillID); err != nil {
			return err
		}
		return statuses.SetUnlocked(st, unlocked, now)
	})
	if err != nil {
		return nil, err
	}
	logger.Log.Info("Skill lock state changed",
		zap.Uint("teacherID", teacherID),
		zap.Uint("studentID", studentID),
		zap.Uint("skillID", skillID),
		zap.Bool("unlocked", unlocked))
	return st, nil
}

// GrantExtraAttempt 授予本周额外一次考试机会，返回周键
func (s *ProgressionService) GrantExtraAttempt(ctx context.Context, teacherID, studentID, skillID uint) (string, error) {
	week := util.WeekKey(s.Clock.Now())
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := ownStudent(s.UserRepo.WithTx(tx), teacherID, studentID); err != nil {
			return err
		}
		if _, err := findSkill(s.SkillRepo.WithTx(tx), skillID); err != nil {
			return err
		}
		return s.StatusRepo.WithTx(tx).GrantExtraAttempt(studentID, skillID, week)
	})
	if err != nil {
		return "", err
	}
	return week, nil
}

// UploadFile 上传文件描述
type UploadFile struct {
	Name        string
	Size        int64
	ContentType string
	Reader      io.Reader
}

type RemediationRequest struct {
	TeacherID uint
	StudentID uint
	SkillID   uint
	NotesAr   string
	NotesEn   string
	File      *UploadFile
}

// UploadRemediation 存储补救材料并追加记录，创建时间取当前时钟
func (s *ProgressionService) UploadRemediation(ctx context.Context, req RemediationRequest) (*model.Remediation, error) {
	notesAr := strings.TrimSpace(req.NotesAr)
	notesEn := strings.TrimSpace(req.NotesEn)
	if notesAr == "" && notesEn == "" && req.File == nil {
		return nil, util.ErrEmptyRemediation
	}
	if _, err := ownStudent(s.UserRepo, req.TeacherID, req.StudentID); err != nil {
		return nil, err
	}
	if _, err := findSkill(s.SkillRepo, req.SkillID); err != nil {
		return nil, err
	}

	rm := &model.Remediation{
		TeacherID: req.TeacherID,
		StudentID: req.StudentID,
		SkillID:   req.SkillID,
		NotesAr:   notesAr,
		NotesEn:   notesEn,
	}
	if req.File != nil {
		if !util.HasAllowedExt(req.File.Name, util.AllowedRemediationExtensions) {
			return nil, util.ErrUnsupportedFile
		}
		name := util.SafeFilename(req.File.Name)
		key := path.Join("remediations", strconv.FormatUint(uint64(req.StudentID), 10),
			model.GenerateUUID()+strings.ToLower(filepath.Ext(name)))
		contentType := req.File.ContentType
		if contentType == "" {
			contentType = util.MimeOctetStream
		}
		url, err := s.Storage.Upload(ctx, key, req.File.Reader, req.File.Size, contentType)
		if err != nil {
			return nil, fmt.Errorf("store remediation file: %w", err)
		}
		rm.FileName = name
		rm.FileURL = url
		rm.StorageKey = key
	}

	now := s.Clock.Now()
	rm.CreatedAt = now
	rm.UpdatedAt = now
	if err := s.RemediationRepo.WithTx(s.DB.WithContext(ctx)).Create(rm); err != nil {
		if rm.StorageKey != "" {
			// 记录写入失败时删除已上传的文件，避免孤儿对象
			if derr := s.Storage.Delete(ctx, rm.StorageKey); derr != nil {
				logger.Log.Warn("Failed to remove orphaned remediation file",
					zap.String("key", rm.StorageKey), zap.Error(derr))
			}
		}
		return nil, err
	}
	return rm, nil
}

// SkillProgress 单个技能的学生状态与解锁判定
type SkillProgress struct {
	Skill            model.Skill    `json:"skill"`
	Unlocked         bool           `json:"unlocked"`
	Completed        bool           `json:"completed"`
	ExtraAttemptWeek string         `json:"extraAttemptWeek,omitempty"`
	Unlock           UnlockDecision `json:"unlock"`
}

type StudentProgress struct {
	Student      *model.User         `json:"student"`
	Skills       []SkillProgress     `json:"skills"`
	Attempts     []model.Attempt     `json:"attempts"`
	Remediations []model.Remediation `json:"remediations"`
}

func (s *ProgressionService) StudentProgress(ctx context.Context, teacherID, studentID uint) (*StudentProgress, error) {
	student, err := ownStudent(s.UserRepo, teacherID, studentID)
	if err != nil {
		return nil, err
	}
	skills, err := s.SkillRepo.ListActive()
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

	out := make([]SkillProgress, 0, len(skills))
	for i := range skills {
		st := byskill[skills[i].ID]
		decision, err := s.Policy.CanUnlock(teacherID, studentID, &skills[i])
		if err != nil {
			return nil, err
		}
		sp := SkillProgress{Skill: skills[i], Unlocked: st.Unlocked, Completed: st.Completed, Unlock: decision}
		if st.ExtraAttemptWeek.Present {
			sp.ExtraAttemptWeek = st.ExtraAttemptWeek.Week
		}
		out = append(out, sp)
	}

	attempts, err := s.AttemptRepo.ListByStudent(studentID)
	if err != nil {
		return nil, err
	}
	rms, err := s.RemediationRepo.ListByStudent(studentID)
	if err != nil {
		return nil, err
	}
	return &StudentProgress{Student: student, Skills: out, Attempts: attempts, Remediations: rms}, nil
}

// ListReports 教师名下学生的已提交考试，最新在前
func (s *ProgressionService) ListReports(ctx context.Context, teacherID uint) ([]repository.FinishedRow, error) {
	return s.AttemptRepo.WithTx(s.DB.WithContext(ctx)).ListFinishedForTeacher(teacherID, teacherReportLimit)
}

var csvHeader = []string{"attempt_id", "student_id", "student_number", "student_name", "skill_id", "skill_name", "week", "score", "passed", "elapsed_seconds", "ended_at", "report_url"}

// ExportAttemptsCSV 写出教师名下全部已提交考试
func (s *ProgressionService) ExportAttemptsCSV(ctx context.Context, teacherID uint, w io.Writer) error {
	rows, err := s.AttemptRepo.WithTx(s.DB.WithContext(ctx)).ListFinishedForTeacher(teacherID, 0)
	if err != nil {
		return err
	}
	skillIDs := make([]uint, 0, len(rows))
	for _, r := range rows {
		skillIDs = append(skillIDs, r.SkillID)
	}
	skills, err := s.SkillRepo.FindByIDs(skillIDs)
	if err != nil {
		return err
	}

	lang := s.Settings.Lang()
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		passed := false
		if sk, ok := skills[r.SkillID]; ok {
			passed = sk.Passed(r.Score)
		}
		number, ended, url := "", "", ""
		if r.StudentNumber != nil {
			number = *r.StudentNumber
		}
		if r.EndedAt != nil {
			ended = r.EndedAt.UTC().Format(util.TimeFormat)
		}
		if r.ReportURL != nil {
			url = *r.ReportURL
		}
		student := model.User{NameAr: r.StudentNameAr, NameEn: r.StudentNameEn}
		skill := model.Skill{NameAr: r.SkillNameAr, NameEn: r.SkillNameEn}
		record := []string{
			strconv.FormatUint(uint64(r.AttemptID), 10),
			strconv.FormatUint(uint64(r.StudentID), 10),
			number,
			student.DisplayName(lang),
			strconv.FormatUint(uint64(r.SkillID), 10),
			skill.DisplayName(lang),
			r.WeekKey,
			strconv.Itoa(r.Score),
			strconv.FormatBool(passed),
			strconv.Itoa(r.ElapsedSeconds),
			ended,
			url,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
