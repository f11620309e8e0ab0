package controller

import (
	"bytes"
	"fmt"

	"skillset_backend/internal/service"
	"skillset_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// TeacherController 教师端：名下学生、解锁/锁定、额外机会、补救材料、报告
type TeacherController struct {
	ProgressionService *service.ProgressionService
}

func NewTeacherController(progressionService *service.ProgressionService) *TeacherController {
	return &TeacherController{ProgressionService: progressionService}
}

// @Summary 名下学生列表
// @Tags 教师
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]model.User}
// @Router /api/teacher/students [get]
func (c *TeacherController) ListStudents(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	students, err := c.ProgressionService.ListStudents(ctx.Request.Context(), user.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, students)
}

// @Summary 学生学习进度
// @Description 技能状态、解锁判定、测试记录与补救材料
// @Tags 教师
// @Produce json
// @Security BearerAuth
// @Param studentId path int true "学生ID"
// @Success 200 {object} util.Response{data=service.StudentProgress}
// @Failure 403 {object} util.Response "非名下学生"
// @Router /api/teacher/students/{studentId}/progress [get]
func (c *TeacherController) StudentProgress(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	studentID, ok := paramID(ctx, "studentId")
	if !ok {
		return
	}

	progress, err := c.ProgressionService.StudentProgress(ctx.Request.Context(), user.UserID, studentID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, progress)
}

func (c *TeacherController) setUnlocked(ctx *gin.Context, unlocked bool) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	studentID, ok := paramID(ctx, "studentId")
	if !ok {
		return
	}
	skillID, ok := paramID(ctx, "skillId")
	if !ok {
		return
	}

	st, err := c.ProgressionService.SetSkillUnlocked(ctx.Request.Context(), user.UserID, studentID, skillID, unlocked)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, st)
}

// @Summary 解锁技能
// @Description 前置技能需有已完成的测试，且通过或在测试后上传过补救材料
// @Tags 教师
// @Produce json
// @Security BearerAuth
// @Param studentId path int true "学生ID"
// @Param skillId path int true "技能ID"
// @Success 200 {object} util.Response{data=model.StudentSkillStatus}
// @Failure 409 {object} util.Response "不满足解锁条件"
// @Router /api/teacher/students/{studentId}/skills/{skillId}/unlock [post]
func (c *TeacherController) UnlockSkill(ctx *gin.Context) {
	c.setUnlocked(ctx, true)
}

// @Summary 锁定技能
// @Tags 教师
// @Produce json
// @Security BearerAuth
// @Param studentId path int true "学生ID"
// @Param skillId path int true "技能ID"
// @Success 200 {object} util.Response{data=model.StudentSkillStatus}
// @Router /api/teacher/students/{studentId}/skills/{skillId}/lock [post]
func (c *TeacherController) LockSkill(ctx *gin.Context) {
	c.setUnlocked(ctx, false)
}

// @Summary 授予本周额外测试机会
// @Tags 教师
// @Produce json
// @Security BearerAuth
// @Param studentId path int true "学生ID"
// @Param skillId path int true "技能ID"
// @Success 200 {object} util.Response
// @Router /api/teacher/students/{studentId}/skills/{skillId}/extra-attempt [post]
func (c *TeacherController) GrantExtraAttempt(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	studentID, ok := paramID(ctx, "studentId")
	if !ok {
		return
	}
	skillID, ok := paramID(ctx, "skillId")
	if !ok {
		return
	}

	week, err := c.ProgressionService.GrantExtraAttempt(ctx.Request.Context(), user.UserID, studentID, skillID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"extraAttemptWeek": week})
}

// @Summary 上传补救材料
// @Description multipart 表单：notes_ar / notes_en / file（可选），至少提供一项
// @Tags 教师
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param studentId path int true "学生ID"
// @Param skillId path int true "技能ID"
// @Param notes_ar formData string false "阿拉伯语说明"
// @Param notes_en formData string false "英语说明"
// @Param file formData file false "补救文件"
// @Success 201 {object} util.Response{data=model.Remediation}
// @Failure 400 {object} util.Response "文件类型不支持"
// @Router /api/teacher/students/{studentId}/skills/{skillId}/remediations [post]
func (c *TeacherController) UploadRemediation(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	studentID, ok := paramID(ctx, "studentId")
	if !ok {
		return
	}
	skillID, ok := paramID(ctx, "skillId")
	if !ok {
		return
	}

	req := service.RemediationRequest{
		TeacherID: user.UserID,
		StudentID: studentID,
		SkillID:   skillID,
		NotesAr:   ctx.PostForm("notes_ar"),
		NotesEn:   ctx.PostForm("notes_en"),
	}

	if fh, err := ctx.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			util.BadRequest(ctx, "无法读取上传文件")
			return
		}
		defer f.Close()
		req.File = &service.UploadFile{
			Name:        fh.Filename,
			Size:        fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
			Reader:      f,
		}
	}

	rm, err := c.ProgressionService.UploadRemediation(ctx.Request.Context(), req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, rm)
}

// @Summary 报告列表
// @Description 名下学生已完成的测试，最新在前
// @Tags 教师
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]repository.FinishedRow}
// @Router /api/teacher/reports [get]
func (c *TeacherController) ListReports(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	rows, err := c.ProgressionService.ListReports(ctx.Request.Context(), user.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, rows)
}

// @Summary 导出测试记录 CSV
// @Tags 教师
// @Produce text/csv
// @Security BearerAuth
// @Success 200 {file} file
// @Router /api/teacher/reports/export [get]
func (c *TeacherController) ExportCSV(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := c.ProgressionService.ExportAttemptsCSV(ctx.Request.Context(), user.UserID, &buf); err != nil {
		util.RespondError(ctx, err)
		return
	}

	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=attempts_%d.csv", user.UserID))
	ctx.Data(200, util.MimeCSV+"; charset=utf-8", buf.Bytes())
}
