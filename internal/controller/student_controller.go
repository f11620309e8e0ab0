package controller

import (
	"errors"
	"fmt"
	"net/http"

	"skillset_backend/internal/service"
	"skillset_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// StudentController 学生端：看板、开始/续做/提交测试、查看结果
type StudentController struct {
	AttemptService *service.AttemptService
}

func NewStudentController(attemptService *service.AttemptService) *StudentController {
	return &StudentController{AttemptService: attemptService}
}

// @Summary 学生看板
// @Tags 学生
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=service.Dashboard}
// @Router /api/student/dashboard [get]
func (c *StudentController) Dashboard(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	dash, err := c.AttemptService.Dashboard(ctx.Request.Context(), user.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, dash)
}

// @Summary 开始测试
// @Description 本周已有进行中的测试则直接续做；已提交则需要教师授予的额外机会
// @Tags 学生
// @Produce json
// @Security BearerAuth
// @Param skillId path int true "技能ID"
// @Success 200 {object} util.Response{data=service.StartResult}
// @Failure 404 {object} util.Response "技能不存在"
// @Failure 409 {object} util.Response "技能未解锁或本周已测试"
// @Router /api/student/skills/{skillId}/attempts [post]
func (c *StudentController) StartAttempt(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	skillID, ok := paramID(ctx, "skillId")
	if !ok {
		return
	}

	result, err := c.AttemptService.StartAttempt(ctx.Request.Context(), user.UserID, skillID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 续做测试
// @Description 返回题目（不含答案）与剩余秒数
// @Tags 学生
// @Produce json
// @Security BearerAuth
// @Param id path int true "测试ID"
// @Success 200 {object} util.Response{data=service.LiveAttempt}
// @Failure 409 {object} util.Response "已提交，data.resultUrl 指向结果"
// @Router /api/student/attempts/{id} [get]
func (c *StudentController) ResumeAttempt(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	attemptID, ok := paramID(ctx, "id")
	if !ok {
		return
	}

	live, err := c.AttemptService.ResumeAttempt(ctx.Request.Context(), user.UserID, attemptID)
	if errors.Is(err, util.ErrAttemptSubmitted) {
		// 已提交的测试不再下发题目，引导到结果页
		ctx.JSON(http.StatusConflict, util.Response{
			Code:    http.StatusConflict,
			Message: err.Error(),
			Data:    gin.H{"resultUrl": fmt.Sprintf("/api/student/attempts/%d/result", attemptID)},
		})
		return
	}
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, live)
}

// SubmitRequest 答案键为题目 ID（可带 "q_" 前缀），值为所选项或填写内容
type SubmitRequest struct {
	Answers map[string][]string `json:"answers"`
}

// @Summary 提交测试
// @Tags 学生
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "测试ID"
// @Param body body SubmitRequest true "答案"
// @Success 200 {object} util.Response{data=service.SubmitResult}
// @Failure 409 {object} util.Response "已提交"
// @Router /api/student/attempts/{id}/submit [post]
func (c *StudentController) SubmitAttempt(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	attemptID, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	var req SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.AttemptService.SubmitAttempt(ctx.Request.Context(), user.UserID, attemptID, service.ParseAnswers(req.Answers))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 测试结果
// @Tags 学生
// @Produce json
// @Security BearerAuth
// @Param id path int true "测试ID"
// @Success 200 {object} util.Response{data=service.AttemptResultView}
// @Router /api/student/attempts/{id}/result [get]
func (c *StudentController) AttemptResult(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	attemptID, ok := paramID(ctx, "id")
	if !ok {
		return
	}

	view, err := c.AttemptService.AttemptResult(ctx.Request.Context(), user.UserID, attemptID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}
