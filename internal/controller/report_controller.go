package controller

import (
	"fmt"
	"net/http"

	"skillset_backend/internal/service"
	"skillset_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ReportController struct {
	ReportService *service.ReportService
}

func NewReportController(reportService *service.ReportService) *ReportController {
	return &ReportController{ReportService: reportService}
}

// @Summary 下载测试报告
// @Description 教师只能下载名下学生的报告，学生只能下载自己的，主任不受限
// @Tags 报告
// @Produce application/pdf
// @Security BearerAuth
// @Param attemptId path int true "测试ID"
// @Success 200 {file} file
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/reports/{attemptId}/download [get]
func (c *ReportController) Download(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	attemptID, ok := paramID(ctx, "attemptId")
	if !ok {
		return
	}

	file, err := c.ReportService.Download(ctx.Request.Context(), user.UserID, user.Role, attemptID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	defer file.Body.Close()

	ctx.DataFromReader(http.StatusOK, -1, file.ContentType, file.Body, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%s", file.Name),
	})
}

// @Summary 重新生成报告
// @Description 用于提交后报告生成失败的测试；已有报告时返回 409
// @Tags 报告
// @Produce json
// @Security BearerAuth
// @Param attemptId path int true "测试ID"
// @Success 201 {object} util.Response{data=model.Report}
// @Failure 409 {object} util.Response "报告已存在"
// @Router /api/reports/{attemptId}/regenerate [post]
func (c *ReportController) Regenerate(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	attemptID, ok := paramID(ctx, "attemptId")
	if !ok {
		return
	}

	rp, err := c.ReportService.Regenerate(ctx.Request.Context(), user.UserID, user.Role, attemptID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, rp)
}
