package controller

import (
	"skillset_backend/internal/model"
	"skillset_backend/internal/service"
	"skillset_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// AdminController 主任管理：技能、用户、题目审核
type AdminController struct {
	AdminService *service.AdminService
}

func NewAdminController(adminService *service.AdminService) *AdminController {
	return &AdminController{AdminService: adminService}
}

// @Summary 技能列表
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]model.Skill}
// @Router /api/skills [get]
func (c *AdminController) ListSkills(ctx *gin.Context) {
	skills, err := c.AdminService.ListSkills(ctx.Request.Context())
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, skills)
}

// @Summary 创建技能
// @Description 为所有现有学生补建锁定状态
// @Tags 管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.CreateSkillRequest true "技能信息"
// @Success 201 {object} util.Response{data=model.Skill}
// @Router /api/admin/skills [post]
func (c *AdminController) CreateSkill(ctx *gin.Context) {
	var req service.CreateSkillRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	skill, err := c.AdminService.CreateSkill(ctx.Request.Context(), req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, skill)
}

// @Summary 删除技能
// @Description 级联删除状态、题目、测试、报告与补救材料
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Param id path int true "技能ID"
// @Success 200 {object} util.Response
// @Router /api/admin/skills/{id} [delete]
func (c *AdminController) DeleteSkill(ctx *gin.Context) {
	skillID, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	if err := c.AdminService.DeleteSkill(ctx.Request.Context(), skillID); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"id": skillID})
}

// @Summary 创建用户
// @Description 新学生自动解锁首个技能
// @Tags 管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.CreateUserRequest true "用户信息"
// @Success 201 {object} util.Response{data=model.User}
// @Failure 400 {object} util.Response "用户名已存在"
// @Router /api/admin/users [post]
func (c *AdminController) CreateUser(ctx *gin.Context) {
	var req service.CreateUserRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	user, err := c.AdminService.CreateUser(ctx.Request.Context(), req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, user)
}

// @Summary 用户列表
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Param role query string true "student / teacher / chairman"
// @Success 200 {object} util.Response{data=[]model.User}
// @Router /api/admin/users [get]
func (c *AdminController) ListUsers(ctx *gin.Context) {
	users, err := c.AdminService.ListUsers(ctx.Request.Context(), model.UserRole(ctx.Query("role")))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, users)
}

// @Summary 新增题目
// @Description 教师与主任均可出题，题目以草稿创建，审核后进入考试
// @Tags 题目
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.AddQuestionRequest true "题目"
// @Success 201 {object} util.Response{data=model.Question}
// @Router /api/questions [post]
func (c *AdminController) AddQuestion(ctx *gin.Context) {
	user, ok := currentUser(ctx)
	if !ok {
		return
	}
	var req service.AddQuestionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	q, err := c.AdminService.AddQuestion(ctx.Request.Context(), user.UserID, user.Role, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, q)
}

// @Summary 题目列表
// @Tags 题目
// @Produce json
// @Security BearerAuth
// @Param skill_id query int true "技能ID"
// @Success 200 {object} util.Response{data=[]model.Question}
// @Router /api/admin/questions [get]
func (c *AdminController) ListQuestions(ctx *gin.Context) {
	skillID := util.MustParseUint(ctx.Query("skill_id"))
	if skillID == 0 {
		util.BadRequest(ctx, "invalid skill_id")
		return
	}
	questions, err := c.AdminService.ListQuestions(ctx.Request.Context(), skillID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, questions)
}

// @Summary 审核通过题目
// @Tags 题目
// @Produce json
// @Security BearerAuth
// @Param id path int true "题目ID"
// @Success 200 {object} util.Response{data=model.Question}
// @Failure 400 {object} util.Response "题目不完整"
// @Router /api/admin/questions/{id}/approve [post]
func (c *AdminController) ApproveQuestion(ctx *gin.Context) {
	questionID, ok := paramID(ctx, "id")
	if !ok {
		return
	}
	q, err := c.AdminService.ApproveQuestion(ctx.Request.Context(), questionID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, q)
}
