package app

import (
	"skillset_backend/docs"
	"skillset_backend/internal/config"
	"skillset_backend/internal/middleware"
	"skillset_backend/internal/model"
	"skillset_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由；限流在鉴权之后，按用户计数
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), a.rateLimit(cfg))
	{
		authGroup.GET("/me", c.auth.Me)
		authGroup.GET("/skills", c.admin.ListSkills)
		authGroup.GET("/reports/:attemptId/download", c.report.Download)
		authGroup.POST("/reports/:attemptId/regenerate",
			middleware.RoleMiddleware(model.Teacher, model.Chairman), c.report.Regenerate)
		authGroup.POST("/questions",
			middleware.RoleMiddleware(model.Teacher, model.Chairman), c.admin.AddQuestion)

		a.registerStudentRoutes(authGroup, c)
		a.registerTeacherRoutes(authGroup, c)
		a.registerAdminRoutes(authGroup, c)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	public.Use(a.rateLimit(a.Config))
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/auth/login", c.auth.Login)
	}
}

func (a *App) registerStudentRoutes(group *gin.RouterGroup, c *controllers) {
	student := group.Group("/student")
	student.Use(middleware.RoleMiddleware(model.Student))
	{
		student.GET("/dashboard", c.student.Dashboard)
		student.GET("/teachers", c.auth.ListTeachers)
		student.POST("/teacher", c.auth.SelectTeacher)

		student.POST("/skills/:skillId/attempts", c.student.StartAttempt)
		student.GET("/attempts/:id", c.student.ResumeAttempt)
		student.POST("/attempts/:id/submit", c.student.SubmitAttempt)
		student.GET("/attempts/:id/result", c.student.AttemptResult)
	}
}

func (a *App) registerTeacherRoutes(group *gin.RouterGroup, c *controllers) {
	teacher := group.Group("/teacher")
	teacher.Use(middleware.RoleMiddleware(model.Teacher))
	{
		teacher.GET("/students", c.teacher.ListStudents)
		teacher.GET("/students/:studentId/progress", c.teacher.StudentProgress)
		teacher.POST("/students/:studentId/skills/:skillId/unlock", c.teacher.UnlockSkill)
		teacher.POST("/students/:studentId/skills/:skillId/lock", c.teacher.LockSkill)
		teacher.POST("/students/:studentId/skills/:skillId/extra-attempt", c.teacher.GrantExtraAttempt)
		teacher.POST("/students/:studentId/skills/:skillId/remediations", c.teacher.UploadRemediation)

		teacher.GET("/reports", c.teacher.ListReports)
		teacher.GET("/reports/export", c.teacher.ExportCSV)
	}
}

func (a *App) registerAdminRoutes(group *gin.RouterGroup, c *controllers) {
	admin := group.Group("/admin")
	admin.Use(middleware.RoleMiddleware(model.Chairman))
	{
		admin.POST("/skills", c.admin.CreateSkill)
		admin.DELETE("/skills/:id", c.admin.DeleteSkill)

		admin.GET("/users", c.admin.ListUsers)
		admin.POST("/users", c.admin.CreateUser)

		admin.GET("/questions", c.admin.ListQuestions)
		admin.POST("/questions/:id/approve", c.admin.ApproveQuestion)
	}
}
