package controller

import (
	"net/http"

	"skillset_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// HealthController 探活：数据库必需，Redis 未启用时报告 disabled
type HealthController struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewHealthController(db *gorm.DB, rdb *redis.Client) *HealthController {
	return &HealthController{DB: db, Redis: rdb}
}

// @Summary 健康检查
// @Tags 系统
// @Produce json
// @Success 200 {object} util.Response
// @Failure 503 {object} util.Response "数据库不可用"
// @Router /api/health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	reqCtx := ctx.Request.Context()

	sqlDB, err := c.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(reqCtx)
	}
	if err != nil {
		util.Error(ctx, http.StatusServiceUnavailable, "database unavailable")
		return
	}

	cache := "disabled"
	if c.Redis != nil {
		cache = "up"
		if err := c.Redis.Ping(reqCtx).Err(); err != nil {
			// 锁退化为仅靠唯一约束，不影响可用性
			cache = "down"
		}
	}

	util.Success(ctx, gin.H{
		"status":   "ok",
		"database": "up",
		"redis":    cache,
	})
}
