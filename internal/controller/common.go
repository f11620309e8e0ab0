package controller

import (
	"strconv"

	"skillset_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// paramID 解析路径中的正整数 ID，失败时已写入 400
func paramID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 32)
	if err != nil || id == 0 {
		util.BadRequest(ctx, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// currentUser 取出鉴权中间件写入的身份，缺失时已写入 401
func currentUser(ctx *gin.Context) (*util.Claims, bool) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return nil, false
	}
	return user, true
}
