package util

import (
	"errors"
	"net/http"

	"skillset_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, "Unauthorized")
}

func Forbidden(c *gin.Context) {
	Error(c, http.StatusForbidden, "Forbidden")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func NotFound(c *gin.Context) {
	Error(c, http.StatusNotFound, "Resource not found")
}

func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, message)
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error", zap.Error(err))
	InternalServerError(c)
}

// RespondError 按错误分类输出：业务拒绝 409，不存在 404，越权 403，其余记录日志后 500
func RespondError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if reason, ok := IsPolicyDenied(err); ok {
		Conflict(c, reason)
		return
	}
	switch {
	case IsNotFound(err):
		Error(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrPermissionDenied):
		Forbidden(c)
	case errors.Is(err, ErrAttemptSubmitted), errors.Is(err, ErrReportAlreadyExists):
		Conflict(c, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		Error(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrUsernameTaken), errors.Is(err, ErrQuestionNotApprovable),
		errors.Is(err, ErrAttemptNotSubmitted), errors.Is(err, ErrStudentHasNoTeacher),
		errors.Is(err, ErrUnsupportedFile), errors.Is(err, ErrEmptyRemediation),
		errors.Is(err, ErrInvalidRole):
		BadRequest(c, err.Error())
	case errors.As(err, &verrs):
		BadRequest(c, verrs.Error())
	default:
		LogInternalError(c, err)
	}
}
