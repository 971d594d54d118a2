package handler

import (
	"errors"
	"net/http"

	"github.com/DAO-Driven/Crowdfunding-on-Allo-V2/internal/logic"
	"github.com/gin-gonic/gin"
)

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Data:    nil,
	})
}

// LedgerErrorResponse 按错误分类返回状态码和错误码
func LedgerErrorResponse(c *gin.Context, err error) {
	c.JSON(statusOf(err), Response{
		Success: false,
		Message: err.Error(),
		Code:    codeOf(err),
	})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, logic.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, logic.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, logic.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, logic.ErrStateConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func codeOf(err error) string {
	if le, ok := logic.AsLedgerError(err); ok {
		return le.Code()
	}
	return "internal_error"
}
