package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shoptrend/internal/model"
	"shoptrend/internal/task"
)

// SuccessResponse 成功响应
type SuccessResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// JSONSuccess 返回成功响应
func JSONSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, SuccessResponse{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// JSONError 按错误类型映射 HTTP 状态码并返回错误响应
func JSONError(c *gin.Context, logger *zap.Logger, message string, err error) {
	status := StatusOf(err)
	response := ErrorResponse{
		Code:    status,
		Message: message,
	}
	if err != nil {
		response.Error = err.Error()
		_ = c.Error(err)
		if status >= http.StatusInternalServerError {
			logger.Error(message, zap.Error(err))
		} else {
			logger.Debug(message, zap.Error(err))
		}
	}
	c.JSON(status, response)
}

// StatusOf 错误到 HTTP 状态码的映射
func StatusOf(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound), errors.Is(err, task.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrExhaustedRetries), errors.Is(err, task.ErrTaskRunning):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
