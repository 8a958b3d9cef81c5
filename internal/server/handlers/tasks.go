package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListTasks GET /tasks
func (h *Handler) ListTasks(c *gin.Context) {
	JSONSuccess(c, http.StatusOK, h.deps.Tasks.Status())
}

// RunTask POST /tasks/:name/run，同步等待任务结束
func (h *Handler) RunTask(c *gin.Context) {
	result, err := h.deps.Tasks.RunNow(context.WithoutCancel(c.Request.Context()), c.Param("name"))
	if err != nil {
		JSONError(c, h.logger, "run task failed", err)
		return
	}
	message := "success"
	if !result.Success {
		message = "task failed"
	}
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: message, Data: result})
}
