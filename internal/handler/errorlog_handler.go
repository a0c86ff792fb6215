package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Danilnaisov/praktika05/internal/service"
	"github.com/Danilnaisov/praktika05/pkg/response"
)

// ErrorLogHandler exposes the collected error log.
type ErrorLogHandler struct {
	errorLogs *service.ErrorLogService
}

// NewErrorLogHandler constructs ErrorLogHandler.
func NewErrorLogHandler(errorLogs *service.ErrorLogService) *ErrorLogHandler {
	return &ErrorLogHandler{errorLogs: errorLogs}
}

// List godoc
// @Summary List recent error records
// @Tags Errors
// @Produce json
// @Param limit query int false "Max records, defaults to 100"
// @Success 200 {object} response.Envelope
// @Router /errors [get]
func (h *ErrorLogHandler) List(c *gin.Context) {
	entries, err := h.errorLogs.ListRecent(c.Request.Context(), queryInt(c, "limit", 100))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
