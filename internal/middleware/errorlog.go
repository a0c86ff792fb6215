package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Danilnaisov/praktika05/internal/service"
)

// ErrorLog persists server-side failures into the error log table so
// the office can review them without access to process logs.
func ErrorLog(errorLogs *service.ErrorLogService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < http.StatusInternalServerError && len(c.Errors) == 0 {
			return
		}

		message := fmt.Sprintf("%s %s", c.Request.Method, c.Request.URL.Path)
		if len(c.Errors) > 0 {
			message = fmt.Sprintf("%s: %s", message, c.Errors.String())
		}
		errorLogs.Log(c.Request.Context(), fmt.Sprintf("HTTP_%d", status), message)
	}
}
