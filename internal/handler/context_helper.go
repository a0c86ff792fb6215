package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Danilnaisov/praktika05/internal/middleware"
	"github.com/Danilnaisov/praktika05/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// queryDate parses the reference date query parameter. A zero time is
// returned when the parameter is absent or malformed; services default
// it to today.
func queryDate(c *gin.Context, name string) time.Time {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}
	}
	at, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}
	}
	return at
}

func queryBoolPtr(c *gin.Context, name string) *bool {
	switch c.Query(name) {
	case "true":
		v := true
		return &v
	case "false":
		v := false
		return &v
	}
	return nil
}

func queryInt(c *gin.Context, name string, fallback int) int {
	if v, err := strconv.Atoi(c.DefaultQuery(name, strconv.Itoa(fallback))); err == nil {
		return v
	}
	return fallback
}
