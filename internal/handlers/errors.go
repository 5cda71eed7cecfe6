package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "testrec/internal/errors"
)

// respondError writes err as {"error": {"code", "message"}} with the status
// its code maps to. Unexpected errors are logged and reported as INTERNAL.
func respondError(c *gin.Context, err error) {
	appErr := apperrors.As(err)
	if appErr.Status >= http.StatusInternalServerError {
		slog.Error("Request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"code", appErr.Code,
			"error", err)
	}
	body := gin.H{
		"code":    appErr.Code,
		"message": appErr.Message,
	}
	if len(appErr.Details) > 0 {
		body["details"] = appErr.Details
	}
	c.AbortWithStatusJSON(appErr.Status, gin.H{"error": body})
}

// bindOptionalJSON decodes the request body into dst when one was sent
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, apperrors.NewInvalidParameter("invalid request body: "+err.Error()))
		return false
	}
	return true
}
