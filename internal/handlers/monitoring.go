package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthCheckHandler reports liveness. When a database is configured it
// must answer a ping.
func HealthCheckHandler(db *gorm.DB, uploads UploadPipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			sqlDB, err := db.DB()
			if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database connection failed"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":          "healthy",
			"uploads_enabled": uploads.Enabled(),
			"uploads_tracked": len(uploads.Status()),
		})
	}
}
