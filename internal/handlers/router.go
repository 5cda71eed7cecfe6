package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"testrec/internal/recording"
	"testrec/internal/repository"
)

// Dependencies are the collaborators the HTTP layer adapts
type Dependencies struct {
	Service *recording.Service
	Repo    repository.Repository
	Uploads UploadPipeline
	// DB is optional; it is only pinged by the health check
	DB *gorm.DB
}

// NewRouter registers every route on a fresh gin engine
func NewRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	svc, repo, uploads := deps.Service, deps.Repo, deps.Uploads

	r.GET("/healthz", HealthCheckHandler(deps.DB, uploads))

	api := r.Group("/api/v1")
	api.GET("/capture", func(c *gin.Context) { ApiCaptureCurrent(c, svc) })
	api.POST("/capture/start", func(c *gin.Context) { ApiCaptureStart(c, svc) })
	api.POST("/capture/record", func(c *gin.Context) { ApiCaptureRecord(c, svc) })
	api.POST("/capture/stop", func(c *gin.Context) { ApiCaptureStop(c, svc) })
	api.POST("/capture/finish", func(c *gin.Context) { ApiCaptureFinish(c, svc) })
	api.POST("/capture/cancel", func(c *gin.Context) { ApiCaptureCancel(c, svc) })

	api.GET("/captures", func(c *gin.Context) { ApiCapturesList(c, repo) })
	api.GET("/captures/:id", func(c *gin.Context) { ApiCaptureGet(c, repo) })
	api.DELETE("/captures/:id", func(c *gin.Context) { ApiCaptureDelete(c, repo) })
	api.GET("/captures/:id/:artifact", func(c *gin.Context) { ServeArtifact(c, repo) })

	api.GET("/uploads", func(c *gin.Context) { ApiUploadStatus(c, uploads) })
	api.DELETE("/uploads", func(c *gin.Context) { ApiUploadCancel(c, uploads) })
	api.PUT("/uploads/target", func(c *gin.Context) { ApiUploadTarget(c, uploads) })
	api.POST("/uploads/:id", func(c *gin.Context) { ApiUploadSchedule(c, uploads) })

	return r
}
