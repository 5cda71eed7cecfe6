package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"testrec/internal/models"
)

// UploadPipeline is the part of the upload pipeline exposed over HTTP
type UploadPipeline interface {
	Enabled() bool
	Schedule(ctx context.Context, id string) (models.UploadStatus, error)
	Status() []models.UploadStatus
	Cancel()
	SetTarget(url string, headers map[string]string) error
}

func ApiUploadSchedule(c *gin.Context, uploads UploadPipeline) {
	status, err := uploads.Schedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, status)
}

func ApiUploadStatus(c *gin.Context, uploads UploadPipeline) {
	c.JSON(http.StatusOK, uploads.Status())
}

func ApiUploadCancel(c *gin.Context, uploads UploadPipeline) {
	uploads.Cancel()
	c.Status(http.StatusNoContent)
}

func ApiUploadTarget(c *gin.Context, uploads UploadPipeline) {
	var req struct {
		URL     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	}
	if !bindOptionalJSON(c, &req) {
		return
	}
	if err := uploads.SetTarget(req.URL, req.Headers); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": req.URL})
}
