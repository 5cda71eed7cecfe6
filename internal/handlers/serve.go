package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "testrec/internal/errors"
	"testrec/internal/models"
	"testrec/internal/repository"
)

func ApiCapturesList(c *gin.Context, repo repository.Repository) {
	captures, err := repo.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if captures == nil {
		captures = []models.CaptureSummary{}
	}
	c.JSON(http.StatusOK, captures)
}

func ApiCaptureGet(c *gin.Context, repo repository.Repository) {
	capture, err := repo.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, capture)
}

func ApiCaptureDelete(c *gin.Context, repo repository.Repository) {
	id := c.Param("id")
	if err := repo.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	slog.Info("Capture deleted", "capture_id", id)
	c.Status(http.StatusNoContent)
}

// ServeArtifact streams a capture's video or metadata file
func ServeArtifact(c *gin.Context, repo repository.Repository) {
	id := c.Param("id")
	kind := repository.ArtifactKind(c.Param("artifact"))

	var ct, filename string
	switch kind {
	case repository.ArtifactVideo:
		ct = "video/" + models.VideoFormat
		filename = id + "." + models.VideoFormat
	case repository.ArtifactMetadata:
		ct = "application/json"
		filename = id + ".json"
	default:
		respondError(c, apperrors.NewInvalidParameter(fmt.Sprintf("unknown artifact %q", kind)))
		return
	}

	capture, err := repo.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	r, size, err := repo.OpenArtifact(c.Request.Context(), capture, kind)
	if err != nil {
		respondError(c, err)
		return
	}
	defer r.Close()

	c.Header("Content-Type", ct)
	c.Header("Content-Length", strconv.FormatInt(size, 10))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Status(http.StatusOK)

	if _, err := io.Copy(c.Writer, r); err != nil {
		// headers are already sent; the client sees a truncated body
		slog.Warn("Error streaming artifact", "capture_id", id, "artifact", kind, "error", err)
	}
}
