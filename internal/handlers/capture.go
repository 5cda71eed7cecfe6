package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"testrec/internal/models"
	"testrec/internal/recording"
)

func ApiCaptureCurrent(c *gin.Context, svc *recording.Service) {
	c.JSON(http.StatusOK, svc.Current())
}

func ApiCaptureStart(c *gin.Context, svc *recording.Service) {
	var params recording.StartParams
	if !bindOptionalJSON(c, &params) {
		return
	}
	view, err := svc.Start(c.Request.Context(), params)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func ApiCaptureRecord(c *gin.Context, svc *recording.Service) {
	var req struct {
		Display *models.Rect `json:"display"`
	}
	if !bindOptionalJSON(c, &req) {
		return
	}
	view, err := svc.Record(c.Request.Context(), req.Display)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func ApiCaptureStop(c *gin.Context, svc *recording.Service) {
	view, err := svc.Stop(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func ApiCaptureFinish(c *gin.Context, svc *recording.Service) {
	var params recording.FinishParams
	if !bindOptionalJSON(c, &params) {
		return
	}
	view, err := svc.Finish(c.Request.Context(), params)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func ApiCaptureCancel(c *gin.Context, svc *recording.Service) {
	c.JSON(http.StatusOK, svc.Cancel(c.Request.Context()))
}
