package models

import (
	"fmt"
	"time"

	apperrors "testrec/internal/errors"
)

// NewScheduledUpload creates the sub-record written when a capture is queued
func NewScheduledUpload(url string, now time.Time) Upload {
	return Upload{
		State:     UploadScheduled,
		URL:       url,
		Scheduled: &now,
	}
}

// Begin moves a scheduled upload to Uploading
func (u Upload) Begin(now time.Time) (Upload, error) {
	if u.State != UploadScheduled {
		return u, invalidUploadTransition(u.State, UploadUploading)
	}
	out := u.Clone()
	out.State = UploadUploading
	out.Started = &now
	out.Updated = &now
	out.Total = 0
	out.Transferred = 0
	return out, nil
}

// Progress records the byte counters of an in-flight upload
func (u Upload) Progress(now time.Time, transferred, total int64) (Upload, error) {
	if u.State != UploadUploading {
		return u, invalidUploadTransition(u.State, UploadUploading)
	}
	out := u.Clone()
	out.Updated = &now
	out.Transferred = transferred
	out.Total = total
	return out, nil
}

// Complete marks the upload Finished with every byte transferred
func (u Upload) Complete(now time.Time) (Upload, error) {
	if u.State != UploadUploading {
		return u, invalidUploadTransition(u.State, UploadFinished)
	}
	out := u.Clone()
	out.State = UploadFinished
	out.Updated = &now
	out.Finished = &now
	out.Transferred = out.Total
	return out, nil
}

// Fail marks an in-flight upload Error. finished stays unset; it belongs
// to the Finished transition only.
func (u Upload) Fail(now time.Time, message string, statusCode int) (Upload, error) {
	if u.State != UploadUploading {
		return u, invalidUploadTransition(u.State, UploadError)
	}
	out := u.Clone()
	out.State = UploadError
	out.Updated = &now
	out.ErrorMessage = message
	out.StatusCode = statusCode
	return out, nil
}

// Active reports whether the upload is queued or in flight
func (u Upload) Active() bool {
	return u.State == UploadScheduled || u.State == UploadUploading
}

func invalidUploadTransition(from, to UploadState) error {
	return apperrors.NewInvalidState(fmt.Sprintf("upload cannot move from %s to %s", from, to))
}
