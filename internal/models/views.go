package models

import (
	"time"
)

// CaptureView is what the service returns after every lifecycle call
type CaptureView struct {
	State          State             `json:"state"`
	ID             string            `json:"id,omitempty"`
	Folder         string            `json:"folder,omitempty"`
	Project        string            `json:"project,omitempty"`
	Feature        string            `json:"feature,omitempty"`
	Scenario       string            `json:"scenario,omitempty"`
	Description    string            `json:"description,omitempty"`
	Categories     Categories        `json:"categories,omitempty"`
	Meta           map[string]string `json:"meta,omitempty"`
	Started        *time.Time        `json:"started,omitempty"`
	Finished       *time.Time        `json:"finished,omitempty"`
	DurationMillis int64             `json:"durationMillis,omitempty"`
	TestStatus     string            `json:"testStatus,omitempty"`
	TestError      string            `json:"testError,omitempty"`
	Upload         *UploadStatus     `json:"upload,omitempty"`
}

// UploadStatus is the pollable view of one capture's upload
type UploadStatus struct {
	ID           string      `json:"id"`
	State        UploadState `json:"state"`
	URL          string      `json:"url,omitempty"`
	Scheduled    *time.Time  `json:"scheduled,omitempty"`
	Started      *time.Time  `json:"started,omitempty"`
	Updated      *time.Time  `json:"updated,omitempty"`
	Finished     *time.Time  `json:"finished,omitempty"`
	Total        int64       `json:"total"`
	Transferred  int64       `json:"transferred"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	StatusCode   int         `json:"statusCode,omitempty"`
}

// NewUploadStatus projects a capture to its upload view. It returns nil
// when no upload was ever scheduled.
func NewUploadStatus(c Capture) *UploadStatus {
	if c.Upload == nil {
		return nil
	}
	u := c.Upload.Clone()
	return &UploadStatus{
		ID:           c.ID,
		State:        u.State,
		URL:          u.URL,
		Scheduled:    u.Scheduled,
		Started:      u.Started,
		Updated:      u.Updated,
		Finished:     u.Finished,
		Total:        u.Total,
		Transferred:  u.Transferred,
		ErrorMessage: u.ErrorMessage,
		StatusCode:   u.StatusCode,
	}
}

// Duration is finished-started, or now-started while the capture runs
func Duration(c Capture, now time.Time) time.Duration {
	if c.Started == nil {
		return 0
	}
	if c.Finished != nil {
		return c.Finished.Sub(*c.Started)
	}
	return now.Sub(*c.Started)
}
