package models

import (
	"time"
)

// VideoFormat is the only container the recorder produces
const VideoFormat = "mp4"

// State is the lifecycle state of a capture
type State string

const (
	StateIdle      State = "idle"
	StateStarted   State = "started"
	StateRecording State = "recording"
	StateStopped   State = "stopped"
	StateFinished  State = "finished"
)

// UploadState is the state of an upload sub-record
type UploadState string

const (
	UploadScheduled UploadState = "scheduled"
	UploadUploading UploadState = "uploading"
	UploadFinished  UploadState = "finished"
	UploadError     UploadState = "error"
)

// Capture represents one recorded test session and its metadata
type Capture struct {
	ID             string            `json:"id,omitempty"`
	Folder         string            `json:"folder,omitempty"`
	Project        string            `json:"project,omitempty"`
	Feature        string            `json:"feature,omitempty"`
	Scenario       string            `json:"scenario,omitempty"`
	Description    string            `json:"description,omitempty"`
	Categories     Categories        `json:"categories,omitempty"`
	Environment    map[string]string `json:"environment,omitempty"`
	Started        *time.Time        `json:"started,omitempty"`
	Finished       *time.Time        `json:"finished,omitempty"`
	Format         string            `json:"format,omitempty"`
	Meta           map[string]string `json:"meta,omitempty"`
	TestStatus     string            `json:"testStatus,omitempty"`
	TestError      string            `json:"testError,omitempty"`
	TestStackTrace string            `json:"testStackTrace,omitempty"`
	TestLogs       string            `json:"testLogs,omitempty"`
	Upload         *Upload           `json:"upload,omitempty"`
}

// Clone returns a deep copy so snapshots never share maps or pointers
func (c Capture) Clone() Capture {
	out := c
	out.Categories = c.Categories.Clone()
	out.Environment = cloneMap(c.Environment)
	out.Meta = cloneMap(c.Meta)
	out.Started = cloneTime(c.Started)
	out.Finished = cloneTime(c.Finished)
	if c.Upload != nil {
		u := c.Upload.Clone()
		out.Upload = &u
	}
	return out
}

// Upload tracks the transfer of a capture's artifacts to the collector
type Upload struct {
	State        UploadState `json:"state"`
	URL          string      `json:"url,omitempty"`
	Scheduled    *time.Time  `json:"scheduled,omitempty"`
	Started      *time.Time  `json:"started,omitempty"`
	Updated      *time.Time  `json:"updated,omitempty"`
	Finished     *time.Time  `json:"finished,omitempty"`
	Total        int64       `json:"total,omitempty"`
	Transferred  int64       `json:"transferred,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	StatusCode   int         `json:"statusCode,omitempty"`
}

// Clone returns a deep copy of the upload
func (u Upload) Clone() Upload {
	out := u
	out.Scheduled = cloneTime(u.Scheduled)
	out.Started = cloneTime(u.Started)
	out.Updated = cloneTime(u.Updated)
	out.Finished = cloneTime(u.Finished)
	return out
}

// Rect is the screen area handed to the recording engine
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// CategoryDefault describes one configured category dimension
type CategoryDefault struct {
	Key      string `json:"key"`
	Default  string `json:"default,omitempty"`
	Required bool   `json:"required,omitempty"`
}

// Info carries the environment and defaults used to resolve a new capture
type Info struct {
	Project     string            `json:"project,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	Categories  []CategoryDefault `json:"categories,omitempty"`
}

// CaptureSummary is the listing view of a persisted capture
type CaptureSummary struct {
	ID          string      `json:"id"`
	Folder      string      `json:"folder"`
	Feature     string      `json:"feature,omitempty"`
	Scenario    string      `json:"scenario,omitempty"`
	Started     *time.Time  `json:"started,omitempty"`
	Finished    *time.Time  `json:"finished,omitempty"`
	TestStatus  string      `json:"testStatus,omitempty"`
	UploadState UploadState `json:"uploadState,omitempty"`
}

// Summarize projects a capture to its listing view
func Summarize(c Capture) CaptureSummary {
	s := CaptureSummary{
		ID:         c.ID,
		Folder:     c.Folder,
		Feature:    c.Feature,
		Scenario:   c.Scenario,
		Started:    cloneTime(c.Started),
		Finished:   cloneTime(c.Finished),
		TestStatus: c.TestStatus,
	}
	if c.Upload != nil {
		s.UploadState = c.Upload.State
	}
	return s
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
