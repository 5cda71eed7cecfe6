package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	apperrors "testrec/internal/errors"
	"testrec/internal/models"
	"testrec/internal/repository"
)

// InfoProvider supplies the environment and category defaults used by Start
type InfoProvider interface {
	Info(ctx context.Context) (*models.Info, error)
}

// StaticInfo serves a fixed Info value
type StaticInfo struct {
	Value models.Info
}

func (s StaticInfo) Info(context.Context) (*models.Info, error) {
	info := s.Value
	info.Environment = copyMeta(s.Value.Environment)
	info.Categories = append([]models.CategoryDefault(nil), s.Value.Categories...)
	return &info, nil
}

// Recorder is the screen-recording engine. Start must not block for the
// duration of the recording; Stop must flush everything written to out.
type Recorder interface {
	Start(ctx context.Context, c models.Capture, display *models.Rect, out io.Writer) error
	Stop(ctx context.Context) error
}

// NopRecorder records nothing. It leaves an empty video file behind.
type NopRecorder struct{}

func (NopRecorder) Start(context.Context, models.Capture, *models.Rect, io.Writer) error { return nil }
func (NopRecorder) Stop(context.Context) error                                          { return nil }

// Scheduler queues a finished capture for upload
type Scheduler interface {
	Schedule(ctx context.Context, id string) (models.UploadStatus, error)
}

type ServiceOptions struct {
	Recorder  Recorder
	Scheduler Scheduler
	// AutoUpload schedules every capture as soon as it is finished
	AutoUpload bool
	Clock      Clock
	IDs        IDGenerator
}

// Service owns the single live CaptureStatus of the process
type Service struct {
	mu       sync.Mutex
	status   CaptureStatus
	idle     CaptureStatus
	video    io.WriteCloser
	info     InfoProvider
	repo     repository.Repository
	recorder Recorder
	uploads  Scheduler
	auto     bool
	now      Clock
}

func NewService(info InfoProvider, repo repository.Repository, opts ServiceOptions) *Service {
	idle := Idle()
	if opts.Clock != nil || opts.IDs != nil {
		idle = IdleWith(opts.Clock, opts.IDs)
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = NopRecorder{}
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Service{
		status:   idle,
		idle:     idle,
		info:     info,
		repo:     repo,
		recorder: recorder,
		uploads:  opts.Scheduler,
		auto:     opts.AutoUpload && opts.Scheduler != nil,
		now:      now,
	}
}

// Current returns the view of the live snapshot
func (s *Service) Current() models.CaptureView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

// Status returns the live snapshot itself
func (s *Service) Status() CaptureStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Service) Start(ctx context.Context, params StartParams) (models.CaptureView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.info.Info(ctx)
	if err != nil {
		return s.view(), fmt.Errorf("failed to load environment info: %w", err)
	}
	next, err := s.status.Start(info, params)
	if err != nil {
		return s.view(), err
	}
	s.status = next
	slog.Info("Capture started", "feature", next.capture.Feature, "scenario", next.capture.Scenario)

	if params.Record {
		if err := s.record(ctx, params.Display); err != nil {
			return s.view(), err
		}
	}
	return s.view(), nil
}

func (s *Service) Record(ctx context.Context, display *models.Rect) (models.CaptureView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.record(ctx, display)
	return s.view(), err
}

func (s *Service) record(ctx context.Context, display *models.Rect) error {
	next, err := s.status.Record(display)
	if err != nil {
		return err
	}
	if next.state == s.status.state {
		return nil
	}

	c := next.capture
	out, err := s.repo.VideoWriter(ctx, c)
	if err != nil {
		return fmt.Errorf("failed to open video output for %s: %w", c.ID, err)
	}
	if err := s.recorder.Start(ctx, c, next.display, out); err != nil {
		out.Close()
		if derr := s.repo.DiscardArtifacts(ctx, c); derr != nil {
			slog.Warn("Failed to discard partial video", "capture_id", c.ID, "error", derr)
		}
		return fmt.Errorf("failed to start recorder for %s: %w", c.ID, err)
	}

	s.video = out
	s.status = next
	slog.Info("Recording started", "capture_id", c.ID, "folder", c.Folder)
	return nil
}

// Stop ends the recording. The snapshot moves to Stopped even if the engine
// fails to stop cleanly; that failure is returned alongside the view.
func (s *Service) Stop(ctx context.Context) (models.CaptureView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.state != models.StateRecording {
		return s.view(), nil
	}
	err := s.releaseEngine(ctx)
	s.status = s.status.Stop()
	slog.Info("Recording stopped", "capture_id", s.status.capture.ID)
	return s.view(), err
}

// Finish records the test outcome and persists the capture. If the save
// fails the snapshot is left Stopped so Finish can be retried.
func (s *Service) Finish(ctx context.Context, params FinishParams) (models.CaptureView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stopped := s.status.Stop()
	finished, err := stopped.Finish(params)
	if err != nil {
		return s.view(), err
	}

	var engineErr error
	if s.status.state == models.StateRecording {
		engineErr = s.releaseEngine(ctx)
	}
	s.status = stopped

	c := finished.capture
	if err := s.repo.Save(ctx, c); err != nil {
		return s.view(), fmt.Errorf("failed to save capture %s: %w", c.ID, err)
	}
	s.status = finished
	slog.Info("Capture finished", "capture_id", c.ID, "test_status", c.TestStatus)

	if s.auto {
		if _, err := s.uploads.Schedule(ctx, c.ID); err != nil {
			slog.Warn("Automatic upload not scheduled", "capture_id", c.ID, "error", err)
		}
	}
	return s.view(), engineErr
}

// Cancel releases the engine, drops the files of an unfinished capture and
// returns to Idle. It is valid from every state.
func (s *Service) Cancel(ctx context.Context) models.CaptureView {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.state == models.StateRecording {
		if err := s.releaseEngine(ctx); err != nil {
			slog.Warn("Recorder did not stop cleanly on cancel", "error", err)
		}
	}
	if s.status.state != models.StateFinished {
		if err := s.repo.DiscardArtifacts(ctx, s.status.capture); err != nil {
			slog.Warn("Failed to discard artifacts on cancel", "capture_id", s.status.capture.ID, "error", err)
		}
	}
	if s.status.state != models.StateIdle {
		slog.Info("Capture cancelled", "capture_id", s.status.capture.ID, "state", s.status.state)
	}
	s.status = s.idle
	return s.view()
}

func (s *Service) releaseEngine(ctx context.Context) error {
	stopErr := s.recorder.Stop(ctx)
	var closeErr error
	if s.video != nil {
		closeErr = s.video.Close()
		s.video = nil
	}
	if err := errors.Join(stopErr, closeErr); err != nil {
		return apperrors.NewInternal(fmt.Errorf("failed to stop recording: %w", err))
	}
	return nil
}

func (s *Service) view() models.CaptureView {
	c := s.status.capture
	v := models.CaptureView{
		State:       s.status.state,
		ID:          c.ID,
		Folder:      c.Folder,
		Project:     c.Project,
		Feature:     c.Feature,
		Scenario:    c.Scenario,
		Description: c.Description,
		Categories:  c.Categories.Clone(),
		Meta:        copyMeta(c.Meta),
		TestStatus:  c.TestStatus,
		TestError:   c.TestError,
		Upload:      models.NewUploadStatus(c),
	}
	if c.Started != nil {
		t := *c.Started
		v.Started = &t
	}
	if c.Finished != nil {
		t := *c.Finished
		v.Finished = &t
	}
	v.DurationMillis = models.Duration(c, s.now()).Milliseconds()
	return v
}
