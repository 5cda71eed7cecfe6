// Package workers runs the asynchronous upload pipeline: a FIFO of
// scheduled captures drained by a fixed pool of upload workers, a status map
// polled by clients, and a retention sweeper.
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	apperrors "testrec/internal/errors"
	"testrec/internal/models"
	"testrec/internal/repository"
	"testrec/internal/utils"
)

// Config controls the upload pipeline
type Config struct {
	Enabled          bool
	URL              string
	Headers          map[string]string
	Threads          int
	ProgressInterval time.Duration
	Retention        time.Duration
	SweepInterval    time.Duration
	Timeout          time.Duration
	// Client defaults to a client without its own timeout; Timeout bounds
	// each transfer instead.
	Client *http.Client
	Clock  func() time.Time
}

type target struct {
	url     string
	headers map[string]string
}

type entry struct {
	capture models.Capture
	token   uint64
	headers map[string]string
}

// Pipeline uploads finished captures to the collector
type Pipeline struct {
	cfg     Config
	repo    repository.Repository
	client  *http.Client
	now     func() time.Time
	queue   *Queue
	sweeper *Sweeper
	wg      sync.WaitGroup

	mu     sync.Mutex
	target target
	status map[string]*entry
	// inflight maps a capture id to the token of the job a worker is
	// transferring. Cancel leaves it alone.
	inflight map[string]uint64
	token    uint64
}

// NewPipeline builds the pipeline and, when uploads are enabled with at
// least one thread, starts the workers and the retention sweeper.
func NewPipeline(cfg Config, repo repository.Repository) (*Pipeline, error) {
	if cfg.Enabled {
		if err := utils.ValidateCollectorURL(cfg.URL); err != nil {
			return nil, fmt.Errorf("invalid upload target: %w", err)
		}
		if err := utils.ValidateHeaders(cfg.Headers); err != nil {
			return nil, fmt.Errorf("invalid upload headers: %w", err)
		}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}

	p := &Pipeline{
		cfg:    cfg,
		repo:   repo,
		client: client,
		now:    cfg.Clock,
		queue:  NewQueue(),
		target: target{url: cfg.URL, headers: copyHeaders(cfg.Headers)},
		status:   make(map[string]*entry),
		inflight: make(map[string]uint64),
	}
	if !p.Enabled() {
		slog.Info("Upload pipeline disabled")
		return p, nil
	}

	for i := 0; i < cfg.Threads; i++ {
		p.wg.Add(1)
		go p.worker(i + 1)
	}
	if cfg.Retention > 0 && cfg.SweepInterval > 0 {
		p.sweeper = NewSweeper(p, cfg.SweepInterval, cfg.Retention)
		p.sweeper.Start()
	}
	slog.Info("Upload pipeline started", "threads", cfg.Threads, "url", cfg.URL)
	return p, nil
}

// Enabled reports whether Schedule will accept work
func (p *Pipeline) Enabled() bool {
	return p.cfg.Enabled && p.cfg.Threads > 0
}

// Schedule queues a finished capture for upload and returns at once. A
// capture that is already scheduled or uploading is rejected.
func (p *Pipeline) Schedule(ctx context.Context, id string) (models.UploadStatus, error) {
	if !p.Enabled() {
		return models.UploadStatus{}, apperrors.NewNotEnabled("upload")
	}
	c, err := p.repo.FindByID(ctx, id)
	if err != nil {
		return models.UploadStatus{}, err
	}
	if c.Finished == nil {
		return models.UploadStatus{}, apperrors.NewInvalidState(fmt.Sprintf("capture %s has not finished recording", id))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.status[id]; ok && e.capture.Upload != nil && e.capture.Upload.Active() {
		return models.UploadStatus{}, apperrors.NewInvalidState(fmt.Sprintf("capture %s is already %s", id, e.capture.Upload.State))
	}
	if _, ok := p.inflight[id]; ok {
		return models.UploadStatus{}, apperrors.NewInvalidState(fmt.Sprintf("capture %s is still uploading", id))
	}

	up := models.NewScheduledUpload(p.target.url, p.now())
	c.Upload = &up
	if err := p.repo.Save(ctx, c); err != nil {
		return models.UploadStatus{}, fmt.Errorf("failed to save scheduled upload for %s: %w", id, err)
	}

	p.token++
	p.status[id] = &entry{capture: c.Clone(), token: p.token, headers: copyHeaders(p.target.headers)}
	p.queue.Push(job{id: id, token: p.token})

	slog.Info("Upload scheduled", "capture_id", id, "url", up.URL, "queued", p.queue.Len())
	return *models.NewUploadStatus(c), nil
}

// Status lists every tracked upload ordered by capture id
func (p *Pipeline) Status() []models.UploadStatus {
	p.mu.Lock()
	out := make([]models.UploadStatus, 0, len(p.status))
	for _, e := range p.status {
		if s := models.NewUploadStatus(e.capture); s != nil {
			out = append(out, *s)
		}
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Cancel drops queued jobs and forgets every tracked upload. A transfer
// already in flight runs to completion; its result is saved to the
// repository but no longer tracked here.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	dropped := p.queue.Clear()
	tracked := len(p.status)
	p.status = make(map[string]*entry)
	p.mu.Unlock()

	slog.Info("Uploads cancelled", "dropped_jobs", dropped, "tracked", tracked)
}

// SetTarget changes the collector used by future schedules
func (p *Pipeline) SetTarget(url string, headers map[string]string) error {
	if err := utils.ValidateCollectorURL(url); err != nil {
		return apperrors.NewInvalidParameter(err.Error())
	}
	if err := utils.ValidateHeaders(headers); err != nil {
		return apperrors.NewInvalidParameter(err.Error())
	}
	p.mu.Lock()
	p.target = target{url: url, headers: copyHeaders(headers)}
	p.mu.Unlock()
	slog.Info("Upload target changed", "url", url)
	return nil
}

// Shutdown stops the sweeper, discards queued jobs and waits for in-flight
// transfers until ctx expires.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	if p.sweeper != nil {
		p.sweeper.Stop()
	}
	if dropped := p.queue.Close(); dropped > 0 {
		slog.Warn("Discarded queued uploads on shutdown", "count", dropped)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Upload pipeline stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("upload workers still running: %w", ctx.Err())
	}
}

// claim returns the capture for j if its entry is still the live one and
// marks the transfer in flight.
func (p *Pipeline) claim(j job) (models.Capture, map[string]string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.status[j.id]
	if !ok || e.token != j.token {
		return models.Capture{}, nil, false
	}
	p.inflight[j.id] = j.token
	return e.capture.Clone(), copyHeaders(e.headers), true
}

// release ends the in-flight mark of j. It is a no-op once the terminal
// persist already cleared it.
func (p *Pipeline) release(j job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inflight[j.id] == j.token {
		delete(p.inflight, j.id)
	}
}

// persist saves c to the repository and mirrors it into the status map
// while j is still the live schedule. A job superseded by a newer Schedule
// of the same capture writes nothing. The check and the save happen under
// one lock so a stale worker cannot overwrite a newer schedule. A terminal
// state also ends the in-flight mark.
func (p *Pipeline) persist(ctx context.Context, j job, c models.Capture) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, tracked := p.status[j.id]
	if tracked && e.token != j.token {
		slog.Debug("Skipping update of superseded upload", "capture_id", j.id)
		return
	}

	if err := p.repo.Save(ctx, c); err != nil {
		slog.Warn("Failed to save upload state", "capture_id", c.ID, "state", c.Upload.State, "error", err)
	}
	if tracked {
		e.capture = c.Clone()
	}
	if !c.Upload.Active() && p.inflight[j.id] == j.token {
		delete(p.inflight, j.id)
	}
}

// removeIf drops every entry fn selects
func (p *Pipeline) removeIf(fn func(c models.Capture) bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	removed := 0
	for id, e := range p.status {
		if fn(e.capture) {
			delete(p.status, id)
			removed++
		}
	}
	return removed
}

func copyHeaders(h map[string]string) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
