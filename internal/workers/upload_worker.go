package workers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	apperrors "testrec/internal/errors"
	"testrec/internal/models"
	"testrec/internal/repository"
	"testrec/internal/utils"
)

const metadataContentType = "application/json"

// worker drains the queue until it is closed. A panic while handling one
// job is logged and the loop moves on to the next.
func (p *Pipeline) worker(n int) {
	defer p.wg.Done()
	for {
		j, ok := p.queue.Pop()
		if !ok {
			return
		}
		p.runJob(n, j)
	}
}

func (p *Pipeline) runJob(n int, j job) {
	logger := slog.With("worker", n, "capture_id", j.id)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Upload worker recovered from panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	p.processUpload(context.Background(), logger, j)
}

// processUpload moves one capture through Uploading to Finished or Error
func (p *Pipeline) processUpload(ctx context.Context, logger *slog.Logger, j job) {
	c, headers, ok := p.claim(j)
	if !ok {
		logger.Debug("Skipping cancelled upload")
		return
	}
	defer p.release(j)

	up, err := c.Upload.Begin(p.now())
	if err != nil {
		logger.Error("Upload is not in a schedulable state", "error", err)
		return
	}
	c.Upload = &up
	p.persist(ctx, j, c)
	logger.Info("Upload started", "url", up.URL)

	tracker := &progressTracker{p: p, j: j, capture: c, interval: p.cfg.ProgressInterval, last: p.now()}

	req, closeParts, err := p.buildRequest(ctx, c)
	if err != nil {
		tracker.finish(ctx, func(u models.Upload, now time.Time) (models.Upload, error) {
			return u.Fail(now, err.Error(), 0)
		})
		logger.Warn("Upload failed before transfer", "error", err)
		return
	}
	defer closeParts()
	tracker.start(ctx, req.Total())

	var resp Response
	err = utils.WithTimeout(ctx, p.cfg.Timeout, func(ctx context.Context) error {
		var sendErr error
		resp, sendErr = req.Send(ctx, p.client, up.URL, headers, tracker.update)
		return sendErr
	})

	switch {
	case err != nil:
		transportErr := apperrors.NewUploadTransport(resp.StatusCode, err.Error(), err)
		tracker.finish(ctx, func(u models.Upload, now time.Time) (models.Upload, error) {
			return u.Fail(now, transportErr.Message, resp.StatusCode)
		})
		logger.Warn("Upload failed", "error", transportErr)
	case resp.StatusCode != http.StatusOK:
		msg := resp.Body
		if msg == "" {
			msg = fmt.Sprintf("collector responded %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		tracker.finish(ctx, func(u models.Upload, now time.Time) (models.Upload, error) {
			return u.Fail(now, msg, resp.StatusCode)
		})
		logger.Warn("Upload rejected by collector", "status_code", resp.StatusCode)
	default:
		final := tracker.finish(ctx, func(u models.Upload, now time.Time) (models.Upload, error) {
			return u.Complete(now)
		})
		logger.Info("Upload finished", "bytes", final.Transferred)
	}
}

// buildRequest opens the video and metadata artifacts as multipart parts
func (p *Pipeline) buildRequest(ctx context.Context, c models.Capture) (*MultipartRequest, func(), error) {
	var closers []io.Closer
	closeAll := func() {
		for _, cl := range closers {
			cl.Close()
		}
	}

	video, videoSize, err := p.repo.OpenArtifact(ctx, c, repository.ArtifactVideo)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open video: %w", err)
	}
	closers = append(closers, video)

	meta, metaSize, err := p.repo.OpenArtifact(ctx, c, repository.ArtifactMetadata)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("failed to open metadata: %w", err)
	}
	closers = append(closers, meta)

	req, err := NewMultipartRequest([]Part{
		{
			Field:       "video",
			FileName:    c.ID + "." + formatOrDefault(c.Format),
			ContentType: "video/" + formatOrDefault(c.Format),
			Body:        video,
			Size:        videoSize,
		},
		{
			Field:       "metadata",
			FileName:    "capture.json",
			ContentType: metadataContentType,
			Body:        meta,
			Size:        metaSize,
		},
	})
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return req, closeAll, nil
}

func formatOrDefault(format string) string {
	if format == "" {
		return models.VideoFormat
	}
	return format
}

// progressTracker owns a worker's copy of the capture during a transfer.
// The transport may call update from its own goroutine, and may keep doing
// so briefly after Send returns, so every access goes through mu.
type progressTracker struct {
	mu       sync.Mutex
	p        *Pipeline
	j        job
	capture  models.Capture
	interval time.Duration
	last     time.Time
	done     bool
}

// start records the request size without waiting for the first write
func (t *progressTracker) start(ctx context.Context, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.p.now()
	up, err := t.capture.Upload.Progress(now, 0, total)
	if err != nil {
		return
	}
	t.capture.Upload = &up
	t.last = now
	t.p.persist(ctx, t.j, t.capture)
}

// update persists progress at most once per interval, and always once the
// last byte has been written.
func (t *progressTracker) update(transferred, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	now := t.p.now()
	if transferred < total && now.Sub(t.last) < t.interval {
		return
	}
	up, err := t.capture.Upload.Progress(now, transferred, total)
	if err != nil {
		return
	}
	t.capture.Upload = &up
	t.last = now
	t.p.persist(context.Background(), t.j, t.capture)
}

// finish applies the terminal transition and stops further progress updates
func (t *progressTracker) finish(ctx context.Context, fn func(models.Upload, time.Time) (models.Upload, error)) models.Upload {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
	up, err := fn(*t.capture.Upload, t.p.now())
	if err != nil {
		slog.Error("Invalid upload transition", "capture_id", t.capture.ID, "error", err)
		return *t.capture.Upload
	}
	t.capture.Upload = &up
	t.p.persist(ctx, t.j, t.capture)
	return up
}
