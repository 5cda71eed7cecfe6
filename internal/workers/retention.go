package workers

import (
	"log/slog"
	"time"

	"testrec/internal/models"
)

// Sweeper periodically forgets finished uploads older than the retention window
type Sweeper struct {
	pipeline  *Pipeline
	interval  time.Duration
	retention time.Duration
	shutdown  chan bool
	stopped   chan struct{}
}

// NewSweeper creates a retention sweeper for p
func NewSweeper(p *Pipeline, interval, retention time.Duration) *Sweeper {
	return &Sweeper{
		pipeline:  p,
		interval:  interval,
		retention: retention,
		shutdown:  make(chan bool),
		stopped:   make(chan struct{}),
	}
}

// Start begins sweeping in the background
func (s *Sweeper) Start() {
	slog.Info("Starting upload retention sweeper", "interval", s.interval, "retention", s.retention)
	go s.sweepLoop()
}

// Stop ends the loop and waits for it to exit
func (s *Sweeper) Stop() {
	s.shutdown <- true
	<-s.stopped
}

func (s *Sweeper) sweepLoop() {
	defer close(s.stopped)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(s.pipeline.now())
		case <-s.shutdown:
			slog.Info("Upload retention sweeper shutting down")
			return
		}
	}
}

// Sweep removes Finished entries whose finish time is older than the
// retention window. Entries in any other state are kept.
func (s *Sweeper) Sweep(now time.Time) int {
	cutoff := now.Add(-s.retention)
	removed := s.pipeline.removeIf(func(c models.Capture) bool {
		u := c.Upload
		return u != nil && u.State == models.UploadFinished && u.Finished != nil && u.Finished.Before(cutoff)
	})
	if removed > 0 {
		slog.Info("Swept finished uploads", "count", removed)
	}
	return removed
}
