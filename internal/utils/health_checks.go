package utils

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// HealthCheckConfig holds configuration for startup health checks
type HealthCheckConfig struct {
	StoragePath  string // checked when non-empty
	CollectorURL string // checked when non-empty
	Timeout      time.Duration
}

// RunHealthChecks performs startup health checks. A storage failure is
// fatal; an unreachable collector is returned separately so callers can warn
// and continue, since uploads may be scheduled later.
func RunHealthChecks(ctx context.Context, config HealthCheckConfig) (collectorErr error, err error) {
	if config.StoragePath != "" {
		if err := CheckStorageWritable(config.StoragePath); err != nil {
			return nil, fmt.Errorf("storage health check failed: %w", err)
		}
	}
	if config.CollectorURL != "" {
		collectorErr = CheckCollectorReachable(ctx, config.CollectorURL, config.Timeout)
	}
	return collectorErr, nil
}

// CheckStorageWritable creates and removes a probe file under dir
func CheckStorageWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".healthcheck-*")
	if err != nil {
		return fmt.Errorf("storage directory %s is not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(filepath.Clean(name))
}

// CheckCollectorReachable sends a HEAD request to the collector. Any HTTP
// response counts as reachable; only transport failures are reported.
func CheckCollectorReachable(ctx context.Context, url string, timeout time.Duration) error {
	done := make(chan error, 1)

	go func() {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			done <- err
			return
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			done <- fmt.Errorf("collector not reachable: %w", err)
			return
		}
		resp.Body.Close()
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("collector health check timed out after %v", timeout)
	}
}
