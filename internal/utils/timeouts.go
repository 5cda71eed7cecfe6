package utils

import (
	"context"
	"time"
)

// TimeoutConfig holds timeout configuration for different operations
type TimeoutConfig struct {
	UploadTimeout     time.Duration // Max time for one multipart transfer
	ShutdownTimeout   time.Duration // Max time to drain workers and the HTTP server
	ReadHeaderTimeout time.Duration // Max time for a client to send request headers
}

// DefaultTimeoutConfig returns sensible default timeouts
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		UploadTimeout:     30 * time.Minute, // recordings can be large on slow links
		ShutdownTimeout:   30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// WithTimeout runs fn with a context bounded by timeout. A zero or negative
// timeout leaves the parent's deadline in place.
func WithTimeout(parent context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(parent)
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	return fn(ctx)
}
