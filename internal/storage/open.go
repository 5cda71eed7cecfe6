package storage

import (
	"context"
	"fmt"
	"os"
)

// Options selects and configures a backend
type Options struct {
	Backend  string // fs, memory or s3
	Path     string // base directory for fs
	Compress bool   // wrap the backend in seekable zstd
	S3       S3Config
}

// Open builds the configured backend
func Open(ctx context.Context, opts Options) (Storage, error) {
	var base SeekableStorage
	switch opts.Backend {
	case "", "fs":
		if err := os.MkdirAll(opts.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		base = NewFSStorage(opts.Path)
	case "memory":
		base = NewMemoryStorage()
	case "s3":
		s3Storage, err := NewS3Storage(ctx, opts.S3)
		if err != nil {
			return nil, err
		}
		base = s3Storage
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}

	if opts.Compress {
		return NewZSTDStorage(base), nil
	}
	return base, nil
}
