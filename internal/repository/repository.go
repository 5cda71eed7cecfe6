// Package repository persists capture records and their artifact files.
package repository

import (
	"context"
	"errors"
	"fmt"
	"io"

	apperrors "testrec/internal/errors"
	"testrec/internal/models"
	"testrec/internal/storage"
)

// ArtifactKind names one file uploaded for a capture
type ArtifactKind string

const (
	ArtifactVideo    ArtifactKind = "video"
	ArtifactMetadata ArtifactKind = "metadata"
)

const (
	metadataFile = "capture.json"
	indexPrefix  = "index/"
)

// Repository is the persistence contract used by the capture service and
// the upload pipeline.
type Repository interface {
	// Save is an idempotent upsert keyed by capture id.
	Save(ctx context.Context, c models.Capture) error
	// FindByID fails with a NOT_FOUND error when the id is unknown.
	FindByID(ctx context.Context, id string) (models.Capture, error)
	List(ctx context.Context) ([]models.CaptureSummary, error)
	// Delete removes the record and its artifacts.
	Delete(ctx context.Context, id string) error

	VideoWriter(ctx context.Context, c models.Capture) (io.WriteCloser, error)
	OpenArtifact(ctx context.Context, c models.Capture, kind ArtifactKind) (io.ReadCloser, int64, error)
	// DiscardArtifacts drops the files of a capture that was never saved.
	DiscardArtifacts(ctx context.Context, c models.Capture) error
}

// VideoKey is the storage key of a capture's recording
func VideoKey(c models.Capture) string {
	return c.Folder + "/" + c.ID + "." + formatOrDefault(c.Format)
}

// MetadataKey is the storage key of a capture's JSON record
func MetadataKey(c models.Capture) string {
	return c.Folder + "/" + metadataFile
}

func indexKey(id string) string {
	return indexPrefix + id
}

func formatOrDefault(format string) string {
	if format == "" {
		return models.VideoFormat
	}
	return format
}

func validateIdentity(c models.Capture) error {
	if c.ID == "" || c.Folder == "" {
		return apperrors.NewInvalidParameter("capture has no id or folder; record it before saving")
	}
	return nil
}

// videoArtifacts keeps recordings in blob storage for both repository flavours
type videoArtifacts struct {
	storage storage.Storage
}

func (a videoArtifacts) VideoWriter(_ context.Context, c models.Capture) (io.WriteCloser, error) {
	if err := validateIdentity(c); err != nil {
		return nil, err
	}
	return a.storage.Writer(VideoKey(c))
}

func (a videoArtifacts) openVideo(c models.Capture) (io.ReadCloser, int64, error) {
	key := VideoKey(c)
	size, err := a.storage.Size(key)
	if err != nil {
		return nil, 0, artifactError(c, ArtifactVideo, err)
	}
	r, err := a.storage.Reader(key)
	if err != nil {
		return nil, 0, artifactError(c, ArtifactVideo, err)
	}
	return r, size, nil
}

func (a videoArtifacts) DiscardArtifacts(_ context.Context, c models.Capture) error {
	if c.ID == "" || c.Folder == "" {
		return nil
	}
	if err := a.storage.Delete(VideoKey(c)); err != nil && !errors.Is(err, storage.ErrNotExist) {
		return fmt.Errorf("failed to discard video for %s: %w", c.ID, err)
	}
	return nil
}

func artifactError(c models.Capture, kind ArtifactKind, err error) error {
	if errors.Is(err, storage.ErrNotExist) {
		appErr := apperrors.NewInvalidState(fmt.Sprintf("capture %s has no %s artifact", c.ID, kind))
		appErr.Err = err
		return appErr
	}
	return fmt.Errorf("failed to open %s artifact for %s: %w", kind, c.ID, err)
}
