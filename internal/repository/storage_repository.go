package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	apperrors "testrec/internal/errors"
	"testrec/internal/models"
	"testrec/internal/storage"
)

// StorageRepository keeps each capture as JSON inside its folder, with an
// id index so lookups do not need to know the folder.
type StorageRepository struct {
	videoArtifacts
	mu sync.Mutex
}

// NewStorageRepository creates a repository on top of a blob storage
func NewStorageRepository(s storage.Storage) *StorageRepository {
	return &StorageRepository{videoArtifacts: videoArtifacts{storage: s}}
}

func (r *StorageRepository) Save(_ context.Context, c models.Capture) error {
	if err := validateIdentity(c); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode capture %s: %w", c.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.writeKey(MetadataKey(c), data); err != nil {
		return fmt.Errorf("failed to write capture %s: %w", c.ID, err)
	}
	if err := r.writeKey(indexKey(c.ID), []byte(c.Folder)); err != nil {
		return fmt.Errorf("failed to index capture %s: %w", c.ID, err)
	}
	return nil
}

func (r *StorageRepository) FindByID(_ context.Context, id string) (models.Capture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(id)
}

func (r *StorageRepository) find(id string) (models.Capture, error) {
	if id == "" || strings.Contains(id, "/") {
		return models.Capture{}, apperrors.NewNotFound(id)
	}
	folder, err := r.readKey(indexKey(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return models.Capture{}, apperrors.NewNotFound(id)
		}
		return models.Capture{}, fmt.Errorf("failed to read index for %s: %w", id, err)
	}

	data, err := r.readKey(string(folder) + "/" + metadataFile)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return models.Capture{}, apperrors.NewNotFound(id)
		}
		return models.Capture{}, fmt.Errorf("failed to read capture %s: %w", id, err)
	}

	var c models.Capture
	if err := json.Unmarshal(data, &c); err != nil {
		return models.Capture{}, fmt.Errorf("failed to decode capture %s: %w", id, err)
	}
	return c, nil
}

func (r *StorageRepository) List(_ context.Context) ([]models.CaptureSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys, err := r.storage.List(indexPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list captures: %w", err)
	}

	summaries := make([]models.CaptureSummary, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimPrefix(key, indexPrefix)
		c, err := r.find(id)
		if err != nil {
			slog.Warn("Skipping unreadable capture", "id", id, "error", err)
			continue
		}
		summaries = append(summaries, models.Summarize(c))
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries, nil
}

func (r *StorageRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.find(id)
	if err != nil {
		return err
	}
	if err := r.DiscardArtifacts(ctx, c); err != nil {
		return err
	}
	for _, key := range []string{MetadataKey(c), indexKey(id)} {
		if err := r.storage.Delete(key); err != nil && !errors.Is(err, storage.ErrNotExist) {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	return nil
}

func (r *StorageRepository) OpenArtifact(_ context.Context, c models.Capture, kind ArtifactKind) (io.ReadCloser, int64, error) {
	switch kind {
	case ArtifactVideo:
		return r.openVideo(c)
	case ArtifactMetadata:
		r.mu.Lock()
		data, err := r.readKey(MetadataKey(c))
		r.mu.Unlock()
		if err != nil {
			return nil, 0, artifactError(c, kind, err)
		}
		return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
	default:
		return nil, 0, apperrors.NewInvalidParameter(fmt.Sprintf("unknown artifact kind %q", kind))
	}
}

func (r *StorageRepository) writeKey(key string, data []byte) error {
	w, err := r.storage.Writer(key)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (r *StorageRepository) readKey(key string) ([]byte, error) {
	rc, err := r.storage.Reader(key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
