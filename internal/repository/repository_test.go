package repository

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "testrec/internal/errors"
	"testrec/internal/models"
	"testrec/internal/storage"
)

func sampleCapture(id string) models.Capture {
	started := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	finished := started.Add(90 * time.Second)
	return models.Capture{
		ID:         id,
		Folder:     "acme/bob_feature/dave_scenario/" + id,
		Project:    "Acme",
		Feature:    "Bob Feature",
		Scenario:   "Dave Scenario",
		Categories: models.Categories{{Key: "project", Value: "Acme"}},
		Started:    &started,
		Finished:   &finished,
		Format:     models.VideoFormat,
		Meta:       map[string]string{"build": "42"},
		TestStatus: "pass",
	}
}

func writeVideo(t *testing.T, repo Repository, c models.Capture, content string) {
	t.Helper()
	w, err := repo.VideoWriter(context.Background(), c)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func exerciseRepository(t *testing.T, repo Repository) {
	ctx := context.Background()
	c := sampleCapture("2026-03-04_10-00-00_abc123")

	_, err := repo.FindByID(ctx, c.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	require.NoError(t, repo.Save(ctx, c))
	got, err := repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Folder, got.Folder)
	assert.Equal(t, c.Categories, got.Categories)
	assert.Equal(t, "42", got.Meta["build"])
	assert.True(t, c.Started.Equal(*got.Started))

	// upsert overwrites on the same id
	now := time.Now().UTC()
	up := models.NewScheduledUpload("http://collector/upload", now)
	c.Upload = &up
	require.NoError(t, repo.Save(ctx, c))
	got, err = repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Upload)
	assert.Equal(t, models.UploadScheduled, got.Upload.State)

	other := sampleCapture("2026-03-04_09-00-00_zzz999")
	require.NoError(t, repo.Save(ctx, other))
	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, other.ID, list[0].ID)
	assert.Equal(t, c.ID, list[1].ID)
	assert.Equal(t, models.UploadScheduled, list[1].UploadState)

	writeVideo(t, repo, c, "video-bytes")
	r, size, err := repo.OpenArtifact(ctx, c, ArtifactVideo)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	r.Close()
	assert.Equal(t, "video-bytes", string(data))
	assert.Equal(t, int64(len("video-bytes")), size)

	r, size, err = repo.OpenArtifact(ctx, c, ArtifactMetadata)
	require.NoError(t, err)
	data, err = io.ReadAll(r)
	require.NoError(t, err)
	r.Close()
	assert.Equal(t, int64(len(data)), size)
	assert.Contains(t, string(data), c.ID)

	_, _, err = repo.OpenArtifact(ctx, other, ArtifactVideo)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidState))

	require.NoError(t, repo.Delete(ctx, c.ID))
	_, err = repo.FindByID(ctx, c.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	assert.True(t, apperrors.Is(repo.Delete(ctx, c.ID), apperrors.ErrNotFound))

	list, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestStorageRepository(t *testing.T) {
	exerciseRepository(t, NewStorageRepository(storage.NewMemoryStorage()))
}

func TestStorageRepositoryOnCompressedFS(t *testing.T) {
	s := storage.NewZSTDStorage(storage.NewFSStorage(t.TempDir()))
	exerciseRepository(t, NewStorageRepository(s))
}

func TestStorageRepositoryLayout(t *testing.T) {
	s := storage.NewMemoryStorage()
	repo := NewStorageRepository(s)
	c := sampleCapture("2026-03-04_10-00-00_abc123")
	require.NoError(t, repo.Save(context.Background(), c))
	writeVideo(t, repo, c, "v")

	keys, err := s.List("")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"acme/bob_feature/dave_scenario/2026-03-04_10-00-00_abc123/2026-03-04_10-00-00_abc123.mp4",
		"acme/bob_feature/dave_scenario/2026-03-04_10-00-00_abc123/capture.json",
		"index/2026-03-04_10-00-00_abc123",
	}, keys)
}

func TestSaveRequiresIdentity(t *testing.T) {
	repo := NewStorageRepository(storage.NewMemoryStorage())
	err := repo.Save(context.Background(), models.Capture{Feature: "f"})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParameter))
}

func TestDiscardArtifacts(t *testing.T) {
	repo := NewStorageRepository(storage.NewMemoryStorage())
	c := sampleCapture("2026-03-04_10-00-00_abc123")
	writeVideo(t, repo, c, "partial")

	require.NoError(t, repo.DiscardArtifacts(context.Background(), c))
	_, _, err := repo.OpenArtifact(context.Background(), c, ArtifactVideo)
	assert.Error(t, err)
	// discarding twice, or without identity, is a no-op
	require.NoError(t, repo.DiscardArtifacts(context.Background(), c))
	require.NoError(t, repo.DiscardArtifacts(context.Background(), models.Capture{}))
}

func TestGormRepository(t *testing.T) {
	dsn := os.Getenv("TEST_DB_URL")
	if dsn == "" {
		t.Skip("TEST_DB_URL not set")
	}
	db, pool, err := OpenPostgres(context.Background(), dsn)
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, db.Migrator().DropTable(&CaptureRecord{}))
	repo := NewGormRepository(db, storage.NewMemoryStorage())
	require.NoError(t, repo.Migrate())
	exerciseRepository(t, repo)
}
