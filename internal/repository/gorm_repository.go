package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"

	apperrors "testrec/internal/errors"
	"testrec/internal/models"
	"testrec/internal/storage"
)

// CaptureRecord is the captures table row
type CaptureRecord struct {
	ID             string            `gorm:"primaryKey;size:32"`
	Folder         string            `gorm:"not null"`
	Project        string
	Feature        string            `gorm:"index"`
	Scenario       string
	Description    string            `gorm:"type:text"`
	Categories     models.Categories `gorm:"serializer:json"`
	Environment    map[string]string `gorm:"serializer:json"`
	Meta           map[string]string `gorm:"serializer:json"`
	Started        *time.Time
	Finished       *time.Time
	Format         string
	TestStatus     string
	TestError      string `gorm:"type:text"`
	TestStackTrace string `gorm:"type:text"`
	TestLogs       string `gorm:"type:text"`
	Upload         *models.Upload `gorm:"serializer:json"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (CaptureRecord) TableName() string { return "captures" }

func toRecord(c models.Capture) CaptureRecord {
	return CaptureRecord{
		ID:             c.ID,
		Folder:         c.Folder,
		Project:        c.Project,
		Feature:        c.Feature,
		Scenario:       c.Scenario,
		Description:    c.Description,
		Categories:     c.Categories,
		Environment:    c.Environment,
		Meta:           c.Meta,
		Started:        c.Started,
		Finished:       c.Finished,
		Format:         c.Format,
		TestStatus:     c.TestStatus,
		TestError:      c.TestError,
		TestStackTrace: c.TestStackTrace,
		TestLogs:       c.TestLogs,
		Upload:         c.Upload,
	}
}

func (rec CaptureRecord) toCapture() models.Capture {
	return models.Capture{
		ID:             rec.ID,
		Folder:         rec.Folder,
		Project:        rec.Project,
		Feature:        rec.Feature,
		Scenario:       rec.Scenario,
		Description:    rec.Description,
		Categories:     rec.Categories,
		Environment:    rec.Environment,
		Meta:           rec.Meta,
		Started:        rec.Started,
		Finished:       rec.Finished,
		Format:         rec.Format,
		TestStatus:     rec.TestStatus,
		TestError:      rec.TestError,
		TestStackTrace: rec.TestStackTrace,
		TestLogs:       rec.TestLogs,
		Upload:         rec.Upload,
	}
}

// GormRepository stores capture records in Postgres and recordings in blob storage
type GormRepository struct {
	videoArtifacts
	db *gorm.DB
}

// NewGormRepository creates a repository over an open gorm connection
func NewGormRepository(db *gorm.DB, s storage.Storage) *GormRepository {
	return &GormRepository{videoArtifacts: videoArtifacts{storage: s}, db: db}
}

// Migrate creates or updates the captures table
func (r *GormRepository) Migrate() error {
	return r.db.AutoMigrate(&CaptureRecord{})
}

func (r *GormRepository) Save(ctx context.Context, c models.Capture) error {
	if err := validateIdentity(c); err != nil {
		return err
	}
	rec := toRecord(c.Clone())
	if err := r.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("failed to save capture %s: %w", c.ID, err)
	}
	return nil
}

func (r *GormRepository) FindByID(ctx context.Context, id string) (models.Capture, error) {
	var rec CaptureRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Capture{}, apperrors.NewNotFound(id)
	}
	if err != nil {
		return models.Capture{}, fmt.Errorf("failed to load capture %s: %w", id, err)
	}
	return rec.toCapture(), nil
}

func (r *GormRepository) List(ctx context.Context) ([]models.CaptureSummary, error) {
	var recs []CaptureRecord
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list captures: %w", err)
	}
	summaries := make([]models.CaptureSummary, 0, len(recs))
	for _, rec := range recs {
		summaries = append(summaries, models.Summarize(rec.toCapture()))
	}
	return summaries, nil
}

func (r *GormRepository) Delete(ctx context.Context, id string) error {
	c, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := r.DiscardArtifacts(ctx, c); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Delete(&CaptureRecord{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete capture %s: %w", id, err)
	}
	return nil
}

// OpenArtifact serves metadata straight from the row, the recording from storage
func (r *GormRepository) OpenArtifact(ctx context.Context, c models.Capture, kind ArtifactKind) (io.ReadCloser, int64, error) {
	switch kind {
	case ArtifactVideo:
		return r.openVideo(c)
	case ArtifactMetadata:
		stored, err := r.FindByID(ctx, c.ID)
		if err != nil {
			return nil, 0, err
		}
		data, err := json.MarshalIndent(stored, "", "  ")
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encode capture %s: %w", c.ID, err)
		}
		return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
	default:
		return nil, 0, apperrors.NewInvalidParameter(fmt.Sprintf("unknown artifact kind %q", kind))
	}
}
