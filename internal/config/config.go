// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"

	"testrec/internal/models"
	"testrec/internal/storage"
	"testrec/internal/utils"
	"testrec/internal/workers"
)

var validate = validator.New()

type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080" validate:"required"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat  string `envconfig:"LOG_FORMAT" default:"text" validate:"oneof=text json"`
	// DBURL switches capture records to Postgres when set
	DBURL string `envconfig:"DB_URL"`

	Storage StorageConfig `envconfig:"STORAGE"`
	S3      S3Config      `envconfig:"S3"`
	Upload  UploadConfig  `envconfig:"UPLOAD"`
	Capture CaptureConfig `envconfig:"CAPTURE"`
}

type StorageConfig struct {
	Backend  string `envconfig:"BACKEND" default:"fs" validate:"oneof=fs memory s3"`
	Path     string `envconfig:"PATH" default:"./data"`
	Compress bool   `envconfig:"COMPRESS" default:"false"`
}

type S3Config struct {
	Endpoint        string `envconfig:"ENDPOINT"`
	Region          string `envconfig:"REGION" default:"us-east-1"`
	AccessKeyID     string `envconfig:"ACCESS_KEY_ID"`
	SecretAccessKey string `envconfig:"SECRET_ACCESS_KEY"`
	Bucket          string `envconfig:"BUCKET"`
	Prefix          string `envconfig:"PREFIX"`
	ForcePathStyle  bool   `envconfig:"FORCE_PATH_STYLE" default:"false"`
}

type UploadConfig struct {
	Enabled          bool              `envconfig:"ENABLED" default:"false"`
	URL              string            `envconfig:"URL"`
	Headers          map[string]string `envconfig:"HEADERS"`
	Threads          int               `envconfig:"THREADS" default:"2" validate:"min=0,max=64"`
	ProgressInterval time.Duration     `envconfig:"PROGRESS_INTERVAL" default:"1s" validate:"min=0"`
	Retention        time.Duration     `envconfig:"RETENTION" default:"1h" validate:"min=0"`
	SweepInterval    time.Duration     `envconfig:"SWEEP_INTERVAL" default:"1m" validate:"min=0"`
	Timeout          time.Duration     `envconfig:"TIMEOUT" default:"30m" validate:"min=0"`
	// Auto schedules every finished capture
	Auto bool `envconfig:"AUTO" default:"false"`
}

type CaptureConfig struct {
	Project     string            `envconfig:"PROJECT"`
	Environment map[string]string `envconfig:"ENVIRONMENT"`
	// Categories is an ordered list of key[=default] entries; a trailing
	// '!' on the key marks the category required.
	Categories []string `envconfig:"CATEGORIES"`
}

// Load reads the environment and validates the result
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Storage.Backend == "s3" && c.S3.Bucket == "" {
		return fmt.Errorf("invalid config: S3_BUCKET is required for the s3 storage backend")
	}
	if c.Upload.Enabled {
		if err := utils.ValidateCollectorURL(c.Upload.URL); err != nil {
			return fmt.Errorf("invalid config: UPLOAD_URL: %w", err)
		}
		if err := utils.ValidateHeaders(c.Upload.Headers); err != nil {
			return fmt.Errorf("invalid config: UPLOAD_HEADERS: %w", err)
		}
	}
	if _, err := ParseCategories(c.Capture.Categories); err != nil {
		return fmt.Errorf("invalid config: CAPTURE_CATEGORIES: %w", err)
	}
	return nil
}

// SlogLevel maps LOG_LEVEL to a slog level
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:  c.Storage.Backend,
		Path:     c.Storage.Path,
		Compress: c.Storage.Compress,
		S3: storage.S3Config{
			Endpoint:        c.S3.Endpoint,
			Region:          c.S3.Region,
			AccessKeyID:     c.S3.AccessKeyID,
			SecretAccessKey: c.S3.SecretAccessKey,
			Bucket:          c.S3.Bucket,
			Prefix:          c.S3.Prefix,
			ForcePathStyle:  c.S3.ForcePathStyle,
		},
	}
}

func (c *Config) PipelineConfig() workers.Config {
	return workers.Config{
		Enabled:          c.Upload.Enabled,
		URL:              c.Upload.URL,
		Headers:          c.Upload.Headers,
		Threads:          c.Upload.Threads,
		ProgressInterval: c.Upload.ProgressInterval,
		Retention:        c.Upload.Retention,
		SweepInterval:    c.Upload.SweepInterval,
		Timeout:          c.Upload.Timeout,
	}
}

// Info builds the capture defaults handed to the state machine. The host
// name is added to the environment unless configured explicitly.
func (c *Config) Info() (models.Info, error) {
	categories, err := ParseCategories(c.Capture.Categories)
	if err != nil {
		return models.Info{}, err
	}
	env := make(map[string]string, len(c.Capture.Environment)+1)
	for k, v := range c.Capture.Environment {
		env[k] = v
	}
	if _, ok := env["host"]; !ok {
		if host, err := os.Hostname(); err == nil {
			env["host"] = host
		}
	}
	return models.Info{
		Project:     c.Capture.Project,
		Environment: env,
		Categories:  categories,
	}, nil
}

// ParseCategories turns "team=Core", "suite!" style entries into category
// defaults, keeping their order.
func ParseCategories(entries []string) ([]models.CategoryDefault, error) {
	var out []models.CategoryDefault
	seen := make(map[string]bool, len(entries))
	for _, raw := range entries {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		key, def, _ := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		required := strings.HasSuffix(key, "!")
		key = strings.TrimSpace(strings.TrimSuffix(key, "!"))
		if key == "" {
			return nil, fmt.Errorf("category entry %q has no key", raw)
		}
		if seen[key] {
			return nil, fmt.Errorf("category %q is configured twice", key)
		}
		seen[key] = true
		out = append(out, models.CategoryDefault{
			Key:      key,
			Default:  strings.TrimSpace(def),
			Required: required,
		})
	}
	return out, nil
}
