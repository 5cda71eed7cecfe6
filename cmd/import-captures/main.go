// Command import-captures copies capture records kept as JSON files in
// storage into the Postgres captures table. Artifacts stay where they are;
// both repositories read them from the same storage.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/urfave/cli/v2"

	"testrec/internal/repository"
	"testrec/internal/storage"
)

type Config struct {
	DBURL       string `envconfig:"DB_URL" default:"host=localhost user=user password=pass dbname=testrec port=5432 sslmode=disable"`
	StoragePath string `envconfig:"STORAGE_PATH" default:"./data"`
}

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if err := newApp(cfg).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(cfg Config) *cli.App {
	return &cli.App{
		Name:  "import-captures",
		Usage: "Import file-backed capture records into Postgres",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db-url", Value: cfg.DBURL, Usage: "Postgres connection string"},
			&cli.StringFlag{Name: "storage-path", Value: cfg.StoragePath, Usage: "Base directory of the capture storage"},
			&cli.BoolFlag{Name: "compress", Usage: "Storage was written with seekable zstd"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Report what would be imported without writing"},
		},
		Action: func(c *cli.Context) error {
			ctx := c.Context
			blobs, err := storage.Open(ctx, storage.Options{
				Backend:  "fs",
				Path:     c.String("storage-path"),
				Compress: c.Bool("compress"),
			})
			if err != nil {
				return err
			}

			db, pool, err := repository.OpenPostgres(ctx, c.String("db-url"))
			if err != nil {
				return err
			}
			defer pool.Close()

			dst := repository.NewGormRepository(db, blobs)
			if !c.Bool("dry-run") {
				if err := dst.Migrate(); err != nil {
					return err
				}
			}

			slog.Info("Starting capture import", "storage", c.String("storage-path"), "dry_run", c.Bool("dry-run"))
			imported, skipped, err := importCaptures(ctx, repository.NewStorageRepository(blobs), dst, c.Bool("dry-run"))
			if err != nil {
				return err
			}
			slog.Info("Import completed", "imported", imported, "skipped", skipped)
			return nil
		},
	}
}

// importCaptures copies every record src lists into dst. Records that fail
// to load or save are logged and skipped.
func importCaptures(ctx context.Context, src, dst repository.Repository, dryRun bool) (imported, skipped int, err error) {
	summaries, err := src.List(ctx)
	if err != nil {
		return 0, 0, err
	}
	slog.Info("Found captures to import", "count", len(summaries))

	for _, s := range summaries {
		capture, err := src.FindByID(ctx, s.ID)
		if err != nil {
			slog.Warn("Skipping capture", "capture_id", s.ID, "error", err)
			skipped++
			continue
		}
		if dryRun {
			imported++
			continue
		}
		if err := dst.Save(ctx, capture); err != nil {
			slog.Warn("Failed to import capture", "capture_id", s.ID, "error", err)
			skipped++
			continue
		}
		imported++
	}
	return imported, skipped, nil
}
