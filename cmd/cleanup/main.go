package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/weeknovel/weeknovel-api/internal/config"
	"github.com/weeknovel/weeknovel-api/internal/domain/lifecycle"
	"github.com/weeknovel/weeknovel-api/internal/pkg/blobstore"
	"github.com/weeknovel/weeknovel-api/internal/pkg/database"
	"github.com/weeknovel/weeknovel-api/internal/pkg/docstore"
	"github.com/weeknovel/weeknovel-api/internal/pkg/identity"
	"github.com/weeknovel/weeknovel-api/internal/pkg/logger"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "count what would be deleted without deleting")
	staleDays := flag.Int("days", 0, "staleness threshold in days (default from config)")
	flag.Parse()

	cfg := config.Load()
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	log.Info().Bool("dry_run", *dryRun).Msg("Starting account cleanup")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	store := docstore.NewPostgres(db)

	blobs, err := blobstore.NewS3(blobstore.Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create S3 blob store")
	}

	var identityDeleter identity.Deleter = identity.Noop{}
	if cfg.IdentityBaseURL != "" {
		identityDeleter = identity.NewClient(
			cfg.IdentityBaseURL,
			cfg.IdentityToken,
			time.Duration(cfg.IdentityTimeoutSeconds)*time.Second,
		)
	}

	cleaner := lifecycle.NewCleaner(store, blobs, identityDeleter)

	ctx := context.Background()

	days := *staleDays
	if days <= 0 {
		days = cfg.CleanupStaleDays
	}

	candidates, err := cleaner.Candidates(ctx, days)
	if err != nil {
		log.Fatal().Err(err).Msg("Candidate discovery failed")
	}
	if len(candidates) == 0 {
		log.Info().Msg("No cleanup candidates found")
		return
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.AccountID
		log.Info().
			Str("account_id", c.AccountID).
			Str("display_name", c.DisplayName).
			Bool("withdrawn", c.Withdrawn).
			Bool("stale", c.Stale).
			Msg("Cleanup candidate")
	}

	result, err := cleaner.Cleanup(ctx, ids, lifecycle.Options{DryRun: *dryRun})
	if err != nil {
		log.Fatal().Err(err).Msg("Cleanup failed")
	}

	for _, e := range result.Errors {
		log.Error().Str("account_id", e.AccountID).Str("reason", e.Message).Msg("Account cleanup error")
	}

	log.Info().
		Int("total", result.Total).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Int("deleted_items", result.DeletedItems).
		Int("auth_deleted", result.AuthDeleted).
		Int("auth_failed", result.AuthFailed).
		Bool("dry_run", result.DryRun).
		Msg("Account cleanup finished")

	if result.Failed > 0 {
		os.Exit(1)
	}
}
