package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/weeknovel/weeknovel-api/internal/config"
	"github.com/weeknovel/weeknovel-api/internal/domain/account"
	"github.com/weeknovel/weeknovel-api/internal/domain/admin"
	"github.com/weeknovel/weeknovel-api/internal/domain/ledger"
	"github.com/weeknovel/weeknovel-api/internal/domain/lifecycle"
	"github.com/weeknovel/weeknovel-api/internal/middleware"
	"github.com/weeknovel/weeknovel-api/internal/pkg/blobstore"
	"github.com/weeknovel/weeknovel-api/internal/pkg/database"
	"github.com/weeknovel/weeknovel-api/internal/pkg/docstore"
	"github.com/weeknovel/weeknovel-api/internal/pkg/identity"
	"github.com/weeknovel/weeknovel-api/internal/pkg/jwt"
	"github.com/weeknovel/weeknovel-api/internal/pkg/logger"
	pkgresponse "github.com/weeknovel/weeknovel-api/internal/pkg/response"
)

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting WeekNovel API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	store := docstore.NewPostgres(db)
	if err := store.EnsureSchema(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure document schema")
	}

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

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
	} else {
		log.Warn().Msg("Identity provider not configured, credential deletion disabled")
	}

	accountRepo := account.NewRepository(store, redis)
	ledgerService := ledger.NewService(store)
	cleaner := lifecycle.NewCleaner(store, blobs, identityDeleter)

	adminHandler := admin.NewHandler(accountRepo, ledgerService, cleaner)

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))
	r.Use(chimw.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			pkgresponse.OK(w, map[string]string{"message": "pong"})
		})

		r.Mount("/admin", adminHandler.Routes(jwtService))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}
