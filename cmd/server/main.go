package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"streamvault/internal/api"
	"streamvault/internal/cache"
	"streamvault/internal/config"
	"streamvault/internal/repository"
	memoryrepo "streamvault/internal/repository/memory"
	mongorepo "streamvault/internal/repository/mongo"
	"streamvault/internal/service"
	"streamvault/internal/storage"
	"streamvault/internal/worker"

	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"
)

type repositories struct {
	users    repository.UserRepository
	videos   repository.VideoRepository
	sessions repository.UploadSessionRepository
	chunks   repository.ChunkRepository
	jobs     repository.ProcessingJobRepository
}

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger.Info().Msg("starting streamvault server")

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Fatal().Err(err).Msg("could not load config")
	}

	repos, cleanup, err := buildRepositories(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not initialize repositories")
	}
	defer cleanup()

	var store storage.ObjectStore
	if cfg.S3.Endpoint != "" {
		store, err = storage.NewS3Store(cfg.S3, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("could not initialize object storage")
		}
	} else {
		// No endpoint configured: in-process store, for local development.
		logger.Warn().Msg("s3 endpoint not configured, using in-memory object store")
		store = storage.NewMemoryStore()
	}

	playlistCache := cache.NewNoopCache()
	if cfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCache(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, playlist caching disabled")
		} else {
			playlistCache = redisCache
		}
	}

	authService := service.NewAuthService(repos.users, cfg.JWT.Secret, cfg.JWT.Expiration)
	videoService := service.NewVideoService(repos.videos, repos.users, store, logger)
	reassembler := service.NewReassembler(store, logger)
	uploadService := service.NewUploadService(repos.sessions, repos.chunks, repos.videos, repos.users, repos.jobs, store, reassembler, cfg.Upload, logger)
	streamService := service.NewStreamService(videoService, repos.videos, store, cfg.Stream, logger)
	hlsService := service.NewHLSService(videoService, store, playlistCache, cfg.HLS, logger)

	// Background loops: the finalizer promotes merged videos to ready, the
	// sweeper reclaims expired upload sessions.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	finalizer := worker.NewFinalizer(repos.jobs, repos.videos, store, cfg.Worker, logger)
	sweeper := worker.NewExpiredSweeper(uploadService, cfg.Upload.SweepInterval, logger)
	go finalizer.Run(workerCtx)
	go sweeper.Run(workerCtx)

	router := gin.Default()
	api.SetupRoutes(router, cfg.JWT.Secret, authService, videoService, uploadService, streamService, hlsService)

	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
		// No WriteTimeout: streaming responses for long videos outlive any
		// sane fixed value.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info().Str("address", cfg.Server.Address).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen and serve failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	stopWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
	}
	logger.Info().Msg("server stopped")
}

// buildRepositories wires the metadata store selected by database.driver:
// mongo for production, memory for local development and tests.
func buildRepositories(cfg config.Config, logger zerolog.Logger) (*repositories, func(), error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn().Msg("using in-memory repositories, data will not survive a restart")
		return &repositories{
			users:    memoryrepo.NewUserRepository(),
			videos:   memoryrepo.NewVideoRepository(),
			sessions: memoryrepo.NewUploadSessionRepository(),
			chunks:   memoryrepo.NewChunkRepository(),
			jobs:     memoryrepo.NewProcessingJobRepository(),
		}, func() {}, nil
	}

	client, err := mongorepo.ConnectDB(cfg.Database.URI)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := mongorepo.DisconnectDB(client); err != nil {
			logger.Error().Err(err).Msg("failed to disconnect mongodb")
		}
	}
	db := client.Database(cfg.Database.Name)

	// Index creation runs in the background so a slow or locked collection
	// does not block startup.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		mongorepo.EnsureUserIndexes(ctx, db.Collection("users"))
		mongorepo.EnsureVideoIndexes(ctx, db.Collection("videos"))
		mongorepo.EnsureSessionIndexes(ctx, db.Collection("upload_sessions"))
		mongorepo.EnsureChunkIndexes(ctx, db.Collection("upload_chunks"))
		mongorepo.EnsureJobIndexes(ctx, db.Collection("processing_jobs"))
	}()

	return &repositories{
		users:    mongorepo.NewMongoUserRepository(db),
		videos:   mongorepo.NewMongoVideoRepository(db),
		sessions: mongorepo.NewMongoSessionRepository(db),
		chunks:   mongorepo.NewMongoChunkRepository(db),
		jobs:     mongorepo.NewMongoJobRepository(db),
	}, cleanup, nil
}
