// Package worker holds the background loops: the finalizer that drains the
// processing queue and the sweeper that reclaims expired upload sessions.
// Both are plain ticker loops that stop when their context is cancelled.
package worker

import (
	"context"
	"errors"
	"time"

	"streamvault/internal/config"
	"streamvault/internal/domain"
	"streamvault/internal/repository"
	"streamvault/internal/storage"

	"github.com/rs/zerolog"
)

// maxJobAttempts bounds retries of a failing job before it is parked as
// failed for a human to look at.
const maxJobAttempts = 5

// Finalizer drains the processing queue: for each claimed job it verifies
// the merged object and promotes the video from processing to ready. The
// queue row, not an in-process timer, is what carries a video across a
// crash between merge and ready.
type Finalizer struct {
	jobRepo   repository.ProcessingJobRepository
	videoRepo repository.VideoRepository
	store     storage.ObjectStore
	cfg       config.WorkerConfig
	logger    zerolog.Logger
}

func NewFinalizer(jobRepo repository.ProcessingJobRepository, videoRepo repository.VideoRepository, store storage.ObjectStore, cfg config.WorkerConfig, logger zerolog.Logger) *Finalizer {
	return &Finalizer{
		jobRepo:   jobRepo,
		videoRepo: videoRepo,
		store:     store,
		cfg:       cfg,
		logger:    logger.With().Str("component", "finalizer").Logger(),
	}
}

// Run polls until ctx is cancelled. Each tick drains every claimable job so
// a backlog clears at storage speed, not at poll speed.
func (f *Finalizer) Run(ctx context.Context) {
	f.logger.Info().Dur("poll_interval", f.cfg.PollInterval).Msg("finalizer started")
	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info().Msg("finalizer stopped")
			return
		case <-ticker.C:
			f.drain(ctx)
		}
	}
}

func (f *Finalizer) drain(ctx context.Context) {
	for {
		now := time.Now()
		job, err := f.jobRepo.ClaimPending(ctx, now, now.Add(-f.cfg.ClaimTimeout))
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) && ctx.Err() == nil {
				f.logger.Error().Err(err).Msg("failed to claim processing job")
			}
			return
		}
		f.process(ctx, job)
	}
}

// process finishes one job. Verification failures mark the video failed and
// park the job; transient errors release the job back for a later attempt by
// simply leaving it claimed until the claim goes stale.
func (f *Finalizer) process(ctx context.Context, job *domain.ProcessingJob) {
	logger := f.logger.With().
		Str("job_id", job.ID.Hex()).
		Str("video_id", job.VideoID).
		Int("attempts", job.Attempts).
		Logger()

	video, err := f.videoRepo.GetByID(ctx, job.VideoID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Video deleted while queued; nothing to promote.
			if err := f.jobRepo.MarkDone(ctx, job.ID); err != nil {
				logger.Error().Err(err).Msg("failed to mark orphan job done")
			}
			return
		}
		logger.Error().Err(err).Msg("failed to load video for finalization")
		return
	}

	switch video.Status {
	case domain.VideoProcessing:
		// Expected state, continue below.
	case domain.VideoReady:
		// Another worker finished this one already.
		if err := f.jobRepo.MarkDone(ctx, job.ID); err != nil {
			logger.Error().Err(err).Msg("failed to mark duplicate job done")
		}
		return
	default:
		logger.Warn().Str("status", string(video.Status)).Msg("video not awaiting finalization, parking job")
		if err := f.jobRepo.MarkFailed(ctx, job.ID); err != nil {
			logger.Error().Err(err).Msg("failed to mark job failed")
		}
		return
	}

	size, err := f.store.Head(ctx, video.StorageKey)
	if err != nil || size != video.FileSizeBytes {
		if job.Attempts >= maxJobAttempts || errors.Is(err, storage.ErrObjectNotFound) {
			logger.Error().Err(err).Int64("size", size).Msg("merged object failed verification, failing video")
			if err := f.videoRepo.UpdateStatus(ctx, video.ID, domain.VideoFailed); err != nil {
				logger.Error().Err(err).Msg("failed to mark video failed")
			}
			if err := f.jobRepo.MarkFailed(ctx, job.ID); err != nil {
				logger.Error().Err(err).Msg("failed to mark job failed")
			}
			return
		}
		logger.Warn().Err(err).Msg("verification error, leaving job for retry")
		return
	}

	if err := f.videoRepo.UpdateStatus(ctx, video.ID, domain.VideoReady); err != nil {
		logger.Error().Err(err).Msg("failed to promote video to ready")
		return
	}
	if err := f.jobRepo.MarkDone(ctx, job.ID); err != nil {
		logger.Error().Err(err).Msg("failed to mark job done")
		return
	}

	logger.Info().Msg("video finalized")
}
