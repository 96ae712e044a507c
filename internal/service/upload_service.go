package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"streamvault/internal/config"
	"streamvault/internal/domain"
	"streamvault/internal/repository"
	"streamvault/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrSessionNotFound      = errors.New("upload session not found")
	ErrSessionNotActive     = errors.New("upload session is not active")
	ErrSessionExpired       = errors.New("upload session has expired")
	ErrInvalidChunkIndex    = errors.New("chunk index exceeds total chunks")
	ErrUploadIncomplete     = errors.New("upload incomplete")
	ErrCompletionInProgress = errors.New("completion already in progress")
	ErrVideoNotUploadable   = errors.New("video is not awaiting an upload")
	ErrQuotaExceeded        = errors.New("plan quota exceeded")
	ErrUploadValidation     = errors.New("upload validation failed")
)

// UploadStatusInfo is the resume view of a session: which indices are already
// present, so a client can skip them after a reconnect.
type UploadStatusInfo struct {
	Session        *domain.UploadSession `json:"session"`
	PresentIndexes []int                 `json:"presentIndexes"`
}

// UploadService owns the lifecycle of resumable chunked uploads: session
// creation, chunk bookkeeping, completion gating and the expiry sweep.
type UploadService interface {
	InitUpload(ctx context.Context, userID primitive.ObjectID, videoID, filename string, fileSize, requestedChunkSize int64) (*domain.UploadSession, error)
	UploadChunk(ctx context.Context, userID primitive.ObjectID, uploadID string, index int, r io.Reader, size int64) (*domain.ChunkRecord, error)
	CompleteUpload(ctx context.Context, userID primitive.ObjectID, uploadID string) (*domain.Video, error)
	AbortUpload(ctx context.Context, userID primitive.ObjectID, uploadID string) error
	UploadStatus(ctx context.Context, userID primitive.ObjectID, uploadID string) (*UploadStatusInfo, error)
	// SweepExpired expires overdue sessions and reclaims their chunk blobs.
	// Called periodically by the sweeper worker.
	SweepExpired(ctx context.Context, batchSize int) (int, error)
}

type uploadService struct {
	sessionRepo repository.UploadSessionRepository
	chunkRepo   repository.ChunkRepository
	videoRepo   repository.VideoRepository
	userRepo    repository.UserRepository
	jobRepo     repository.ProcessingJobRepository
	store       storage.ObjectStore
	reassembler *Reassembler
	cfg         config.UploadConfig
	logger      zerolog.Logger
	clock       func() time.Time
	idGen       func() string
}

// NewUploadService creates a new uploadService.
func NewUploadService(
	sessionRepo repository.UploadSessionRepository,
	chunkRepo repository.ChunkRepository,
	videoRepo repository.VideoRepository,
	userRepo repository.UserRepository,
	jobRepo repository.ProcessingJobRepository,
	store storage.ObjectStore,
	reassembler *Reassembler,
	cfg config.UploadConfig,
	logger zerolog.Logger,
) UploadService {
	return &uploadService{
		sessionRepo: sessionRepo,
		chunkRepo:   chunkRepo,
		videoRepo:   videoRepo,
		userRepo:    userRepo,
		jobRepo:     jobRepo,
		store:       store,
		reassembler: reassembler,
		cfg:         cfg,
		logger:      logger.With().Str("component", "upload_service").Logger(),
		clock:       time.Now,
		idGen:       func() string { return uuid.NewString() },
	}
}

// InitUpload creates an active session for a video that is awaiting its
// upload. The requested chunk size is clamped into [1, MaxChunkSize] and
// defaults to DefaultChunkSize when unset.
func (s *uploadService) InitUpload(ctx context.Context, userID primitive.ObjectID, videoID, filename string, fileSize, requestedChunkSize int64) (*domain.UploadSession, error) {
	if videoID == "" || filename == "" {
		return nil, fmt.Errorf("%w: videoId and filename are required", ErrUploadValidation)
	}
	if fileSize <= 0 {
		return nil, fmt.Errorf("%w: fileSize must be positive", ErrUploadValidation)
	}

	video, err := s.videoRepo.GetByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrVideoNotFound
		}
		return nil, err
	}
	// Ownership is part of the lookup contract: someone else's video is
	// indistinguishable from a missing one.
	if video.UserID != userID {
		return nil, ErrVideoNotFound
	}
	if video.Status != domain.VideoUploading {
		return nil, ErrVideoNotUploadable
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	plan := domain.PlanByID(user.Plan)
	if ok, reason := plan.CanUploadVideo(user.StorageUsedBytes, fileSize); !ok {
		return nil, fmt.Errorf("%w: %s", ErrQuotaExceeded, reason)
	}

	chunkSize := requestedChunkSize
	if chunkSize <= 0 {
		chunkSize = s.cfg.DefaultChunkSize
	}
	if chunkSize > s.cfg.MaxChunkSize {
		chunkSize = s.cfg.MaxChunkSize
	}

	totalChunks := int((fileSize + chunkSize - 1) / chunkSize)

	now := s.clock().UTC()
	session := &domain.UploadSession{
		ID:           s.idGen(),
		VideoID:      videoID,
		UserID:       userID,
		Filename:     filename,
		DeclaredSize: fileSize,
		ChunkSize:    chunkSize,
		TotalChunks:  totalChunks,
		Status:       domain.UploadActive,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.cfg.SessionTTL),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("upload_id", session.ID).
		Str("video_id", videoID).
		Int64("file_size", fileSize).
		Int("total_chunks", totalChunks).
		Msg("upload session created")

	return session, nil
}

// UploadChunk stores one chunk blob and records its index. The storage key is
// deterministic in (uploadID, index), so a retried chunk overwrites its
// previous blob instead of duplicating it. The session's uploaded counter
// only moves on the first sighting of an index; the set of distinct indices
// in the chunk repository is what completion trusts.
func (s *uploadService) UploadChunk(ctx context.Context, userID primitive.ObjectID, uploadID string, index int, r io.Reader, size int64) (*domain.ChunkRecord, error) {
	session, err := s.getOwnedSession(ctx, userID, uploadID)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.UploadActive {
		return nil, ErrSessionNotActive
	}
	if session.Expired(s.clock()) {
		return nil, ErrSessionExpired
	}
	if index < 0 || index >= session.TotalChunks {
		return nil, fmt.Errorf("%w: index %d, total %d", ErrInvalidChunkIndex, index, session.TotalChunks)
	}

	key := storage.ChunkObjectKey(uploadID, index)
	if err := s.store.Put(ctx, key, r, size, "application/octet-stream"); err != nil {
		return nil, fmt.Errorf("store chunk %d: %w", index, err)
	}

	record := &domain.ChunkRecord{
		UploadID:   uploadID,
		VideoID:    session.VideoID,
		Index:      index,
		Size:       size,
		StorageKey: key,
	}
	inserted, err := s.chunkRepo.Upsert(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("record chunk %d: %w", index, err)
	}
	if inserted {
		if err := s.sessionRepo.IncrementUploaded(ctx, uploadID); err != nil {
			return nil, err
		}
	}

	return record, nil
}

// CompleteUpload gates, serializes and runs the merge. The session flips
// active -> completing via compare-and-swap so at most one merge ever runs
// per session; any failure after the swap reverts to active, leaving the
// session retryable with all chunks intact.
func (s *uploadService) CompleteUpload(ctx context.Context, userID primitive.ObjectID, uploadID string) (*domain.Video, error) {
	session, err := s.getOwnedSession(ctx, userID, uploadID)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.UploadCompleting {
		return nil, ErrCompletionInProgress
	}
	if session.Status != domain.UploadActive {
		return nil, ErrSessionNotActive
	}
	if session.Expired(s.clock()) {
		return nil, ErrSessionExpired
	}

	// The distinct-index count is authoritative, not the session counter: a
	// retried chunk can never inflate it past the truth.
	present, err := s.chunkRepo.CountByUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if present < session.TotalChunks {
		return nil, fmt.Errorf("%w: %d/%d chunks uploaded", ErrUploadIncomplete, present, session.TotalChunks)
	}

	if err := s.sessionRepo.CompareAndSwapStatus(ctx, uploadID, domain.UploadActive, domain.UploadCompleting); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrSessionNotFound
		case errors.Is(err, repository.ErrStateMismatch):
			current, getErr := s.sessionRepo.GetByID(ctx, uploadID)
			if getErr == nil && current.Status == domain.UploadCompleting {
				return nil, ErrCompletionInProgress
			}
			return nil, ErrSessionNotActive
		default:
			return nil, err
		}
	}

	video, err := s.finishMerge(ctx, session)
	if err != nil {
		// Merge failed: back to active so the client can resolve the problem
		// (usually a lost chunk) and retry Complete.
		if revertErr := s.sessionRepo.CompareAndSwapStatus(ctx, uploadID, domain.UploadCompleting, domain.UploadActive); revertErr != nil {
			s.logger.Error().Err(revertErr).Str("upload_id", uploadID).Msg("failed to revert session to active after merge failure")
		}
		return nil, err
	}
	return video, nil
}

// finishMerge runs with the session in completing state.
func (s *uploadService) finishMerge(ctx context.Context, session *domain.UploadSession) (*domain.Video, error) {
	records, err := s.chunkRepo.ListByUpload(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if len(records) != session.TotalChunks {
		return nil, fmt.Errorf("%w: %d/%d chunks uploaded", ErrUploadIncomplete, len(records), session.TotalChunks)
	}

	chunkKeys := make([]string, len(records))
	var chunkedSize int64
	for i, rec := range records {
		if rec.Index != i {
			// A gap in the index sequence means the count lied; treat it the
			// same as an incomplete upload.
			return nil, fmt.Errorf("%w: chunk %d was never uploaded", ErrUploadIncomplete, i)
		}
		chunkKeys[i] = rec.StorageKey
		chunkedSize += rec.Size
	}

	// Init gated the declared size, but the chunks are what actually landed;
	// their summed size is re-checked here so oversized chunks cannot slip
	// past the plan ceilings.
	user, err := s.userRepo.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	plan := domain.PlanByID(user.Plan)
	if ok, reason := plan.CanUploadVideo(user.StorageUsedBytes, chunkedSize); !ok {
		return nil, fmt.Errorf("%w: %s", ErrQuotaExceeded, reason)
	}

	contentType := storage.ContentTypeForFilename(session.Filename)
	finalKey := storage.VideoObjectKey(session.UserID.Hex(), session.VideoID, session.Filename)

	totalSize, err := s.reassembler.Merge(ctx, chunkKeys, finalKey, contentType)
	if err != nil {
		return nil, err
	}

	if err := s.videoRepo.SetObjectInfo(ctx, session.VideoID, finalKey, contentType, totalSize, domain.VideoProcessing); err != nil {
		return nil, fmt.Errorf("record merged object: %w", err)
	}

	// Durable hand-off to the finalizer. The job row, not a timer, is what
	// eventually moves the video to ready.
	job := &domain.ProcessingJob{VideoID: session.VideoID, UploadID: session.ID}
	if err := s.jobRepo.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue processing job: %w", err)
	}

	if err := s.sessionRepo.SetStatus(ctx, session.ID, domain.UploadCompleted); err != nil {
		return nil, err
	}

	if err := s.userRepo.AddStorageUsed(ctx, session.UserID, totalSize); err != nil {
		s.logger.Error().Err(err).Str("upload_id", session.ID).Msg("failed to update storage accounting")
	}

	// Chunk blobs are garbage now. Reclaim is best-effort; the sweeper picks
	// up anything left behind.
	if err := s.store.Delete(ctx, chunkKeys...); err != nil {
		s.logger.Error().Err(err).Str("upload_id", session.ID).Msg("failed to delete chunk blobs")
	}
	if err := s.chunkRepo.DeleteByUpload(ctx, session.ID); err != nil {
		s.logger.Error().Err(err).Str("upload_id", session.ID).Msg("failed to delete chunk records")
	}

	s.logger.Info().
		Str("upload_id", session.ID).
		Str("video_id", session.VideoID).
		Int64("size", totalSize).
		Msg("upload completed")

	return s.videoRepo.GetByID(ctx, session.VideoID)
}

// AbortUpload explicitly abandons an active session and reclaims its chunks.
func (s *uploadService) AbortUpload(ctx context.Context, userID primitive.ObjectID, uploadID string) error {
	if _, err := s.getOwnedSession(ctx, userID, uploadID); err != nil {
		return err
	}
	if err := s.sessionRepo.CompareAndSwapStatus(ctx, uploadID, domain.UploadActive, domain.UploadFailed); err != nil {
		if errors.Is(err, repository.ErrStateMismatch) {
			return ErrSessionNotActive
		}
		return err
	}
	s.reclaimChunks(ctx, uploadID)
	return nil
}

// UploadStatus reports progress plus the exact set of indices present, so an
// interrupted client can resume without re-sending what already landed.
func (s *uploadService) UploadStatus(ctx context.Context, userID primitive.ObjectID, uploadID string) (*UploadStatusInfo, error) {
	session, err := s.getOwnedSession(ctx, userID, uploadID)
	if err != nil {
		return nil, err
	}
	records, err := s.chunkRepo.ListByUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	indexes := make([]int, len(records))
	for i, rec := range records {
		indexes[i] = rec.Index
	}
	// The stored counter can lag the chunk records after a crash between the
	// blob write and the increment; the distinct records are authoritative,
	// so their count is what gets reported.
	session.UploadedChunks = len(records)
	return &UploadStatusInfo{Session: session, PresentIndexes: indexes}, nil
}

// SweepExpired is the reclaim pass: overdue active sessions flip to expired
// (via CAS, so a racing Complete cannot be trampled) and their chunk blobs
// and records are deleted. Without this pass, abandoned uploads leak storage.
func (s *uploadService) SweepExpired(ctx context.Context, batchSize int) (int, error) {
	sessions, err := s.sessionRepo.ListExpired(ctx, s.clock(), batchSize)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, session := range sessions {
		if err := s.sessionRepo.CompareAndSwapStatus(ctx, session.ID, domain.UploadActive, domain.UploadExpired); err != nil {
			// Lost the race against a Complete or a concurrent sweep; skip.
			continue
		}
		s.reclaimChunks(ctx, session.ID)
		swept++
		s.logger.Info().Str("upload_id", session.ID).Msg("expired upload session reclaimed")
	}
	return swept, nil
}

func (s *uploadService) reclaimChunks(ctx context.Context, uploadID string) {
	// Delete by prefix listing rather than by records: blobs from a crashed
	// write may exist without a record.
	infos, err := s.store.List(ctx, storage.ChunkPrefix(uploadID))
	if err != nil {
		s.logger.Error().Err(err).Str("upload_id", uploadID).Msg("failed to list chunk blobs for reclaim")
	} else if len(infos) > 0 {
		keys := make([]string, len(infos))
		for i, info := range infos {
			keys[i] = info.Key
		}
		if err := s.store.Delete(ctx, keys...); err != nil {
			s.logger.Error().Err(err).Str("upload_id", uploadID).Msg("failed to delete chunk blobs")
		}
	}
	if err := s.chunkRepo.DeleteByUpload(ctx, uploadID); err != nil {
		s.logger.Error().Err(err).Str("upload_id", uploadID).Msg("failed to delete chunk records")
	}
}

// getOwnedSession resolves a session and enforces ownership; a session owned
// by someone else is reported as missing.
func (s *uploadService) getOwnedSession(ctx context.Context, userID primitive.ObjectID, uploadID string) (*domain.UploadSession, error) {
	if uploadID == "" {
		return nil, fmt.Errorf("%w: uploadId is required", ErrUploadValidation)
	}
	session, err := s.sessionRepo.GetByID(ctx, uploadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}
