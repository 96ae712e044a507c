package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"streamvault/internal/domain"
	"streamvault/internal/repository"
	"streamvault/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrVideoNotFound   = errors.New("video not found")
	ErrVideoForbidden  = errors.New("video access denied")
	ErrVideoValidation = errors.New("video validation failed")
)

// VideoUpdate carries the mutable metadata fields. Nil means "leave as is".
type VideoUpdate struct {
	Title       *string
	Description *string
	Category    *string
	Visibility  *domain.Visibility
}

type VideoService interface {
	CreateVideo(ctx context.Context, userID primitive.ObjectID, title, description, category string, visibility domain.Visibility) (*domain.Video, error)
	GetVideo(ctx context.Context, videoID string) (*domain.Video, error)
	// GetWatchable resolves a video for playback, enforcing visibility: a
	// private video is only watchable by its owner.
	GetWatchable(ctx context.Context, videoID string, viewerID primitive.ObjectID) (*domain.Video, error)
	ListUserVideos(ctx context.Context, userID primitive.ObjectID) ([]domain.Video, error)
	UpdateVideo(ctx context.Context, userID primitive.ObjectID, videoID string, update VideoUpdate) (*domain.Video, error)
	DeleteVideo(ctx context.Context, userID primitive.ObjectID, videoID string) error
}

type videoService struct {
	videoRepo repository.VideoRepository
	userRepo  repository.UserRepository
	store     storage.ObjectStore
	logger    zerolog.Logger
	clock     func() time.Time
	idGen     func() string
}

// NewVideoService creates a new videoService.
func NewVideoService(videoRepo repository.VideoRepository, userRepo repository.UserRepository, store storage.ObjectStore, logger zerolog.Logger) VideoService {
	return &videoService{
		videoRepo: videoRepo,
		userRepo:  userRepo,
		store:     store,
		logger:    logger.With().Str("component", "video_service").Logger(),
		clock:     time.Now,
		idGen:     func() string { return uuid.NewString() },
	}
}

// CreateVideo registers a video shell in the uploading state. The actual
// bytes arrive later through an upload session tied to this video's ID.
func (s *videoService) CreateVideo(ctx context.Context, userID primitive.ObjectID, title, description, category string, visibility domain.Visibility) (*domain.Video, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrVideoValidation)
	}
	if visibility == "" {
		visibility = domain.VisibilityPrivate
	}
	switch visibility {
	case domain.VisibilityPublic, domain.VisibilityUnlisted, domain.VisibilityPrivate:
	default:
		return nil, fmt.Errorf("%w: unknown visibility %q", ErrVideoValidation, visibility)
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	plan := domain.PlanByID(user.Plan)
	count, err := s.videoRepo.CountActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if plan.MaxVideos > 0 && count >= plan.MaxVideos {
		return nil, fmt.Errorf("%w: plan allows at most %d videos", ErrQuotaExceeded, plan.MaxVideos)
	}

	now := s.clock().UTC()
	video := &domain.Video{
		ID:          s.idGen(),
		UserID:      userID,
		Title:       title,
		Description: description,
		Slug:        s.makeSlug(title),
		Status:      domain.VideoUploading,
		Visibility:  visibility,
		Category:    category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.videoRepo.Create(ctx, video); err != nil {
		return nil, err
	}

	s.logger.Info().Str("video_id", video.ID).Str("user_id", userID.Hex()).Msg("video created")
	return video, nil
}

func (s *videoService) GetVideo(ctx context.Context, videoID string) (*domain.Video, error) {
	video, err := s.videoRepo.GetByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrVideoNotFound
		}
		return nil, err
	}
	if video.Status == domain.VideoDeleted {
		return nil, ErrVideoNotFound
	}
	return video, nil
}

func (s *videoService) GetWatchable(ctx context.Context, videoID string, viewerID primitive.ObjectID) (*domain.Video, error) {
	video, err := s.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video.Visibility == domain.VisibilityPrivate && video.UserID != viewerID {
		return nil, ErrVideoForbidden
	}
	return video, nil
}

func (s *videoService) ListUserVideos(ctx context.Context, userID primitive.ObjectID) ([]domain.Video, error) {
	return s.videoRepo.ListByUser(ctx, userID)
}

func (s *videoService) UpdateVideo(ctx context.Context, userID primitive.ObjectID, videoID string, update VideoUpdate) (*domain.Video, error) {
	video, err := s.getOwnedVideo(ctx, userID, videoID)
	if err != nil {
		return nil, err
	}

	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title cannot be empty", ErrVideoValidation)
		}
		video.Title = title
	}
	if update.Description != nil {
		video.Description = *update.Description
	}
	if update.Category != nil {
		video.Category = *update.Category
	}
	if update.Visibility != nil {
		switch *update.Visibility {
		case domain.VisibilityPublic, domain.VisibilityUnlisted, domain.VisibilityPrivate:
			video.Visibility = *update.Visibility
		default:
			return nil, fmt.Errorf("%w: unknown visibility %q", ErrVideoValidation, *update.Visibility)
		}
	}
	video.UpdatedAt = s.clock().UTC()

	if err := s.videoRepo.Update(ctx, video); err != nil {
		return nil, err
	}
	return video, nil
}

// DeleteVideo marks the video deleted, releases its storage accounting and
// removes every object under its prefix, the merged file and any generated
// playlist artifacts alike.
func (s *videoService) DeleteVideo(ctx context.Context, userID primitive.ObjectID, videoID string) error {
	video, err := s.getOwnedVideo(ctx, userID, videoID)
	if err != nil {
		return err
	}

	if err := s.videoRepo.UpdateStatus(ctx, videoID, domain.VideoDeleted); err != nil {
		return err
	}

	if video.FileSizeBytes > 0 {
		if err := s.userRepo.AddStorageUsed(ctx, userID, -video.FileSizeBytes); err != nil {
			s.logger.Error().Err(err).Str("video_id", videoID).Msg("failed to release storage accounting")
		}
	}

	prefix := storage.VideoPrefix(userID.Hex(), videoID)
	infos, err := s.store.List(ctx, prefix)
	if err != nil {
		s.logger.Error().Err(err).Str("video_id", videoID).Msg("failed to list video objects for delete")
		return nil
	}
	if len(infos) > 0 {
		keys := make([]string, len(infos))
		for i, info := range infos {
			keys[i] = info.Key
		}
		if err := s.store.Delete(ctx, keys...); err != nil {
			s.logger.Error().Err(err).Str("video_id", videoID).Msg("failed to delete video objects")
		}
	}

	s.logger.Info().Str("video_id", videoID).Msg("video deleted")
	return nil
}

func (s *videoService) getOwnedVideo(ctx context.Context, userID primitive.ObjectID, videoID string) (*domain.Video, error) {
	video, err := s.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video.UserID != userID {
		return nil, ErrVideoNotFound
	}
	return video, nil
}

// makeSlug turns a title into a URL-safe slug with a short random suffix so
// two videos with the same title never collide on the unique slug index.
func (s *videoService) makeSlug(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "video"
	}
	if len(slug) > 60 {
		slug = slug[:60]
	}
	return slug + "-" + s.idGen()[:8]
}
