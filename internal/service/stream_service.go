package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"streamvault/internal/config"
	"streamvault/internal/repository"
	"streamvault/internal/storage"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StreamResult is everything the HTTP handler needs to answer a playback
// request: the body reader plus the byte window it covers.
type StreamResult struct {
	Body        io.ReadCloser
	Start       int64
	End         int64
	TotalSize   int64
	ContentType string
	// Partial reports whether this is a ranged (206) response.
	Partial bool
}

// StreamService serves playback bytes for ready videos, honoring HTTP Range
// requests with a bounded default window.
type StreamService interface {
	Stream(ctx context.Context, videoID string, viewerID primitive.ObjectID, rangeHeader string) (*StreamResult, error)
}

type streamService struct {
	videos    VideoService
	videoRepo repository.VideoRepository
	store     storage.ObjectStore
	cfg       config.StreamConfig
	logger    zerolog.Logger
}

// NewStreamService creates a new streamService.
func NewStreamService(videos VideoService, videoRepo repository.VideoRepository, store storage.ObjectStore, cfg config.StreamConfig, logger zerolog.Logger) StreamService {
	return &streamService{
		videos:    videos,
		videoRepo: videoRepo,
		store:     store,
		cfg:       cfg,
		logger:    logger.With().Str("component", "stream_service").Logger(),
	}
}

// Stream resolves the video, applies the Range header and opens the matching
// byte window on the stored object. A video that is not ready or has no
// stored object yet is reported as not found. The view counter moves off the
// request path; a failed increment never fails the stream.
func (s *streamService) Stream(ctx context.Context, videoID string, viewerID primitive.ObjectID, rangeHeader string) (*StreamResult, error) {
	video, err := s.videos.GetWatchable(ctx, videoID, viewerID)
	if err != nil {
		return nil, err
	}
	if !video.Servable() {
		return nil, ErrVideoNotFound
	}

	size, err := s.store.Head(ctx, video.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrVideoNotFound
		}
		return nil, err
	}

	contentType := video.ContentType
	if contentType == "" {
		contentType = "video/mp4"
	}

	result := &StreamResult{TotalSize: size, ContentType: contentType}

	start, end, partial, ok := parseRange(rangeHeader, size, s.cfg.DefaultRangeWindow)
	if !ok {
		return nil, fmt.Errorf("%w: range start beyond end of file", ErrVideoNotFound)
	}

	if partial {
		body, _, err := s.store.GetRange(ctx, video.StorageKey, start, end-start+1)
		if err != nil {
			return nil, err
		}
		result.Body = body
		result.Start = start
		result.End = end
		result.Partial = true
	} else {
		body, _, err := s.store.Get(ctx, video.StorageKey)
		if err != nil {
			return nil, err
		}
		result.Body = body
		result.Start = 0
		result.End = size - 1
	}

	go s.countView(video.ID)

	return result, nil
}

func (s *streamService) countView(videoID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.videoRepo.IncrementViews(ctx, videoID); err != nil {
		s.logger.Warn().Err(err).Str("video_id", videoID).Msg("failed to increment view count")
	}
}

// parseRange interprets a Range header against an object of the given size.
// A missing or malformed header (no "bytes=" prefix) selects the full object.
// Within a bytes range, an unparsable start falls back to 0, an omitted end
// is capped at start+window-1, and the end is always clipped to size-1. A
// start at or past the end of the object is unsatisfiable (ok=false).
func parseRange(header string, size, window int64) (start, end int64, partial, ok bool) {
	if header == "" || !strings.HasPrefix(header, "bytes=") {
		return 0, size - 1, false, true
	}

	value := strings.TrimPrefix(header, "bytes=")
	startStr, endStr, _ := strings.Cut(value, "-")

	start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil || start < 0 {
		start = 0
	}
	if start >= size {
		return 0, 0, false, false
	}

	if endStr = strings.TrimSpace(endStr); endStr != "" {
		if parsed, err := strconv.ParseInt(endStr, 10, 64); err == nil && parsed >= start {
			end = parsed
		} else {
			end = start + window - 1
		}
	} else {
		end = start + window - 1
	}
	if end > size-1 {
		end = size - 1
	}

	return start, end, true, true
}
