package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"streamvault/internal/cache"
	"streamvault/internal/config"
	"streamvault/internal/hls"
	"streamvault/internal/storage"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrSegmentNotFound is returned for a pre-segmented artifact that does not
// exist under the video's playlist prefix.
var ErrSegmentNotFound = errors.New("segment not found")

// defaultDurationSeconds backs playlist synthesis for videos whose duration
// was never probed. The window is generous enough that players reach the
// end-list marker before running out of segments.
const defaultDurationSeconds = 120

// SegmentResult is a proxied pre-segmented artifact.
type SegmentResult struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

// HLSService serves playlists and segments for playback. Videos that carry
// real segmented artifacts in storage are proxied; everything else gets a
// synthesized byte-range playlist over the progressive file.
type HLSService interface {
	MasterPlaylist(ctx context.Context, videoID string, viewerID primitive.ObjectID) (string, error)
	MediaPlaylist(ctx context.Context, videoID string, viewerID primitive.ObjectID) (string, error)
	Segment(ctx context.Context, videoID string, viewerID primitive.ObjectID, name string) (*SegmentResult, error)
}

type hlsService struct {
	videos VideoService
	store  storage.ObjectStore
	cache  cache.PlaylistCache
	cfg    config.HLSConfig
	logger zerolog.Logger
}

// NewHLSService creates a new hlsService.
func NewHLSService(videos VideoService, store storage.ObjectStore, playlistCache cache.PlaylistCache, cfg config.HLSConfig, logger zerolog.Logger) HLSService {
	return &hlsService{
		videos: videos,
		store:  store,
		cache:  playlistCache,
		cfg:    cfg,
		logger: logger.With().Str("component", "hls_service").Logger(),
	}
}

// MasterPlaylist returns the stored master playlist when real segmented
// artifacts exist, otherwise the single-rendition synthesized one.
func (s *hlsService) MasterPlaylist(ctx context.Context, videoID string, viewerID primitive.ObjectID) (string, error) {
	video, err := s.videos.GetWatchable(ctx, videoID, viewerID)
	if err != nil {
		return "", err
	}
	if !video.Servable() {
		return "", ErrVideoNotFound
	}

	if video.HLSPrefix != "" {
		if stored, err := s.readObject(ctx, video.HLSPrefix+"master.m3u8"); err == nil {
			return stored, nil
		}
	}

	return hls.BuildMasterPlaylist(fmt.Sprintf("/hls/%s/stream.m3u8", video.ID)), nil
}

// MediaPlaylist returns the stored media playlist when present, otherwise
// synthesizes a byte-range playlist over the progressive file. Synthesized
// playlists are deterministic in (video, duration, size, segment length), so
// they are cached under exactly that key.
func (s *hlsService) MediaPlaylist(ctx context.Context, videoID string, viewerID primitive.ObjectID) (string, error) {
	video, err := s.videos.GetWatchable(ctx, videoID, viewerID)
	if err != nil {
		return "", err
	}
	if !video.Servable() {
		return "", ErrVideoNotFound
	}

	if video.HLSPrefix != "" {
		if stored, err := s.readObject(ctx, video.HLSPrefix+"stream.m3u8"); err == nil {
			return stored, nil
		}
	}

	duration := video.DurationSeconds
	if duration <= 0 {
		duration = defaultDurationSeconds
	}

	key := hls.CacheKey(video.ID, duration, video.FileSizeBytes, s.cfg.SegmentSeconds)
	if cached, err := s.cache.Get(ctx, key); err == nil {
		return cached, nil
	}

	playlist := hls.BuildMediaPlaylist(duration, video.FileSizeBytes, s.cfg.SegmentSeconds, fmt.Sprintf("/stream/%s", video.ID))
	if err := s.cache.Set(ctx, key, playlist, s.cfg.CacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("video_id", video.ID).Msg("failed to cache media playlist")
	}
	return playlist, nil
}

// Segment proxies one pre-segmented artifact from under the video's playlist
// prefix. Synthesized playlists never reference this route; their entries
// point at the range-serving stream endpoint instead.
func (s *hlsService) Segment(ctx context.Context, videoID string, viewerID primitive.ObjectID, name string) (*SegmentResult, error) {
	video, err := s.videos.GetWatchable(ctx, videoID, viewerID)
	if err != nil {
		return nil, err
	}
	if !video.Servable() || video.HLSPrefix == "" {
		return nil, ErrSegmentNotFound
	}
	// Segment names are flat files under the prefix; reject traversal.
	if name == "" || name != path.Base(name) || strings.HasPrefix(name, ".") {
		return nil, ErrSegmentNotFound
	}

	body, size, err := s.store.Get(ctx, video.HLSPrefix+name)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrSegmentNotFound
		}
		return nil, err
	}

	return &SegmentResult{Body: body, Size: size, ContentType: segmentContentType(name)}, nil
}

func (s *hlsService) readObject(ctx context.Context, key string) (string, error) {
	body, _, err := s.store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func segmentContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".ts":
		return "video/mp2t"
	case ".m4s", ".mp4":
		return "video/mp4"
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	default:
		return "application/octet-stream"
	}
}
