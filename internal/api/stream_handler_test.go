package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"streamvault/internal/cache"
	"streamvault/internal/config"
	"streamvault/internal/domain"
	"streamvault/internal/repository/memory"
	"streamvault/internal/service"
	"streamvault/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newTestRouter(t *testing.T) (*gin.Engine, *storage.MemoryStore, *memory.VideoRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storage.NewMemoryStore()
	users := memory.NewUserRepository()
	videos := memory.NewVideoRepository()
	sessions := memory.NewUploadSessionRepository()
	chunks := memory.NewChunkRepository()
	jobs := memory.NewProcessingJobRepository()
	logger := zerolog.Nop()

	authService := service.NewAuthService(users, "test-secret", time.Hour)
	videoService := service.NewVideoService(videos, users, store, logger)
	reassembler := service.NewReassembler(store, logger)
	uploadService := service.NewUploadService(sessions, chunks, videos, users, jobs, store, reassembler, config.UploadConfig{
		DefaultChunkSize: 4,
		MaxChunkSize:     8,
		SessionTTL:       time.Hour,
	}, logger)
	streamService := service.NewStreamService(videoService, videos, store, config.StreamConfig{DefaultRangeWindow: 500}, logger)
	hlsService := service.NewHLSService(videoService, store, cache.NewNoopCache(), config.HLSConfig{SegmentSeconds: 10, CacheTTL: time.Hour}, logger)

	router := gin.New()
	SetupRoutes(router, "test-secret", authService, videoService, uploadService, streamService, hlsService)
	return router, store, videos
}

func seedReadyVideo(t *testing.T, store *storage.MemoryStore, videos *memory.VideoRepository, visibility domain.Visibility) {
	t.Helper()
	const key = "videos/u/vid-1/movie.mp4"
	data := strings.Repeat("a", 2000)
	require.NoError(t, store.Put(context.Background(), key, strings.NewReader(data), 2000, "video/mp4"))
	require.NoError(t, videos.Create(context.Background(), &domain.Video{
		ID:              "vid-1",
		UserID:          primitive.NewObjectID(),
		Title:           "Test",
		Slug:            "test",
		Status:          domain.VideoReady,
		Visibility:      visibility,
		StorageKey:      key,
		ContentType:     "video/mp4",
		FileSizeBytes:   2000,
		DurationSeconds: 120,
	}))
}

func doRequest(router *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStreamEndpointFullObject(t *testing.T) {
	router, store, videos := newTestRouter(t)
	seedReadyVideo(t, store, videos, domain.VisibilityPublic)

	w := doRequest(router, http.MethodGet, "/stream/vid-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	require.Equal(t, "video/mp4", w.Header().Get("Content-Type"))
	require.Equal(t, "2000", w.Header().Get("Content-Length"))
	require.Len(t, w.Body.Bytes(), 2000)
}

func TestStreamEndpointRangeRequest(t *testing.T) {
	router, store, videos := newTestRouter(t)
	seedReadyVideo(t, store, videos, domain.VisibilityPublic)

	w := doRequest(router, http.MethodGet, "/stream/vid-1", map[string]string{"Range": "bytes=100-199"})
	require.Equal(t, http.StatusPartialContent, w.Code)
	require.Equal(t, "bytes 100-199/2000", w.Header().Get("Content-Range"))
	require.Equal(t, "100", w.Header().Get("Content-Length"))
	require.Len(t, w.Body.Bytes(), 100)
}

func TestStreamEndpointMalformedRangeServesFullObject(t *testing.T) {
	router, store, videos := newTestRouter(t)
	seedReadyVideo(t, store, videos, domain.VisibilityPublic)

	w := doRequest(router, http.MethodGet, "/stream/vid-1", map[string]string{"Range": "100-199"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, w.Body.Bytes(), 2000)
}

func TestStreamEndpointUnknownVideo(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/stream/nope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreamEndpointPrivateVideoDenied(t *testing.T) {
	router, store, videos := newTestRouter(t)
	seedReadyVideo(t, store, videos, domain.VisibilityPrivate)

	w := doRequest(router, http.MethodGet, "/stream/vid-1", nil)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestHLSEndpointPlaylists(t *testing.T) {
	router, store, videos := newTestRouter(t)
	seedReadyVideo(t, store, videos, domain.VisibilityPublic)

	w := doRequest(router, http.MethodGet, "/hls/vid-1/master.m3u8", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "application/vnd.apple.mpegurl")
	require.Contains(t, w.Body.String(), "/hls/vid-1/stream.m3u8")

	w = doRequest(router, http.MethodGet, "/hls/vid-1/stream.m3u8", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.Contains(t, body, "#EXT-X-BYTERANGE:")
	require.Contains(t, body, "/stream/vid-1")
	require.Contains(t, body, "#EXT-X-ENDLIST")

	// No pre-segmented artifacts exist, so a segment lookup is a 404.
	w = doRequest(router, http.MethodGet, "/hls/vid-1/seg_000.ts", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadEndpointsRequireAuth(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/upload/init", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/videos", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
