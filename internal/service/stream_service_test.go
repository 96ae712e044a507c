package service

import (
	"context"
	"io"
	"strings"
	"testing"

	"streamvault/internal/config"
	"streamvault/internal/domain"
	"streamvault/internal/repository/memory"
	"streamvault/internal/storage"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestParseRange(t *testing.T) {
	const size, window = 2000, 500
	cases := []struct {
		name        string
		header      string
		wantStart   int64
		wantEnd     int64
		wantPartial bool
		wantOK      bool
	}{
		{"no header", "", 0, 1999, false, true},
		{"malformed header serves full object", "0-100", 0, 1999, false, true},
		{"explicit window", "bytes=100-199", 100, 199, true, true},
		{"open end capped by window", "bytes=300-", 300, 799, true, true},
		{"open end clipped to object", "bytes=1800-", 1800, 1999, true, true},
		{"end clipped to object", "bytes=900-5000", 900, 1999, true, true},
		{"unparsable start falls back to zero", "bytes=abc-99", 0, 99, true, true},
		{"end before start falls back to window", "bytes=100-50", 100, 599, true, true},
		{"start at end of object", "bytes=2000-", 0, 0, false, false},
		{"start past end of object", "bytes=9999-", 0, 0, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end, partial, ok := parseRange(tc.header, size, window)
			require.Equal(t, tc.wantOK, ok)
			if !tc.wantOK {
				return
			}
			require.Equal(t, tc.wantStart, start)
			require.Equal(t, tc.wantEnd, end)
			require.Equal(t, tc.wantPartial, partial)
		})
	}
}

type streamFixture struct {
	svc    StreamService
	store  *storage.MemoryStore
	videos *memory.VideoRepository
	owner  primitive.ObjectID
}

func newStreamFixture(t *testing.T, visibility domain.Visibility, status domain.VideoStatus) *streamFixture {
	t.Helper()

	f := &streamFixture{
		store:  storage.NewMemoryStore(),
		videos: memory.NewVideoRepository(),
		owner:  primitive.NewObjectID(),
	}
	users := memory.NewUserRepository()
	logger := zerolog.Nop()

	const key = "videos/u/vid-1/movie.mp4"
	data := strings.Repeat("x", 1000) + strings.Repeat("y", 1000)
	require.NoError(t, f.store.Put(context.Background(), key, strings.NewReader(data), 2000, "video/mp4"))

	video := &domain.Video{
		ID:            "vid-1",
		UserID:        f.owner,
		Title:         "Streamable",
		Slug:          "streamable",
		Status:        status,
		Visibility:    visibility,
		StorageKey:    key,
		ContentType:   "video/mp4",
		FileSizeBytes: 2000,
	}
	require.NoError(t, f.videos.Create(context.Background(), video))

	videoService := NewVideoService(f.videos, users, f.store, logger)
	f.svc = NewStreamService(videoService, f.videos, f.store, config.StreamConfig{DefaultRangeWindow: 500}, logger)
	return f
}

func TestStreamFullObject(t *testing.T) {
	f := newStreamFixture(t, domain.VisibilityPublic, domain.VideoReady)

	result, err := f.svc.Stream(context.Background(), "vid-1", primitive.NilObjectID, "")
	require.NoError(t, err)
	defer result.Body.Close()

	require.False(t, result.Partial)
	require.Equal(t, int64(0), result.Start)
	require.Equal(t, int64(1999), result.End)
	require.Equal(t, int64(2000), result.TotalSize)
	require.Equal(t, "video/mp4", result.ContentType)

	data, err := io.ReadAll(result.Body)
	require.NoError(t, err)
	require.Len(t, data, 2000)
}

func TestStreamRangeWindow(t *testing.T) {
	f := newStreamFixture(t, domain.VisibilityPublic, domain.VideoReady)

	result, err := f.svc.Stream(context.Background(), "vid-1", primitive.NilObjectID, "bytes=998-1001")
	require.NoError(t, err)
	defer result.Body.Close()

	require.True(t, result.Partial)
	require.Equal(t, int64(998), result.Start)
	require.Equal(t, int64(1001), result.End)

	data, err := io.ReadAll(result.Body)
	require.NoError(t, err)
	require.Equal(t, "xxyy", string(data))
}

func TestStreamOpenEndedRangeUsesWindow(t *testing.T) {
	f := newStreamFixture(t, domain.VisibilityPublic, domain.VideoReady)

	result, err := f.svc.Stream(context.Background(), "vid-1", primitive.NilObjectID, "bytes=100-")
	require.NoError(t, err)
	defer result.Body.Close()

	require.True(t, result.Partial)
	require.Equal(t, int64(100), result.Start)
	require.Equal(t, int64(599), result.End)

	data, err := io.ReadAll(result.Body)
	require.NoError(t, err)
	require.Len(t, data, 500)
}

func TestStreamRangeBeyondEnd(t *testing.T) {
	f := newStreamFixture(t, domain.VisibilityPublic, domain.VideoReady)

	_, err := f.svc.Stream(context.Background(), "vid-1", primitive.NilObjectID, "bytes=2000-")
	require.ErrorIs(t, err, ErrVideoNotFound)
}

func TestStreamNotReadyVideo(t *testing.T) {
	f := newStreamFixture(t, domain.VisibilityPublic, domain.VideoProcessing)

	_, err := f.svc.Stream(context.Background(), "vid-1", primitive.NilObjectID, "")
	require.ErrorIs(t, err, ErrVideoNotFound)
}

func TestStreamPrivateVideoAccess(t *testing.T) {
	f := newStreamFixture(t, domain.VisibilityPrivate, domain.VideoReady)

	_, err := f.svc.Stream(context.Background(), "vid-1", primitive.NilObjectID, "")
	require.ErrorIs(t, err, ErrVideoForbidden)

	_, err = f.svc.Stream(context.Background(), "vid-1", primitive.NewObjectID(), "")
	require.ErrorIs(t, err, ErrVideoForbidden)

	result, err := f.svc.Stream(context.Background(), "vid-1", f.owner, "")
	require.NoError(t, err)
	result.Body.Close()
}
