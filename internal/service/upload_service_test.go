package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"streamvault/internal/config"
	"streamvault/internal/domain"
	"streamvault/internal/repository/memory"
	"streamvault/internal/storage"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type uploadFixture struct {
	svc      *uploadService
	store    *storage.MemoryStore
	users    *memory.UserRepository
	videos   *memory.VideoRepository
	sessions *memory.UploadSessionRepository
	chunks   *memory.ChunkRepository
	jobs     *memory.ProcessingJobRepository
	userID   primitive.ObjectID
	now      time.Time
}

func newUploadFixture(t *testing.T) *uploadFixture {
	t.Helper()

	f := &uploadFixture{
		store:    storage.NewMemoryStore(),
		users:    memory.NewUserRepository(),
		videos:   memory.NewVideoRepository(),
		sessions: memory.NewUploadSessionRepository(),
		chunks:   memory.NewChunkRepository(),
		jobs:     memory.NewProcessingJobRepository(),
		now:      time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
	}

	userID, err := f.users.Create(context.Background(), &domain.User{
		Email: "owner@example.com",
		Name:  "Owner",
		Plan:  domain.PlanFree,
	})
	require.NoError(t, err)
	f.userID = userID

	logger := zerolog.Nop()
	cfg := config.UploadConfig{
		DefaultChunkSize: 4,
		MaxChunkSize:     8,
		SessionTTL:       24 * time.Hour,
	}
	svc := NewUploadService(f.sessions, f.chunks, f.videos, f.users, f.jobs, f.store, NewReassembler(f.store, logger), cfg, logger)
	f.svc = svc.(*uploadService)
	f.svc.clock = func() time.Time { return f.now }
	return f
}

func (f *uploadFixture) createVideo(t *testing.T, status domain.VideoStatus) *domain.Video {
	t.Helper()
	video := &domain.Video{
		ID:         "vid-1",
		UserID:     f.userID,
		Title:      "Test Video",
		Slug:       "test-video",
		Status:     status,
		Visibility: domain.VisibilityPublic,
		CreatedAt:  f.now,
		UpdatedAt:  f.now,
	}
	require.NoError(t, f.videos.Create(context.Background(), video))
	return video
}

func (f *uploadFixture) initSession(t *testing.T, fileSize, chunkSize int64) *domain.UploadSession {
	t.Helper()
	f.createVideo(t, domain.VideoUploading)
	session, err := f.svc.InitUpload(context.Background(), f.userID, "vid-1", "movie.mp4", fileSize, chunkSize)
	require.NoError(t, err)
	return session
}

func (f *uploadFixture) putChunk(t *testing.T, uploadID string, index int, data string) {
	t.Helper()
	_, err := f.svc.UploadChunk(context.Background(), f.userID, uploadID, index, strings.NewReader(data), int64(len(data)))
	require.NoError(t, err)
}

func TestInitUploadClampsChunkSize(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name       string
		fileSize   int64
		requested  int64
		wantSize   int64
		wantChunks int
	}{
		{"default when unset", 10, 0, 4, 3},
		{"clamped to max", 16, 100, 8, 2},
		{"honored in range", 10, 5, 5, 2},
		{"single chunk file", 3, 4, 4, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newUploadFixture(t)
			f.createVideo(t, domain.VideoUploading)
			session, err := f.svc.InitUpload(ctx, f.userID, "vid-1", "movie.mp4", tc.fileSize, tc.requested)
			require.NoError(t, err)
			require.Equal(t, tc.wantSize, session.ChunkSize)
			require.Equal(t, tc.wantChunks, session.TotalChunks)
			require.Equal(t, domain.UploadActive, session.Status)
			require.Equal(t, f.now.Add(24*time.Hour), session.ExpiresAt)
		})
	}
}

func TestInitUploadGates(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown video", func(t *testing.T) {
		f := newUploadFixture(t)
		_, err := f.svc.InitUpload(ctx, f.userID, "nope", "a.mp4", 10, 0)
		require.ErrorIs(t, err, ErrVideoNotFound)
	})

	t.Run("someone else's video looks missing", func(t *testing.T) {
		f := newUploadFixture(t)
		f.createVideo(t, domain.VideoUploading)
		_, err := f.svc.InitUpload(ctx, primitive.NewObjectID(), "vid-1", "a.mp4", 10, 0)
		require.ErrorIs(t, err, ErrVideoNotFound)
	})

	t.Run("video already has content", func(t *testing.T) {
		f := newUploadFixture(t)
		f.createVideo(t, domain.VideoReady)
		_, err := f.svc.InitUpload(ctx, f.userID, "vid-1", "a.mp4", 10, 0)
		require.ErrorIs(t, err, ErrVideoNotUploadable)
	})

	t.Run("file above plan ceiling", func(t *testing.T) {
		f := newUploadFixture(t)
		f.createVideo(t, domain.VideoUploading)
		tooBig := domain.PlanByID(domain.PlanFree).MaxVideoSizeBytes + 1
		_, err := f.svc.InitUpload(ctx, f.userID, "vid-1", "a.mp4", tooBig, 0)
		require.ErrorIs(t, err, ErrQuotaExceeded)
	})

	t.Run("non-positive size", func(t *testing.T) {
		f := newUploadFixture(t)
		f.createVideo(t, domain.VideoUploading)
		_, err := f.svc.InitUpload(ctx, f.userID, "vid-1", "a.mp4", 0, 0)
		require.ErrorIs(t, err, ErrUploadValidation)
	})
}

func TestUploadChunkRetryDoesNotDoubleCount(t *testing.T) {
	f := newUploadFixture(t)
	ctx := context.Background()
	session := f.initSession(t, 8, 4)

	f.putChunk(t, session.ID, 0, "aaaa")
	f.putChunk(t, session.ID, 0, "AAAA") // retry of the same index

	got, err := f.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.UploadedChunks)

	count, err := f.chunks.CountByUpload(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// The retry's bytes win.
	body, _, err := f.store.Get(ctx, storage.ChunkObjectKey(session.ID, 0))
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	body.Close()
	require.NoError(t, err)
	require.Equal(t, "AAAA", string(data))
}

func TestUploadChunkRejectsBadIndex(t *testing.T) {
	f := newUploadFixture(t)
	ctx := context.Background()
	session := f.initSession(t, 8, 4) // 2 chunks: indices 0 and 1

	_, err := f.svc.UploadChunk(ctx, f.userID, session.ID, 2, strings.NewReader("x"), 1)
	require.ErrorIs(t, err, ErrInvalidChunkIndex)
	_, err = f.svc.UploadChunk(ctx, f.userID, session.ID, -1, strings.NewReader("x"), 1)
	require.ErrorIs(t, err, ErrInvalidChunkIndex)
}

func TestUploadChunkUnknownSession(t *testing.T) {
	f := newUploadFixture(t)
	_, err := f.svc.UploadChunk(context.Background(), f.userID, "nope", 0, strings.NewReader("x"), 1)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCompleteUploadBeforeAllChunks(t *testing.T) {
	f := newUploadFixture(t)
	ctx := context.Background()
	session := f.initSession(t, 8, 4)
	f.putChunk(t, session.ID, 0, "aaaa")

	_, err := f.svc.CompleteUpload(ctx, f.userID, session.ID)
	require.ErrorIs(t, err, ErrUploadIncomplete)

	// Nothing was consumed; the session keeps accepting chunks.
	got, err := f.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.UploadActive, got.Status)
}

func TestCompleteUploadMergesChunksInOrder(t *testing.T) {
	f := newUploadFixture(t)
	ctx := context.Background()
	session := f.initSession(t, 10, 4) // 3 chunks

	// Out-of-order arrival must not affect the merged result.
	f.putChunk(t, session.ID, 2, "ii")
	f.putChunk(t, session.ID, 0, "aaaa")
	f.putChunk(t, session.ID, 1, "eeee")

	video, err := f.svc.CompleteUpload(ctx, f.userID, session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.VideoProcessing, video.Status)
	require.Equal(t, int64(10), video.FileSizeBytes)
	require.Equal(t, "video/mp4", video.ContentType)

	body, size, err := f.store.Get(ctx, video.StorageKey)
	require.NoError(t, err)
	require.Equal(t, int64(10), size)
	merged, err := io.ReadAll(body)
	body.Close()
	require.NoError(t, err)
	require.Equal(t, "aaaaeeeeii", string(merged))

	got, err := f.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.UploadCompleted, got.Status)

	// Chunk blobs and records are reclaimed.
	infos, err := f.store.List(ctx, storage.ChunkPrefix(session.ID))
	require.NoError(t, err)
	require.Empty(t, infos)
	count, err := f.chunks.CountByUpload(ctx, session.ID)
	require.NoError(t, err)
	require.Zero(t, count)

	// A finalizer job was enqueued for the video.
	job, err := f.jobs.ClaimPending(ctx, f.now, f.now.Add(-time.Minute))
	require.NoError(t, err)
	require.Equal(t, video.ID, job.VideoID)

	// Storage accounting moved by the merged size.
	owner, err := f.users.GetByID(ctx, f.userID)
	require.NoError(t, err)
	require.Equal(t, int64(10), owner.StorageUsedBytes)
}

func TestCompleteUploadLostBlobStaysRetryable(t *testing.T) {
	f := newUploadFixture(t)
	ctx := context.Background()
	session := f.initSession(t, 8, 4)
	f.putChunk(t, session.ID, 0, "aaaa")
	f.putChunk(t, session.ID, 1, "bbbb")

	// Simulate a blob lost after its record was written.
	require.NoError(t, f.store.Delete(ctx, storage.ChunkObjectKey(session.ID, 1)))

	_, err := f.svc.CompleteUpload(ctx, f.userID, session.ID)
	require.ErrorIs(t, err, ErrChunkMissing)
	var missing *MissingChunkError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, 1, missing.Index)

	// The session reverted to active; re-uploading the chunk and retrying
	// succeeds.
	got, err := f.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.UploadActive, got.Status)

	f.putChunk(t, session.ID, 1, "bbbb")
	video, err := f.svc.CompleteUpload(ctx, f.userID, session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.VideoProcessing, video.Status)
}

func TestCompleteUploadSerialized(t *testing.T) {
	f := newUploadFixture(t)
	ctx := context.Background()
	session := f.initSession(t, 4, 4)
	f.putChunk(t, session.ID, 0, "aaaa")

	require.NoError(t, f.sessions.SetStatus(ctx, session.ID, domain.UploadCompleting))
	_, err := f.svc.CompleteUpload(ctx, f.userID, session.ID)
	require.ErrorIs(t, err, ErrCompletionInProgress)
}

func TestCompleteUploadAlreadyCompleted(t *testing.T) {
	f := newUploadFixture(t)
	ctx := context.Background()
	session := f.initSession(t, 4, 4)
	f.putChunk(t, session.ID, 0, "aaaa")

	_, err := f.svc.CompleteUpload(ctx, f.userID, session.ID)
	require.NoError(t, err)

	_, err = f.svc.CompleteUpload(ctx, f.userID, session.ID)
	require.ErrorIs(t, err, ErrSessionNotActive)
}

func TestExpiredSessionRejectsEverything(t *testing.T) {
	f := newUploadFixture(t)
	ctx := context.Background()
	session := f.initSession(t, 8, 4)
	f.putChunk(t, session.ID, 0, "aaaa")
	f.putChunk(t, session.ID, 1, "bbbb")

	f.now = f.now.Add(25 * time.Hour)

	_, err := f.svc.UploadChunk(ctx, f.userID, session.ID, 0, strings.NewReader("x"), 1)
	require.ErrorIs(t, err, ErrSessionExpired)

	_, err = f.svc.CompleteUpload(ctx, f.userID, session.ID)
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestAbortUploadReclaimsChunks(t *testing.T) {
	f := newUploadFixture(t)
	ctx := context.Background()
	session := f.initSession(t, 8, 4)
	f.putChunk(t, session.ID, 0, "aaaa")

	require.NoError(t, f.svc.AbortUpload(ctx, f.userID, session.ID))

	got, err := f.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.UploadFailed, got.Status)

	infos, err := f.store.List(ctx, storage.ChunkPrefix(session.ID))
	require.NoError(t, err)
	require.Empty(t, infos)
}

func TestSweepExpiredReclaims(t *testing.T) {
	f := newUploadFixture(t)
	ctx := context.Background()
	session := f.initSession(t, 8, 4)
	f.putChunk(t, session.ID, 0, "aaaa")

	f.now = f.now.Add(25 * time.Hour)

	swept, err := f.svc.SweepExpired(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, swept)

	got, err := f.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.UploadExpired, got.Status)

	infos, err := f.store.List(ctx, storage.ChunkPrefix(session.ID))
	require.NoError(t, err)
	require.Empty(t, infos)
	count, err := f.chunks.CountByUpload(ctx, session.ID)
	require.NoError(t, err)
	require.Zero(t, count)

	// A second pass finds nothing.
	swept, err = f.svc.SweepExpired(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, swept)
}

func TestUploadStatusReportsPresentIndexes(t *testing.T) {
	f := newUploadFixture(t)
	ctx := context.Background()
	session := f.initSession(t, 12, 4) // 3 chunks
	f.putChunk(t, session.ID, 2, "iiii")
	f.putChunk(t, session.ID, 0, "aaaa")

	info, err := f.svc.UploadStatus(ctx, f.userID, session.ID)
	require.NoError(t, err)
	require.Equal(t, 2, info.Session.UploadedChunks)
	require.Equal(t, []int{0, 2}, info.PresentIndexes)

	// Another user cannot see the session.
	_, err = f.svc.UploadStatus(ctx, primitive.NewObjectID(), session.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestUploadStatusCounterDerivedFromRecords(t *testing.T) {
	f := newUploadFixture(t)
	ctx := context.Background()
	session := f.initSession(t, 10, 4) // 3 chunks

	f.putChunk(t, session.ID, 0, "aaaa")

	// A crash between the chunk upsert and the counter increment leaves a
	// record without a matching bump; status must report the record count.
	_, err := f.chunks.Upsert(ctx, &domain.ChunkRecord{
		UploadID:   session.ID,
		VideoID:    session.VideoID,
		Index:      1,
		Size:       4,
		StorageKey: storage.ChunkObjectKey(session.ID, 1),
	})
	require.NoError(t, err)

	stored, err := f.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.UploadedChunks)

	info, err := f.svc.UploadStatus(ctx, f.userID, session.ID)
	require.NoError(t, err)
	require.Equal(t, 2, info.Session.UploadedChunks)
	require.ElementsMatch(t, []int{0, 1}, info.PresentIndexes)
}

func TestCompleteUploadRechecksPlanQuota(t *testing.T) {
	f := newUploadFixture(t)
	ctx := context.Background()

	// Leave six bytes of headroom on the free plan. The declared size still
	// fits, but the chunks that actually arrive sum past it.
	require.NoError(t, f.users.AddStorageUsed(ctx, f.userID, 5<<30-6))

	session := f.initSession(t, 5, 4) // 2 chunks declared
	f.putChunk(t, session.ID, 0, "aaaa")
	f.putChunk(t, session.ID, 1, "bbbb")

	_, err := f.svc.CompleteUpload(ctx, f.userID, session.ID)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	// No final object was recorded and the session reverted to active.
	video, err := f.videos.GetByID(ctx, "vid-1")
	require.NoError(t, err)
	require.Equal(t, domain.VideoUploading, video.Status)
	require.Empty(t, video.StorageKey)

	got, err := f.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, domain.UploadActive, got.Status)
}
