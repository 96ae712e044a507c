package repository

import (
	"context"
	"time"

	"streamvault/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for the repository layer.
var (
	ErrNotFound      = RepositoryError("not found")
	ErrDuplicate     = RepositoryError("duplicate")
	ErrStateMismatch = RepositoryError("state mismatch") // CAS precondition failed
)

// RepositoryError helps distinguish repository errors.
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// UserRepository defines the interface for interacting with user accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	// AddStorageUsed adjusts the storage accounting by delta bytes, which may
	// be negative on deletion.
	AddStorageUsed(ctx context.Context, id primitive.ObjectID, delta int64) error
}

// VideoRepository defines the interface for interacting with video metadata.
// The binary content is not here; it lives in the object store.
type VideoRepository interface {
	Create(ctx context.Context, video *domain.Video) error
	GetByID(ctx context.Context, id string) (*domain.Video, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]domain.Video, error)
	CountActiveByUser(ctx context.Context, userID primitive.ObjectID) (int, error)
	Update(ctx context.Context, video *domain.Video) error
	UpdateStatus(ctx context.Context, id string, status domain.VideoStatus) error
	// SetObjectInfo records the merged object produced by reassembly and
	// moves the video into the given status in one write.
	SetObjectInfo(ctx context.Context, id, storageKey, contentType string, size int64, status domain.VideoStatus) error
	IncrementViews(ctx context.Context, id string) error
}

// UploadSessionRepository tracks resumable upload sessions. Status changes
// that gate concurrent completion go through CompareAndSwapStatus.
type UploadSessionRepository interface {
	Create(ctx context.Context, session *domain.UploadSession) error
	GetByID(ctx context.Context, id string) (*domain.UploadSession, error)
	// CompareAndSwapStatus atomically flips status from one value to another.
	// ErrStateMismatch is returned when the session is not in the expected
	// state, which is how two racing Complete calls are serialized.
	CompareAndSwapStatus(ctx context.Context, id string, from, to domain.UploadStatus) error
	SetStatus(ctx context.Context, id string, status domain.UploadStatus) error
	// IncrementUploaded bumps the uploaded-chunk counter. Callers only invoke
	// it for the first successful write of a given index.
	IncrementUploaded(ctx context.Context, id string) error
	// ListExpired returns sessions still marked active whose TTL has passed.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.UploadSession, error)
}

// ChunkRepository is the sparse set of chunk indices present for each upload.
// The unique (uploadID, index) constraint is what makes retried chunk uploads
// overwrite instead of duplicate.
type ChunkRepository interface {
	// Upsert stores the record for (record.UploadID, record.Index),
	// overwriting any previous one. It reports whether the index was newly
	// inserted, so the session counter only counts distinct indices.
	Upsert(ctx context.Context, record *domain.ChunkRecord) (inserted bool, err error)
	// CountByUpload is the authoritative |presentIndices| for completion.
	CountByUpload(ctx context.Context, uploadID string) (int, error)
	// ListByUpload returns records sorted by ascending index.
	ListByUpload(ctx context.Context, uploadID string) ([]domain.ChunkRecord, error)
	DeleteByUpload(ctx context.Context, uploadID string) error
}

// ProcessingJobRepository is the durable queue behind the finalizer worker.
type ProcessingJobRepository interface {
	Enqueue(ctx context.Context, job *domain.ProcessingJob) error
	// ClaimPending atomically claims one pending job, or a claimed job whose
	// claim is older than staleBefore (its worker is presumed dead).
	// ErrNotFound means there is nothing to do.
	ClaimPending(ctx context.Context, now time.Time, staleBefore time.Time) (*domain.ProcessingJob, error)
	MarkDone(ctx context.Context, id primitive.ObjectID) error
	MarkFailed(ctx context.Context, id primitive.ObjectID) error
}
