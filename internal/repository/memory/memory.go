// Package memory provides in-process implementations of the repository
// interfaces. They back the database.driver=memory development mode and the
// service tests; the contract they honor, the typed repository interfaces, is
// exactly the one the MongoDB implementations honor.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"streamvault/internal/domain"
	"streamvault/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- users ---

type UserRepository struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]domain.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[primitive.ObjectID]domain.User)}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
	}
	user.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Plan == "" {
		user.Plan = domain.PlanFree
	}
	r.users[user.ID] = *user
	return user.ID, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			copied := u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *UserRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := u
	return &copied, nil
}

func (r *UserRepository) AddStorageUsed(ctx context.Context, id primitive.ObjectID, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.StorageUsedBytes += delta
	u.UpdatedAt = time.Now().UTC()
	r.users[id] = u
	return nil
}

// --- videos ---

type VideoRepository struct {
	mu     sync.RWMutex
	videos map[string]domain.Video
}

func NewVideoRepository() *VideoRepository {
	return &VideoRepository{videos: make(map[string]domain.Video)}
}

func (r *VideoRepository) Create(ctx context.Context, video *domain.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.videos[video.ID]; ok {
		return repository.ErrDuplicate
	}
	now := time.Now().UTC()
	video.CreatedAt = now
	video.UpdatedAt = now
	r.videos[video.ID] = *video
	return nil
}

func (r *VideoRepository) GetByID(ctx context.Context, id string) (*domain.Video, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.videos[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := v
	return &copied, nil
}

func (r *VideoRepository) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]domain.Video, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var videos []domain.Video
	for _, v := range r.videos {
		if v.UserID == userID && v.Status != domain.VideoDeleted {
			videos = append(videos, v)
		}
	}
	sort.Slice(videos, func(i, j int) bool { return videos[i].CreatedAt.After(videos[j].CreatedAt) })
	return videos, nil
}

func (r *VideoRepository) CountActiveByUser(ctx context.Context, userID primitive.ObjectID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, v := range r.videos {
		if v.UserID == userID && v.Status != domain.VideoDeleted {
			count++
		}
	}
	return count, nil
}

func (r *VideoRepository) Update(ctx context.Context, video *domain.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.videos[video.ID]; !ok {
		return repository.ErrNotFound
	}
	video.UpdatedAt = time.Now().UTC()
	r.videos[video.ID] = *video
	return nil
}

func (r *VideoRepository) UpdateStatus(ctx context.Context, id string, status domain.VideoStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return repository.ErrNotFound
	}
	v.Status = status
	v.UpdatedAt = time.Now().UTC()
	r.videos[id] = v
	return nil
}

func (r *VideoRepository) SetObjectInfo(ctx context.Context, id, storageKey, contentType string, size int64, status domain.VideoStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return repository.ErrNotFound
	}
	v.StorageKey = storageKey
	v.ContentType = contentType
	v.FileSizeBytes = size
	v.Status = status
	v.UpdatedAt = time.Now().UTC()
	r.videos[id] = v
	return nil
}

func (r *VideoRepository) IncrementViews(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return nil
	}
	v.ViewsCount++
	r.videos[id] = v
	return nil
}

// --- upload sessions ---

type UploadSessionRepository struct {
	mu       sync.Mutex
	sessions map[string]domain.UploadSession
}

func NewUploadSessionRepository() *UploadSessionRepository {
	return &UploadSessionRepository{sessions: make(map[string]domain.UploadSession)}
}

func (r *UploadSessionRepository) Create(ctx context.Context, session *domain.UploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID]; ok {
		return repository.ErrDuplicate
	}
	r.sessions[session.ID] = *session
	return nil
}

func (r *UploadSessionRepository) GetByID(ctx context.Context, id string) (*domain.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := s
	return &copied, nil
}

// CompareAndSwapStatus mirrors the mongo FindOneAndUpdate semantics under the
// repository mutex: the check and the flip are one critical section.
func (r *UploadSessionRepository) CompareAndSwapStatus(ctx context.Context, id string, from, to domain.UploadStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	if s.Status != from {
		return repository.ErrStateMismatch
	}
	s.Status = to
	r.sessions[id] = s
	return nil
}

func (r *UploadSessionRepository) SetStatus(ctx context.Context, id string, status domain.UploadStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.Status = status
	r.sessions[id] = s
	return nil
}

func (r *UploadSessionRepository) IncrementUploaded(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.UploadedChunks++
	r.sessions[id] = s
	return nil
}

func (r *UploadSessionRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired []domain.UploadSession
	for _, s := range r.sessions {
		if s.Status == domain.UploadActive && now.After(s.ExpiresAt) {
			expired = append(expired, s)
			if len(expired) >= limit {
				break
			}
		}
	}
	return expired, nil
}

// --- chunks ---

type chunkKey struct {
	uploadID string
	index    int
}

type ChunkRepository struct {
	mu     sync.Mutex
	chunks map[chunkKey]domain.ChunkRecord
}

func NewChunkRepository() *ChunkRepository {
	return &ChunkRepository{chunks: make(map[chunkKey]domain.ChunkRecord)}
}

func (r *ChunkRepository) Upsert(ctx context.Context, record *domain.ChunkRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := chunkKey{uploadID: record.UploadID, index: record.Index}
	_, existed := r.chunks[key]
	record.Status = domain.ChunkUploaded
	record.CreatedAt = time.Now().UTC()
	r.chunks[key] = *record
	return !existed, nil
}

func (r *ChunkRepository) CountByUpload(ctx context.Context, uploadID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for key := range r.chunks {
		if key.uploadID == uploadID {
			count++
		}
	}
	return count, nil
}

func (r *ChunkRepository) ListByUpload(ctx context.Context, uploadID string) ([]domain.ChunkRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var records []domain.ChunkRecord
	for key, rec := range r.chunks {
		if key.uploadID == uploadID {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Index < records[j].Index })
	return records, nil
}

func (r *ChunkRepository) DeleteByUpload(ctx context.Context, uploadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.chunks {
		if key.uploadID == uploadID {
			delete(r.chunks, key)
		}
	}
	return nil
}

// --- processing jobs ---

type ProcessingJobRepository struct {
	mu   sync.Mutex
	jobs map[primitive.ObjectID]domain.ProcessingJob
}

func NewProcessingJobRepository() *ProcessingJobRepository {
	return &ProcessingJobRepository{jobs: make(map[primitive.ObjectID]domain.ProcessingJob)}
}

func (r *ProcessingJobRepository) Enqueue(ctx context.Context, job *domain.ProcessingJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job.ID = primitive.NewObjectID()
	job.Status = domain.JobPending
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	r.jobs[job.ID] = *job
	return nil
}

func (r *ProcessingJobRepository) ClaimPending(ctx context.Context, now time.Time, staleBefore time.Time) (*domain.ProcessingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var candidates []domain.ProcessingJob
	for _, j := range r.jobs {
		if j.Status == domain.JobPending ||
			(j.Status == domain.JobClaimed && j.ClaimedAt != nil && j.ClaimedAt.Before(staleBefore)) {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return nil, repository.ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.Before(candidates[j].CreatedAt) })

	job := candidates[0]
	claimed := now
	job.Status = domain.JobClaimed
	job.ClaimedAt = &claimed
	job.Attempts++
	job.UpdatedAt = now
	r.jobs[job.ID] = job
	copied := job
	return &copied, nil
}

func (r *ProcessingJobRepository) MarkDone(ctx context.Context, id primitive.ObjectID) error {
	return r.setStatus(id, domain.JobDone)
}

func (r *ProcessingJobRepository) MarkFailed(ctx context.Context, id primitive.ObjectID) error {
	return r.setStatus(id, domain.JobFailed)
}

func (r *ProcessingJobRepository) setStatus(id primitive.ObjectID, status domain.JobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	j.Status = status
	j.UpdatedAt = time.Now().UTC()
	r.jobs[id] = j
	return nil
}
