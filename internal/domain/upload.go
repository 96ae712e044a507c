package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UploadStatus is the state of a resumable upload session. Transitions only
// move forward: active -> completing -> completed, active -> expired,
// active -> failed. Terminal states are sinks.
type UploadStatus string

const (
	UploadActive     UploadStatus = "active"
	UploadCompleting UploadStatus = "completing" // merge in flight; reverts to active on failure
	UploadCompleted  UploadStatus = "completed"
	UploadExpired    UploadStatus = "expired"
	UploadFailed     UploadStatus = "failed"
)

// UploadSession tracks one chunked upload from init until completion or
// expiry. Chunk blobs live in the object store; the session only does the
// bookkeeping.
type UploadSession struct {
	ID             string             `bson:"_id" json:"uploadId"`
	VideoID        string             `bson:"videoId" json:"videoId"`
	UserID         primitive.ObjectID `bson:"userId" json:"userId"`
	Filename       string             `bson:"filename" json:"filename"`
	DeclaredSize   int64              `bson:"declaredSize" json:"declaredSize"`
	ChunkSize      int64              `bson:"chunkSize" json:"chunkSize"`
	TotalChunks    int                `bson:"totalChunks" json:"totalChunks"`
	UploadedChunks int                `bson:"uploadedChunks" json:"uploadedChunks"`
	Status         UploadStatus       `bson:"status" json:"status"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	ExpiresAt      time.Time          `bson:"expiresAt" json:"expiresAt"`
}

// Expired reports whether the session TTL has passed. An expired session must
// never accept chunks or complete, even if the sweeper has not caught it yet.
func (s *UploadSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// ChunkStatus of a stored chunk. Only one value today; kept as a type so a
// verification pass could mark chunks without schema changes.
type ChunkStatus string

const ChunkUploaded ChunkStatus = "uploaded"

// ChunkRecord is the metadata row for one uploaded chunk. At most one live
// record exists per (UploadID, Index); re-uploading an index overwrites both
// the blob and this record.
type ChunkRecord struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	UploadID   string             `bson:"uploadId" json:"uploadId"`
	VideoID    string             `bson:"videoId" json:"videoId"`
	Index      int                `bson:"chunkIndex" json:"chunkIndex"`
	Size       int64              `bson:"size" json:"size"`
	StorageKey string             `bson:"storageKey" json:"-"`
	Status     ChunkStatus        `bson:"status" json:"status"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
}
