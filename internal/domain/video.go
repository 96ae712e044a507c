package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VideoStatus tracks a video through its lifecycle.
type VideoStatus string

const (
	VideoUploading  VideoStatus = "uploading"  // metadata exists, waiting for chunks
	VideoProcessing VideoStatus = "processing" // merged, waiting for the finalizer
	VideoReady      VideoStatus = "ready"      // servable
	VideoFailed     VideoStatus = "failed"
	VideoDeleted    VideoStatus = "deleted"
)

// Visibility controls who may stream a video.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
)

// Video is the owning entity for one uploaded file. The binary itself lives
// in the object store under StorageKey; this record only carries metadata.
type Video struct {
	ID              string             `bson:"_id" json:"id"`
	UserID          primitive.ObjectID `bson:"userId" json:"userId"`
	Title           string             `bson:"title" json:"title"`
	Description     string             `bson:"description" json:"description"`
	Slug            string             `bson:"slug" json:"slug"`
	Status          VideoStatus        `bson:"status" json:"status"`
	Visibility      Visibility         `bson:"visibility" json:"visibility"`
	Category        string             `bson:"category,omitempty" json:"category,omitempty"`
	StorageKey      string             `bson:"storageKey,omitempty" json:"-"`
	HLSPrefix       string             `bson:"hlsPrefix,omitempty" json:"-"`
	ContentType     string             `bson:"contentType,omitempty" json:"contentType,omitempty"`
	FileSizeBytes   int64              `bson:"fileSizeBytes" json:"fileSizeBytes"`
	DurationSeconds float64            `bson:"durationSeconds" json:"durationSeconds"`
	ViewsCount      int64              `bson:"viewsCount" json:"viewsCount"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Servable reports whether the video may be streamed at all.
func (v *Video) Servable() bool {
	return v.Status == VideoReady && v.StorageKey != ""
}
