package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// JobStatus of a processing job.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobClaimed JobStatus = "claimed"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// ProcessingJob is the durable record that drives a video from processing to
// ready. It is written when an upload completes and polled by the finalizer
// worker, so the transition survives process restarts. Claimed jobs whose
// worker died become pollable again after a claim timeout.
type ProcessingJob struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	VideoID   string             `bson:"videoId" json:"videoId"`
	UploadID  string             `bson:"uploadId" json:"uploadId"`
	Status    JobStatus          `bson:"status" json:"status"`
	Attempts  int                `bson:"attempts" json:"attempts"`
	ClaimedAt *time.Time         `bson:"claimedAt,omitempty" json:"claimedAt,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}
