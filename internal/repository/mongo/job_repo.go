package mongo

import (
	"context"
	"errors"
	"time"

	"streamvault/internal/domain"
	"streamvault/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const jobCollectionName = "processing_jobs"

// mongoJobRepository implements repository.ProcessingJobRepository
type mongoJobRepository struct {
	collection *mongo.Collection
}

// NewMongoJobRepository creates a new processing-job repository backed by
// MongoDB.
func NewMongoJobRepository(db *mongo.Database) repository.ProcessingJobRepository {
	return &mongoJobRepository{
		collection: db.Collection(jobCollectionName),
	}
}

func (r *mongoJobRepository) Enqueue(ctx context.Context, job *domain.ProcessingJob) error {
	if job.VideoID == "" {
		return errors.New("processing job requires a video id")
	}
	job.ID = primitive.NewObjectID()
	job.Status = domain.JobPending
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, job)
	return err
}

// ClaimPending atomically claims one job via FindOneAndUpdate. A job is
// claimable when pending, or when claimed but stale (the worker that claimed
// it never finished), so restarts always recover.
func (r *mongoJobRepository) ClaimPending(ctx context.Context, now time.Time, staleBefore time.Time) (*domain.ProcessingJob, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"status": domain.JobPending},
		bson.M{"status": domain.JobClaimed, "claimedAt": bson.M{"$lt": staleBefore}},
	}}
	update := bson.M{
		"$set": bson.M{
			"status":    domain.JobClaimed,
			"claimedAt": now,
			"updatedAt": now,
		},
		"$inc": bson.M{"attempts": 1},
	}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetReturnDocument(options.After)

	var job domain.ProcessingJob
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (r *mongoJobRepository) MarkDone(ctx context.Context, id primitive.ObjectID) error {
	return r.setStatus(ctx, id, domain.JobDone)
}

func (r *mongoJobRepository) MarkFailed(ctx context.Context, id primitive.ObjectID) error {
	return r.setStatus(ctx, id, domain.JobFailed)
}

func (r *mongoJobRepository) setStatus(ctx context.Context, id primitive.ObjectID, status domain.JobStatus) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureJobIndexes creates necessary indexes for the processing_jobs
// collection.
func EnsureJobIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "videoId", Value: 1}},
		},
	}
	_, _ = collection.Indexes().CreateMany(ctx, indexes)
}
