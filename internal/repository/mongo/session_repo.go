package mongo

import (
	"context"
	"errors"
	"time"

	"streamvault/internal/domain"
	"streamvault/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const sessionCollectionName = "upload_sessions"

// mongoSessionRepository implements repository.UploadSessionRepository
type mongoSessionRepository struct {
	collection *mongo.Collection
}

// NewMongoSessionRepository creates a new upload-session repository backed by
// MongoDB.
func NewMongoSessionRepository(db *mongo.Database) repository.UploadSessionRepository {
	return &mongoSessionRepository{
		collection: db.Collection(sessionCollectionName),
	}
}

func (r *mongoSessionRepository) Create(ctx context.Context, session *domain.UploadSession) error {
	if session.ID == "" || session.VideoID == "" {
		return errors.New("upload session requires an id and a video id")
	}
	_, err := r.collection.InsertOne(ctx, session)
	if mongo.IsDuplicateKeyError(err) {
		return repository.ErrDuplicate
	}
	return err
}

func (r *mongoSessionRepository) GetByID(ctx context.Context, id string) (*domain.UploadSession, error) {
	var session domain.UploadSession
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// CompareAndSwapStatus flips the status only when the stored value still
// matches `from`. The status filter makes the update atomic, which is what
// serializes concurrent Complete calls on the same session.
func (r *mongoSessionRepository) CompareAndSwapStatus(ctx context.Context, id string, from, to domain.UploadStatus) error {
	res := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	if err := res.Err(); err != nil {
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return err
		}
		// Distinguish "wrong state" from "no such session".
		count, countErr := r.collection.CountDocuments(ctx, bson.M{"_id": id})
		if countErr != nil {
			return countErr
		}
		if count == 0 {
			return repository.ErrNotFound
		}
		return repository.ErrStateMismatch
	}
	return nil
}

func (r *mongoSessionRepository) SetStatus(ctx context.Context, id string, status domain.UploadStatus) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *mongoSessionRepository) IncrementUploaded(ctx context.Context, id string) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"uploadedChunks": 1}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *mongoSessionRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.UploadSession, error) {
	filter := bson.M{
		"status":    domain.UploadActive,
		"expiresAt": bson.M{"$lt": now},
	}
	findOptions := options.Find().SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sessions []domain.UploadSession
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// EnsureSessionIndexes creates necessary indexes for the upload_sessions
// collection.
func EnsureSessionIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "expiresAt", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "videoId", Value: 1}},
		},
	}
	_, _ = collection.Indexes().CreateMany(ctx, indexes)
}
