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

const chunkCollectionName = "upload_chunks"

// mongoChunkRepository implements repository.ChunkRepository
type mongoChunkRepository struct {
	collection *mongo.Collection
}

// NewMongoChunkRepository creates a new chunk repository backed by MongoDB.
func NewMongoChunkRepository(db *mongo.Database) repository.ChunkRepository {
	return &mongoChunkRepository{
		collection: db.Collection(chunkCollectionName),
	}
}

// Upsert writes the record for (uploadId, chunkIndex), replacing any previous
// one. The unique index on that pair guarantees at most one live record per
// chunk; UpsertedCount tells us whether this index was seen for the first
// time, which is the only case the session counter may count.
func (r *mongoChunkRepository) Upsert(ctx context.Context, record *domain.ChunkRecord) (bool, error) {
	if record.UploadID == "" || record.Index < 0 {
		return false, errors.New("chunk record requires an upload id and a non-negative index")
	}
	record.Status = domain.ChunkUploaded
	record.CreatedAt = time.Now().UTC()

	filter := bson.M{"uploadId": record.UploadID, "chunkIndex": record.Index}
	update := bson.M{"$set": bson.M{
		"videoId":    record.VideoID,
		"size":       record.Size,
		"storageKey": record.StorageKey,
		"status":     record.Status,
		"createdAt":  record.CreatedAt,
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return false, err
	}
	return result.UpsertedCount > 0, nil
}

func (r *mongoChunkRepository) CountByUpload(ctx context.Context, uploadID string) (int, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"uploadId": uploadID})
	return int(count), err
}

func (r *mongoChunkRepository) ListByUpload(ctx context.Context, uploadID string) ([]domain.ChunkRecord, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "chunkIndex", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"uploadId": uploadID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []domain.ChunkRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *mongoChunkRepository) DeleteByUpload(ctx context.Context, uploadID string) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"uploadId": uploadID})
	return err
}

// EnsureChunkIndexes creates necessary indexes for the upload_chunks
// collection. The unique (uploadId, chunkIndex) pair is load-bearing: it is
// the invariant behind idempotent chunk retries.
func EnsureChunkIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "uploadId", Value: 1}, {Key: "chunkIndex", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	_, _ = collection.Indexes().CreateMany(ctx, indexes)
}
