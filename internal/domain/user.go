package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is an account that owns videos. Plan names index into the static plan
// table (see plan.go); billing itself is handled elsewhere.
type User struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email            string             `bson:"email" json:"email"` // unique
	Name             string             `bson:"name" json:"name"`
	PasswordHash     string             `bson:"passwordHash" json:"-"`
	Plan             string             `bson:"plan" json:"plan"`
	StorageUsedBytes int64              `bson:"storageUsedBytes" json:"storageUsedBytes"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`
}
