package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Brand is a tenant. Every resource and chunk is partitioned by brand id;
// nothing is shared across brands.
type Brand struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Status    string             `bson:"status" json:"status"` // active, suspended
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
