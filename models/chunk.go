package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BrandChunk is a denormalized chunk kept in its own collection so Atlas
// $vectorSearch can run against it directly. The brand id is duplicated from
// the owning resource because every retrieval query filters on it.
type BrandChunk struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	BrandID    primitive.ObjectID `bson:"brand_id"`
	ResourceID primitive.ObjectID `bson:"resource_id"`
	ChunkID    string             `bson:"chunk_id"`
	Order      int                `bson:"order"`
	Text       string             `bson:"text"`
	Vector     []float32          `bson:"vector,omitempty"`
	Metadata   ChunkMetadata      `bson:"metadata"`
	CreatedAt  time.Time          `bson:"created_at"`
}

// ChunkMetadata echoes enough of the owning resource for a caller to cite it.
type ChunkMetadata struct {
	Title string `bson:"title,omitempty" json:"title,omitempty"`
	Kind  string `bson:"kind,omitempty" json:"kind,omitempty"`
}

// ScoredChunk is one retrieval hit, ordered by descending similarity.
type ScoredChunk struct {
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
	Score    float64       `json:"score"`
}
