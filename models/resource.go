package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Resource kinds
const (
	KindFile = "file"
	KindLink = "link"
	KindNote = "note"
)

// Resource status lifecycle: pending -> indexing -> ready|error.
// A retry re-enters at indexing.
const (
	StatusPending  = "pending"
	StatusIndexing = "indexing"
	StatusReady    = "ready"
	StatusError    = "error"
)

// Media types the extractor dispatches on.
const (
	MediaTypePDF  = "application/pdf"
	MediaTypeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Resource is a unit of source knowledge owned by a brand. Files keep their
// raw payload on disk (FilePath); links and notes carry their text inline.
type Resource struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BrandID      primitive.ObjectID `bson:"brand_id" json:"brand_id"`
	Kind         string             `bson:"kind" json:"kind"`
	MediaType    string             `bson:"media_type,omitempty" json:"media_type,omitempty"`
	Title        string             `bson:"title" json:"title"`
	OriginalName string             `bson:"original_name,omitempty" json:"original_name,omitempty"`
	FilePath     string             `bson:"file_path,omitempty" json:"-"`
	FileHash     string             `bson:"file_hash,omitempty" json:"-"`
	SizeBytes    int64              `bson:"size_bytes,omitempty" json:"size_bytes,omitempty"`
	SourceURL    string             `bson:"source_url,omitempty" json:"source_url,omitempty"`

	// Text is the literal content for link/note resources, stored at creation
	// time. FullText caches the extracted text after a successful ingestion.
	Text     string `bson:"text,omitempty" json:"-"`
	FullText string `bson:"full_text,omitempty" json:"-"`

	Status       string `bson:"status" json:"status"`
	ErrorMessage string `bson:"error_message,omitempty" json:"error_message,omitempty"`
	ChunkCount   int    `bson:"chunk_count" json:"chunk_count"`

	// TokenCount is ceil(len(FullText)/charsPerToken), the same approximation
	// the chunker uses, not real tokenization.
	TokenCount int `bson:"token_count" json:"token_count"`

	CreatedAt         time.Time  `bson:"created_at" json:"created_at"`
	IndexingStartedAt *time.Time `bson:"indexing_started_at,omitempty" json:"-"`
	IndexedAt         *time.Time `bson:"indexed_at,omitempty" json:"indexed_at,omitempty"`
}
