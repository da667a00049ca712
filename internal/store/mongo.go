package store

import (
	"context"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"saas-agency-platform/internal/config"
	"saas-agency-platform/models"
)

// MongoResourceStore backs ResourceStore with the resources collection.
type MongoResourceStore struct {
	col *mongo.Collection
}

func NewMongoResourceStore(db *mongo.Database) *MongoResourceStore {
	return &MongoResourceStore{col: db.Collection("resources")}
}

func (s *MongoResourceStore) Insert(ctx context.Context, res *models.Resource) error {
	if res.ID.IsZero() {
		res.ID = primitive.NewObjectID()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now()
	}
	_, err := s.col.InsertOne(ctx, res)
	return err
}

func (s *MongoResourceStore) Get(ctx context.Context, id primitive.ObjectID) (*models.Resource, error) {
	var res models.Resource
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&res)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *MongoResourceStore) FindByHash(ctx context.Context, brandID primitive.ObjectID, hash string) (*models.Resource, error) {
	var res models.Resource
	err := s.col.FindOne(ctx, bson.M{
		"brand_id":  brandID,
		"file_hash": hash,
		"status":    bson.M{"$in": []string{models.StatusPending, models.StatusIndexing, models.StatusReady}},
	}).Decode(&res)
	if err == mongo.ErrNoDocuments {
		return nil, nil // no duplicate
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *MongoResourceStore) List(ctx context.Context, brandID primitive.ObjectID) ([]models.Resource, error) {
	cursor, err := s.col.Find(ctx, bson.M{"brand_id": brandID},
		options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	resources := make([]models.Resource, 0)
	if err := cursor.All(ctx, &resources); err != nil {
		return nil, err
	}
	return resources, nil
}

// Claim is the per-resource lock: a single FindOneAndUpdate moves the status
// to indexing only when no other run holds it.
func (s *MongoResourceStore) Claim(ctx context.Context, id primitive.ObjectID) (*models.Resource, error) {
	now := time.Now()
	var res models.Resource
	err := s.col.FindOneAndUpdate(ctx,
		bson.M{
			"_id":    id,
			"status": bson.M{"$in": []string{models.StatusPending, models.StatusReady, models.StatusError}},
		},
		bson.M{"$set": bson.M{
			"status":              models.StatusIndexing,
			"indexing_started_at": now,
			"error_message":       "",
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&res)
	if err == mongo.ErrNoDocuments {
		// Either the resource is gone or another run claimed it.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrAlreadyIndexing
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *MongoResourceStore) SetReady(ctx context.Context, id primitive.ObjectID, fullText string, chunkCount, tokenCount int) error {
	now := time.Now()
	result, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"status":        models.StatusReady,
			"full_text":     fullText,
			"chunk_count":   chunkCount,
			"token_count":   tokenCount,
			"error_message": "",
			"indexed_at":    now,
		},
	})
	if err != nil {
		return err
	}
	// A zero match means the resource was deleted while indexing; the caller
	// must clean up the chunks it just wrote.
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoResourceStore) SetError(ctx context.Context, id primitive.ObjectID, msg string) error {
	result, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"status":        models.StatusError,
			"error_message": msg,
		},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoResourceStore) ReapStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.col.UpdateMany(ctx,
		bson.M{
			"status":              models.StatusIndexing,
			"indexing_started_at": bson.M{"$lt": cutoff},
		},
		bson.M{"$set": bson.M{
			"status":        models.StatusError,
			"error_message": "indexing timed out",
		}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

func (s *MongoResourceStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.col.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// MongoChunkStore backs ChunkStore with the brand_chunks collection. When
// Atlas vector search is enabled queries go through $vectorSearch; otherwise
// the brand's chunks are scanned with an in-process cosine similarity, which
// is fine for the corpus sizes a single brand accumulates.
type MongoChunkStore struct {
	col *mongo.Collection
	cfg *config.Config
}

func NewMongoChunkStore(db *mongo.Database, cfg *config.Config) *MongoChunkStore {
	return &MongoChunkStore{col: db.Collection("brand_chunks"), cfg: cfg}
}

func (s *MongoChunkStore) InsertMany(ctx context.Context, chunks []models.BrandChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]interface{}, len(chunks))
	for i := range chunks {
		if chunks[i].ID.IsZero() {
			chunks[i].ID = primitive.NewObjectID()
		}
		if chunks[i].CreatedAt.IsZero() {
			chunks[i].CreatedAt = time.Now()
		}
		docs[i] = chunks[i]
	}
	_, err := s.col.InsertMany(ctx, docs)
	return err
}

func (s *MongoChunkStore) DeleteByResource(ctx context.Context, resourceID primitive.ObjectID) error {
	_, err := s.col.DeleteMany(ctx, bson.M{"resource_id": resourceID})
	return err
}

func (s *MongoChunkStore) CountByResource(ctx context.Context, resourceID primitive.ObjectID) (int64, error) {
	return s.col.CountDocuments(ctx, bson.M{"resource_id": resourceID})
}

func (s *MongoChunkStore) Search(ctx context.Context, brandID primitive.ObjectID, vector []float32, threshold float64, limit int) ([]models.ScoredChunk, error) {
	if limit <= 0 {
		limit = 5
	}
	if s.cfg.VectorSearchEnabled {
		return s.vectorSearch(ctx, brandID, vector, threshold, limit)
	}
	return s.scanSearch(ctx, brandID, vector, threshold, limit)
}

func (s *MongoChunkStore) vectorSearch(ctx context.Context, brandID primitive.ObjectID, vector []float32, threshold float64, limit int) ([]models.ScoredChunk, error) {
	queryVector := make([]float64, len(vector))
	for i, v := range vector {
		queryVector[i] = float64(v)
	}

	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.M{
			"index":         s.cfg.VectorIndexName,
			"path":          "vector",
			"queryVector":   queryVector,
			"numCandidates": limit * 20,
			"limit":         limit,
			"filter":        bson.M{"brand_id": brandID},
		}}},
		{{Key: "$project", Value: bson.M{
			"text":     1,
			"metadata": 1,
			"score":    bson.M{"$meta": "vectorSearchScore"},
		}}},
	}

	cursor, err := s.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	results := make([]models.ScoredChunk, 0, limit)
	for cursor.Next(ctx) {
		var hit struct {
			Text     string               `bson:"text"`
			Metadata models.ChunkMetadata `bson:"metadata"`
			Score    float64              `bson:"score"`
		}
		if err := cursor.Decode(&hit); err != nil {
			return nil, err
		}
		score := atlasScoreToCosine(hit.Score)
		if score < threshold {
			continue
		}
		results = append(results, models.ScoredChunk{
			Text:     hit.Text,
			Metadata: hit.Metadata,
			Score:    score,
		})
	}
	return results, cursor.Err()
}

// Atlas reports vectorSearchScore as (1+cosine)/2 for cosine indexes. Convert
// back to raw cosine so thresholds and reported scores mean the same thing on
// both search paths.
func atlasScoreToCosine(score float64) float64 {
	return 2*score - 1
}

func (s *MongoChunkStore) scanSearch(ctx context.Context, brandID primitive.ObjectID, vector []float32, threshold float64, limit int) ([]models.ScoredChunk, error) {
	cursor, err := s.col.Find(ctx, bson.M{"brand_id": brandID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	scored := make([]models.ScoredChunk, 0)
	for cursor.Next(ctx) {
		var chunk models.BrandChunk
		if err := cursor.Decode(&chunk); err != nil {
			return nil, err
		}
		score := CosineSimilarity(vector, chunk.Vector)
		if score < threshold {
			continue
		}
		scored = append(scored, models.ScoredChunk{
			Text:     chunk.Text,
			Metadata: chunk.Metadata,
			Score:    score,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	SortByScore(scored)
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// CosineSimilarity compares two vectors; 0 when either has zero magnitude or
// the dimensions differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SortByScore orders hits descending by similarity.
func SortByScore(hits []models.ScoredChunk) {
	for i := 0; i < len(hits); i++ {
		for j := i + 1; j < len(hits); j++ {
			if hits[j].Score > hits[i].Score {
				hits[i], hits[j] = hits[j], hits[i]
			}
		}
	}
}
