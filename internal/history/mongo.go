package history

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Iron-Ham/clusterscaler/internal/scaling"
)

// MongoStore persists scaling events in a MongoDB collection. Documents are
// scaling.ScalingEvent values keyed by event ID.
//
// A TTL index on timestamp enforces retention. The last successful resize
// per direction is also copied into a small summary collection so that
// expiry never loses the timestamps cooldowns are measured from.
type MongoStore struct {
	events    *mongo.Collection
	summaries *mongo.Collection
	retention time.Duration
}

// NewMongoStore creates a store over the named collection in db. The
// summary collection is named "<collection>_last".
func NewMongoStore(db *mongo.Database, collection string, retention time.Duration) *MongoStore {
	return &MongoStore{
		events:    db.Collection(collection),
		summaries: db.Collection(collection + "_last"),
		retention: retention,
	}
}

// indexModels returns the indexes EnsureIndexes creates.
func (s *MongoStore) indexModels() []mongo.IndexModel {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "cluster_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("cluster_timestamp"),
		},
	}
	if s.retention > 0 {
		models = append(models, mongo.IndexModel{
			Keys: bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().
				SetName("ttl_timestamp").
				SetExpireAfterSeconds(int32(s.retention / time.Second)),
		})
	}
	return models
}

// EnsureIndexes creates the lookup and retention indexes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.events.Indexes().CreateMany(ctx, s.indexModels()); err != nil {
		return fmt.Errorf("create history indexes: %w", err)
	}
	return nil
}

func findLatest(ctx context.Context, coll *mongo.Collection, filter bson.D) (*scaling.ScalingEvent, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})

	var ev scaling.ScalingEvent
	err := coll.FindOne(ctx, filter, opts).Decode(&ev)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// LastEvent returns the most recent event for clusterID, or nil.
func (s *MongoStore) LastEvent(ctx context.Context, clusterID string) (*scaling.ScalingEvent, error) {
	return findLatest(ctx, s.events, bson.D{{Key: "cluster_id", Value: clusterID}})
}

func summaryID(clusterID string, dir scaling.Direction) string {
	return clusterID + "#" + string(dir)
}

// summaryDocument wraps the last successful resize in one direction.
type summaryDocument struct {
	ID    string               `bson:"_id"`
	Event scaling.ScalingEvent `bson:"event"`
}

// LastSuccess returns the most recent successful resize in dir, or nil.
func (s *MongoStore) LastSuccess(ctx context.Context, clusterID string, dir scaling.Direction) (*scaling.ScalingEvent, error) {
	var doc summaryDocument
	err := s.summaries.FindOne(ctx, bson.D{{Key: "_id", Value: summaryID(clusterID, dir)}}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc.Event, nil
}

// Append inserts ev and, for successful resizes, updates the summary.
func (s *MongoStore) Append(ctx context.Context, ev scaling.ScalingEvent) error {
	if _, err := s.events.InsertOne(ctx, ev); err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("insert event: %w", err)
	}
	if !ev.IsSuccessfulResize() {
		return nil
	}

	id := summaryID(ev.ClusterID, ev.Direction)
	// Only move the summary forward in time.
	filter := bson.D{
		{Key: "_id", Value: id},
		{Key: "event.timestamp", Value: bson.D{{Key: "$lte", Value: ev.Timestamp}}},
	}
	_, err := s.summaries.ReplaceOne(ctx, filter, summaryDocument{ID: id, Event: ev}, options.Replace().SetUpsert(true))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("update summary: %w", err)
	}
	return nil
}

// Recent returns up to limit events for clusterID, newest first.
func (s *MongoStore) Recent(ctx context.Context, clusterID string, limit int) ([]scaling.ScalingEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.events.Find(ctx, bson.D{{Key: "cluster_id", Value: clusterID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("find events: %w", err)
	}
	events := []scaling.ScalingEvent{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return events, nil
}

// Close is a no-op; the caller owns the client.
func (s *MongoStore) Close(context.Context) error { return nil }
