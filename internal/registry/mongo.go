package registry

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Iron-Ham/clusterscaler/internal/errors"
	"github.com/Iron-Ham/clusterscaler/internal/scaling"
)

// clusterDocument is the stored form of a cluster. Cooldowns are seconds so
// that operators can edit documents by hand.
type clusterDocument struct {
	ID                       string   `bson:"_id"`
	MinNodes                 int      `bson:"min_nodes,omitempty"`
	MaxNodes                 int      `bson:"max_nodes,omitempty"`
	TargetUtilization        float64  `bson:"target_utilization,omitempty"`
	ScaleUpCooldownSeconds   *float64 `bson:"scale_up_cooldown_seconds,omitempty"`
	ScaleDownCooldownSeconds *float64 `bson:"scale_down_cooldown_seconds,omitempty"`
	Enabled                  *bool    `bson:"enabled,omitempty"`
}

func (d clusterDocument) toConfig(defaults scaling.Defaults) scaling.ClusterConfig {
	cfg := scaling.ClusterConfig{
		ID:                d.ID,
		MinNodes:          d.MinNodes,
		MaxNodes:          d.MaxNodes,
		TargetUtilization: d.TargetUtilization,
		Enabled:           d.Enabled == nil || *d.Enabled,
	}
	if d.ScaleUpCooldownSeconds != nil {
		cfg.ScaleUpCooldown = secondsToDuration(*d.ScaleUpCooldownSeconds)
	}
	if d.ScaleDownCooldownSeconds != nil {
		cfg.ScaleDownCooldown = secondsToDuration(*d.ScaleDownCooldownSeconds)
	}
	return defaults.ApplyTo(cfg, d.ScaleUpCooldownSeconds != nil, d.ScaleDownCooldownSeconds != nil)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// MongoRegistry serves clusters from a MongoDB collection. Each listing is
// a fresh query, so operator edits take effect on the next cycle.
type MongoRegistry struct {
	coll     *mongo.Collection
	defaults scaling.Defaults
}

// NewMongoRegistry creates a registry over coll. The caller owns the client.
func NewMongoRegistry(coll *mongo.Collection, defaults scaling.Defaults) *MongoRegistry {
	return &MongoRegistry{coll: coll, defaults: defaults}
}

// enabledFilter matches documents whose enabled flag is absent or true.
func enabledFilter() bson.D {
	return bson.D{{Key: "enabled", Value: bson.D{{Key: "$ne", Value: false}}}}
}

// ListEnabledClusters returns the enabled clusters ordered by ID.
func (r *MongoRegistry) ListEnabledClusters(ctx context.Context) ([]scaling.ClusterConfig, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := r.coll.Find(ctx, enabledFilter(), opts)
	if err != nil {
		return nil, errors.NewRegistryUnavailableError("find clusters", err).WithBackend("mongo")
	}

	var docs []clusterDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.NewRegistryUnavailableError("decode clusters", err).WithBackend("mongo")
	}

	clusters := make([]scaling.ClusterConfig, 0, len(docs))
	for _, d := range docs {
		clusters = append(clusters, d.toConfig(r.defaults))
	}
	return clusters, nil
}

// Upsert stores cfg, replacing any document with the same ID.
func (r *MongoRegistry) Upsert(ctx context.Context, cfg scaling.ClusterConfig) error {
	up := cfg.ScaleUpCooldown.Seconds()
	down := cfg.ScaleDownCooldown.Seconds()
	enabled := cfg.Enabled
	doc := clusterDocument{
		ID:                       cfg.ID,
		MinNodes:                 cfg.MinNodes,
		MaxNodes:                 cfg.MaxNodes,
		TargetUtilization:        cfg.TargetUtilization,
		ScaleUpCooldownSeconds:   &up,
		ScaleDownCooldownSeconds: &down,
		Enabled:                  &enabled,
	}

	_, err := r.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: cfg.ID}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrapf(err, "upsert cluster %s", cfg.ID)
	}
	return nil
}
