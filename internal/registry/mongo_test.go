package registry

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/Iron-Ham/clusterscaler/internal/scaling"
)

func ptr[T any](v T) *T { return &v }

func TestClusterDocument_ToConfig(t *testing.T) {
	tests := []struct {
		name string
		doc  clusterDocument
		want scaling.ClusterConfig
	}{
		{
			name: "all defaults",
			doc:  clusterDocument{ID: "bt-1"},
			want: scaling.ClusterConfig{ID: "bt-1", MinNodes: 1, MaxNodes: 10, TargetUtilization: 0.6, ScaleUpCooldown: 5 * time.Minute, ScaleDownCooldown: 20 * time.Minute, Enabled: true},
		},
		{
			name: "explicit values",
			doc: clusterDocument{
				ID:                       "bt-2",
				MinNodes:                 2,
				MaxNodes:                 4,
				TargetUtilization:        0.7,
				ScaleUpCooldownSeconds:   ptr(90.0),
				ScaleDownCooldownSeconds: ptr(0.0),
				Enabled:                  ptr(false),
			},
			want: scaling.ClusterConfig{ID: "bt-2", MinNodes: 2, MaxNodes: 4, TargetUtilization: 0.7, ScaleUpCooldown: 90 * time.Second, ScaleDownCooldown: 0, Enabled: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.doc.toConfig(testDefaults)); diff != "" {
				t.Errorf("toConfig() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClusterDocument_BSONRoundTrip(t *testing.T) {
	raw, err := bson.Marshal(bson.D{
		{Key: "_id", Value: "bt-3"},
		{Key: "max_nodes", Value: 12},
		{Key: "scale_up_cooldown_seconds", Value: 30},
	})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var doc clusterDocument
	if err := bson.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	cfg := doc.toConfig(testDefaults)
	if cfg.MaxNodes != 12 || cfg.ScaleUpCooldown != 30*time.Second || !cfg.Enabled {
		t.Errorf("toConfig() = %+v", cfg)
	}
}

func TestEnabledFilter(t *testing.T) {
	want := bson.D{{Key: "enabled", Value: bson.D{{Key: "$ne", Value: false}}}}
	if diff := cmp.Diff(want, enabledFilter()); diff != "" {
		t.Errorf("enabledFilter() mismatch (-want +got):\n%s", diff)
	}
}
