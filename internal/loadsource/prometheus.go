package loadsource

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"text/template"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/Iron-Ham/clusterscaler/internal/config"
	"github.com/Iron-Ham/clusterscaler/internal/errors"
	"github.com/Iron-Ham/clusterscaler/internal/logging"
	"github.com/Iron-Ham/clusterscaler/internal/scaling"
)

const sourceName = "prometheus"

// NodeCounter reports the current node count of a cluster from an
// authoritative source.
type NodeCounter interface {
	NodeCount(ctx context.Context, clusterID string) (int, error)
}

// queryParams is the data passed to the query templates.
type queryParams struct {
	ClusterID string
	Window    string
}

// Option configures a Prometheus source.
type Option func(*Prometheus)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Prometheus) { p.logger = l }
}

// WithNodeCounter takes node counts from nc instead of the nodes query.
func WithNodeCounter(nc NodeCounter) Option {
	return func(p *Prometheus) { p.nodes = nc }
}

// WithClock overrides the evaluation time used for instant queries.
func WithClock(now func() time.Time) Option {
	return func(p *Prometheus) { p.now = now }
}

// Prometheus is a load source backed by the Prometheus HTTP API.
type Prometheus struct {
	api         v1.API
	utilization *template.Template
	nodeQuery   *template.Template
	freshness   *template.Template
	nodes       NodeCounter
	logger      *logging.Logger
	now         func() time.Time
}

// NewPrometheus creates a source querying the server at cfg.Address.
func NewPrometheus(cfg config.PrometheusConfig, opts ...Option) (*Prometheus, error) {
	client, err := api.NewClient(api.Config{Address: cfg.Address})
	if err != nil {
		return nil, fmt.Errorf("create prometheus client: %w", err)
	}
	return newPrometheus(v1.NewAPI(client), cfg, opts...)
}

func newPrometheus(promAPI v1.API, cfg config.PrometheusConfig, opts ...Option) (*Prometheus, error) {
	utilization, err := template.New("utilization").Option("missingkey=error").Parse(cfg.UtilizationQuery)
	if err != nil {
		return nil, fmt.Errorf("parse utilization query: %w", err)
	}
	nodeQuery, err := template.New("nodes").Option("missingkey=error").Parse(cfg.NodesQuery)
	if err != nil {
		return nil, fmt.Errorf("parse nodes query: %w", err)
	}

	var freshness *template.Template
	if cfg.FreshnessQuery != "" {
		freshness, err = template.New("freshness").Option("missingkey=error").Parse(cfg.FreshnessQuery)
		if err != nil {
			return nil, fmt.Errorf("parse freshness query: %w", err)
		}
	}

	p := &Prometheus{
		api:         promAPI,
		freshness:   freshness,
		utilization: utilization,
		nodeQuery:   nodeQuery,
		logger:      logging.NopLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// FetchSample returns the cluster's utilization averaged over window and
// its current node count. ObservedAt is the older of the two query results,
// pulled back to the newest raw sample time when a freshness query is set.
// Instant query results carry the evaluation time, so without one a sample
// only goes stale once Prometheus stops returning the series.
func (p *Prometheus) FetchSample(ctx context.Context, clusterID string, window time.Duration) (*scaling.LoadSample, error) {
	params := queryParams{ClusterID: clusterID, Window: model.Duration(window).String()}
	at := p.now()

	util, utilAt, err := p.query(ctx, p.utilization, params, at)
	if err != nil {
		return nil, err
	}

	var nodes int
	observedAt := utilAt
	if p.nodes != nil {
		n, err := p.nodes.NodeCount(ctx, clusterID)
		if err != nil {
			return nil, errors.NewTransientFetchError("node count", err).
				WithClusterID(clusterID).
				WithSource("node-counter")
		}
		nodes = n
	} else {
		count, countAt, err := p.query(ctx, p.nodeQuery, params, at)
		if err != nil {
			return nil, err
		}
		nodes = int(math.Round(count))
		if countAt.Before(observedAt) {
			observedAt = countAt
		}
	}

	if p.freshness != nil {
		unix, _, err := p.query(ctx, p.freshness, params, at)
		if err != nil {
			return nil, err
		}
		sec, frac := math.Modf(unix)
		if newest := time.Unix(int64(sec), int64(frac*1e9)).UTC(); newest.Before(observedAt) {
			observedAt = newest
		}
	}

	return &scaling.LoadSample{
		ClusterID:   clusterID,
		ObservedAt:  observedAt,
		Nodes:       nodes,
		Utilization: util,
	}, nil
}

// query runs one instant query and reduces the result to a single value.
func (p *Prometheus) query(ctx context.Context, tmpl *template.Template, params queryParams, at time.Time) (float64, time.Time, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return 0, time.Time{}, fmt.Errorf("render %s query: %w", tmpl.Name(), err)
	}
	q := buf.String()

	result, warnings, err := p.api.Query(ctx, q, at)
	if err != nil {
		return 0, time.Time{}, errors.NewTransientFetchError(tmpl.Name()+" query", err).
			WithClusterID(params.ClusterID).
			WithSource(sourceName)
	}
	if len(warnings) > 0 {
		p.logger.WithCluster(params.ClusterID).Warn("prometheus query warnings",
			"query", q,
			"warnings", []string(warnings),
		)
	}

	value, ts, ok := reduce(result)
	if !ok {
		return 0, time.Time{}, errors.NewTransientFetchError(tmpl.Name()+" query returned no data", errors.ErrSampleUnavailable).
			WithClusterID(params.ClusterID).
			WithSource(sourceName)
	}
	return value, ts, nil
}

// reduce extracts a single value from a query result. Vectors with more
// than one series take the first; callers are expected to aggregate.
func reduce(v model.Value) (float64, time.Time, bool) {
	switch r := v.(type) {
	case *model.Scalar:
		if r == nil {
			return 0, time.Time{}, false
		}
		return float64(r.Value), r.Timestamp.Time(), true
	case model.Vector:
		if len(r) == 0 {
			return 0, time.Time{}, false
		}
		return float64(r[0].Value), r[0].Timestamp.Time(), true
	default:
		return 0, time.Time{}, false
	}
}
