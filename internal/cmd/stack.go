package cmd

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Iron-Ham/clusterscaler/internal/admin"
	"github.com/Iron-Ham/clusterscaler/internal/config"
	"github.com/Iron-Ham/clusterscaler/internal/errors"
	"github.com/Iron-Ham/clusterscaler/internal/event"
	"github.com/Iron-Ham/clusterscaler/internal/history"
	"github.com/Iron-Ham/clusterscaler/internal/loadsource"
	"github.com/Iron-Ham/clusterscaler/internal/logging"
	"github.com/Iron-Ham/clusterscaler/internal/mongodb"
	"github.com/Iron-Ham/clusterscaler/internal/orchestrator"
	"github.com/Iron-Ham/clusterscaler/internal/orchestrator/status"
	"github.com/Iron-Ham/clusterscaler/internal/registry"
)

// closer releases one acquired resource.
type closer struct {
	name string
	fn   func(context.Context) error
}

// stack holds the collaborators built from configuration. Resources are
// listed in acquisition order.
type stack struct {
	cfg    *config.Config
	logger *logging.Logger
	bus    *event.Bus

	registry      orchestrator.Registry
	fileRegistry  *registry.FileRegistry
	mongoRegistry *registry.MongoRegistry
	history       orchestrator.HistoryStore
	source        orchestrator.LoadSource
	admin         orchestrator.AdminClient

	resources []closer
}

// stackParts selects what buildStack constructs.
type stackParts struct {
	registry   bool
	loadSource bool
	admin      bool
}

// loadConfig reads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	return logging.New(logging.Options{
		Level:      cfg.Level,
		File:       cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	})
}

// buildStack constructs the history store plus whichever of the registry,
// load source and admin client parts asks for. On error everything acquired so
// far is released.
func buildStack(ctx context.Context, cfg *config.Config, logger *logging.Logger, bus *event.Bus, parts stackParts) (s *stack, err error) {
	s = &stack{cfg: cfg, logger: logger, bus: bus}
	defer func() {
		if err != nil {
			_ = s.close(context.Background())
			s = nil
		}
	}()

	var db *mongo.Database
	if (parts.registry && cfg.Registry.Backend == "mongo") || cfg.History.Backend == "mongo" {
		client, err := mongodb.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.ConnectTimeout)
		if err != nil {
			return s, err
		}
		s.resources = append(s.resources, closer{name: "mongo", fn: client.Disconnect})
		db = client.Database(cfg.Mongo.Database)
	}

	if parts.registry {
		if err := s.buildRegistry(db); err != nil {
			return s, err
		}
	}
	if err := s.buildHistory(ctx, db); err != nil {
		return s, err
	}

	var eks *admin.EKS
	if parts.admin {
		if eks, err = s.buildAdmin(ctx); err != nil {
			return s, err
		}
	}

	if parts.loadSource {
		opts := []loadsource.Option{loadsource.WithLogger(logger.WithComponent("loadsource"))}
		if eks != nil {
			opts = append(opts, loadsource.WithNodeCounter(eks))
		}
		source, err := loadsource.NewPrometheus(cfg.LoadSource.Prometheus, opts...)
		if err != nil {
			return s, err
		}
		s.source = source
	}
	return s, nil
}

func (s *stack) buildRegistry(db *mongo.Database) error {
	switch s.cfg.Registry.Backend {
	case "mongo":
		s.mongoRegistry = registry.NewMongoRegistry(db.Collection(s.cfg.Registry.MongoCollection), s.cfg.Defaults)
		s.registry = s.mongoRegistry
	default:
		reg, err := registry.NewFileRegistry(s.cfg.Registry.File, s.cfg.Defaults,
			registry.WithBus(s.bus),
			registry.WithLogger(s.logger))
		if err != nil {
			return err
		}
		s.fileRegistry = reg
		s.registry = reg
	}
	return nil
}

func (s *stack) buildHistory(ctx context.Context, db *mongo.Database) error {
	switch s.cfg.History.Backend {
	case "mongo":
		store := history.NewMongoStore(db, s.cfg.History.MongoCollection, s.cfg.History.Retention)
		if err := store.EnsureIndexes(ctx); err != nil {
			return err
		}
		s.history = store
		s.resources = append(s.resources, closer{name: "history", fn: store.Close})
	case "memory":
		store := history.NewMemoryStore(s.cfg.History.MemoryLimit)
		s.history = store
		s.resources = append(s.resources, closer{name: "history", fn: store.Close})
	default:
		store, err := history.NewFileStore(s.cfg.History.Dir)
		if err != nil {
			return err
		}
		s.history = store
		s.resources = append(s.resources, closer{name: "history", fn: store.Close})
	}
	return nil
}

// buildAdmin returns the EKS client when that backend is selected so the
// load source can read node counts from it.
func (s *stack) buildAdmin(ctx context.Context) (*admin.EKS, error) {
	var (
		client admin.Client
		eks    *admin.EKS
	)
	switch s.cfg.Admin.Backend {
	case "dryrun":
		client = admin.NewDryRun(s.logger.WithComponent("admin"))
	default:
		var err error
		eks, err = admin.NewEKS(ctx, s.cfg.Admin.Region, admin.WithEKSLogger(s.logger.WithComponent("admin")))
		if err != nil {
			return nil, err
		}
		client = eks
	}
	s.admin = admin.NewRateLimited(client, s.cfg.Admin.MaxRPS, s.cfg.Admin.Burst)
	return eks, nil
}

// dryRun reports whether resizes must be recorded as dry runs. The dryrun
// admin backend changes nothing, so it always implies dry-run mode.
func (s *stack) dryRun(requested bool) bool {
	return requested || s.cfg.Scheduler.DryRun || s.cfg.Admin.Backend == "dryrun"
}

// orchestrator builds an Orchestrator over the stack. dryRun forces dry-run
// mode on top of the configured setting.
func (s *stack) orchestrator(tracker *status.Tracker, dryRun bool) *orchestrator.Orchestrator {
	return orchestrator.New(s.registry, s.source, s.history, s.admin,
		orchestrator.WithLogger(s.logger),
		orchestrator.WithBus(s.bus),
		orchestrator.WithTracker(tracker),
		orchestrator.WithSchedulerConfig(s.cfg.Scheduler),
		orchestrator.WithDryRun(s.dryRun(dryRun)),
	)
}

// close releases resources in reverse acquisition order.
func (s *stack) close(ctx context.Context) error {
	var errs []error
	for i := len(s.resources) - 1; i >= 0; i-- {
		if err := s.resources[i].fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.resources[i].name, err))
		}
	}
	s.resources = nil
	return errors.Join(errs...)
}
