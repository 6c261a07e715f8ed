package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/clusterscaler/internal/errors"
	"github.com/Iron-Ham/clusterscaler/internal/event"
	"github.com/Iron-Ham/clusterscaler/internal/lifecycle"
	"github.com/Iron-Ham/clusterscaler/internal/metrics"
	"github.com/Iron-Ham/clusterscaler/internal/notify"
	"github.com/Iron-Ham/clusterscaler/internal/orchestrator"
	"github.com/Iron-Ham/clusterscaler/internal/orchestrator/status"
	"github.com/Iron-Ham/clusterscaler/internal/server"
	"github.com/Iron-Ham/clusterscaler/internal/telemetry"
)

// releaseGrace is added to the drain timeout to bound resource release.
const releaseGrace = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the autoscaler daemon",
	Long: `Run the scheduler until interrupted.

Every scheduler.interval the registry is listed and each enabled cluster is
evaluated on a bounded worker pool. On SIGINT or SIGTERM the daemon stops
ticking, waits up to scheduler.drain_timeout for in-flight evaluations and
releases its resources in reverse order.`,
	RunE: runServe,
}

var serveDryRun bool

func init() {
	serveCmd.Flags().BoolVar(&serveDryRun, "dry-run", false, "record resize decisions without applying them")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := event.NewBus(event.WithLogger(logger))
	mgr := lifecycle.NewManager(
		lifecycle.WithBus(bus),
		lifecycle.WithLogger(logger),
		lifecycle.WithStopTimeout(cfg.Scheduler.DrainTimeout+releaseGrace),
	)
	// Anything registered so far is released when setup fails.
	abort := func(err error) error {
		return errors.Join(err, mgr.Stop(context.WithoutCancel(ctx)))
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing, logger)
	if err != nil {
		return abort(err)
	}
	mgr.OnStop("tracing", lifecycle.StopFunc(shutdownTracing))

	s, err := buildStack(ctx, cfg, logger, bus, stackParts{registry: true, loadSource: true, admin: true})
	if err != nil {
		return abort(err)
	}
	for _, r := range s.resources {
		mgr.OnStop(r.name, r.fn)
	}

	collector := metrics.New()
	collector.Attach(bus)
	mgr.OnStop("metrics", func(context.Context) error {
		collector.Detach()
		return nil
	})

	if cfg.Notify.Telegram.Enabled {
		alerter, err := notify.NewTelegram(cfg.Notify.Telegram,
			notify.WithLogger(logger),
			notify.WithFailureThreshold(cfg.Scheduler.FailureBackoff.Threshold))
		if err != nil {
			return abort(err)
		}
		alerter.Attach(bus)
		mgr.OnStop("notify", func(context.Context) error {
			alerter.Detach()
			return nil
		})
	}

	tracker := status.NewTracker()
	orch := s.orchestrator(tracker, serveDryRun)
	sched := orchestrator.NewScheduler(orch,
		orchestrator.WithInterval(cfg.Scheduler.Interval),
		orchestrator.WithDrainTimeout(cfg.Scheduler.DrainTimeout),
		orchestrator.WithSchedulerLogger(logger),
		orchestrator.WithSchedulerBus(bus),
	)

	if cfg.Server.Enabled {
		srv := server.New(cfg.Server.Addr, mgr, tracker,
			server.WithLogger(logger),
			server.WithMetrics(collector.Handler()),
			server.WithHistory(s.history))
		if err := srv.Start(); err != nil {
			return abort(err)
		}
		mgr.OnStop("http", srv.Shutdown)
	}

	logger.Info("clusterscaler starting",
		"interval", cfg.Scheduler.Interval.String(),
		"workers", cfg.Scheduler.WorkerPoolSize,
		"registry", cfg.Registry.Backend,
		"history", cfg.History.Backend,
		"admin", cfg.Admin.Backend,
		"dry_run", s.dryRun(serveDryRun))

	err = mgr.Run(ctx, func(ctx context.Context) error {
		if s.fileRegistry != nil {
			go func() {
				if err := s.fileRegistry.Watch(ctx); err != nil {
					logger.Warn("registry watch stopped", "error", err.Error())
				}
			}()
		}
		return sched.Run(ctx)
	})
	logger.Info("clusterscaler stopped")
	return err
}
