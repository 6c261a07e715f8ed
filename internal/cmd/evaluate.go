package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/clusterscaler/internal/event"
	"github.com/Iron-Ham/clusterscaler/internal/orchestrator/status"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run a single evaluation cycle",
	Long: `Evaluate every enabled cluster once and print the decisions.

Resizes are recorded as dry runs unless --apply is given, and always with
the dryrun admin backend. Decisions are
written to the scaling history either way, so cooldowns observed by the
daemon include manual applies.`,
	Args: cobra.NoArgs,
	RunE: runEvaluate,
}

var (
	evaluateApply bool
	evaluateJSON  bool
)

func init() {
	evaluateCmd.Flags().BoolVar(&evaluateApply, "apply", false, "apply resize decisions through the admin client")
	evaluateCmd.Flags().BoolVar(&evaluateJSON, "json", false, "output the cycle report as JSON")
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	ctx := cmd.Context()
	s, err := buildStack(ctx, cfg, logger, event.NewBus(event.WithLogger(logger)), stackParts{registry: true, loadSource: true, admin: true})
	if err != nil {
		return err
	}
	defer func() { _ = s.close(context.WithoutCancel(ctx)) }()

	dryRun := s.dryRun(!evaluateApply)
	report, err := s.orchestrator(status.NewTracker(), dryRun).RunCycle(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if evaluateJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	_, err = fmt.Fprint(out, renderReport(report, dryRun))
	return err
}
