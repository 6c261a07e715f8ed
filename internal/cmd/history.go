package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/clusterscaler/internal/event"
	"github.com/Iron-Ham/clusterscaler/internal/logging"
)

var historyCmd = &cobra.Command{
	Use:   "history <cluster>",
	Short: "Show recent scaling events for a cluster",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var (
	historyLimit int
	historyJSON  bool
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of events to show")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "output events as JSON")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if historyLimit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", historyLimit)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	s, err := buildStack(ctx, cfg, logging.NopLogger(), event.NewBus(), stackParts{})
	if err != nil {
		return err
	}
	defer func() { _ = s.close(context.WithoutCancel(ctx)) }()

	events, err := s.history.Recent(ctx, args[0], historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if historyJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}
	if len(events) == 0 {
		_, err = fmt.Fprintf(out, "No scaling events for %s\n", args[0])
		return err
	}
	_, err = fmt.Fprint(out, renderEvents(events))
	return err
}
