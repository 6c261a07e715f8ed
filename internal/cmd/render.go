package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Iron-Ham/clusterscaler/internal/orchestrator"
	"github.com/Iron-Ham/clusterscaler/internal/scaling"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	failureStyle = cellStyle.Foreground(lipgloss.Color("9"))
	successStyle = cellStyle.Foreground(lipgloss.Color("10"))
	mutedStyle   = cellStyle.Foreground(lipgloss.Color("8"))
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

const maxReasonWidth = 60

// newTable creates a table with the shared look. outcomeCol is the column
// colored by outcome, -1 for none.
func newTable(headers []string, rows [][]string, outcomeCol int) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == outcomeCol && row >= 0 && row < len(rows) {
				return outcomeStyle(rows[row][col])
			}
			return cellStyle
		})
}

func outcomeStyle(outcome string) lipgloss.Style {
	switch scaling.Outcome(outcome) {
	case scaling.OutcomeFailure:
		return failureStyle
	case scaling.OutcomeSuccess:
		return successStyle
	case scaling.OutcomeSkipped:
		return mutedStyle
	default:
		return cellStyle
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func nodeChange(from, to int) string {
	if from == to {
		return strconv.Itoa(from)
	}
	return fmt.Sprintf("%d -> %d", from, to)
}

// renderReport formats one cycle as a table plus a summary line.
func renderReport(report *orchestrator.CycleReport, dryRun bool) string {
	rows := make([][]string, 0, len(report.Results))
	for _, r := range report.Results {
		outcome, reason := "-", r.Decision.Reason
		if r.Recorded() {
			outcome = r.Event.Outcome.String()
			reason = r.Event.Reason
		}
		rows = append(rows, []string{
			r.ClusterID,
			r.Decision.Action.String(),
			nodeChange(r.Decision.Current, r.Decision.Target),
			outcome,
			truncate(reason, maxReasonWidth),
			r.Duration.Round(time.Millisecond).String(),
		})
	}

	mode := "applied"
	if dryRun {
		mode = "dry run"
	}
	summary := fmt.Sprintf("cycle %s (%s): %d clusters, %d succeeded, %d failed, %d skipped in %s",
		report.CycleID, mode, len(report.Results), report.Succeeded, report.Failed, report.Skipped,
		report.Duration.Round(time.Millisecond))

	if len(rows) == 0 {
		return summary + "\n"
	}
	t := newTable([]string{"CLUSTER", "ACTION", "NODES", "OUTCOME", "REASON", "TOOK"}, rows, 3)
	return t.String() + "\n" + summary + "\n"
}

// renderClusters formats cluster configurations.
func renderClusters(clusters []scaling.ClusterConfig) string {
	rows := make([][]string, 0, len(clusters))
	for _, c := range clusters {
		rows = append(rows, []string{
			c.ID,
			strconv.Itoa(c.MinNodes),
			strconv.Itoa(c.MaxNodes),
			strconv.FormatFloat(c.TargetUtilization, 'f', 2, 64),
			c.ScaleUpCooldown.String(),
			c.ScaleDownCooldown.String(),
		})
	}
	t := newTable([]string{"CLUSTER", "MIN", "MAX", "TARGET", "UP COOLDOWN", "DOWN COOLDOWN"}, rows, -1)
	return t.String() + "\n"
}

// renderEvents formats scaling events, newest first.
func renderEvents(events []scaling.ScalingEvent) string {
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		reason := ev.Reason
		if ev.DryRun {
			reason = "[dry run] " + reason
		}
		rows = append(rows, []string{
			ev.Timestamp.Local().Format("2006-01-02 15:04:05"),
			ev.Direction.String(),
			nodeChange(ev.PreviousNodes, ev.NewNodes),
			ev.Outcome.String(),
			strconv.FormatFloat(ev.Utilization, 'f', 3, 64),
			truncate(reason, maxReasonWidth),
		})
	}
	t := newTable([]string{"TIME", "DIRECTION", "NODES", "OUTCOME", "UTILIZATION", "REASON"}, rows, 3)
	return t.String() + "\n"
}
