package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/studiowebux/loadgen/internal/stresstest"
)

var (
	colorGray = lipgloss.Color("240")
	colorCyan = lipgloss.Color("86")

	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(colorCyan).Padding(0, 1)
	styleCell   = lipgloss.NewStyle().Padding(0, 1)
	styleTitle  = lipgloss.NewStyle().Bold(true)
	styleSubtle = lipgloss.NewStyle().Foreground(colorGray)
)

const timeLayout = "2006-01-02 15:04:05"

// PrintRuns renders recorded runs as a table, newest first
func PrintRuns(w io.Writer, runs []*stresstest.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No load test runs recorded.")
		return
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			strconv.FormatInt(run.ID, 10),
			run.StartedAt.Format(timeLayout),
			formatElapsed(run),
			run.Status,
			strconv.Itoa(run.Workers),
			strconv.FormatInt(run.TotalRequests, 10),
			strconv.FormatInt(run.TotalErrors, 10),
			fmt.Sprintf("%.1f%%", errorRate(run)),
			summarizeTargets(run.Targets),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styleSubtle).
		Headers("ID", "STARTED", "ELAPSED", "STATUS", "WORKERS", "TOTAL", "ERRORS", "ERR%", "TARGETS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			return styleCell
		})

	fmt.Fprintln(w, t.String())
}

// PrintRun renders one run and replays its progress lines
func PrintRun(w io.Writer, run *stresstest.Run, intervals []*stresstest.Interval) {
	fmt.Fprintln(w, styleTitle.Render(fmt.Sprintf("Run %d", run.ID)))
	fmt.Fprintln(w)

	field := func(name, value string) {
		fmt.Fprintf(w, "%s %s\n", styleSubtle.Render(fmt.Sprintf("%-12s", name+":")), value)
	}

	field("UUID", run.UUID)
	field("Status", run.Status)
	field("Started", run.StartedAt.Format(timeLayout))
	if run.CompletedAt != nil {
		field("Completed", run.CompletedAt.Format(timeLayout))
		field("Elapsed", formatElapsed(run))
	}
	field("Workers", strconv.Itoa(run.Workers))
	field("Interval", fmt.Sprintf("%gs", run.IntervalSec))
	field("Timeout", fmt.Sprintf("%gs", run.TimeoutSec))
	field("Targets", strings.Join(run.Targets, ", "))
	fmt.Fprintln(w)

	field("Total", strconv.FormatInt(run.TotalRequests, 10))
	field("Errors", fmt.Sprintf("%d (%.1f%%)", run.TotalErrors, errorRate(run)))
	field("Non-OK", strconv.FormatInt(run.NonOKResponses, 10))
	field("Transport", strconv.FormatInt(run.TransportFailures, 10))
	if run.TotalRequests > 0 {
		field("Latency", fmt.Sprintf("avg %.1fms, min %dms, max %dms", run.AvgDurationMs, run.MinDurationMs, run.MaxDurationMs))
	}

	if len(intervals) == 0 {
		return
	}

	fmt.Fprintln(w)
	for _, iv := range intervals {
		fmt.Fprintf(w, "[%s] total=%d (+%d/%gs) errors=%d\n",
			iv.TakenAt.Local().Format("15:04:05"), iv.Total, iv.Delta, run.IntervalSec, iv.Errors)
	}
}

func errorRate(run *stresstest.Run) float64 {
	if run.TotalRequests == 0 {
		return 0
	}
	return float64(run.TotalErrors) / float64(run.TotalRequests) * 100
}

func formatElapsed(run *stresstest.Run) string {
	if run.CompletedAt == nil {
		return "-"
	}
	return run.Elapsed().Round(100 * time.Millisecond).String()
}

// summarizeTargets keeps table rows short for long target lists
func summarizeTargets(targets []string) string {
	switch len(targets) {
	case 0:
		return "-"
	case 1:
		return targets[0]
	default:
		return fmt.Sprintf("%s (+%d)", targets[0], len(targets)-1)
	}
}
