package views

import (
	"fmt"
	"strings"

	"homewatch/internal/anomaly"
	"homewatch/internal/snapshot"
	"homewatch/ui/tui/state"
	"homewatch/ui/tui/styles"

	"github.com/charmbracelet/lipgloss"
)

// maxAnomalyRows keeps the list on one screen; the timeline has the rest.
const maxAnomalyRows = 20

type AnomaliesView struct{}

func (v AnomaliesView) Render(s state.AppState, props ViewProps) string {
	head := header("ANOMALIES", s, props.Width)
	if s.Err != nil {
		return lipgloss.JoinVertical(lipgloss.Left, head, errorLine(s.Err))
	}

	sum := anomaly.Summarize(s.Anomalies)
	if sum.Total == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, head,
			lipgloss.NewStyle().Padding(1, 2).Foreground(lipgloss.Color("46")).Render("No anomalies detected."),
			backHint())
	}

	var counts []string
	for _, sev := range []snapshot.Severity{snapshot.SeverityCritical, snapshot.SeverityWarning, snapshot.SeverityInfo} {
		if n := sum.BySeverity[sev]; n > 0 {
			counts = append(counts, ColorForSeverity(sev).Render(fmt.Sprintf("%d %s", n, sev)))
		}
	}

	var rows strings.Builder
	for i, a := range s.Anomalies {
		if i == maxAnomalyRows {
			fmt.Fprintf(&rows, "... and %d more\n", len(s.Anomalies)-maxAnomalyRows)
			break
		}
		fmt.Fprintf(&rows, "%s %s  %-18s %s\n",
			ColorForSeverity(a.Severity).Width(9).Render(strings.ToUpper(string(a.Severity))),
			a.Timestamp.Local().Format("01-02 15:04"),
			a.Type,
			a.Description,
		)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		head,
		lipgloss.NewStyle().Padding(1, 2, 0, 2).Render(strings.Join(counts, " • ")),
		styles.CardStyle.Render(rows.String()),
		backHint(),
	)
}
