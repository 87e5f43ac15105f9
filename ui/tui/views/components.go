package views

import (
	"fmt"

	"homewatch/internal/engine"
	"homewatch/internal/snapshot"
	"homewatch/ui/tui/state"
	"homewatch/ui/tui/styles"

	"github.com/charmbracelet/lipgloss"
)

func ColorForStatus(status string) lipgloss.Style {
	sStyle := styles.StatusStyle
	switch status {
	case engine.StatusWarning:
		return sStyle.Foreground(lipgloss.Color("220")) // Gold
	case engine.StatusCritical:
		return sStyle.Foreground(lipgloss.Color("196")) // Red
	case engine.StatusUnknown:
		return sStyle.Foreground(lipgloss.Color("244"))
	}
	return sStyle.Foreground(lipgloss.Color("46")) // Green
}

func ColorForSeverity(sev snapshot.Severity) lipgloss.Style {
	switch sev {
	case snapshot.SeverityCritical:
		return ColorForStatus(engine.StatusCritical)
	case snapshot.SeverityWarning:
		return ColorForStatus(engine.StatusWarning)
	}
	return styles.StatusStyle.Foreground(lipgloss.Color("39"))
}

// header renders the page title bar with the loaded window.
func header(title string, s state.AppState, width int) string {
	return MenuHeaderStyle.Width(width).Render(title + windowLabel(s))
}

func windowLabel(s state.AppState) string {
	if s.Window <= 0 {
		return ""
	}
	return fmt.Sprintf("  [last %s, %d snapshots]", s.Window, len(s.Snapshots))
}

func errorLine(err error) string {
	return lipgloss.NewStyle().Padding(1, 2).Foreground(lipgloss.Color("196")).Render(fmt.Sprintf("Error: %v", err))
}

func backHint() string {
	return lipgloss.NewStyle().PaddingLeft(2).Foreground(styles.Subtle).Render("\nPress 'b' to go back • 'r' to reload • 'q' to quit")
}
