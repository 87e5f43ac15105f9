package views

import (
	"fmt"

	"homewatch/ui/tui/state"

	"github.com/charmbracelet/lipgloss"
)

// ScrollView shows pre-rendered text in a viewport: the timeline table or the
// prose digest.
type ScrollView struct {
	Title string
}

func (v ScrollView) Render(s state.AppState, props ViewProps) string {
	head := header(v.Title, s, props.Width)

	if s.Err != nil {
		return lipgloss.JoinVertical(lipgloss.Left, head,
			errorLine(s.Err))
	}

	footerText := fmt.Sprintf("%3.0f%% • Use ↑/↓, PgUp/PgDn to scroll • Press 'b' to go back • 'r' to reload", props.ScrollPercent*100)

	return lipgloss.JoinVertical(lipgloss.Left,
		head,
		lipgloss.NewStyle().Padding(1, 2).Render(props.ViewportView),
		lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("#555")).Render(footerText),
	)
}
