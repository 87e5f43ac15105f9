package views

import (
	"fmt"
	"strings"

	"homewatch/internal/snapshot"
	"homewatch/ui/tui/state"
	"homewatch/ui/tui/styles"

	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"
)

type DashboardView struct{}

func (v DashboardView) Render(s state.AppState, props ViewProps) string {
	if s.Err != nil {
		return lipgloss.JoinVertical(lipgloss.Left, header("LATEST SNAPSHOT", s, props.Width), errorLine(s.Err))
	}

	updated := "never"
	if !s.LastUpdate.IsZero() {
		updated = s.LastUpdate.Format("15:04:05")
	}
	title := lipgloss.JoinHorizontal(lipgloss.Left,
		props.SpinnerView,
		styles.TitleStyle.Render("Homewatch"),
		fmt.Sprintf(" Last Reload: %s", updated),
	)

	if s.Latest == nil {
		return lipgloss.JoinVertical(lipgloss.Left, title,
			lipgloss.NewStyle().Padding(1, 2).Render("No snapshots in the loaded window."), backHint())
	}

	var checks strings.Builder
	for _, r := range s.Results {
		fmt.Fprintf(&checks, "%-18s : %s\n", r.Name, ColorForStatus(r.Status).Render(fmt.Sprintf("%s [%s]", r.Value, r.Status)))
	}

	statusCol := zone.Mark("status_box", styles.CardStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%s @ %s", hostOf(s.Latest), s.Latest.Timestamp.Local().Format("2006-01-02 15:04"))),
			checks.String(),
		),
	))

	row1 := lipgloss.JoinHorizontal(lipgloss.Top, statusCol, infoCard(s.Latest))
	row2 := lipgloss.JoinHorizontal(lipgloss.Top, props.ChartView, props.CountChart)

	return zone.Scan(lipgloss.JoinVertical(lipgloss.Left,
		title,
		row1,
		row2,
		backHint(),
	))
}

func infoCard(s *snapshot.Snapshot) string {
	var b strings.Builder
	if sys := s.System; sys != nil && sys.Uptime != "" {
		fmt.Fprintf(&b, "%-10s : %s\n", "Uptime", sys.Uptime)
	}
	if ts := s.Tailscale; ts != nil {
		fmt.Fprintf(&b, "%-10s : %s (%d/%d peers online)\n", "Tailscale", ts.BackendState, ts.OnlinePeers, ts.PeerCount)
	}
	if st := s.Speedtest; st != nil {
		if st.DownloadMbps != nil {
			fmt.Fprintf(&b, "%-10s : %.1f Mbps\n", "Download", *st.DownloadMbps)
		}
		if st.UploadMbps != nil {
			fmt.Fprintf(&b, "%-10s : %.1f Mbps\n", "Upload", *st.UploadMbps)
		}
		if st.PingMs != nil {
			fmt.Fprintf(&b, "%-10s : %.0f ms\n", "Ping", *st.PingMs)
		}
	}
	if len(s.Errors) > 0 {
		fmt.Fprintf(&b, "%-10s : %d\n", "Warnings", len(s.Errors))
	}
	if b.Len() == 0 {
		b.WriteString("No extra details recorded.")
	}
	return styles.CardStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Bold(true).Render("Details"),
		b.String(),
	))
}

func hostOf(s *snapshot.Snapshot) string {
	if s.Host == "" {
		return "homelab"
	}
	return s.Host
}
