package views

import (
	"fmt"
	"strings"

	"homewatch/internal/snapshot"
	"homewatch/ui/tui/state"
	"homewatch/ui/tui/styles"

	"github.com/charmbracelet/lipgloss"
)

const maxDeviceRows = 25

type NetworkView struct{}

func (v NetworkView) Render(s state.AppState, props ViewProps) string {
	head := header("NETWORK & DEVICES", s, props.Width)
	if s.Err != nil {
		return lipgloss.JoinVertical(lipgloss.Left, head, errorLine(s.Err))
	}
	if s.Latest == nil || s.Latest.Network == nil {
		return lipgloss.JoinVertical(lipgloss.Left, head,
			lipgloss.NewStyle().Padding(1, 2).Render("No network data in the latest snapshot."), backHint())
	}
	net := s.Latest.Network

	var devices strings.Builder
	for i, d := range net.Devices {
		if i == maxDeviceRows {
			fmt.Fprintf(&devices, "... and %d more\n", len(net.Devices)-maxDeviceRows)
			break
		}
		fmt.Fprintf(&devices, "%-15s %-17s %s\n", d.IP, d.MAC, deviceInfo(d))
	}
	devCard := styles.CardStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("Devices (%d)", net.DeviceCount)),
		devices.String(),
	))

	var traffic strings.Builder
	if t := net.Traffic; t != nil {
		fmt.Fprintf(&traffic, "Total: %s\n", snapshot.FormatBytes(t.TotalBytes))
		for _, tt := range t.TopTalkers {
			fmt.Fprintf(&traffic, "  %-15s %s\n", tt.IP, snapshot.FormatBytes(tt.Bytes))
		}
	} else {
		traffic.WriteString("No traffic data.\n")
	}
	if sec := net.Security; sec != nil {
		alerts := fmt.Sprintf("Alerts: %d (%d critical, %d high)", sec.TotalAlerts, sec.CriticalCount, sec.HighCount)
		style := lipgloss.NewStyle()
		switch {
		case sec.CriticalCount > 0:
			style = ColorForSeverity(snapshot.SeverityCritical)
		case sec.HighCount > 0:
			style = ColorForSeverity(snapshot.SeverityWarning)
		}
		traffic.WriteString("\n" + style.Render(alerts) + "\n")
	}
	trafficCard := styles.CardStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Bold(true).Render("Traffic"),
		traffic.String(),
	))

	return lipgloss.JoinVertical(lipgloss.Left,
		head,
		lipgloss.JoinHorizontal(lipgloss.Top, devCard, trafficCard),
		backHint(),
	)
}

func deviceInfo(d snapshot.Device) string {
	switch {
	case d.Hostname != "" && d.Vendor != "":
		return d.Hostname + " (" + d.Vendor + ")"
	case d.Hostname != "":
		return d.Hostname
	}
	return d.Vendor
}
