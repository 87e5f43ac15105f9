package console

import (
	"fmt"
	"io"
	"strings"

	"homewatch/internal/collector"
	"homewatch/internal/engine"
	"homewatch/internal/snapshot"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// PrintSnapshot renders one snapshot as a compact status report: health checks
// first, then failed probes.
func PrintSnapshot(w io.Writer, s *snapshot.Snapshot, checks []engine.CheckResult, probes []collector.ProbeResult) {
	host := s.Host
	if host == "" {
		host = "homelab"
	}
	fmt.Fprintf(w, "%s■ %s %s%s\n", colorCyan, strings.ToUpper(host), s.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"), colorReset)

	fmt.Fprintf(w, "%s─ Status%s\n", colorCyan, colorReset)
	for _, c := range checks {
		printItem(w, c.Name, c.Value, c.Status)
	}

	if net := s.Network; net != nil {
		fmt.Fprintf(w, "%s─ Network%s\n", colorCyan, colorReset)
		printItem(w, "Devices", fmt.Sprintf("%d", net.DeviceCount), "")
		if net.Traffic != nil {
			printItem(w, "Traffic", snapshot.FormatBytes(net.Traffic.TotalBytes), "")
		}
	}
	if st := s.Speedtest; st != nil && st.DownloadMbps != nil {
		printItem(w, "Download", fmt.Sprintf("%.1f Mbps", *st.DownloadMbps), "")
	}

	var failed []collector.ProbeResult
	for _, p := range probes {
		if !p.OK() {
			failed = append(failed, p)
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(w, "%s─ Unavailable%s\n", colorCyan, colorReset)
		for _, p := range failed {
			fmt.Fprintf(w, "  %s%s: %v%s\n", colorGray, p.Name, p.Err, colorReset)
		}
	}

	fmt.Fprintf(w, "%s─ Summary%s: %s\n\n", colorCyan, colorReset, statusWord(engine.Worst(checks)))
}

// PrintAnomalies lists anomalies one per line in the order given.
func PrintAnomalies(w io.Writer, anoms []snapshot.Anomaly) {
	if len(anoms) == 0 {
		fmt.Fprintf(w, "%s✓%s No anomalies detected.\n", colorGreen, colorReset)
		return
	}
	for _, a := range anoms {
		color := colorForSeverity(a.Severity)
		fmt.Fprintf(w, "%s%-8s%s %s  %-18s %s\n",
			color, strings.ToUpper(string(a.Severity)), colorReset,
			a.Timestamp.UTC().Format("01-02 15:04"), a.Type, a.Description)
	}
}

func printItem(w io.Writer, label, value, status string) {
	// Compact Label (max 20 chars)
	if len(label) > 20 {
		label = label[:17] + "..."
	}
	if len(value) > 25 {
		value = value[:22] + "..."
	}

	statusMarker := ""
	switch status {
	case engine.StatusHealthy:
		statusMarker = fmt.Sprintf(" %s✓%s", colorGreen, colorReset)
	case engine.StatusWarning:
		statusMarker = fmt.Sprintf(" %s!%s", colorYellow, colorReset)
	case engine.StatusCritical:
		statusMarker = fmt.Sprintf(" %sX%s", colorRed, colorReset)
	case engine.StatusUnknown:
		statusMarker = fmt.Sprintf(" %s-%s", colorGray, colorReset)
	}

	// Dots leader
	dots := strings.Repeat("·", 22-len(label))

	// Format: "  Label............... ValueStatus"
	fmt.Fprintf(w, "  %s%s %16s%s\n", label, colorCyan+dots+colorReset, value, statusMarker)
}

func statusWord(status string) string {
	switch status {
	case engine.StatusCritical:
		return colorRed + "needs attention" + colorReset
	case engine.StatusWarning:
		return colorYellow + "degraded" + colorReset
	default:
		return colorGreen + "healthy" + colorReset
	}
}

func colorFor(status string) string {
	switch status {
	case engine.StatusWarning:
		return colorYellow
	case engine.StatusCritical:
		return colorRed
	default:
		return colorGreen
	}
}

func colorForSeverity(s snapshot.Severity) string {
	switch s {
	case snapshot.SeverityCritical:
		return colorFor(engine.StatusCritical)
	case snapshot.SeverityWarning:
		return colorFor(engine.StatusWarning)
	default:
		return colorCyan
	}
}
