package narrator

import (
	"fmt"
	"strings"
	"time"

	"homewatch/internal/snapshot"
)

// Narrator builds narratives with fixed settings.
type Narrator struct {
	cfg Config
}

func New(cfg Config) *Narrator {
	d := DefaultConfig()
	if cfg.GapThreshold <= 0 {
		cfg.GapThreshold = d.GapThreshold
	}
	if cfg.PowerEventLimit <= 0 {
		cfg.PowerEventLimit = d.PowerEventLimit
	}
	if cfg.BulletLimit <= 0 {
		cfg.BulletLimit = d.BulletLimit
	}
	if cfg.TopAlerts <= 0 {
		cfg.TopAlerts = d.TopAlerts
	}
	return &Narrator{cfg: cfg}
}

// BuildNarrative uses the default settings.
func BuildNarrative(snaps []snapshot.Snapshot) Narrative {
	return New(DefaultConfig()).Build(snaps)
}

// Build computes the facts for snaps, which must be in chronological order.
func (n *Narrator) Build(snaps []snapshot.Snapshot) Narrative {
	return Narrative{
		Facts: computeFacts(n.cfg, snaps),
		cfg:   n.cfg,
		snaps: snaps,
	}
}

// Narrative is a computed history ready for rendering.
type Narrative struct {
	Facts Facts

	cfg   Config
	snaps []snapshot.Snapshot
}

// WithAnomalies attaches detector output so the prose gets an anomalies section.
func (n Narrative) WithAnomalies(anoms []snapshot.Anomaly) Narrative {
	n.Facts.Anomalies = anoms
	return n
}

// ============================================================================
// TIMELINE
// ============================================================================

type RowKind int

const (
	RowSnapshot RowKind = iota
	RowGap
)

// Row is one timeline line: a snapshot, or a gap between two snapshots.
// Missing data renders as "-".
type Row struct {
	Kind      RowKind
	Timestamp time.Time
	Gap       *Gap

	CPU        string
	Memory     string
	Disk       string
	Containers string
	VPN        string
	Devices    string
	Traffic    string
	Alerts     string
	Errors     int

	// Events are the changes first observed at this snapshot.
	Events []string
}

const missing = "-"

// TableRows returns one row per snapshot with a gap row between any two
// snapshots further apart than the gap threshold.
func (n Narrative) TableRows() []Row {
	events := map[int][]string{}
	addChanges := func(changes []Change) {
		for _, c := range changes {
			events[c.Index] = append(events[c.Index], c.Kind+" "+c.Name)
		}
	}
	addChanges(n.Facts.Docker)
	addChanges(n.Facts.Services)
	addChanges(n.Facts.Devices)

	gapAt := map[int]Gap{}
	for _, g := range n.Facts.Gaps {
		gapAt[g.Index] = g
	}

	rows := make([]Row, 0, len(n.snaps)+len(n.Facts.Gaps))
	for i := range n.snaps {
		s := &n.snaps[i]
		if g, ok := gapAt[i]; ok {
			rows = append(rows, Row{Kind: RowGap, Timestamp: g.Start, Gap: &g})
		}
		rows = append(rows, snapshotRow(s, events[i]))
	}
	return rows
}

func snapshotRow(s *snapshot.Snapshot, events []string) Row {
	r := Row{
		Kind:       RowSnapshot,
		Timestamp:  s.Timestamp,
		CPU:        missing,
		Memory:     missing,
		Disk:       missing,
		Containers: missing,
		VPN:        missing,
		Devices:    missing,
		Traffic:    missing,
		Errors:     len(s.Errors),
		Events:     events,
	}
	if s.System != nil {
		r.CPU = percent(s.System.CPUPercent)
		r.Memory = percent(s.System.MemoryPercent)
		r.Disk = percent(s.System.DiskPercent)
	}
	if s.Docker != nil {
		if s.Docker.Available {
			r.Containers = fmt.Sprintf("%d/%d", s.Docker.Running, s.Docker.Total)
		} else {
			r.Containers = "n/a"
		}
	}
	if s.Tailscale != nil {
		r.VPN = "down"
		if s.Tailscale.Connected {
			r.VPN = "up"
		}
	}
	if s.Network != nil {
		r.Devices = fmt.Sprintf("%d", s.Network.DeviceCount)
	}
	if v, ok := s.TotalBytes(); ok {
		r.Traffic = snapshot.FormatBytes(v)
	}
	if sec := s.Security(); sec != nil && sec.CriticalCount+sec.HighCount > 0 {
		r.Alerts = fmt.Sprintf("%dC %dH", sec.CriticalCount, sec.HighCount)
	}
	return r
}

// ============================================================================
// PROSE
// ============================================================================

// Prose renders the facts as a compact markdown digest for an LLM prompt. Each
// section lists at most BulletLimit bullets.
func (n Narrative) Prose() string {
	f := n.Facts
	var b strings.Builder
	if f.Count == 0 {
		b.WriteString("No snapshots recorded for this period.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "History from %s to %s (%d snapshots)\n",
		stamp(f.First), stamp(f.Last), f.Count)
	if f.LatestSystem != nil {
		host := ""
		if f.LatestHost != "" {
			host = " on " + f.LatestHost
		}
		fmt.Fprintf(&b, "Latest system%s: CPU %s, memory %s, disk %s",
			host, percent(f.LatestSystem.CPUPercent), percent(f.LatestSystem.MemoryPercent), percent(f.LatestSystem.DiskPercent))
		if f.LatestSystem.Uptime != "" {
			fmt.Fprintf(&b, ", uptime %s", f.LatestSystem.Uptime)
		}
		b.WriteString("\n")
	}

	var lines []string
	for _, g := range f.Gaps {
		lines = append(lines, fmt.Sprintf("%s to %s (%s)", stamp(g.Start), stamp(g.End), FormatDuration(g.Duration)))
	}
	n.section(&b, "Gaps (possible sleep or outage)", lines)

	lines = lines[:0]
	for _, e := range f.PowerEvents {
		lines = append(lines, fmt.Sprintf("%s %s", stamp(e.Timestamp), e.Type))
	}
	title := "Power events"
	if f.PowerEventsTotal > len(f.PowerEvents) {
		title += fmt.Sprintf(" (%d earlier events omitted)", f.PowerEventsTotal-len(f.PowerEvents))
	}
	n.section(&b, title, lines)

	if c := f.Connectivity; c != nil {
		n.section(&b, "Connectivity", []string{fmt.Sprintf(
			"Tailscale connected in %d of %d snapshots (%.0f%%), %d disconnection(s)",
			c.Connected, c.Samples, c.Fraction()*100, c.Disconnections)})
	}

	n.section(&b, "Docker", changeLines(f.Docker))
	n.section(&b, "Services", changeLines(f.Services))
	n.section(&b, "Network devices", changeLines(f.Devices))

	lines = lines[:0]
	for _, e := range f.Security {
		line := fmt.Sprintf("%s: %d critical, %d high", stamp(e.Timestamp), e.Critical, e.High)
		var parts []string
		for _, a := range e.Top {
			parts = append(parts, fmt.Sprintf("%s (%s -> %s)", a.Signature, orUnknown(a.SourceIP), orUnknown(a.DestIP)))
		}
		if len(parts) > 0 {
			line += "; " + strings.Join(parts, "; ")
		}
		lines = append(lines, line)
	}
	n.section(&b, "Security alerts", lines)

	if t := f.Traffic; t != nil {
		n.section(&b, "Traffic", []string{fmt.Sprintf("min %s, mean %s, max %s over %d samples",
			snapshot.FormatBytes(t.Min), snapshot.FormatBytesFloat(t.Mean), snapshot.FormatBytes(t.Max), t.Samples)})
	}

	lines = lines[:0]
	for _, a := range f.Anomalies {
		lines = append(lines, fmt.Sprintf("[%s] %s %s", a.Severity, stamp(a.Timestamp), a.Description))
	}
	n.section(&b, "Anomalies", lines)

	return b.String()
}

func (n Narrative) section(b *strings.Builder, title string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	limit := n.cfg.BulletLimit
	if limit <= 0 {
		limit = DefaultConfig().BulletLimit
	}
	for i, l := range lines {
		if i == limit {
			fmt.Fprintf(b, "- ... and %d more\n", len(lines)-limit)
			break
		}
		fmt.Fprintf(b, "- %s\n", l)
	}
}

func changeLines(changes []Change) []string {
	out := make([]string, 0, len(changes))
	for _, c := range changes {
		out = append(out, fmt.Sprintf("%s %s %s", stamp(c.Timestamp), c.Kind, c.Name))
	}
	return out
}

// FormatDuration renders durations as "2h35m" or "45m".
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

func stamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}
