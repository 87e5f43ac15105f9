// Package narrator turns a snapshot sequence into a descriptive history: gaps,
// power events, connectivity, container/service/device changes, security and
// traffic. One Facts value backs both the terminal timeline and the prose
// digest, so the two never disagree.
package narrator

import (
	"sort"
	"time"

	"homewatch/internal/snapshot"
)

// ============================================================================
// CONFIGURATION
// ============================================================================

type Config struct {
	GapThreshold    time.Duration `mapstructure:"gap_threshold"`     // default: 10m
	PowerEventLimit int           `mapstructure:"power_event_limit"` // default: 20
	BulletLimit     int           `mapstructure:"bullet_limit"`      // per prose section, default: 15
	TopAlerts       int           `mapstructure:"top_alerts"`        // per security entry, default: 3
}

func DefaultConfig() Config {
	return Config{
		GapThreshold:    10 * time.Minute,
		PowerEventLimit: 20,
		BulletLimit:     15,
		TopAlerts:       3,
	}
}

// ============================================================================
// FACTS
// ============================================================================

// Gap is a stretch between consecutive snapshots longer than the threshold,
// usually sleep or an outage.
type Gap struct {
	Start    time.Time
	End      time.Time
	Duration time.Duration
	// Index is the position of the snapshot that ends the gap.
	Index int
}

// Change kinds.
const (
	ContainerStarted = "started"
	ContainerStopped = "stopped"
	ServiceDown      = "down"
	ServiceRecovered = "recovered"
	DeviceNew        = "new device"
	DeviceLeft       = "device left"
)

// Change is one timestamped transition of a named thing.
type Change struct {
	Timestamp time.Time
	Name      string
	Kind      string
	// Index is the position of the snapshot the change was observed in.
	Index int
}

// Connectivity summarises Tailscale state over snapshots that reported it.
type Connectivity struct {
	Samples        int
	Connected      int
	Disconnections int
}

// Fraction is Connected/Samples, or 0 without samples.
func (c Connectivity) Fraction() float64 {
	if c.Samples == 0 {
		return 0
	}
	return float64(c.Connected) / float64(c.Samples)
}

// SecurityEntry lists one snapshot's critical and high alerts.
type SecurityEntry struct {
	Timestamp time.Time
	Critical  int
	High      int
	Top       []snapshot.SecurityAlert
}

// TrafficTrend is computed over snapshots carrying traffic data.
type TrafficTrend struct {
	Samples int
	Min     uint64
	Max     uint64
	Mean    float64
}

// Facts is everything the narrator knows about a sequence.
type Facts struct {
	Count int
	First time.Time
	Last  time.Time

	Gaps []Gap

	// PowerEvents holds the most recent PowerEventLimit events in time order;
	// PowerEventsTotal counts all distinct events.
	PowerEvents      []snapshot.PowerEvent
	PowerEventsTotal int

	Connectivity *Connectivity
	Docker       []Change
	Services     []Change
	Devices      []Change
	Security     []SecurityEntry
	Traffic      *TrafficTrend

	// LatestSystem comes from the newest snapshot with system metrics.
	LatestSystem *snapshot.SystemInfo
	LatestHost   string

	Anomalies []snapshot.Anomaly
}

func computeFacts(cfg Config, snaps []snapshot.Snapshot) Facts {
	f := Facts{Count: len(snaps)}
	if len(snaps) == 0 {
		return f
	}
	f.First, f.Last = snaps[0].Timestamp, snaps[len(snaps)-1].Timestamp

	f.Gaps = gaps(snaps, cfg.GapThreshold)
	f.PowerEvents, f.PowerEventsTotal = powerEvents(snaps, cfg.PowerEventLimit)
	f.Connectivity = connectivity(snaps)
	f.Security = security(snaps, cfg.TopAlerts)
	f.Traffic = traffic(snaps)

	for i := 1; i < len(snaps); i++ {
		prev, curr := &snaps[i-1], &snaps[i]
		f.Docker = append(f.Docker, dockerChanges(prev, curr, i)...)
		f.Services = append(f.Services, serviceChanges(prev, curr, i)...)
		f.Devices = append(f.Devices, deviceChanges(prev, curr, i)...)
	}

	for i := len(snaps) - 1; i >= 0; i-- {
		if snaps[i].System != nil {
			v := *snaps[i].System
			f.LatestSystem = &v
			f.LatestHost = snaps[i].Host
			break
		}
	}
	return f
}

func gaps(snaps []snapshot.Snapshot, threshold time.Duration) []Gap {
	var out []Gap
	for i := 1; i < len(snaps); i++ {
		start, end := snaps[i-1].Timestamp, snaps[i].Timestamp
		if d := end.Sub(start); d > threshold {
			out = append(out, Gap{Start: start, End: end, Duration: d, Index: i})
		}
	}
	return out
}

// powerEvents flattens, dedupes and sorts events, keeping the newest limit.
func powerEvents(snaps []snapshot.Snapshot, limit int) ([]snapshot.PowerEvent, int) {
	type key struct {
		ts   int64
		kind string
	}
	seen := map[key]bool{}
	var all []snapshot.PowerEvent
	for _, s := range snaps {
		if s.Power == nil {
			continue
		}
		for _, e := range s.Power.RecentEvents {
			k := key{e.Timestamp.UnixNano(), e.Type}
			if seen[k] {
				continue
			}
			seen[k] = true
			all = append(all, e)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	total := len(all)
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, total
}

func connectivity(snaps []snapshot.Snapshot) *Connectivity {
	var c Connectivity
	var last *bool
	for _, s := range snaps {
		if s.Tailscale == nil {
			continue
		}
		up := s.Tailscale.Connected
		c.Samples++
		if up {
			c.Connected++
		}
		if last != nil && *last && !up {
			c.Disconnections++
		}
		last = &up
	}
	if c.Samples == 0 {
		return nil
	}
	return &c
}

func dockerChanges(prev, curr *snapshot.Snapshot, idx int) []Change {
	before, ok1 := prev.RunningContainers()
	after, ok2 := curr.RunningContainers()
	if !ok1 || !ok2 {
		return nil
	}
	var out []Change
	for _, name := range sortedKeys(after) {
		if !before[name] {
			out = append(out, Change{Timestamp: curr.Timestamp, Name: name, Kind: ContainerStarted, Index: idx})
		}
	}
	for _, name := range sortedKeys(before) {
		if !after[name] {
			out = append(out, Change{Timestamp: curr.Timestamp, Name: name, Kind: ContainerStopped, Index: idx})
		}
	}
	return out
}

func serviceChanges(prev, curr *snapshot.Snapshot, idx int) []Change {
	before := make(map[string]bool, len(prev.Services))
	for _, s := range prev.Services {
		before[s.Name] = s.Healthy
	}
	var out []Change
	for _, s := range curr.Services {
		was, ok := before[s.Name]
		switch {
		case !ok:
		case was && !s.Healthy:
			out = append(out, Change{Timestamp: curr.Timestamp, Name: s.Name, Kind: ServiceDown, Index: idx})
		case !was && s.Healthy:
			out = append(out, Change{Timestamp: curr.Timestamp, Name: s.Name, Kind: ServiceRecovered, Index: idx})
		}
	}
	return out
}

func deviceChanges(prev, curr *snapshot.Snapshot, idx int) []Change {
	before, after := prev.DeviceIPs(), curr.DeviceIPs()
	if before == nil || after == nil {
		return nil
	}
	var out []Change
	for _, d := range curr.Network.Devices {
		if _, ok := before[d.IP]; !ok && d.IP != "" {
			out = append(out, Change{Timestamp: curr.Timestamp, Name: deviceName(d), Kind: DeviceNew, Index: idx})
			before[d.IP] = d
		}
	}
	for _, d := range prev.Network.Devices {
		if _, ok := after[d.IP]; !ok && d.IP != "" {
			out = append(out, Change{Timestamp: curr.Timestamp, Name: deviceName(d), Kind: DeviceLeft, Index: idx})
			after[d.IP] = d
		}
	}
	return out
}

func security(snaps []snapshot.Snapshot, top int) []SecurityEntry {
	var out []SecurityEntry
	for _, s := range snaps {
		sec := s.Security()
		if sec == nil || sec.CriticalCount+sec.HighCount == 0 {
			continue
		}
		alerts := append([]snapshot.SecurityAlert(nil), sec.RecentAlerts...)
		sort.SliceStable(alerts, func(i, j int) bool {
			return alertRank(alerts[i].Severity) > alertRank(alerts[j].Severity)
		})
		if top > 0 && len(alerts) > top {
			alerts = alerts[:top]
		}
		out = append(out, SecurityEntry{
			Timestamp: s.Timestamp,
			Critical:  sec.CriticalCount,
			High:      sec.HighCount,
			Top:       alerts,
		})
	}
	return out
}

func traffic(snaps []snapshot.Snapshot) *TrafficTrend {
	var t TrafficTrend
	var sum float64
	for _, s := range snaps {
		v, ok := s.TotalBytes()
		if !ok {
			continue
		}
		if t.Samples == 0 || v < t.Min {
			t.Min = v
		}
		if v > t.Max {
			t.Max = v
		}
		sum += float64(v)
		t.Samples++
	}
	if t.Samples == 0 {
		return nil
	}
	t.Mean = sum / float64(t.Samples)
	return &t
}

func alertRank(sev string) int {
	switch sev {
	case snapshot.AlertCritical:
		return 4
	case snapshot.AlertHigh:
		return 3
	case snapshot.AlertMedium:
		return 2
	case snapshot.AlertLow:
		return 1
	}
	return 0
}

func deviceName(d snapshot.Device) string {
	if d.Hostname != "" {
		return d.IP + " (" + d.Hostname + ")"
	}
	return d.IP
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
