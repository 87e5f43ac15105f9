package narrator

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homewatch/internal/snapshot"
)

var t0 = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func min5(i int) time.Time { return t0.Add(time.Duration(i) * 5 * time.Minute) }

func devices(ips ...string) *snapshot.NetworkInfo {
	n := &snapshot.NetworkInfo{DeviceCount: len(ips)}
	for _, ip := range ips {
		n.Devices = append(n.Devices, snapshot.Device{IP: ip})
	}
	return n
}

func TestEmptySequence(t *testing.T) {
	n := BuildNarrative(nil)
	assert.Zero(t, n.Facts.Count)
	assert.Empty(t, n.TableRows())
	assert.Equal(t, "No snapshots recorded for this period.\n", n.Prose())
}

func TestAllAbsentSubRecordsContributeNothing(t *testing.T) {
	snaps := []snapshot.Snapshot{{Timestamp: min5(0)}, {Timestamp: min5(1)}, {Timestamp: min5(2)}}
	f := BuildNarrative(snaps).Facts
	assert.Equal(t, 3, f.Count)
	assert.Empty(t, f.Gaps)
	assert.Empty(t, f.PowerEvents)
	assert.Nil(t, f.Connectivity)
	assert.Empty(t, f.Docker)
	assert.Empty(t, f.Services)
	assert.Empty(t, f.Devices)
	assert.Empty(t, f.Security)
	assert.Nil(t, f.Traffic)
	assert.Nil(t, f.LatestSystem)

	for _, r := range BuildNarrative(snaps).TableRows() {
		assert.Equal(t, RowSnapshot, r.Kind)
		assert.Equal(t, "-", r.CPU)
		assert.Equal(t, "-", r.Traffic)
	}
}

func concreteScenario() []snapshot.Snapshot {
	return []snapshot.Snapshot{
		{Timestamp: t0, Network: devices("192.168.1.10")},
		{Timestamp: t0.Add(30 * time.Minute), Network: devices("192.168.1.10", "192.168.1.20")},
		{Timestamp: t0.Add(3*time.Hour + 5*time.Minute), Network: devices("192.168.1.10", "192.168.1.20")},
	}
}

func TestConcreteScenarioGap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GapThreshold = 35 * time.Minute
	n := New(cfg).Build(concreteScenario())

	require.Len(t, n.Facts.Gaps, 1)
	g := n.Facts.Gaps[0]
	assert.Equal(t, 2*time.Hour+35*time.Minute, g.Duration)
	assert.Equal(t, t0.Add(30*time.Minute), g.Start)
	assert.Equal(t, "2h35m", FormatDuration(g.Duration))

	rows := n.TableRows()
	require.Len(t, rows, 4)
	assert.Equal(t, []RowKind{RowSnapshot, RowSnapshot, RowGap, RowSnapshot},
		[]RowKind{rows[0].Kind, rows[1].Kind, rows[2].Kind, rows[3].Kind})
	assert.Equal(t, []string{"new device 192.168.1.20"}, rows[1].Events)

	assert.Contains(t, n.Prose(), "2026-03-14 00:30 UTC to 2026-03-14 03:05 UTC (2h35m)")
}

func TestGapThresholdIsStrict(t *testing.T) {
	snaps := []snapshot.Snapshot{
		{Timestamp: t0},
		{Timestamp: t0.Add(10 * time.Minute)},
		{Timestamp: t0.Add(20*time.Minute + time.Second)},
	}
	gaps := BuildNarrative(snaps).Facts.Gaps
	require.Len(t, gaps, 1)
	assert.Equal(t, 10*time.Minute+time.Second, gaps[0].Duration)
}

func TestTableRowsWithEqualTimestamps(t *testing.T) {
	tests := []struct {
		name       string
		snaps      []snapshot.Snapshot
		wantKinds  []RowKind
		wantEvents [][]string
	}{
		{
			name: "gap ends on the first of two equal stamps",
			snaps: []snapshot.Snapshot{
				{Timestamp: t0, Network: devices("A")},
				{Timestamp: t0.Add(time.Hour), Network: devices("A")},
				{Timestamp: t0.Add(time.Hour), Network: devices("A", "B")},
			},
			wantKinds:  []RowKind{RowSnapshot, RowGap, RowSnapshot, RowSnapshot},
			wantEvents: [][]string{nil, nil, nil, {"new device B"}},
		},
		{
			name: "all stamps equal",
			snaps: []snapshot.Snapshot{
				{Timestamp: t0, Network: devices("A")},
				{Timestamp: t0, Network: devices("A", "B")},
				{Timestamp: t0, Network: devices("B")},
			},
			wantKinds:  []RowKind{RowSnapshot, RowSnapshot, RowSnapshot},
			wantEvents: [][]string{nil, {"new device B"}, {"device left A"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := BuildNarrative(tt.snaps)
			rows := n.TableRows()
			require.Len(t, rows, len(tt.wantKinds))

			gapRows := 0
			for i, r := range rows {
				assert.Equal(t, tt.wantKinds[i], r.Kind, "row %d", i)
				assert.Equal(t, tt.wantEvents[i], r.Events, "row %d", i)
				if r.Kind == RowGap {
					gapRows++
				}
			}
			assert.Equal(t, len(n.Facts.Gaps), gapRows)
		})
	}
}

func TestPowerEventsSortedDedupedAndCapped(t *testing.T) {
	var snaps []snapshot.Snapshot
	for i := 0; i < 5; i++ {
		var events []snapshot.PowerEvent
		for j := 4; j >= 0; j-- {
			events = append(events, snapshot.PowerEvent{Timestamp: t0.Add(time.Duration(i*5+j) * time.Minute), Type: "wake"})
		}
		snaps = append(snaps, snapshot.Snapshot{Timestamp: min5(i), Power: &snapshot.PowerInfo{RecentEvents: events}})
	}
	// The same event reported twice counts once.
	snaps[4].Power.RecentEvents = append(snaps[4].Power.RecentEvents, snaps[3].Power.RecentEvents[0])

	f := BuildNarrative(snaps).Facts
	assert.Equal(t, 25, f.PowerEventsTotal)
	require.Len(t, f.PowerEvents, 20)
	assert.Equal(t, t0.Add(5*time.Minute), f.PowerEvents[0].Timestamp)
	assert.Equal(t, t0.Add(24*time.Minute), f.PowerEvents[19].Timestamp)
	for i := 1; i < len(f.PowerEvents); i++ {
		assert.True(t, f.PowerEvents[i-1].Timestamp.Before(f.PowerEvents[i].Timestamp))
	}
	assert.Contains(t, BuildNarrative(snaps).Prose(), "(5 earlier events omitted)")
}

func TestConnectivity(t *testing.T) {
	ts := func(i int, up bool) snapshot.Snapshot {
		return snapshot.Snapshot{Timestamp: min5(i), Tailscale: &snapshot.TailscaleInfo{Connected: up}}
	}
	snaps := []snapshot.Snapshot{ts(0, true), ts(1, false), {Timestamp: min5(2)}, ts(3, true), ts(4, true), ts(5, false)}
	c := BuildNarrative(snaps).Facts.Connectivity
	require.NotNil(t, c)
	assert.Equal(t, 5, c.Samples)
	assert.Equal(t, 3, c.Connected)
	assert.Equal(t, 2, c.Disconnections)
	assert.InDelta(t, 0.6, c.Fraction(), 1e-9)
	assert.Contains(t, BuildNarrative(snaps).Prose(), "Tailscale connected in 3 of 5 snapshots (60%), 2 disconnection(s)")
}

func TestDockerDiff(t *testing.T) {
	dk := func(i int, running ...string) snapshot.Snapshot {
		info := &snapshot.DockerInfo{Available: true}
		for _, n := range running {
			info.Containers = append(info.Containers, snapshot.ContainerInfo{Name: n, Running: true})
		}
		info.Containers = append(info.Containers, snapshot.ContainerInfo{Name: "idle", Running: false})
		return snapshot.Snapshot{Timestamp: min5(i), Docker: info}
	}
	snaps := []snapshot.Snapshot{
		dk(0, "plex", "pihole"),
		dk(1, "pihole", "sonarr"),
		{Timestamp: min5(2), Docker: &snapshot.DockerInfo{Available: false}},
		dk(3, "plex"),
	}
	assert.Equal(t, []Change{
		{Timestamp: min5(1), Name: "sonarr", Kind: ContainerStarted, Index: 1},
		{Timestamp: min5(1), Name: "plex", Kind: ContainerStopped, Index: 1},
	}, BuildNarrative(snaps).Facts.Docker)
}

func TestServiceHealthDiff(t *testing.T) {
	svc := func(i int, healthy ...bool) snapshot.Snapshot {
		s := snapshot.Snapshot{Timestamp: min5(i)}
		for k, h := range healthy {
			s.Services = append(s.Services, snapshot.ServiceStatus{Name: fmt.Sprintf("svc%d", k), Healthy: h})
		}
		return s
	}
	snaps := []snapshot.Snapshot{svc(0, true, false), svc(1, false, false), svc(2, true, true), svc(3)}
	assert.Equal(t, []Change{
		{Timestamp: min5(1), Name: "svc0", Kind: ServiceDown, Index: 1},
		{Timestamp: min5(2), Name: "svc0", Kind: ServiceRecovered, Index: 2},
		{Timestamp: min5(2), Name: "svc1", Kind: ServiceRecovered, Index: 2},
	}, BuildNarrative(snaps).Facts.Services)
}

func TestDeviceDiffHasNoHysteresis(t *testing.T) {
	snaps := []snapshot.Snapshot{
		{Timestamp: min5(0), Network: devices("A")},
		{Timestamp: min5(1), Network: devices("A", "B")},
		{Timestamp: min5(2), Network: devices("A")},
		{Timestamp: min5(3)},
		{Timestamp: min5(4), Network: devices("C")},
	}
	assert.Equal(t, []Change{
		{Timestamp: min5(1), Name: "B", Kind: DeviceNew, Index: 1},
		{Timestamp: min5(2), Name: "B", Kind: DeviceLeft, Index: 2},
	}, BuildNarrative(snaps).Facts.Devices)
}

func TestSecurityDigest(t *testing.T) {
	snaps := []snapshot.Snapshot{
		{Timestamp: min5(0), Network: &snapshot.NetworkInfo{Security: &snapshot.SecurityInfo{TotalAlerts: 1}}},
		{Timestamp: min5(1), Network: &snapshot.NetworkInfo{Security: &snapshot.SecurityInfo{
			TotalAlerts: 5, CriticalCount: 1, HighCount: 2,
			RecentAlerts: []snapshot.SecurityAlert{
				{Severity: snapshot.AlertLow, Signature: "low"},
				{Severity: snapshot.AlertHigh, Signature: "high-1", SourceIP: "5.6.7.8", DestIP: "192.168.1.2"},
				{Severity: snapshot.AlertCritical, Signature: "crit", SourceIP: "1.2.3.4"},
				{Severity: snapshot.AlertHigh, Signature: "high-2"},
				{Severity: snapshot.AlertMedium, Signature: "medium"},
			},
		}}},
	}
	f := BuildNarrative(snaps).Facts
	require.Len(t, f.Security, 1)
	e := f.Security[0]
	assert.Equal(t, 1, e.Critical)
	assert.Equal(t, 2, e.High)
	var sigs []string
	for _, a := range e.Top {
		sigs = append(sigs, a.Signature)
	}
	assert.Equal(t, []string{"crit", "high-1", "high-2"}, sigs)
	assert.Contains(t, BuildNarrative(snaps).Prose(), "crit (1.2.3.4 -> ?); high-1 (5.6.7.8 -> 192.168.1.2)")
}

func TestTrafficTrend(t *testing.T) {
	tr := func(i int, v uint64) snapshot.Snapshot {
		return snapshot.Snapshot{Timestamp: min5(i), Network: &snapshot.NetworkInfo{Traffic: &snapshot.TrafficInfo{TotalBytes: v}}}
	}
	snaps := []snapshot.Snapshot{tr(0, 2048), {Timestamp: min5(1)}, tr(2, 0), tr(3, 4096)}
	trend := BuildNarrative(snaps).Facts.Traffic
	require.NotNil(t, trend)
	assert.Equal(t, 3, trend.Samples)
	assert.Equal(t, uint64(0), trend.Min)
	assert.Equal(t, uint64(4096), trend.Max)
	assert.InDelta(t, 2048.0, trend.Mean, 1e-9)
	assert.Contains(t, BuildNarrative(snaps).Prose(), "min 0.0 B, mean 2.0 KB, max 4.0 KB over 3 samples")
}

func TestProseBulletCap(t *testing.T) {
	var snaps []snapshot.Snapshot
	for i := 0; i < 21; i++ {
		var ips []string
		for k := 0; k <= i; k++ {
			ips = append(ips, fmt.Sprintf("10.0.0.%d", k+1))
		}
		snaps = append(snaps, snapshot.Snapshot{Timestamp: min5(i), Network: devices(ips...)})
	}
	prose := BuildNarrative(snaps).Prose()
	section := prose[strings.Index(prose, "Network devices:"):]
	assert.Equal(t, 15, strings.Count(section, "new device"))
	assert.Contains(t, section, "- ... and 5 more")

	cfg := DefaultConfig()
	cfg.BulletLimit = 3
	short := New(cfg).Build(snaps).Prose()
	assert.Contains(t, short, "- ... and 17 more")
}

func TestProseHeaderAndAnomalies(t *testing.T) {
	snaps := []snapshot.Snapshot{
		{Timestamp: t0, Host: "nas", System: &snapshot.SystemInfo{CPUPercent: 5, MemoryPercent: 40, DiskPercent: 70, Uptime: "1d 2h"}},
		{Timestamp: min5(1), Host: "nas", System: &snapshot.SystemInfo{CPUPercent: 12.5, MemoryPercent: 61.2, DiskPercent: 80.1, Uptime: "1d 2h"}},
		{Timestamp: min5(2)},
	}
	n := BuildNarrative(snaps)
	prose := n.Prose()
	assert.True(t, strings.HasPrefix(prose, "History from 2026-03-14 00:00 UTC to 2026-03-14 00:10 UTC (3 snapshots)\n"))
	assert.Contains(t, prose, "Latest system on nas: CPU 12.5%, memory 61.2%, disk 80.1%, uptime 1d 2h")
	assert.NotContains(t, prose, "Anomalies:")

	withAnoms := n.WithAnomalies([]snapshot.Anomaly{{
		Timestamp: min5(1), Type: snapshot.AnomalyNewDevice, Severity: snapshot.SeverityWarning,
		Description: "New device on network: 10.0.0.9",
	}})
	assert.Contains(t, withAnoms.Prose(), "Anomalies:\n- [warning] 2026-03-14 00:05 UTC New device on network: 10.0.0.9\n")
	assert.Empty(t, n.Facts.Anomalies, "WithAnomalies mutated the receiver")
}

func TestTableRowsRendersSnapshotFields(t *testing.T) {
	snaps := []snapshot.Snapshot{{
		Timestamp: t0,
		System:    &snapshot.SystemInfo{CPUPercent: 12.5, MemoryPercent: 50, DiskPercent: 75},
		Docker:    &snapshot.DockerInfo{Available: true, Running: 3, Total: 5},
		Tailscale: &snapshot.TailscaleInfo{Connected: false},
		Network: &snapshot.NetworkInfo{
			DeviceCount: 12,
			Traffic:     &snapshot.TrafficInfo{TotalBytes: 1536},
			Security:    &snapshot.SecurityInfo{CriticalCount: 1, HighCount: 2},
		},
		Errors: []string{"Power: boom"},
	}}
	rows := BuildNarrative(snaps).TableRows()
	require.Len(t, rows, 1)
	r := rows[0]
	assert.Equal(t, "12.5%", r.CPU)
	assert.Equal(t, "3/5", r.Containers)
	assert.Equal(t, "down", r.VPN)
	assert.Equal(t, "12", r.Devices)
	assert.Equal(t, "1.5 KB", r.Traffic)
	assert.Equal(t, "1C 2H", r.Alerts)
	assert.Equal(t, 1, r.Errors)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45m", FormatDuration(45*time.Minute))
	assert.Equal(t, "1h05m", FormatDuration(65*time.Minute))
	assert.Equal(t, "26h00m", FormatDuration(26*time.Hour))
}
