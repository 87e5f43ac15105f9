package output

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homewatch/internal/anomaly"
	"homewatch/internal/collector"
	"homewatch/internal/narrator"
	"homewatch/internal/snapshot"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type fakeCollector struct {
	snaps []*snapshot.Snapshot
	calls int
}

func (f *fakeCollector) Collect(ctx context.Context, opts ...collector.CollectOption) (*snapshot.Snapshot, []collector.ProbeResult) {
	s := f.snaps[f.calls%len(f.snaps)]
	f.calls++
	return s, []collector.ProbeResult{{Name: "System"}}
}

type memLog struct {
	mu       sync.Mutex
	failures int
	appends  int
	snaps    []snapshot.Snapshot
}

func (m *memLog) Append(ctx context.Context, snap *snapshot.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends++
	if m.failures > 0 {
		m.failures--
		return errors.New("disk full")
	}
	m.snaps = append(m.snaps, *snap)
	return nil
}

func (m *memLog) Latest(ctx context.Context, n int) []snapshot.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.snaps) > n {
		return append([]snapshot.Snapshot(nil), m.snaps[len(m.snaps)-n:]...)
	}
	return append([]snapshot.Snapshot(nil), m.snaps...)
}

func devices(i int, ips ...string) *snapshot.Snapshot {
	n := &snapshot.NetworkInfo{DeviceCount: len(ips)}
	for _, ip := range ips {
		n.Devices = append(n.Devices, snapshot.Device{IP: ip})
	}
	return &snapshot.Snapshot{Timestamp: t0.Add(time.Duration(i) * 5 * time.Minute), Network: n}
}

func fastRetry() PipelineConfig {
	cfg := DefaultPipelineConfig()
	cfg.AppendDelay = time.Millisecond
	return cfg
}

func TestRunPipelineAppendsAndDetects(t *testing.T) {
	col := &fakeCollector{snaps: []*snapshot.Snapshot{
		devices(0, "10.0.0.1"),
		devices(1, "10.0.0.1", "10.0.0.9"),
	}}
	log := &memLog{}
	det := anomaly.New(anomaly.DefaultConfig())

	p, err := RunPipeline(context.Background(), col, log, det, fastRetry())
	require.NoError(t, err)
	assert.Empty(t, p.Anomalies)
	assert.Len(t, p.Probes, 1)

	p, err = RunPipeline(context.Background(), col, log, det, fastRetry())
	require.NoError(t, err)
	require.Len(t, p.Anomalies, 1)
	assert.Equal(t, snapshot.AnomalyNewDevice, p.Anomalies[0].Type)
	assert.Len(t, log.snaps, 2)
}

func TestRunPipelineRetriesAppend(t *testing.T) {
	tests := []struct {
		name        string
		failures    int
		wantErr     bool
		wantAppends int
	}{
		{"first attempt", 0, false, 1},
		{"transient failure", 2, false, 3},
		{"persistent failure", 10, true, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col := &fakeCollector{snaps: []*snapshot.Snapshot{devices(0, "10.0.0.1")}}
			log := &memLog{failures: tt.failures}

			p, err := RunPipeline(context.Background(), col, log, nil, fastRetry())
			assert.Equal(t, tt.wantAppends, log.appends)
			require.NotNil(t, p)
			assert.NotNil(t, p.Snapshot)
			if tt.wantErr {
				assert.ErrorContains(t, err, "disk full")
				assert.Empty(t, log.snaps)
				return
			}
			assert.NoError(t, err)
			assert.Len(t, log.snaps, 1)
		})
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]string{"": FormatTable, "TABLE": FormatTable, "json": FormatJSON, " yaml ": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestWriteYAMLUsesJSONNames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, []snapshot.Snapshot{*devices(0, "10.0.0.1", "true")}))
	out := buf.String()
	assert.Contains(t, out, "deviceCount: 2")
	assert.Contains(t, out, "ip: 10.0.0.1")
	assert.Contains(t, out, `ip: "true"`)
	assert.NotContains(t, out, "{")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, devices(0, "10.0.0.1")))
	assert.Contains(t, buf.String(), `"deviceCount": 1`)
}

func TestRenderTimeline(t *testing.T) {
	assert.Contains(t, RenderTimeline(nil), "No snapshots")

	snaps := []snapshot.Snapshot{
		{Timestamp: t0, System: &snapshot.SystemInfo{CPUPercent: 12.5}},
		{Timestamp: t0.Add(3 * time.Hour), Errors: []string{"Docker: daemon not running"}},
	}
	out := RenderTimeline(narrator.BuildNarrative(snaps).TableRows())
	assert.Contains(t, out, "Time (UTC)")
	assert.Contains(t, out, "12.5%")
	assert.Contains(t, out, "gap 3h00m")
	assert.Contains(t, out, "03-14 12:00")
}

func TestParseBound(t *testing.T) {
	now := t0
	tests := []struct {
		in      string
		want    *time.Time
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "24h", want: ptrTime(now.Add(-24 * time.Hour))},
		{in: "90m", want: ptrTime(now.Add(-90 * time.Minute))},
		{in: "7d", want: ptrTime(now.Add(-7 * 24 * time.Hour))},
		{in: "2026-03-01T10:00:00Z", want: ptrTime(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))},
		{in: "2026-03-01", want: ptrTime(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))},
		{in: "-1h", wantErr: true},
		{in: "yesterday", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBound(tt.in, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "got %s", got)
		})
	}
}

func TestParseWindowRejectsInvertedRange(t *testing.T) {
	_, _, err := ParseWindow("1h", "2h", t0)
	assert.ErrorContains(t, err, "is after")

	from, to, err := ParseWindow("2h", "1h", t0)
	require.NoError(t, err)
	assert.True(t, from.Before(*to))
}

func ptrTime(t time.Time) *time.Time { return &t }
