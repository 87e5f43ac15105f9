package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homewatch/internal/collector"
	"homewatch/internal/database/relational"
	"homewatch/internal/logstore"
	"homewatch/internal/metrics"
	"homewatch/internal/output"
	"homewatch/internal/snapshot"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type stubCollector struct {
	calls     atomic.Int32
	speedtest atomic.Int32
}

func (c *stubCollector) Collect(ctx context.Context, opts ...collector.CollectOption) (*snapshot.Snapshot, []collector.ProbeResult) {
	n := c.calls.Add(1)
	if len(opts) > 0 {
		c.speedtest.Add(1)
	}
	ips := []string{"10.0.0.1"}
	if n > 1 {
		ips = append(ips, "10.0.0.2")
	}
	net := &snapshot.NetworkInfo{DeviceCount: len(ips)}
	for _, ip := range ips {
		net.Devices = append(net.Devices, snapshot.Device{IP: ip})
	}
	return &snapshot.Snapshot{
		ID:        string(rune('a' + n - 1)),
		Timestamp: t0.Add(time.Duration(n) * 5 * time.Minute),
		Network:   net,
	}, nil
}

type stubStore struct {
	mu       sync.Mutex
	snaps    []snapshot.Snapshot
	failAll  bool
	cleanups []int
}

func (s *stubStore) Append(ctx context.Context, snap *snapshot.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("read-only file system")
	}
	s.snaps = append(s.snaps, *snap)
	return nil
}

func (s *stubStore) Latest(ctx context.Context, n int) []snapshot.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snaps) > n {
		return append([]snapshot.Snapshot(nil), s.snaps[len(s.snaps)-n:]...)
	}
	return append([]snapshot.Snapshot(nil), s.snaps...)
}

func (s *stubStore) Cleanup(ctx context.Context, days int) (logstore.CleanupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanups = append(s.cleanups, days)
	return logstore.CleanupResult{Kept: len(s.snaps)}, nil
}

type stubGraph struct {
	mu       sync.Mutex
	ingested []string
	closed   bool
	closes   int
	late     int
}

func (g *stubGraph) Close(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.closes++
	return nil
}
func (g *stubGraph) Reset(ctx context.Context) error { return nil }
func (g *stubGraph) IngestSnapshot(ctx context.Context, p *output.PipelinePayload) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		g.late++
	}
	g.ingested = append(g.ingested, p.Snapshot.ID)
	return nil
}
func (g *stubGraph) ExecuteCypher(ctx context.Context, query string) ([]map[string]any, error) {
	return nil, nil
}

type stubWarehouse struct {
	relational.SnapshotRepository
	mu        sync.Mutex
	anomalies int
	inserted  int
	closed    bool
	late      int
}

func (w *stubWarehouse) InsertSnapshot(ctx context.Context, snap *snapshot.Snapshot, anoms []snapshot.Anomaly) (relational.InsertResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.late++
	}
	w.inserted++
	w.anomalies += len(anoms)
	return relational.InsertResult{SnapshotID: snap.ID, Inserted: true}, nil
}

func (w *stubWarehouse) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func testConfig() WorkerConfig {
	cfg := DefaultWorkerConfig()
	cfg.Interval = time.Hour
	cfg.CleanupEvery = 2
	cfg.RetentionDays = 7
	return cfg
}

func TestNewDataWorkerValidation(t *testing.T) {
	_, err := NewDataWorker(nil, &stubStore{}, testConfig())
	assert.Error(t, err)

	bad := testConfig()
	bad.Interval = 0
	_, err = NewDataWorker(&stubCollector{}, &stubStore{}, bad)
	assert.Error(t, err)

	bad = testConfig()
	bad.AppendAttempts = 0
	assert.Error(t, bad.Validate())
}

func TestPullOnceRunsFullCycle(t *testing.T) {
	col, store, g, wh := &stubCollector{}, &stubStore{}, &stubGraph{}, &stubWarehouse{}
	m := metrics.New(nil)
	textfile := filepath.Join(t.TempDir(), "homewatch.prom")
	cfg := testConfig()
	cfg.MetricsTextfile = textfile

	w, err := NewDataWorker(col, store, cfg, WithGraph(g), WithWarehouse(wh), WithWorkerMetrics(m))
	require.NoError(t, err)

	ctx := context.Background()
	p, err := w.PullOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, p.Anomalies)
	assert.Empty(t, store.cleanups, "cleanup only every second cycle")

	p, err = w.PullOnce(ctx)
	require.NoError(t, err)
	require.Len(t, p.Anomalies, 1)
	assert.Equal(t, snapshot.AnomalyNewDevice, p.Anomalies[0].Type)
	assert.Equal(t, []int{7}, store.cleanups)

	w.Stop()
	assert.Equal(t, []string{"a", "b"}, g.ingested)
	assert.True(t, g.closed)
	assert.Equal(t, 2, wh.inserted)
	assert.Equal(t, 1, wh.anomalies)
	assert.True(t, wh.closed)

	raw, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `homewatch_anomalies{severity="warning"} 1`)
	assert.Contains(t, string(raw), "homewatch_last_collection_timestamp_seconds")
}

func TestPullOnceAppendFailure(t *testing.T) {
	store := &stubStore{failAll: true}
	cfg := testConfig()
	cfg.AppendAttempts = 1
	g := &stubGraph{}
	w, err := NewDataWorker(&stubCollector{}, store, cfg, WithGraph(g))
	require.NoError(t, err)

	p, err := w.PullOnce(context.Background())
	assert.ErrorContains(t, err, "read-only file system")
	require.NotNil(t, p)
	w.Stop()
	assert.Empty(t, g.ingested)
}

func TestSpeedtestCadence(t *testing.T) {
	col := &stubCollector{}
	cfg := testConfig()
	cfg.SpeedtestEvery = 3
	w, err := NewDataWorker(col, &stubStore{}, cfg)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := w.PullOnce(context.Background())
		require.NoError(t, err)
	}
	// cycles 1 and 4
	assert.Equal(t, int32(2), col.speedtest.Load())
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	col := &stubCollector{}
	w, err := NewDataWorker(col, &stubStore{}, testConfig())
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))
	assert.Eventually(t, func() bool { return col.calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	w.Stop()

	n := col.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, col.calls.Load())
}

func TestPullOnceRacingStopNeverMirrorsAfterClose(t *testing.T) {
	store, g, wh := &stubStore{}, &stubGraph{}, &stubWarehouse{}
	w, err := NewDataWorker(&stubCollector{}, store, testConfig(), WithGraph(g), WithWarehouse(wh))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	var pulls sync.WaitGroup
	for i := 0; i < 4; i++ {
		pulls.Add(1)
		go func() {
			defer pulls.Done()
			for k := 0; k < 5; k++ {
				_, err := w.PullOnce(context.Background())
				assert.NoError(t, err)
			}
		}()
	}
	w.Stop()
	pulls.Wait()

	g.mu.Lock()
	assert.Zero(t, g.late)
	assert.Equal(t, 1, g.closes)
	g.mu.Unlock()
	wh.mu.Lock()
	assert.Zero(t, wh.late)
	wh.mu.Unlock()
}

func TestPullOnceAfterStop(t *testing.T) {
	store, g, wh := &stubStore{}, &stubGraph{}, &stubWarehouse{}
	w, err := NewDataWorker(&stubCollector{}, store, testConfig(), WithGraph(g), WithWarehouse(wh))
	require.NoError(t, err)

	_, err = w.PullOnce(context.Background())
	require.NoError(t, err)
	w.Stop()
	_, err = w.PullOnce(context.Background())
	require.NoError(t, err)
	w.Stop()

	assert.Len(t, store.snaps, 2, "the log still records cycles after Stop")
	assert.Equal(t, []string{"a"}, g.ingested)
	assert.Equal(t, 1, g.closes)
	assert.Equal(t, 1, wh.inserted)
}
