package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homewatch/internal/collector"
	"homewatch/internal/database/rag"
	"homewatch/internal/database/relational"
	"homewatch/internal/logstore"
	"homewatch/internal/output"
	"homewatch/internal/snapshot"
)

var now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// MockStore serves a fixed history, honouring the window bounds.
type MockStore struct {
	Snaps   []snapshot.Snapshot
	Skipped int
}

func (m *MockStore) QueryWithStats(ctx context.Context, since, until *time.Time) ([]snapshot.Snapshot, logstore.QueryStats) {
	var out []snapshot.Snapshot
	for _, s := range m.Snaps {
		if since != nil && s.Timestamp.Before(*since) {
			continue
		}
		if until != nil && s.Timestamp.After(*until) {
			continue
		}
		out = append(out, s)
	}
	return out, logstore.QueryStats{Skipped: m.Skipped, Returned: len(out)}
}

// MockGraphClient implements graph.GraphClient for testing
type MockGraphClient struct {
	CypherResult []map[string]any
	CypherErr    error
	Closed       bool
	LastQuery    string
}

func (m *MockGraphClient) IngestSnapshot(ctx context.Context, payload *output.PipelinePayload) error {
	return nil
}

func (m *MockGraphClient) Reset(ctx context.Context) error {
	return nil
}

func (m *MockGraphClient) ExecuteCypher(ctx context.Context, query string) ([]map[string]any, error) {
	m.LastQuery = query
	if m.CypherErr != nil {
		return nil, m.CypherErr
	}
	return m.CypherResult, nil
}

func (m *MockGraphClient) Close(ctx context.Context) error {
	m.Closed = true
	return nil
}

type MockAdvisor struct {
	Question string
	Digest   rag.Digest
	Err      error
}

func (m *MockAdvisor) Ask(ctx context.Context, question string, d rag.Digest) (string, error) {
	m.Question, m.Digest = question, d
	if m.Err != nil {
		return "", m.Err
	}
	return "all quiet", nil
}

type MockCycler struct {
	Payload *output.PipelinePayload
	Err     error
}

func (m *MockCycler) PullOnce(ctx context.Context) (*output.PipelinePayload, error) {
	return m.Payload, m.Err
}

type MockWarehouse struct {
	Limit int
}

func (m *MockWarehouse) QuerySnapshots(ctx context.Context, hostname string, limit int) ([]relational.SnapshotSummary, error) {
	m.Limit = limit
	return []relational.SnapshotSummary{{SnapshotID: "a", Hostname: hostname}}, nil
}

// history is five snapshots five minutes apart ending an hour before now. Ten
// devices stay put and the last snapshot sees an eleventh, which is below the
// device count deviation.
func history() []snapshot.Snapshot {
	var out []snapshot.Snapshot
	start := now.Add(-80 * time.Minute)
	for i := 0; i < 5; i++ {
		var ips []string
		for host := 10; host < 20; host++ {
			ips = append(ips, fmt.Sprintf("192.168.1.%d", host))
		}
		if i == 4 {
			ips = append(ips, "192.168.1.20")
		}
		net := &snapshot.NetworkInfo{DeviceCount: len(ips)}
		for _, ip := range ips {
			net.Devices = append(net.Devices, snapshot.Device{IP: ip})
		}
		out = append(out, snapshot.Snapshot{Timestamp: start.Add(time.Duration(i) * 5 * time.Minute), Network: net})
	}
	return out
}

func testServer(deps Deps) *Server {
	if deps.Store == nil {
		deps.Store = &MockStore{Snaps: history()}
	}
	s := newServer(DefaultConfig(), deps)
	s.now = func() time.Time { return now }
	return s
}

func TestNewServerRequiresStore(t *testing.T) {
	_, err := NewServer(DefaultConfig(), Deps{})
	assert.Error(t, err)
}

func TestHandleQuerySnapshots(t *testing.T) {
	s := testServer(Deps{Store: &MockStore{Snaps: history(), Skipped: 2}})
	ctx := context.Background()

	_, res, err := s.handleQuerySnapshots(ctx, nil, QuerySnapshotsArgs{})
	require.NoError(t, err)
	assert.Len(t, res.Snapshots, 5)
	assert.Equal(t, 5, res.Matched)
	assert.Equal(t, 2, res.Skipped)

	_, res, err = s.handleQuerySnapshots(ctx, nil, QuerySnapshotsArgs{Limit: 2})
	require.NoError(t, err)
	require.Len(t, res.Snapshots, 2)
	assert.Equal(t, 5, res.Matched)
	assert.Len(t, res.Snapshots[1].Network.Devices, 11, "newest snapshots are kept")

	// 70m back covers the last three snapshots, bounds inclusive
	_, res, err = s.handleQuerySnapshots(ctx, nil, QuerySnapshotsArgs{WindowArgs: WindowArgs{Since: "70m"}})
	require.NoError(t, err)
	assert.Len(t, res.Snapshots, 3)

	_, _, err = s.handleQuerySnapshots(ctx, nil, QuerySnapshotsArgs{WindowArgs: WindowArgs{Since: "1h", Until: "2h"}})
	assert.Error(t, err)
}

func TestHandleDetectAnomalies(t *testing.T) {
	s := testServer(Deps{})
	ctx := context.Background()

	_, res, err := s.handleDetectAnomalies(ctx, nil, DetectAnomaliesArgs{})
	require.NoError(t, err)
	require.Len(t, res.Anomalies, 1)
	assert.Equal(t, snapshot.AnomalyNewDevice, res.Anomalies[0].Type)
	assert.Equal(t, 5, res.Scanned)
	assert.Equal(t, "warning", res.Highest)

	_, res, err = s.handleDetectAnomalies(ctx, nil, DetectAnomaliesArgs{MinSeverity: "critical"})
	require.NoError(t, err)
	assert.Empty(t, res.Anomalies)
	assert.NotNil(t, res.Anomalies)
	assert.Empty(t, res.Highest)

	_, _, err = s.handleDetectAnomalies(ctx, nil, DetectAnomaliesArgs{MinSeverity: "loud"})
	assert.Error(t, err)
}

func TestHandleBuildNarrative(t *testing.T) {
	s := testServer(Deps{})
	_, res, err := s.handleBuildNarrative(context.Background(), nil, WindowArgs{})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Snapshots)
	assert.Equal(t, 1, res.Anomalies)
	assert.Contains(t, res.Narrative, "192.168.1.20")
}

func TestHandleAsk(t *testing.T) {
	adv := &MockAdvisor{}
	s := testServer(Deps{Advisor: adv})

	_, res, err := s.handleAsk(context.Background(), nil, AskArgs{Question: "anything new?"})
	require.NoError(t, err)
	assert.Equal(t, "all quiet", res.Answer)
	assert.Equal(t, "anything new?", adv.Question)
	assert.NotEmpty(t, adv.Digest.Prose)
	assert.Len(t, adv.Digest.Anomalies, 1)

	empty := testServer(Deps{Store: &MockStore{}, Advisor: adv})
	_, _, err = empty.handleAsk(context.Background(), nil, AskArgs{})
	require.NoError(t, err)
	assert.Empty(t, adv.Digest.Prose)

	adv.Err = errors.New("quota exceeded")
	_, _, err = s.handleAsk(context.Background(), nil, AskArgs{Question: "q"})
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestHandleCollectSnapshot(t *testing.T) {
	at := now
	payload := &output.PipelinePayload{
		Snapshot: &snapshot.Snapshot{Timestamp: at},
		Probes: []collector.ProbeResult{
			{Name: "System"},
			{Name: "Docker", Err: errors.New("daemon not running")},
		},
		Anomalies: []snapshot.Anomaly{
			{Timestamp: at.Add(-5 * time.Minute), Type: snapshot.AnomalyDeviceGone},
			{Timestamp: at, Type: snapshot.AnomalyNewDevice},
		},
	}
	s := testServer(Deps{Worker: &MockCycler{Payload: payload}})

	_, res, err := s.handleCollectSnapshot(context.Background(), nil, CollectSnapshotArgs{})
	require.NoError(t, err)
	assert.Same(t, payload.Snapshot, res.Snapshot)
	require.Len(t, res.Anomalies, 1)
	assert.Equal(t, snapshot.AnomalyNewDevice, res.Anomalies[0].Type)
	assert.Equal(t, []string{"Docker: daemon not running"}, res.ProbeErrors)

	failing := testServer(Deps{Worker: &MockCycler{Err: errors.New("disk full")}})
	_, _, err = failing.handleCollectSnapshot(context.Background(), nil, CollectSnapshotArgs{})
	assert.ErrorContains(t, err, "disk full")
}

func TestHandleQueryGraph(t *testing.T) {
	tests := []struct {
		name      string
		mock      *MockGraphClient
		cypher    string
		wantErr   bool
		wantLen   int
		wantQuery string
	}{
		{
			name:      "rows",
			mock:      &MockGraphClient{CypherResult: []map[string]any{{"ip": "192.168.1.20"}}},
			cypher:    "MATCH (d:Device) RETURN d.ip AS ip",
			wantLen:   1,
			wantQuery: "MATCH (d:Device) RETURN d.ip AS ip\nLIMIT 100",
		},
		{
			name:      "own limit kept",
			mock:      &MockGraphClient{CypherResult: []map[string]any{{"ip": "192.168.1.20"}}},
			cypher:    "MATCH (d:Device) RETURN d.ip AS ip LIMIT 5;",
			wantLen:   1,
			wantQuery: "MATCH (d:Device) RETURN d.ip AS ip LIMIT 5",
		},
		{
			name:    "write rejected before reaching the graph",
			mock:    &MockGraphClient{},
			cypher:  "MATCH (d:Device) DETACH DELETE d",
			wantErr: true,
		},
		{
			name:    "driver error",
			mock:    &MockGraphClient{CypherErr: errors.New("connection refused")},
			cypher:  "MATCH (n) RETURN n",
			wantErr: true,
		},
		{
			name:    "empty query",
			mock:    &MockGraphClient{},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testServer(Deps{Graph: tt.mock})
			_, res, err := s.handleQueryGraph(context.Background(), nil, QueryGraphArgs{Cypher: tt.cypher})
			if tt.wantErr {
				assert.Error(t, err)
				if tt.cypher != "" && tt.mock.CypherErr == nil {
					assert.Empty(t, tt.mock.LastQuery)
				}
				return
			}
			require.NoError(t, err)
			assert.Len(t, res.Data, tt.wantLen)
			assert.Equal(t, tt.wantQuery, tt.mock.LastQuery)
		})
	}
}

func TestHandleGetHistoricalSnapshotsClampsLimit(t *testing.T) {
	wh := &MockWarehouse{}
	s := testServer(Deps{Warehouse: wh})
	ctx := context.Background()

	_, res, err := s.handleGetHistoricalSnapshots(ctx, nil, HistoricalSnapshotsArgs{Hostname: "nas"})
	require.NoError(t, err)
	assert.Equal(t, 10, wh.Limit)
	assert.Equal(t, "nas", res.Snapshots[0].Hostname)

	_, _, err = s.handleGetHistoricalSnapshots(ctx, nil, HistoricalSnapshotsArgs{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, 100, wh.Limit)
}
