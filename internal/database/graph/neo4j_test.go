package graph

import (
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homewatch/internal/snapshot"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestSnapshotParamsNullsMissingParts(t *testing.T) {
	p := snapshotParams(&snapshot.Snapshot{ID: "abc", Timestamp: t0, Host: "nas", Errors: []string{"x"}})
	assert.Equal(t, "abc", p["snapshot_id"])
	assert.Equal(t, "2026-03-14T09:00:00Z", p["collected_at"])
	assert.Nil(t, p["cpu_pct"])
	assert.Nil(t, p["device_count"])
	assert.Nil(t, p["vpn_connected"])
	assert.Equal(t, int64(1), p["error_count"])
}

func TestSnapshotParamsFull(t *testing.T) {
	s := &snapshot.Snapshot{
		Timestamp: t0,
		Host:      "nas",
		System:    &snapshot.SystemInfo{CPUPercent: 12.5},
		Tailscale: &snapshot.TailscaleInfo{Connected: true},
		Docker:    &snapshot.DockerInfo{Available: true, Running: 3, Total: 4},
		Network:   &snapshot.NetworkInfo{DeviceCount: 7, Traffic: &snapshot.TrafficInfo{TotalBytes: 42}},
	}
	p := snapshotParams(s)
	assert.Equal(t, "nas-"+"1773478800000000000", p["snapshot_id"])
	assert.Equal(t, 12.5, p["cpu_pct"])
	assert.Equal(t, true, p["vpn_connected"])
	assert.Equal(t, int64(3), p["containers_running"])
	assert.Equal(t, int64(7), p["device_count"])
	assert.Equal(t, int64(42), p["total_bytes"])
}

func TestDimensionRows(t *testing.T) {
	s := &snapshot.Snapshot{
		Timestamp: t0,
		Network: &snapshot.NetworkInfo{
			Devices: []snapshot.Device{{IP: "10.0.0.2", Hostname: "tv"}, {IP: ""}},
			Security: &snapshot.SecurityInfo{RecentAlerts: []snapshot.SecurityAlert{
				{Severity: snapshot.AlertHigh, Signature: "ET SCAN", SourceIP: "1.2.3.4"},
				{Severity: snapshot.AlertLow, Signature: "noise"},
			}},
		},
		Docker:   &snapshot.DockerInfo{Available: true, Containers: []snapshot.ContainerInfo{{Name: "plex", Running: true}}},
		Services: []snapshot.ServiceStatus{{Name: "pihole", Healthy: false}},
	}

	devs := deviceRows(s)
	require.Len(t, devs, 1)
	d := devs[0].(map[string]any)
	assert.Equal(t, "tv", d["hostname"])
	assert.Nil(t, d["mac"])

	alerts := alertRows(s)
	require.Len(t, alerts, 2)
	assert.Equal(t, int64(1), alerts[1].(map[string]any)["idx"])
	assert.Nil(t, alerts[1].(map[string]any)["source_ip"])

	assert.Len(t, containerRows(s), 1)
	assert.Len(t, serviceRows(s), 1)
	assert.Nil(t, deviceRows(&snapshot.Snapshot{}))
	assert.Nil(t, alertRows(&snapshot.Snapshot{}))
}

func TestAnomalyRowsKeepOnlyThisSnapshot(t *testing.T) {
	s := &snapshot.Snapshot{Timestamp: t0}
	anoms := []snapshot.Anomaly{
		{Timestamp: t0.Add(-5 * time.Minute), Type: snapshot.AnomalyNewDevice},
		{Timestamp: t0, Type: snapshot.AnomalyTrafficSpike, Severity: snapshot.SeverityWarning, Description: "spike"},
	}
	rows := anomalyRows(s, anoms)
	require.Len(t, rows, 1)
	assert.Equal(t, string(snapshot.AnomalyTrafficSpike), rows[0].(map[string]any)["type"])
}

func TestConvertNeo4jValue(t *testing.T) {
	node := neo4j.Node{ElementId: "4:x:1", Labels: []string{"Device"}, Props: map[string]any{"ip": "10.0.0.2"}}
	got := convertNeo4jValue([]any{node, int64(3)}).([]any)
	m := got[0].(map[string]any)
	assert.Equal(t, "4:x:1", m["id"])
	assert.Equal(t, []string{"Device"}, m["labels"])
	assert.Equal(t, int64(3), got[1])
}

func TestConvertNeo4jValuePath(t *testing.T) {
	a := neo4j.Node{ElementId: "4:x:1", Labels: []string{"Snapshot"}}
	b := neo4j.Node{ElementId: "4:x:2", Labels: []string{"Device"}}
	rel := neo4j.Relationship{Type: "SAW_DEVICE", StartElementId: "4:x:1", EndElementId: "4:x:2"}
	got := convertNeo4jValue(neo4j.Path{Nodes: []neo4j.Node{a, b}, Relationships: []neo4j.Relationship{rel}}).(map[string]any)
	require.Len(t, got["nodes"], 2)
	rels := got["relationships"].([]any)
	require.Len(t, rels, 1)
	assert.Equal(t, "SAW_DEVICE", rels[0].(map[string]any)["type"])
}

func TestPrepareReadQuery(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    string
		wantErr error
	}{
		{name: "limit appended", query: "MATCH (d:Device) RETURN d.ip", want: "MATCH (d:Device) RETURN d.ip\nLIMIT 100"},
		{name: "own limit kept", query: "  MATCH (s:Snapshot) RETURN s LIMIT 10;  ", want: "MATCH (s:Snapshot) RETURN s LIMIT 10"},
		{name: "parameter limit kept", query: "MATCH (s:Snapshot) RETURN s LIMIT $n", want: "MATCH (s:Snapshot) RETURN s LIMIT $n"},
		{name: "keywords inside literals", query: "MATCH (d:Device) WHERE d.hostname = 'create; set' RETURN d LIMIT 1", want: "MATCH (d:Device) WHERE d.hostname = 'create; set' RETURN d LIMIT 1"},
		{name: "property named like a clause", query: "MATCH (n) RETURN n.set AS s LIMIT 1", want: "MATCH (n) RETURN n.set AS s LIMIT 1"},
		{name: "read procedure", query: "CALL db.labels() YIELD label RETURN label", want: "CALL db.labels() YIELD label RETURN label\nLIMIT 100"},
		{name: "create", query: "CREATE (d:Device {ip: '10.0.0.9'})", wantErr: ErrWriteQuery},
		{name: "detach delete", query: "MATCH (d:Device) DETACH DELETE d", wantErr: ErrWriteQuery},
		{name: "set", query: "MATCH (s:Snapshot) SET s.cpu_pct = 0 RETURN s", wantErr: ErrWriteQuery},
		{name: "merge lowercase", query: "merge (h:Host {name: 'nas'})", wantErr: ErrWriteQuery},
		{name: "load csv", query: "LOAD CSV FROM 'file:///x.csv' AS row RETURN row", wantErr: ErrWriteQuery},
		{name: "apoc procedure", query: "CALL apoc.periodic.iterate('a', 'b', {})", wantErr: ErrWriteQuery},
		{name: "subquery", query: "MATCH (n) CALL { WITH n RETURN n AS m } RETURN m", wantErr: ErrWriteQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PrepareReadQuery(tt.query)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrepareReadQueryRejectsMalformed(t *testing.T) {
	for _, q := range []string{"", "   ;", "MATCH (n) RETURN n; MATCH (m) RETURN m"} {
		_, err := PrepareReadQuery(q)
		assert.Error(t, err, q)
	}
}
