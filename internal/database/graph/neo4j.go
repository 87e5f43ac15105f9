package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"homewatch/internal/output"
	"homewatch/internal/snapshot"
)

// GraphClient defines the interface for graph database operations.
type GraphClient interface {
	Close(ctx context.Context) error
	Reset(ctx context.Context) error
	IngestSnapshot(ctx context.Context, payload *output.PipelinePayload) error
	ExecuteCypher(ctx context.Context, query string) ([]map[string]any, error)
}

type Config struct {
	URI      string `mapstructure:"uri"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// Enabled reports whether a server is configured.
func (c Config) Enabled() bool { return c.URI != "" }

// Neo4jClient implements GraphClient for Neo4j.
//
// Model:
//
//	(:Host)-[:HAS_SNAPSHOT]->(:Snapshot)
//	(:Snapshot)-[:SAW_DEVICE]->(:Device)
//	(:Snapshot)-[:OBSERVED_CONTAINER {running}]->(:Container)
//	(:Snapshot)-[:CHECKED {healthy}]->(:Service)
//	(:Snapshot)-[:RAISED]->(:Alert)-[:FROM]->(:Device)
//	(:Snapshot)-[:HAS_ANOMALY]->(:Anomaly)
type Neo4jClient struct {
	driver neo4j.DriverWithContext
	dbName string
}

// NewNeo4jClient creates a new Neo4j client.
func NewNeo4jClient(cfg Config) (*Neo4jClient, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}

	return &Neo4jClient{
		driver: driver,
		dbName: cfg.Database,
	}, nil
}

func (c *Neo4jClient) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// Reset deletes all data in the graph.
func (c *Neo4jClient) Reset(ctx context.Context) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.dbName})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, "MATCH (n) DETACH DELETE n", nil)
	})
	return err
}

// IngestSnapshot mirrors one snapshot and the anomalies raised at its
// timestamp. Snapshots merge on their ID, so re-ingesting is a no-op.
func (c *Neo4jClient) IngestSnapshot(ctx context.Context, payload *output.PipelinePayload) error {
	if payload == nil || payload.Snapshot == nil {
		return nil
	}
	snap := payload.Snapshot

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.dbName})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// 1. Host + Snapshot
		if _, err := tx.Run(ctx, mergeSnapshotQuery, snapshotParams(snap)); err != nil {
			return nil, fmt.Errorf("merge snapshot: %w", err)
		}

		id := snapshotKey(snap)
		steps := []struct {
			name  string
			query string
			rows  []any
		}{
			{"devices", mergeDevicesQuery, deviceRows(snap)},
			{"containers", mergeContainersQuery, containerRows(snap)},
			{"services", mergeServicesQuery, serviceRows(snap)},
			{"alerts", mergeAlertsQuery, alertRows(snap)},
			{"anomalies", mergeAnomaliesQuery, anomalyRows(snap, payload.Anomalies)},
		}

		// 2. Dimensions
		for _, s := range steps {
			if len(s.rows) == 0 {
				continue
			}
			if _, err := tx.Run(ctx, s.query, map[string]any{"snap_id": id, "rows": s.rows}); err != nil {
				return nil, fmt.Errorf("merge %s: %w", s.name, err)
			}
		}
		return nil, nil
	})

	return err
}

// ============================================================================
// CYPHER
// ============================================================================

const mergeSnapshotQuery = `
	MERGE (h:Host {name: $host})
	MERGE (s:Snapshot {snapshot_id: $snapshot_id})
	SET s.collected_at = $collected_at,
		s.cpu_pct = $cpu_pct,
		s.memory_pct = $memory_pct,
		s.disk_pct = $disk_pct,
		s.device_count = $device_count,
		s.total_bytes = $total_bytes,
		s.vpn_connected = $vpn_connected,
		s.containers_running = $containers_running,
		s.error_count = $error_count
	MERGE (h)-[:HAS_SNAPSHOT]->(s)
`

const mergeDevicesQuery = `
	MATCH (s:Snapshot {snapshot_id: $snap_id})
	UNWIND $rows AS row
	MERGE (d:Device {ip: row.ip})
	SET d.mac = coalesce(row.mac, d.mac),
		d.hostname = coalesce(row.hostname, d.hostname),
		d.vendor = coalesce(row.vendor, d.vendor),
		d.last_seen = s.collected_at
	MERGE (s)-[:SAW_DEVICE]->(d)
`

const mergeContainersQuery = `
	MATCH (s:Snapshot {snapshot_id: $snap_id})<-[:HAS_SNAPSHOT]-(h:Host)
	UNWIND $rows AS row
	MERGE (c:Container {name: row.name, host: h.name})
	MERGE (s)-[r:OBSERVED_CONTAINER]->(c)
	SET r.running = row.running
`

const mergeServicesQuery = `
	MATCH (s:Snapshot {snapshot_id: $snap_id})
	UNWIND $rows AS row
	MERGE (svc:Service {name: row.name})
	MERGE (s)-[r:CHECKED]->(svc)
	SET r.healthy = row.healthy
`

const mergeAlertsQuery = `
	MATCH (s:Snapshot {snapshot_id: $snap_id})
	UNWIND $rows AS row
	MERGE (a:Alert {snapshot_id: $snap_id, idx: row.idx})
	SET a.signature = row.signature, a.severity = row.severity,
		a.category = row.category, a.dest_ip = row.dest_ip, a.at = s.collected_at
	MERGE (s)-[:RAISED]->(a)
	FOREACH (_ IN CASE WHEN row.source_ip IS NULL THEN [] ELSE [1] END |
		MERGE (d:Device {ip: row.source_ip})
		MERGE (a)-[:FROM]->(d))
`

const mergeAnomaliesQuery = `
	MATCH (s:Snapshot {snapshot_id: $snap_id})
	UNWIND $rows AS row
	MERGE (a:Anomaly {snapshot_id: $snap_id, type: row.type, description: row.description})
	SET a.severity = row.severity, a.at = row.at
	MERGE (s)-[:HAS_ANOMALY]->(a)
`

// ============================================================================
// PARAMETERS
// ============================================================================

func snapshotKey(s *snapshot.Snapshot) string {
	if s.ID != "" {
		return s.ID
	}
	return fmt.Sprintf("%s-%d", s.Host, s.Timestamp.UnixNano())
}

// snapshotParams flattens a snapshot into driver-friendly scalars. Missing
// sub-records become null properties.
func snapshotParams(s *snapshot.Snapshot) map[string]any {
	p := map[string]any{
		"host":               s.Host,
		"snapshot_id":        snapshotKey(s),
		"collected_at":       s.Timestamp.UTC().Format(time.RFC3339),
		"cpu_pct":            nil,
		"memory_pct":         nil,
		"disk_pct":           nil,
		"device_count":       nil,
		"total_bytes":        nil,
		"vpn_connected":      nil,
		"containers_running": nil,
		"error_count":        int64(len(s.Errors)),
	}
	if s.System != nil {
		p["cpu_pct"] = s.System.CPUPercent
		p["memory_pct"] = s.System.MemoryPercent
		p["disk_pct"] = s.System.DiskPercent
	}
	if s.Network != nil {
		p["device_count"] = int64(s.Network.DeviceCount)
	}
	if v, ok := s.TotalBytes(); ok {
		p["total_bytes"] = int64(v)
	}
	if s.Tailscale != nil {
		p["vpn_connected"] = s.Tailscale.Connected
	}
	if s.Docker != nil && s.Docker.Available {
		p["containers_running"] = int64(s.Docker.Running)
	}
	return p
}

func deviceRows(s *snapshot.Snapshot) []any {
	if s.Network == nil {
		return nil
	}
	rows := make([]any, 0, len(s.Network.Devices))
	for _, d := range s.Network.Devices {
		if d.IP == "" {
			continue
		}
		rows = append(rows, map[string]any{
			"ip":       d.IP,
			"mac":      nullable(d.MAC),
			"hostname": nullable(d.Hostname),
			"vendor":   nullable(d.Vendor),
		})
	}
	return rows
}

func containerRows(s *snapshot.Snapshot) []any {
	if s.Docker == nil {
		return nil
	}
	rows := make([]any, 0, len(s.Docker.Containers))
	for _, c := range s.Docker.Containers {
		rows = append(rows, map[string]any{"name": c.Name, "running": c.Running})
	}
	return rows
}

func serviceRows(s *snapshot.Snapshot) []any {
	rows := make([]any, 0, len(s.Services))
	for _, svc := range s.Services {
		rows = append(rows, map[string]any{
			"name":    svc.Name,
			"healthy": svc.Healthy,
		})
	}
	return rows
}

func alertRows(s *snapshot.Snapshot) []any {
	sec := s.Security()
	if sec == nil {
		return nil
	}
	rows := make([]any, 0, len(sec.RecentAlerts))
	for i, a := range sec.RecentAlerts {
		rows = append(rows, map[string]any{
			"idx":       int64(i),
			"signature": a.Signature,
			"severity":  a.Severity,
			"category":  a.Category,
			"source_ip": nullable(a.SourceIP),
			"dest_ip":   nullable(a.DestIP),
		})
	}
	return rows
}

// anomalyRows keeps only anomalies raised at this snapshot; earlier ones were
// mirrored with their own snapshot.
func anomalyRows(s *snapshot.Snapshot, anoms []snapshot.Anomaly) []any {
	var rows []any
	for _, a := range anoms {
		if !a.Timestamp.Equal(s.Timestamp) {
			continue
		}
		rows = append(rows, map[string]any{
			"type":        string(a.Type),
			"severity":    string(a.Severity),
			"description": a.Description,
			"at":          a.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	return rows
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ExecuteQuery runs a custom Cypher query and processes results with a callback.
func ExecuteQuery(ctx context.Context, client *Neo4jClient, query string, processRecord func(record map[string]any)) error {
	session := client.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: client.dbName})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return fmt.Errorf("failed to run query: %w", err)
	}

	for result.Next(ctx) {
		record := result.Record()
		recordMap := make(map[string]any)
		for i, key := range record.Keys {
			recordMap[key] = convertNeo4jValue(record.Values[i])
		}
		processRecord(recordMap)
	}

	return result.Err()
}
