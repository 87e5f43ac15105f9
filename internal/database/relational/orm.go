// Package relational mirrors the snapshot log into DuckDB for ad-hoc SQL.
//
// Notes:
//   - DuckDB is columnar and loves wide fact tables + append-only inserts.
//   - Hot snapshot scalars live in one table; variable-length parts go in child
//     tables keyed by snapshot_id.
//   - The JSONL log stays authoritative. Inserts are idempotent on snapshot_id,
//     so re-exporting a range only adds what is missing.
//
// Driver: github.com/marcboeker/go-duckdb
package relational

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"homewatch/internal/snapshot"
)

// =============================================================================
// SCHEMA SQL
// =============================================================================

const SchemaSQL = `
CREATE TABLE IF NOT EXISTS hosts (
  host_id        BIGINT PRIMARY KEY,
  hostname       VARCHAR NOT NULL UNIQUE,
  created_at     TIMESTAMP NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS snapshots (
  snapshot_id        VARCHAR PRIMARY KEY,
  host_id            BIGINT NOT NULL,
  collected_at       TIMESTAMP NOT NULL,

  cpu_usage_pct      DOUBLE,
  ram_usage_pct      DOUBLE,
  disk_usage_pct     DOUBLE,
  uptime             VARCHAR,

  docker_available   BOOLEAN,
  containers_running INTEGER,
  containers_total   INTEGER,

  vpn_connected      BOOLEAN,
  vpn_state          VARCHAR,
  vpn_peers          INTEGER,
  vpn_online_peers   INTEGER,

  device_count       INTEGER,
  traffic_bytes      UBIGINT,

  alerts_total       INTEGER,
  alerts_critical    INTEGER,
  alerts_high        INTEGER,

  download_mbps      DOUBLE,
  upload_mbps        DOUBLE,
  ping_ms            DOUBLE,

  power_events       INTEGER NOT NULL DEFAULT 0,
  error_count        INTEGER NOT NULL DEFAULT 0,
  anomaly_count      INTEGER NOT NULL DEFAULT 0,

  created_at         TIMESTAMP NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS snapshot_devices (
  snapshot_id   VARCHAR NOT NULL,
  ip            VARCHAR NOT NULL,
  mac           VARCHAR,
  hostname      VARCHAR,
  vendor        VARCHAR,
  PRIMARY KEY(snapshot_id, ip)
);

CREATE TABLE IF NOT EXISTS snapshot_containers (
  snapshot_id   VARCHAR NOT NULL,
  name          VARCHAR NOT NULL,
  running       BOOLEAN NOT NULL,
  PRIMARY KEY(snapshot_id, name)
);

CREATE TABLE IF NOT EXISTS snapshot_services (
  snapshot_id   VARCHAR NOT NULL,
  name          VARCHAR NOT NULL,
  healthy       BOOLEAN NOT NULL,
  PRIMARY KEY(snapshot_id, name)
);

CREATE TABLE IF NOT EXISTS snapshot_alerts (
  snapshot_id   VARCHAR NOT NULL,
  rank          INTEGER NOT NULL,
  severity      VARCHAR,
  signature     VARCHAR,
  category      VARCHAR,
  source_ip     VARCHAR,
  dest_ip       VARCHAR,
  PRIMARY KEY(snapshot_id, rank)
);

CREATE TABLE IF NOT EXISTS anomalies (
  snapshot_id   VARCHAR NOT NULL,
  seq           INTEGER NOT NULL,
  type          VARCHAR NOT NULL,
  severity      VARCHAR NOT NULL,
  description   VARCHAR NOT NULL,
  PRIMARY KEY(snapshot_id, seq)
);
`

// =============================================================================
// REPO IMPLEMENTATION
// =============================================================================

type Repo struct {
	db *sql.DB
	mu sync.RWMutex
	// hostname -> host_id
	hosts map[string]int64
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{
		db:    db,
		hosts: make(map[string]int64),
	}
}

func (r *Repo) Close() error {
	return r.db.Close()
}

func (r *Repo) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, SchemaSQL)
	return err
}

// NewID generates a unique ID (time-based).
func NewID() int64 {
	return time.Now().UnixNano()
}

// UpsertHost ensures the host exists and returns its ID.
func (r *Repo) UpsertHost(ctx context.Context, hostname string) (int64, error) {
	r.mu.RLock()
	if id, ok := r.hosts[hostname]; ok {
		r.mu.RUnlock()
		return id, nil
	}
	r.mu.RUnlock()

	var hostID int64
	err := r.db.QueryRowContext(ctx, `SELECT host_id FROM hosts WHERE hostname = ?`, hostname).Scan(&hostID)
	if errors.Is(err, sql.ErrNoRows) {
		hostID = NewID()
		_, err = r.db.ExecContext(ctx, `INSERT INTO hosts(host_id, hostname) VALUES(?,?)`, hostID, hostname)
		if err != nil {
			// Race condition fallback
			if e2 := r.db.QueryRowContext(ctx, `SELECT host_id FROM hosts WHERE hostname = ?`, hostname).Scan(&hostID); e2 != nil {
				return 0, err
			}
			err = nil
		}
	}
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	r.hosts[hostname] = hostID
	r.mu.Unlock()
	return hostID, nil
}

// InsertResult reports what one insert did.
type InsertResult struct {
	SnapshotID string
	Inserted   bool // false when the snapshot was already present
	Children   int
}

// InsertSnapshot writes one snapshot with its children in a transaction.
func (r *Repo) InsertSnapshot(ctx context.Context, snap *snapshot.Snapshot, anomalies []snapshot.Anomaly) (InsertResult, error) {
	s := ToSnapshotFixed(snap, anomalies)
	res := InsertResult{SnapshotID: s.SnapshotID}

	hostID, err := r.UpsertHost(ctx, s.Hostname)
	if err != nil {
		return res, fmt.Errorf("upsert host: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM snapshots WHERE snapshot_id = ?`, s.SnapshotID).Scan(&exists); err != nil {
		return res, err
	}
	if exists > 0 {
		return res, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots(
			snapshot_id, host_id, collected_at,
			cpu_usage_pct, ram_usage_pct, disk_usage_pct, uptime,
			docker_available, containers_running, containers_total,
			vpn_connected, vpn_state, vpn_peers, vpn_online_peers,
			device_count, traffic_bytes,
			alerts_total, alerts_critical, alerts_high,
			download_mbps, upload_mbps, ping_ms,
			power_events, error_count, anomaly_count
		) VALUES (?,?,?, ?,?,?,?, ?,?,?, ?,?,?,?, ?,?, ?,?,?, ?,?,?, ?,?,?)`,
		s.SnapshotID, hostID, s.CollectedAt,
		nullFloat(s.CPUUsagePct), nullFloat(s.RAMUsagePct), nullFloat(s.DiskUsagePct), nullable(s.Uptime),
		nullable(s.DockerAvailable), nullable(s.ContainersRunning), nullable(s.ContainersTotal),
		nullable(s.VPNConnected), nullable(s.VPNState), nullable(s.VPNPeers), nullable(s.VPNOnline),
		nullable(s.DeviceCount), nullable(s.TrafficBytes),
		nullable(s.AlertsTotal), nullable(s.AlertsCritical), nullable(s.AlertsHigh),
		nullFloat(s.DownloadMbps), nullFloat(s.UploadMbps), nullFloat(s.PingMs),
		s.PowerEvents, s.ErrorCount, len(s.Anomalies),
	)
	if err != nil {
		return res, fmt.Errorf("insert snapshot: %w", err)
	}

	n, err := r.insertChildrenTx(ctx, tx, s)
	if err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	res.Inserted = true
	res.Children = n
	return res, nil
}

// IngestResult summarises a bulk export.
type IngestResult struct {
	Inserted int
	Skipped  int
}

// IngestHistory inserts every snapshot in snaps, attaching the anomalies that
// belong to each.
func (r *Repo) IngestHistory(ctx context.Context, snaps []snapshot.Snapshot, anomalies []snapshot.Anomaly) (IngestResult, error) {
	var out IngestResult
	for i := range snaps {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := r.InsertSnapshot(ctx, &snaps[i], anomalies)
		if err != nil {
			return out, fmt.Errorf("snapshot %s: %w", res.SnapshotID, err)
		}
		if res.Inserted {
			out.Inserted++
		} else {
			out.Skipped++
		}
	}
	return out, nil
}

func (r *Repo) insertChildrenTx(ctx context.Context, tx *sql.Tx, s SnapshotFixed) (int, error) {
	n := 0
	// Devices
	if len(s.Devices) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshot_devices(snapshot_id, ip, mac, hostname, vendor) VALUES(?,?,?,?,?) ON CONFLICT DO NOTHING`)
		if err != nil {
			return n, err
		}
		defer stmt.Close()
		for _, d := range s.Devices {
			if _, err := stmt.ExecContext(ctx, s.SnapshotID, d.IP, nullEmpty(d.MAC), nullEmpty(d.Hostname), nullEmpty(d.Vendor)); err != nil {
				return n, fmt.Errorf("insert device %s: %w", d.IP, err)
			}
			n++
		}
	}
	// Containers
	if len(s.Containers) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshot_containers(snapshot_id, name, running) VALUES(?,?,?) ON CONFLICT DO NOTHING`)
		if err != nil {
			return n, err
		}
		defer stmt.Close()
		for _, c := range s.Containers {
			if _, err := stmt.ExecContext(ctx, s.SnapshotID, c.Name, c.Running); err != nil {
				return n, fmt.Errorf("insert container %s: %w", c.Name, err)
			}
			n++
		}
	}
	// Services
	if len(s.Services) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshot_services(snapshot_id, name, healthy) VALUES(?,?,?) ON CONFLICT DO NOTHING`)
		if err != nil {
			return n, err
		}
		defer stmt.Close()
		for _, svc := range s.Services {
			if _, err := stmt.ExecContext(ctx, s.SnapshotID, svc.Name, svc.Healthy); err != nil {
				return n, fmt.Errorf("insert service %s: %w", svc.Name, err)
			}
			n++
		}
	}
	// Security alerts
	if len(s.Alerts) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshot_alerts(snapshot_id, rank, severity, signature, category, source_ip, dest_ip) VALUES(?,?,?,?,?,?,?)`)
		if err != nil {
			return n, err
		}
		defer stmt.Close()
		for _, a := range s.Alerts {
			if _, err := stmt.ExecContext(ctx, s.SnapshotID, a.Rank, nullEmpty(a.Severity), nullEmpty(a.Signature), nullEmpty(a.Category), nullEmpty(a.SourceIP), nullEmpty(a.DestIP)); err != nil {
				return n, fmt.Errorf("insert alert: %w", err)
			}
			n++
		}
	}
	// Anomalies
	if len(s.Anomalies) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO anomalies(snapshot_id, seq, type, severity, description) VALUES(?,?,?,?,?)`)
		if err != nil {
			return n, err
		}
		defer stmt.Close()
		for i, a := range s.Anomalies {
			if _, err := stmt.ExecContext(ctx, s.SnapshotID, i, a.Type, a.Severity, a.Description); err != nil {
				return n, fmt.Errorf("insert anomaly: %w", err)
			}
			n++
		}
	}
	return n, nil
}

// Null helpers
func nullEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullable[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
