package relational

import (
	"context"
	"database/sql"
	"fmt"
)

// QuerySnapshots retrieves recent snapshots with optional filtering.
func (r *Repo) QuerySnapshots(ctx context.Context, hostname string, limit int) ([]SnapshotSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 1000 {
		limit = 1000 // Safety limit
	}

	query := `
		SELECT
			s.snapshot_id,
			COALESCE(h.hostname, 'unknown') as hostname,
			s.collected_at,
			s.cpu_usage_pct,
			s.ram_usage_pct,
			s.disk_usage_pct,
			s.containers_running,
			s.vpn_connected,
			s.device_count,
			s.traffic_bytes,
			s.error_count,
			s.anomaly_count
		FROM snapshots s
		LEFT JOIN hosts h ON s.host_id = h.host_id
		WHERE 1=1
	`

	args := []any{}
	if hostname != "" {
		query += " AND h.hostname = ?"
		args = append(args, hostname)
	}

	query += " ORDER BY s.collected_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots failed: %w", err)
	}
	defer rows.Close()

	snapshots := []SnapshotSummary{} // Initialize as empty slice, not nil
	for rows.Next() {
		var s SnapshotSummary
		var cpu, ram, disk sql.NullFloat64
		var containers, devices sql.NullInt64
		var vpn sql.NullBool
		var traffic sql.Null[uint64]

		err := rows.Scan(
			&s.SnapshotID,
			&s.Hostname,
			&s.CollectedAt,
			&cpu, &ram, &disk,
			&containers,
			&vpn,
			&devices,
			&traffic,
			&s.ErrorCount,
			&s.AnomalyCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot failed: %w", err)
		}
		s.CPUUsagePct = fromNull(cpu.Float64, cpu.Valid)
		s.RAMUsagePct = fromNull(ram.Float64, ram.Valid)
		s.DiskUsagePct = fromNull(disk.Float64, disk.Valid)
		s.ContainersRunning = fromNull(containers.Int64, containers.Valid)
		s.VPNConnected = fromNull(vpn.Bool, vpn.Valid)
		s.DeviceCount = fromNull(devices.Int64, devices.Valid)
		s.TrafficBytes = fromNull(traffic.V, traffic.Valid)

		snapshots = append(snapshots, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return snapshots, nil
}

// GetLatestSnapshot retrieves the most recent snapshot for a host.
func (r *Repo) GetLatestSnapshot(ctx context.Context, hostname string) (*SnapshotSummary, error) {
	snapshots, err := r.QuerySnapshots(ctx, hostname, 1)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("no snapshots found")
	}
	return &snapshots[0], nil
}

// DeviceSightings aggregates every device ever recorded, most recently seen first.
func (r *Repo) DeviceSightings(ctx context.Context) ([]DeviceSighting, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			d.ip,
			COALESCE(max(d.hostname), '') AS hostname,
			COALESCE(max(d.vendor), '') AS vendor,
			min(s.collected_at) AS first_seen,
			max(s.collected_at) AS last_seen,
			count(*) AS sightings
		FROM snapshot_devices d
		JOIN snapshots s ON s.snapshot_id = d.snapshot_id
		GROUP BY d.ip
		ORDER BY last_seen DESC, d.ip
	`)
	if err != nil {
		return nil, fmt.Errorf("query devices failed: %w", err)
	}
	defer rows.Close()

	out := []DeviceSighting{}
	for rows.Next() {
		var d DeviceSighting
		if err := rows.Scan(&d.IP, &d.Hostname, &d.Vendor, &d.FirstSeen, &d.LastSeen, &d.Sightings); err != nil {
			return nil, fmt.Errorf("scan device failed: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AnomalyCounts groups stored anomalies by type and severity.
func (r *Repo) AnomalyCounts(ctx context.Context) ([]AnomalyCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT type, severity, count(*) AS n
		FROM anomalies
		GROUP BY type, severity
		ORDER BY n DESC, type, severity
	`)
	if err != nil {
		return nil, fmt.Errorf("query anomalies failed: %w", err)
	}
	defer rows.Close()

	out := []AnomalyCount{}
	for rows.Next() {
		var c AnomalyCount
		if err := rows.Scan(&c.Type, &c.Severity, &c.Count); err != nil {
			return nil, fmt.Errorf("scan anomaly count failed: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func fromNull[T any](v T, valid bool) *T {
	if !valid {
		return nil
	}
	return &v
}
