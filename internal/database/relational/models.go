package relational

import "time"

// ==========================
// QUERY RESULTS
// ==========================

// SnapshotSummary represents a simplified snapshot for queries.
type SnapshotSummary struct {
	SnapshotID        string    `json:"snapshot_id"`
	Hostname          string    `json:"hostname"`
	CollectedAt       time.Time `json:"collected_at"`
	CPUUsagePct       *float64  `json:"cpu_usage_pct,omitempty"`
	RAMUsagePct       *float64  `json:"ram_usage_pct,omitempty"`
	DiskUsagePct      *float64  `json:"disk_usage_pct,omitempty"`
	ContainersRunning *int64    `json:"containers_running,omitempty"`
	VPNConnected      *bool     `json:"vpn_connected,omitempty"`
	DeviceCount       *int64    `json:"device_count,omitempty"`
	TrafficBytes      *uint64   `json:"traffic_bytes,omitempty"`
	ErrorCount        int       `json:"error_count"`
	AnomalyCount      int       `json:"anomaly_count"`
}

// DeviceSighting is one network device across all stored snapshots.
type DeviceSighting struct {
	IP        string    `json:"ip"`
	Hostname  string    `json:"hostname,omitempty"`
	Vendor    string    `json:"vendor,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Sightings int64     `json:"sightings"`
}

type AnomalyCount struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Count    int64  `json:"count"`
}
