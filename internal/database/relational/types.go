package relational

import "time"

// SnapshotFixed is a snapshot flattened into warehouse rows. Nullable scalars
// are pointers; a nil pointer means the subsystem was absent.
type SnapshotFixed struct {
	SnapshotID  string
	Hostname    string
	CollectedAt time.Time

	CPUUsagePct  *float64
	RAMUsagePct  *float64
	DiskUsagePct *float64
	Uptime       *string

	DockerAvailable   *bool
	ContainersRunning *int
	ContainersTotal   *int

	VPNConnected *bool
	VPNState     *string
	VPNPeers     *int
	VPNOnline    *int

	DeviceCount  *int
	TrafficBytes *uint64

	AlertsTotal    *int
	AlertsCritical *int
	AlertsHigh     *int

	DownloadMbps *float64
	UploadMbps   *float64
	PingMs       *float64

	PowerEvents int
	ErrorCount  int

	Devices    []DeviceFixed
	Containers []ContainerFixed
	Services   []ServiceFixed
	Alerts     []AlertFixed
	Anomalies  []AnomalyFixed
}

type DeviceFixed struct {
	IP       string
	MAC      string
	Hostname string
	Vendor   string
}

type ContainerFixed struct {
	Name    string
	Running bool
}

type ServiceFixed struct {
	Name    string
	Healthy bool
}

type AlertFixed struct {
	Rank      int
	Severity  string
	Signature string
	Category  string
	SourceIP  string
	DestIP    string
}

type AnomalyFixed struct {
	Type        string
	Severity    string
	Description string
}
