// Package snapshot defines the schema for one observation of homelab state.
package snapshot

import (
	"time"
)

// ============================================================================
// DATA STRUCTURES
// ============================================================================

// Snapshot is one timestamped observation. Every sub-record is optional: a nil
// pointer means the source subsystem was unavailable when the snapshot was taken.
type Snapshot struct {
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Host      string    `json:"host,omitempty"`

	System    *SystemInfo    `json:"system,omitempty"`
	Docker    *DockerInfo    `json:"docker,omitempty"`
	Tailscale *TailscaleInfo `json:"tailscale,omitempty"`
	Network   *NetworkInfo   `json:"network,omitempty"`
	Power     *PowerInfo     `json:"power,omitempty"`
	Speedtest *SpeedtestInfo `json:"speedtest,omitempty"`

	Services []ServiceStatus `json:"services,omitempty"`

	// Errors holds collection warnings. Diagnostic only.
	Errors []string `json:"errors,omitempty"`
}

type SystemInfo struct {
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryPercent float64 `json:"memoryPercent"`
	DiskPercent   float64 `json:"diskPercent"`
	Uptime        string  `json:"uptime"`
}

type DockerInfo struct {
	Available  bool            `json:"available"`
	Running    int             `json:"running"`
	Total      int             `json:"total"`
	Containers []ContainerInfo `json:"containers,omitempty"`
}

type ContainerInfo struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
}

type TailscaleInfo struct {
	Connected    bool   `json:"connected"`
	BackendState string `json:"backendState"`
	SelfIP       string `json:"selfIp,omitempty"`
	PeerCount    int    `json:"peerCount"`
	OnlinePeers  int    `json:"onlinePeers"`
}

type NetworkInfo struct {
	DeviceCount int           `json:"deviceCount"`
	Devices     []Device      `json:"devices,omitempty"`
	Traffic     *TrafficInfo  `json:"traffic,omitempty"`
	Security    *SecurityInfo `json:"security,omitempty"`
}

// Device is a host seen on the local network. Only IP is guaranteed.
type Device struct {
	IP       string `json:"ip"`
	MAC      string `json:"mac,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	Vendor   string `json:"vendor,omitempty"`
}

type TrafficInfo struct {
	TotalBytes uint64      `json:"totalBytes"`
	TopTalkers []TopTalker `json:"topTalkers,omitempty"`
}

type TopTalker struct {
	IP    string `json:"ip"`
	Bytes uint64 `json:"bytes"`
}

type SecurityInfo struct {
	TotalAlerts   int             `json:"totalAlerts"`
	CriticalCount int             `json:"criticalCount"`
	HighCount     int             `json:"highCount"`
	RecentAlerts  []SecurityAlert `json:"recentAlerts,omitempty"`
}

type SecurityAlert struct {
	Severity  string `json:"severity"` // critical|high|medium|low
	Signature string `json:"signature"`
	SourceIP  string `json:"sourceIp"`
	DestIP    string `json:"destIp"`
	Category  string `json:"category,omitempty"`
}

type PowerInfo struct {
	RecentEvents []PowerEvent `json:"recentEvents,omitempty"`
}

// PowerEvent is a sleep/wake style transition observed since the previous snapshot.
type PowerEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
}

// SpeedtestInfo is only present when a test was explicitly requested.
type SpeedtestInfo struct {
	DownloadMbps *float64 `json:"downloadMbps,omitempty"`
	UploadMbps   *float64 `json:"uploadMbps,omitempty"`
	PingMs       *float64 `json:"pingMs,omitempty"`
	Server       string   `json:"server,omitempty"`
	ISP          string   `json:"isp,omitempty"`
	IP           string   `json:"ip,omitempty"`
}

type ServiceStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
}

// Alert severities as reported by the security probe.
const (
	AlertCritical = "critical"
	AlertHigh     = "high"
	AlertMedium   = "medium"
	AlertLow      = "low"
)

// ============================================================================
// ACCESSORS
// ============================================================================

// DeviceIPs returns the set of device IPs, or nil when network data is absent.
func (s *Snapshot) DeviceIPs() map[string]Device {
	if s == nil || s.Network == nil {
		return nil
	}
	out := make(map[string]Device, len(s.Network.Devices))
	for _, d := range s.Network.Devices {
		if d.IP == "" {
			continue
		}
		out[d.IP] = d
	}
	return out
}

// RunningContainers returns the names of running containers. ok is false when
// Docker data is absent or Docker was unavailable.
func (s *Snapshot) RunningContainers() (names map[string]bool, ok bool) {
	if s == nil || s.Docker == nil || !s.Docker.Available {
		return nil, false
	}
	names = make(map[string]bool, len(s.Docker.Containers))
	for _, c := range s.Docker.Containers {
		if c.Running {
			names[c.Name] = true
		}
	}
	return names, true
}

// TotalBytes returns the traffic total when traffic data is present.
func (s *Snapshot) TotalBytes() (uint64, bool) {
	if s == nil || s.Network == nil || s.Network.Traffic == nil {
		return 0, false
	}
	return s.Network.Traffic.TotalBytes, true
}

// Security returns the security sub-record, or nil.
func (s *Snapshot) Security() *SecurityInfo {
	if s == nil || s.Network == nil {
		return nil
	}
	return s.Network.Security
}

// Clone returns a deep copy so callers can hand out snapshots without sharing
// nested slices.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	if s.System != nil {
		v := *s.System
		c.System = &v
	}
	if s.Docker != nil {
		v := *s.Docker
		v.Containers = append([]ContainerInfo(nil), s.Docker.Containers...)
		c.Docker = &v
	}
	if s.Tailscale != nil {
		v := *s.Tailscale
		c.Tailscale = &v
	}
	if s.Network != nil {
		v := *s.Network
		v.Devices = append([]Device(nil), s.Network.Devices...)
		if s.Network.Traffic != nil {
			t := *s.Network.Traffic
			t.TopTalkers = append([]TopTalker(nil), s.Network.Traffic.TopTalkers...)
			v.Traffic = &t
		}
		if s.Network.Security != nil {
			sec := *s.Network.Security
			sec.RecentAlerts = append([]SecurityAlert(nil), s.Network.Security.RecentAlerts...)
			v.Security = &sec
		}
		c.Network = &v
	}
	if s.Power != nil {
		v := PowerInfo{RecentEvents: append([]PowerEvent(nil), s.Power.RecentEvents...)}
		c.Power = &v
	}
	if s.Speedtest != nil {
		v := *s.Speedtest
		v.DownloadMbps = cloneFloat(s.Speedtest.DownloadMbps)
		v.UploadMbps = cloneFloat(s.Speedtest.UploadMbps)
		v.PingMs = cloneFloat(s.Speedtest.PingMs)
		c.Speedtest = &v
	}
	c.Services = append([]ServiceStatus(nil), s.Services...)
	c.Errors = append([]string(nil), s.Errors...)
	return &c
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
