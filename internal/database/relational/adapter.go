package relational

import (
	"homewatch/internal/snapshot"
)

// =============================================================================
// ADAPTER FUNCTIONS
// =============================================================================

// ToSnapshotFixed flattens a snapshot for insertion. Only anomalies raised at
// the snapshot's own timestamp are attached.
func ToSnapshotFixed(s *snapshot.Snapshot, anomalies []snapshot.Anomaly) SnapshotFixed {
	f := SnapshotFixed{
		SnapshotID:  snapshotKey(s),
		Hostname:    s.Host,
		CollectedAt: s.Timestamp.UTC(),
		ErrorCount:  len(s.Errors),
	}

	if sys := s.System; sys != nil {
		f.CPUUsagePct = ptr(sys.CPUPercent)
		f.RAMUsagePct = ptr(sys.MemoryPercent)
		f.DiskUsagePct = ptr(sys.DiskPercent)
		if sys.Uptime != "" {
			f.Uptime = ptr(sys.Uptime)
		}
	}

	if d := s.Docker; d != nil {
		f.DockerAvailable = ptr(d.Available)
		if d.Available {
			f.ContainersRunning = ptr(d.Running)
			f.ContainersTotal = ptr(d.Total)
		}
		for _, c := range d.Containers {
			f.Containers = append(f.Containers, ContainerFixed{Name: c.Name, Running: c.Running})
		}
	}

	if ts := s.Tailscale; ts != nil {
		f.VPNConnected = ptr(ts.Connected)
		f.VPNState = ptr(ts.BackendState)
		f.VPNPeers = ptr(ts.PeerCount)
		f.VPNOnline = ptr(ts.OnlinePeers)
	}

	if n := s.Network; n != nil {
		f.DeviceCount = ptr(n.DeviceCount)
		for _, d := range n.Devices {
			if d.IP == "" {
				continue
			}
			f.Devices = append(f.Devices, DeviceFixed(d))
		}
		if n.Traffic != nil {
			f.TrafficBytes = ptr(n.Traffic.TotalBytes)
		}
		if sec := n.Security; sec != nil {
			f.AlertsTotal = ptr(sec.TotalAlerts)
			f.AlertsCritical = ptr(sec.CriticalCount)
			f.AlertsHigh = ptr(sec.HighCount)
			for i, a := range sec.RecentAlerts {
				f.Alerts = append(f.Alerts, AlertFixed{
					Rank:      i,
					Severity:  a.Severity,
					Signature: a.Signature,
					Category:  a.Category,
					SourceIP:  a.SourceIP,
					DestIP:    a.DestIP,
				})
			}
		}
	}

	if sp := s.Speedtest; sp != nil {
		f.DownloadMbps = sp.DownloadMbps
		f.UploadMbps = sp.UploadMbps
		f.PingMs = sp.PingMs
	}

	if s.Power != nil {
		f.PowerEvents = len(s.Power.RecentEvents)
	}

	for _, svc := range s.Services {
		f.Services = append(f.Services, ServiceFixed{Name: svc.Name, Healthy: svc.Healthy})
	}

	for _, a := range anomalies {
		if !a.Timestamp.Equal(s.Timestamp) {
			continue
		}
		f.Anomalies = append(f.Anomalies, AnomalyFixed{
			Type:        string(a.Type),
			Severity:    string(a.Severity),
			Description: a.Description,
		})
	}
	return f
}

func snapshotKey(s *snapshot.Snapshot) string {
	if s.ID != "" {
		return s.ID
	}
	return s.Host + "@" + s.Timestamp.UTC().Format("20060102T150405.000000000Z")
}

func ptr[T any](v T) *T { return &v }
