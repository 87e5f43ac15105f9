// Package engine grades the latest snapshot against resource thresholds for
// the status views. It is presentation only; anomalies come from the detector.
package engine

import (
	"fmt"

	"homewatch/internal/snapshot"
)

const (
	StatusHealthy  = "OK"
	StatusWarning  = "WARN"
	StatusCritical = "CRIT"
	StatusUnknown  = "N/A"
)

// Thresholds defines warning and critical levels for a metric.
type Thresholds struct {
	Warning  float64 `mapstructure:"warning"`
	Critical float64 `mapstructure:"critical"`
}

type Config struct {
	CPU    Thresholds `mapstructure:"cpu"`
	Memory Thresholds `mapstructure:"memory"`
	Disk   Thresholds `mapstructure:"disk"`
}

func DefaultConfig() Config {
	return Config{
		CPU:    Thresholds{Warning: 70.0, Critical: 90.0},
		Memory: Thresholds{Warning: 70.0, Critical: 90.0},
		Disk:   Thresholds{Warning: 80.0, Critical: 90.0},
	}
}

func (c Config) Validate() error {
	for name, t := range map[string]Thresholds{"cpu": c.CPU, "memory": c.Memory, "disk": c.Disk} {
		if t.Warning <= 0 || t.Critical < t.Warning || t.Critical > 100 {
			return fmt.Errorf("health.%s: need 0 < warning <= critical <= 100", name)
		}
	}
	return nil
}

type CheckResult struct {
	Name   string
	Value  string
	Status string
}

func getStatus(value float64, t Thresholds) string {
	if value > t.Critical {
		return StatusCritical
	}
	if value > t.Warning {
		return StatusWarning
	}
	return StatusHealthy
}

// Evaluate grades one snapshot. Absent subsystems are reported as N/A.
func Evaluate(cfg Config, s *snapshot.Snapshot) []CheckResult {
	if s == nil {
		return nil
	}
	var result []CheckResult

	if s.System != nil {
		result = append(result,
			CheckResult{Name: "CPU Usage", Value: fmt.Sprintf("%.1f%%", s.System.CPUPercent), Status: getStatus(s.System.CPUPercent, cfg.CPU)},
			CheckResult{Name: "Memory Usage", Value: fmt.Sprintf("%.1f%%", s.System.MemoryPercent), Status: getStatus(s.System.MemoryPercent, cfg.Memory)},
			CheckResult{Name: "Disk Usage", Value: fmt.Sprintf("%.1f%%", s.System.DiskPercent), Status: getStatus(s.System.DiskPercent, cfg.Disk)},
		)
	} else {
		result = append(result, CheckResult{Name: "System", Value: "-", Status: StatusUnknown})
	}

	// Docker: a stopped container is worth a look, an unreachable daemon more so
	switch {
	case s.Docker == nil:
		result = append(result, CheckResult{Name: "Docker", Value: "-", Status: StatusUnknown})
	case !s.Docker.Available:
		result = append(result, CheckResult{Name: "Docker", Value: "unavailable", Status: StatusWarning})
	default:
		status := StatusHealthy
		if s.Docker.Running < s.Docker.Total {
			status = StatusWarning
		}
		result = append(result, CheckResult{Name: "Docker", Value: fmt.Sprintf("%d/%d running", s.Docker.Running, s.Docker.Total), Status: status})
	}

	if s.Tailscale != nil {
		status, value := StatusHealthy, fmt.Sprintf("%d/%d peers online", s.Tailscale.OnlinePeers, s.Tailscale.PeerCount)
		if !s.Tailscale.Connected {
			status, value = StatusCritical, s.Tailscale.BackendState
		}
		result = append(result, CheckResult{Name: "VPN", Value: value, Status: status})
	}

	if sec := s.Security(); sec != nil {
		status := StatusHealthy
		switch {
		case sec.CriticalCount > 0:
			status = StatusCritical
		case sec.HighCount > 0:
			status = StatusWarning
		}
		result = append(result, CheckResult{Name: "Security Alerts", Value: fmt.Sprintf("%d", sec.TotalAlerts), Status: status})
	}

	for _, svc := range s.Services {
		status, value := StatusHealthy, "healthy"
		if !svc.Healthy {
			status, value = StatusCritical, "down"
		}
		result = append(result, CheckResult{Name: "Service " + svc.Name, Value: value, Status: status})
	}

	return result
}

// Worst returns the most severe status in results.
func Worst(results []CheckResult) string {
	rank := map[string]int{StatusUnknown: 0, StatusHealthy: 1, StatusWarning: 2, StatusCritical: 3}
	worst := StatusHealthy
	for _, r := range results {
		if rank[r.Status] > rank[worst] {
			worst = r.Status
		}
	}
	return worst
}
