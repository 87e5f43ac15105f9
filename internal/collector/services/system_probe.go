package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"homewatch/internal/snapshot"
)

// SystemProbe reports CPU, memory and root disk usage plus host uptime.
type SystemProbe struct {
	// DiskPath is the mount whose usage is reported (default "/").
	DiskPath string
}

func NewSystemProbe() *SystemProbe {
	return &SystemProbe{DiskPath: "/"}
}

func (p *SystemProbe) Name() string {
	return "System"
}

func (p *SystemProbe) Probe(ctx context.Context, snap *snapshot.Snapshot) error {
	total, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil || len(total) == 0 {
		return fmt.Errorf("failed to get total cpu percent: %w", err)
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get virtual memory: %w", err)
	}

	path := p.DiskPath
	if path == "" {
		path = "/"
	}
	du, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to get disk usage for %s: %w", path, err)
	}

	info := &snapshot.SystemInfo{
		CPUPercent:    total[0],
		MemoryPercent: vm.UsedPercent,
		DiskPercent:   du.UsedPercent,
	}
	if up, err := host.UptimeWithContext(ctx); err == nil {
		info.Uptime = FormatUptime(time.Duration(up) * time.Second)
	}
	if snap.Host == "" {
		if hi, err := host.InfoWithContext(ctx); err == nil {
			snap.Host = hi.Hostname
		}
	}

	snap.System = info
	return nil
}

// FormatUptime renders a duration as "3d 4h", "4h 12m" or "12m".
func FormatUptime(d time.Duration) string {
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	mins := int(d % time.Hour / time.Minute)
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	default:
		return fmt.Sprintf("%dm", mins)
	}
}
