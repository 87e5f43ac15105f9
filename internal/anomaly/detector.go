// Package anomaly derives anomalies from an ordered snapshot sequence. Detection
// is pure: the same input always yields the same output and nothing is kept
// between calls.
package anomaly

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"homewatch/internal/snapshot"
)

// ============================================================================
// CONFIGURATION
// ============================================================================

// Config holds the detection thresholds.
type Config struct {
	// DeviceGone hysteresis: the IP must appear in at least GoneMinSeen of the
	// GoneWindow snapshots preceding prev.
	GoneWindow  int `mapstructure:"gone_window"`
	GoneMinSeen int `mapstructure:"gone_min_seen"`

	// TrafficSpike fires when current traffic exceeds SpikeMultiplier times the
	// mean of non-zero totals over the TrafficWindow snapshots before it.
	TrafficWindow   int     `mapstructure:"traffic_window"`
	SpikeMultiplier float64 `mapstructure:"spike_multiplier"`

	// DeviceCountAnomaly needs CountMinSamples non-zero counts in the
	// CountWindow snapshots before curr and fires above CountDeviation.
	CountWindow     int     `mapstructure:"count_window"`
	CountMinSamples int     `mapstructure:"count_min_samples"`
	CountDeviation  float64 `mapstructure:"count_deviation"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		GoneWindow:      4,
		GoneMinSeen:     3,
		TrafficWindow:   6,
		SpikeMultiplier: 3.0,
		CountWindow:     6,
		CountMinSamples: 3,
		CountDeviation:  0.30,
	}
}

// Validate reports the first threshold that cannot work.
func (c Config) Validate() error {
	switch {
	case c.GoneWindow <= 0:
		return fmt.Errorf("gone_window must be positive")
	case c.GoneMinSeen <= 0 || c.GoneMinSeen > c.GoneWindow:
		return fmt.Errorf("gone_min_seen must be between 1 and gone_window")
	case c.TrafficWindow <= 0:
		return fmt.Errorf("traffic_window must be positive")
	case c.SpikeMultiplier <= 1:
		return fmt.Errorf("spike_multiplier must be greater than 1")
	case c.CountWindow <= 0:
		return fmt.Errorf("count_window must be positive")
	case c.CountMinSamples <= 0 || c.CountMinSamples > c.CountWindow:
		return fmt.Errorf("count_min_samples must be between 1 and count_window")
	case c.CountDeviation <= 0:
		return fmt.Errorf("count_deviation must be positive")
	}
	return nil
}

// ============================================================================
// DETECTION
// ============================================================================

// Detector runs the five checks over consecutive snapshot pairs.
type Detector struct {
	Config Config
}

// New returns a detector with the given thresholds.
func New(cfg Config) *Detector {
	return &Detector{Config: cfg}
}

// DetectAnomalies runs a detector with default thresholds.
func DetectAnomalies(snaps []snapshot.Snapshot) []snapshot.Anomaly {
	return New(DefaultConfig()).Detect(snaps)
}

// Detect returns anomalies in pair order; within a pair the order is NewDevice,
// DeviceGone, TrafficSpike, SecurityAlert, DeviceCountAnomaly. Fewer than two
// snapshots yield an empty, non-nil slice.
func (d *Detector) Detect(snaps []snapshot.Snapshot) []snapshot.Anomaly {
	out := []snapshot.Anomaly{}
	for i := 1; i < len(snaps); i++ {
		out = append(out, d.newDevices(snaps, i)...)
		out = append(out, d.goneDevices(snaps, i)...)
		if a, ok := d.trafficSpike(snaps, i); ok {
			out = append(out, a)
		}
		if a, ok := securityAlert(&snaps[i]); ok {
			out = append(out, a)
		}
		if a, ok := d.deviceCount(snaps, i); ok {
			out = append(out, a)
		}
	}
	return out
}

// window returns up to n snapshots ending just before index end.
func window(snaps []snapshot.Snapshot, end, n int) []snapshot.Snapshot {
	start := end - n
	if start < 0 {
		start = 0
	}
	return snaps[start:end]
}

func (d *Detector) newDevices(snaps []snapshot.Snapshot, i int) []snapshot.Anomaly {
	prevIPs, currIPs := snaps[i-1].DeviceIPs(), snaps[i].DeviceIPs()
	if prevIPs == nil || currIPs == nil {
		return nil
	}
	var out []snapshot.Anomaly
	seen := map[string]bool{}
	for _, dev := range snaps[i].Network.Devices {
		if dev.IP == "" || seen[dev.IP] {
			continue
		}
		seen[dev.IP] = true
		if _, ok := prevIPs[dev.IP]; ok {
			continue
		}
		out = append(out, snapshot.Anomaly{
			Timestamp:   snaps[i].Timestamp,
			Type:        snapshot.AnomalyNewDevice,
			Severity:    snapshot.SeverityWarning,
			Description: "New device on network: " + deviceLabel(dev),
			Details: map[string]string{
				"ip":       dev.IP,
				"mac":      dev.MAC,
				"hostname": dev.Hostname,
				"vendor":   dev.Vendor,
			},
		})
	}
	return out
}

func (d *Detector) goneDevices(snaps []snapshot.Snapshot, i int) []snapshot.Anomaly {
	prevIPs, currIPs := snaps[i-1].DeviceIPs(), snaps[i].DeviceIPs()
	if prevIPs == nil || currIPs == nil {
		return nil
	}
	history := window(snaps, i-1, d.Config.GoneWindow)
	historyIPs := make([]map[string]snapshot.Device, len(history))
	for k := range history {
		historyIPs[k] = history[k].DeviceIPs()
	}

	var out []snapshot.Anomaly
	seen := map[string]bool{}
	for _, dev := range snaps[i-1].Network.Devices {
		if dev.IP == "" || seen[dev.IP] {
			continue
		}
		seen[dev.IP] = true
		if _, ok := currIPs[dev.IP]; ok {
			continue
		}
		count := 0
		for _, ips := range historyIPs {
			if _, ok := ips[dev.IP]; ok {
				count++
			}
		}
		if count < d.Config.GoneMinSeen {
			continue
		}
		out = append(out, snapshot.Anomaly{
			Timestamp:   snaps[i].Timestamp,
			Type:        snapshot.AnomalyDeviceGone,
			Severity:    snapshot.SeverityInfo,
			Description: "Device left network: " + deviceLabel(dev),
			Details: map[string]string{
				"ip":       dev.IP,
				"hostname": dev.Hostname,
				"seen_in":  fmt.Sprintf("%d/%d", count, len(history)),
			},
		})
	}
	return out
}

func (d *Detector) trafficSpike(snaps []snapshot.Snapshot, i int) (snapshot.Anomaly, bool) {
	current, ok := snaps[i].TotalBytes()
	if !ok {
		return snapshot.Anomaly{}, false
	}
	var sum float64
	var n int
	for _, s := range window(snaps, i, d.Config.TrafficWindow) {
		if v, ok := s.TotalBytes(); ok && v > 0 {
			sum += float64(v)
			n++
		}
	}
	if n == 0 {
		return snapshot.Anomaly{}, false
	}
	mean := sum / float64(n)
	if float64(current) <= d.Config.SpikeMultiplier*mean {
		return snapshot.Anomaly{}, false
	}
	return snapshot.Anomaly{
		Timestamp: snaps[i].Timestamp,
		Type:      snapshot.AnomalyTrafficSpike,
		Severity:  snapshot.SeverityWarning,
		Description: fmt.Sprintf("Traffic spike: %s vs %s average",
			snapshot.FormatBytes(current), snapshot.FormatBytesFloat(mean)),
		Details: map[string]string{
			"current_bytes": strconv.FormatUint(current, 10),
			"average_bytes": strconv.FormatFloat(mean, 'f', 0, 64),
			"ratio":         strconv.FormatFloat(float64(current)/mean, 'f', 1, 64),
			"samples":       strconv.Itoa(n),
		},
	}, true
}

func securityAlert(curr *snapshot.Snapshot) (snapshot.Anomaly, bool) {
	sec := curr.Security()
	if sec == nil {
		return snapshot.Anomaly{}, false
	}

	var (
		sev   snapshot.Severity
		level string
		count int
	)
	switch {
	case sec.CriticalCount > 0:
		sev, level, count = snapshot.SeverityCritical, snapshot.AlertCritical, sec.CriticalCount
	case sec.HighCount > 0:
		sev, level, count = snapshot.SeverityWarning, snapshot.AlertHigh, sec.HighCount
	default:
		return snapshot.Anomaly{}, false
	}

	details := map[string]string{
		"critical_count": strconv.Itoa(sec.CriticalCount),
		"high_count":     strconv.Itoa(sec.HighCount),
	}
	desc := fmt.Sprintf("%d %s security alert(s)", count, level)
	for _, a := range sec.RecentAlerts {
		if strings.EqualFold(a.Severity, level) {
			desc += ": " + a.Signature
			details["signature"] = a.Signature
			details["source_ip"] = a.SourceIP
			details["dest_ip"] = a.DestIP
			break
		}
	}
	return snapshot.Anomaly{
		Timestamp:   curr.Timestamp,
		Type:        snapshot.AnomalySecurityAlert,
		Severity:    sev,
		Description: desc,
		Details:     details,
	}, true
}

func (d *Detector) deviceCount(snaps []snapshot.Snapshot, i int) (snapshot.Anomaly, bool) {
	curr := snaps[i].Network
	if curr == nil {
		return snapshot.Anomaly{}, false
	}
	var sum float64
	var n int
	for _, s := range window(snaps, i, d.Config.CountWindow) {
		if s.Network != nil && s.Network.DeviceCount > 0 {
			sum += float64(s.Network.DeviceCount)
			n++
		}
	}
	if n < d.Config.CountMinSamples {
		return snapshot.Anomaly{}, false
	}
	mean := sum / float64(n)
	deviation := (float64(curr.DeviceCount) - mean) / mean
	if math.Abs(deviation) <= d.Config.CountDeviation {
		return snapshot.Anomaly{}, false
	}
	direction := "increase"
	if deviation < 0 {
		direction = "decrease"
	}
	return snapshot.Anomaly{
		Timestamp: snaps[i].Timestamp,
		Type:      snapshot.AnomalyDeviceCountAnomaly,
		Severity:  snapshot.SeverityWarning,
		Description: fmt.Sprintf("Device count %s: %d vs %.1f average (%+.0f%%)",
			direction, curr.DeviceCount, mean, deviation*100),
		Details: map[string]string{
			"current":   strconv.Itoa(curr.DeviceCount),
			"average":   strconv.FormatFloat(mean, 'f', 1, 64),
			"direction": direction,
			"samples":   strconv.Itoa(n),
		},
	}, true
}

func deviceLabel(d snapshot.Device) string {
	var extra []string
	if d.Hostname != "" {
		extra = append(extra, d.Hostname)
	}
	if d.Vendor != "" {
		extra = append(extra, d.Vendor)
	}
	if len(extra) == 0 {
		return d.IP
	}
	return d.IP + " (" + strings.Join(extra, ", ") + ")"
}
