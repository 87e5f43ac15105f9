package snapshot

import "time"

// AnomalyType classifies a noteworthy change between consecutive snapshots.
type AnomalyType string

const (
	AnomalyNewDevice          AnomalyType = "NewDevice"
	AnomalyDeviceGone         AnomalyType = "DeviceGone"
	AnomalyTrafficSpike       AnomalyType = "TrafficSpike"
	AnomalySecurityAlert      AnomalyType = "SecurityAlert"
	AnomalyDeviceCountAnomaly AnomalyType = "DeviceCountAnomaly"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities so callers can filter by a minimum level.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Anomaly is derived fresh from a snapshot sequence and never persisted.
type Anomaly struct {
	Timestamp   time.Time         `json:"timestamp"`
	Type        AnomalyType       `json:"type"`
	Severity    Severity          `json:"severity"`
	Description string            `json:"description"`
	Details     map[string]string `json:"details,omitempty"`
}
