package anomaly

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"homewatch/internal/snapshot"
)

func sample() []snapshot.Anomaly {
	return []snapshot.Anomaly{
		{Timestamp: at(1), Type: snapshot.AnomalyNewDevice, Severity: snapshot.SeverityWarning},
		{Timestamp: at(2), Type: snapshot.AnomalyDeviceGone, Severity: snapshot.SeverityInfo},
		{Timestamp: at(3), Type: snapshot.AnomalySecurityAlert, Severity: snapshot.SeverityCritical},
		{Timestamp: at(4), Type: snapshot.AnomalyNewDevice, Severity: snapshot.SeverityWarning},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sample())
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.BySeverity[snapshot.SeverityWarning])
	assert.Equal(t, 1, s.BySeverity[snapshot.SeverityCritical])
	assert.Equal(t, 2, s.ByType[snapshot.AnomalyNewDevice])
	assert.Equal(t, snapshot.SeverityCritical, s.Highest())

	empty := Summarize(nil)
	assert.Zero(t, empty.Total)
	assert.Equal(t, snapshot.Severity(""), empty.Highest())
}

func TestFilter(t *testing.T) {
	assert.Len(t, Filter(sample(), snapshot.SeverityInfo), 4)
	assert.Len(t, Filter(sample(), snapshot.SeverityWarning), 3)

	crit := Filter(sample(), snapshot.SeverityCritical)
	assert.Len(t, crit, 1)
	assert.Equal(t, snapshot.AnomalySecurityAlert, crit[0].Type)

	assert.NotNil(t, Filter(nil, snapshot.SeverityInfo))
}

func TestMostSevereFirst(t *testing.T) {
	in := sample()
	got := MostSevereFirst(in)
	assert.Equal(t, snapshot.SeverityCritical, got[0].Severity)
	assert.Equal(t, at(4), got[1].Timestamp)
	assert.Equal(t, at(1), got[2].Timestamp)
	assert.Equal(t, snapshot.SeverityInfo, got[3].Severity)
	assert.Equal(t, at(1), in[0].Timestamp, "input reordered")
}
