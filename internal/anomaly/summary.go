package anomaly

import (
	"sort"

	"homewatch/internal/snapshot"
)

// Summary counts anomalies for headers and metrics.
type Summary struct {
	Total      int
	BySeverity map[snapshot.Severity]int
	ByType     map[snapshot.AnomalyType]int
}

// Summarize counts anomalies by severity and type.
func Summarize(anoms []snapshot.Anomaly) Summary {
	s := Summary{
		Total:      len(anoms),
		BySeverity: map[snapshot.Severity]int{},
		ByType:     map[snapshot.AnomalyType]int{},
	}
	for _, a := range anoms {
		s.BySeverity[a.Severity]++
		s.ByType[a.Type]++
	}
	return s
}

// Highest returns the most severe level present, or "" when empty.
func (s Summary) Highest() snapshot.Severity {
	var best snapshot.Severity
	for sev, n := range s.BySeverity {
		if n > 0 && sev.Rank() > best.Rank() {
			best = sev
		}
	}
	return best
}

// Filter keeps anomalies at or above floor, preserving order.
func Filter(anoms []snapshot.Anomaly, floor snapshot.Severity) []snapshot.Anomaly {
	out := []snapshot.Anomaly{}
	for _, a := range anoms {
		if a.Severity.Rank() >= floor.Rank() {
			out = append(out, a)
		}
	}
	return out
}

// MostSevereFirst orders anomalies by severity, newest first within a level.
func MostSevereFirst(anoms []snapshot.Anomaly) []snapshot.Anomaly {
	out := append([]snapshot.Anomaly(nil), anoms...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Severity.Rank(), out[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}
