package state

import (
	"time"

	"homewatch/internal/engine"
	"homewatch/internal/narrator"
	"homewatch/internal/snapshot"
)

type Page int

const (
	PageMenu      Page = iota
	PageTimeline       // "Timeline"
	PageDashboard      // "Latest Snapshot"
	PageAnomalies      // "Anomalies"
	PageNarrative      // "History Digest"
	PageNetwork        // "Network & Devices"
)

// AppState holds the loaded history window and everything derived from it.
type AppState struct {
	Snapshots  []snapshot.Snapshot
	Latest     *snapshot.Snapshot
	Results    []engine.CheckResult
	Anomalies  []snapshot.Anomaly // most severe first
	Narrative  narrator.Narrative
	Window     time.Duration
	LastUpdate time.Time
	Loading    bool
	Err        error

	CurrentPage Page
}
