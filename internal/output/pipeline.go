package output

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"

	"homewatch/internal/collector"
	"homewatch/internal/snapshot"
)

// PipelinePayload is the result of one observation cycle.
type PipelinePayload struct {
	Snapshot *snapshot.Snapshot
	Probes   []collector.ProbeResult

	// Anomalies detected over the trailing window ending at Snapshot.
	Anomalies []snapshot.Anomaly
}

// SnapshotCollector assembles one snapshot and reports per-probe outcomes.
type SnapshotCollector interface {
	Collect(ctx context.Context, opts ...collector.CollectOption) (*snapshot.Snapshot, []collector.ProbeResult)
}

// SnapshotLog is the persistence side of the pipeline.
type SnapshotLog interface {
	Append(ctx context.Context, snap *snapshot.Snapshot) error
	Latest(ctx context.Context, n int) []snapshot.Snapshot
}

// AnomalyDetector runs over a chronological window of snapshots.
type AnomalyDetector interface {
	Detect(snaps []snapshot.Snapshot) []snapshot.Anomaly
}

type PipelineConfig struct {
	AppendAttempts uint          // default: 3
	AppendDelay    time.Duration // initial backoff, default: 200ms
	Window         int           // snapshots fed to the detector, default: 12

	CollectOptions []collector.CollectOption
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		AppendAttempts: 3,
		AppendDelay:    200 * time.Millisecond,
		Window:         12,
	}
}

// RunPipeline executes one cycle: Collect -> Append (with retry) -> Detect.
// The detector is optional. A failed append returns the payload alongside the
// error so callers can still report what was collected.
func RunPipeline(
	ctx context.Context,
	col SnapshotCollector,
	log SnapshotLog,
	det AnomalyDetector,
	cfg PipelineConfig,
) (*PipelinePayload, error) {
	d := DefaultPipelineConfig()
	if cfg.AppendAttempts == 0 {
		cfg.AppendAttempts = d.AppendAttempts
	}
	if cfg.AppendDelay <= 0 {
		cfg.AppendDelay = d.AppendDelay
	}
	if cfg.Window <= 1 {
		cfg.Window = d.Window
	}

	// 1. Collect
	snap, probes := col.Collect(ctx, cfg.CollectOptions...)
	payload := &PipelinePayload{Snapshot: snap, Probes: probes}

	// 2. Persist
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(cfg.AppendAttempts),
		retry.Delay(cfg.AppendDelay),
		retry.DelayType(retry.BackOffDelay),
	)
	if err := r.Do(func() error { return log.Append(ctx, snap) }); err != nil {
		return payload, fmt.Errorf("append snapshot: %w", err)
	}

	// 3. Detect over the trailing window, which now ends with snap
	if det != nil {
		payload.Anomalies = det.Detect(log.Latest(ctx, cfg.Window))
	}
	return payload, nil
}
