package relational

import (
	"context"

	"homewatch/internal/snapshot"
)

// =============================================================================
// CORE INTERFACES
// =============================================================================

// SnapshotRepository mirrors snapshots into a queryable warehouse.
type SnapshotRepository interface {
	// Migrate creates or updates the database schema.
	Migrate(ctx context.Context) error
	// InsertSnapshot persists one snapshot and the anomalies raised at it.
	InsertSnapshot(ctx context.Context, snap *snapshot.Snapshot, anomalies []snapshot.Anomaly) (InsertResult, error)
	// QuerySnapshots returns the newest summaries first.
	QuerySnapshots(ctx context.Context, hostname string, limit int) ([]SnapshotSummary, error)
	// Close releases database resources.
	Close() error
}

var _ SnapshotRepository = (*Repo)(nil)
