// Package services holds the subsystem probes the collector fans out to.
package services

import (
	"context"
	"os/exec"

	"homewatch/internal/snapshot"
)

// Probe fills one part of a snapshot. The snapshot passed in is private to the
// call; the collector merges it into the result only when Probe returns nil.
type Probe interface {
	Name() string
	Probe(ctx context.Context, snap *snapshot.Snapshot) error
}

// UnavailableMarker is implemented by probes whose sub-record has an explicit
// "unavailable" shape instead of being left absent on failure.
type UnavailableMarker interface {
	MarkUnavailable(snap *snapshot.Snapshot)
}

// CommandRunner runs an external tool and returns its stdout. Probes that shell
// out take one so tests can feed canned output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
