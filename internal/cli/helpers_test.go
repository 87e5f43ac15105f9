package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"homewatch/internal/logstore"
	"homewatch/internal/snapshot"
)

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in      string
		want    snapshot.Severity
		wantErr bool
	}{
		{in: "info", want: snapshot.SeverityInfo},
		{in: "warning", want: snapshot.SeverityWarning},
		{in: "critical", want: snapshot.SeverityCritical},
		{in: "loud", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSeverity(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewest(t *testing.T) {
	snaps := make([]snapshot.Snapshot, 5)
	for i := range snaps {
		snaps[i].ID = string(rune('a' + i))
	}
	assert.Len(t, newest(snaps, 0), 5)
	assert.Len(t, newest(snaps, 10), 5)
	got := newest(snaps, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "d", got[0].ID)
	assert.Equal(t, "e", got[1].ID)
}

func TestAtSnapshot(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	anoms := []snapshot.Anomaly{
		{Timestamp: at.Add(-5 * time.Minute), Type: snapshot.AnomalyDeviceGone},
		{Timestamp: at, Type: snapshot.AnomalyNewDevice},
	}
	got := atSnapshot(anoms, at)
	require.Len(t, got, 1)
	assert.Equal(t, snapshot.AnomalyNewDevice, got[0].Type)
	assert.Empty(t, atSnapshot(nil, at))
}

func TestWriteStructured(t *testing.T) {
	tests := []struct {
		format   string
		wantDone bool
		wantErr  bool
		contains string
	}{
		{format: "table"},
		{format: "json", wantDone: true, contains: `"type": "NewDevice"`},
		{format: "yaml", wantDone: true, contains: "type: NewDevice"},
		{format: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			cmd := &cli.Command{
				Flags: []cli.Flag{formatFlag()},
				Action: func(_ context.Context, c *cli.Command) error {
					done, err := writeStructured(&buf, c, []snapshot.Anomaly{{Type: snapshot.AnomalyNewDevice}})
					if tt.wantErr {
						assert.Error(t, err)
						return nil
					}
					require.NoError(t, err)
					assert.Equal(t, tt.wantDone, done)
					return nil
				},
			}
			require.NoError(t, cmd.Run(context.Background(), []string{"test", "--format", tt.format}))
			if tt.contains != "" {
				assert.Contains(t, buf.String(), tt.contains)
			}
		})
	}
}

// run executes the root command with HOME pointed at a temp dir and captures stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })

	err := Command().Run(context.Background(), append([]string{name}, args...))
	return buf.String(), err
}

func writeLog(t *testing.T, snaps ...snapshot.Snapshot) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshots.jsonl")
	store, err := logstore.New(path)
	require.NoError(t, err)
	for i := range snaps {
		require.NoError(t, store.Append(context.Background(), &snaps[i]))
	}
	return path
}

func TestQueryAndAnomaliesCommands(t *testing.T) {
	now := time.Now().UTC()
	path := writeLog(t,
		snapshot.Snapshot{Timestamp: now.Add(-10 * time.Minute), Network: &snapshot.NetworkInfo{DeviceCount: 1, Devices: []snapshot.Device{{IP: "192.168.1.10"}}}},
		snapshot.Snapshot{Timestamp: now.Add(-5 * time.Minute), Network: &snapshot.NetworkInfo{DeviceCount: 2, Devices: []snapshot.Device{{IP: "192.168.1.10"}, {IP: "192.168.1.20"}}}},
	)

	out, err := run(t, "--log-path", path, "query", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "192.168.1.20")

	out, err = run(t, "--log-path", path, "anomalies", "--min-severity", "warning")
	require.NoError(t, err)
	assert.Contains(t, out, "New device on network")

	out, err = run(t, "--log-path", path, "anomalies", "--min-severity", "critical")
	require.NoError(t, err)
	assert.Contains(t, out, "No anomalies detected")

	_, err = run(t, "--log-path", path, "anomalies", "--min-severity", "loud")
	assert.Error(t, err)
}

func TestCleanupCommand(t *testing.T) {
	now := time.Now().UTC()
	path := writeLog(t,
		snapshot.Snapshot{Timestamp: now.Add(-30 * 24 * time.Hour)},
		snapshot.Snapshot{Timestamp: now.Add(-time.Hour)},
	)

	out, err := run(t, "--log-path", path, "cleanup", "--days", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "Kept 1 snapshots, removed 1")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(data, []byte("\n")))
}

func TestExportRequiresDatabase(t *testing.T) {
	path := writeLog(t)
	_, err := run(t, "--log-path", path, "export-duckdb")
	assert.ErrorContains(t, err, "no DuckDB file configured")
}
