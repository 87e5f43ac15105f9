// Package logstore persists snapshots as newline-delimited JSON and answers
// time-range queries by linear scan.
package logstore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"homewatch/internal/logging"
	"homewatch/internal/metrics"
	"homewatch/internal/snapshot"
)

// DefaultRetentionDays is the retention window used when callers pass zero.
const DefaultRetentionDays = 7

// appendAttempts bounds how often Append reopens the file when a concurrent
// Cleanup renamed a new file over the one it opened.
const appendAttempts = 3

// ============================================================================
// STORE
// ============================================================================

// Store is the JSONL snapshot log. It holds no open handles between calls and is
// safe for concurrent use within and across processes.
type Store struct {
	path    string
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures the store.
type Option func(*Store)

// WithLogger sets the logger used for skipped lines and cleanup reports.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logging.OrNop(l).With(zap.String("mod", "logstore"))
	}
}

// WithMetrics records appends, skipped lines and cleanup counts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithClock overrides the time source used by Cleanup.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a store writing to path. The file and its directory are created on
// first append.
func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("log path required")
	}
	s := &Store{
		path:    path,
		logger:  zap.NewNop(),
		metrics: metrics.New(nil),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Path returns the log file location.
func (s *Store) Path() string {
	return s.path
}

// ============================================================================
// APPEND
// ============================================================================

// Append writes snap as a single line. The whole line goes out in one write on an
// O_APPEND handle under an exclusive advisory lock, so concurrent writers never
// interleave. I/O errors are returned to the caller.
func (s *Store) Append(ctx context.Context, snap *snapshot.Snapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	line, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	line = append(line, '\n')

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.metrics.Appends.WithLabelValues("error").Inc()
		return fmt.Errorf("create log directory: %w", err)
	}

	for attempt := 1; ; attempt++ {
		retry, err := s.appendOnce(ctx, line)
		if err != nil {
			s.metrics.Appends.WithLabelValues("error").Inc()
			return err
		}
		if !retry {
			break
		}
		if attempt == appendAttempts {
			s.metrics.Appends.WithLabelValues("error").Inc()
			return errors.New("append: log file kept being replaced")
		}
	}

	s.metrics.Appends.WithLabelValues("success").Inc()
	s.metrics.LastCollection.Set(float64(snap.Timestamp.Unix()))
	return nil
}

// appendOnce reports retry=true when the file it locked was renamed away by a
// cleanup in the meantime, in which case nothing was written.
func (s *Store) appendOnce(ctx context.Context, line []byte) (retry bool, err error) {
	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return false, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		return false, fmt.Errorf("lock log: %w", err)
	}
	defer unlockFile(f)

	if err := ctx.Err(); err != nil {
		return false, err
	}

	replaced, err := s.replacedSinceOpen(f)
	if err != nil {
		return false, err
	}
	if replaced {
		return true, nil
	}

	return false, writeRecord(f, line)
}

// logFile is the subset of *os.File that writeRecord needs.
type logFile interface {
	io.Writer
	io.ReaderAt
	Stat() (os.FileInfo, error)
	Truncate(size int64) error
}

// writeRecord appends line after the last complete record. A torn final line
// left by a crash is terminated first so the new record stays parseable, and a
// failed or short write is cut back to the previous size.
func writeRecord(f logFile, line []byte) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat log: %w", err)
	}
	size := info.Size()
	if size > 0 {
		var last [1]byte
		if _, err := f.ReadAt(last[:], size-1); err != nil {
			return fmt.Errorf("read log tail: %w", err)
		}
		if last[0] != '\n' {
			line = append([]byte{'\n'}, line...)
		}
	}

	n, err := f.Write(line)
	if err == nil && n != len(line) {
		err = io.ErrShortWrite
	}
	if err != nil {
		if terr := f.Truncate(size); terr != nil {
			return fmt.Errorf("write log: %w (rollback: %v)", err, terr)
		}
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func (s *Store) replacedSinceOpen(f *os.File) (bool, error) {
	opened, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat log: %w", err)
	}
	current, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat log: %w", err)
	}
	return !os.SameFile(opened, current), nil
}

// ============================================================================
// QUERY
// ============================================================================

// QueryStats reports what a read pass saw.
type QueryStats struct {
	Lines    int
	Skipped  int
	Returned int
}

// Query returns snapshots with since <= Timestamp <= until, in file order. Nil
// bounds are open. A missing or unreadable file yields an empty result.
func (s *Store) Query(ctx context.Context, since, until *time.Time) []snapshot.Snapshot {
	out, _ := s.QueryWithStats(ctx, since, until)
	return out
}

// QueryWithStats is Query plus a count of skipped corrupt lines.
func (s *Store) QueryWithStats(ctx context.Context, since, until *time.Time) ([]snapshot.Snapshot, QueryStats) {
	var stats QueryStats
	out := []snapshot.Snapshot{}

	err := s.scan(ctx, func(_ []byte, snap *snapshot.Snapshot) {
		stats.Lines++
		if snap == nil {
			stats.Skipped++
			return
		}
		if since != nil && snap.Timestamp.Before(*since) {
			return
		}
		if until != nil && snap.Timestamp.After(*until) {
			return
		}
		out = append(out, *snap)
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("log read failed, returning partial result", zap.String("path", s.path), zap.Error(err))
	}

	if stats.Skipped > 0 {
		s.metrics.SkippedLines.Add(float64(stats.Skipped))
		s.logger.Debug("skipped corrupt log lines", zap.Int("skipped", stats.Skipped))
	}
	stats.Returned = len(out)
	return out, stats
}

// Latest returns the last n snapshots in chronological order.
func (s *Store) Latest(ctx context.Context, n int) []snapshot.Snapshot {
	all := s.Query(ctx, nil, nil)
	if n <= 0 || len(all) <= n {
		return all
	}
	return all[len(all)-n:]
}

// scan calls fn for every non-blank line. snap is nil when the line does not
// parse. raw is only valid during the call.
func (s *Store) scan(ctx context.Context, fn func(raw []byte, snap *snapshot.Snapshot)) error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)
	for i := 0; ; i++ {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		line, readErr := r.ReadBytes('\n')
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 {
			fn(trimmed, decodeLine(trimmed))
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

func decodeLine(line []byte) *snapshot.Snapshot {
	var snap snapshot.Snapshot
	if err := json.Unmarshal(line, &snap); err != nil {
		return nil
	}
	if snap.Timestamp.IsZero() {
		return nil
	}
	return &snap
}

// ============================================================================
// CLEANUP
// ============================================================================

// CleanupResult summarises one retention pass.
type CleanupResult struct {
	Kept    int
	Removed int
	Corrupt int
}

// Cleanup drops snapshots older than retentionDays (DefaultRetentionDays when
// <= 0). The file is rewritten to a temp file in the same directory and renamed
// over the original, so an interrupted cleanup leaves the old log intact.
// Corrupt lines are dropped. A missing file is a no-op.
//
// An Append that lands between the read phase and the rename may be lost on that
// pass; the log is never truncated or duplicated.
func (s *Store) Cleanup(ctx context.Context, retentionDays int) (CleanupResult, error) {
	var res CleanupResult
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	cutoff := s.now().UTC().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	orig, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return res, nil
	}
	if err != nil {
		s.logger.Warn("cleanup skipped, log unreadable", zap.Error(err))
		return res, nil
	}
	defer orig.Close()

	// Hold the writer lock for the whole pass; appenders that queued on the old
	// inode reopen the new file after the rename.
	if err := lockFile(orig); err != nil {
		s.logger.Warn("cleanup skipped, cannot lock log", zap.Error(err))
		return res, nil
	}
	defer unlockFile(orig)

	var kept bytes.Buffer
	err = s.scan(ctx, func(raw []byte, snap *snapshot.Snapshot) {
		switch {
		case snap == nil:
			res.Corrupt++
		case snap.Timestamp.Before(cutoff):
			res.Removed++
		default:
			res.Kept++
			kept.Write(raw)
			kept.WriteByte('\n')
		}
	})
	if err != nil {
		s.logger.Warn("cleanup skipped, read failed", zap.Error(err))
		return CleanupResult{}, nil
	}
	if res.Removed == 0 && res.Corrupt == 0 {
		return res, nil
	}

	if err := s.replaceFile(ctx, kept.Bytes()); err != nil {
		s.logger.Error("cleanup rewrite failed, original log kept", zap.Error(err))
		return CleanupResult{}, err
	}

	s.metrics.CleanupRemoved.Add(float64(res.Removed))
	s.logger.Info("retention cleanup complete",
		zap.Int("kept", res.Kept),
		zap.Int("removed", res.Removed),
		zap.Int("corrupt", res.Corrupt),
		zap.Time("cutoff", cutoff))
	return res, nil
}

func (s *Store) replaceFile(ctx context.Context, content []byte) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp log: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp log: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp log: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp log: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename temp log: %w", err)
	}
	committed = true
	return nil
}
