package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"homewatch/internal/anomaly"
	"homewatch/internal/collector"
	"homewatch/internal/database/graph"
	"homewatch/internal/database/relational"
	"homewatch/internal/logging"
	"homewatch/internal/logstore"
	"homewatch/internal/metrics"
	"homewatch/internal/output"
	"homewatch/internal/snapshot"
)

// ============================================================================
// CONFIGURATION
// ============================================================================

type WorkerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`         // default: 5m
	CleanupEvery    int           `mapstructure:"cleanup_every"`    // cycles between retention passes, 0 disables; default: 12
	SpeedtestEvery  int           `mapstructure:"speedtest_every"`  // cycles between speed tests, 0 disables
	AppendAttempts  uint          `mapstructure:"append_attempts"`  // default: 3
	DetectWindow    int           `mapstructure:"detect_window"`    // default: 12
	MetricsTextfile string        `mapstructure:"metrics_textfile"` // node_exporter textfile, empty disables

	// RetentionDays comes from the store section.
	RetentionDays int `mapstructure:"-"`
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Interval:       5 * time.Minute,
		CleanupEvery:   12,
		AppendAttempts: 3,
		DetectWindow:   12,
		RetentionDays:  logstore.DefaultRetentionDays,
	}
}

func (c WorkerConfig) Validate() error {
	if c.Interval < time.Second {
		return fmt.Errorf("scheduler.interval: must be at least 1s, got %s", c.Interval)
	}
	if c.CleanupEvery < 0 || c.SpeedtestEvery < 0 {
		return errors.New("scheduler: cleanup_every and speedtest_every must not be negative")
	}
	if c.AppendAttempts == 0 {
		return errors.New("scheduler.append_attempts: must be at least 1")
	}
	return nil
}

// ============================================================================
// WORKER
// ============================================================================

// SnapshotStore is the log the worker appends to and prunes.
type SnapshotStore interface {
	output.SnapshotLog
	Cleanup(ctx context.Context, retentionDays int) (logstore.CleanupResult, error)
}

// DataWorker orchestrates the observation cycle: Collector -> Log -> Detector,
// then mirrors to DuckDB and the graph and prunes on a slower cadence.
type DataWorker struct {
	collector   output.SnapshotCollector
	store       SnapshotStore
	detector    output.AnomalyDetector
	graphClient graph.GraphClient
	warehouse   relational.SnapshotRepository
	cfg         WorkerConfig
	logger      *zap.Logger
	metrics     *metrics.Metrics

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup

	// execMu serialises cycles so a manual PullOnce never overlaps the ticker.
	// closed and pushes are only touched under it.
	execMu sync.Mutex
	cycle  int
	closed bool
	pushes sync.WaitGroup
}

type WorkerOption func(*DataWorker)

func WithWorkerLogger(l *zap.Logger) WorkerOption {
	return func(w *DataWorker) { w.logger = logging.OrNop(l).With(zap.String("mod", "scheduler")) }
}

func WithWorkerMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *DataWorker) {
		if m != nil {
			w.metrics = m
		}
	}
}

// WithGraph mirrors every appended snapshot into g. A nil g is ignored.
func WithGraph(g graph.GraphClient) WorkerOption {
	return func(w *DataWorker) { w.graphClient = g }
}

// WithWarehouse inserts every appended snapshot into repo. A nil repo is ignored.
func WithWarehouse(repo relational.SnapshotRepository) WorkerOption {
	return func(w *DataWorker) { w.warehouse = repo }
}

func WithDetector(d output.AnomalyDetector) WorkerOption {
	return func(w *DataWorker) { w.detector = d }
}

// NewDataWorker creates a new worker instance.
func NewDataWorker(c output.SnapshotCollector, s SnapshotStore, cfg WorkerConfig, opts ...WorkerOption) (*DataWorker, error) {
	if c == nil || s == nil {
		return nil, errors.New("collector and store are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w := &DataWorker{
		collector: c,
		store:     s,
		detector:  anomaly.New(anomaly.DefaultConfig()),
		cfg:       cfg,
		logger:    zap.NewNop(),
		metrics:   metrics.New(nil),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins the periodic collection loop. The first cycle runs immediately.
func (w *DataWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("worker already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.wg.Add(1)
	w.mu.Unlock()

	w.logger.Info("scheduler started", zap.Duration("interval", w.cfg.Interval))
	go w.loop(ctx)
	return nil
}

// Stop cancels the loop, waits for in-flight cycles and graph pushes, then
// closes the mirrors. Cycles run after Stop still append to the log but skip
// the mirrors.
func (w *DataWorker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.running = false
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()

	w.execMu.Lock()
	alreadyClosed := w.closed
	w.closed = true
	w.execMu.Unlock()
	if alreadyClosed {
		return
	}
	w.pushes.Wait()

	if w.graphClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := w.graphClient.Close(ctx); err != nil {
			w.logger.Warn("graph close failed", zap.Error(err))
		}
	}
	if w.warehouse != nil {
		if err := w.warehouse.Close(); err != nil {
			w.logger.Warn("warehouse close failed", zap.Error(err))
		}
	}
	w.logger.Info("scheduler stopped")
}

// PullOnce executes a single collection cycle immediately.
func (w *DataWorker) PullOnce(ctx context.Context) (*output.PipelinePayload, error) {
	return w.execute(ctx)
}

func (w *DataWorker) loop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	run := func() {
		if _, err := w.execute(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("cycle failed", zap.Error(err))
		}
	}

	run()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

func (w *DataWorker) execute(ctx context.Context) (*output.PipelinePayload, error) {
	w.execMu.Lock()
	defer w.execMu.Unlock()
	w.cycle++
	cycle := w.cycle

	pcfg := output.DefaultPipelineConfig()
	pcfg.AppendAttempts = w.cfg.AppendAttempts
	if w.cfg.DetectWindow > 1 {
		pcfg.Window = w.cfg.DetectWindow
	}
	if every := w.cfg.SpeedtestEvery; every > 0 && (cycle-1)%every == 0 {
		pcfg.CollectOptions = append(pcfg.CollectOptions, collector.IncludeSpeedtest())
	}

	// Run the pipeline via the Output layer (the "lever")
	payload, err := output.RunPipeline(ctx, w.collector, w.store, w.detector, pcfg)
	if err != nil {
		w.writeMetrics()
		return payload, fmt.Errorf("pipeline execution failed: %w", err)
	}

	snap := payload.Snapshot
	w.logger.Info("snapshot recorded",
		zap.Int("cycle", cycle),
		zap.Time("timestamp", snap.Timestamp),
		zap.Int("errors", len(snap.Errors)),
		zap.Int("anomalies", len(payload.Anomalies)))
	for _, a := range anomaly.Filter(payload.Anomalies, snapshot.SeverityWarning) {
		if a.Timestamp.Equal(snap.Timestamp) {
			w.logger.Warn("anomaly", zap.String("type", string(a.Type)), zap.String("severity", string(a.Severity)), zap.String("description", a.Description))
		}
	}

	// Mirror to DuckDB; the log already has the snapshot, so failures only warn
	if w.warehouse != nil && !w.closed {
		if _, err := w.warehouse.InsertSnapshot(ctx, snap, payload.Anomalies); err != nil {
			w.logger.Warn("warehouse insert failed", zap.Error(err))
		}
	}

	// Push to Graph DB asynchronously
	if w.graphClient != nil && !w.closed {
		w.pushes.Add(1)
		go func() {
			defer w.pushes.Done()
			// Detached so a stopping worker still finishes the push.
			pushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := w.graphClient.IngestSnapshot(pushCtx, payload); err != nil {
				w.logger.Warn("graph ingest failed", zap.Error(err))
			}
		}()
	}

	if every := w.cfg.CleanupEvery; every > 0 && cycle%every == 0 {
		if _, err := w.store.Cleanup(ctx, w.cfg.RetentionDays); err != nil {
			w.logger.Error("retention cleanup failed", zap.Error(err))
		}
	}

	w.recordAnalysis(payload)
	w.writeMetrics()
	return payload, nil
}

func (w *DataWorker) recordAnalysis(p *output.PipelinePayload) {
	w.metrics.LastCollection.Set(float64(p.Snapshot.Timestamp.Unix()))
	sum := anomaly.Summarize(p.Anomalies)
	for _, sev := range []snapshot.Severity{snapshot.SeverityInfo, snapshot.SeverityWarning, snapshot.SeverityCritical} {
		w.metrics.Anomalies.WithLabelValues(string(sev)).Set(float64(sum.BySeverity[sev]))
	}
}

func (w *DataWorker) writeMetrics() {
	if err := w.metrics.WriteTextfile(w.cfg.MetricsTextfile); err != nil {
		w.logger.Warn("metrics textfile write failed", zap.String("path", w.cfg.MetricsTextfile), zap.Error(err))
	}
}
