package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"homewatch/internal/anomaly"
	"homewatch/internal/collector"
	"homewatch/internal/config"
	"homewatch/internal/database"
	"homewatch/internal/database/graph"
	"homewatch/internal/database/relational"
	"homewatch/internal/logging"
	"homewatch/internal/logstore"
	"homewatch/internal/metrics"
	"homewatch/internal/narrator"
	"homewatch/internal/output"
	"homewatch/internal/snapshot"
)

// stdout receives command output; logs go to stderr.
var stdout io.Writer = os.Stdout

// env is what every command needs: settings, a logger and the log store.
type env struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	store    *logstore.Store
	detector *anomaly.Detector
	narrator *narrator.Narrator
}

func setup(cmd *cli.Command) (*env, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if p := cmd.String("log-path"); p != "" {
		cfg.Store.Path = p
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	m := metrics.New(nil)

	path, err := logstore.ResolvePath(cfg.Store.Path, cfg.Store.ExternalVolume)
	if err != nil {
		return nil, err
	}
	store, err := logstore.New(path, logstore.WithLogger(logger), logstore.WithMetrics(m))
	if err != nil {
		return nil, err
	}
	logger.Debug("configured", zap.String("log", path), zap.String("version", version))

	return &env{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		store:    store,
		detector: anomaly.New(cfg.Detector),
		narrator: narrator.New(cfg.Narrator),
	}, nil
}

func (e *env) close() {
	_ = e.logger.Sync()
}

// window reads --since/--until relative to now.
func (e *env) window(ctx context.Context, cmd *cli.Command) ([]snapshot.Snapshot, error) {
	since, until, err := output.ParseWindow(cmd.String("since"), cmd.String("until"), time.Now())
	if err != nil {
		return nil, err
	}
	snaps, stats := e.store.QueryWithStats(ctx, since, until)
	if stats.Skipped > 0 {
		e.logger.Warn("skipped unreadable log lines", zap.Int("count", stats.Skipped))
	}
	return snaps, nil
}

// openGraph connects to Neo4j when configured. Failures are logged and yield nil.
func (e *env) openGraph() graph.GraphClient {
	if !e.cfg.Neo4j.Enabled() {
		return nil
	}
	g, err := graph.NewNeo4jClient(e.cfg.Neo4j)
	if err != nil {
		e.logger.Warn("graph mirror disabled", zap.Error(err))
		return nil
	}
	return g
}

// openWarehouse opens DuckDB when configured. Failures are logged and yield nil.
func (e *env) openWarehouse(ctx context.Context) *relational.Repo {
	if !e.cfg.DuckDB.Enabled() {
		return nil
	}
	repo, err := relational.OpenRepo(ctx, e.cfg.DuckDB)
	if err != nil {
		e.logger.Warn("duckdb mirror disabled", zap.Error(err))
		return nil
	}
	return repo
}

// newWorker builds the collection cycle. g and repo may be nil; the worker
// closes them on Stop.
func (e *env) newWorker(wcfg database.WorkerConfig, g graph.GraphClient, repo *relational.Repo) (*database.DataWorker, error) {
	col, err := collector.New(e.cfg.Collector,
		collector.WithLogger(e.logger),
		collector.WithMetrics(e.metrics))
	if err != nil {
		return nil, fmt.Errorf("collector: %w", err)
	}
	opts := []database.WorkerOption{
		database.WithWorkerLogger(e.logger),
		database.WithWorkerMetrics(e.metrics),
		database.WithDetector(e.detector),
	}
	if g != nil {
		opts = append(opts, database.WithGraph(g))
	}
	if repo != nil {
		opts = append(opts, database.WithWarehouse(repo))
	}
	return database.NewDataWorker(col, e.store, wcfg, opts...)
}

// atSnapshot keeps the anomalies raised by the snapshot taken at t.
func atSnapshot(anoms []snapshot.Anomaly, t time.Time) []snapshot.Anomaly {
	var out []snapshot.Anomaly
	for _, a := range anoms {
		if a.Timestamp.Equal(t) {
			out = append(out, a)
		}
	}
	return out
}

func formatFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "output format (table, json, yaml)",
		Value:   output.FormatTable,
	}
}

func windowFlags(defaultSince string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "since",
			Usage: "start of the window: a duration back from now (24h, 7d) or an RFC3339 time",
			Value: defaultSince,
		},
		&cli.StringFlag{
			Name:  "until",
			Usage: "end of the window, same forms as --since (default: now)",
		},
	}
}

// writeStructured writes v as json or yaml to w. It reports false for table
// output, leaving rendering to the caller.
func writeStructured(w io.Writer, cmd *cli.Command, v any) (bool, error) {
	format, err := output.ParseFormat(cmd.String("format"))
	if err != nil {
		return false, err
	}
	switch format {
	case output.FormatJSON:
		return true, output.WriteJSON(w, v)
	case output.FormatYAML:
		return true, output.WriteYAML(w, v)
	}
	return false, nil
}
