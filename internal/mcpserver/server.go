// Package mcpserver exposes the observation log, detector, narrator and the
// optional mirrors as MCP tools over stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"homewatch/internal/anomaly"
	"homewatch/internal/collector"
	"homewatch/internal/database/graph"
	"homewatch/internal/database/rag"
	"homewatch/internal/database/relational"
	"homewatch/internal/logging"
	"homewatch/internal/logstore"
	"homewatch/internal/narrator"
	"homewatch/internal/output"
	"homewatch/internal/snapshot"
)

// ============================================================================
// DEPENDENCIES
// ============================================================================

// HistoryStore is the read side of the log.
type HistoryStore interface {
	QueryWithStats(ctx context.Context, since, until *time.Time) ([]snapshot.Snapshot, logstore.QueryStats)
}

// Cycler runs one observation cycle. *database.DataWorker implements it.
type Cycler interface {
	PullOnce(ctx context.Context) (*output.PipelinePayload, error)
}

// Advisor answers free-form questions. *rag.Engine implements it.
type Advisor interface {
	Ask(ctx context.Context, question string, d rag.Digest) (string, error)
}

// Warehouse serves snapshot summaries from DuckDB.
type Warehouse interface {
	QuerySnapshots(ctx context.Context, hostname string, limit int) ([]relational.SnapshotSummary, error)
}

// Deps wires the server. Only Store is required; tools whose backing
// component is nil are not registered.
type Deps struct {
	Store     HistoryStore
	Detector  output.AnomalyDetector
	Narrator  *narrator.Narrator
	Worker    Cycler
	Advisor   Advisor
	Graph     graph.GraphClient
	Warehouse Warehouse
	Logger    *zap.Logger
}

// Config holds configuration for the MCP server.
type Config struct {
	ServerName    string
	ServerVersion string
	DefaultSince  string // window used when a tool gets no since, default: 24h
	MaxSnapshots  int    // cap on query_snapshots results, default: 500
}

func DefaultConfig() Config {
	return Config{
		ServerName:    "homewatch",
		ServerVersion: "dev",
		DefaultSince:  "24h",
		MaxSnapshots:  500,
	}
}

// Server wraps the MCP server with homewatch capabilities.
type Server struct {
	mcpServer *mcp.Server
	cfg       Config

	store     HistoryStore
	detector  output.AnomalyDetector
	narrator  *narrator.Narrator
	worker    Cycler
	advisor   Advisor
	graph     graph.GraphClient
	warehouse Warehouse
	logger    *zap.Logger
	now       func() time.Time
}

// NewServer creates a new MCP server instance.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Store == nil {
		return nil, errors.New("mcpserver: a snapshot store is required")
	}
	d := DefaultConfig()
	if cfg.ServerName == "" {
		cfg.ServerName = d.ServerName
	}
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = d.ServerVersion
	}
	if cfg.DefaultSince == "" {
		cfg.DefaultSince = d.DefaultSince
	}
	if cfg.MaxSnapshots <= 0 {
		cfg.MaxSnapshots = d.MaxSnapshots
	}

	s := newServer(cfg, deps)
	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    cfg.ServerName,
		Version: cfg.ServerVersion,
	}, nil)
	s.registerTools()
	return s, nil
}

func newServer(cfg Config, deps Deps) *Server {
	s := &Server{
		cfg:       cfg,
		store:     deps.Store,
		detector:  deps.Detector,
		narrator:  deps.Narrator,
		worker:    deps.Worker,
		advisor:   deps.Advisor,
		graph:     deps.Graph,
		warehouse: deps.Warehouse,
		logger:    logging.OrNop(deps.Logger).With(zap.String("mod", "mcp")),
		now:       time.Now,
	}
	if s.detector == nil {
		s.detector = anomaly.New(anomaly.DefaultConfig())
	}
	if s.narrator == nil {
		s.narrator = narrator.New(narrator.DefaultConfig())
	}
	return s
}

// ============================================================================
// TOOL SCHEMAS
// ============================================================================

// WindowArgs bounds a history read.
type WindowArgs struct {
	Since string `json:"since,omitempty" jsonschema:"start of the window: a duration back from now like 24h or 7d, or RFC3339; default 24h"`
	Until string `json:"until,omitempty" jsonschema:"end of the window: a duration back from now or RFC3339; default now"`
}

type QuerySnapshotsArgs struct {
	WindowArgs
	Limit int `json:"limit,omitempty" jsonschema:"maximum snapshots to return, newest kept"`
}

type QuerySnapshotsResult struct {
	Snapshots []snapshot.Snapshot `json:"snapshots" jsonschema:"snapshots in chronological order"`
	Matched   int                 `json:"matched" jsonschema:"snapshots in the window before truncation"`
	Skipped   int                 `json:"skipped" jsonschema:"corrupt log lines skipped while reading"`
}

type DetectAnomaliesArgs struct {
	WindowArgs
	MinSeverity string `json:"min_severity,omitempty" jsonschema:"lowest severity to return: info, warning or critical"`
}

type DetectAnomaliesResult struct {
	Anomalies []snapshot.Anomaly `json:"anomalies" jsonschema:"detected anomalies, most severe first"`
	Scanned   int                `json:"scanned" jsonschema:"snapshots analysed"`
	Highest   string             `json:"highest,omitempty" jsonschema:"highest severity found"`
}

type BuildNarrativeResult struct {
	Narrative string `json:"narrative" jsonschema:"prose digest of the window"`
	Snapshots int    `json:"snapshots" jsonschema:"snapshots in the window"`
	Anomalies int    `json:"anomalies" jsonschema:"anomalies included in the digest"`
}

type CollectSnapshotArgs struct{}

type CollectSnapshotResult struct {
	Snapshot    *snapshot.Snapshot `json:"snapshot" jsonschema:"the recorded snapshot"`
	Anomalies   []snapshot.Anomaly `json:"anomalies,omitempty" jsonschema:"anomalies raised by this snapshot"`
	ProbeErrors []string           `json:"probe_errors,omitempty" jsonschema:"probes that failed"`
}

type AskArgs struct {
	WindowArgs
	Question string `json:"question" jsonschema:"the question to ask about the homelab"`
}

type AskResult struct {
	Answer string `json:"answer" jsonschema:"AI-generated answer"`
}

// QueryGraphArgs defines the input for query_graph tool.
type QueryGraphArgs struct {
	Cypher string `json:"cypher" jsonschema:"read-only Cypher query to execute"`
}

// QueryGraphResult wraps graph query results.
type QueryGraphResult struct {
	Data []map[string]any `json:"data" jsonschema:"query results"`
}

type HistoricalSnapshotsArgs struct {
	Hostname string `json:"hostname,omitempty" jsonschema:"hostname to filter by"`
	Limit    int    `json:"limit,omitempty" jsonschema:"number of snapshots to return"`
}

type HistoricalSnapshotsResult struct {
	Snapshots []relational.SnapshotSummary `json:"snapshots" jsonschema:"snapshot summaries, newest first"`
}

// ============================================================================
// REGISTRATION
// ============================================================================

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "query_snapshots",
		Description: "Read raw homelab snapshots from the observation log for a time window. Each snapshot may lack any subsystem (system, docker, tailscale, network, power, speedtest); a missing field means the data was unavailable.",
	}, s.handleQuerySnapshots)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "detect_anomalies",
		Description: "Run anomaly detection over a window: new or departed devices, traffic spikes, security alerts and device count swings.",
	}, s.handleDetectAnomalies)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "build_narrative",
		Description: "Summarise a window of history as prose: gaps (sleep or outages), power events, VPN connectivity, container, service and device changes, security and traffic.",
	}, s.handleBuildNarrative)

	if s.worker != nil {
		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        "collect_snapshot",
			Description: "Take a new snapshot now, append it to the log and return it with any anomalies it raised.",
		}, s.handleCollectSnapshot)
	}

	if s.advisor != nil {
		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        "ask_homewatch",
			Description: "Ask a free-form question about the homelab. The history digest and anomalies for the window are sent to Gemini, together with graph context when Neo4j is configured.",
		}, s.handleAsk)
	}

	if s.graph != nil {
		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        "query_graph",
			Description: "Execute read-only Cypher on the Neo4j mirror. Nodes: Host, Snapshot, Device, Container, Service, Alert, Anomaly.",
		}, s.handleQueryGraph)
	}

	if s.warehouse != nil {
		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        "get_historical_snapshots",
			Description: "Query snapshot summaries from the DuckDB mirror, newest first, with anomaly and error counts.",
		}, s.handleGetHistoricalSnapshots)
	}
}

// ============================================================================
// HANDLERS
// ============================================================================

func (s *Server) window(ctx context.Context, args WindowArgs) ([]snapshot.Snapshot, logstore.QueryStats, error) {
	since := args.Since
	if since == "" {
		since = s.cfg.DefaultSince
	}
	from, to, err := output.ParseWindow(since, args.Until, s.now())
	if err != nil {
		return nil, logstore.QueryStats{}, err
	}
	snaps, stats := s.store.QueryWithStats(ctx, from, to)
	return snaps, stats, nil
}

func (s *Server) handleQuerySnapshots(ctx context.Context, _ *mcp.CallToolRequest, args QuerySnapshotsArgs) (*mcp.CallToolResult, QuerySnapshotsResult, error) {
	snaps, stats, err := s.window(ctx, args.WindowArgs)
	if err != nil {
		return nil, QuerySnapshotsResult{}, err
	}
	limit := args.Limit
	if limit <= 0 || limit > s.cfg.MaxSnapshots {
		limit = s.cfg.MaxSnapshots
	}
	res := QuerySnapshotsResult{Snapshots: snaps, Matched: len(snaps), Skipped: stats.Skipped}
	if len(snaps) > limit {
		res.Snapshots = snaps[len(snaps)-limit:]
	}
	return nil, res, nil
}

func (s *Server) handleDetectAnomalies(ctx context.Context, _ *mcp.CallToolRequest, args DetectAnomaliesArgs) (*mcp.CallToolResult, DetectAnomaliesResult, error) {
	floor := snapshot.SeverityInfo
	if args.MinSeverity != "" {
		floor = snapshot.Severity(args.MinSeverity)
		if floor.Rank() == 0 {
			return nil, DetectAnomaliesResult{}, fmt.Errorf("invalid min_severity %q (want info, warning or critical)", args.MinSeverity)
		}
	}
	snaps, _, err := s.window(ctx, args.WindowArgs)
	if err != nil {
		return nil, DetectAnomaliesResult{}, err
	}
	anoms := anomaly.MostSevereFirst(anomaly.Filter(s.detector.Detect(snaps), floor))
	res := DetectAnomaliesResult{Anomalies: anoms, Scanned: len(snaps)}
	if len(anoms) > 0 {
		res.Highest = string(anomaly.Summarize(anoms).Highest())
	}
	if res.Anomalies == nil {
		res.Anomalies = []snapshot.Anomaly{}
	}
	return nil, res, nil
}

func (s *Server) handleBuildNarrative(ctx context.Context, _ *mcp.CallToolRequest, args WindowArgs) (*mcp.CallToolResult, BuildNarrativeResult, error) {
	snaps, _, err := s.window(ctx, args)
	if err != nil {
		return nil, BuildNarrativeResult{}, err
	}
	anoms := s.detector.Detect(snaps)
	n := s.narrator.Build(snaps).WithAnomalies(anoms)
	return nil, BuildNarrativeResult{Narrative: n.Prose(), Snapshots: len(snaps), Anomalies: len(anoms)}, nil
}

func (s *Server) handleCollectSnapshot(ctx context.Context, _ *mcp.CallToolRequest, _ CollectSnapshotArgs) (*mcp.CallToolResult, CollectSnapshotResult, error) {
	payload, err := s.worker.PullOnce(ctx)
	if err != nil {
		return nil, CollectSnapshotResult{}, fmt.Errorf("collect failed: %w", err)
	}
	res := CollectSnapshotResult{Snapshot: payload.Snapshot}
	for _, a := range payload.Anomalies {
		if a.Timestamp.Equal(payload.Snapshot.Timestamp) {
			res.Anomalies = append(res.Anomalies, a)
		}
	}
	for _, p := range payload.Probes {
		if !p.OK() {
			res.ProbeErrors = append(res.ProbeErrors, probeError(p))
		}
	}
	return nil, res, nil
}

func (s *Server) handleAsk(ctx context.Context, _ *mcp.CallToolRequest, args AskArgs) (*mcp.CallToolResult, AskResult, error) {
	snaps, _, err := s.window(ctx, args.WindowArgs)
	if err != nil {
		return nil, AskResult{}, err
	}
	anoms := s.detector.Detect(snaps)
	digest := rag.Digest{Prose: s.narrator.Build(snaps).WithAnomalies(anoms).Prose(), Anomalies: anoms}
	if len(snaps) == 0 {
		digest.Prose = ""
	}

	answer, err := s.advisor.Ask(ctx, args.Question, digest)
	if err != nil {
		return nil, AskResult{}, fmt.Errorf("RAG query failed: %w", err)
	}
	return nil, AskResult{Answer: answer}, nil
}

func (s *Server) handleQueryGraph(ctx context.Context, _ *mcp.CallToolRequest, args QueryGraphArgs) (*mcp.CallToolResult, QueryGraphResult, error) {
	if args.Cypher == "" {
		return nil, QueryGraphResult{}, errors.New("cypher is required")
	}
	query, err := graph.PrepareReadQuery(args.Cypher)
	if err != nil {
		return nil, QueryGraphResult{}, err
	}
	result, err := s.graph.ExecuteCypher(ctx, query)
	if err != nil {
		return nil, QueryGraphResult{}, fmt.Errorf("cypher query failed: %w", err)
	}
	return nil, QueryGraphResult{Data: result}, nil
}

func (s *Server) handleGetHistoricalSnapshots(ctx context.Context, _ *mcp.CallToolRequest, args HistoricalSnapshotsArgs) (*mcp.CallToolResult, HistoricalSnapshotsResult, error) {
	limit := args.Limit
	if limit == 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	snapshots, err := s.warehouse.QuerySnapshots(ctx, args.Hostname, limit)
	if err != nil {
		return nil, HistoricalSnapshotsResult{}, fmt.Errorf("failed to query snapshots: %w", err)
	}
	return nil, HistoricalSnapshotsResult{Snapshots: snapshots}, nil
}

func probeError(p collector.ProbeResult) string {
	return fmt.Sprintf("%s: %v", p.Name, p.Err)
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Start serves MCP over stdio until ctx is cancelled or the client hangs up.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio", zap.String("name", s.cfg.ServerName))
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}
