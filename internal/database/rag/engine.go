// Package rag answers questions about the homelab by handing Gemini the
// narrated history, the detected anomalies and, when a graph is configured,
// the result of a generated Cypher query.
package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"homewatch/internal/database/graph"
	"homewatch/internal/snapshot"
)

// ModelConfig defines configuration for a Gemini model.
type ModelConfig struct {
	Name        string
	Temperature float32
	TopP        float32
	TopK        int32
}

// AvailableModels defines the available Gemini models and their configurations.
var AvailableModels = map[string]ModelConfig{
	"flash": {
		Name:        "gemini-flash-latest",
		Temperature: 0.4,
		TopP:        0.95,
		TopK:        40,
	},
	"pro": {
		Name:        "gemini-pro-latest",
		Temperature: 0.4,
		TopP:        0.95,
		TopK:        40,
	},
	"flash-2": {
		Name:        "gemini-2.0-flash",
		Temperature: 0.4,
		TopP:        0.95,
		TopK:        40,
	},
}

type Config struct {
	APIKey string  `mapstructure:"api_key"`
	Model  string  `mapstructure:"model"` // key into AvailableModels, default: flash
	RPS    float64 `mapstructure:"rps"`   // Gemini calls per second, default: 0.5
}

func DefaultConfig() Config {
	return Config{Model: "flash", RPS: 0.5}
}

// Enabled reports whether an API key is configured.
func (c Config) Enabled() bool { return c.APIKey != "" }

// ============================================================================
// GENERATOR
// ============================================================================

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator calls a Gemini model.
type GeminiGenerator struct {
	client *genai.Client
	config ModelConfig
}

// NewGeminiGenerator falls back to the flash model for unknown keys.
func NewGeminiGenerator(ctx context.Context, apiKey, modelKey string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is not set")
	}
	cfg, ok := AvailableModels[modelKey]
	if !ok {
		cfg = AvailableModels["flash"]
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, config: cfg}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	model := g.client.GenerativeModel(g.config.Name)
	model.SetTemperature(g.config.Temperature)
	model.SetTopP(g.config.TopP)
	model.SetTopK(g.config.TopK)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from Gemini")
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		fmt.Fprintf(&b, "%v", p)
	}
	return b.String(), nil
}

func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}

// ============================================================================
// ENGINE
// ============================================================================

// Digest is the local context sent with every question.
type Digest struct {
	Prose     string
	Anomalies []snapshot.Anomaly
}

// Engine handles retrieval augmented generation over the history digest and,
// optionally, the graph mirror.
type Engine struct {
	gen     Generator
	graph   graph.GraphClient
	limiter *rate.Limiter
}

// NewEngine wires a generator with an optional graph client. rps <= 0 disables
// rate limiting.
func NewEngine(gen Generator, g graph.GraphClient, rps float64) *Engine {
	lim := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &Engine{gen: gen, graph: g, limiter: lim}
}

// DefaultQuestion is asked when the caller has none.
const DefaultQuestion = "Summarise what happened on the homelab in this period and call out anything that needs attention."

// Ask answers question using the digest and any graph context.
func (e *Engine) Ask(ctx context.Context, question string, d Digest) (string, error) {
	if strings.TrimSpace(question) == "" {
		question = DefaultQuestion
	}

	var graphData []map[string]any
	if e.graph != nil {
		graphData = e.retrieveGraph(ctx, question)
	}

	prompt, err := buildAnswerPrompt(question, d, graphData)
	if err != nil {
		return "", err
	}
	answer, err := e.generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to synthesize answer: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

func (e *Engine) generate(ctx context.Context, prompt string) (string, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}
	return e.gen.Generate(ctx, prompt)
}

// retrieveGraph asks the model for a Cypher query and runs it, falling back to
// the latest snapshots when generation or execution fails or finds nothing.
// Graph problems never fail the question.
func (e *Engine) retrieveGraph(ctx context.Context, question string) []map[string]any {
	if cypher, err := e.generate(ctx, buildCypherPrompt(question)); err == nil {
		if rows, err := e.graph.ExecuteCypher(ctx, cleanCypherQuery(cypher)); err == nil && len(rows) > 0 {
			return rows
		}
	}
	rows, err := e.graph.ExecuteCypher(ctx, fallbackCypher)
	if err != nil {
		return nil
	}
	return rows
}

const fallbackCypher = `
	MATCH (h:Host)-[:HAS_SNAPSHOT]->(s:Snapshot)
	OPTIONAL MATCH (s)-[:HAS_ANOMALY]->(a:Anomaly)
	OPTIONAL MATCH (s)-[:OBSERVED_CONTAINER {running: true}]->(c:Container)
	WITH h, s,
		 collect(DISTINCT a.description) AS anomalies,
		 collect(DISTINCT c.name) AS running_containers
	RETURN h.name AS host,
		   s.collected_at AS timestamp,
		   s.cpu_pct AS cpu_pct,
		   s.memory_pct AS memory_pct,
		   s.device_count AS devices,
		   s.vpn_connected AS vpn,
		   anomalies,
		   running_containers
	ORDER BY s.collected_at DESC
	LIMIT 5
`

const graphSchema = `Graph Schema:
- Nodes: Host, Snapshot, Device, Container, Service, Alert, Anomaly
- Relationships:
  - (Host)-[:HAS_SNAPSHOT]->(Snapshot)
  - (Snapshot)-[:SAW_DEVICE]->(Device)
  - (Snapshot)-[:OBSERVED_CONTAINER {running}]->(Container)
  - (Snapshot)-[:CHECKED {healthy}]->(Service)
  - (Snapshot)-[:RAISED]->(Alert)-[:FROM]->(Device)
  - (Snapshot)-[:HAS_ANOMALY]->(Anomaly)

Snapshot properties: snapshot_id, collected_at (RFC3339 string), cpu_pct, memory_pct, disk_pct, device_count, total_bytes, vpn_connected, containers_running, error_count
Device properties: ip, mac, hostname, vendor, last_seen
Alert properties: signature, severity, category, dest_ip, at
Anomaly properties: type (NewDevice, DeviceGone, TrafficSpike, SecurityAlert, DeviceCountAnomaly), severity (info, warning, critical), description, at`

func buildCypherPrompt(question string) string {
	return fmt.Sprintf(`You are a Neo4j Cypher query expert. Convert the following question into a read-only Cypher query for a homelab monitoring graph.

%s

Question: %s

Return ONLY the Cypher query, no explanation. Limit results to 10.`, graphSchema, question)
}

func buildAnswerPrompt(question string, d Digest, graphData []map[string]any) (string, error) {
	var b strings.Builder
	b.WriteString("You are a homelab operations assistant. Answer the question using only the observations below.\n\n")
	fmt.Fprintf(&b, "Question: %s\n\n", question)

	prose := strings.TrimSpace(d.Prose)
	if prose == "" {
		prose = "No snapshots recorded for this period."
	}
	fmt.Fprintf(&b, "History digest:\n%s\n\n", prose)

	if len(d.Anomalies) > 0 {
		b.WriteString("Detected anomalies:\n")
		for _, a := range d.Anomalies {
			fmt.Fprintf(&b, "- [%s] %s %s\n", a.Severity, a.Timestamp.UTC().Format("2006-01-02 15:04"), a.Description)
		}
		b.WriteString("\n")
	}

	if len(graphData) > 0 {
		raw, err := json.MarshalIndent(graphData, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode graph context: %w", err)
		}
		fmt.Fprintf(&b, "Graph data (from Neo4j):\n%s\n\n", raw)
	}

	b.WriteString(`Provide a clear, concise answer explaining:
1. What the data shows
2. Likely causes, if the data supports them
3. Recommended actions, if any

Gaps between snapshots usually mean the machine slept or the collector was not running. If the data is insufficient, say so clearly.`)
	return b.String(), nil
}

// cleanCypherQuery removes markdown code blocks from Cypher queries.
func cleanCypherQuery(query string) string {
	query = strings.TrimSpace(query)
	query = strings.TrimPrefix(query, "```cypher")
	query = strings.TrimPrefix(query, "```")
	query = strings.TrimSuffix(query, "```")
	return strings.TrimSpace(query)
}
