package graph

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// DefaultQueryLimit caps ad-hoc queries that carry no LIMIT of their own.
const DefaultQueryLimit = 100

// ErrWriteQuery rejects Cypher that would modify the snapshot graph.
var ErrWriteQuery = errors.New("cypher query must be read-only")

var (
	cypherStrings = regexp.MustCompile(`'(?:[^'\\]|\\.)*'|"(?:[^"\\]|\\.)*"|` + "`[^`]*`")
	cypherWrites  = regexp.MustCompile(`(?i)(?:^|[^.\w])(CREATE|MERGE|DELETE|DETACH|SET|REMOVE|DROP|FOREACH|LOAD\s+CSV)\b`)
	cypherCalls   = regexp.MustCompile(`(?i)\bCALL\s*(?:\{|(?:apoc|dbms|gds)\.)|\bIN\s+TRANSACTIONS\b`)
	cypherLimit   = regexp.MustCompile(`(?i)\bLIMIT\s+(?:\d+|\$\w+)\s*$`)
)

// PrepareReadQuery checks that query only reads the graph and bounds its result
// with DefaultQueryLimit when it ends without a LIMIT. Literals and quoted names
// are ignored when looking for write clauses.
func PrepareReadQuery(query string) (string, error) {
	q := strings.TrimSpace(query)
	q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	if q == "" {
		return "", errors.New("empty cypher query")
	}

	bare := cypherStrings.ReplaceAllString(q, "''")
	if strings.Contains(bare, ";") {
		return "", errors.New("cypher query must be a single statement")
	}
	if m := cypherWrites.FindStringSubmatch(bare); m != nil {
		return "", fmt.Errorf("%w: found %s", ErrWriteQuery, strings.ToUpper(m[1]))
	}
	if cypherCalls.MatchString(bare) {
		return "", fmt.Errorf("%w: procedure calls and subqueries are not allowed", ErrWriteQuery)
	}

	if !cypherLimit.MatchString(bare) {
		q = fmt.Sprintf("%s\nLIMIT %d", q, DefaultQueryLimit)
	}
	return q, nil
}

// ExecuteCypher runs a read-only query against the snapshot graph in a read
// transaction and returns one map per record, keyed by column.
func (c *Neo4jClient) ExecuteCypher(ctx context.Context, query string) ([]map[string]any, error) {
	q, err := PrepareReadQuery(query)
	if err != nil {
		return nil, err
	}

	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.dbName,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, q, nil)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		return recordRows(records), nil
	})
	if err != nil {
		return nil, fmt.Errorf("cypher execution failed: %w", err)
	}
	return result.([]map[string]any), nil
}

func recordRows(records []*neo4j.Record) []map[string]any {
	rows := make([]map[string]any, 0, len(records))
	for _, record := range records {
		row := make(map[string]any, len(record.Keys))
		for i, key := range record.Keys {
			row[key] = convertNeo4jValue(record.Values[i])
		}
		rows = append(rows, row)
	}
	return rows
}

// convertNeo4jValue turns graph values into plain maps and slices that encode
// as JSON for the MCP tool and the answer prompt.
func convertNeo4jValue(val any) any {
	switch v := val.(type) {
	case neo4j.Node:
		return map[string]any{
			"labels":     v.Labels,
			"properties": v.Props,
			"id":         v.ElementId,
		}
	case neo4j.Relationship:
		return map[string]any{
			"type":       v.Type,
			"properties": v.Props,
			"startNode":  v.StartElementId,
			"endNode":    v.EndElementId,
		}
	case neo4j.Path:
		nodes := make([]any, len(v.Nodes))
		for i, n := range v.Nodes {
			nodes[i] = convertNeo4jValue(n)
		}
		rels := make([]any, len(v.Relationships))
		for i, r := range v.Relationships {
			rels[i] = convertNeo4jValue(r)
		}
		return map[string]any{"nodes": nodes, "relationships": rels}
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = convertNeo4jValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = convertNeo4jValue(item)
		}
		return out
	default:
		return v
	}
}
