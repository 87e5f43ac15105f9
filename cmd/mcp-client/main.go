package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:      "mcp-client",
		Usage:     "Interactive client for the homewatch MCP server",
		ArgsUsage: "<server-command> [<args>]",
		Description: `Starts the server as a subprocess and talks to it over stdio.

Example:
  mcp-client homewatch mcp --collect`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args().Slice()
			if len(args) == 0 {
				return cli.Exit("a server command is required, e.g. mcp-client homewatch mcp", 2)
			}
			return repl(ctx, args)
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func repl(ctx context.Context, args []string) error {
	// Start the server as a subprocess
	server := exec.Command(args[0], args[1:]...)
	server.Stderr = os.Stderr
	transport := &mcp.CommandTransport{Command: server}

	// Create MCP client
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "homewatch-client",
		Version: "1.0.0",
	}, nil)

	// Connect to the server
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer session.Close()

	fmt.Println("Connected to Homewatch MCP Server!")
	fmt.Println("Available commands:")
	fmt.Println("  /tools                  - List available tools")
	fmt.Println("  /snapshots [since] [n]  - Recorded snapshots (default: last 24h)")
	fmt.Println("  /anomalies [since] [min-severity]")
	fmt.Println("                          - Detected anomalies")
	fmt.Println("  /narrative [since]      - Prose digest of the window")
	fmt.Println("  /collect                - Take a snapshot now (server needs --collect)")
	fmt.Println("  /history [hostname] [n] - Snapshot summaries from DuckDB")
	fmt.Println("  /graph <cypher>         - Execute Cypher query")
	fmt.Println("  /exit                   - Exit the client")
	fmt.Println("  <question>              - Ask a question about the history")
	fmt.Println()

	// Interactive REPL
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		parts := strings.Fields(input)

		switch {
		case input == "/exit":
			fmt.Println("Goodbye!")
			return nil

		case input == "/tools":
			listTools(ctx, session)

		case parts[0] == "/snapshots":
			args := map[string]any{}
			if len(parts) > 1 {
				args["since"] = parts[1]
			}
			if len(parts) > 2 {
				if n, err := strconv.Atoi(parts[2]); err == nil {
					args["limit"] = n
				}
			}
			callTool(ctx, session, "query_snapshots", args)

		case parts[0] == "/anomalies":
			args := map[string]any{}
			if len(parts) > 1 {
				args["since"] = parts[1]
			}
			if len(parts) > 2 {
				args["min_severity"] = parts[2]
			}
			callTool(ctx, session, "detect_anomalies", args)

		case parts[0] == "/narrative":
			args := map[string]any{}
			if len(parts) > 1 {
				args["since"] = parts[1]
			}
			callTool(ctx, session, "build_narrative", args)

		case input == "/collect":
			callTool(ctx, session, "collect_snapshot", map[string]any{})

		case parts[0] == "/history":
			args := map[string]any{}
			if len(parts) > 1 {
				args["hostname"] = parts[1]
			}
			if len(parts) > 2 {
				if n, err := strconv.Atoi(parts[2]); err == nil {
					args["limit"] = n
				}
			}
			callTool(ctx, session, "get_historical_snapshots", args)

		case strings.HasPrefix(input, "/graph "):
			cypher := strings.TrimPrefix(input, "/graph ")
			callTool(ctx, session, "query_graph", map[string]any{
				"cypher": cypher,
			})

		default:
			callTool(ctx, session, "ask_homewatch", map[string]any{
				"question": input,
			})
		}
	}

	return scanner.Err()
}

func listTools(ctx context.Context, session *mcp.ClientSession) {
	fmt.Println("Available Tools:")
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			log.Printf("Error listing tools: %v", err)
			return
		}
		fmt.Printf("  - %s: %s\n", tool.Name, tool.Description)
	}
	fmt.Println()
}

func callTool(ctx context.Context, session *mcp.ClientSession, toolName string, args map[string]any) {
	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		log.Printf("Error calling tool: %v", err)
		return
	}

	printResult(result)
}

func printResult(result *mcp.CallToolResult) {
	if result.IsError {
		fmt.Printf("❌ Error: ")
	} else {
		fmt.Printf("✅ Result: ")
	}

	// Try to pretty-print the content
	for _, content := range result.Content {
		switch v := content.(type) {
		case *mcp.TextContent:
			fmt.Println(v.Text)
		default:
			// Try JSON marshaling for other types
			jsonData, err := json.MarshalIndent(content, "", "  ")
			if err != nil {
				fmt.Printf("%+v\n", content)
			} else {
				fmt.Println(string(jsonData))
			}
		}
	}
	fmt.Println()
}
