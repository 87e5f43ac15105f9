// Package cli wires the homewatch commands onto urfave/cli.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

const (
	name           = "homewatch"
	versionDefault = "dev"
)

var (
	// overridden during build with ldflags
	version = versionDefault
	commit  = "unknown"
)

// Command returns the root command with every subcommand attached.
func Command() *cli.Command {
	return &cli.Command{
		Name:                  name,
		Usage:                 "Homelab observation log and anomaly detection",
		Version:               fmt.Sprintf("%s (%s)", version, commit),
		EnableShellCompletion: true,
		Description: `homewatch records periodic snapshots of a homelab (host load, containers,
VPN, LAN devices, traffic, security alerts, services) to an append-only JSONL
log, then detects anomalies and builds readable digests from that history.

Run "homewatch run" from cron or a service manager, or "homewatch collect"
for a one-off snapshot.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "config file (default is $HOME/.homelab/homewatch.yaml)",
				Sources: cli.EnvVars("HOMEWATCH_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug, info, warn, error), overrides the config file",
			},
			&cli.StringFlag{
				Name:  "log-path",
				Usage: "snapshot log path, overrides the config file",
			},
		},
		Commands: []*cli.Command{
			collectCmd(),
			runCmd(),
			queryCmd(),
			anomaliesCmd(),
			historyCmd(),
			cleanupCmd(),
			exportCmd(),
			graphSyncCmd(),
			askCmd(),
			tuiCmd(),
			mcpCmd(),
		},
	}
}

// Execute runs the root command against os.Args and exits non-zero on error.
// SIGINT and SIGTERM cancel the command context.
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, shutting down gracefully...")
		cancel()
	}()

	if err := Command().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
