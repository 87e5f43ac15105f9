package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"homewatch/internal/database/graph"
	"homewatch/internal/database/relational"
	"homewatch/internal/output"
)

func cleanupCmd() *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "Drop snapshots older than the retention period",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "days",
				Usage: "retention in days, overrides store.retention_days",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			days := e.cfg.Store.RetentionDays
			if d := int(cmd.Int("days")); d > 0 {
				days = d
			}
			res, err := e.store.Cleanup(ctx, days)
			if err != nil {
				return fmt.Errorf("cleanup %s: %w", e.store.Path(), err)
			}
			fmt.Fprintf(stdout, "Kept %d snapshots, removed %d older than %d days", res.Kept, res.Removed, days)
			if res.Corrupt > 0 {
				fmt.Fprintf(stdout, ", dropped %d unreadable lines", res.Corrupt)
			}
			fmt.Fprintln(stdout)
			return nil
		},
	}
}

func exportCmd() *cli.Command {
	return &cli.Command{
		Name:  "export-duckdb",
		Usage: "Copy a window of the log into the DuckDB warehouse",
		Flags: append(windowFlags(""),
			&cli.StringFlag{
				Name:  "db",
				Usage: "DuckDB file, overrides duckdb.path",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			dbCfg := e.cfg.DuckDB
			if p := cmd.String("db"); p != "" {
				dbCfg.Path = p
			}
			if !dbCfg.Enabled() {
				return errors.New("no DuckDB file configured (set duckdb.path or --db)")
			}
			snaps, err := e.window(ctx, cmd)
			if err != nil {
				return err
			}
			repo, err := relational.OpenRepo(ctx, dbCfg)
			if err != nil {
				return err
			}
			defer repo.Close()

			res, err := repo.IngestHistory(ctx, snaps, e.detector.Detect(snaps))
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Exported %d snapshots to %s (%d already present)\n", res.Inserted, dbCfg.Path, res.Skipped)
			return nil
		},
	}
}

func graphSyncCmd() *cli.Command {
	return &cli.Command{
		Name:  "graph-sync",
		Usage: "Mirror a window of the log into Neo4j",
		Flags: append(windowFlags(""),
			&cli.BoolFlag{
				Name:  "reset",
				Usage: "delete every node before syncing",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			if !e.cfg.Neo4j.Enabled() {
				return errors.New("no Neo4j server configured (set neo4j.uri)")
			}
			snaps, err := e.window(ctx, cmd)
			if err != nil {
				return err
			}
			g, err := graph.NewNeo4jClient(e.cfg.Neo4j)
			if err != nil {
				return err
			}
			defer g.Close(context.Background())

			if cmd.Bool("reset") {
				if err := g.Reset(ctx); err != nil {
					return fmt.Errorf("reset graph: %w", err)
				}
			}
			anoms := e.detector.Detect(snaps)
			synced := 0
			for i := range snaps {
				p := &output.PipelinePayload{
					Snapshot:  &snaps[i],
					Anomalies: atSnapshot(anoms, snaps[i].Timestamp),
				}
				if err := g.IngestSnapshot(ctx, p); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					e.logger.Warn("graph ingest failed", zap.Time("timestamp", snaps[i].Timestamp), zap.Error(err))
					continue
				}
				synced++
			}
			fmt.Fprintf(stdout, "Synced %d of %d snapshots to %s\n", synced, len(snaps), e.cfg.Neo4j.URI)
			return nil
		},
	}
}
