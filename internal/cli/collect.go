package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"homewatch/internal/engine"
	"homewatch/internal/output"
	"homewatch/ui/console"
)

func collectCmd() *cli.Command {
	return &cli.Command{
		Name:  "collect",
		Usage: "Take one snapshot, append it to the log and report anomalies",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "speedtest",
				Usage: "include an internet speed test (slow)",
			},
			formatFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			wcfg := e.cfg.Scheduler
			wcfg.CleanupEvery = 0
			wcfg.SpeedtestEvery = 0
			if cmd.Bool("speedtest") || e.cfg.Collector.EnableSpeedtest {
				wcfg.SpeedtestEvery = 1
			}
			w, err := e.newWorker(wcfg, e.openGraph(), e.openWarehouse(ctx))
			if err != nil {
				return err
			}
			payload, err := w.PullOnce(ctx)
			w.Stop()
			if err != nil {
				if payload == nil {
					return err
				}
				// The snapshot was collected but not persisted; still show it.
				e.logger.Error("snapshot not saved", zap.Error(err))
			}

			return printPayload(cmd, e, payload, err)
		},
	}
}

func printPayload(cmd *cli.Command, e *env, p *output.PipelinePayload, appendErr error) error {
	snap := p.Snapshot
	anoms := atSnapshot(p.Anomalies, snap.Timestamp)

	done, err := writeStructured(stdout, cmd, snap)
	if err != nil {
		return err
	}
	if !done {
		console.PrintSnapshot(stdout, snap, engine.Evaluate(e.cfg.Health, snap), p.Probes)
		console.PrintAnomalies(stdout, anoms)
	}
	if appendErr != nil {
		return fmt.Errorf("snapshot not saved to %s: %w", e.store.Path(), appendErr)
	}
	return nil
}
