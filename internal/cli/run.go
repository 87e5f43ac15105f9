package cli

import (
	"context"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Collect snapshots on the scheduler interval until interrupted",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "time between snapshots, overrides scheduler.interval",
			},
			&cli.StringFlag{
				Name:  "metrics-textfile",
				Usage: "write prometheus metrics here after every cycle (node_exporter textfile collector)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			wcfg := e.cfg.Scheduler
			if d := cmd.Duration("interval"); d > 0 {
				wcfg.Interval = d
			}
			if p := cmd.String("metrics-textfile"); p != "" {
				wcfg.MetricsTextfile = p
			}
			w, err := e.newWorker(wcfg, e.openGraph(), e.openWarehouse(ctx))
			if err != nil {
				return err
			}
			if err := w.Start(ctx); err != nil {
				return err
			}
			e.logger.Info("recording", zap.String("log", e.store.Path()))

			<-ctx.Done()
			w.Stop()
			return nil
		},
	}
}
