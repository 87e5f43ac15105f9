package cli

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"homewatch/internal/mcpserver"
	"homewatch/ui/tui"
)

func tuiCmd() *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Browse the recorded history in an interactive terminal UI",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "window",
				Usage: "how far back to load",
				Value: 24 * time.Hour,
			},
			&cli.DurationFlag{
				Name:  "refresh",
				Usage: "reload interval",
				Value: 30 * time.Second,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			return tui.Start(e.store, tui.Options{
				Window:   cmd.Duration("window"),
				Refresh:  cmd.Duration("refresh"),
				Health:   e.cfg.Health,
				Detector: e.detector,
				Narrator: e.narrator,
			})
		},
	}
}

func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the history over the Model Context Protocol on stdio",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "collect",
				Usage: "also record snapshots on the scheduler interval and expose collect_snapshot",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			deps := mcpserver.Deps{
				Store:    e.store,
				Detector: e.detector,
				Narrator: e.narrator,
				Logger:   e.logger,
			}

			g := e.openGraph()
			if g != nil {
				deps.Graph = g
			}
			repo := e.openWarehouse(ctx)
			if repo != nil {
				deps.Warehouse = repo
			}

			if cmd.Bool("collect") {
				// The worker takes ownership of the mirrors and closes them on Stop.
				w, err := e.newWorker(e.cfg.Scheduler, deps.Graph, repo)
				if err != nil {
					return err
				}
				if err := w.Start(ctx); err != nil {
					return err
				}
				defer w.Stop()
				deps.Worker = w
			} else {
				if g != nil {
					defer g.Close(context.Background())
				}
				if repo != nil {
					defer repo.Close()
				}
			}
			if e.cfg.Gemini.Enabled() {
				adv, closeFn, err := e.openAdvisor(ctx, deps.Graph)
				if err != nil {
					e.logger.Warn("ask_homewatch disabled", zap.Error(err))
				} else {
					defer closeFn()
					deps.Advisor = adv
				}
			}

			cfg := mcpserver.DefaultConfig()
			cfg.ServerVersion = version
			srv, err := mcpserver.NewServer(cfg, deps)
			if err != nil {
				return err
			}
			return srv.Start(ctx)
		},
	}
}
