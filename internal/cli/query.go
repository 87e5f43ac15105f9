package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"homewatch/internal/anomaly"
	"homewatch/internal/output"
	"homewatch/internal/snapshot"
	"homewatch/ui/console"
)

func queryCmd() *cli.Command {
	return &cli.Command{
		Name:  "query",
		Usage: "Print recorded snapshots in a time window",
		Flags: append(windowFlags("24h"),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "keep only the newest N snapshots (0 keeps all)",
			},
			formatFlag(),
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			snaps, err := e.window(ctx, cmd)
			if err != nil {
				return err
			}
			snaps = newest(snaps, int(cmd.Int("limit")))

			done, err := writeStructured(stdout, cmd, snapshotsOrEmpty(snaps))
			if err != nil || done {
				return err
			}
			n := e.narrator.Build(snaps).WithAnomalies(e.detector.Detect(snaps))
			fmt.Fprint(stdout, output.RenderTimeline(n.TableRows()))
			fmt.Fprintf(stdout, "%d snapshots\n", len(snaps))
			return nil
		},
	}
}

func anomaliesCmd() *cli.Command {
	return &cli.Command{
		Name:  "anomalies",
		Usage: "Detect anomalies across a time window",
		Flags: append(windowFlags("24h"),
			&cli.StringFlag{
				Name:  "min-severity",
				Usage: "lowest severity to report (info, warning, critical)",
				Value: string(snapshot.SeverityInfo),
			},
			formatFlag(),
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			floor, err := parseSeverity(cmd.String("min-severity"))
			if err != nil {
				return err
			}
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			snaps, err := e.window(ctx, cmd)
			if err != nil {
				return err
			}
			anoms := anomaly.MostSevereFirst(anomaly.Filter(e.detector.Detect(snaps), floor))
			if anoms == nil {
				anoms = []snapshot.Anomaly{}
			}

			done, err := writeStructured(stdout, cmd, anoms)
			if err != nil || done {
				return err
			}
			console.PrintAnomalies(stdout, anoms)
			return nil
		},
	}
}

func historyCmd() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Summarise a time window as a timeline or a prose digest",
		Flags: append(windowFlags("24h"),
			&cli.BoolFlag{
				Name:  "prose",
				Usage: "print the sectioned digest instead of the timeline table",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			snaps, err := e.window(ctx, cmd)
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				fmt.Fprintln(stdout, "No snapshots recorded in this window.")
				return nil
			}
			n := e.narrator.Build(snaps).WithAnomalies(e.detector.Detect(snaps))
			if cmd.Bool("prose") {
				fmt.Fprintln(stdout, n.Prose())
				return nil
			}
			fmt.Fprint(stdout, output.RenderTimeline(n.TableRows()))
			return nil
		},
	}
}

// newest keeps the last n snapshots. n <= 0 keeps all.
func newest(snaps []snapshot.Snapshot, n int) []snapshot.Snapshot {
	if n > 0 && len(snaps) > n {
		return snaps[len(snaps)-n:]
	}
	return snaps
}

func snapshotsOrEmpty(snaps []snapshot.Snapshot) []snapshot.Snapshot {
	if snaps == nil {
		return []snapshot.Snapshot{}
	}
	return snaps
}

func parseSeverity(s string) (snapshot.Severity, error) {
	sev := snapshot.Severity(s)
	if sev.Rank() == 0 {
		return "", fmt.Errorf("unknown severity %q (want info, warning or critical)", s)
	}
	return sev, nil
}
