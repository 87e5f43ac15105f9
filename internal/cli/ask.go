package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"homewatch/internal/database/graph"
	"homewatch/internal/database/rag"
	"homewatch/internal/snapshot"
)

func askCmd() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask Gemini a question about the recorded history",
		ArgsUsage: "<question>",
		Flags:     windowFlags("24h"),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			question := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
			if question == "" {
				return errors.New("a question is required")
			}
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			g := e.openGraph()
			if g != nil {
				defer g.Close(context.Background())
			}
			adv, closeFn, err := e.openAdvisor(ctx, g)
			if err != nil {
				return err
			}
			defer closeFn()

			snaps, err := e.window(ctx, cmd)
			if err != nil {
				return err
			}
			answer, err := adv.Ask(ctx, question, e.digest(snaps))
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, answer)
			return nil
		},
	}
}

// digest is the local context handed to the model. An empty window has no prose.
func (e *env) digest(snaps []snapshot.Snapshot) rag.Digest {
	anoms := e.detector.Detect(snaps)
	d := rag.Digest{Anomalies: anoms}
	if len(snaps) > 0 {
		d.Prose = e.narrator.Build(snaps).WithAnomalies(anoms).Prose()
	}
	return d
}

// openAdvisor builds the RAG engine over g, which may be nil. The returned func
// releases the Gemini client.
func (e *env) openAdvisor(ctx context.Context, g graph.GraphClient) (*rag.Engine, func(), error) {
	if !e.cfg.Gemini.Enabled() {
		return nil, nil, errors.New("no Gemini API key configured (set gemini.api_key or HOMEWATCH_GEMINI_API_KEY)")
	}
	gen, err := rag.NewGeminiGenerator(ctx, e.cfg.Gemini.APIKey, e.cfg.Gemini.Model)
	if err != nil {
		return nil, nil, err
	}
	return rag.NewEngine(gen, g, e.cfg.Gemini.RPS), func() { _ = gen.Close() }, nil
}
