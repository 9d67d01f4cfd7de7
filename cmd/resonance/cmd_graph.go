package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/resonance/internal/config"
	"github.com/nvandessel/resonance/internal/ranking"
	"github.com/nvandessel/resonance/internal/session"
	"github.com/nvandessel/resonance/internal/socialgraph"
	"github.com/nvandessel/resonance/internal/store"
	"github.com/nvandessel/resonance/internal/visualization"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Visualize a population's follow graph",
		Long: `Generate a population and follow graph without running the simulation, or
load an archived session's graph with --session, and output it in DOT
(Graphviz), JSON, or HTML format.

Examples:
  resonance graph --provider rules --seed 42 | dot -Tsvg > graph.svg
  resonance graph --session <id> --generation 2 --format html
  resonance graph --session <id> --format html --serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatName, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			noOpen, _ := cmd.Flags().GetBool("no-open")
			serve, _ := cmd.Flags().GetBool("serve")
			sessionID, _ := cmd.Flags().GetString("session")
			generation, _ := cmd.Flags().GetInt("generation")

			format, err := visualization.ParseFormat(formatName)
			if err != nil {
				return err
			}
			if serve && format != visualization.FormatHTML {
				return fmt.Errorf("--serve requires --format html")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyRunFlags(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			var (
				g     *socialgraph.Graph
				opts  visualization.Options
				title string
			)
			if sessionID != "" {
				g, opts, err = loadArchivedGraph(ctx, cfg, sessionID, generation)
				title = "Session " + sessionID
			} else {
				g, opts, err = drawGraph(ctx, cmd, cfg)
				title = "Population graph"
			}
			if err != nil {
				return err
			}
			if format != visualization.FormatDOT {
				opts.Rank = ranking.PageRank(g, ranking.DefaultPageRankConfig())
			}

			out := cmd.OutOrStdout()
			switch format {
			case visualization.FormatDOT:
				fmt.Fprint(out, visualization.RenderDOT(g, opts))
			case visualization.FormatJSON:
				return writeJSON(out, visualization.RenderJSON(g, opts))
			case visualization.FormatHTML:
				if serve {
					return runGraphServer(ctx, cmd, visualization.NewServer(g, opts, title), noOpen)
				}
				return writeStaticHTML(cmd, g, opts, title, output, noOpen)
			}
			return nil
		},
	}

	cmd.Flags().String("format", "dot", "Output format: dot, json, or html")
	cmd.Flags().StringP("output", "o", "", "Output file path (html format only)")
	cmd.Flags().Bool("no-open", false, "Don't open browser after generating HTML")
	cmd.Flags().Bool("serve", false, "Serve the HTML graph on a local port until interrupted")
	cmd.Flags().String("session", "", "Render an archived session instead of drawing a new population")
	cmd.Flags().Int("generation", 0, "Color nodes by their action in this archived generation")

	cmd.Flags().String("audience", "", "Target audience description")
	cmd.Flags().Int("personas", 0, "Population size")
	cmd.Flags().Int64("seed", 0, "Random seed (0 draws a fresh one)")
	cmd.Flags().String("provider", "", "Inference provider: anthropic, openai, gemini, rules or local")
	cmd.Flags().String("model", "", "Model override")

	return cmd
}

// drawGraph generates a fresh population and graph. Campaign content is not
// needed to draw one, so a placeholder stands in when none is configured.
func drawGraph(ctx context.Context, cmd *cobra.Command, cfg *config.Config) (*socialgraph.Graph, visualization.Options, error) {
	if cfg.Campaign.Content == "" {
		cfg.Campaign.Content = "(graph only)"
	}
	s, err := session.New(session.Options{
		Config: cfg,
		Logger: newLogger(cmd, cfg, cmd.ErrOrStderr()),
	})
	if err != nil {
		return nil, visualization.Options{}, err
	}
	w, err := s.Prepare(ctx)
	if err != nil {
		return nil, visualization.Options{}, err
	}
	defer w.Close()
	return w.Graph, visualization.Options{Influencers: w.Influencers}, nil
}

// loadArchivedGraph rebuilds a session's graph from its archived personas.
// A positive generation overlays that generation's actions.
func loadArchivedGraph(ctx context.Context, cfg *config.Config, sessionID string, generation int) (*socialgraph.Graph, visualization.Options, error) {
	var opts visualization.Options

	archive, err := openArchive(ctx, cfg)
	if err != nil {
		return nil, opts, err
	}
	defer archive.Close()

	sess, err := findSession(ctx, archive, sessionID)
	if err != nil {
		return nil, opts, err
	}
	opts.Influencers = sess.Influencers

	personas, err := archive.GetPersonas(ctx, sessionID)
	if err != nil {
		return nil, opts, fmt.Errorf("loading personas: %w", err)
	}
	var edges []socialgraph.Edge
	for _, p := range personas {
		for _, followee := range p.Following {
			edges = append(edges, socialgraph.Edge{Follower: p.ID, Followee: followee})
		}
	}
	g, err := socialgraph.FromEdges(personas, edges)
	if err != nil {
		return nil, opts, fmt.Errorf("rebuilding graph: %w", err)
	}

	if generation > 0 {
		gens, err := archive.GetGenerations(ctx, sessionID)
		if err != nil {
			return nil, opts, fmt.Errorf("loading generations: %w", err)
		}
		found := false
		for _, gen := range gens {
			if gen.Number == generation {
				opts.Actions = visualization.ActionsFrom(gen.Result)
				found = true
				break
			}
		}
		if !found {
			return nil, opts, fmt.Errorf("session %s has no generation %d", sessionID, generation)
		}
	}
	return g, opts, nil
}

// findSession looks a session up by id among the archived summaries.
func findSession(ctx context.Context, archive store.Archive, id string) (store.Session, error) {
	sessions, err := archive.ListSessions(ctx, 0)
	if err != nil {
		return store.Session{}, fmt.Errorf("listing sessions: %w", err)
	}
	for _, s := range sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return store.Session{}, fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
}

// writeStaticHTML renders the graph to a self-contained HTML file.
func writeStaticHTML(cmd *cobra.Command, g *socialgraph.Graph, opts visualization.Options, title, output string, noOpen bool) error {
	htmlBytes, err := visualization.RenderHTML(g, opts, title)
	if err != nil {
		return fmt.Errorf("render HTML: %w", err)
	}

	outPath := output
	if outPath == "" {
		outPath = filepath.Join(os.TempDir(), "resonance-graph.html")
	}
	if err := os.WriteFile(outPath, htmlBytes, 0644); err != nil {
		return fmt.Errorf("write HTML file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Graph written to %s\n", outPath)

	if !noOpen {
		openOrHint(cmd.ErrOrStderr(), outPath)
	}
	return nil
}

// runGraphServer serves the graph and blocks until ctx is cancelled.
func runGraphServer(ctx context.Context, cmd *cobra.Command, srv *visualization.Server, noOpen bool) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for srv.Addr() == "" && time.Now().Before(deadline) {
		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		case <-time.After(10 * time.Millisecond):
		}
	}
	addr := srv.Addr()
	if addr == "" {
		return fmt.Errorf("server failed to start")
	}

	url := "http://" + addr
	fmt.Fprintf(cmd.OutOrStdout(), "Graph server running at %s\n", url)
	fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl-C to stop.\n")
	if !noOpen {
		openOrHint(cmd.ErrOrStderr(), url)
	}

	if err := <-errCh; err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func openOrHint(w io.Writer, target string) {
	if err := visualization.OpenBrowser(target); err != nil {
		fmt.Fprintf(w, "Could not open browser: %v\nOpen %s manually.\n", err, target)
	}
}
