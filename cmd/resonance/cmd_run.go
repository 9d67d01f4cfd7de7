package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nvandessel/resonance/internal/config"
	"github.com/nvandessel/resonance/internal/events"
	"github.com/nvandessel/resonance/internal/llm"
	"github.com/nvandessel/resonance/internal/logging"
	"github.com/nvandessel/resonance/internal/session"
	"github.com/nvandessel/resonance/internal/store"
	"github.com/nvandessel/resonance/internal/telemetry"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a full session",
		Long: `Generate a population and follow graph, then evolve the campaign until it
meets the fitness threshold or the generation budget runs out.

Flags override the config file and environment.

Examples:
  resonance run --content "Socks that never slip." --audience "trail runners"
  resonance run --provider rules --seed 42 --generations 5
  resonance run --json > session.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyRunFlags(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.ValidateCampaign(); err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runSession(ctx, cmd, cfg)
		},
	}

	cmd.Flags().String("content", "", "Campaign post text")
	cmd.Flags().String("image", "", "Description of the campaign image")
	cmd.Flags().String("goal", "", "Campaign goal: engagement, brand_awareness, clicks or controversy")
	cmd.Flags().String("audience", "", "Target audience description")
	cmd.Flags().Int("personas", 0, "Population size")
	cmd.Flags().Int("ticks", 0, "Propagation ticks per generation")
	cmd.Flags().Int("generations", 0, "Maximum generations")
	cmd.Flags().Float64("threshold", 0, "Fitness threshold that ends the run early")
	cmd.Flags().Int64("seed", 0, "Random seed (0 draws a fresh one)")
	cmd.Flags().String("provider", "", "Inference provider: anthropic, openai, gemini, rules or local")
	cmd.Flags().String("model", "", "Model override")
	cmd.Flags().String("store", "", "Archive backend: sqlite, mongo or memory")
	cmd.Flags().Bool("no-export", false, "Don't write gen_<n>.json files")
	cmd.Flags().Bool("quiet", false, "Suppress progress output")

	return cmd
}

// applyRunFlags copies explicitly set flags over cfg. An unknown goal falls
// back to engagement like everywhere else.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	str := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	num := func(name string, dst *int) {
		if f.Changed(name) {
			*dst, _ = f.GetInt(name)
		}
	}

	str("content", &cfg.Campaign.Content)
	str("image", &cfg.Campaign.ImageDescription)
	str("audience", &cfg.Campaign.TargetAudience)
	str("model", &cfg.LLM.Model)
	str("store", &cfg.Store.Backend)
	num("personas", &cfg.Simulation.Personas)
	num("ticks", &cfg.Simulation.Ticks)
	num("generations", &cfg.Simulation.MaxGenerations)

	str("goal", &cfg.Campaign.Goal)
	if f.Changed("threshold") {
		cfg.Simulation.FitnessThreshold, _ = f.GetFloat64("threshold")
	}
	if f.Changed("seed") {
		cfg.Simulation.Seed, _ = f.GetInt64("seed")
	}
	if f.Changed("provider") {
		cfg.LLM.Provider, _ = f.GetString("provider")
		cfg.LLM.APIKey = ""
		cfg.LLM.KeyFromEnv()
	}
}

func runSession(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	quiet, _ := cmd.Flags().GetBool("quiet")
	noExport, _ := cmd.Flags().GetBool("no-export")

	logger := newLogger(cmd, cfg, cmd.ErrOrStderr())

	// Fail on a missing key before anything is created on disk.
	if err := llm.CheckCredentials(cfg.LLM.ClientConfig(cfg.Simulation.Seed)); err != nil {
		return err
	}

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	archive, err := openArchive(ctx, cfg)
	if err != nil {
		return err
	}
	defer archive.Close()

	decisions := logging.NewDecisionLogger(cfg.Store.Dir, cfg.Logging.Level)
	defer decisions.Close()

	exportDir := cfg.Store.Dir
	if noExport {
		exportDir = ""
	}

	bus := events.NewBus()
	printed := make(chan struct{})
	if quiet {
		close(printed)
	} else {
		ch, unsubscribe := bus.Subscribe(0)
		defer unsubscribe()
		var w io.Writer = cmd.ErrOrStderr()
		if jsonOut {
			w = cmd.OutOrStdout()
		}
		go func() {
			printEvents(w, ch, jsonOut)
			close(printed)
		}()
	}

	s, err := session.New(session.Options{
		Config:    cfg,
		Archive:   archive,
		ExportDir: exportDir,
		Logger:    logger,
		Decisions: decisions,
		Events:    bus,
	})
	if err != nil {
		return err
	}

	res, runErr := s.Run(ctx)
	bus.Close()
	<-printed
	if res == nil {
		return runErr
	}

	if jsonOut {
		if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
	} else {
		printSummary(cmd.OutOrStdout(), res)
	}
	return runErr
}

func openArchive(ctx context.Context, cfg *config.Config) (store.Archive, error) {
	archive, err := store.Open(ctx, store.Options{
		Backend:       cfg.Store.Backend,
		Dir:           cfg.Store.Dir,
		MongoURI:      cfg.Store.MongoURI,
		MongoDatabase: cfg.Store.MongoDatabase,
	})
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	return archive, nil
}

func printSummary(w io.Writer, res *session.Result) {
	out := res.Outcome
	fmt.Fprintf(w, "Session %s (seed %d)\n", res.ID, res.RandomSeed)
	fmt.Fprintf(w, "  %d personas, %d follow edges, influencers %v\n", res.Personas, res.Edges, res.Influencers)
	fmt.Fprintf(w, "  status: %s after %d generation(s)\n\n", out.Status, len(out.Generations))

	fmt.Fprintf(w, "  %-4s %7s %6s %6s %8s %6s %6s %9s\n", "GEN", "FITNESS", "REACH", "LIKES", "COMMENTS", "SHARES", "MOCKS", "SENTIMENT")
	for _, g := range out.Generations {
		r := g.Result
		fmt.Fprintf(w, "  %-4d %7.3f %6d %6d %8d %6d %6d %9.2f\n",
			r.Generation, g.Fitness, r.Reach, r.Likes, r.Comments, r.Shares, r.Mocks, r.Sentiment)
	}

	best, ok := out.Best()
	if !ok {
		return
	}
	fmt.Fprintf(w, "\nBest campaign (generation %d, fitness %.3f):\n", best.Result.Generation, best.Fitness)
	fmt.Fprintf(w, "  %s\n", best.Result.Seed.Content)
	if best.Result.Seed.ImageDescription != "" {
		fmt.Fprintf(w, "  [image] %s\n", best.Result.Seed.ImageDescription)
	}
	if res.ExportDir != "" {
		fmt.Fprintf(w, "\nGeneration files written to %s\n", res.ExportDir)
	}
}
