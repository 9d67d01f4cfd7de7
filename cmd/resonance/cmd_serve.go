package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nvandessel/resonance/internal/config"
	"github.com/nvandessel/resonance/internal/events"
	"github.com/nvandessel/resonance/internal/llm"
	"github.com/nvandessel/resonance/internal/logging"
	"github.com/nvandessel/resonance/internal/server"
	"github.com/nvandessel/resonance/internal/session"
	"github.com/nvandessel/resonance/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run sessions over HTTP and stream their progress",
		Long: `Start an HTTP server. POST /run starts a session from a JSON campaign and
GET /events streams every session event as Server-Sent Events. One session
runs at a time; a second POST /run while one is running gets 409.

Examples:
  resonance serve --addr localhost:8080
  curl -N localhost:8080/events
  curl -d '{"content":"Socks that never slip.","target_audience":"trail runners"}' localhost:8080/run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if f := cmd.Flags(); f.Changed("provider") {
				cfg.LLM.Provider, _ = f.GetString("provider")
				cfg.LLM.APIKey = ""
				cfg.LLM.KeyFromEnv()
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := llm.CheckCredentials(cfg.LLM.ClientConfig(cfg.Simulation.Seed)); err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			logger := newLogger(cmd, cfg, cmd.ErrOrStderr())
			shutdown, err := telemetry.Setup(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName)
			if err != nil {
				return fmt.Errorf("setting up telemetry: %w", err)
			}
			defer func() {
				if err := shutdown(context.WithoutCancel(ctx)); err != nil {
					logger.Warn("telemetry shutdown failed", "error", err)
				}
			}()

			srv := server.New(server.Options{
				Run:    serveRunner(cfg, logger),
				Logger: logger,
			})
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe(ctx, addr) }()

			logger.Info("serving", "addr", addr)
			return <-errCh
		},
	}

	cmd.Flags().String("addr", "localhost:8080", "Address to listen on")
	cmd.Flags().String("provider", "", "Inference provider: anthropic, openai, gemini, rules or local")

	return cmd
}

// serveRunner returns the session runner behind POST /run. Each request runs
// on a copy of base with the request's campaign and sizes applied.
func serveRunner(base *config.Config, logger *slog.Logger) server.RunFunc {
	return func(ctx context.Context, req server.RunRequest, bus *events.Bus) error {
		cfg := *base
		applyRunRequest(&cfg, req)
		if err := cfg.Validate(); err != nil {
			bus.Emit(events.Error, map[string]any{"message": err.Error()})
			return err
		}

		archive, err := openArchive(ctx, &cfg)
		if err != nil {
			bus.Emit(events.Error, map[string]any{"message": err.Error()})
			return err
		}
		defer archive.Close()

		decisions := logging.NewDecisionLogger(cfg.Store.Dir, cfg.Logging.Level)
		defer decisions.Close()

		s, err := session.New(session.Options{
			Config:    &cfg,
			Archive:   archive,
			ExportDir: cfg.Store.Dir,
			Logger:    logger,
			Decisions: decisions,
			Events:    bus,
		})
		if err != nil {
			return err
		}
		_, err = s.Run(ctx)
		return err
	}
}

func applyRunRequest(cfg *config.Config, req server.RunRequest) {
	cfg.Campaign = config.CampaignConfig{
		Content:          req.Content,
		ImageDescription: req.ImageDescription,
		Goal:             req.Goal,
		TargetAudience:   req.TargetAudience,
	}
	if req.NumAgents > 0 {
		cfg.Simulation.Personas = req.NumAgents
	}
	if req.NumTicks > 0 {
		cfg.Simulation.Ticks = req.NumTicks
	}
	if req.MaxGenerations > 0 {
		cfg.Simulation.MaxGenerations = req.MaxGenerations
	}
}
