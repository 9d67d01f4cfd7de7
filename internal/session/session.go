// Package session wires one complete run: it seeds the random source,
// draws a population, builds the follow graph, and evolves the campaign,
// archiving every generation as it finishes.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nvandessel/resonance/internal/config"
	"github.com/nvandessel/resonance/internal/events"
	"github.com/nvandessel/resonance/internal/evolution"
	"github.com/nvandessel/resonance/internal/fitness"
	"github.com/nvandessel/resonance/internal/llm"
	"github.com/nvandessel/resonance/internal/logging"
	"github.com/nvandessel/resonance/internal/models"
	"github.com/nvandessel/resonance/internal/population"
	"github.com/nvandessel/resonance/internal/random"
	"github.com/nvandessel/resonance/internal/simulation"
	"github.com/nvandessel/resonance/internal/socialgraph"
	"github.com/nvandessel/resonance/internal/spreading"
	"github.com/nvandessel/resonance/internal/store"
	"github.com/nvandessel/resonance/internal/telemetry"
)

// ClientFactory builds the inference client once the session seed is known.
type ClientFactory func(ctx context.Context, cfg llm.ClientConfig, logger *slog.Logger) (llm.Client, error)

// Options carries a session's collaborators. Only Config is required.
type Options struct {
	Config *config.Config

	// NewClient defaults to llm.NewClient.
	NewClient ClientFactory

	// Archive receives session, persona and generation records. Nil skips
	// archiving.
	Archive store.Archive

	// ExportDir receives gen_<n>.json files, one directory per session.
	// Empty skips exports.
	ExportDir string

	Logger    *slog.Logger
	Decisions *logging.DecisionLogger
	Events    *events.Bus
}

// World is a drawn population and its follow graph.
type World struct {
	ID          string
	RandomSeed  int64
	Personas    []*models.AgentProfile
	Graph       *socialgraph.Graph
	Influencers []string

	client llm.Client
	rng    *rand.Rand
}

// Close releases the inference client if it holds resources, such as a
// loaded embedding model.
func (w *World) Close() error {
	if c, ok := w.client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Result is a finished session.
type Result struct {
	ID          string             `json:"id"`
	RandomSeed  int64              `json:"random_seed"`
	Personas    int                `json:"personas"`
	Edges       int                `json:"edges"`
	Influencers []string           `json:"influencers"`
	Outcome     *evolution.Outcome `json:"outcome"`

	// ExportDir is where generation files were written, if anywhere.
	ExportDir string `json:"export_dir,omitempty"`
}

// Session runs the pipeline for one configuration.
type Session struct {
	opts   Options
	logger *slog.Logger
	bus    *events.Bus
}

// New creates a session.
func New(opts Options) (*Session, error) {
	if opts.Config == nil {
		return nil, errors.New("session: config is required")
	}
	if opts.NewClient == nil {
		opts.NewClient = llm.NewClient
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Session{opts: opts, logger: opts.Logger, bus: opts.Events}, nil
}

// Prepare resolves the seed, builds the client, and draws the population
// and graph. It is the first half of Run, and all that `graph` needs.
func (s *Session) Prepare(ctx context.Context) (*World, error) {
	cfg := s.opts.Config
	if err := cfg.ValidateCampaign(); err != nil {
		return nil, err
	}

	seed, err := random.Resolve(cfg.Simulation.Seed)
	if err != nil {
		return nil, err
	}
	rng := random.New(seed)

	client, err := s.opts.NewClient(ctx, cfg.LLM.ClientConfig(seed), s.logger)
	if err != nil {
		return nil, fmt.Errorf("creating inference client: %w", err)
	}

	w := &World{
		ID:         uuid.NewString(),
		RandomSeed: seed,
		client:     client,
		rng:        rng,
	}
	s.logger.Info("session starting",
		"session", w.ID, "seed", seed, "provider", cfg.LLM.Provider, "personas", cfg.Simulation.Personas)

	s.bus.Emit(events.Phase, map[string]any{"phase": "population", "session": w.ID})
	gen := population.NewGenerator(client, s.logger, s.bus)
	w.Personas, err = gen.Generate(ctx, cfg.Campaign.TargetAudience, cfg.Simulation.Personas, rng)
	if err != nil {
		return nil, fmt.Errorf("generating population: %w", err)
	}

	s.bus.Emit(events.Phase, map[string]any{"phase": "graph", "session": w.ID})
	w.Graph, err = socialgraph.Build(ctx, w.Personas, cfg.Simulation.EdgeProbability, rng)
	if err != nil {
		return nil, fmt.Errorf("building graph: %w", err)
	}
	w.Influencers = w.Graph.Influencers(cfg.Simulation.Influencers)

	edges := make([]map[string]string, 0, w.Graph.EdgeCount())
	for _, e := range w.Graph.Edges() {
		edges = append(edges, map[string]string{"source": e.Follower, "target": e.Followee})
	}
	s.bus.Emit(events.GraphBuilt, map[string]any{
		"personas":    len(w.Personas),
		"edge_count":  w.Graph.EdgeCount(),
		"edges":       edges,
		"influencers": w.Influencers,
	})
	s.logger.Info("graph built",
		"personas", len(w.Personas), "edges", w.Graph.EdgeCount(), "influencers", w.Influencers)

	return w, nil
}

// Run executes a full session. A cancelled ctx stops the loop between
// generations; the partial result is returned together with ctx's error.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "session.run")
	defer span.End()

	w, err := s.Prepare(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer w.Close()
	span.SetAttributes(
		attribute.String("session.id", w.ID),
		attribute.Int64("session.seed", w.RandomSeed),
		attribute.Int("session.personas", len(w.Personas)),
	)

	cfg := s.opts.Config
	seed := cfg.Campaign.Seed()
	res := &Result{
		ID:          w.ID,
		RandomSeed:  w.RandomSeed,
		Personas:    len(w.Personas),
		Edges:       w.Graph.EdgeCount(),
		Influencers: w.Influencers,
	}
	if s.opts.ExportDir != "" {
		res.ExportDir = store.SessionDir(s.opts.ExportDir, w.ID)
	}

	summary := store.Session{
		ID:          w.ID,
		RandomSeed:  w.RandomSeed,
		Campaign:    seed,
		Personas:    res.Personas,
		Edges:       res.Edges,
		Influencers: w.Influencers,
	}
	if s.opts.Archive != nil {
		if err := s.opts.Archive.SaveSession(ctx, summary); err != nil {
			return nil, fmt.Errorf("archiving session: %w", err)
		}
		if err := s.opts.Archive.SavePersonas(ctx, w.ID, w.Personas); err != nil {
			return nil, fmt.Errorf("archiving personas: %w", err)
		}
	}

	spread := spreading.DefaultConfig()
	spread.Influencers = cfg.Simulation.Influencers
	simCfg := simulation.Config{
		Ticks:           cfg.Simulation.Ticks,
		Spreading:       spread,
		Concurrency:     cfg.Simulation.Concurrency,
		ReactionTimeout: cfg.Simulation.ReactionTimeout,
	}
	runner := simulation.NewRunner(w.Graph, w.client, simCfg, w.rng, simulation.Options{
		Logger:    s.logger,
		Decisions: s.opts.Decisions,
		Events:    s.bus,
	})

	orch := evolution.NewOrchestrator(runner, w.client, fitness.NewEvaluator(cfg.Fitness.Calibration),
		evolution.Config{
			MaxGenerations:   cfg.Simulation.MaxGenerations,
			FitnessThreshold: cfg.Simulation.FitnessThreshold,
		},
		evolution.Options{
			Logger:       s.logger,
			Events:       s.bus,
			OnGeneration: func(ctx context.Context, rec evolution.GenerationRecord) { s.record(ctx, w.ID, res.ExportDir, rec) },
		})

	out, runErr := orch.Run(ctx, seed)
	res.Outcome = out

	best, _ := out.Best()
	summary.Status = string(out.Status)
	summary.Generations = len(out.Generations)
	summary.BestFitness = best.Fitness
	if s.opts.Archive != nil && out.Status != "" {
		// The run context may already be cancelled.
		if err := s.opts.Archive.SaveSession(context.WithoutCancel(ctx), summary); err != nil {
			s.logger.Warn("archiving final session summary failed", "session", w.ID, "error", err)
		}
	}

	if out.Status == evolution.StatusCancelled {
		s.bus.Emit(events.Done, map[string]any{
			"status":       string(out.Status),
			"generations":  len(out.Generations),
			"best_fitness": best.Fitness,
		})
	}
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		s.logger.Warn("session stopped", "session", w.ID, "status", out.Status, "error", runErr)
		return res, runErr
	}

	span.SetAttributes(
		attribute.String("session.status", string(out.Status)),
		attribute.Float64("session.best_fitness", best.Fitness),
	)
	s.logger.Info("session finished",
		"session", w.ID, "status", out.Status, "generations", len(out.Generations), "best_fitness", best.Fitness)
	return res, nil
}

// record archives and exports one finished generation. Failures are logged
// and reported as events; the run continues.
func (s *Session) record(ctx context.Context, sessionID, exportDir string, rec evolution.GenerationRecord) {
	ctx = context.WithoutCancel(ctx)
	g := store.Generation{
		SessionID: sessionID,
		Number:    rec.Result.Generation,
		Fitness:   rec.Fitness,
		Result:    rec.Result,
		Rewrite:   rec.Rewrite,
	}

	if s.opts.Archive != nil {
		if err := s.opts.Archive.SaveGeneration(ctx, g); err != nil {
			s.fail("archiving generation failed", g.Number, err)
		}
	}
	if exportDir != "" {
		path, err := store.ExportGeneration(exportDir, g)
		if err != nil {
			s.fail("exporting generation failed", g.Number, err)
			return
		}
		s.logger.Debug("generation exported", "generation", g.Number, "path", path)
	}
}

func (s *Session) fail(msg string, generation int, err error) {
	s.logger.Warn(msg, "generation", generation, "error", err)
	s.bus.Emit(events.Error, map[string]any{
		"generation": generation,
		"message":    fmt.Sprintf("%s: %v", msg, err),
	})
}
