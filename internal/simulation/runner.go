package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nvandessel/resonance/internal/analytics"
	"github.com/nvandessel/resonance/internal/events"
	"github.com/nvandessel/resonance/internal/llm"
	"github.com/nvandessel/resonance/internal/logging"
	"github.com/nvandessel/resonance/internal/models"
	"github.com/nvandessel/resonance/internal/socialgraph"
	"github.com/nvandessel/resonance/internal/spreading"
	"github.com/nvandessel/resonance/internal/telemetry"
)

// Config controls a single generation.
type Config struct {
	// Ticks is the number of propagation rounds. Default: 3.
	Ticks int

	// Spreading holds the exposure cascade parameters.
	Spreading spreading.Config

	// Concurrency bounds in-flight reaction calls within a tick. Default: 4.
	Concurrency int

	// ReactionTimeout bounds one reaction call. Zero means no limit.
	ReactionTimeout time.Duration
}

// DefaultConfig returns the default generation configuration.
func DefaultConfig() Config {
	return Config{
		Ticks:           3,
		Spreading:       spreading.DefaultConfig(),
		Concurrency:     4,
		ReactionTimeout: 45 * time.Second,
	}
}

// Options carries the runner's optional collaborators. Zero values are safe.
type Options struct {
	Logger    *slog.Logger
	Decisions *logging.DecisionLogger
	Events    *events.Bus
}

// Runner executes generations over a fixed population and follow graph.
// The graph is read-only; persona moods are the only state carried from one
// generation to the next.
//
// A Runner is not safe for concurrent use: generations share the random source.
type Runner struct {
	graph     *socialgraph.Graph
	config    Config
	rng       *rand.Rand
	collector *Collector
	logger    *slog.Logger
	bus       *events.Bus
	tracer    trace.Tracer
}

// NewRunner creates a runner. rng is the session random source; it drives
// exposure sampling, amplification draws, and interaction ids.
func NewRunner(g *socialgraph.Graph, reactor llm.Reactor, config Config, rng *rand.Rand, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	tracer := telemetry.Tracer()
	return &Runner{
		graph:  g,
		config: config,
		rng:    rng,
		collector: &Collector{
			reactor:     reactor,
			concurrency: config.Concurrency,
			timeout:     config.ReactionTimeout,
			logger:      opts.Logger,
			decisions:   opts.Decisions,
			tracer:      tracer,
		},
		logger: opts.Logger,
		bus:    opts.Events,
		tracer: tracer,
	}
}

// RunGeneration simulates seed for config.Ticks ticks and returns the
// generation's result with its analytics filled in.
//
// A generation always runs to completion: cancellation of ctx is ignored
// here and is meant to be checked between generations. Values and the active
// span in ctx are kept.
func (r *Runner) RunGeneration(ctx context.Context, seed models.CampaignSeed, generation int) (*models.SimulationResult, error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := r.tracer.Start(ctx, "simulation.generation", trace.WithAttributes(
		attribute.Int("generation", generation),
		attribute.String("goal", string(seed.Goal)),
	))
	defer span.End()

	resolver := spreading.NewResolver(r.graph, r.config.Spreading, r.rng)
	influencers := make(map[string]bool)
	for _, id := range resolver.Influencers() {
		influencers[id] = true
	}

	history := []models.Interaction{}
	for tick := 0; tick < r.config.Ticks; tick++ {
		committed, err := r.runTick(ctx, seed, generation, tick, resolver, influencers, history)
		if err != nil {
			return nil, err
		}
		history = append(history, committed...)
	}

	result := &models.SimulationResult{
		Generation:   generation,
		Seed:         seed,
		Interactions: history,
	}
	m := analytics.Apply(result)

	span.SetAttributes(
		attribute.Int("reach", m.Reach),
		attribute.Int("exposed", resolver.ExposedCount()),
	)
	r.logger.Info("generation simulated",
		"generation", generation,
		"exposed", resolver.ExposedCount(),
		"reach", m.Reach,
		"sentiment", m.Sentiment)

	return result, nil
}

// runTick resolves exposure, collects reactions, and commits them in
// exposure order. history holds every interaction from earlier ticks.
func (r *Runner) runTick(
	ctx context.Context,
	seed models.CampaignSeed,
	generation, tick int,
	resolver *spreading.Resolver,
	influencers map[string]bool,
	history []models.Interaction,
) ([]models.Interaction, error) {
	ctx, span := r.tracer.Start(ctx, "simulation.tick", trace.WithAttributes(
		attribute.Int("generation", generation),
		attribute.Int("tick", tick),
	))
	defer span.End()

	exposed := resolver.Resolve(tick, history)
	batch := make([]Exposure, 0, len(exposed))
	for _, id := range exposed {
		p := r.graph.Persona(id)
		if p == nil {
			continue
		}
		visible := Visible(r.graph, id, influencers, history)
		batch = append(batch, Exposure{Persona: p, Feed: BuildFeed(seed, visible, r.graph)})
	}
	span.SetAttributes(attribute.Int("exposed", len(batch)))

	reactions := r.collector.Collect(ctx, generation, tick, batch)

	committed := make([]models.Interaction, 0, len(batch))
	fallbacks := 0
	for i, ex := range batch {
		rc := reactions[i]
		id, err := uuid.NewRandomFromReader(r.rng)
		if err != nil {
			return nil, fmt.Errorf("generating interaction id: %w", err)
		}

		ex.Persona.Mood = rc.Mood
		committed = append(committed, models.Interaction{
			ID:        id.String(),
			PersonaID: ex.Persona.ID,
			Action:    rc.Action,
			Content:   rc.Content,
			Reasoning: rc.Reasoning,
			Tick:      tick,
			Fallback:  rc.Fallback,
		})
		if rc.Fallback {
			fallbacks++
		}

		r.bus.Emit(events.Reaction, map[string]any{
			"generation": generation,
			"tick":       tick,
			"persona_id": ex.Persona.ID,
			"name":       ex.Persona.Name,
			"action":     string(rc.Action),
			"content":    rc.Content,
			"mood":       string(rc.Mood),
			"fallback":   rc.Fallback,
		})
	}

	r.bus.Emit(events.Tick, map[string]any{
		"generation": generation,
		"tick":       tick,
		"exposed":    len(batch),
		"fallbacks":  fallbacks,
	})
	r.logger.Debug("tick committed",
		"generation", generation, "tick", tick, "exposed", len(batch), "fallbacks", fallbacks)

	return committed, nil
}
