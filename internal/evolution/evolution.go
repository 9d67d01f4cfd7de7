// Package evolution drives the generate, score and rewrite loop until a
// campaign reaches its fitness threshold or runs out of generations.
package evolution

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nvandessel/resonance/internal/events"
	"github.com/nvandessel/resonance/internal/fitness"
	"github.com/nvandessel/resonance/internal/llm"
	"github.com/nvandessel/resonance/internal/models"
	"github.com/nvandessel/resonance/internal/sanitize"
	"github.com/nvandessel/resonance/internal/telemetry"
)

// Status is how an evolution loop ended.
type Status string

const (
	// StatusOptimized means a generation met the fitness threshold.
	StatusOptimized Status = "optimized"

	// StatusExhausted means the last generation ran without meeting it.
	StatusExhausted Status = "exhausted"

	// StatusCancelled means the caller stopped the loop between generations.
	StatusCancelled Status = "cancelled"
)

// Sample sizes for the persona text sent with a rewrite request.
const (
	MaxCommentSamples = 15
	MaxMockSamples    = 10
)

// Simulator runs one generation. *simulation.Runner implements it.
type Simulator interface {
	RunGeneration(ctx context.Context, seed models.CampaignSeed, generation int) (*models.SimulationResult, error)
}

// Config bounds the loop.
type Config struct {
	// MaxGenerations is the last generation that will run. Default: 3.
	MaxGenerations int

	// FitnessThreshold ends the loop early once reached. Default: 0.70.
	FitnessThreshold float64
}

// DefaultConfig returns the default loop bounds.
func DefaultConfig() Config {
	return Config{MaxGenerations: 3, FitnessThreshold: 0.70}
}

// GenerationRecord is everything known about one generation.
type GenerationRecord struct {
	Result  *models.SimulationResult `json:"result"`
	Fitness float64                  `json:"fitness"`

	// Rewrite is the analysis that produced the next generation's seed. It
	// is nil for the final generation and when the rewrite failed.
	Rewrite *llm.Rewrite `json:"rewrite,omitempty"`
}

// Outcome is the loop's result.
type Outcome struct {
	Status      Status             `json:"status"`
	Generations []GenerationRecord `json:"generations"`
}

// Best returns the highest-fitness generation, preferring the earliest on
// ties. ok is false when no generation ran.
func (o *Outcome) Best() (rec GenerationRecord, ok bool) {
	for i, g := range o.Generations {
		if i == 0 || g.Fitness > rec.Fitness {
			rec = g
		}
	}
	return rec, len(o.Generations) > 0
}

// Options carries the orchestrator's optional collaborators.
type Options struct {
	Logger *slog.Logger
	Events *events.Bus

	// OnGeneration is called once a generation is final, i.e. after its
	// rewrite (if any) has been attached.
	OnGeneration func(ctx context.Context, rec GenerationRecord)
}

// Orchestrator runs the evolution loop.
type Orchestrator struct {
	sim       Simulator
	rewriter  llm.Rewriter
	evaluator *fitness.Evaluator
	config    Config
	logger    *slog.Logger
	bus       *events.Bus
	onGen     func(ctx context.Context, rec GenerationRecord)
	tracer    trace.Tracer
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(sim Simulator, rewriter llm.Rewriter, evaluator *fitness.Evaluator, config Config, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if evaluator == nil {
		evaluator = fitness.NewEvaluator(fitness.DefaultCalibration())
	}
	if config.MaxGenerations < 1 {
		config.MaxGenerations = 1
	}
	return &Orchestrator{
		sim:       sim,
		rewriter:  rewriter,
		evaluator: evaluator,
		config:    config,
		logger:    opts.Logger,
		bus:       opts.Events,
		onGen:     opts.OnGeneration,
		tracer:    telemetry.Tracer(),
	}
}

// Run evolves seed for at most config.MaxGenerations generations.
//
// Cancellation is only observed between generations. A cancelled loop
// returns the generations already run with StatusCancelled and ctx's error.
func (o *Orchestrator) Run(ctx context.Context, seed models.CampaignSeed) (*Outcome, error) {
	out := &Outcome{Generations: []GenerationRecord{}}

	for gen := 1; gen <= o.config.MaxGenerations; gen++ {
		if err := ctx.Err(); err != nil {
			out.Status = StatusCancelled
			o.logger.Info("evolution cancelled", "completed_generations", len(out.Generations))
			return out, err
		}

		o.bus.Emit(events.Phase, map[string]any{"phase": "simulate", "generation": gen})
		result, err := o.sim.RunGeneration(ctx, seed, gen)
		if err != nil {
			return out, err
		}

		score := o.evaluator.Score(result, seed.Goal)
		rec := GenerationRecord{Result: result, Fitness: score}
		o.emitResult(rec)
		o.logger.Info("generation scored", "generation", gen, "goal", seed.Goal, "fitness", score)

		switch {
		case score >= o.config.FitnessThreshold:
			out.Status = StatusOptimized
		case gen == o.config.MaxGenerations:
			out.Status = StatusExhausted
		default:
			o.bus.Emit(events.Phase, map[string]any{"phase": "evolve", "generation": gen})
			seed, rec.Rewrite = o.rewrite(ctx, rec)
		}

		out.Generations = append(out.Generations, rec)
		if o.onGen != nil {
			o.onGen(ctx, rec)
		}
		if out.Status != "" {
			break
		}
	}

	best, _ := out.Best()
	o.bus.Emit(events.Done, map[string]any{
		"status":       string(out.Status),
		"generations":  len(out.Generations),
		"best_fitness": best.Fitness,
	})
	return out, nil
}

// rewrite asks for revised copy. Blank fields and failures keep the prior
// seed; goal and audience always carry forward.
func (o *Orchestrator) rewrite(ctx context.Context, rec GenerationRecord) (models.CampaignSeed, *llm.Rewrite) {
	prior := rec.Result.Seed
	ctx, span := o.tracer.Start(ctx, "evolution.rewrite", trace.WithAttributes(
		attribute.Int("generation", rec.Result.Generation),
	))
	defer span.End()

	comments, mocks := Samples(rec.Result.Interactions)
	rw, err := o.rewriter.Rewrite(ctx, llm.RewriteRequest{
		Result:   rec.Result,
		Fitness:  rec.Fitness,
		Comments: comments,
		Mocks:    mocks,
	})
	if err != nil || rw == nil {
		span.RecordError(err)
		o.logger.Warn("rewrite failed, keeping current campaign", "generation", rec.Result.Generation, "error", err)
		o.bus.Emit(events.Error, map[string]any{
			"generation": rec.Result.Generation,
			"message":    "rewrite failed, keeping current campaign",
		})
		return prior, nil
	}

	rw.RevisedContent = sanitize.SanitizeText(rw.RevisedContent)
	rw.RevisedImageDescription = sanitize.SanitizeText(rw.RevisedImageDescription)
	next := prior.Revise(rw.RevisedContent, rw.RevisedImageDescription)

	o.bus.Emit(events.Evolution, map[string]any{
		"generation":      rec.Result.Generation,
		"analysis":        rw.Analysis,
		"strengths":       rw.Strengths,
		"weaknesses":      rw.Weaknesses,
		"revised_content": next.Content,
		"confidence":      rw.Confidence,
	})
	return next, rw
}

func (o *Orchestrator) emitResult(rec GenerationRecord) {
	r := rec.Result
	o.bus.Emit(events.Result, map[string]any{
		"generation": r.Generation,
		"reach":      r.Reach,
		"likes":      r.Likes,
		"comments":   r.Comments,
		"shares":     r.Shares,
		"mocks":      r.Mocks,
		"sentiment":  r.Sentiment,
		"virality":   r.Virality,
		"fitness":    rec.Fitness,
	})
}

// Samples returns up to MaxCommentSamples comment and quote-share texts and
// up to MaxMockSamples mock texts, in commit order.
func Samples(interactions []models.Interaction) (comments, mocks []string) {
	for _, in := range interactions {
		if in.Content == "" {
			continue
		}
		switch in.Action {
		case models.ActionComment, models.ActionQuoteShare:
			if len(comments) < MaxCommentSamples {
				comments = append(comments, in.Content)
			}
		case models.ActionMock:
			if len(mocks) < MaxMockSamples {
				mocks = append(mocks, in.Content)
			}
		}
	}
	return comments, mocks
}
