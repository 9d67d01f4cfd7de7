package simulation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/resonance/internal/llm"
	"github.com/nvandessel/resonance/internal/logging"
	"github.com/nvandessel/resonance/internal/models"
	"github.com/nvandessel/resonance/internal/sanitize"
)

// errNoDecision marks a collaborator that returned neither a decision nor an error.
var errNoDecision = errors.New("collaborator returned no decision")

// Exposure is one persona due to react this tick, with the feed it sees.
type Exposure struct {
	Persona *models.AgentProfile
	Feed    string
}

// Reaction is the collected outcome for one Exposure.
type Reaction struct {
	Action    models.ActionType
	Content   string
	Mood      models.Mood
	Reasoning string

	// Fallback is set when the collaborator's answer was unusable and the
	// persona was recorded as ignoring the post with its mood unchanged.
	Fallback bool
	Err      error
}

// Collector asks the reactor how each exposed persona reacts.
type Collector struct {
	reactor     llm.Reactor
	concurrency int
	timeout     time.Duration
	logger      *slog.Logger
	decisions   *logging.DecisionLogger
	tracer      trace.Tracer
}

// Collect runs one reaction call per exposure, at most concurrency at a
// time, and returns the reactions in exposure order. It never fails: any
// error, timeout, or malformed answer becomes a fallback reaction.
//
// Personas are only read here. Moods are applied by the caller when the
// batch is committed.
func (c *Collector) Collect(ctx context.Context, generation, tick int, batch []Exposure) []Reaction {
	out := make([]Reaction, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.concurrency, 1))
	for i, ex := range batch {
		g.Go(func() error {
			out[i] = c.react(gctx, generation, tick, ex)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (c *Collector) react(ctx context.Context, generation, tick int, ex Exposure) Reaction {
	p := ex.Persona
	ctx, span := c.tracer.Start(ctx, "simulation.reaction", trace.WithAttributes(
		attribute.String("persona.id", p.ID),
		attribute.Int("generation", generation),
		attribute.Int("tick", tick),
	))
	defer span.End()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	d, err := c.reactor.React(ctx, p, ex.Feed)
	if err == nil && d == nil {
		err = errNoDecision
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fallback")
		c.logger.Warn("reaction failed, persona ignores the post",
			"persona", p.ID, "generation", generation, "tick", tick, "error", err)
		c.decisions.LogReaction(logging.Reaction{
			Generation: generation,
			Tick:       tick,
			PersonaID:  p.ID,
			Action:     string(models.ActionIgnore),
			Mood:       string(p.Mood),
			Fallback:   true,
			Reason:     err.Error(),
		})
		return Reaction{Action: models.ActionIgnore, Mood: p.Mood, Fallback: true, Err: err}
	}

	r := normalize(d, p.Mood)
	span.SetAttributes(attribute.String("action", string(r.Action)))
	c.decisions.LogReaction(logging.Reaction{
		Generation: generation,
		Tick:       tick,
		PersonaID:  p.ID,
		Action:     string(r.Action),
		Mood:       string(r.Mood),
	})
	return r
}

// normalize enforces the decision contract regardless of which provider
// produced it: known action, known mood, content only where it belongs.
func normalize(d *llm.Decision, prevMood models.Mood) Reaction {
	action, ok := models.ParseAction(string(d.Action))
	if !ok {
		action = models.ActionIgnore
	}
	mood, ok := models.ParseMood(string(d.Mood))
	if !ok {
		mood = prevMood
	}

	r := Reaction{Action: action, Mood: mood, Reasoning: sanitize.SanitizeReaction(d.Reasoning)}
	if action.CarriesContent() {
		r.Content = sanitize.SanitizeReaction(d.Content)
	}
	return r
}
