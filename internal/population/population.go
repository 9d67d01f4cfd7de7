// Package population turns collaborator-described personas into the agent
// profiles a session simulates.
package population

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"

	"github.com/google/uuid"

	"github.com/nvandessel/resonance/internal/events"
	"github.com/nvandessel/resonance/internal/llm"
	"github.com/nvandessel/resonance/internal/models"
	"github.com/nvandessel/resonance/internal/sanitize"
)

// DefaultBatchSize is how many personas are requested per call.
const DefaultBatchSize = 5

// ErrEmptyPopulation is returned when no batch produced a usable persona.
var ErrEmptyPopulation = errors.New("no personas generated")

// Generator requests personas in batches and builds agent profiles from them.
type Generator struct {
	client    llm.PopulationGenerator
	batchSize int
	logger    *slog.Logger
	bus       *events.Bus
}

// NewGenerator creates a Generator. bus may be nil.
func NewGenerator(client llm.PopulationGenerator, logger *slog.Logger, bus *events.Bus) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		client:    client,
		batchSize: DefaultBatchSize,
		logger:    logger,
		bus:       bus,
	}
}

// Generate asks for count personas matching audience. Batches run in order
// so a fixed rng yields the same ids and moods. A failed batch is logged and
// skipped; the population may therefore be smaller than count.
func (g *Generator) Generate(ctx context.Context, audience string, count int, rng *rand.Rand) ([]*models.AgentProfile, error) {
	if count < 1 {
		return nil, fmt.Errorf("population size must be at least 1, got %d", count)
	}

	personas := make([]*models.AgentProfile, 0, count)
	for remaining := count; remaining > 0; remaining -= g.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch := min(g.batchSize, remaining)
		records, err := g.client.GeneratePersonas(ctx, audience, batch)
		if err != nil {
			g.logger.Warn("persona batch failed", "batch_size", batch, "error", err)
			continue
		}
		if len(records) > batch {
			records = records[:batch]
		}

		for _, rec := range records {
			p, err := newProfile(rec, rng)
			if err != nil {
				g.logger.Warn("discarding persona", "error", err)
				continue
			}
			personas = append(personas, p)
			g.bus.Emit(events.PersonaCreated, map[string]any{
				"id":          p.ID,
				"name":        p.Name,
				"personality": string(p.Personality),
				"mood":        string(p.Mood),
				"influence":   p.InfluenceScore,
			})
		}
	}

	if len(personas) == 0 {
		return nil, ErrEmptyPopulation
	}
	g.logger.Debug("population generated", "requested", count, "generated", len(personas))
	return personas, nil
}

// newProfile assigns an id and an initial mood, both drawn from rng, and
// cleans the free-text fields.
func newProfile(rec llm.PersonaRecord, rng *rand.Rand) (*models.AgentProfile, error) {
	name := sanitize.SanitizeName(rec.Name)
	if name == "" {
		return nil, fmt.Errorf("persona %q has no usable name", rec.Name)
	}

	id, err := uuid.NewRandomFromReader(rng)
	if err != nil {
		return nil, fmt.Errorf("generating persona id: %w", err)
	}

	interests := make([]string, 0, len(rec.Interests))
	for _, in := range rec.Interests {
		if in = strings.TrimSpace(sanitize.SanitizeReaction(in)); in != "" {
			interests = append(interests, strings.ToLower(in))
		}
	}

	return &models.AgentProfile{
		ID:               id.String(),
		Name:             name,
		Age:              rec.Age,
		Location:         sanitize.SanitizeReaction(rec.Location),
		Bio:              sanitize.SanitizeText(rec.Bio),
		Personality:      rec.Personality,
		PoliticalLeaning: rec.PoliticalLeaning,
		PurchasingPower:  rec.PurchasingPower,
		Interests:        interests,
		Mood:             models.Moods[rng.Intn(len(models.Moods))],
		InfluenceScore:   rec.InfluenceScore,
		Following:        []string{},
		Followers:        []string{},
	}, nil
}
