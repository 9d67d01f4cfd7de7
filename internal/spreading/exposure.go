// Package spreading resolves which personas see the campaign post at each
// tick. Exposure starts at the most-followed personas plus a random slice of
// the population, then cascades along follow edges as personas share, quote,
// comment on, or mock the post.
package spreading

import (
	"math/rand"

	"github.com/nvandessel/resonance/internal/models"
	"github.com/nvandessel/resonance/internal/socialgraph"
)

// Config holds the cascade parameters.
type Config struct {
	// Influencers is how many top-followed personas are seeded at tick 0. Default: 5.
	Influencers int

	// SampleDivisor sets the tick-0 random sample size to len(population)/SampleDivisor. Default: 3.
	SampleDivisor int

	// AmplificationProbability is the chance each follower of a commenter or
	// mocker is exposed on a later tick. Default: 0.3.
	AmplificationProbability float64
}

// DefaultConfig returns the default cascade configuration.
func DefaultConfig() Config {
	return Config{
		Influencers:              5,
		SampleDivisor:            3,
		AmplificationProbability: 0.3,
	}
}

// Resolver tracks exposure for a single generation. A persona is returned by
// Resolve at most once; the exposed set only grows.
//
// Resolver is not safe for concurrent use. It draws from the session random
// source and must be called from the tick loop only.
type Resolver struct {
	graph   *socialgraph.Graph
	config  Config
	rng     *rand.Rand
	exposed map[string]bool
}

// NewResolver creates a resolver with an empty exposed set.
func NewResolver(g *socialgraph.Graph, config Config, rng *rand.Rand) *Resolver {
	if config.SampleDivisor <= 0 {
		config.SampleDivisor = DefaultConfig().SampleDivisor
	}
	return &Resolver{
		graph:   g,
		config:  config,
		rng:     rng,
		exposed: make(map[string]bool),
	}
}

// Influencers returns the personas treated as influencers for this generation.
func (r *Resolver) Influencers() []string {
	return r.graph.Influencers(r.config.Influencers)
}

// Exposed reports whether a persona has already seen the post.
func (r *Resolver) Exposed(id string) bool { return r.exposed[id] }

// ExposedCount returns the number of personas that have seen the post.
func (r *Resolver) ExposedCount() int { return len(r.exposed) }

// Resolve returns the personas newly exposed at the given tick and marks them
// exposed. history is every interaction committed so far in this generation.
func (r *Resolver) Resolve(tick int, history []models.Interaction) []string {
	var candidates []string
	if tick == 0 {
		candidates = r.initial()
	} else {
		candidates = r.cascade(history)
	}

	out := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if r.exposed[id] {
			continue
		}
		r.exposed[id] = true
		out = append(out, id)
	}
	return out
}

// initial seeds influencers plus a uniform sample without replacement.
func (r *Resolver) initial() []string {
	ids := r.graph.IDs()
	out := append([]string(nil), r.Influencers()...)

	k := len(ids) / r.config.SampleDivisor
	if k == 0 {
		return dedupe(out)
	}
	for _, i := range r.rng.Perm(len(ids))[:k] {
		out = append(out, ids[i])
	}
	return dedupe(out)
}

// cascade walks history in commit order. Reshares expose all unexposed
// followers; comments and mocks expose each with AmplificationProbability,
// drawn again on every tick the follower stays unexposed.
func (r *Resolver) cascade(history []models.Interaction) []string {
	var out []string
	for _, in := range history {
		switch {
		case in.Action.Reshares():
			for _, f := range r.graph.Followers(in.PersonaID) {
				if !r.exposed[f] {
					out = append(out, f)
				}
			}
		case in.Action.Amplifies():
			for _, f := range r.graph.Followers(in.PersonaID) {
				if r.exposed[f] {
					continue
				}
				if r.rng.Float64() < r.config.AmplificationProbability {
					out = append(out, f)
				}
			}
		}
	}
	return dedupe(out)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
