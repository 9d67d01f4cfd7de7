// Package socialgraph builds the directed follow graph personas react over.
//
// An edge a -> b means "a follows b". Edges are sampled once per session and
// the graph is read-only afterwards.
package socialgraph

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/nvandessel/resonance/internal/models"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBaseProbability is the base follow probability p0.
	DefaultBaseProbability = 0.15

	// SharedInterestBonus is added per shared interest tag.
	SharedInterestBonus = 0.05

	// MaxEdgeProbability caps the follow probability.
	MaxEdgeProbability = 0.8
)

// EdgeProbability returns the probability that a persona follows a target
// with the given influence score and number of shared interests.
func EdgeProbability(p0, influence float64, shared int) float64 {
	p := p0*influence + SharedInterestBonus*float64(shared)
	if p > MaxEdgeProbability {
		return MaxEdgeProbability
	}
	return p
}

// SharedInterests counts the distinct interest tags held by both personas.
func SharedInterests(a, b *models.AgentProfile) int {
	if len(a.Interests) == 0 || len(b.Interests) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a.Interests))
	for _, tag := range a.Interests {
		set[tag] = true
	}
	n := 0
	for _, tag := range b.Interests {
		if set[tag] {
			n++
			delete(set, tag)
		}
	}
	return n
}

// Graph is a frozen follow graph over a persona population.
type Graph struct {
	order     []string
	personas  map[string]*models.AgentProfile
	index     map[string]int
	following map[string]map[string]bool
	followers map[string]map[string]bool
	edges     int
}

// Edge is a single follow relation.
type Edge struct {
	Follower string `json:"follower"`
	Followee string `json:"followee"`
}

// Build samples the follow graph. Every ordered pair (a, b) with a != b is
// visited in population order and linked when rng.Float64() falls below
// EdgeProbability(p0, b.InfluenceScore, shared). Probabilities are computed
// per row in parallel; the random draws are taken sequentially so the same
// seed always produces the same graph.
//
// Build writes the Following and Followers slices of each persona.
func Build(ctx context.Context, personas []*models.AgentProfile, p0 float64, rng *rand.Rand) (*Graph, error) {
	for i, p := range personas {
		if p == nil {
			return nil, fmt.Errorf("persona %d is nil", i)
		}
	}

	g := newGraph(personas)
	if len(g.order) != len(personas) {
		return nil, fmt.Errorf("duplicate persona id in population")
	}

	probs := make([][]float64, len(personas))
	eg, _ := errgroup.WithContext(ctx)
	for i := range personas {
		eg.Go(func() error {
			row := make([]float64, len(personas))
			for j, target := range personas {
				if i == j {
					continue
				}
				row[j] = EdgeProbability(p0, target.InfluenceScore, SharedInterests(personas[i], target))
			}
			probs[i] = row
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for i, a := range personas {
		for j, b := range personas {
			if i == j {
				continue
			}
			if rng.Float64() < probs[i][j] {
				g.link(a.ID, b.ID)
			}
		}
	}

	for _, p := range personas {
		p.Following = g.Following(p.ID)
		p.Followers = g.Followers(p.ID)
	}
	return g, nil
}

// FromEdges builds a graph from an explicit edge list. Edges naming unknown
// personas or linking a persona to itself are rejected.
func FromEdges(personas []*models.AgentProfile, edges []Edge) (*Graph, error) {
	g := newGraph(personas)
	if len(g.order) != len(personas) {
		return nil, fmt.Errorf("duplicate persona id in population")
	}
	for _, e := range edges {
		if g.personas[e.Follower] == nil || g.personas[e.Followee] == nil {
			return nil, fmt.Errorf("edge %s -> %s references unknown persona", e.Follower, e.Followee)
		}
		if e.Follower == e.Followee {
			return nil, fmt.Errorf("self-loop on %s", e.Follower)
		}
		g.link(e.Follower, e.Followee)
	}
	for _, p := range personas {
		p.Following = g.Following(p.ID)
		p.Followers = g.Followers(p.ID)
	}
	return g, nil
}

func newGraph(personas []*models.AgentProfile) *Graph {
	g := &Graph{
		personas:  make(map[string]*models.AgentProfile, len(personas)),
		index:     make(map[string]int, len(personas)),
		following: make(map[string]map[string]bool, len(personas)),
		followers: make(map[string]map[string]bool, len(personas)),
	}
	for _, p := range personas {
		if _, dup := g.personas[p.ID]; dup {
			continue
		}
		g.index[p.ID] = len(g.order)
		g.order = append(g.order, p.ID)
		g.personas[p.ID] = p
		g.following[p.ID] = make(map[string]bool)
		g.followers[p.ID] = make(map[string]bool)
	}
	return g
}

func (g *Graph) link(follower, followee string) {
	if follower == followee || g.following[follower][followee] {
		return
	}
	g.following[follower][followee] = true
	g.followers[followee][follower] = true
	g.edges++
}

// Len returns the number of personas.
func (g *Graph) Len() int { return len(g.order) }

// EdgeCount returns the number of follow edges.
func (g *Graph) EdgeCount() int { return g.edges }

// Persona returns the persona with the given id, or nil.
func (g *Graph) Persona(id string) *models.AgentProfile { return g.personas[id] }

// Personas returns the population in its original order.
func (g *Graph) Personas() []*models.AgentProfile {
	out := make([]*models.AgentProfile, len(g.order))
	for i, id := range g.order {
		out[i] = g.personas[id]
	}
	return out
}

// IDs returns persona ids in population order.
func (g *Graph) IDs() []string {
	return append([]string(nil), g.order...)
}

// Follows reports whether follower follows followee.
func (g *Graph) Follows(follower, followee string) bool {
	return g.following[follower][followee]
}

// Following returns the ids a persona follows, in population order.
func (g *Graph) Following(id string) []string { return g.ordered(g.following[id]) }

// Followers returns the ids following a persona, in population order.
func (g *Graph) Followers(id string) []string { return g.ordered(g.followers[id]) }

// FollowerCount returns the number of followers of a persona.
func (g *Graph) FollowerCount(id string) int { return len(g.followers[id]) }

// Influencers returns the n personas with the most followers. Ties keep
// population order.
func (g *Graph) Influencers(n int) []string {
	ids := g.IDs()
	sort.SliceStable(ids, func(i, j int) bool {
		return len(g.followers[ids[i]]) > len(g.followers[ids[j]])
	})
	if n < 0 {
		n = 0
	}
	if n > len(ids) {
		n = len(ids)
	}
	return ids[:n]
}

// FollowersOf returns every persona whose following set intersects ids,
// in population order.
func (g *Graph) FollowersOf(ids []string) []string {
	set := make(map[string]bool)
	for _, id := range ids {
		for f := range g.followers[id] {
			set[f] = true
		}
	}
	return g.ordered(set)
}

// Edges returns all edges ordered by follower then followee population order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, g.edges)
	for _, a := range g.order {
		for _, b := range g.Following(a) {
			out = append(out, Edge{Follower: a, Followee: b})
		}
	}
	return out
}

func (g *Graph) ordered(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return g.index[out[i]] < g.index[out[j]] })
	return out
}
