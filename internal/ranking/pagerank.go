// Package ranking scores personas by their position in the follow graph.
package ranking

import (
	"math"

	"github.com/nvandessel/resonance/internal/socialgraph"
)

// PageRankConfig tunes the power iteration.
type PageRankConfig struct {
	DampingFactor float64 // chance of following an edge rather than jumping
	MaxIterations int
	Tolerance     float64 // stop once no score moves by more than this
}

// DefaultPageRankConfig returns d=0.85, 100 iterations, tolerance 1e-6.
func DefaultPageRankConfig() PageRankConfig {
	return PageRankConfig{DampingFactor: 0.85, MaxIterations: 100, Tolerance: 1e-6}
}

// PageRank scores every persona in g by the attention flowing to it: each
// persona passes its score in equal parts to the personas it follows, and
// one who follows nobody spreads it over the whole population. Scores are
// scaled so the highest is 1.
func PageRank(g *socialgraph.Graph, config PageRankConfig) map[string]float64 {
	ids := g.IDs()
	n := len(ids)
	if n == 0 {
		return map[string]float64{}
	}

	index := make(map[string]int, n)
	for i, id := range ids {
		index[id] = i
	}
	// in[v] lists the followers of v; out[u] is how many u follows.
	in := make([][]int, n)
	out := make([]float64, n)
	for v, id := range ids {
		for _, f := range g.Followers(id) {
			in[v] = append(in[v], index[f])
		}
		out[v] = float64(len(g.Following(id)))
	}

	d, nf := config.DampingFactor, float64(n)
	rank := make([]float64, n)
	next := make([]float64, n)
	for i := range rank {
		rank[i] = 1 / nf
	}

	for range config.MaxIterations {
		var sink float64
		for u, deg := range out {
			if deg == 0 {
				sink += rank[u]
			}
		}
		base := (1-d)/nf + d*sink/nf

		var delta float64
		for v := range next {
			flow := 0.0
			for _, u := range in[v] {
				flow += rank[u] / out[u]
			}
			next[v] = base + d*flow
			delta = math.Max(delta, math.Abs(next[v]-rank[v]))
		}
		rank, next = next, rank
		if delta < config.Tolerance {
			break
		}
	}

	top := 0.0
	for _, r := range rank {
		top = math.Max(top, r)
	}
	scores := make(map[string]float64, n)
	for i, id := range ids {
		if top > 0 {
			scores[id] = rank[i] / top
		} else {
			scores[id] = rank[i]
		}
	}
	return scores
}
