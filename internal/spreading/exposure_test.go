package spreading

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/nvandessel/resonance/internal/models"
	"github.com/nvandessel/resonance/internal/socialgraph"
)

func personas(n int) []*models.AgentProfile {
	out := make([]*models.AgentProfile, n)
	for i := range out {
		out[i] = &models.AgentProfile{ID: fmt.Sprintf("p%d", i)}
	}
	return out
}

// starGraph makes p1..pN-1 all follow p0, and p2 follow p1.
func starGraph(t *testing.T, n int) *socialgraph.Graph {
	t.Helper()
	var edges []socialgraph.Edge
	for i := 1; i < n; i++ {
		edges = append(edges, socialgraph.Edge{Follower: fmt.Sprintf("p%d", i), Followee: "p0"})
	}
	edges = append(edges, socialgraph.Edge{Follower: "p2", Followee: "p1"})
	g, err := socialgraph.FromEdges(personas(n), edges)
	if err != nil {
		t.Fatalf("FromEdges: %v", err)
	}
	return g
}

func TestResolve_InitialSeed(t *testing.T) {
	g := starGraph(t, 9)
	r := NewResolver(g, Config{Influencers: 1, SampleDivisor: 3, AmplificationProbability: 0.3}, rand.New(rand.NewSource(3)))

	got := r.Resolve(0, nil)
	if len(got) == 0 || got[0] != "p0" {
		t.Fatalf("tick 0 = %v, want influencer p0 first", got)
	}
	// 1 influencer + 3 sampled, minus any overlap.
	if len(got) < 3 || len(got) > 4 {
		t.Errorf("tick 0 exposed %d personas, want 3-4", len(got))
	}
	if r.ExposedCount() != len(got) {
		t.Errorf("ExposedCount = %d, want %d", r.ExposedCount(), len(got))
	}
}

func TestResolve_SharesExposeAllFollowers(t *testing.T) {
	g := starGraph(t, 6)
	r := NewResolver(g, Config{Influencers: 1, SampleDivisor: 100}, rand.New(rand.NewSource(1)))

	if got := r.Resolve(0, nil); !reflect.DeepEqual(got, []string{"p0"}) {
		t.Fatalf("tick 0 = %v, want [p0]", got)
	}

	history := []models.Interaction{{PersonaID: "p0", Action: models.ActionShare, Tick: 0}}
	got := r.Resolve(1, history)
	want := []string{"p1", "p2", "p3", "p4", "p5"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tick 1 = %v, want %v", got, want)
	}

	// Everyone is exposed now; further shares expose nobody.
	history = append(history, models.Interaction{PersonaID: "p1", Action: models.ActionQuoteShare, Tick: 1})
	if got := r.Resolve(2, history); len(got) != 0 {
		t.Errorf("tick 2 = %v, want none", got)
	}
}

func TestResolve_LikesAndIgnoresDoNotCascade(t *testing.T) {
	g := starGraph(t, 4)
	r := NewResolver(g, Config{Influencers: 1, SampleDivisor: 100, AmplificationProbability: 1}, rand.New(rand.NewSource(1)))
	r.Resolve(0, nil)

	history := []models.Interaction{
		{PersonaID: "p0", Action: models.ActionLike},
		{PersonaID: "p0", Action: models.ActionIgnore},
	}
	if got := r.Resolve(1, history); len(got) != 0 {
		t.Errorf("tick 1 = %v, want none", got)
	}
}

func TestResolve_AmplificationBounds(t *testing.T) {
	g := starGraph(t, 6)

	always := NewResolver(g, Config{Influencers: 1, SampleDivisor: 100, AmplificationProbability: 1}, rand.New(rand.NewSource(1)))
	always.Resolve(0, nil)
	if got := always.Resolve(1, []models.Interaction{{PersonaID: "p0", Action: models.ActionMock}}); len(got) != 5 {
		t.Errorf("p=1 exposed %v, want all 5 followers", got)
	}

	never := NewResolver(g, Config{Influencers: 1, SampleDivisor: 100, AmplificationProbability: 0}, rand.New(rand.NewSource(1)))
	never.Resolve(0, nil)
	if got := never.Resolve(1, []models.Interaction{{PersonaID: "p0", Action: models.ActionComment}}); len(got) != 0 {
		t.Errorf("p=0 exposed %v, want none", got)
	}
}

func TestResolve_NoDoubleExposure(t *testing.T) {
	g := starGraph(t, 30)
	r := NewResolver(g, DefaultConfig(), rand.New(rand.NewSource(11)))

	seen := make(map[string]bool)
	var history []models.Interaction
	for tick := 0; tick < 6; tick++ {
		for _, id := range r.Resolve(tick, history) {
			if seen[id] {
				t.Fatalf("%s exposed twice", id)
			}
			seen[id] = true
			history = append(history, models.Interaction{PersonaID: id, Action: models.ActionComment, Tick: tick})
		}
	}
}

func TestResolve_EmptyPopulation(t *testing.T) {
	g, err := socialgraph.FromEdges(nil, nil)
	if err != nil {
		t.Fatalf("FromEdges: %v", err)
	}
	r := NewResolver(g, DefaultConfig(), rand.New(rand.NewSource(1)))
	if got := r.Resolve(0, nil); len(got) != 0 {
		t.Errorf("Resolve on empty graph = %v", got)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	run := func() []string {
		g := starGraph(t, 30)
		r := NewResolver(g, DefaultConfig(), rand.New(rand.NewSource(99)))
		var all []string
		var history []models.Interaction
		for tick := 0; tick < 3; tick++ {
			ids := r.Resolve(tick, history)
			all = append(all, ids...)
			for _, id := range ids {
				history = append(history, models.Interaction{PersonaID: id, Action: models.ActionMock})
			}
		}
		return all
	}
	if a, b := run(), run(); !reflect.DeepEqual(a, b) {
		t.Errorf("replay differs:\n%v\n%v", a, b)
	}
}
