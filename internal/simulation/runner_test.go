package simulation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/nvandessel/resonance/internal/events"
	"github.com/nvandessel/resonance/internal/llm"
	"github.com/nvandessel/resonance/internal/models"
	"github.com/nvandessel/resonance/internal/socialgraph"
	"github.com/nvandessel/resonance/internal/spreading"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPersonas(n int) []*models.AgentProfile {
	out := make([]*models.AgentProfile, n)
	for i := range out {
		out[i] = &models.AgentProfile{
			ID:   fmt.Sprintf("p%d", i),
			Name: fmt.Sprintf("P%d", i),
			Mood: models.MoodNeutral,
		}
	}
	return out
}

func mustGraph(t *testing.T, personas []*models.AgentProfile, edges []socialgraph.Edge) *socialgraph.Graph {
	t.Helper()
	g, err := socialgraph.FromEdges(personas, edges)
	if err != nil {
		t.Fatalf("FromEdges: %v", err)
	}
	return g
}

// starGraph makes every other persona follow p0.
func starGraph(t *testing.T, n int) *socialgraph.Graph {
	t.Helper()
	var edges []socialgraph.Edge
	for i := 1; i < n; i++ {
		edges = append(edges, socialgraph.Edge{Follower: fmt.Sprintf("p%d", i), Followee: "p0"})
	}
	return mustGraph(t, newPersonas(n), edges)
}

// hubOnlyConfig seeds exactly the top influencer at tick 0.
func hubOnlyConfig(ticks int) Config {
	return Config{
		Ticks:       ticks,
		Spreading:   spreading.Config{Influencers: 1, SampleDivisor: 1000, AmplificationProbability: 0.3},
		Concurrency: 3,
	}
}

func seed() models.CampaignSeed {
	return models.CampaignSeed{Content: "Socks that never slip.", Goal: models.GoalEngagement, TargetAudience: "runners"}
}

func TestRunGeneration_CascadeAndFallback(t *testing.T) {
	g := starGraph(t, 6)
	mock := llm.NewMockClient().WithReactFunc(func(p *models.AgentProfile, feed string) (*llm.Decision, error) {
		switch p.ID {
		case "p0":
			return &llm.Decision{Action: models.ActionShare, Mood: models.MoodExcited}, nil
		case "p3":
			return nil, llm.ErrMalformedResponse
		default:
			return &llm.Decision{Action: models.ActionComment, Content: "so <b>cozy</b>", Mood: models.MoodHappy}, nil
		}
	})

	r := NewRunner(g, mock, hubOnlyConfig(3), rand.New(rand.NewSource(1)), Options{Logger: quietLogger()})
	result, err := r.RunGeneration(context.Background(), seed(), 1)
	if err != nil {
		t.Fatalf("RunGeneration: %v", err)
	}

	if len(result.Interactions) != 6 {
		t.Fatalf("got %d interactions, want 6", len(result.Interactions))
	}
	first := result.Interactions[0]
	if first.PersonaID != "p0" || first.Tick != 0 || first.Action != models.ActionShare {
		t.Errorf("tick 0 interaction = %+v", first)
	}
	for i, in := range result.Interactions[1:] {
		if want := fmt.Sprintf("p%d", i+1); in.PersonaID != want || in.Tick != 1 {
			t.Errorf("interaction %d = %s@%d, want %s@1", i+1, in.PersonaID, in.Tick, want)
		}
	}

	p3 := result.Interactions[3]
	if p3.Action != models.ActionIgnore || p3.Content != "" || !p3.Fallback {
		t.Errorf("malformed reaction not replaced by fallback: %+v", p3)
	}
	if g.Persona("p3").Mood != models.MoodNeutral {
		t.Errorf("fallback changed mood to %s", g.Persona("p3").Mood)
	}
	if g.Persona("p2").Mood != models.MoodHappy || g.Persona("p0").Mood != models.MoodExcited {
		t.Error("moods not applied from decisions")
	}
	if c := result.Interactions[1].Content; c != "so cozy" {
		t.Errorf("content not sanitized: %q", c)
	}

	// 1 share + 4 comments.
	if result.Reach != 5 || result.Shares != 1 || result.Comments != 4 {
		t.Errorf("analytics = reach %d shares %d comments %d", result.Reach, result.Shares, result.Comments)
	}
	if result.Sentiment != 0.2 {
		t.Errorf("Sentiment = %v, want 0.2", result.Sentiment)
	}

	ids := map[string]bool{}
	for _, in := range result.Interactions {
		if in.ID == "" || ids[in.ID] {
			t.Errorf("bad or duplicate interaction id %q", in.ID)
		}
		ids[in.ID] = true
	}
}

func TestRunGeneration_FeedsShowPriorReactions(t *testing.T) {
	g := starGraph(t, 3)
	mock := llm.NewMockClient().WithReactFunc(func(p *models.AgentProfile, feed string) (*llm.Decision, error) {
		if p.ID == "p0" {
			return &llm.Decision{Action: models.ActionQuoteShare, Content: "must have", Mood: models.MoodExcited}, nil
		}
		return &llm.Decision{Action: models.ActionLike, Mood: p.Mood}, nil
	})

	r := NewRunner(g, mock, hubOnlyConfig(2), rand.New(rand.NewSource(1)), Options{Logger: quietLogger()})
	if _, err := r.RunGeneration(context.Background(), seed(), 1); err != nil {
		t.Fatalf("RunGeneration: %v", err)
	}

	feeds := map[string]string{}
	for _, c := range mock.ReactCalls {
		feeds[c.PersonaID] = c.Feed
	}
	if !strings.Contains(feeds["p0"], noReactions) {
		t.Errorf("first viewer feed = %q", feeds["p0"])
	}
	if !strings.Contains(feeds["p1"], "@P0 [quote_share]: must have") {
		t.Errorf("follower feed missing the quote: %q", feeds["p1"])
	}
}

func TestRunGeneration_AllIgnore(t *testing.T) {
	g := starGraph(t, 9)
	cfg := hubOnlyConfig(3)
	cfg.Spreading.SampleDivisor = 3

	r := NewRunner(g, llm.NewMockClient(), cfg, rand.New(rand.NewSource(4)), Options{Logger: quietLogger()})
	result, err := r.RunGeneration(context.Background(), seed(), 1)
	if err != nil {
		t.Fatalf("RunGeneration: %v", err)
	}

	if len(result.Interactions) == 0 {
		t.Fatal("tick 0 should expose someone")
	}
	for _, in := range result.Interactions {
		if in.Tick != 0 {
			t.Errorf("ignores should not cascade, got tick %d", in.Tick)
		}
	}
	if result.Reach != 0 || result.Likes != 0 || result.Sentiment != 0 || result.Virality != 0 {
		t.Errorf("all-ignore analytics not zero: %+v", result)
	}
}

func TestRunGeneration_NoDoubleExposure(t *testing.T) {
	g := starGraph(t, 8)
	share := llm.NewMockClient().WithReactFunc(func(p *models.AgentProfile, feed string) (*llm.Decision, error) {
		return &llm.Decision{Action: models.ActionShare, Mood: p.Mood}, nil
	})

	cfg := hubOnlyConfig(4)
	cfg.Spreading.SampleDivisor = 2
	r := NewRunner(g, share, cfg, rand.New(rand.NewSource(9)), Options{Logger: quietLogger()})
	result, err := r.RunGeneration(context.Background(), seed(), 1)
	if err != nil {
		t.Fatalf("RunGeneration: %v", err)
	}

	seen := map[string]bool{}
	for _, in := range result.Interactions {
		if seen[in.PersonaID] {
			t.Errorf("%s reacted twice", in.PersonaID)
		}
		seen[in.PersonaID] = true
	}
	if len(seen) != 8 {
		t.Errorf("%d personas reacted, want all 8", len(seen))
	}
}

// ctxReactor honors cancellation and blocks for the personas in slow.
type ctxReactor struct {
	slow map[string]bool
}

func (c ctxReactor) React(ctx context.Context, p *models.AgentProfile, feed string) (*llm.Decision, error) {
	if c.slow[p.ID] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &llm.Decision{Action: models.ActionShare, Mood: models.MoodExcited}, nil
}

func TestRunGeneration_ReactionTimeoutFallsBack(t *testing.T) {
	g := starGraph(t, 4)
	cfg := hubOnlyConfig(2)
	cfg.ReactionTimeout = 20 * time.Millisecond

	r := NewRunner(g, ctxReactor{slow: map[string]bool{"p2": true}}, cfg, rand.New(rand.NewSource(1)), Options{Logger: quietLogger()})
	result, err := r.RunGeneration(context.Background(), seed(), 1)
	if err != nil {
		t.Fatalf("RunGeneration: %v", err)
	}

	byID := map[string]models.Interaction{}
	for _, in := range result.Interactions {
		byID[in.PersonaID] = in
	}
	if in := byID["p2"]; in.Action != models.ActionIgnore || !in.Fallback {
		t.Errorf("timed out persona = %+v", in)
	}
	if in := byID["p1"]; in.Action != models.ActionShare || in.Fallback {
		t.Errorf("sibling affected by timeout: %+v", in)
	}
}

func TestRunGeneration_IgnoresCancellation(t *testing.T) {
	g := starGraph(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(g, ctxReactor{}, hubOnlyConfig(2), rand.New(rand.NewSource(1)), Options{Logger: quietLogger()})
	result, err := r.RunGeneration(ctx, seed(), 1)
	if err != nil {
		t.Fatalf("RunGeneration: %v", err)
	}
	for _, in := range result.Interactions {
		if in.Fallback {
			t.Errorf("cancellation leaked into generation: %+v", in)
		}
	}
	if len(result.Interactions) != 4 {
		t.Errorf("got %d interactions, want 4", len(result.Interactions))
	}
}

// gaugeReactor records the peak number of concurrent calls.
type gaugeReactor struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (g *gaugeReactor) React(ctx context.Context, p *models.AgentProfile, feed string) (*llm.Decision, error) {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		old := g.peak.Load()
		if n <= old || g.peak.CompareAndSwap(old, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return &llm.Decision{Action: models.ActionLike, Mood: p.Mood}, nil
}

func TestCollector_BoundsConcurrency(t *testing.T) {
	gauge := &gaugeReactor{}
	c := &Collector{reactor: gauge, concurrency: 2, logger: quietLogger(), tracer: otel.Tracer("test")}

	batch := make([]Exposure, 8)
	for i, p := range newPersonas(8) {
		batch[i] = Exposure{Persona: p, Feed: "x"}
	}
	out := c.Collect(context.Background(), 1, 0, batch)

	if len(out) != 8 {
		t.Fatalf("got %d reactions", len(out))
	}
	if peak := gauge.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   llm.Decision
		want Reaction
	}{
		{
			name: "content dropped for share",
			in:   llm.Decision{Action: models.ActionShare, Content: "hidden", Mood: models.MoodHappy},
			want: Reaction{Action: models.ActionShare, Mood: models.MoodHappy},
		},
		{
			name: "unknown action ignored",
			in:   llm.Decision{Action: "retweet", Content: "x", Mood: models.MoodHappy},
			want: Reaction{Action: models.ActionIgnore, Mood: models.MoodHappy},
		},
		{
			name: "unknown mood keeps previous",
			in:   llm.Decision{Action: models.ActionMock, Content: "lol", Mood: "furious"},
			want: Reaction{Action: models.ActionMock, Content: "lol", Mood: models.MoodCynical},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.in
			if got := normalize(&d, models.MoodCynical); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRunGeneration_Deterministic(t *testing.T) {
	run := func() *models.SimulationResult {
		personas := make([]*models.AgentProfile, 20)
		interests := [][]string{{"coffee", "running"}, {"gaming"}, {"coffee", "books"}, {"running", "tech"}}
		for i := range personas {
			personas[i] = &models.AgentProfile{
				ID:             fmt.Sprintf("p%02d", i),
				Name:           fmt.Sprintf("P%d", i),
				Interests:      interests[i%len(interests)],
				InfluenceScore: float64(i%5) / 5,
				Mood:           models.Moods[i%len(models.Moods)],
			}
		}
		rng := rand.New(rand.NewSource(2024))
		g, err := socialgraph.Build(context.Background(), personas, 0.15, rng)
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		r := NewRunner(g, llm.NewFallbackClient(1), DefaultConfig(), rng, Options{Logger: quietLogger()})
		result, err := r.RunGeneration(context.Background(), models.CampaignSeed{Content: "Fresh coffee for your morning running club"}, 1)
		if err != nil {
			t.Fatalf("RunGeneration: %v", err)
		}
		return result
	}

	a, b := run(), run()
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed produced different generations")
	}
}

func TestRunGeneration_EmitsEvents(t *testing.T) {
	bus := events.NewBus()
	ch, unsub := bus.Subscribe(64)
	defer unsub()

	g := starGraph(t, 3)
	r := NewRunner(g, llm.NewMockClient(), hubOnlyConfig(2), rand.New(rand.NewSource(1)), Options{Logger: quietLogger(), Events: bus})
	if _, err := r.RunGeneration(context.Background(), seed(), 1); err != nil {
		t.Fatalf("RunGeneration: %v", err)
	}
	bus.Close()

	counts := map[events.Type]int{}
	for ev := range ch {
		counts[ev.Type]++
	}
	if counts[events.Tick] != 2 || counts[events.Reaction] != 1 {
		t.Errorf("event counts = %v", counts)
	}
}

func TestRunGeneration_Spans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))

	g := starGraph(t, 3)
	share := llm.NewMockClient().WithReactFunc(func(p *models.AgentProfile, feed string) (*llm.Decision, error) {
		return &llm.Decision{Action: models.ActionShare, Mood: p.Mood}, nil
	})
	r := NewRunner(g, share, hubOnlyConfig(2), rand.New(rand.NewSource(1)), Options{Logger: quietLogger()})
	if _, err := r.RunGeneration(context.Background(), seed(), 1); err != nil {
		t.Fatalf("RunGeneration: %v", err)
	}

	names := map[string]int{}
	for _, s := range rec.Ended() {
		names[s.Name()]++
	}
	if names["simulation.generation"] != 1 || names["simulation.tick"] != 2 || names["simulation.reaction"] != 3 {
		t.Errorf("spans = %v", names)
	}
}

func TestCollector_NilDecisionFallsBack(t *testing.T) {
	nilReactor := llm.NewMockClient().WithReactFunc(func(p *models.AgentProfile, feed string) (*llm.Decision, error) {
		return nil, nil
	})
	c := &Collector{reactor: nilReactor, concurrency: 1, logger: quietLogger(), tracer: otel.Tracer("test")}
	p := &models.AgentProfile{ID: "p", Mood: models.MoodAnxious}

	out := c.Collect(context.Background(), 1, 0, []Exposure{{Persona: p}})
	if !out[0].Fallback || out[0].Mood != models.MoodAnxious || !errors.Is(out[0].Err, errNoDecision) {
		t.Errorf("reaction = %+v", out[0])
	}
}
