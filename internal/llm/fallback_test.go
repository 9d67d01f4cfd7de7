package llm

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/nvandessel/resonance/internal/models"
)

func TestFallbackClient_Available(t *testing.T) {
	if !NewFallbackClient(1).Available() {
		t.Error("FallbackClient.Available() should return true")
	}
}

func TestFallbackClient_GeneratePersonas(t *testing.T) {
	ctx := context.Background()
	records, err := NewFallbackClient(7).GeneratePersonas(ctx, "urban coffee lovers", 12)
	if err != nil {
		t.Fatalf("GeneratePersonas: %v", err)
	}
	if len(records) != 12 {
		t.Fatalf("got %d records, want 12", len(records))
	}
	for _, r := range records {
		if r.Name == "" || r.Age < 18 || r.Location == "" {
			t.Errorf("incomplete record: %+v", r)
		}
		if len(r.Interests) == 0 || len(r.Interests) > MaxInterests {
			t.Errorf("interests %v out of range", r.Interests)
		}
		if r.InfluenceScore < 0 || r.InfluenceScore > 1 {
			t.Errorf("influence %v out of range", r.InfluenceScore)
		}
	}

	again, _ := NewFallbackClient(7).GeneratePersonas(ctx, "urban coffee lovers", 12)
	if !reflect.DeepEqual(records, again) {
		t.Error("same seed produced different personas")
	}
}

func TestFallbackClient_ReactIsDeterministic(t *testing.T) {
	ctx := context.Background()
	c := NewFallbackClient(1)
	p := &models.AgentProfile{
		ID:             "p1",
		Interests:      []string{"coffee", "running"},
		Mood:           models.MoodNeutral,
		InfluenceScore: 0.8,
	}
	feed := "=== SPONSORED POST ===\nCold brew coffee for your morning running routine"

	d1, err := c.React(ctx, p, feed)
	if err != nil {
		t.Fatalf("React: %v", err)
	}
	d2, _ := c.React(ctx, p, feed)
	if *d1 != *d2 {
		t.Errorf("React not deterministic: %+v vs %+v", d1, d2)
	}
	if d1.Action == models.ActionIgnore {
		t.Errorf("highly relevant post ignored: %+v", d1)
	}
	if d1.Action.CarriesContent() != (d1.Content != "") {
		t.Errorf("content %q does not match action %s", d1.Content, d1.Action)
	}
}

func TestFallbackClient_IrrelevantPostIsIgnored(t *testing.T) {
	c := NewFallbackClient(1)
	ignored := 0
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		p := &models.AgentProfile{ID: id, Interests: []string{"knitting"}, Mood: models.MoodNeutral}
		d, err := c.React(context.Background(), p, "crypto leverage trading app")
		if err != nil {
			t.Fatalf("React: %v", err)
		}
		if d.Action == models.ActionIgnore {
			ignored++
			if d.Mood != models.MoodBored {
				t.Errorf("neutral persona ignoring should get bored, got %s", d.Mood)
			}
		}
	}
	if ignored < 5 {
		t.Errorf("only %d of 8 uninterested personas ignored the post", ignored)
	}
}

func TestFallbackClient_Rewrite(t *testing.T) {
	c := NewFallbackClient(1)
	result := &models.SimulationResult{
		Generation: 1,
		Seed: models.CampaignSeed{
			Content: "New sneakers.",
			Goal:    models.GoalClicks,
		},
		Reach: 10, Shares: 2, Mocks: 1, Sentiment: 0.2,
	}
	rw, err := c.Rewrite(context.Background(), RewriteRequest{Result: result})
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if !strings.HasPrefix(rw.RevisedContent, "New sneakers.") || rw.RevisedContent == "New sneakers." {
		t.Errorf("RevisedContent = %q", rw.RevisedContent)
	}
	if len(rw.Strengths) == 0 || len(rw.Weaknesses) == 0 {
		t.Errorf("expected strengths and weaknesses: %+v", rw)
	}

	// Rewriting the rewrite swaps the call to action instead of stacking them.
	result.Seed.Content = rw.RevisedContent
	result.Generation = 2
	rw2, _ := c.Rewrite(context.Background(), RewriteRequest{Result: result})
	if strings.Count(rw2.RevisedContent, ".") > 3 {
		t.Errorf("calls to action stacked: %q", rw2.RevisedContent)
	}
	if !strings.HasPrefix(rw2.RevisedContent, "New sneakers. ") {
		t.Errorf("body lost: %q", rw2.RevisedContent)
	}

	if _, err := c.Rewrite(context.Background(), RewriteRequest{}); err == nil {
		t.Error("expected error for missing result")
	}
}

func TestFallbackClient_RewriteStripsStackedCallsToAction(t *testing.T) {
	c := NewFallbackClient(1)
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"two stacked", "Socks that never slip. Tell a friend. What do you think?", "Socks that never slip. Limited time. Click now."},
		{"three stacked across goals", "Socks that never slip. Agree or disagree? Tell a friend. Tap the link to learn more.", "Socks that never slip. Limited time. Click now."},
		{"none", "Socks that never slip.", "Socks that never slip. Limited time. Click now."},
		{"only a call to action", "Tell a friend.", "Limited time. Click now."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := RewriteRequest{Result: &models.SimulationResult{
				Generation: 1,
				Seed:       models.CampaignSeed{Content: tt.content, Goal: models.GoalClicks},
			}}
			// Repeat enough times that any dependence on map order would show.
			for i := 0; i < 50; i++ {
				rw, err := c.Rewrite(context.Background(), req)
				if err != nil {
					t.Fatalf("Rewrite: %v", err)
				}
				if rw.RevisedContent != tt.want {
					t.Fatalf("attempt %d: RevisedContent = %q, want %q", i, rw.RevisedContent, tt.want)
				}
			}
		})
	}
}
