package analytics

import (
	"math"
	"testing"

	"github.com/nvandessel/resonance/internal/models"
)

func actions(as ...models.ActionType) []models.Interaction {
	out := make([]models.Interaction, len(as))
	for i, a := range as {
		out[i] = models.Interaction{PersonaID: "p", Action: a}
	}
	return out
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name string
		in   []models.Interaction
		want Metrics
	}{
		{
			name: "empty",
			in:   nil,
			want: Metrics{},
		},
		{
			name: "all ignore",
			in:   actions(models.ActionIgnore, models.ActionIgnore),
			want: Metrics{},
		},
		{
			name: "mixed",
			in: actions(
				models.ActionLike, models.ActionLike,
				models.ActionComment, models.ActionMock,
				models.ActionShare, models.ActionQuoteShare,
				models.ActionIgnore,
			),
			want: Metrics{
				Reach: 6, Likes: 2, Comments: 2, Shares: 2, Mocks: 1, Active: 6,
				Sentiment: float64(2+2-1) / 6,
				Virality:  2.0 / 6,
			},
		},
		{
			name: "only mocks",
			in:   actions(models.ActionMock, models.ActionMock),
			want: Metrics{Reach: 2, Comments: 2, Mocks: 2, Active: 2, Sentiment: -1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.in)
			if got.Reach != tt.want.Reach || got.Likes != tt.want.Likes ||
				got.Comments != tt.want.Comments || got.Shares != tt.want.Shares ||
				got.Mocks != tt.want.Mocks || got.Active != tt.want.Active {
				t.Errorf("counts = %+v, want %+v", got, tt.want)
			}
			if math.Abs(got.Sentiment-tt.want.Sentiment) > 1e-12 {
				t.Errorf("Sentiment = %f, want %f", got.Sentiment, tt.want.Sentiment)
			}
			if math.Abs(got.Virality-tt.want.Virality) > 1e-12 {
				t.Errorf("Virality = %f, want %f", got.Virality, tt.want.Virality)
			}
			if got.Reach != got.Likes+got.Comments+got.Shares {
				t.Error("reach identity violated")
			}
			if got.Sentiment < -1 || got.Sentiment > 1 || got.Virality < 0 || got.Virality > 1 {
				t.Errorf("ratios out of range: %+v", got)
			}
		})
	}
}

func TestApply(t *testing.T) {
	result := &models.SimulationResult{
		Interactions: actions(models.ActionShare, models.ActionLike),
	}
	Apply(result)
	if result.Reach != 2 || result.Shares != 1 || result.Likes != 1 {
		t.Errorf("Apply counts wrong: %+v", result)
	}
	if result.Sentiment != 1 || result.Virality != 0.5 {
		t.Errorf("Apply ratios wrong: sentiment=%f virality=%f", result.Sentiment, result.Virality)
	}
}
