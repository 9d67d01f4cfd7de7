package fitness

import (
	"math"
	"testing"

	"github.com/nvandessel/resonance/internal/models"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestNorm(t *testing.T) {
	tests := []struct {
		v, lo, hi, want float64
	}{
		{50, 0, 100, 0.5},
		{-5, 0, 100, 0},
		{500, 0, 100, 1},
		{0, -1, 1, 0.5},
		{-1, -1, 1, 0},
		{1, -1, 1, 1},
		{3, 3, 3, 1},
	}
	for _, tt := range tests {
		if got := Norm(tt.v, tt.lo, tt.hi); !approx(got, tt.want) {
			t.Errorf("Norm(%v, %v, %v) = %v, want %v", tt.v, tt.lo, tt.hi, got, tt.want)
		}
	}
}

func TestScore_Formulas(t *testing.T) {
	r := &models.SimulationResult{
		Reach:     50,
		Likes:     20,
		Comments:  20,
		Shares:    10,
		Mocks:     4,
		Sentiment: 0.5,
	}
	tests := []struct {
		goal models.Goal
		want float64
	}{
		{models.GoalBrandAwareness, 0.6*0.5 + 0.4*0.75},
		{models.GoalClicks, 0.7*0.2 + 0.3*0.5},
		{models.GoalControversy, 0.5*(24.0/80) + 0.5*0.5},
		{models.GoalEngagement, 0.3*0.5 + 0.3*0.4 + 0.2*0.2 + 0.2*0.75},
	}
	for _, tt := range tests {
		t.Run(string(tt.goal), func(t *testing.T) {
			if got := Score(r, tt.goal); !approx(got, tt.want) {
				t.Errorf("Score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScore_ControversySaturates(t *testing.T) {
	r := &models.SimulationResult{Reach: 100, Comments: 60, Mocks: 20, Likes: 40, Sentiment: -0.2}
	if got := Score(r, models.GoalControversy); !approx(got, 1.0) {
		t.Errorf("Score = %v, want 1.0", got)
	}
}

func TestScore_ZeroActivity(t *testing.T) {
	r := &models.SimulationResult{}
	for _, g := range models.Goals {
		if got := Score(r, g); got != 0 {
			t.Errorf("Score(%s) on empty result = %v, want 0", g, got)
		}
	}
	if got := Score(nil, models.GoalClicks); got != 0 {
		t.Errorf("Score(nil) = %v, want 0", got)
	}
}

func TestScore_Bounded(t *testing.T) {
	for reach := 0; reach <= 400; reach += 37 {
		for _, sentiment := range []float64{-1, -0.3, 0, 0.8, 1} {
			r := &models.SimulationResult{
				Reach:     reach,
				Shares:    reach / 2,
				Comments:  reach / 3,
				Mocks:     reach / 5,
				Sentiment: sentiment,
			}
			for _, g := range models.Goals {
				if got := Score(r, g); got < 0 || got > 1 {
					t.Fatalf("Score(%s) = %v out of [0,1] for %+v", g, got, r)
				}
			}
		}
	}
}

func TestNewEvaluator_Calibration(t *testing.T) {
	e := NewEvaluator(Calibration{Reach: 10})
	cal := e.Calibration()
	if cal.Reach != 10 {
		t.Errorf("Reach = %v, want 10", cal.Reach)
	}
	if cal.Shares != 50 || cal.Comments != 50 || cal.Controversy != 80 {
		t.Errorf("zero fields not defaulted: %+v", cal)
	}

	r := &models.SimulationResult{Reach: 10, Likes: 10, Sentiment: 1}
	if got := e.Score(r, models.GoalBrandAwareness); !approx(got, 1.0) {
		t.Errorf("Score with custom reach cap = %v, want 1.0", got)
	}
}
