// Package fitness scores a simulation result against its campaign goal.
package fitness

import "github.com/nvandessel/resonance/internal/models"

// Calibration holds the saturation points used to normalize raw counts.
// The defaults are empirical and may be tuned per deployment.
type Calibration struct {
	Reach       float64 `json:"reach" yaml:"reach"`
	Shares      float64 `json:"shares" yaml:"shares"`
	Comments    float64 `json:"comments" yaml:"comments"`
	Controversy float64 `json:"controversy" yaml:"controversy"`
}

// DefaultCalibration returns the standard saturation points.
func DefaultCalibration() Calibration {
	return Calibration{
		Reach:       100,
		Shares:      50,
		Comments:    50,
		Controversy: 80,
	}
}

// Norm maps v linearly from [lo, hi] onto [0, 1], clamping at both ends.
func Norm(v, lo, hi float64) float64 {
	if hi <= lo {
		if v >= hi {
			return 1
		}
		return 0
	}
	n := (v - lo) / (hi - lo)
	switch {
	case n < 0:
		return 0
	case n > 1:
		return 1
	default:
		return n
	}
}

// Evaluator computes fitness for a goal.
type Evaluator struct {
	cal Calibration
}

// NewEvaluator returns an evaluator. Zero-valued calibration fields fall back
// to the defaults.
func NewEvaluator(cal Calibration) *Evaluator {
	def := DefaultCalibration()
	if cal.Reach <= 0 {
		cal.Reach = def.Reach
	}
	if cal.Shares <= 0 {
		cal.Shares = def.Shares
	}
	if cal.Comments <= 0 {
		cal.Comments = def.Comments
	}
	if cal.Controversy <= 0 {
		cal.Controversy = def.Controversy
	}
	return &Evaluator{cal: cal}
}

// Calibration returns the effective calibration.
func (e *Evaluator) Calibration() Calibration { return e.cal }

// Score returns a fitness in [0, 1] for the result under the given goal.
//
// A generation in which nobody acted scores 0 for every goal: its sentiment
// is zero by policy rather than measured, so it contributes nothing.
func (e *Evaluator) Score(r *models.SimulationResult, goal models.Goal) float64 {
	if r == nil || r.Reach == 0 {
		return 0
	}

	reach := Norm(float64(r.Reach), 0, e.cal.Reach)
	shares := Norm(float64(r.Shares), 0, e.cal.Shares)
	comments := Norm(float64(r.Comments), 0, e.cal.Comments)
	sentiment := Norm(r.Sentiment, -1, 1)

	var f float64
	switch goal {
	case models.GoalBrandAwareness:
		f = 0.6*reach + 0.4*sentiment
	case models.GoalClicks:
		f = 0.7*shares + 0.3*reach
	case models.GoalControversy:
		// Comments already includes mocks, so mocks count twice here.
		f = 0.5*Norm(float64(r.Comments+r.Mocks), 0, e.cal.Controversy) + 0.5*reach
	default:
		f = 0.3*reach + 0.3*comments + 0.2*shares + 0.2*sentiment
	}
	return Norm(f, 0, 1)
}

// Score evaluates r with the default calibration.
func Score(r *models.SimulationResult, goal models.Goal) float64 {
	return NewEvaluator(DefaultCalibration()).Score(r, goal)
}
