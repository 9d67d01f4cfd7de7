// Package analytics reduces a generation's interactions to engagement counts
// and ratios.
package analytics

import "github.com/nvandessel/resonance/internal/models"

// Metrics is the aggregate view of a set of interactions.
type Metrics struct {
	Reach     int
	Likes     int
	Comments  int
	Shares    int
	Mocks     int
	Active    int
	Sentiment float64
	Virality  float64
}

// Compute counts actions and derives the ratios.
//
// Comments include mocks and shares include quote-shares. Sentiment and
// virality are taken over active (non-ignore) interactions and are both zero
// when nobody acted.
func Compute(interactions []models.Interaction) Metrics {
	var m Metrics
	for _, in := range interactions {
		switch in.Action {
		case models.ActionLike:
			m.Likes++
		case models.ActionComment:
			m.Comments++
		case models.ActionMock:
			m.Comments++
			m.Mocks++
		case models.ActionShare, models.ActionQuoteShare:
			m.Shares++
		}
		if in.Action != models.ActionIgnore {
			m.Active++
		}
	}
	m.Reach = m.Likes + m.Comments + m.Shares

	if m.Active == 0 {
		return m
	}
	m.Sentiment = float64(m.Likes+m.Shares-m.Mocks) / float64(m.Active)
	m.Virality = float64(m.Shares) / float64(m.Active)
	return m
}

// Apply computes metrics over result.Interactions and writes them into result.
func Apply(result *models.SimulationResult) Metrics {
	m := Compute(result.Interactions)
	result.Reach = m.Reach
	result.Likes = m.Likes
	result.Comments = m.Comments
	result.Shares = m.Shares
	result.Mocks = m.Mocks
	result.Sentiment = m.Sentiment
	result.Virality = m.Virality
	return m
}
