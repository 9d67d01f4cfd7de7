package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/resonance/internal/models"
)

// GenerationFile is the on-disk shape of gen_<n>.json.
type GenerationFile struct {
	Generation   int                  `json:"generation"`
	Seed         models.CampaignSeed  `json:"seed"`
	Fitness      float64              `json:"fitness"`
	Analytics    GenerationAnalytics  `json:"analytics"`
	Interactions []models.Interaction `json:"interactions"`
}

// GenerationAnalytics is the analytics block of a GenerationFile.
type GenerationAnalytics struct {
	TotalReach     int     `json:"total_reach"`
	Likes          int     `json:"likes"`
	Comments       int     `json:"comments"`
	Shares         int     `json:"shares"`
	Mocks          int     `json:"mocks"`
	SentimentScore float64 `json:"sentiment_score"`
	ViralityScore  float64 `json:"virality_score"`
}

// GenerationFileName returns the export file name for generation n.
func GenerationFileName(n int) string {
	return fmt.Sprintf("gen_%d.json", n)
}

// ExportGeneration writes g to dir/gen_<n>.json, replacing any earlier
// export of the same generation, and returns the path written.
func ExportGeneration(dir string, g Generation) (string, error) {
	if g.Result == nil {
		return "", fmt.Errorf("generation %d has no result", g.Number)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	r := g.Result
	interactions := r.Interactions
	if interactions == nil {
		interactions = []models.Interaction{}
	}
	file := GenerationFile{
		Generation: g.Number,
		Seed:       r.Seed,
		Fitness:    g.Fitness,
		Analytics: GenerationAnalytics{
			TotalReach:     r.Reach,
			Likes:          r.Likes,
			Comments:       r.Comments,
			Shares:         r.Shares,
			Mocks:          r.Mocks,
			SentimentScore: r.Sentiment,
			ViralityScore:  r.Virality,
		},
		Interactions: interactions,
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal generation %d: %w", g.Number, err)
	}

	path := filepath.Join(dir, GenerationFileName(g.Number))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return path, nil
}
