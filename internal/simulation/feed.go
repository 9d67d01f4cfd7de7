package simulation

import (
	"strings"

	"github.com/nvandessel/resonance/internal/models"
	"github.com/nvandessel/resonance/internal/socialgraph"
)

const (
	postHeader      = "=== SPONSORED POST ==="
	reactionsHeader = "=== REACTIONS YOU CAN SEE ==="
	noReactions     = "(You are one of the first to see this post. No reactions yet.)"
	unknownAuthor   = "Unknown"
)

// Visible returns the committed interactions persona can see: those authored
// by someone it follows or by a current influencer. Ignores are never shown.
func Visible(g *socialgraph.Graph, personaID string, influencers map[string]bool, history []models.Interaction) []models.Interaction {
	var out []models.Interaction
	for _, in := range history {
		if in.Action == models.ActionIgnore {
			continue
		}
		if influencers[in.PersonaID] || g.Follows(personaID, in.PersonaID) {
			out = append(out, in)
		}
	}
	return out
}

// BuildFeed renders what a persona sees: the post, its image description,
// then either the visible reactions or a note that nobody has reacted yet.
func BuildFeed(seed models.CampaignSeed, visible []models.Interaction, g *socialgraph.Graph) string {
	var b strings.Builder
	b.WriteString(postHeader)
	b.WriteString("\n")
	b.WriteString(seed.Content)
	b.WriteString("\n")
	if seed.ImageDescription != "" {
		b.WriteString("[Image: ")
		b.WriteString(seed.ImageDescription)
		b.WriteString("]\n")
	}
	b.WriteString("\n")

	shown := 0
	for _, in := range visible {
		if in.Action == models.ActionIgnore {
			continue
		}
		if shown == 0 {
			b.WriteString(reactionsHeader)
			b.WriteString("\n")
		}
		shown++
		b.WriteString("@")
		b.WriteString(authorName(g, in.PersonaID))
		b.WriteString(" [")
		b.WriteString(string(in.Action))
		b.WriteString("]: ")
		b.WriteString(in.Content)
		b.WriteString("\n")
	}
	if shown == 0 {
		b.WriteString(noReactions)
		b.WriteString("\n")
	}

	return strings.TrimSuffix(b.String(), "\n")
}

func authorName(g *socialgraph.Graph, id string) string {
	if g == nil {
		return unknownAuthor
	}
	if p := g.Persona(id); p != nil {
		return p.Handle()
	}
	return unknownAuthor
}
