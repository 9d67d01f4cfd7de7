package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"math/rand"
	"strings"
	"sync"

	"github.com/nvandessel/resonance/internal/models"
	"github.com/nvandessel/resonance/internal/similarity"
)

// FallbackClient implements Client with deterministic heuristics instead of
// LLM calls. Reactions depend only on the persona and its feed, so a run is
// reproducible for a given seed. It is used for offline runs and smoke tests,
// and, with an Embedder attached, as the "local" provider.
type FallbackClient struct {
	mu  sync.Mutex
	rng *rand.Rand

	relevance *embeddingRelevance
	closer    io.Closer
}

// NewFallbackClient creates a FallbackClient whose population draws come from seed.
func NewFallbackClient(seed int64) *FallbackClient {
	return &FallbackClient{rng: rand.New(rand.NewSource(seed))}
}

// WithEmbedder makes React judge relevance by embedding similarity between
// the persona's interests and the feed, on top of plain word overlap. If e
// is an io.Closer, Close releases it.
func (c *FallbackClient) WithEmbedder(e Embedder) *FallbackClient {
	c.relevance = newEmbeddingRelevance(e)
	if cl, ok := e.(io.Closer); ok {
		c.closer = cl
	}
	return c
}

// Close releases the attached embedder, if any.
func (c *FallbackClient) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

var (
	fallbackFirstNames = []string{"Ava", "Ben", "Chloe", "Dev", "Elena", "Felix", "Grace", "Hiro", "Imani", "Jonas", "Kai", "Lena", "Marco", "Nia", "Omar", "Priya", "Quinn", "Rosa", "Sam", "Tariq"}
	fallbackLastNames  = []string{"Park", "Silva", "Novak", "Okafor", "Reyes", "Chen", "Dubois", "Haddad", "Kowalski", "Mensah", "Rossi", "Tanaka"}
	fallbackLocations  = []string{"Austin", "Berlin", "Lagos", "Lisbon", "Manila", "Mexico City", "Mumbai", "Seoul", "Toronto", "Leeds"}
	fallbackInterests  = []string{"fitness", "gaming", "cooking", "travel", "fashion", "music", "tech", "finance", "parenting", "sports", "art", "sustainability"}
	fallbackArchetypes = []string{"lurker who rarely posts", "loud contrarian", "brand-loyal early adopter", "meme-first troll", "friendly normie", "niche micro-influencer"}
)

// GeneratePersonas builds personas from fixed tables, seeding interests with
// words from the audience description.
func (c *FallbackClient) GeneratePersonas(ctx context.Context, audience string, count int) ([]PersonaRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var audienceTags []string
	for _, w := range similarity.Tokenize(strings.ToLower(audience)) {
		if len(w) > 3 {
			audienceTags = append(audienceTags, w)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]PersonaRecord, 0, count)
	for i := 0; i < count; i++ {
		r := c.rng
		rec := PersonaRecord{
			Name:             fallbackFirstNames[r.Intn(len(fallbackFirstNames))] + " " + fallbackLastNames[r.Intn(len(fallbackLastNames))],
			Age:              18 + r.Intn(50),
			Location:         fallbackLocations[r.Intn(len(fallbackLocations))],
			Bio:              fallbackArchetypes[r.Intn(len(fallbackArchetypes))],
			Personality:      models.PersonalityTypes[r.Intn(len(models.PersonalityTypes))],
			PoliticalLeaning: models.PoliticalLeanings[r.Intn(len(models.PoliticalLeanings))],
			PurchasingPower:  []models.PurchasingPower{models.PurchasingLow, models.PurchasingMedium, models.PurchasingHigh, models.PurchasingLuxury}[r.Intn(4)],
			// Squared uniform: most personas have little reach, a few have a lot.
			InfluenceScore: r.Float64() * r.Float64(),
		}
		if len(audienceTags) > 0 && r.Float64() < 0.6 {
			rec.Interests = append(rec.Interests, audienceTags[r.Intn(len(audienceTags))])
		}
		for len(rec.Interests) < 2+r.Intn(2) {
			tag := fallbackInterests[r.Intn(len(fallbackInterests))]
			if !contains(rec.Interests, tag) {
				rec.Interests = append(rec.Interests, tag)
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// React scores how relevant the feed is to the persona and maps that score,
// the persona's mood, and visible mockery onto an action.
func (c *FallbackClient) React(ctx context.Context, persona *models.AgentProfile, feed string) (*Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	relevance := similarity.InterestOverlap(persona.Interests, feed)
	if c.relevance != nil {
		semantic, err := c.relevance.score(ctx, persona, feed)
		if err != nil {
			return nil, fmt.Errorf("embedding relevance: %w", err)
		}
		relevance = max(relevance, semantic)
	}
	score := 0.6*relevance + 0.25*persona.InfluenceScore + 0.15*similarity.Jaccard(persona.Bio, feed)
	switch persona.Mood {
	case models.MoodExcited, models.MoodHappy:
		score += 0.1
	case models.MoodBored:
		score -= 0.1
	}

	mockChance := 0.05
	if persona.Mood == models.MoodCynical || persona.Mood == models.MoodIrritable {
		mockChance += 0.2
	}
	mockChance += 0.1 * float64(min(strings.Count(feed, "[mock]"), 3))

	u := unitHash(persona.ID, feed)
	topic := "this"
	if len(persona.Interests) > 0 {
		topic = persona.Interests[int(u*1000)%len(persona.Interests)]
	}

	d := &Decision{Mood: persona.Mood}
	switch {
	case u < mockChance:
		d.Action = models.ActionMock
		d.Content = fmt.Sprintf("Another ad pretending to care about %s. Hard pass.", topic)
		d.Mood = models.MoodCynical
	case score >= 0.55 && persona.InfluenceScore >= 0.5:
		d.Action = models.ActionQuoteShare
		d.Content = fmt.Sprintf("Finally something for the %s crowd. Worth a look.", topic)
		d.Mood = models.MoodExcited
	case score >= 0.5:
		d.Action = models.ActionShare
		d.Mood = models.MoodExcited
	case score >= 0.3:
		d.Action = models.ActionComment
		d.Content = fmt.Sprintf("Curious how this works for %s.", topic)
		d.Mood = models.MoodHappy
	case score >= 0.15:
		d.Action = models.ActionLike
		d.Mood = models.MoodHappy
	default:
		d.Action = models.ActionIgnore
		if d.Mood == models.MoodNeutral {
			d.Mood = models.MoodBored
		}
	}
	d.Reasoning = fmt.Sprintf("relevance %.2f, score %.2f", relevance, score)
	return d, nil
}

var fallbackCallsToAction = map[models.Goal][]string{
	models.GoalBrandAwareness: {"Tell a friend.", "Remember the name.", "You'll see us around."},
	models.GoalClicks:         {"Tap the link to learn more.", "Limited time. Click now.", "See it in action. Link in bio."},
	models.GoalControversy:    {"Fight us in the comments.", "Agree or disagree?", "Unpopular opinion? Say it."},
	models.GoalEngagement:     {"What do you think?", "Tell us your take below.", "Tag someone who needs this."},
}

// Rewrite swaps the call to action for the goal and reports metric-driven
// strengths and weaknesses.
func (c *FallbackClient) Rewrite(ctx context.Context, req RewriteRequest) (*Rewrite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Result == nil {
		return nil, fmt.Errorf("rewrite request has no result")
	}
	r := req.Result

	ctas, ok := fallbackCallsToAction[r.Seed.Goal]
	if !ok {
		ctas = fallbackCallsToAction[models.GoalEngagement]
	}
	body := stripCallsToAction(r.Seed.Content)
	cta := ctas[r.Generation%len(ctas)]

	rw := &Rewrite{
		Analysis: fmt.Sprintf("Generation %d reached %d personas with sentiment %.2f and virality %.2f.",
			r.Generation, r.Reach, r.Sentiment, r.Virality),
		RevisedContent: strings.TrimSpace(body + " " + cta),
		Confidence:     0.3,
	}
	if r.Shares > 0 {
		rw.Strengths = append(rw.Strengths, fmt.Sprintf("%d shares carried the post beyond the seed audience", r.Shares))
	}
	if r.Sentiment > 0 {
		rw.Strengths = append(rw.Strengths, "net positive sentiment")
	}
	if r.Mocks > 0 {
		rw.Weaknesses = append(rw.Weaknesses, fmt.Sprintf("%d personas mocked the post", r.Mocks))
	}
	if r.Reach == 0 {
		rw.Weaknesses = append(rw.Weaknesses, "nobody engaged")
	}
	return rw, nil
}

// stripCallsToAction removes every trailing call to action, however many
// earlier rewrites stacked up. Goals are walked in their fixed order so the
// result does not depend on map iteration.
func stripCallsToAction(content string) string {
	body := strings.TrimSpace(content)
	for {
		before := body
		for _, g := range models.Goals {
			for _, cta := range fallbackCallsToAction[g] {
				body = strings.TrimSpace(strings.TrimSuffix(body, cta))
			}
		}
		if body == before {
			return body
		}
	}
}

// Available always returns true.
func (c *FallbackClient) Available() bool { return true }

// unitHash maps its inputs to a stable value in [0, 1).
func unitHash(parts ...string) float64 {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return float64(h.Sum64()>>11) / float64(1<<53)
}

func contains(items []string, s string) bool {
	for _, it := range items {
		if it == s {
			return true
		}
	}
	return false
}
