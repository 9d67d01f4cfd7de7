package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/nvandessel/resonance/internal/models"
)

const systemPrompt = "You produce structured simulation data. Respond with JSON only, no markdown fences, no commentary."

const (
	// DefaultAge is used when a persona record has no usable age.
	DefaultAge = 25

	// DefaultLocation is used when a persona record has no location.
	DefaultLocation = "Unknown"

	// DefaultInfluence is used when a persona record has no influence score.
	DefaultInfluence = 0.5

	// MaxInterests caps the interests kept per persona.
	MaxInterests = 3
)

// PopulationPrompt asks for count personas drawn from the audience.
func PopulationPrompt(audience string, count int) string {
	return fmt.Sprintf(`Generate %d diverse social media users who would plausibly see a sponsored post aimed at this audience:

TARGET AUDIENCE: %s

Mix lurkers, influencers, trolls, normies and contrarians. Some should be skeptical
of ads, some brand-loyal, some chaotic. Vary ages, locations and personalities.

Return ONLY a JSON array. Each element must have exactly these fields:
{
  "name": "string",
  "age": int,
  "location": "string",
  "bio": "one-line personality summary under 10 words",
  "mbti": "one of %s",
  "political_leaning": "one of %s",
  "purchasing_power": "one of low|medium|high|luxury",
  "interests": ["at most 3 short tags"],
  "influence_score": float between 0 and 1
}`,
		count, audience, joinTags(models.PersonalityTypes), joinTags(models.PoliticalLeanings))
}

// ReactionPrompt puts a persona in character in front of its feed.
func ReactionPrompt(p *models.AgentProfile, feed string) string {
	return fmt.Sprintf(`You are simulating a social media user. Stay fully in character.

YOUR PROFILE:
- Name: %s | Age: %d | Location: %s
- Bio: %s
- MBTI: %s | Politics: %s | Purchasing power: %s
- Interests: %s
- Current mood: %s
- Influence (0-1): %.2f

WHAT YOU SEE:
%s

Based on your personality, mood and what you see, respond with ONLY a JSON object:
{
  "action": one of %s,
  "content": "your text if action is comment, quote_share or mock, otherwise empty",
  "new_mood": one of %s,
  "reasoning": "one sentence on why you chose this action"
}

Rules:
- Be authentic to your personality. A cynical INTJ will not gush over a basic ad.
- If others are mocking, you might pile on or push back, depending on your type.
- If the content does not match your interests, you will probably ignore it.
- Influencers comment and share more. Lurkers mostly ignore or like.
- Your mood should shift based on what you see.`,
		p.Name, p.Age, p.Location, p.Bio,
		p.Personality, p.PoliticalLeaning, p.PurchasingPower,
		strings.Join(p.Interests, ", "), p.Mood, p.InfluenceScore,
		feed, toJSONArray(models.ActionTypes), toJSONArray(models.Moods))
}

// RewritePrompt asks a strategist to explain a generation and revise the copy.
func RewritePrompt(req RewriteRequest) string {
	r := req.Result
	return fmt.Sprintf(`You are an expert social media strategist analyzing a simulated campaign run.

CAMPAIGN:
- Content: %s
- Image: %s
- Goal: %s
- Target audience: %s

RESULTS (generation %d, fitness %.2f):
- Total reach: %d
- Likes: %d
- Comments: %d
- Shares: %d
- Mocks: %d
- Sentiment (-1 to 1): %.2f
- Virality (0 to 1): %.2f

SAMPLE COMMENTS:
%s

SAMPLE MOCKS:
%s

Explain why the post performed this way, referencing the comments. Say what
resonated, what fell flat and what triggered backlash, then rewrite the copy
for the next generation.

Return ONLY a JSON object:
{
  "analysis": "2-3 sentence summary",
  "strengths": ["what worked"],
  "weaknesses": ["what did not"],
  "revised_content": "rewritten ad copy for generation %d",
  "revised_image_description": "updated image direction, or the same",
  "confidence": float 0-1 for the expected improvement
}`,
		r.Seed.Content, r.Seed.ImageDescription, r.Seed.Goal, r.Seed.TargetAudience,
		r.Generation, req.Fitness,
		r.Reach, r.Likes, r.Comments, r.Shares, r.Mocks, r.Sentiment, r.Virality,
		bulletList(req.Comments, "(No comments)"),
		bulletList(req.Mocks, "(No mocks)"),
		r.Generation+1)
}

type rawPersona struct {
	Name             string          `json:"name"`
	Age              json.RawMessage `json:"age"`
	Location         string          `json:"location"`
	Bio              string          `json:"bio"`
	MBTI             string          `json:"mbti"`
	PoliticalLeaning string          `json:"political_leaning"`
	PurchasingPower  string          `json:"purchasing_power"`
	Interests        []string        `json:"interests"`
	InfluenceScore   *float64        `json:"influence_score"`
}

// ParsePopulationResponse parses a JSON array of persona records. Each
// element is decoded on its own; elements that fail to decode or have no
// name are skipped. An error is returned only when the response holds no
// array at all.
func ParsePopulationResponse(response string) ([]PersonaRecord, error) {
	jsonStr := ExtractJSON(response)
	if jsonStr == "" {
		return nil, fmt.Errorf("%w: no JSON found in response", ErrMalformedResponse)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(jsonStr), &elems); err != nil {
		var wrapped struct {
			Personas []json.RawMessage `json:"personas"`
		}
		if err2 := json.Unmarshal([]byte(jsonStr), &wrapped); err2 != nil || wrapped.Personas == nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		elems = wrapped.Personas
	}

	out := make([]PersonaRecord, 0, len(elems))
	for _, elem := range elems {
		var raw rawPersona
		if err := json.Unmarshal(elem, &raw); err != nil {
			continue
		}
		if strings.TrimSpace(raw.Name) == "" {
			continue
		}
		out = append(out, raw.record())
	}
	return out, nil
}

func (r rawPersona) record() PersonaRecord {
	rec := PersonaRecord{
		Name:             strings.TrimSpace(r.Name),
		Age:              parseAge(r.Age),
		Location:         strings.TrimSpace(r.Location),
		Bio:              strings.TrimSpace(r.Bio),
		Personality:      models.ParsePersonality(r.MBTI),
		PoliticalLeaning: models.ParsePoliticalLeaning(r.PoliticalLeaning),
		PurchasingPower:  models.ParsePurchasingPower(r.PurchasingPower),
		InfluenceScore:   DefaultInfluence,
	}
	if rec.Location == "" {
		rec.Location = DefaultLocation
	}
	for _, tag := range r.Interests {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		rec.Interests = append(rec.Interests, tag)
		if len(rec.Interests) == MaxInterests {
			break
		}
	}
	if r.InfluenceScore != nil {
		rec.InfluenceScore = clamp01(*r.InfluenceScore)
	}
	return rec
}

// parseAge accepts ints, floats and numeric strings.
func parseAge(raw json.RawMessage) int {
	if len(raw) == 0 {
		return DefaultAge
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil && f > 0 {
		return int(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n); err == nil && n > 0 {
			return n
		}
	}
	return DefaultAge
}

// ParseDecision parses a reaction. Invalid JSON is an error. Within valid
// JSON an unknown action becomes ignore and an unknown mood keeps prevMood.
// Content is dropped for actions that carry none.
func ParseDecision(response string, prevMood models.Mood) (*Decision, error) {
	jsonStr := ExtractJSON(response)
	if jsonStr == "" {
		return nil, fmt.Errorf("%w: no JSON found in response", ErrMalformedResponse)
	}

	var raw struct {
		Action    string `json:"action"`
		Content   string `json:"content"`
		NewMood   string `json:"new_mood"`
		Reasoning string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	d := &Decision{Mood: prevMood, Reasoning: strings.TrimSpace(raw.Reasoning)}
	d.Action, _ = models.ParseAction(raw.Action)
	if mood, ok := models.ParseMood(raw.NewMood); ok {
		d.Mood = mood
	}
	if d.Action.CarriesContent() {
		d.Content = strings.TrimSpace(raw.Content)
	}
	return d, nil
}

// ParseRewriteResponse parses a rewrite. Blank revisions are returned as-is;
// the caller keeps the prior copy in that case.
func ParseRewriteResponse(response string) (*Rewrite, error) {
	jsonStr := ExtractJSON(response)
	if jsonStr == "" {
		return nil, fmt.Errorf("%w: no JSON found in response", ErrMalformedResponse)
	}

	var rw Rewrite
	if err := json.Unmarshal([]byte(jsonStr), &rw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	rw.RevisedContent = strings.TrimSpace(rw.RevisedContent)
	rw.RevisedImageDescription = strings.TrimSpace(rw.RevisedImageDescription)
	rw.Confidence = clamp01(rw.Confidence)
	return &rw, nil
}

var (
	jsonBlockRe    = regexp.MustCompile("(?s)```json\\s*\\n?(.*?)\\s*```")
	genericBlockRe = regexp.MustCompile("(?s)```\\s*\\n?(.*?)\\s*```")
)

// ExtractJSON extracts JSON content from a string, handling markdown code blocks.
// It looks for JSON wrapped in ```json...``` or ```...``` blocks, then for the
// outermost object or array in free text.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)

	if matches := jsonBlockRe.FindStringSubmatch(s); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	if matches := genericBlockRe.FindStringSubmatch(s); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s
	}

	// Prose around a bare JSON value.
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := "}"
	if s[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(s, closer)
	if end <= start {
		return ""
	}
	return s[start : end+1]
}

func bulletList(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(item)
	}
	return b.String()
}

func joinTags[T ~string](tags []T) string {
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = string(t)
	}
	return strings.Join(parts, "|")
}

// toJSONArray converts a tag slice to a JSON array string.
func toJSONArray[T ~string](items []T) string {
	bytes, _ := json.Marshal(items)
	return string(bytes)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
