package models

import "strings"

// PersonalityType is an MBTI tag.
type PersonalityType string

const (
	INTJ PersonalityType = "INTJ"
	INTP PersonalityType = "INTP"
	ENTJ PersonalityType = "ENTJ"
	ENTP PersonalityType = "ENTP"
	INFJ PersonalityType = "INFJ"
	INFP PersonalityType = "INFP"
	ENFJ PersonalityType = "ENFJ"
	ENFP PersonalityType = "ENFP"
	ISTJ PersonalityType = "ISTJ"
	ISFJ PersonalityType = "ISFJ"
	ESTJ PersonalityType = "ESTJ"
	ESFJ PersonalityType = "ESFJ"
	ISTP PersonalityType = "ISTP"
	ISFP PersonalityType = "ISFP"
	ESTP PersonalityType = "ESTP"
	ESFP PersonalityType = "ESFP"
)

// PersonalityTypes lists all sixteen MBTI tags.
var PersonalityTypes = []PersonalityType{
	INTJ, INTP, ENTJ, ENTP, INFJ, INFP, ENFJ, ENFP,
	ISTJ, ISFJ, ESTJ, ESFJ, ISTP, ISFP, ESTP, ESFP,
}

// ParsePersonality maps a string to a PersonalityType, defaulting to ENFP.
func ParsePersonality(s string) PersonalityType {
	p := PersonalityType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range PersonalityTypes {
		if p == known {
			return p
		}
	}
	return ENFP
}

// PoliticalLeaning places a persona on a seven-point axis.
type PoliticalLeaning string

const (
	FarLeft     PoliticalLeaning = "far_left"
	Left        PoliticalLeaning = "left"
	CenterLeft  PoliticalLeaning = "center_left"
	Center      PoliticalLeaning = "center"
	CenterRight PoliticalLeaning = "center_right"
	Right       PoliticalLeaning = "right"
	FarRight    PoliticalLeaning = "far_right"
)

// PoliticalLeanings lists the axis from left to right.
var PoliticalLeanings = []PoliticalLeaning{FarLeft, Left, CenterLeft, Center, CenterRight, Right, FarRight}

// ParsePoliticalLeaning maps a string to a PoliticalLeaning, defaulting to Center.
func ParsePoliticalLeaning(s string) PoliticalLeaning {
	p := PoliticalLeaning(normalizeTag(s))
	for _, known := range PoliticalLeanings {
		if p == known {
			return p
		}
	}
	return Center
}

// PurchasingPower is a coarse income bracket.
type PurchasingPower string

const (
	PurchasingLow    PurchasingPower = "low"
	PurchasingMedium PurchasingPower = "medium"
	PurchasingHigh   PurchasingPower = "high"
	PurchasingLuxury PurchasingPower = "luxury"
)

// ParsePurchasingPower maps a string to a PurchasingPower, defaulting to medium.
func ParsePurchasingPower(s string) PurchasingPower {
	switch p := PurchasingPower(normalizeTag(s)); p {
	case PurchasingLow, PurchasingMedium, PurchasingHigh, PurchasingLuxury:
		return p
	default:
		return PurchasingMedium
	}
}

// Mood is a persona's transient emotional state. It changes after every reaction.
type Mood string

const (
	MoodHappy     Mood = "happy"
	MoodNeutral   Mood = "neutral"
	MoodIrritable Mood = "irritable"
	MoodBored     Mood = "bored"
	MoodExcited   Mood = "excited"
	MoodAnxious   Mood = "anxious"
	MoodCynical   Mood = "cynical"
)

// Moods lists every mood.
var Moods = []Mood{MoodHappy, MoodNeutral, MoodIrritable, MoodBored, MoodExcited, MoodAnxious, MoodCynical}

// ParseMood maps a string to a Mood. ok is false for unknown input, in which
// case MoodNeutral is returned.
func ParseMood(s string) (m Mood, ok bool) {
	m = Mood(normalizeTag(s))
	for _, known := range Moods {
		if m == known {
			return m, true
		}
	}
	return MoodNeutral, false
}

// AgentProfile is a synthetic social media user.
//
// Identity, demographics and psychographics are fixed once the population is
// generated. Following and Followers are written only by the graph builder,
// and Mood only by the reaction collector.
type AgentProfile struct {
	ID               string           `json:"id" bson:"_id"`
	Name             string           `json:"name" bson:"name"`
	Age              int              `json:"age" bson:"age"`
	Location         string           `json:"location" bson:"location"`
	Bio              string           `json:"bio" bson:"bio"`
	Personality      PersonalityType  `json:"personality" bson:"personality"`
	PoliticalLeaning PoliticalLeaning `json:"political_leaning" bson:"political_leaning"`
	PurchasingPower  PurchasingPower  `json:"purchasing_power" bson:"purchasing_power"`
	Interests        []string         `json:"interests" bson:"interests"`
	Mood             Mood             `json:"mood" bson:"mood"`
	InfluenceScore   float64          `json:"influence_score" bson:"influence_score"`
	Following        []string         `json:"following" bson:"following"`
	Followers        []string         `json:"followers" bson:"followers"`
}

// Handle returns the display handle used in reaction feeds.
func (p *AgentProfile) Handle() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// normalizeTag lowercases a tag and folds spaces and hyphens to underscores,
// so "Center-Left" and "center left" both parse.
func normalizeTag(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}
