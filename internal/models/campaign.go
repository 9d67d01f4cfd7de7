// Package models defines the core data types shared by the simulation,
// scoring and evolution packages.
package models

import "strings"

// Goal is the campaign objective a fitness score is computed against.
type Goal string

const (
	GoalBrandAwareness Goal = "brand_awareness"
	GoalClicks         Goal = "clicks"
	GoalControversy    Goal = "controversy"
	GoalEngagement     Goal = "engagement"
)

// Goals lists every supported goal in display order.
var Goals = []Goal{GoalBrandAwareness, GoalClicks, GoalControversy, GoalEngagement}

// ParseGoal maps a string to a Goal. Unknown values yield GoalEngagement.
func ParseGoal(s string) Goal {
	switch g := Goal(strings.ToLower(strings.TrimSpace(s))); g {
	case GoalBrandAwareness, GoalClicks, GoalControversy, GoalEngagement:
		return g
	default:
		return GoalEngagement
	}
}

// CampaignSeed is the marketing post under evaluation. It is treated as a
// value: each generation receives a fresh seed rather than an edited one.
type CampaignSeed struct {
	Content          string `json:"content" yaml:"content" bson:"content"`
	ImageDescription string `json:"image_description,omitempty" yaml:"image_description,omitempty" bson:"image_description,omitempty"`
	Goal             Goal   `json:"goal" yaml:"goal" bson:"goal"`
	TargetAudience   string `json:"target_audience" yaml:"target_audience" bson:"target_audience"`
}

// Revise returns a copy of the seed with new content and image description.
// Blank replacements keep the prior values. Goal and audience carry forward.
func (s CampaignSeed) Revise(content, imageDescription string) CampaignSeed {
	next := s
	if strings.TrimSpace(content) != "" {
		next.Content = content
	}
	if strings.TrimSpace(imageDescription) != "" {
		next.ImageDescription = imageDescription
	}
	return next
}
