package models

// ActionType is what a persona did after seeing the post.
type ActionType string

const (
	ActionIgnore     ActionType = "ignore"
	ActionLike       ActionType = "like"
	ActionComment    ActionType = "comment"
	ActionShare      ActionType = "share"
	ActionQuoteShare ActionType = "quote_share"
	ActionMock       ActionType = "mock"
)

// ActionTypes lists every action.
var ActionTypes = []ActionType{ActionIgnore, ActionLike, ActionComment, ActionShare, ActionQuoteShare, ActionMock}

// ParseAction maps a string to an ActionType. ok is false for unknown input,
// in which case ActionIgnore is returned.
func ParseAction(s string) (a ActionType, ok bool) {
	a = ActionType(normalizeTag(s))
	for _, known := range ActionTypes {
		if a == known {
			return a, true
		}
	}
	return ActionIgnore, false
}

// CarriesContent reports whether the action produces text visible to others.
func (a ActionType) CarriesContent() bool {
	return a == ActionComment || a == ActionQuoteShare || a == ActionMock
}

// Reshares reports whether the action pushes the post to every follower.
func (a ActionType) Reshares() bool {
	return a == ActionShare || a == ActionQuoteShare
}

// Amplifies reports whether the action gives followers a chance of exposure.
func (a ActionType) Amplifies() bool {
	return a == ActionComment || a == ActionMock
}

// Interaction records one persona's reaction during a tick. Interactions are
// append-only.
type Interaction struct {
	ID        string     `json:"id" bson:"id"`
	PersonaID string     `json:"persona_id" bson:"persona_id"`
	Action    ActionType `json:"action" bson:"action"`
	Content   string     `json:"content,omitempty" bson:"content,omitempty"`
	Reasoning string     `json:"reasoning,omitempty" bson:"reasoning,omitempty"`
	Tick      int        `json:"tick" bson:"tick"`
	Fallback  bool       `json:"fallback,omitempty" bson:"fallback,omitempty"`
}

// SimulationResult summarizes one generation. The aggregate fields are
// written once, by the analytics package, after the last tick.
type SimulationResult struct {
	Generation   int           `json:"generation" bson:"generation"`
	Seed         CampaignSeed  `json:"seed" bson:"seed"`
	Interactions []Interaction `json:"interactions" bson:"interactions"`

	Reach     int     `json:"reach" bson:"reach"`
	Likes     int     `json:"likes" bson:"likes"`
	Comments  int     `json:"comments" bson:"comments"`
	Shares    int     `json:"shares" bson:"shares"`
	Mocks     int     `json:"mocks" bson:"mocks"`
	Sentiment float64 `json:"sentiment" bson:"sentiment"`
	Virality  float64 `json:"virality" bson:"virality"`
}
