// Package visualization renders follow graphs as Graphviz DOT, JSON, or a
// self-contained HTML page.
package visualization

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"math"
	"strings"

	"github.com/nvandessel/resonance/internal/models"
	"github.com/nvandessel/resonance/internal/socialgraph"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

// ParseFormat returns the format named by s.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatDOT, FormatJSON, FormatHTML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown graph format %q (want dot, json or html)", s)
	}
}

// moodColors maps persona moods to fill colors.
var moodColors = map[models.Mood]string{
	models.MoodHappy:     "gold",
	models.MoodExcited:   "orange",
	models.MoodNeutral:   "lightgray",
	models.MoodBored:     "lightsteelblue",
	models.MoodAnxious:   "plum",
	models.MoodIrritable: "tomato",
	models.MoodCynical:   "slategray",
}

// actionColors maps a persona's reaction to a fill color. They take
// precedence over mood colors when an overlay is given.
var actionColors = map[models.ActionType]string{
	models.ActionLike:       "mediumseagreen",
	models.ActionShare:      "steelblue",
	models.ActionQuoteShare: "deepskyblue",
	models.ActionComment:    "goldenrod",
	models.ActionMock:       "crimson",
	models.ActionIgnore:     "white",
}

// Options adds run information on top of the bare graph.
type Options struct {
	// Influencers are drawn with a double outline.
	Influencers []string

	// Actions colors each persona by how it reacted. Personas missing from
	// the map were never exposed.
	Actions map[string]models.ActionType

	// Rank sizes HTML nodes by a normalized [0, 1] score such as PageRank.
	// Without it, size follows follower count.
	Rank map[string]float64
}

// ActionsFrom returns each persona's reaction in a generation. Every
// persona reacts at most once per generation.
func ActionsFrom(result *models.SimulationResult) map[string]models.ActionType {
	actions := make(map[string]models.ActionType)
	if result == nil {
		return actions
	}
	for _, in := range result.Interactions {
		actions[in.PersonaID] = in.Action
	}
	return actions
}

func (o Options) influencerSet() map[string]bool {
	set := make(map[string]bool, len(o.Influencers))
	for _, id := range o.Influencers {
		set[id] = true
	}
	return set
}

func (o Options) color(p *models.AgentProfile) string {
	if o.Actions != nil {
		if a, ok := o.Actions[p.ID]; ok {
			return actionColors[a]
		}
		return "whitesmoke"
	}
	if c, ok := moodColors[p.Mood]; ok {
		return c
	}
	return "lightgray"
}

// RenderDOT produces a Graphviz DOT representation of the follow graph.
// Edges point from follower to followee.
func RenderDOT(g *socialgraph.Graph, opts Options) string {
	influencers := opts.influencerSet()

	var b strings.Builder
	b.WriteString("digraph resonance {\n")
	b.WriteString("  layout=neato;\n")
	b.WriteString("  overlap=false;\n")
	b.WriteString("  node [shape=ellipse, style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [color=\"#00000055\", arrowsize=0.5];\n\n")

	for _, p := range g.Personas() {
		peripheries := 1
		if influencers[p.ID] {
			peripheries = 2
		}
		tooltip := fmt.Sprintf("%s, %d followers", p.Mood, g.FollowerCount(p.ID))
		if a, ok := opts.Actions[p.ID]; ok {
			tooltip += ", " + string(a)
		}
		fmt.Fprintf(&b, "  %q [label=%q, fillcolor=%q, peripheries=%d, tooltip=%q];\n",
			p.ID, truncate(p.Handle(), 30), opts.color(p), peripheries, tooltip)
	}
	b.WriteString("\n")

	for _, e := range g.Edges() {
		fmt.Fprintf(&b, "  %q -> %q;\n", e.Follower, e.Followee)
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces a JSON graph representation with nodes and edges arrays.
func RenderJSON(g *socialgraph.Graph, opts Options) map[string]any {
	influencers := opts.influencerSet()

	nodes := make([]map[string]any, 0, g.Len())
	for _, p := range g.Personas() {
		node := map[string]any{
			"id":              p.ID,
			"name":            p.Name,
			"mood":            string(p.Mood),
			"interests":       p.Interests,
			"influence_score": p.InfluenceScore,
			"followers":       g.FollowerCount(p.ID),
			"influencer":      influencers[p.ID],
		}
		if a, ok := opts.Actions[p.ID]; ok {
			node["action"] = string(a)
		}
		if r, ok := opts.Rank[p.ID]; ok {
			node["rank"] = r
		}
		nodes = append(nodes, node)
	}

	edges := make([]map[string]any, 0, g.EdgeCount())
	for _, e := range g.Edges() {
		edges = append(edges, map[string]any{
			"source": e.Follower,
			"target": e.Followee,
		})
	}

	return map[string]any{
		"nodes":      nodes,
		"edges":      edges,
		"node_count": len(nodes),
		"edge_count": len(edges),
	}
}

// htmlNode and htmlEdge are positioned for the SVG in the HTML template.
type htmlNode struct {
	ID         string
	Label      string
	Title      string
	Color      string
	X, Y, R    float64
	Influencer bool
}

type htmlEdge struct {
	X1, Y1, X2, Y2 float64
}

type htmlTemplateData struct {
	Title     string
	Size      float64
	Nodes     []htmlNode
	Edges     []htmlEdge
	GraphJSON template.JS
}

const htmlCanvas = 800.0

// RenderHTML produces a self-contained HTML page with the graph drawn as
// an SVG circle layout. Node radius grows with opts.Rank, or with follower
// count when no rank is given.
func RenderHTML(g *socialgraph.Graph, opts Options, title string) ([]byte, error) {
	influencers := opts.influencerSet()
	personas := g.Personas()

	center := htmlCanvas / 2
	ring := center - 60
	pos := make(map[string][2]float64, len(personas))

	data := htmlTemplateData{Title: title, Size: htmlCanvas}
	for i, p := range personas {
		angle := 2 * math.Pi * float64(i) / float64(max(len(personas), 1))
		x := center + ring*math.Cos(angle)
		y := center + ring*math.Sin(angle)
		pos[p.ID] = [2]float64{x, y}

		tip := fmt.Sprintf("%s (%s, %d followers)", p.Handle(), p.Mood, g.FollowerCount(p.ID))
		if a, ok := opts.Actions[p.ID]; ok {
			tip += " " + string(a)
		}
		data.Nodes = append(data.Nodes, htmlNode{
			ID:         p.ID,
			Label:      truncate(p.Handle(), 18),
			Title:      tip,
			Color:      opts.color(p),
			X:          x,
			Y:          y,
			R:          opts.radius(g, p.ID),
			Influencer: influencers[p.ID],
		})
	}
	for _, e := range g.Edges() {
		a, b := pos[e.Follower], pos[e.Followee]
		data.Edges = append(data.Edges, htmlEdge{X1: a[0], Y1: a[1], X2: b[0], Y2: b[1]})
	}

	graphJSON, err := json.Marshal(RenderJSON(g, opts))
	if err != nil {
		return nil, fmt.Errorf("marshal graph data: %w", err)
	}
	// json.HTMLEscape turns <, > and & into \u escapes so persona text
	// cannot close the script element.
	var escaped bytes.Buffer
	json.HTMLEscape(&escaped, graphJSON)
	data.GraphJSON = template.JS(escaped.String()) // #nosec G203

	tmplBytes, err := templates.ReadFile("templates/graph.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("read HTML template: %w", err)
	}
	tmpl, err := template.New("graph").Parse(string(tmplBytes))
	if err != nil {
		return nil, fmt.Errorf("parse HTML template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute HTML template: %w", err)
	}
	return buf.Bytes(), nil
}

func (o Options) radius(g *socialgraph.Graph, id string) float64 {
	if o.Rank != nil {
		return 6 + 14*o.Rank[id]
	}
	return 6 + 2*math.Sqrt(float64(g.FollowerCount(id)))
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
