package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/nvandessel/resonance/internal/events"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printEvents drains ch until it is closed, writing one JSON object per line
// or one human-readable progress line per event.
func printEvents(w io.Writer, ch <-chan events.Event, jsonOut bool) {
	for ev := range ch {
		if jsonOut {
			line, err := ev.MarshalLine()
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "%s\n", line)
			continue
		}
		if line := formatEvent(ev); line != "" {
			fmt.Fprintln(w, line)
		}
	}
}

// formatEvent renders one progress line. Reaction events are too chatty for
// the terminal and return "".
func formatEvent(ev events.Event) string {
	p := ev.Payload
	switch ev.Type {
	case events.Phase:
		if gen, ok := p["generation"]; ok {
			return fmt.Sprintf("== %v (generation %v)", p["phase"], gen)
		}
		return fmt.Sprintf("== %v", p["phase"])
	case events.PersonaCreated:
		return fmt.Sprintf("  + %v (%v, %v)", p["name"], p["personality"], p["mood"])
	case events.GraphBuilt:
		return fmt.Sprintf("  graph: %v personas, %v edges, influencers %v", p["personas"], p["edge_count"], p["influencers"])
	case events.Tick:
		return fmt.Sprintf("  tick %v: %v exposed, %v fallbacks", p["tick"], p["exposed"], p["fallbacks"])
	case events.Result:
		return fmt.Sprintf("  generation %v: reach %v, likes %v, comments %v, shares %v, mocks %v, fitness %.3f",
			p["generation"], p["reach"], p["likes"], p["comments"], p["shares"], p["mocks"], p["fitness"])
	case events.Evolution:
		return fmt.Sprintf("  rewrite: %v", oneLine(fmt.Sprint(p["revised_content"])))
	case events.Done:
		return fmt.Sprintf("== done: %v after %v generations (best fitness %.3f)", p["status"], p["generations"], p["best_fitness"])
	case events.Error:
		return fmt.Sprintf("  ! %v", p["message"])
	default:
		return ""
	}
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 80 {
		return string(r[:77]) + "..."
	}
	return s
}
