package logging

import (
	"encoding/json"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DecisionsFile is the trace file name inside a run directory.
const DecisionsFile = "decisions.jsonl"

// Reaction is one persona decision as recorded in the decision log.
type Reaction struct {
	Generation int
	Tick       int
	PersonaID  string
	Action     string
	Mood       string
	Fallback   bool
	Reason     string
}

// DecisionLogger appends decision events to a JSONL file. It is safe for
// concurrent use, and a nil *DecisionLogger discards everything.
type DecisionLogger struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
	now func() time.Time
}

// NewDecisionLogger opens dir/decisions.jsonl for append when level is
// debug or trace. Quieter levels, or a file that cannot be opened, yield nil.
func NewDecisionLogger(dir string, level string) *DecisionLogger {
	if ParseLevel(level) > slog.LevelDebug {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, DecisionsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &DecisionLogger{f: f, enc: json.NewEncoder(f), now: time.Now}
}

// Log writes event as one line with a "time" field added. event itself is
// left untouched.
func (dl *DecisionLogger) Log(event map[string]any) {
	if dl == nil {
		return
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.f == nil {
		return
	}

	entry := maps.Clone(event)
	if entry == nil {
		entry = map[string]any{}
	}
	entry["time"] = dl.now().UTC().Format(time.RFC3339Nano)
	_ = dl.enc.Encode(entry)
}

// LogReaction records a persona decision. Fallback decisions are logged as
// reaction_fallback with the reason the collaborator's answer was dropped.
func (dl *DecisionLogger) LogReaction(r Reaction) {
	if dl == nil {
		return
	}
	event := map[string]any{
		"event":      "reaction",
		"generation": r.Generation,
		"tick":       r.Tick,
		"persona_id": r.PersonaID,
		"action":     r.Action,
		"mood":       r.Mood,
	}
	if r.Fallback {
		event["event"], event["reason"] = "reaction_fallback", r.Reason
	}
	dl.Log(event)
}

// Close closes the file; later writes are dropped.
func (dl *DecisionLogger) Close() {
	if dl == nil {
		return
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.f != nil {
		_ = dl.f.Close()
		dl.f = nil
	}
}
