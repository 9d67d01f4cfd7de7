package events

import (
	"fmt"
	"net/http"
	"time"
)

// DefaultHeartbeat is how long a stream may stay silent before a ping is sent.
const DefaultHeartbeat = 30 * time.Second

var pingLine = []byte(`{"type":"ping"}`)

// StreamHandler serves the bus as Server-Sent Events, one "data:" line of
// JSON per event. Idle streams get a {"type":"ping"} every heartbeat. The
// stream ends when the client goes away or the bus is closed.
func StreamHandler(b *Bus, heartbeat time.Duration) http.HandlerFunc {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		ch, unsubscribe := b.Subscribe(0)
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			var data []byte
			select {
			case <-r.Context().Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				line, err := ev.MarshalLine()
				if err != nil {
					continue
				}
				data = line
				ticker.Reset(heartbeat)
			case <-ticker.C:
				data = pingLine
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
