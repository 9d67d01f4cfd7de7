package events

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// openStream connects to an SSE handler. Headers are flushed only after the
// handler has subscribed, so events emitted after this returns are delivered.
func openStream(t *testing.T, h http.Handler) (*bufio.Reader, func()) {
	t.Helper()
	srv := httptest.NewServer(h)
	resp, err := http.Get(srv.URL)
	if err != nil {
		srv.Close()
		t.Fatalf("GET: %v", err)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	return bufio.NewReader(resp.Body), func() {
		resp.Body.Close()
		srv.Close()
	}
}

func nextData(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("reading stream: %v", err)
		}
		if data, ok := strings.CutPrefix(strings.TrimRight(line, "\n"), "data: "); ok {
			return data
		}
	}
}

func TestStreamHandler_DeliversEvents(t *testing.T) {
	bus := NewBus()
	r, closeStream := openStream(t, StreamHandler(bus, time.Minute))
	defer closeStream()

	bus.Emit(Result, map[string]any{"generation": 1, "fitness": 0.5})

	var ev Event
	if err := json.Unmarshal([]byte(nextData(t, r)), &ev); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if ev.Type != Result || ev.Payload["fitness"] != 0.5 {
		t.Errorf("event = %+v", ev)
	}

	bus.Close()
	if _, err := io.ReadAll(r); err != nil {
		t.Errorf("stream should end cleanly when the bus closes: %v", err)
	}
}

func TestStreamHandler_Heartbeat(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	r, closeStream := openStream(t, StreamHandler(bus, 10*time.Millisecond))
	defer closeStream()

	if got := nextData(t, r); got != `{"type":"ping"}` {
		t.Errorf("first idle line = %q, want ping", got)
	}
}

func TestStreamHandler_ClosedBus(t *testing.T) {
	bus := NewBus()
	bus.Close()
	r, closeStream := openStream(t, StreamHandler(bus, time.Minute))
	defer closeStream()

	rest, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if strings.Contains(string(rest), "data:") {
		t.Errorf("closed bus streamed %q", rest)
	}
}
