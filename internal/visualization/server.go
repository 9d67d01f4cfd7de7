package visualization

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nvandessel/resonance/internal/socialgraph"
)

const shutdownGrace = 5 * time.Second

// Server serves one graph on a loopback port. The graph is rendered once
// when the server is created; it does not change while being served.
type Server struct {
	page, data, dot []byte
	renderErr       error

	mu   sync.Mutex
	addr string
}

// NewServer renders g in every format and returns a server for it.
func NewServer(g *socialgraph.Graph, opts Options, title string) *Server {
	s := &Server{dot: []byte(RenderDOT(g, opts))}
	s.page, s.renderErr = RenderHTML(g, opts, title)

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(RenderJSON(g, opts)); err != nil && s.renderErr == nil {
		s.renderErr = err
	}
	s.data = buf.Bytes()
	return s
}

// Addr is the host:port being served, or "" before ListenAndServe binds.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler routes GET / to the page, /graph.json and /graph.dot to the raw
// renderings.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /{$}", s.serve("text/html; charset=utf-8", s.page))
	mux.Handle("GET /graph.json", s.serve("application/json", s.data))
	mux.Handle("GET /graph.dot", s.serve("text/vnd.graphviz; charset=utf-8", s.dot))
	return mux
}

func (s *Server) serve(contentType string, body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.renderErr != nil {
			http.Error(w, "render error: "+s.renderErr.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(body)
	}
}

// ListenAndServe binds an ephemeral localhost port and serves until ctx is
// done. A shutdown caused by ctx returns nil.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
