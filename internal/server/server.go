// Package server exposes sessions over HTTP: POST /run starts one in the
// background and GET /events streams its progress as Server-Sent Events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/resonance/internal/events"
)

const (
	shutdownGrace = 5 * time.Second
	maxBodyBytes  = 1 << 20
)

// RunRequest is the body of POST /run. Zero sizes keep the configured value.
type RunRequest struct {
	Content          string `json:"content"`
	ImageDescription string `json:"image_description"`
	Goal             string `json:"goal"`
	TargetAudience   string `json:"target_audience"`
	NumAgents        int    `json:"num_agents"`
	NumTicks         int    `json:"num_ticks"`
	MaxGenerations   int    `json:"max_generations"`
}

func (r *RunRequest) validate() error {
	r.Content = strings.TrimSpace(r.Content)
	r.TargetAudience = strings.TrimSpace(r.TargetAudience)
	switch {
	case r.Content == "":
		return errors.New("content is required")
	case r.TargetAudience == "":
		return errors.New("target_audience is required")
	case r.NumAgents < 0, r.NumTicks < 0, r.MaxGenerations < 0:
		return errors.New("num_agents, num_ticks and max_generations must be non-negative")
	}
	return nil
}

// RunFunc runs one session, emitting progress on bus.
type RunFunc func(ctx context.Context, req RunRequest, bus *events.Bus) error

// ErrBusy is returned by Start while another session is running.
var ErrBusy = errors.New("a session is already running")

// Options configures a Server.
type Options struct {
	Run    RunFunc
	Logger *slog.Logger

	// Heartbeat defaults to events.DefaultHeartbeat.
	Heartbeat time.Duration
}

// Server runs at most one session at a time and fans its events out to every
// connected stream.
type Server struct {
	run       RunFunc
	logger    *slog.Logger
	heartbeat time.Duration
	bus       *events.Bus

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	addr    string
}

// New creates a server. Close releases it.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		run:       opts.Run,
		logger:    logger,
		heartbeat: opts.Heartbeat,
		bus:       events.NewBus(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Bus is the event bus sessions emit on.
func (s *Server) Bus() *events.Bus { return s.bus }

// Addr is the host:port being served, or "" before ListenAndServe binds.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Running reports whether a session is in progress.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Handler routes POST /run and GET /events.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /run", s.handleRun)
	mux.Handle("GET /events", events.StreamHandler(s.bus, s.heartbeat))
	return mux
}

// Start launches req in the background. It fails with ErrBusy while another
// session runs.
func (s *Server) Start(req RunRequest) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return errors.New("server is closed")
	}
	s.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()
		if err := s.run(s.ctx, req, s.bus); err != nil {
			s.logger.Error("session failed", "error", err)
		}
	}()
	return nil
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}
	if err := req.validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.Start(req); err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, ErrBusy) {
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	s.logger.Info("session started", "goal", req.Goal, "agents", req.NumAgents)
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Wait blocks until the running session, if any, returns.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Close cancels a running session, waits for it and ends every event stream.
func (s *Server) Close() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
	s.bus.Close()
}

// ListenAndServe serves on addr until ctx is done, then closes the server.
// A shutdown caused by ctx returns nil.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		// Streams only end once the bus closes.
		s.Close()
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
