package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nvandessel/resonance/internal/models"
)

// MemoryArchive implements Archive in memory, for tests and for runs that
// should leave nothing on disk. Stored values are copied on the way in.
type MemoryArchive struct {
	mu          sync.RWMutex
	sessions    map[string]Session
	personas    map[string][]*models.AgentProfile
	generations map[string]map[int]Generation
	now         func() time.Time
}

// NewMemoryArchive creates an empty archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{
		sessions:    make(map[string]Session),
		personas:    make(map[string][]*models.AgentProfile),
		generations: make(map[string]map[int]Generation),
		now:         time.Now,
	}
}

// SaveSession inserts or replaces a session. CreatedAt is kept from the
// first save.
func (m *MemoryArchive) SaveSession(ctx context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == "" {
		return fmt.Errorf("session ID is required")
	}
	now := m.now().UTC()
	if prev, ok := m.sessions[s.ID]; ok {
		s.CreatedAt = prev.CreatedAt
	} else if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	s.Influencers = append([]string(nil), s.Influencers...)
	m.sessions[s.ID] = s
	return nil
}

// SavePersonas replaces a session's population.
func (m *MemoryArchive) SavePersonas(ctx context.Context, sessionID string, personas []*models.AgentProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	copied := make([]*models.AgentProfile, len(personas))
	for i, p := range personas {
		c := *p
		copied[i] = &c
	}
	m.personas[sessionID] = copied
	return nil
}

// SaveGeneration inserts or replaces one generation.
func (m *MemoryArchive) SaveGeneration(ctx context.Context, g Generation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[g.SessionID]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, g.SessionID)
	}
	if g.Result == nil {
		return fmt.Errorf("generation %d of session %s has no result", g.Number, g.SessionID)
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = m.now().UTC()
	}
	if m.generations[g.SessionID] == nil {
		m.generations[g.SessionID] = make(map[int]Generation)
	}
	m.generations[g.SessionID][g.Number] = g
	return nil
}

// ListSessions returns sessions newest first.
func (m *MemoryArchive) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// GetPersonas returns a session's population in saved order.
func (m *MemoryArchive) GetPersonas(ctx context.Context, sessionID string) ([]*models.AgentProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.AgentProfile, 0, len(m.personas[sessionID]))
	for _, p := range m.personas[sessionID] {
		c := *p
		out = append(out, &c)
	}
	return out, nil
}

// GetGenerations returns a session's generations in ascending order.
func (m *MemoryArchive) GetGenerations(ctx context.Context, sessionID string) ([]Generation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	gens := make([]Generation, 0, len(m.generations[sessionID]))
	for _, g := range m.generations[sessionID] {
		gens = append(gens, g)
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i].Number < gens[j].Number })
	return gens, nil
}

// Close is a no-op.
func (m *MemoryArchive) Close() error { return nil }
