package llm

import (
	"context"
	"sync"

	"github.com/nvandessel/resonance/internal/models"
)

// MockClient implements Client for testing purposes.
// Responses can be configured per operation or computed by a hook, errors can
// be injected, and every call is recorded.
type MockClient struct {
	mu sync.Mutex

	personas  []PersonaRecord
	reactFunc func(persona *models.AgentProfile, feed string) (*Decision, error)
	rewrite   *Rewrite
	err       error
	available bool

	// Call tracking
	PopulationCalls []PopulationCall
	ReactCalls      []ReactCall
	RewriteCalls    []RewriteRequest
}

// PopulationCall records a call to GeneratePersonas.
type PopulationCall struct {
	Audience string
	Count    int
}

// ReactCall records a call to React.
type ReactCall struct {
	PersonaID string
	Mood      models.Mood
	Feed      string
}

// NewMockClient creates a new MockClient. By default it is available, every
// persona ignores the post, and rewrites come back blank.
func NewMockClient() *MockClient {
	return &MockClient{available: true}
}

// WithPersonas configures the records returned by GeneratePersonas. Each call
// returns up to count records from the front of the list.
func (m *MockClient) WithPersonas(records []PersonaRecord) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.personas = records
	return m
}

// WithReactFunc configures how React answers. The hook may be called
// concurrently.
func (m *MockClient) WithReactFunc(fn func(persona *models.AgentProfile, feed string) (*Decision, error)) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactFunc = fn
	return m
}

// WithRewrite configures the result returned by Rewrite.
func (m *MockClient) WithRewrite(rw *Rewrite) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rewrite = rw
	return m
}

// WithError configures the error returned by all methods.
func (m *MockClient) WithError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithAvailable configures whether Available() returns true or false.
func (m *MockClient) WithAvailable(available bool) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
	return m
}

// GeneratePersonas implements PopulationGenerator.
func (m *MockClient) GeneratePersonas(ctx context.Context, audience string, count int) ([]PersonaRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PopulationCalls = append(m.PopulationCalls, PopulationCall{Audience: audience, Count: count})
	if m.err != nil {
		return nil, m.err
	}
	n := min(count, len(m.personas))
	out := append([]PersonaRecord(nil), m.personas[:n]...)
	m.personas = m.personas[n:]
	return out, nil
}

// React implements Reactor.
func (m *MockClient) React(ctx context.Context, persona *models.AgentProfile, feed string) (*Decision, error) {
	m.mu.Lock()
	m.ReactCalls = append(m.ReactCalls, ReactCall{PersonaID: persona.ID, Mood: persona.Mood, Feed: feed})
	err, fn := m.err, m.reactFunc
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(persona, feed)
	}
	return &Decision{Action: models.ActionIgnore, Mood: persona.Mood}, nil
}

// Rewrite implements Rewriter.
func (m *MockClient) Rewrite(ctx context.Context, req RewriteRequest) (*Rewrite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RewriteCalls = append(m.RewriteCalls, req)
	if m.err != nil {
		return nil, m.err
	}
	if m.rewrite != nil {
		rw := *m.rewrite
		return &rw, nil
	}
	return &Rewrite{}, nil
}

// Available implements Client.Available.
func (m *MockClient) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

// ReactCallCount returns the number of times React was called.
func (m *MockClient) ReactCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ReactCalls)
}

// RewriteCallCount returns the number of times Rewrite was called.
func (m *MockClient) RewriteCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.RewriteCalls)
}
