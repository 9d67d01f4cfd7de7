// Package store archives finished runs: the session's parameters, the
// population it drew, and every generation's result and fitness. Archives
// are written during a run and read back only by reporting commands; a new
// session never loads state from one.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nvandessel/resonance/internal/llm"
	"github.com/nvandessel/resonance/internal/models"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// ErrSessionNotFound is returned when a session id has no archived record.
var ErrSessionNotFound = errors.New("session not found")

// Session is the archived summary of one run.
type Session struct {
	ID          string              `json:"id" bson:"_id"`
	CreatedAt   time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at" bson:"updated_at"`
	RandomSeed  int64               `json:"random_seed" bson:"random_seed"`
	Campaign    models.CampaignSeed `json:"campaign" bson:"campaign"`
	Personas    int                 `json:"personas" bson:"personas"`
	Edges       int                 `json:"edges" bson:"edges"`
	Influencers []string            `json:"influencers" bson:"influencers"`

	// Status is empty while the run is in progress, then one of the
	// evolution statuses.
	Status      string  `json:"status,omitempty" bson:"status,omitempty"`
	Generations int     `json:"generations" bson:"generations"`
	BestFitness float64 `json:"best_fitness" bson:"best_fitness"`
}

// Generation is one archived generation.
type Generation struct {
	SessionID string                   `json:"session_id" bson:"session_id"`
	Number    int                      `json:"generation" bson:"generation"`
	Fitness   float64                  `json:"fitness" bson:"fitness"`
	Result    *models.SimulationResult `json:"result" bson:"result"`
	Rewrite   *llm.Rewrite             `json:"rewrite,omitempty" bson:"rewrite,omitempty"`
	CreatedAt time.Time                `json:"created_at" bson:"created_at"`
}

// Archive stores run records.
type Archive interface {
	// SaveSession inserts or replaces a session summary. It is called once
	// when the run starts and again when it ends.
	SaveSession(ctx context.Context, s Session) error

	// SavePersonas replaces the population archived for a session. The
	// session must already be saved.
	SavePersonas(ctx context.Context, sessionID string, personas []*models.AgentProfile) error

	// SaveGeneration inserts or replaces one generation of a session.
	SaveGeneration(ctx context.Context, g Generation) error

	// ListSessions returns up to limit sessions, newest first. limit <= 0
	// means no limit.
	ListSessions(ctx context.Context, limit int) ([]Session, error)

	// GetPersonas returns a session's population in the order it was saved.
	GetPersonas(ctx context.Context, sessionID string) ([]*models.AgentProfile, error)

	// GetGenerations returns a session's generations in ascending order.
	GetGenerations(ctx context.Context, sessionID string) ([]Generation, error)

	Close() error
}

// Options selects and configures an archive backend.
type Options struct {
	Backend       string
	Dir           string
	MongoURI      string
	MongoDatabase string
}

// Open returns the archive named by opts.Backend. An empty backend means
// SQLite.
func Open(ctx context.Context, opts Options) (Archive, error) {
	switch opts.Backend {
	case "", BackendSQLite:
		return NewSQLiteArchive(opts.Dir)
	case BackendMongo:
		return NewMongoArchive(ctx, opts.MongoURI, opts.MongoDatabase)
	case BackendMemory:
		return NewMemoryArchive(), nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", opts.Backend)
	}
}
