package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/resonance/internal/llm"
	"github.com/nvandessel/resonance/internal/models"
)

// DBFileName is the archive database file inside the run directory.
const DBFileName = "resonance.db"

// SQLiteArchive implements Archive on a single SQLite database.
type SQLiteArchive struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewSQLiteArchive opens or creates dir/resonance.db.
func NewSQLiteArchive(dir string) (*SQLiteArchive, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	dbPath := filepath.Join(dir, DBFileName)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteArchive{db: db, dbPath: dbPath, now: time.Now}, nil
}

// Path returns the database file path.
func (s *SQLiteArchive) Path() string { return s.dbPath }

// SaveSession inserts or replaces a session. CreatedAt is kept from the
// first save.
func (s *SQLiteArchive) SaveSession(ctx context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ID == "" {
		return fmt.Errorf("session ID is required")
	}

	campaign, err := json.Marshal(sess.Campaign)
	if err != nil {
		return fmt.Errorf("failed to marshal campaign: %w", err)
	}
	influencers, err := json.Marshal(nonNil(sess.Influencers))
	if err != nil {
		return fmt.Errorf("failed to marshal influencers: %w", err)
	}

	now := s.now().UTC()
	created := sess.CreatedAt
	if created.IsZero() {
		created = now
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, created_at, updated_at, random_seed, goal, campaign,
			personas, edges, influencers, status, generations, best_fitness
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			updated_at = excluded.updated_at,
			random_seed = excluded.random_seed,
			goal = excluded.goal,
			campaign = excluded.campaign,
			personas = excluded.personas,
			edges = excluded.edges,
			influencers = excluded.influencers,
			status = excluded.status,
			generations = excluded.generations,
			best_fitness = excluded.best_fitness`,
		sess.ID, formatTime(created), formatTime(now), sess.RandomSeed,
		string(sess.Campaign.Goal), string(campaign),
		sess.Personas, sess.Edges, string(influencers),
		sess.Status, sess.Generations, sess.BestFitness,
	)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

// SavePersonas replaces a session's archived population in one transaction.
func (s *SQLiteArchive) SavePersonas(ctx context.Context, sessionID string, personas []*models.AgentProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM personas WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear personas: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO personas (session_id, position, persona_id, name, profile)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare persona insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range personas {
		profile, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal persona %s: %w", p.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, sessionID, i, p.ID, p.Name, string(profile)); err != nil {
			return fmt.Errorf("failed to insert persona %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

// SaveGeneration inserts or replaces one generation.
func (s *SQLiteArchive) SaveGeneration(ctx context.Context, g Generation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g.Result == nil {
		return fmt.Errorf("generation %d of session %s has no result", g.Number, g.SessionID)
	}

	result, err := json.Marshal(g.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	var rewrite sql.NullString
	if g.Rewrite != nil {
		b, err := json.Marshal(g.Rewrite)
		if err != nil {
			return fmt.Errorf("failed to marshal rewrite: %w", err)
		}
		rewrite = sql.NullString{String: string(b), Valid: true}
	}

	created := g.CreatedAt
	if created.IsZero() {
		created = s.now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO generations (
			session_id, generation, fitness, reach, sentiment, result, rewrite, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.SessionID, g.Number, g.Fitness, g.Result.Reach, g.Result.Sentiment,
		string(result), rewrite, formatTime(created),
	)
	if err != nil {
		return fmt.Errorf("failed to save generation %d of session %s: %w", g.Number, g.SessionID, err)
	}
	return nil
}

// ListSessions returns sessions newest first.
func (s *SQLiteArchive) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		SELECT id, created_at, updated_at, random_seed, campaign, personas, edges,
		       influencers, status, generations, best_fitness
		FROM sessions
		ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var (
			sess             Session
			created, updated string
			campaign         string
			influencers      sql.NullString
		)
		if err := rows.Scan(&sess.ID, &created, &updated, &sess.RandomSeed, &campaign,
			&sess.Personas, &sess.Edges, &influencers, &sess.Status, &sess.Generations, &sess.BestFitness); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sess.CreatedAt = parseTime(created)
		sess.UpdatedAt = parseTime(updated)
		if err := json.Unmarshal([]byte(campaign), &sess.Campaign); err != nil {
			return nil, fmt.Errorf("failed to decode campaign of session %s: %w", sess.ID, err)
		}
		if influencers.Valid && influencers.String != "" {
			if err := json.Unmarshal([]byte(influencers.String), &sess.Influencers); err != nil {
				return nil, fmt.Errorf("failed to decode influencers of session %s: %w", sess.ID, err)
			}
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// GetPersonas returns a session's population in saved order.
func (s *SQLiteArchive) GetPersonas(ctx context.Context, sessionID string) ([]*models.AgentProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT profile FROM personas WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query personas: %w", err)
	}
	defer rows.Close()

	personas := []*models.AgentProfile{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan persona: %w", err)
		}
		var p models.AgentProfile
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("failed to decode persona: %w", err)
		}
		personas = append(personas, &p)
	}
	return personas, rows.Err()
}

// GetGenerations returns a session's generations in ascending order.
// ErrSessionNotFound is returned for an unknown session.
func (s *SQLiteArchive) GetGenerations(ctx context.Context, sessionID string) ([]Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE id = ?`, sessionID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT generation, fitness, result, rewrite, created_at
		FROM generations WHERE session_id = ? ORDER BY generation`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query generations: %w", err)
	}
	defer rows.Close()

	gens := []Generation{}
	for rows.Next() {
		var (
			g       = Generation{SessionID: sessionID}
			result  string
			rewrite sql.NullString
			created string
		)
		if err := rows.Scan(&g.Number, &g.Fitness, &result, &rewrite, &created); err != nil {
			return nil, fmt.Errorf("failed to scan generation: %w", err)
		}
		g.CreatedAt = parseTime(created)
		g.Result = &models.SimulationResult{}
		if err := json.Unmarshal([]byte(result), g.Result); err != nil {
			return nil, fmt.Errorf("failed to decode generation %d: %w", g.Number, err)
		}
		if rewrite.Valid {
			g.Rewrite = &llm.Rewrite{}
			if err := json.Unmarshal([]byte(rewrite.String), g.Rewrite); err != nil {
				return nil, fmt.Errorf("failed to decode rewrite of generation %d: %w", g.Number, err)
			}
		}
		gens = append(gens, g)
	}
	return gens, rows.Err()
}

// Close closes the database.
func (s *SQLiteArchive) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// timeFormat is fixed-width so that text ordering matches time ordering.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeFormat) }

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
