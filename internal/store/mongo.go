package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nvandessel/resonance/internal/models"
)

// Collection names used by MongoArchive.
const (
	sessionsCollection    = "sessions"
	personasCollection    = "personas"
	generationsCollection = "generations"
)

// DefaultMongoDatabase is used when no database name is configured.
const DefaultMongoDatabase = "resonance"

const mongoConnectTimeout = 10 * time.Second

// MongoArchive implements Archive on MongoDB. Sessions are keyed by id;
// personas and generations carry a session_id field and are indexed on it.
type MongoArchive struct {
	client   *mongo.Client
	database *mongo.Database
	now      func() time.Time
}

// personaDocument wraps a profile with its session and position. The
// profile's own id moves to persona_id so _id stays unique across sessions.
type personaDocument struct {
	SessionID string              `bson:"session_id"`
	Position  int                 `bson:"position"`
	PersonaID string              `bson:"persona_id"`
	Profile   models.AgentProfile `bson:"profile"`
}

// NewMongoArchive connects to uri, verifies the connection, and ensures
// the indexes exist.
func NewMongoArchive(ctx context.Context, uri, database string) (*MongoArchive, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo URI is required")
	}
	if database == "" {
		database = DefaultMongoDatabase
	}

	ctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	a := &MongoArchive{client: client, database: client.Database(database), now: time.Now}
	if err := a.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *MongoArchive) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		sessionsCollection: {
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		personasCollection: {
			{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "position", Value: 1}}},
		},
		generationsCollection: {
			{
				Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "generation", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
	for name, idx := range indexes {
		if _, err := a.database.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", name, err)
		}
	}
	return nil
}

// SaveSession upserts a session. CreatedAt is kept from the first save.
func (a *MongoArchive) SaveSession(ctx context.Context, s Session) error {
	if s.ID == "" {
		return fmt.Errorf("session ID is required")
	}
	now := a.now().UTC()
	s.UpdatedAt = now

	coll := a.database.Collection(sessionsCollection)
	var prev Session
	err := coll.FindOne(ctx, bson.M{"_id": s.ID}).Decode(&prev)
	switch {
	case err == nil:
		s.CreatedAt = prev.CreatedAt
	case errors.Is(err, mongo.ErrNoDocuments):
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
	default:
		return fmt.Errorf("failed to look up session %s: %w", s.ID, err)
	}
	s.Influencers = nonNil(s.Influencers)

	_, err = coll.ReplaceOne(ctx, bson.M{"_id": s.ID}, s, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", s.ID, err)
	}
	return nil
}

// SavePersonas replaces a session's population.
func (a *MongoArchive) SavePersonas(ctx context.Context, sessionID string, personas []*models.AgentProfile) error {
	coll := a.database.Collection(personasCollection)
	if _, err := coll.DeleteMany(ctx, bson.M{"session_id": sessionID}); err != nil {
		return fmt.Errorf("failed to clear personas: %w", err)
	}
	if len(personas) == 0 {
		return nil
	}

	docs := make([]any, len(personas))
	for i, p := range personas {
		docs[i] = personaDocument{SessionID: sessionID, Position: i, PersonaID: p.ID, Profile: *p}
	}
	if _, err := coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert personas: %w", err)
	}
	return nil
}

// SaveGeneration upserts one generation.
func (a *MongoArchive) SaveGeneration(ctx context.Context, g Generation) error {
	if g.Result == nil {
		return fmt.Errorf("generation %d of session %s has no result", g.Number, g.SessionID)
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = a.now().UTC()
	}
	filter := bson.M{"session_id": g.SessionID, "generation": g.Number}
	_, err := a.database.Collection(generationsCollection).
		ReplaceOne(ctx, filter, g, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save generation %d of session %s: %w", g.Number, g.SessionID, err)
	}
	return nil
}

// ListSessions returns sessions newest first.
func (a *MongoArchive) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := a.database.Collection(sessionsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer cursor.Close(ctx)

	sessions := []Session{}
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return sessions, nil
}

// GetPersonas returns a session's population in saved order.
func (a *MongoArchive) GetPersonas(ctx context.Context, sessionID string) ([]*models.AgentProfile, error) {
	opts := options.Find().SetSort(bson.D{{Key: "position", Value: 1}})
	cursor, err := a.database.Collection(personasCollection).Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query personas: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []personaDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode personas: %w", err)
	}
	personas := make([]*models.AgentProfile, len(docs))
	for i := range docs {
		p := docs[i].Profile
		p.ID = docs[i].PersonaID
		personas[i] = &p
	}
	return personas, nil
}

// GetGenerations returns a session's generations in ascending order.
func (a *MongoArchive) GetGenerations(ctx context.Context, sessionID string) ([]Generation, error) {
	n, err := a.database.Collection(sessionsCollection).CountDocuments(ctx, bson.M{"_id": sessionID})
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	opts := options.Find().SetSort(bson.D{{Key: "generation", Value: 1}})
	cursor, err := a.database.Collection(generationsCollection).Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query generations: %w", err)
	}
	defer cursor.Close(ctx)

	gens := []Generation{}
	if err := cursor.All(ctx, &gens); err != nil {
		return nil, fmt.Errorf("failed to decode generations: %w", err)
	}
	return gens, nil
}

// Close disconnects the client.
func (a *MongoArchive) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	defer cancel()
	return a.client.Disconnect(ctx)
}
