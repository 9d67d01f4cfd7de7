package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SchemaVersion is the version a freshly initialized archive reports in
// PRAGMA user_version.
const SchemaVersion = 1

// migrations[i] moves an archive from version i to i+1.
var migrations = [SchemaVersion]string{schemaV1}

// schemaV1 is the initial archive schema. Nested values (campaign, profile,
// result, rewrite) are stored as JSON text; the scalar columns beside them
// exist for listing and sorting without decoding.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    random_seed INTEGER NOT NULL,
    goal TEXT NOT NULL,
    campaign TEXT NOT NULL,      -- JSON
    personas INTEGER DEFAULT 0,
    edges INTEGER DEFAULT 0,
    influencers TEXT,            -- JSON array
    status TEXT DEFAULT '',
    generations INTEGER DEFAULT 0,
    best_fitness REAL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);

CREATE TABLE IF NOT EXISTS personas (
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    persona_id TEXT NOT NULL,
    name TEXT NOT NULL,
    profile TEXT NOT NULL,       -- JSON
    PRIMARY KEY (session_id, persona_id)
);

CREATE TABLE IF NOT EXISTS generations (
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    generation INTEGER NOT NULL,
    fitness REAL NOT NULL,
    reach INTEGER DEFAULT 0,
    sentiment REAL DEFAULT 0,
    result TEXT NOT NULL,        -- JSON
    rewrite TEXT,                -- JSON
    created_at TEXT NOT NULL,
    PRIMARY KEY (session_id, generation)
);

`

// InitSchema brings db up to SchemaVersion. An existing archive is checked
// for corruption first, and one written by a newer build is refused.
func InitSchema(ctx context.Context, db *sql.DB) error {
	version, err := getSchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if version > SchemaVersion {
		return fmt.Errorf("archive schema version %d is newer than supported version %d", version, SchemaVersion)
	}
	if version > 0 {
		if err := ValidateIntegrity(ctx, db); err != nil {
			return fmt.Errorf("database integrity check failed: %w", err)
		}
	}

	for v := version; v < SchemaVersion; v++ {
		if err := migrate(ctx, db, v); err != nil {
			return fmt.Errorf("migrating archive to version %d: %w", v+1, err)
		}
	}
	return nil
}

func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// migrate applies migrations[from] and bumps user_version in one transaction.
func migrate(ctx context.Context, db *sql.DB, from int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migrations[from]); err != nil {
		return err
	}
	// PRAGMA arguments cannot be bound.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, from+1)); err != nil {
		return err
	}
	return tx.Commit()
}

// ValidateIntegrity fails if PRAGMA integrity_check or foreign_key_check
// report any problem.
func ValidateIntegrity(ctx context.Context, db *sql.DB) error {
	var problems []string

	rows, err := db.QueryContext(ctx, `PRAGMA integrity_check`)
	if err != nil {
		return fmt.Errorf("integrity_check: %w", err)
	}
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			rows.Close()
			return fmt.Errorf("integrity_check: %w", err)
		}
		if line != "ok" {
			problems = append(problems, line)
		}
	}
	rows.Close()

	rows, err = db.QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return fmt.Errorf("foreign_key_check: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var table, parent string
		var rowid, fkid sql.NullInt64
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return fmt.Errorf("foreign_key_check: %w", err)
		}
		problems = append(problems, fmt.Sprintf("%s row %d references missing %s", table, rowid.Int64, parent))
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}
