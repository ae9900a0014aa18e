package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// schema holds one row per deployment. Multiple daemons (one per zone) can
// share a database.
const schema = `
CREATE TABLE IF NOT EXISTS uamguard_state (
	deployment       TEXT PRIMARY KEY,
	id               UUID NOT NULL,
	mode             TEXT NOT NULL,
	since            TIMESTAMPTZ NOT NULL,
	last_check       TIMESTAMPTZ NOT NULL,
	normalized_load  DOUBLE PRECISION NOT NULL DEFAULT 0,
	threshold_used   DOUBLE PRECISION NOT NULL DEFAULT 0,
	reason           TEXT NOT NULL DEFAULT '',
	updated_at       TIMESTAMPTZ NOT NULL
)`

// PostgresStore persists the state as a single row keyed by deployment name.
type PostgresStore struct {
	db         *sql.DB
	deployment string
}

// NewPostgresStore opens the database, verifies connectivity and ensures the
// schema exists.
func NewPostgresStore(dsn, deployment string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("state: open postgres: %w", err)
	}

	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: ping postgres: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: create schema: %w", err)
	}

	return &PostgresStore{db: db, deployment: deployment}, nil
}

func (p *PostgresStore) Load(ctx context.Context) (State, error) {
	const q = `
		SELECT mode, since, last_check, normalized_load, threshold_used, reason
		FROM uamguard_state WHERE deployment = $1`

	var st State
	err := p.db.QueryRowContext(ctx, q, p.deployment).Scan(
		&st.Mode, &st.Since, &st.LastCheck,
		&st.NormalizedLoad, &st.ThresholdUsed, &st.Reason,
	)
	if err == sql.ErrNoRows {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("state: query: %w", err)
	}
	if !st.Valid() {
		return State{}, ErrNotFound
	}
	return st, nil
}

func (p *PostgresStore) Save(ctx context.Context, st State) error {
	const q = `
		INSERT INTO uamguard_state
			(deployment, id, mode, since, last_check, normalized_load, threshold_used, reason, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (deployment) DO UPDATE SET
			mode = EXCLUDED.mode,
			since = EXCLUDED.since,
			last_check = EXCLUDED.last_check,
			normalized_load = EXCLUDED.normalized_load,
			threshold_used = EXCLUDED.threshold_used,
			reason = EXCLUDED.reason,
			updated_at = EXCLUDED.updated_at`

	_, err := p.db.ExecContext(ctx, q,
		p.deployment, uuid.New(), st.Mode, st.Since, st.LastCheck,
		st.NormalizedLoad, st.ThresholdUsed, st.Reason, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("state: upsert: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}
