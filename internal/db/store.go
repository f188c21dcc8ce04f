// Package db provides PostgreSQL persistence for ticket runs and their
// per-step artifacts. Persistence is optional: the workflow degrades to
// in-memory operation when no database is configured.
package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a PostgreSQL connection pool
type Store struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the connection pool
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the ticket run tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS ticket_runs (
	id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	subject     TEXT NOT NULL,
	description TEXT NOT NULL,
	status      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS ticket_artifacts (
	id         BIGSERIAL PRIMARY KEY,
	run_id     UUID NOT NULL REFERENCES ticket_runs(id) ON DELETE CASCADE,
	step       TEXT NOT NULL,
	content    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (run_id, step)
);
`

// CreateTicketRun creates a new ticket run record and returns its ID
func (s *Store) CreateTicketRun(ctx context.Context, subject, description string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`INSERT INTO ticket_runs (subject, description, status)
		 VALUES ($1, $2, 'running')
		 RETURNING id`,
		subject, description,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create ticket run: %w", err)
	}
	return id, nil
}

// CompleteTicketRun marks a ticket run as terminal with the given status
func (s *Store) CompleteTicketRun(ctx context.Context, runID uuid.UUID, status string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE ticket_runs SET status = $1, completed_at = NOW() WHERE id = $2`,
		status, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete ticket run: %w", err)
	}
	return nil
}

// SaveArtifact stores a JSON artifact for a ticket run step. Re-running a
// step overwrites its previous artifact.
func (s *Store) SaveArtifact(ctx context.Context, runID uuid.UUID, step string, content any) error {
	jsonBytes, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO ticket_artifacts (run_id, step, content)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (run_id, step) DO UPDATE SET content = $3, created_at = NOW()`,
		runID, step, jsonBytes,
	)
	if err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

// SaveTextArtifact stores a plain-text artifact for a ticket run step
func (s *Store) SaveTextArtifact(ctx context.Context, runID uuid.UUID, step, text string) error {
	return s.SaveArtifact(ctx, runID, step, map[string]string{"text": text})
}
