// Package postgres provides the PostgreSQL-backed prediction history store.
//
// Accepted predictions are appended together with their trailing landmark
// frames (JSONB, for debugging) and the final frame of the triggering window
// as a pgvector column, which makes "find past predictions with a similar
// hand pose" a single nearest-neighbour query. Session connect and disconnect
// markers land in a separate table.
//
// The pgvector extension must be available in the target database; [Migrate]
// installs it automatically via CREATE EXTENSION IF NOT EXISTS.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessionLog = `
CREATE TABLE IF NOT EXISTS session_log (
    id                BIGSERIAL    PRIMARY KEY,
    session_id        TEXT         NOT NULL,
    event             TEXT         NOT NULL,
    metadata          JSONB        NOT NULL DEFAULT '{}',
    total_predictions INTEGER      NOT NULL DEFAULT 0,
    timestamp         TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_session_log_session_id
    ON session_log (session_id);

CREATE INDEX IF NOT EXISTS idx_session_log_timestamp
    ON session_log (timestamp);
`

// ddlPredictions returns the predictions DDL with the feature vector
// dimension substituted. The dimension is baked into the column type at
// schema creation time.
func ddlPredictions(featureWidth int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS predictions (
    id            BIGSERIAL    PRIMARY KEY,
    session_id    TEXT         NOT NULL,
    label         TEXT         NOT NULL,
    confidence    DOUBLE PRECISION NOT NULL,
    recent_frames JSONB        NOT NULL DEFAULT '[]',
    last_frame    vector(%d),
    timestamp     TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_predictions_session_id
    ON predictions (session_id);

CREATE INDEX IF NOT EXISTS idx_predictions_label
    ON predictions (label);

CREATE INDEX IF NOT EXISTS idx_predictions_last_frame
    ON predictions USING hnsw (last_frame vector_cosine_ops);
`, featureWidth)
}

// Migrate creates or ensures all required tables and extensions exist. It is
// idempotent and safe to call on every application start.
//
// featureWidth must match the per-frame feature count produced by the landmark
// extractor (63 for 21 hand landmarks with x, y, z). Changing this value after
// the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, featureWidth int) error {
	statements := []string{
		ddlPredictions(featureWidth),
		ddlSessionLog,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
