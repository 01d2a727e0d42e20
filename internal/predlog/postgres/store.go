package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/harya06/iqro-gesture/internal/predlog"
)

// Compile-time interface check.
var _ predlog.Appender = (*Store)(nil)

// Store is the PostgreSQL-backed prediction history store. It holds a single
// [pgxpool.Pool] and is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// SimilarPrediction is one result of [Store.SimilarPredictions]: a past
// prediction whose final hand pose is close to the query frame.
type SimilarPrediction struct {
	SessionID  string    `json:"session_id"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`

	// Distance is the cosine distance to the query frame; lower is closer.
	Distance float64 `json:"distance"`
}

// NewStore establishes a connection pool to the PostgreSQL database at dsn,
// registers pgvector types on every connection, and runs [Migrate] to ensure
// all required tables and extensions exist.
//
// featureWidth must match the per-frame feature count of the landmark stream
// (63 for 21 hand landmarks with x, y, z coordinates).
func NewStore(ctx context.Context, dsn string, featureWidth int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("prediction store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("prediction store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("prediction store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, featureWidth); err != nil {
		pool.Close()
		return nil, fmt.Errorf("prediction store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// AppendPrediction implements [predlog.Appender].
func (s *Store) AppendPrediction(ctx context.Context, rec predlog.PredictionRecord) error {
	frames := rec.RecentFrames
	if frames == nil {
		frames = [][]float64{}
	}
	framesJSON, err := json.Marshal(frames)
	if err != nil {
		return fmt.Errorf("prediction store: encode frames: %w", err)
	}

	var lastFrame any
	if len(rec.LastFrame) > 0 {
		lastFrame = pgvector.NewVector(toFloat32(rec.LastFrame))
	}

	const q = `
		INSERT INTO predictions (session_id, label, confidence, recent_frames, last_frame)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := s.pool.Exec(ctx, q,
		rec.SessionID, rec.Label, rec.Confidence, framesJSON, lastFrame,
	); err != nil {
		return fmt.Errorf("prediction store: append prediction: %w", err)
	}
	return nil
}

// AppendSessionStart implements [predlog.Appender].
func (s *Store) AppendSessionStart(ctx context.Context, sessionID string, metadata map[string]string) error {
	if metadata == nil {
		metadata = map[string]string{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("prediction store: encode metadata: %w", err)
	}

	const q = `
		INSERT INTO session_log (session_id, event, metadata)
		VALUES ($1, 'connected', $2)`

	if _, err := s.pool.Exec(ctx, q, sessionID, metaJSON); err != nil {
		return fmt.Errorf("prediction store: append session start: %w", err)
	}
	return nil
}

// AppendSessionEnd implements [predlog.Appender].
func (s *Store) AppendSessionEnd(ctx context.Context, sessionID string, totalPredictions int) error {
	const q = `
		INSERT INTO session_log (session_id, event, total_predictions)
		VALUES ($1, 'disconnected', $2)`

	if _, err := s.pool.Exec(ctx, q, sessionID, totalPredictions); err != nil {
		return fmt.Errorf("prediction store: append session end: %w", err)
	}
	return nil
}

// SimilarPredictions finds the topK past predictions whose final hand pose is
// closest (cosine distance) to frame. Results are ordered by ascending
// distance, most similar first.
func (s *Store) SimilarPredictions(ctx context.Context, frame []float64, topK int) ([]SimilarPrediction, error) {
	queryVec := pgvector.NewVector(toFloat32(frame))

	const q = `
		SELECT session_id, label, confidence, timestamp,
		       last_frame <=> $1 AS distance
		FROM   predictions
		WHERE  last_frame IS NOT NULL
		ORDER  BY distance
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, queryVec, topK)
	if err != nil {
		return nil, fmt.Errorf("prediction store: similar predictions: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SimilarPrediction, error) {
		var p SimilarPrediction
		err := row.Scan(&p.SessionID, &p.Label, &p.Confidence, &p.Timestamp, &p.Distance)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("prediction store: scan similar predictions: %w", err)
	}
	return results, nil
}

// Ping verifies database connectivity. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
