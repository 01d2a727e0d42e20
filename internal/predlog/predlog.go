// Package predlog is the narrow append-only boundary between the live stream
// and the prediction history store.
//
// The stream pipeline never talks to the database directly: it hands records
// to an [AsyncAppender], which queues them for a background worker. Store
// latency or failure can therefore never delay or break a client response —
// the worst case is a dropped history row, which is counted and logged.
package predlog

import "context"

// PredictionRecord is one accepted prediction to persist.
type PredictionRecord struct {
	// SessionID identifies the connection that produced the prediction.
	SessionID string

	// Label is the accepted gesture label.
	Label string

	// Confidence is the classifier confidence for Label.
	Confidence float64

	// RecentFrames holds the trailing frames of the triggering window, kept
	// as a debugging artifact. May be empty.
	RecentFrames [][]float64

	// LastFrame is the final frame of the window, stored as a feature
	// vector for similarity queries. May be nil.
	LastFrame []float64
}

// Appender is the synchronous store contract. Implementations:
// postgres.Store and [NopAppender].
type Appender interface {
	// AppendPrediction persists one accepted prediction.
	AppendPrediction(ctx context.Context, rec PredictionRecord) error

	// AppendSessionStart records that a session connected.
	AppendSessionStart(ctx context.Context, sessionID string, metadata map[string]string) error

	// AppendSessionEnd records that a session disconnected with its final
	// prediction total.
	AppendSessionEnd(ctx context.Context, sessionID string, totalPredictions int) error
}

// NopAppender discards every append. Used when no store is configured.
type NopAppender struct{}

// Compile-time interface assertion.
var _ Appender = NopAppender{}

func (NopAppender) AppendPrediction(context.Context, PredictionRecord) error { return nil }

func (NopAppender) AppendSessionStart(context.Context, string, map[string]string) error {
	return nil
}

func (NopAppender) AppendSessionEnd(context.Context, string, int) error { return nil }
