// Package session tracks per-connection state and the registry of live
// connections.
package session

import (
	"time"

	"github.com/harya06/iqro-gesture/internal/gesture"
)

// Session is the server-side state for one live client connection.
//
// All fields other than ID and ConnectedAt are mutated only by the owning
// connection's read loop, which processes messages strictly in arrival
// order — so they need no locking. Cross-connection access goes through the
// [Registry].
type Session struct {
	// ID is the caller-supplied connection identifier.
	ID string

	// ConnectedAt is set once when the session is registered.
	ConnectedAt time.Time

	// PredictionCount is the number of accepted (above-threshold)
	// predictions emitted on this connection. Monotonically increasing.
	PredictionCount int

	// LastLabel is the most recent accepted label, or empty.
	LastLabel string

	// Window is this session's classification window normalizer.
	Window *gesture.Window
}

// RecordPrediction notes one accepted prediction. Called only from the
// session's own read loop.
func (s *Session) RecordPrediction(label string) {
	s.PredictionCount++
	s.LastLabel = label
}
