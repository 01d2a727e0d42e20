package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/harya06/iqro-gesture/internal/predlog/postgres"
)

// defaultTopK bounds similarity lookups that omit top_k.
const (
	defaultTopK = 5
	maxTopK     = 50
)

// HistoryStore searches past predictions by hand pose similarity.
type HistoryStore interface {
	SimilarPredictions(ctx context.Context, frame []float64, topK int) ([]postgres.SimilarPrediction, error)
}

// similarRequest is the body of POST /predictions/similar.
type similarRequest struct {
	// Frame is one flattened landmark frame to search around.
	Frame []float64 `json:"frame"`

	// TopK is how many neighbours to return. Defaults to 5, capped at 50.
	TopK int `json:"top_k"`
}

// handleSimilar serves POST /predictions/similar: the logged predictions whose
// final hand pose is closest to the posted frame.
func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "prediction store is disabled", http.StatusServiceUnavailable)
		return
	}

	var req similarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Frame) != s.pipeline.Window().FeatureWidth {
		http.Error(w, "frame has wrong feature width", http.StatusBadRequest)
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	results, err := s.history.SimilarPredictions(r.Context(), req.Frame, topK)
	if err != nil {
		slog.Error("similarity lookup failed", "error", err)
		http.Error(w, "similarity lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
