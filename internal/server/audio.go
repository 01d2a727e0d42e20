package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/harya06/iqro-gesture/internal/audiocache"
)

// audioContentType maps a synthesis format to its MIME type.
func audioContentType(format string) string {
	switch format {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "ogg", "opus":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

// handleAudio serves GET /audio/{label}: the raw pronunciation audio for one
// label, synthesising it on a cache miss.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	if s.audio == nil {
		http.Error(w, "audio synthesis is disabled", http.StatusServiceUnavailable)
		return
	}

	label := r.PathValue("label")
	audio, _, err := s.audio.Get(r.Context(), label)
	if err != nil {
		if errors.Is(err, audiocache.ErrUnavailable) {
			http.Error(w, "audio unavailable for label", http.StatusNotFound)
			return
		}
		slog.Error("audio lookup failed", "label", label, "error", err)
		http.Error(w, "audio lookup failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", audioContentType(audio.Format))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio.Data); err != nil {
		slog.Warn("audio response write failed", "label", label, "error", err)
	}
}

// handlePregenerate serves POST /audio/pregenerate: warms the cache for the
// whole vocabulary and reports how many labels have audio afterwards.
func (s *Server) handlePregenerate(w http.ResponseWriter, r *http.Request) {
	if s.audio == nil {
		http.Error(w, "audio synthesis is disabled", http.StatusServiceUnavailable)
		return
	}

	warmed := s.audio.PregenerateAll(r.Context(), s.gestures.Labels)
	writeJSON(w, http.StatusOK, map[string]int{
		"warmed": warmed,
		"total":  len(s.gestures.Labels),
	})
}

// handleClearCache serves DELETE /audio/cache.
func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if s.audio == nil {
		http.Error(w, "audio synthesis is disabled", http.StatusServiceUnavailable)
		return
	}

	cleared, err := s.audio.Clear(r.Context())
	if err != nil {
		slog.Error("audio cache clear failed", "error", err)
		http.Error(w, "cache clear failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}
