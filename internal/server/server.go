// Package server exposes the gesture recognition service over HTTP: the
// websocket stream endpoint, the session status endpoint, the pronunciation
// audio endpoints, and the health and metrics probes.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harya06/iqro-gesture/internal/audiocache"
	"github.com/harya06/iqro-gesture/internal/config"
	"github.com/harya06/iqro-gesture/internal/health"
	"github.com/harya06/iqro-gesture/internal/observe"
	"github.com/harya06/iqro-gesture/internal/session"
	"github.com/harya06/iqro-gesture/internal/stream"
)

// shutdownTimeout bounds the drain of in-flight requests on shutdown.
const shutdownTimeout = 10 * time.Second

// Deps carries the subsystems the server serves. Pipeline and Registry are
// required; the rest default to inert implementations when nil.
type Deps struct {
	Gestures config.GestureConfig
	Pipeline *stream.Pipeline
	Registry *session.Registry

	// Recorder receives session lifecycle events. Nil disables history.
	Recorder stream.Recorder

	// Audio backs the /audio endpoints and is nil when synthesis is disabled.
	Audio *audiocache.Cache

	// History serves the /predictions/similar lookup and is nil when the
	// prediction store is disabled.
	History HistoryStore

	// Health serves /healthz and /readyz. Nil gets an empty checker set.
	Health *health.Handler

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Server is the HTTP front of the gesture service.
type Server struct {
	addr     string
	gestures config.GestureConfig
	pipeline *stream.Pipeline
	registry *session.Registry
	recorder stream.Recorder
	audio    *audiocache.Cache
	history  HistoryStore
	health   *health.Handler
	metrics  *observe.Metrics
}

// New builds a Server listening on addr.
func New(addr string, deps Deps) *Server {
	s := &Server{
		addr:     addr,
		gestures: deps.Gestures,
		pipeline: deps.Pipeline,
		registry: deps.Registry,
		recorder: deps.Recorder,
		audio:    deps.Audio,
		history:  deps.History,
		health:   deps.Health,
		metrics:  deps.Metrics,
	}
	if s.recorder == nil {
		s.recorder = stream.NopRecorder{}
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the full route table wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /ws/{sessionID}", s.handleWS)
	mux.HandleFunc("GET /ws/status", s.handleStatus)

	mux.HandleFunc("GET /audio/{label}", s.handleAudio)
	mux.HandleFunc("POST /audio/pregenerate", s.handlePregenerate)
	mux.HandleFunc("DELETE /audio/cache", s.handleClearCache)

	mux.HandleFunc("POST /predictions/similar", s.handleSimilar)

	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.metrics)(mux)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
