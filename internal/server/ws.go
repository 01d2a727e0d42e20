package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/harya06/iqro-gesture/internal/session"
)

// wsTransport adapts a websocket connection to the registry's write side.
type wsTransport struct {
	conn *websocket.Conn
}

var _ session.Transport = (*wsTransport)(nil)

// Send marshals v and writes it as one text frame.
func (t *wsTransport) Send(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return t.conn.Write(ctx, websocket.MessageText, data)
}

// Close closes the connection with a normal closure and the given reason.
func (t *wsTransport) Close(reason string) error {
	return t.conn.Close(websocket.StatusNormalClosure, reason)
}

// handleWS serves GET /ws/{sessionID}: accepts the websocket, registers the
// session, greets the client, then runs the read loop until the peer goes
// away. An empty session id gets a generated one.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	// Browser clients connect from arbitrary dev origins; same-origin checks
	// belong to the deployment's reverse proxy.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Error("websocket accept failed", "session_id", sessionID, "error", err)
		return
	}

	transport := &wsTransport{conn: conn}
	sess, err := s.registry.Connect(sessionID, transport)
	if err != nil {
		slog.Error("session registration failed", "session_id", sessionID, "error", err)
		conn.Close(websocket.StatusInternalError, "registration failed")
		return
	}

	ctx := r.Context()
	s.metrics.ActiveSessions.Add(ctx, 1)
	s.recorder.SessionStarted(sessionID, map[string]string{
		"user_agent": r.UserAgent(),
	})
	slog.Info("client connected", "session_id", sessionID)

	defer func() {
		s.recorder.SessionEnded(sessionID, sess.PredictionCount)
		s.registry.Disconnect(sessionID, transport)
		s.metrics.ActiveSessions.Add(context.Background(), -1)
		conn.Close(websocket.StatusNormalClosure, "session closed")
		slog.Info("client disconnected",
			"session_id", sessionID, "predictions", sess.PredictionCount)
	}()

	s.registry.Send(ctx, sessionID, s.pipeline.Welcome(sessionID))

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway ||
				errors.Is(err, context.Canceled) {
				return
			}
			slog.Warn("websocket read failed", "session_id", sessionID, "error", err)
			return
		}

		if resp := s.pipeline.Process(ctx, sess, data); resp != nil {
			s.registry.Send(ctx, sessionID, resp)
		}
	}
}

// handleStatus serves GET /ws/status with the live session snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Snapshot())
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}
