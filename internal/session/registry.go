package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/harya06/iqro-gesture/internal/gesture"
)

// Transport is the write side of one client connection. The websocket layer
// implements it; tests inject fakes.
type Transport interface {
	// Send pushes one outbound message. Implementations encode v as the
	// wire envelope.
	Send(ctx context.Context, v any) error

	// Close tears the connection down with a reason shown to the client.
	Close(reason string) error
}

// entry pairs a session with its transport handle.
type entry struct {
	session   *Session
	transport Transport
}

// Snapshot is a read-only view of the registry for the status endpoint.
type Snapshot struct {
	ActiveConnections int      `json:"active_connections"`
	Sessions          []string `json:"sessions"`
}

// Registry is the single authority over live connections. It owns the only
// map that is mutated from multiple goroutines; per-session state stays with
// the owning read loop.
//
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	targetLength int
	featureWidth int
}

// NewRegistry creates an empty Registry. New sessions get a window of the
// given shape.
func NewRegistry(targetLength, featureWidth int) *Registry {
	return &Registry{
		entries:      make(map[string]*entry),
		targetLength: targetLength,
		featureWidth: featureWidth,
	}
}

// Connect registers a session under id and returns it.
//
// A duplicate id supersedes the previous connection: the old transport is
// force-closed (so the handle cannot leak) and the newest connection wins.
// The superseded read loop observes its transport closing and runs its own
// teardown, which is a no-op by then because the entry now belongs to the
// new connection.
func (r *Registry) Connect(id string, transport Transport) (*Session, error) {
	window, err := gesture.New(r.targetLength, r.featureWidth)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:          id,
		ConnectedAt: time.Now().UTC(),
		Window:      window,
	}

	r.mu.Lock()
	old, existed := r.entries[id]
	r.entries[id] = &entry{session: sess, transport: transport}
	r.mu.Unlock()

	if existed {
		slog.Warn("duplicate session id, superseding previous connection", "session_id", id)
		if err := old.transport.Close("session superseded by a new connection"); err != nil {
			slog.Debug("closing superseded transport", "session_id", id, "err", err)
		}
	}

	slog.Info("client connected", "session_id", id)
	return sess, nil
}

// Send pushes message to the session registered under id. Unknown ids are a
// no-op. A transport-level send failure is logged but does not tear the
// session down — the transport's own disconnect signal drives teardown.
func (r *Registry) Send(ctx context.Context, id string, message any) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return
	}
	if err := e.transport.Send(ctx, message); err != nil {
		slog.Error("send failed", "session_id", id, "err", err)
	}
}

// Broadcast sends message to every active session. A failure on one session
// never prevents delivery to the others.
func (r *Registry) Broadcast(ctx context.Context, message any) {
	r.mu.RLock()
	targets := make(map[string]Transport, len(r.entries))
	for id, e := range r.entries {
		targets[id] = e.transport
	}
	r.mu.RUnlock()

	for id, tr := range targets {
		if err := tr.Send(ctx, message); err != nil {
			slog.Error("broadcast send failed", "session_id", id, "err", err)
		}
	}
}

// Disconnect removes the entry for id if transport still owns it, releasing
// the transport handle. Idempotent: an absent id is a no-op, and a read loop
// whose entry was superseded by a newer connection does not remove the new
// owner.
func (r *Registry) Disconnect(id string, transport Transport) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok && (transport == nil || e.transport == transport) {
		delete(r.entries, id)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if ok {
		if err := e.transport.Close("session closed"); err != nil {
			slog.Debug("closing transport", "session_id", id, "err", err)
		}
		slog.Info("client disconnected", "session_id", id, "predictions", e.session.PredictionCount)
	}
}

// Get returns the session registered under id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[id]; ok {
		return e.session
	}
	return nil
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns the active session count and ids for the status endpoint.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return Snapshot{ActiveConnections: len(ids), Sessions: ids}
}
