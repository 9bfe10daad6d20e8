package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	RoomID domain.RoomID
	Conn   core.SignalConnection
	Cancel context.CancelFunc
}

// Registry binds live signaling connections to peers and to the room each
// peer is in. It is the Notifier rooms push through.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.PeerID]*sessionEntry
}

var _ core.Notifier = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.PeerID]*sessionEntry)}
}

func (r *Registry) BindSignal(id domain.PeerID, conn core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &sessionEntry{Conn: conn, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("peer_id", string(id)).Msg("bound signal")
}

func (r *Registry) Unbind(id domain.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("peer_id", string(id)).Msg("unbind session")
}

func (r *Registry) RoomOf(id domain.PeerID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok || e.RoomID == "" {
		return "", false
	}
	return e.RoomID, true
}

func (r *Registry) UpdateRoom(id domain.PeerID, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return false
	}
	e.RoomID = room
	log.Info().Str("module", "app.registry").Str("peer_id", string(id)).Str("room_id", string(room)).Msg("updated room")
	return true
}

func (r *Registry) RemoveRoom(id domain.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[id]; ok {
		e.RoomID = ""
	}
	log.Debug().Str("module", "app.registry").Str("peer_id", string(id)).Msg("removed room association")
}

// Cancel ends the connection of a peer, which triggers its disconnect path.
func (r *Registry) Cancel(id domain.PeerID) bool {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("peer_id", string(id)).Msg("canceled session")
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Notify encodes a push and queues it on the peer's connection without
// blocking. A full queue surfaces as the connection's backpressure error.
func (r *Registry) Notify(to domain.PeerID, event string, payload any) error {
	r.mu.RLock()
	e, ok := r.sessions[to]
	r.mu.RUnlock()
	if !ok || e.Conn == nil {
		return fmt.Errorf("%w: %s", ErrPeerNotFound, to)
	}
	frame, err := json.Marshal(core.Push{Type: event, Data: payload})
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	return e.Conn.TrySend(frame)
}
