package app

import (
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// RoomManager is the registry of live rooms. Creation and removal are decided
// under one lock, so a room id is never created twice and an empty room is
// never reachable after removal.
type RoomManager struct {
	pool     *WorkerPool
	notifier core.Notifier
	opts     RoomOptions

	mu    sync.RWMutex
	rooms map[domain.RoomID]*Room
}

func NewRoomManager(pool *WorkerPool, notifier core.Notifier, opts RoomOptions) *RoomManager {
	return &RoomManager{
		pool:     pool,
		notifier: notifier,
		opts:     opts,
		rooms:    make(map[domain.RoomID]*Room),
	}
}

func (m *RoomManager) CreateRoom(id domain.RoomID) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[id]; ok {
		return nil, ErrRoomExists
	}
	worker := m.pool.Next()
	room := NewRoom(id, worker, m.notifier, m.opts)
	m.rooms[id] = room
	metrics.RoomStarted()

	log.Info().
		Str("module", "app.rooms").
		Str("room_id", string(id)).
		Str("worker_id", worker.ID()).
		Msg("room created")
	return room, nil
}

func (m *RoomManager) GetRoom(id domain.RoomID) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// RemoveIfEmpty deletes the room when it has no peers and releases its router.
func (m *RoomManager) RemoveIfEmpty(id domain.RoomID) bool {
	m.mu.Lock()
	room, ok := m.rooms[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	router, closed := room.closeIfEmpty()
	if closed {
		delete(m.rooms, id)
	}
	m.mu.Unlock()

	if !closed {
		return false
	}
	if router != nil {
		router.Close()
	}
	metrics.RoomEnded(room.CreatedAt())
	log.Info().Str("module", "app.rooms").Str("room_id", string(id)).Msg("room removed")
	return true
}

func (m *RoomManager) List() []domain.RoomInfo {
	m.mu.RLock()
	rooms := lo.Values(m.rooms)
	m.mu.RUnlock()
	return lo.Map(rooms, func(r *Room, _ int) domain.RoomInfo { return r.Info() })
}

func (m *RoomManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// CloseAll tears down every room; used on shutdown.
func (m *RoomManager) CloseAll() {
	m.mu.Lock()
	rooms := lo.Values(m.rooms)
	m.rooms = make(map[domain.RoomID]*Room)
	m.mu.Unlock()

	for _, r := range rooms {
		r.forceClose()
		metrics.RoomEnded(r.CreatedAt())
	}
}
