package orch

import (
	"errors"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) CreateRoom(id domain.RoomID) error {
	if err := domain.ValidateRoomID(id); err != nil {
		return err
	}
	_, err := o.Rooms.CreateRoom(id)
	return err
}

// Join admits the peer into an existing room. A peer already in another room
// leaves it only once the target room is known to exist.
func (o *Orchestrator) Join(peerID domain.PeerID, roomID domain.RoomID, name string) (domain.RoomSnapshot, error) {
	info, err := domain.NewPeerInfo(peerID, name)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}

	room, ok := o.Rooms.GetRoom(roomID)
	if !ok || room.State() == app.RoomClosed {
		return domain.RoomSnapshot{}, app.ErrRoomNotFound
	}

	if from, ok := o.Registry.RoomOf(peerID); ok {
		if from == roomID {
			return room.Snapshot(), nil
		}
		o.leave(peerID, from)
		log.Info().Str("module", "orch").Str("peer_id", string(peerID)).Str("from_room", string(from)).Msg("left previous room")
	}

	if err := room.AddPeer(app.NewPeer(info)); err != nil {
		if errors.Is(err, app.ErrRoomClosed) {
			return domain.RoomSnapshot{}, app.ErrRoomNotFound
		}
		return domain.RoomSnapshot{}, err
	}
	if !o.Registry.UpdateRoom(peerID, roomID) {
		// connection went away while joining
		room.RemovePeer(peerID)
		o.Rooms.RemoveIfEmpty(roomID)
		return domain.RoomSnapshot{}, app.ErrPeerNotFound
	}

	o.applyPolicy(roomID, room.Broadcast(peerID, core.EventPeerJoined, info))
	log.Info().Str("module", "orch").Str("peer_id", string(peerID)).Str("room_id", string(roomID)).Msg("joined room")
	return room.Snapshot(), nil
}

func (o *Orchestrator) Exit(peerID domain.PeerID) error {
	roomID, ok := o.Registry.RoomOf(peerID)
	if !ok {
		return app.ErrNotInRoom
	}
	o.leave(peerID, roomID)
	return nil
}

// OnDisconnect tears down everything the connection owned.
func (o *Orchestrator) OnDisconnect(peerID domain.PeerID) {
	if roomID, ok := o.Registry.RoomOf(peerID); ok {
		o.leave(peerID, roomID)
	}
	o.Registry.Unbind(peerID)
}

func (o *Orchestrator) leave(peerID domain.PeerID, roomID domain.RoomID) {
	o.Registry.RemoveRoom(peerID)

	room, ok := o.Rooms.GetRoom(roomID)
	if !ok {
		return
	}
	name, _ := room.PeerName(peerID)
	if room.RemovePeer(peerID) {
		res := room.Broadcast(peerID, core.EventPeerLeft, domain.PeerInfo{ID: peerID, Name: name})
		o.applyPolicy(roomID, res)
	}
	o.Rooms.RemoveIfEmpty(roomID)
}

// RoomInfo answers getMyRoomInfo.
func (o *Orchestrator) RoomInfo(peerID domain.PeerID) (domain.RoomSnapshot, error) {
	room, err := o.room(peerID)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	return room.Snapshot(), nil
}

func (o *Orchestrator) ListRooms() []domain.RoomInfo {
	return o.Rooms.List()
}

func (o *Orchestrator) RoomSnapshot(id domain.RoomID) (domain.RoomSnapshot, bool) {
	room, ok := o.Rooms.GetRoom(id)
	if !ok {
		return domain.RoomSnapshot{}, false
	}
	return room.Snapshot(), true
}
