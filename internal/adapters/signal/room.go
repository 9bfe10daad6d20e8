package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) createRoom(_ context.Context, s *session, data json.RawMessage) (any, error) {
	p, err := decode[createRoomPayload](data)
	if err != nil {
		return nil, err
	}
	if !ctl.Limiter.Allow(s.rateKey) {
		return nil, errRateLimited
	}
	id := domain.RoomID(p.RoomID)
	if err := ctl.Orch.CreateRoom(id); err != nil {
		return nil, err
	}
	log.Info().Str("module", "signal").Str("peer_id", string(s.peerID)).Str("room_id", p.RoomID).Msg("room created")
	return id, nil
}

func (ctl *SignalWSController) handleJoin(_ context.Context, s *session, data json.RawMessage) (any, error) {
	p, err := decode[joinPayload](data)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "signal").Str("peer_id", string(s.peerID)).Str("room_id", p.RoomID).Msg("join")
	return ctl.Orch.Join(s.peerID, domain.RoomID(p.RoomID), p.Name)
}

// handleExit leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleExit(_ context.Context, s *session, _ json.RawMessage) (any, error) {
	if err := ctl.Orch.Exit(s.peerID); err != nil {
		return nil, err
	}
	log.Info().Str("module", "signal").Str("peer_id", string(s.peerID)).Msg("exit room")
	return "successfully exited room", nil
}

func (ctl *SignalWSController) handleRoomInfo(_ context.Context, s *session, _ json.RawMessage) (any, error) {
	return ctl.Orch.RoomInfo(s.peerID)
}
