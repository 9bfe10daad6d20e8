package orch

import (
	"time"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/metrics"
	"github.com/rs/zerolog/log"
)

const defaultRouterWait = 5 * time.Second

// Orchestrator implements the signaling use-cases on top of the room
// registry and the session registry.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomManager
	Policy   app.Policy

	// RouterWait bounds how long capability queries wait for a new room's
	// router.
	RouterWait time.Duration
}

// room resolves the room the peer is currently in.
func (o *Orchestrator) room(id domain.PeerID) (*app.Room, error) {
	roomID, ok := o.Registry.RoomOf(id)
	if !ok {
		return nil, app.ErrNotInRoom
	}
	room, ok := o.Rooms.GetRoom(roomID)
	if !ok {
		return nil, app.ErrNotInRoom
	}
	return room, nil
}

// applyPolicy handles peers whose push queue overflowed.
func (o *Orchestrator) applyPolicy(roomID domain.RoomID, res core.PublishResult) {
	if len(res.Dropped) == 0 {
		return
	}
	metrics.PushDropped(len(res.Dropped))
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(roomID, slow) {
		case app.KickPeer:
			log.Warn().
				Str("module", "orch").
				Str("room_id", string(roomID)).
				Str("peer_id", string(slow)).
				Msg("kicking slow peer")
			o.KickPeer(slow)
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}

// KickPeer cancels the peer's connection; its disconnect path does the
// cleanup.
func (o *Orchestrator) KickPeer(id domain.PeerID) {
	if !o.Registry.Cancel(id) {
		o.OnDisconnect(id)
	}
}

func (o *Orchestrator) routerWait() time.Duration {
	if o.RouterWait > 0 {
		return o.RouterWait
	}
	return defaultRouterWait
}
