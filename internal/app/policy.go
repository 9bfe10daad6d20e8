package app

import "github.com/dkeye/Huddle/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickPeer
	DropFrame
)

// Policy decides what happens to a peer whose push queue is full.
type Policy interface {
	OnBackPressure(room domain.RoomID, peer domain.PeerID) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.RoomID, domain.PeerID) BackpressureAction {
	return KickPeer
}

// TolerantPolicy only drops the frame that did not fit.
type TolerantPolicy struct{}

func (TolerantPolicy) OnBackPressure(domain.RoomID, domain.PeerID) BackpressureAction {
	return DropFrame
}
