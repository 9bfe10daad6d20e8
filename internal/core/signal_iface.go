package core

import "github.com/dkeye/Huddle/internal/domain"

//go:generate mockgen -destination=../mocks/mock_signal.go -package=mocks github.com/dkeye/Huddle/internal/core SignalConnection,Notifier

// Frame is a raw encoded signaling message.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Notifier delivers server push events to a single peer.
// Implementations must not block on slow receivers.
type Notifier interface {
	Notify(to domain.PeerID, event string, payload any) error
}

// Push is the envelope of a server initiated message.
type Push struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
