package core

import (
	"github.com/dkeye/Huddle/internal/domain"
)

// Push event names.
const (
	EventNewProducers   = "newProducers"
	EventConsumerClosed = "consumerClosed"
	EventPeerJoined     = "peerJoined"
	EventPeerLeft       = "peerLeft"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []domain.PeerID
}

type ConsumerClosedPayload struct {
	ConsumerID domain.ConsumerID `json:"consumer_id"`
}
