package sfu

import (
	"context"
	"sync"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// RelayManager owns the packet relays of one worker, one per producer.
type RelayManager struct {
	mu     sync.RWMutex
	relays map[domain.ProducerID]*Relay

	fault func(error)
}

// NewRelayManager creates a manager; fault is called when a relay loop
// crashes and may be nil.
func NewRelayManager(fault func(error)) *RelayManager {
	return &RelayManager{
		relays: make(map[domain.ProducerID]*Relay),
		fault:  fault,
	}
}

// StartRelay creates a new Relay for the given producer and starts its loop.
func (m *RelayManager) StartRelay(ctx context.Context, id domain.ProducerID, src PacketSource) {
	logger := log.With().
		Str("module", "sfu").
		Str("producer_id", string(id)).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(src, cancel)

	m.mu.Lock()
	if old, ok := m.relays[id]; ok {
		logger.Info().Msg("replacing existing relay for producer")
		old.markAllDelete()
		if old.cancel != nil {
			old.cancel()
		}
	}
	m.relays[id] = relay
	m.mu.Unlock()

	logger.Debug().Msg("starting relay loop")

	go relay.loop(relayCtx, &logger, m.fault)
}

// AddSubscriber attaches an OutTrack for consumer dst to the relay of src.
func (m *RelayManager) AddSubscriber(src domain.ProducerID, dst domain.ConsumerID, sink PacketSink) bool {
	m.mu.RLock()
	relay, ok := m.relays[src]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	relay.AddOutTrack(dst, NewOutTrack(sink))
	return true
}

// MarkSubscriberDelete marks consumer's OutTrack as TrackStateDelete.
func (m *RelayManager) MarkSubscriberDelete(src domain.ProducerID, dst domain.ConsumerID) {
	if ot, ok := m.outTrack(src, dst); ok {
		ot.MarkDelete()
	}
}

// MuteSubscriber stops forwarding to dst without dropping the track.
func (m *RelayManager) MuteSubscriber(src domain.ProducerID, dst domain.ConsumerID) {
	if ot, ok := m.outTrack(src, dst); ok {
		ot.MarkMuted()
	}
}

func (m *RelayManager) UnmuteSubscriber(src domain.ProducerID, dst domain.ConsumerID) {
	if ot, ok := m.outTrack(src, dst); ok {
		ot.MarkOk()
	}
}

func (m *RelayManager) outTrack(src domain.ProducerID, dst domain.ConsumerID) (*OutTrack, bool) {
	m.mu.RLock()
	relay, ok := m.relays[src]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return relay.outTrack(dst)
}

// StopRelay stops a relay and removes it from the manager.
func (m *RelayManager) StopRelay(src domain.ProducerID) {
	m.mu.Lock()
	relay, ok := m.relays[src]
	if ok {
		delete(m.relays, src)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	relay.markAllDelete()
	if relay.cancel != nil {
		relay.cancel()
	}
}

// HasRelay reports whether a relay exists for the producer.
func (m *RelayManager) HasRelay(id domain.ProducerID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.relays[id]
	return ok
}

// StopAll stops every relay; used when the owning worker shuts down.
func (m *RelayManager) StopAll() {
	m.mu.Lock()
	relays := m.relays
	m.relays = make(map[domain.ProducerID]*Relay)
	m.mu.Unlock()
	for _, r := range relays {
		r.markAllDelete()
		if r.cancel != nil {
			r.cancel()
		}
	}
}
