package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type PeerState int

const (
	PeerJoined PeerState = iota
	PeerActive
	PeerClosed
)

func (s PeerState) String() string {
	switch s {
	case PeerJoined:
		return "joined"
	case PeerActive:
		return "active"
	case PeerClosed:
		return "closed"
	}
	return fmt.Sprintf("PeerState(%d)", int(s))
}

type producerEntry struct {
	producer  core.Producer
	mediaType domain.MediaType
}

// Peer is one participant of a room and the exclusive owner of its media
// objects. It never refers to another peer.
type Peer struct {
	info   domain.PeerInfo
	logger zerolog.Logger

	mu         sync.Mutex
	state      PeerState
	transports map[domain.TransportID]core.Transport
	producers  map[domain.ProducerID]producerEntry
	consumers  map[domain.ConsumerID]core.Consumer
	// media type -> producer id; an empty id marks a slot reserved by an
	// in-flight produce
	slots map[domain.MediaType]domain.ProducerID
}

func NewPeer(info domain.PeerInfo) *Peer {
	return &Peer{
		info:       info,
		logger:     log.With().Str("module", "app.peer").Str("peer_id", string(info.ID)).Logger(),
		transports: make(map[domain.TransportID]core.Transport),
		producers:  make(map[domain.ProducerID]producerEntry),
		consumers:  make(map[domain.ConsumerID]core.Consumer),
		slots:      make(map[domain.MediaType]domain.ProducerID),
	}
}

func (p *Peer) ID() domain.PeerID { return p.info.ID }
func (p *Peer) Name() string { return p.info.Name }
func (p *Peer) Info() domain.PeerInfo { return p.info }

func (p *Peer) State() PeerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// AddTransport registers t. A closed peer closes t instead.
func (p *Peer) AddTransport(t core.Transport) error {
	p.mu.Lock()
	if p.state == PeerClosed {
		p.mu.Unlock()
		t.Close()
		return ErrPeerClosed
	}
	p.transports[t.ID()] = t
	if p.state == PeerJoined {
		p.state = PeerActive
	}
	p.mu.Unlock()

	p.logger.Debug().Str("transport_id", string(t.ID())).Msg("transport added")
	return nil
}

func (p *Peer) Transport(id domain.TransportID) (core.Transport, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.transports[id]
	return t, ok
}

// ConnectTransport is a no-op for unknown transports.
func (p *Peer) ConnectTransport(ctx context.Context, id domain.TransportID, dtls domain.DtlsParameters, ice *domain.IceParameters) error {
	t, ok := p.Transport(id)
	if !ok {
		p.logger.Debug().Str("transport_id", string(id)).Msg("connect for unknown transport ignored")
		return nil
	}
	return t.Connect(ctx, dtls, ice)
}

// CreateProducer creates a producer on one of the peer's transports. Only one
// producer per media type may exist; the slot is reserved before the engine
// call so concurrent requests cannot both pass.
func (p *Peer) CreateProducer(
	ctx context.Context,
	transportID domain.TransportID,
	kind domain.MediaKind,
	mediaType domain.MediaType,
	rtp domain.RtpParameters,
) (core.Producer, error) {
	if mediaType == "" {
		mediaType = domain.MediaType(kind)
	}

	p.mu.Lock()
	if p.state == PeerClosed {
		p.mu.Unlock()
		return nil, ErrPeerClosed
	}
	t, ok := p.transports[transportID]
	if !ok {
		p.mu.Unlock()
		return nil, ErrTransportNotFound
	}
	if _, taken := p.slots[mediaType]; taken {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrProducerExists, mediaType)
	}
	p.slots[mediaType] = ""
	p.mu.Unlock()

	prod, err := t.Produce(ctx, core.ProduceOptions{Kind: kind, RtpParameters: rtp})

	p.mu.Lock()
	if err != nil {
		delete(p.slots, mediaType)
		p.mu.Unlock()
		return nil, err
	}
	if p.state == PeerClosed {
		p.mu.Unlock()
		prod.Close()
		return nil, ErrPeerClosed
	}
	p.producers[prod.ID()] = producerEntry{producer: prod, mediaType: mediaType}
	p.slots[mediaType] = prod.ID()
	p.mu.Unlock()

	id := prod.ID()
	prod.OnTransportClose(func() { p.producerTransportClosed(id) })

	p.logger.Info().
		Str("producer_id", string(id)).
		Str("kind", string(kind)).
		Str("media_type", string(mediaType)).
		Msg("producer created")
	return prod, nil
}

func (p *Peer) producerTransportClosed(id domain.ProducerID) {
	p.logger.Debug().Str("producer_id", string(id)).Msg("producer transport closed")
	p.CloseProducer(id)
}

// CreateConsumer subscribes to producerID on one of the peer's transports.
func (p *Peer) CreateConsumer(
	ctx context.Context,
	transportID domain.TransportID,
	producerID domain.ProducerID,
	caps domain.RtpCapabilities,
) (core.Consumer, domain.ConsumerParams, error) {
	p.mu.Lock()
	if p.state == PeerClosed {
		p.mu.Unlock()
		return nil, domain.ConsumerParams{}, ErrPeerClosed
	}
	t, ok := p.transports[transportID]
	p.mu.Unlock()
	if !ok {
		return nil, domain.ConsumerParams{}, ErrTransportNotFound
	}

	c, err := t.Consume(ctx, core.ConsumeOptions{ProducerID: producerID, RtpCapabilities: caps})
	if err != nil {
		return nil, domain.ConsumerParams{}, err
	}

	p.mu.Lock()
	if p.state == PeerClosed {
		p.mu.Unlock()
		c.Close()
		return nil, domain.ConsumerParams{}, ErrPeerClosed
	}
	p.consumers[c.ID()] = c
	p.mu.Unlock()

	id := c.ID()
	c.OnTransportClose(func() { p.consumerTransportClosed(id) })

	p.logger.Debug().
		Str("consumer_id", string(id)).
		Str("producer_id", string(producerID)).
		Msg("consumer created")

	return c, domain.ConsumerParams{
		ID:             id,
		ProducerID:     producerID,
		Kind:           c.Kind(),
		RtpParameters:  c.RtpParameters(),
		Type:           c.Type(),
		ProducerPaused: c.ProducerPaused(),
	}, nil
}

func (p *Peer) consumerTransportClosed(id domain.ConsumerID) {
	p.logger.Debug().Str("consumer_id", string(id)).Msg("consumer transport closed")
	p.RemoveConsumer(id)
}

// CloseProducer closes and forgets a producer. Unknown ids are ignored.
func (p *Peer) CloseProducer(id domain.ProducerID) {
	p.mu.Lock()
	e, ok := p.producers[id]
	if ok {
		delete(p.producers, id)
		if p.slots[e.mediaType] == id {
			delete(p.slots, e.mediaType)
		}
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	e.producer.Close()
	p.logger.Info().Str("producer_id", string(id)).Msg("producer closed")
}

// RemoveConsumer only deregisters; the consumer is already closed.
func (p *Peer) RemoveConsumer(id domain.ConsumerID) {
	p.mu.Lock()
	delete(p.consumers, id)
	p.mu.Unlock()
}

func (p *Peer) Consumer(id domain.ConsumerID) (core.Consumer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.consumers[id]
	return c, ok
}

func (p *Peer) Producers() []domain.ProducerID {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.ProducerID, 0, len(p.producers))
	for id := range p.producers {
		out = append(out, id)
	}
	return out
}

// Close closes every transport once; the engine closes their producers and
// consumers.
func (p *Peer) Close() {
	p.mu.Lock()
	if p.state == PeerClosed {
		p.mu.Unlock()
		return
	}
	p.state = PeerClosed
	transports := make([]core.Transport, 0, len(p.transports))
	for _, t := range p.transports {
		transports = append(transports, t)
	}
	p.transports = make(map[domain.TransportID]core.Transport)
	p.producers = make(map[domain.ProducerID]producerEntry)
	p.consumers = make(map[domain.ConsumerID]core.Consumer)
	p.slots = make(map[domain.MediaType]domain.ProducerID)
	p.mu.Unlock()

	for _, t := range transports {
		t.Close()
	}
	p.logger.Info().Int("transports", len(transports)).Msg("peer closed")
}
