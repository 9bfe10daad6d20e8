package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type RoomState int

const (
	RoomUninitialized RoomState = iota
	RoomReady
	RoomClosed
)

func (s RoomState) String() string {
	switch s {
	case RoomUninitialized:
		return "uninitialized"
	case RoomReady:
		return "ready"
	case RoomClosed:
		return "closed"
	}
	return fmt.Sprintf("RoomState(%d)", int(s))
}

// RoomOptions carries the media settings every room of a server shares.
type RoomOptions struct {
	Codecs                          []domain.RtpCodecCapability
	MaxIncomingBitrate              uint32
	InitialAvailableOutgoingBitrate uint32
}

// Room owns the peers of one session and the router they share.
type Room struct {
	id       domain.RoomID
	worker   core.Worker
	notifier core.Notifier
	opts     RoomOptions
	logger   zerolog.Logger

	created time.Time
	ready   chan struct{}

	mu        sync.RWMutex
	state     RoomState
	router    core.Router
	routerErr error
	peers     map[domain.PeerID]*Peer
}

// NewRoom creates a room on worker and starts building its router in the
// background.
func NewRoom(id domain.RoomID, worker core.Worker, notifier core.Notifier, opts RoomOptions) *Room {
	r := &Room{
		id:       id,
		worker:   worker,
		notifier: notifier,
		opts:     opts,
		logger:   log.With().Str("module", "app.room").Str("room_id", string(id)).Logger(),
		created:  time.Now(),
		ready:    make(chan struct{}),
		peers:    make(map[domain.PeerID]*Peer),
	}
	go r.initRouter()
	return r
}

func (r *Room) initRouter() {
	defer close(r.ready)

	router, err := r.worker.CreateRouter(context.Background(), r.opts.Codecs)
	if err == nil && router == nil {
		err = errors.New("worker returned no router")
	}

	r.mu.Lock()
	if r.state == RoomClosed {
		r.mu.Unlock()
		if router != nil {
			router.Close()
		}
		return
	}
	if err != nil {
		r.routerErr = err
		r.mu.Unlock()
		r.logger.Error().Err(err).Msg("router init failed")
		return
	}
	r.router = router
	r.state = RoomReady
	r.mu.Unlock()

	r.logger.Info().Str("worker_id", r.worker.ID()).Str("router_id", router.ID()).Msg("router ready")
}

func (r *Room) ID() domain.RoomID { return r.id }

func (r *Room) CreatedAt() time.Time { return r.created }

func (r *Room) State() RoomState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// WaitReady blocks until the router exists or its creation failed. A closed
// room reports ErrRoomClosed.
func (r *Room) WaitReady(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrRouterNotReady, ctx.Err())
	case <-r.ready:
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state == RoomClosed {
		return ErrRoomClosed
	}
	if r.routerErr != nil {
		return fmt.Errorf("%w: %w", ErrRouterNotReady, r.routerErr)
	}
	if r.router == nil {
		return ErrRouterNotReady
	}
	return nil
}

// RouterRtpCapabilities is nil until the router is ready.
func (r *Room) RouterRtpCapabilities() *domain.RtpCapabilities {
	r.mu.RLock()
	router := r.router
	r.mu.RUnlock()
	if router == nil {
		return nil
	}
	caps := router.RtpCapabilities()
	return &caps
}

func (r *Room) AddPeer(p *Peer) error {
	r.mu.Lock()
	if r.state == RoomClosed {
		r.mu.Unlock()
		return ErrRoomClosed
	}
	r.peers[p.ID()] = p
	n := len(r.peers)
	r.mu.Unlock()
	metrics.PeerJoined()

	r.logger.Info().Str("peer_id", string(p.ID())).Str("name", p.Name()).Int("peers", n).Msg("peer joined")
	return nil
}

// RemovePeer closes and forgets the peer. Unknown ids are ignored.
func (r *Room) RemovePeer(id domain.PeerID) bool {
	r.mu.Lock()
	p, ok := r.peers[id]
	delete(r.peers, id)
	n := len(r.peers)
	r.mu.Unlock()
	if !ok {
		return false
	}
	metrics.PeerLeft()

	p.Close()
	r.logger.Info().Str("peer_id", string(id)).Int("peers", n).Msg("peer left")
	return true
}

func (r *Room) Peer(id domain.PeerID) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

func (r *Room) PeerName(id domain.PeerID) (string, bool) {
	p, ok := r.Peer(id)
	if !ok {
		return "", false
	}
	return p.Name(), true
}

func (r *Room) PeerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

func (r *Room) Snapshot() domain.RoomSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return domain.RoomSnapshot{
		ID:    r.id,
		Peers: lo.MapToSlice(r.peers, func(_ domain.PeerID, p *Peer) domain.PeerInfo { return p.Info() }),
	}
}

func (r *Room) Info() domain.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return domain.RoomInfo{ID: r.id, PeerCount: len(r.peers), Ready: r.state == RoomReady}
}

// closeIfEmpty moves an empty room to Closed and hands back the router for
// the caller to release outside any lock.
func (r *Room) closeIfEmpty() (core.Router, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.peers) > 0 || r.state == RoomClosed {
		return nil, false
	}
	r.state = RoomClosed
	router := r.router
	r.router = nil
	return router, true
}

// forceClose closes the room regardless of its peers. Used at shutdown.
func (r *Room) forceClose() {
	r.mu.Lock()
	peers := lo.Values(r.peers)
	r.peers = make(map[domain.PeerID]*Peer)
	r.state = RoomClosed
	router := r.router
	r.router = nil
	r.mu.Unlock()

	for _, p := range peers {
		metrics.PeerLeft()
		p.Close()
	}
	if router != nil {
		router.Close()
	}
}

func (r *Room) routerAndPeer(id domain.PeerID) (core.Router, *Peer) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.router, r.peers[id]
}

func (r *Room) CreateWebRtcTransport(ctx context.Context, peerID domain.PeerID) (domain.TransportParams, error) {
	router, p := r.routerAndPeer(peerID)
	if router == nil {
		return domain.TransportParams{}, ErrRouterNotReady
	}
	if p == nil {
		return domain.TransportParams{}, ErrPeerNotFound
	}

	t, err := router.CreateWebRtcTransport(ctx, core.TransportOptions{
		EnableUDP:                       true,
		EnableTCP:                       true,
		PreferUDP:                       true,
		InitialAvailableOutgoingBitrate: r.opts.InitialAvailableOutgoingBitrate,
	})
	if err != nil {
		return domain.TransportParams{}, err
	}

	if r.opts.MaxIncomingBitrate > 0 {
		if err := t.SetMaxIncomingBitrate(r.opts.MaxIncomingBitrate); err != nil {
			r.logger.Debug().Err(err).Str("transport_id", string(t.ID())).Msg("max incoming bitrate not applied")
		}
	}

	tid := t.ID()
	t.OnDtlsClosed(func() {
		r.logger.Info().Str("peer_id", string(peerID)).Str("transport_id", string(tid)).Msg("transport DTLS closed")
		t.Close()
	})

	if err := p.AddTransport(t); err != nil {
		return domain.TransportParams{}, err
	}
	return t.Params(), nil
}

func (r *Room) ConnectPeerTransport(
	ctx context.Context,
	peerID domain.PeerID,
	transportID domain.TransportID,
	dtls domain.DtlsParameters,
	ice *domain.IceParameters,
) error {
	p, ok := r.Peer(peerID)
	if !ok {
		r.logger.Debug().Str("peer_id", string(peerID)).Msg("connect for unknown peer ignored")
		return nil
	}
	return p.ConnectTransport(ctx, transportID, dtls, ice)
}

// Produce registers a producer for the peer and then announces it to every
// other peer.
func (r *Room) Produce(
	ctx context.Context,
	peerID domain.PeerID,
	transportID domain.TransportID,
	kind domain.MediaKind,
	mediaType domain.MediaType,
	rtp domain.RtpParameters,
) (domain.ProducerID, core.PublishResult, error) {
	p, ok := r.Peer(peerID)
	if !ok {
		return "", core.PublishResult{}, ErrPeerNotFound
	}
	prod, err := p.CreateProducer(ctx, transportID, kind, mediaType, rtp)
	if err != nil {
		return "", core.PublishResult{}, err
	}

	res := r.Broadcast(peerID, core.EventNewProducers, []domain.ProducerInfo{{ProducerID: prod.ID(), PeerID: peerID}})
	return prod.ID(), res, nil
}

// Consume returns nil params when the router is not ready or the caller
// cannot receive the producer; nothing is created in that case.
func (r *Room) Consume(
	ctx context.Context,
	peerID domain.PeerID,
	transportID domain.TransportID,
	producerID domain.ProducerID,
	caps domain.RtpCapabilities,
) (*domain.ConsumerParams, error) {
	router, p := r.routerAndPeer(peerID)
	if router == nil {
		r.logger.Debug().Str("peer_id", string(peerID)).Msg("consume before router ready")
		return nil, nil
	}
	if p == nil {
		return nil, ErrPeerNotFound
	}
	if !router.CanConsume(producerID, caps) {
		r.logger.Debug().
			Str("peer_id", string(peerID)).
			Str("producer_id", string(producerID)).
			Msg("can not consume")
		return nil, nil
	}

	c, params, err := p.CreateConsumer(ctx, transportID, producerID, caps)
	if err != nil {
		return nil, err
	}
	cid := c.ID()
	c.OnProducerClose(func() { r.consumerProducerClosed(peerID, cid) })
	return &params, nil
}

func (r *Room) consumerProducerClosed(peerID domain.PeerID, id domain.ConsumerID) {
	r.logger.Debug().Str("peer_id", string(peerID)).Str("consumer_id", string(id)).Msg("consumer closed by producer close")
	if p, ok := r.Peer(peerID); ok {
		p.RemoveConsumer(id)
	}
	if err := r.Send(peerID, core.EventConsumerClosed, core.ConsumerClosedPayload{ConsumerID: id}); err != nil {
		r.logger.Debug().Err(err).Str("peer_id", string(peerID)).Msg("consumerClosed not delivered")
	}
}

// CloseProducer is silent towards other peers: their consumers observe the
// producer closing and each owner receives consumerClosed.
func (r *Room) CloseProducer(peerID domain.PeerID, producerID domain.ProducerID) error {
	p, ok := r.Peer(peerID)
	if !ok {
		return ErrPeerNotFound
	}
	p.CloseProducer(producerID)
	return nil
}

func (r *Room) PauseConsumer(peerID domain.PeerID, id domain.ConsumerID) error {
	c, err := r.consumer(peerID, id)
	if err != nil {
		return err
	}
	return c.Pause()
}

func (r *Room) ResumeConsumer(peerID domain.PeerID, id domain.ConsumerID) error {
	c, err := r.consumer(peerID, id)
	if err != nil {
		return err
	}
	return c.Resume()
}

func (r *Room) consumer(peerID domain.PeerID, id domain.ConsumerID) (core.Consumer, error) {
	p, ok := r.Peer(peerID)
	if !ok {
		return nil, ErrPeerNotFound
	}
	c, ok := p.Consumer(id)
	if !ok {
		return nil, ErrConsumerNotFound
	}
	return c, nil
}

// ProducerList snapshots the producers of every peer, the caller's included.
func (r *Room) ProducerList() []domain.ProducerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ProducerInfo, 0, len(r.peers))
	for id, p := range r.peers {
		for _, pid := range p.Producers() {
			out = append(out, domain.ProducerInfo{ProducerID: pid, PeerID: id})
		}
	}
	return out
}

// Broadcast pushes event to every peer except exclude.
func (r *Room) Broadcast(exclude domain.PeerID, event string, payload any) core.PublishResult {
	r.mu.RLock()
	targets := lo.Without(lo.Keys(r.peers), exclude)
	r.mu.RUnlock()

	res := core.PublishResult{}
	for _, id := range targets {
		if err := r.notifier.Notify(id, event, payload); err != nil {
			res.Dropped = append(res.Dropped, id)
			continue
		}
		res.SendTo++
	}
	r.logger.Debug().
		Str("event", event).
		Int("send_to", res.SendTo).
		Int("dropped", len(res.Dropped)).
		Msg("broadcast")
	return res
}

func (r *Room) Send(target domain.PeerID, event string, payload any) error {
	return r.notifier.Notify(target, event, payload)
}
