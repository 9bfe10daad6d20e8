package orch

import (
	"context"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// RouterCapabilities waits for the room's router for at most RouterWait.
func (o *Orchestrator) RouterCapabilities(ctx context.Context, peerID domain.PeerID) (domain.RtpCapabilities, error) {
	room, err := o.room(peerID)
	if err != nil {
		return domain.RtpCapabilities{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, o.routerWait())
	defer cancel()
	if err := room.WaitReady(ctx); err != nil {
		return domain.RtpCapabilities{}, err
	}
	caps := room.RouterRtpCapabilities()
	if caps == nil {
		return domain.RtpCapabilities{}, app.ErrRoomClosed
	}
	return *caps, nil
}

func (o *Orchestrator) CreateTransport(ctx context.Context, peerID domain.PeerID) (domain.TransportParams, error) {
	room, err := o.room(peerID)
	if err != nil {
		return domain.TransportParams{}, err
	}
	return room.CreateWebRtcTransport(ctx, peerID)
}

func (o *Orchestrator) ConnectTransport(
	ctx context.Context,
	peerID domain.PeerID,
	transportID domain.TransportID,
	dtls domain.DtlsParameters,
	ice *domain.IceParameters,
) error {
	room, err := o.room(peerID)
	if err != nil {
		return err
	}
	return room.ConnectPeerTransport(ctx, peerID, transportID, dtls, ice)
}

func (o *Orchestrator) Produce(
	ctx context.Context,
	peerID domain.PeerID,
	transportID domain.TransportID,
	kind domain.MediaKind,
	mediaType domain.MediaType,
	rtp domain.RtpParameters,
) (domain.ProducerID, error) {
	room, err := o.room(peerID)
	if err != nil {
		return "", err
	}
	id, res, err := room.Produce(ctx, peerID, transportID, kind, mediaType, rtp)
	if err != nil {
		return "", err
	}
	o.applyPolicy(room.ID(), res)
	return id, nil
}

// Consume returns nil params when the peer cannot receive the producer.
func (o *Orchestrator) Consume(
	ctx context.Context,
	peerID domain.PeerID,
	transportID domain.TransportID,
	producerID domain.ProducerID,
	caps domain.RtpCapabilities,
) (*domain.ConsumerParams, error) {
	room, err := o.room(peerID)
	if err != nil {
		return nil, err
	}
	return room.Consume(ctx, peerID, transportID, producerID, caps)
}

func (o *Orchestrator) CloseProducer(peerID domain.PeerID, producerID domain.ProducerID) error {
	room, err := o.room(peerID)
	if err != nil {
		return err
	}
	if err := room.CloseProducer(peerID, producerID); err != nil {
		return err
	}
	log.Debug().Str("module", "orch").Str("peer_id", string(peerID)).Str("producer_id", string(producerID)).Msg("producer closed by peer")
	return nil
}

// ProducersFor snapshots every producer of the caller's room.
func (o *Orchestrator) ProducersFor(peerID domain.PeerID) ([]domain.ProducerInfo, error) {
	room, err := o.room(peerID)
	if err != nil {
		return nil, err
	}
	return room.ProducerList(), nil
}

func (o *Orchestrator) PauseConsumer(peerID domain.PeerID, id domain.ConsumerID) error {
	room, err := o.room(peerID)
	if err != nil {
		return err
	}
	return room.PauseConsumer(peerID, id)
}

func (o *Orchestrator) ResumeConsumer(peerID domain.PeerID, id domain.ConsumerID) error {
	room, err := o.room(peerID)
	if err != nil {
		return err
	}
	return room.ResumeConsumer(peerID, id)
}
