package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleRouterCapabilities(ctx context.Context, s *session, _ json.RawMessage) (any, error) {
	return ctl.Orch.RouterCapabilities(ctx, s.peerID)
}

func (ctl *SignalWSController) handleCreateTransport(ctx context.Context, s *session, data json.RawMessage) (any, error) {
	p, err := decode[createTransportPayload](data)
	if err != nil {
		return nil, err
	}
	if p.ForceTCP {
		log.Debug().Str("module", "signal").Str("peer_id", string(s.peerID)).Msg("forceTcp requested, serving udp")
	}
	return ctl.Orch.CreateTransport(ctx, s.peerID)
}

func (ctl *SignalWSController) handleConnectTransport(ctx context.Context, s *session, data json.RawMessage) (any, error) {
	p, err := decode[connectTransportPayload](data)
	if err != nil {
		return nil, err
	}
	err = ctl.Orch.ConnectTransport(ctx, s.peerID, domain.TransportID(p.TransportID), p.DtlsParameters, p.IceParameters)
	if err != nil {
		return nil, err
	}
	return "success", nil
}

func (ctl *SignalWSController) handleProduce(ctx context.Context, s *session, data json.RawMessage) (any, error) {
	p, err := decode[producePayload](data)
	if err != nil {
		return nil, err
	}
	id, err := ctl.Orch.Produce(
		ctx,
		s.peerID,
		domain.TransportID(p.TransportID),
		domain.MediaKind(p.Kind),
		domain.MediaType(p.MediaType),
		p.RtpParameters,
	)
	if err != nil {
		return nil, err
	}
	return struct {
		ProducerID domain.ProducerID `json:"producer_id"`
	}{id}, nil
}

// handleConsume answers null when the caller cannot receive the producer.
func (ctl *SignalWSController) handleConsume(ctx context.Context, s *session, data json.RawMessage) (any, error) {
	p, err := decode[consumePayload](data)
	if err != nil {
		return nil, err
	}
	return ctl.Orch.Consume(
		ctx,
		s.peerID,
		domain.TransportID(p.TransportID),
		domain.ProducerID(p.ProducerID),
		p.RtpCapabilities,
	)
}

func (ctl *SignalWSController) handleProducerClosed(_ context.Context, s *session, data json.RawMessage) (any, error) {
	p, err := decode[producerClosedPayload](data)
	if err != nil {
		return nil, err
	}
	return nil, ctl.Orch.CloseProducer(s.peerID, domain.ProducerID(p.ProducerID))
}

// handleGetProducers answers with a newProducers push rather than a response.
func (ctl *SignalWSController) handleGetProducers(_ context.Context, s *session, _ json.RawMessage) (any, error) {
	list, err := ctl.Orch.ProducersFor(s.peerID)
	if err != nil {
		return nil, err
	}
	return nil, ctl.Orch.Registry.Notify(s.peerID, core.EventNewProducers, list)
}

func (ctl *SignalWSController) handlePauseConsumer(_ context.Context, s *session, data json.RawMessage) (any, error) {
	p, err := decode[consumerPayload](data)
	if err != nil {
		return nil, err
	}
	if err := ctl.Orch.PauseConsumer(s.peerID, domain.ConsumerID(p.ConsumerID)); err != nil {
		return nil, err
	}
	return "success", nil
}

func (ctl *SignalWSController) handleResumeConsumer(_ context.Context, s *session, data json.RawMessage) (any, error) {
	p, err := decode[consumerPayload](data)
	if err != nil {
		return nil, err
	}
	if err := ctl.Orch.ResumeConsumer(s.peerID, domain.ConsumerID(p.ConsumerID)); err != nil {
		return nil, err
	}
	return "success", nil
}
