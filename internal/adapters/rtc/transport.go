package rtc

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrTransportClosed  = errors.New("transport closed")
	ErrProducerNotFound = errors.New("producer not found")
	ErrProducerClosed   = errors.New("producer closed")
	ErrCannotConsume    = errors.New("no common codec with consumer capabilities")
	ErrInvalidKind      = errors.New("invalid media kind")
)

const consumerTypeSimple = "simple"

type Transport struct {
	id     domain.TransportID
	router *Router
	link   link

	mu        sync.Mutex
	producers map[domain.ProducerID]*Producer
	consumers map[domain.ConsumerID]*Consumer
	closed    bool
}

var _ core.Transport = (*Transport)(nil)

func (t *Transport) ID() domain.TransportID { return t.id }

func (t *Transport) Params() domain.TransportParams {
	ice, cands, dtls := t.link.LocalParams()
	return domain.TransportParams{
		ID:             t.id,
		IceParameters:  ice,
		IceCandidates:  cands,
		DtlsParameters: dtls,
	}
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) Connect(ctx context.Context, dtls domain.DtlsParameters, ice *domain.IceParameters) error {
	if t.Closed() {
		return ErrTransportClosed
	}
	if err := t.link.Connect(ctx, dtls, ice); err != nil {
		return fmt.Errorf("connect transport %s: %w", t.id, err)
	}
	return nil
}

func (t *Transport) SetMaxIncomingBitrate(bps uint32) error {
	return t.link.SetMaxIncomingBitrate(bps)
}

func (t *Transport) OnDtlsClosed(fn func()) {
	t.link.OnDtlsClosed(fn)
}

func (t *Transport) Produce(ctx context.Context, opts core.ProduceOptions) (core.Producer, error) {
	if !opts.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, opts.Kind)
	}
	if t.Closed() {
		return nil, ErrTransportClosed
	}
	if err := validateProducerParameters(t.router.caps, opts.Kind, opts.RtpParameters); err != nil {
		return nil, err
	}

	src, err := t.link.Receive(ctx, opts.Kind, opts.RtpParameters)
	if err != nil {
		return nil, fmt.Errorf("produce: %w", err)
	}
	p := &Producer{
		id:        domain.ProducerID(uuid.NewString()),
		kind:      opts.Kind,
		rtp:       opts.RtpParameters,
		transport: t,
		src:       src,
		consumers: make(map[domain.ConsumerID]*Consumer),
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = src.Stop()
		return nil, ErrTransportClosed
	}
	t.producers[p.id] = p
	t.mu.Unlock()

	t.router.addProducer(p)
	t.router.worker.relays.StartRelay(context.Background(), p.id, src)

	log.Debug().
		Str("module", "rtc").
		Str("transport_id", string(t.id)).
		Str("producer_id", string(p.id)).
		Str("kind", string(p.kind)).
		Msg("producer created")
	return p, nil
}

func (t *Transport) Consume(ctx context.Context, opts core.ConsumeOptions) (core.Consumer, error) {
	if t.Closed() {
		return nil, ErrTransportClosed
	}
	p, ok := t.router.producer(opts.ProducerID)
	if !ok {
		return nil, ErrProducerNotFound
	}
	codec, ok := consumableCodec(p.kind, p.rtp, opts.RtpCapabilities)
	if !ok {
		return nil, ErrCannotConsume
	}

	id := domain.ConsumerID(uuid.NewString())
	ssrc := rand.Uint32()
	sink, err := t.link.Send(ctx, p.kind, codec, ssrc, string(id))
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}

	c := &Consumer{
		id:       id,
		producer: p,
		kind:     p.kind,
		rtp: domain.RtpParameters{
			Mid:              p.rtp.Mid,
			Codecs:           []domain.RtpCodecParameters{codec},
			HeaderExtensions: p.rtp.HeaderExtensions,
			Encodings:        []domain.RtpEncodingParameters{{SSRC: ssrc}},
		},
		transport: t,
		sink:      sink,
		paused:    opts.Paused,
	}
	sink.OnKeyFrameRequest(p.requestKeyFrame)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = sink.Stop()
		return nil, ErrTransportClosed
	}
	t.consumers[c.id] = c
	t.mu.Unlock()

	if !p.addConsumer(c) {
		t.removeConsumer(c.id)
		_ = sink.Stop()
		return nil, ErrProducerClosed
	}
	relays := t.router.worker.relays
	if relays.AddSubscriber(p.id, c.id, sink) && opts.Paused {
		relays.MuteSubscriber(p.id, c.id)
	}

	log.Debug().
		Str("module", "rtc").
		Str("transport_id", string(t.id)).
		Str("producer_id", string(p.id)).
		Str("consumer_id", string(c.id)).
		Msg("consumer created")
	return c, nil
}

func (t *Transport) removeProducer(id domain.ProducerID) {
	t.mu.Lock()
	delete(t.producers, id)
	t.mu.Unlock()
}

func (t *Transport) removeConsumer(id domain.ConsumerID) {
	t.mu.Lock()
	delete(t.consumers, id)
	t.mu.Unlock()
}

// Close closes every producer and consumer on the transport; their
// transport-close observers fire.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	producers := make([]*Producer, 0, len(t.producers))
	for _, p := range t.producers {
		producers = append(producers, p)
	}
	consumers := make([]*Consumer, 0, len(t.consumers))
	for _, c := range t.consumers {
		consumers = append(consumers, c)
	}
	t.producers = make(map[domain.ProducerID]*Producer)
	t.consumers = make(map[domain.ConsumerID]*Consumer)
	t.mu.Unlock()

	for _, p := range producers {
		p.close(closeByTransport)
	}
	for _, c := range consumers {
		c.close(closeByTransport)
	}
	if err := t.link.Close(); err != nil {
		log.Debug().Err(err).Str("module", "rtc").Str("transport_id", string(t.id)).Msg("link close")
	}
	t.router.removeTransport(t.id)

	log.Debug().Str("module", "rtc").Str("transport_id", string(t.id)).Msg("transport closed")
}
