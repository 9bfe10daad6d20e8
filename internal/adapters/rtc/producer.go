package rtc

import (
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

type closeReason int

const (
	closeLocal closeReason = iota + 1
	closeByTransport
	closeByProducer
)

type Producer struct {
	id        domain.ProducerID
	kind      domain.MediaKind
	rtp       domain.RtpParameters
	transport *Transport
	src       receiveTrack

	mu               sync.Mutex
	consumers        map[domain.ConsumerID]*Consumer
	closed           closeReason
	onTransportClose []func()
}

var _ core.Producer = (*Producer)(nil)

func (p *Producer) ID() domain.ProducerID { return p.id }
func (p *Producer) Kind() domain.MediaKind { return p.kind }
func (p *Producer) RtpParameters() domain.RtpParameters { return p.rtp }

// Paused is always false; producers are not paused server side.
func (p *Producer) Paused() bool { return false }

func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed != 0
}

// OnTransportClose registers fn to run when the owning transport closes the
// producer. If that already happened fn runs immediately.
func (p *Producer) OnTransportClose(fn func()) {
	p.mu.Lock()
	switch p.closed {
	case 0:
		p.onTransportClose = append(p.onTransportClose, fn)
		p.mu.Unlock()
	case closeByTransport:
		p.mu.Unlock()
		fn()
	default:
		p.mu.Unlock()
	}
}

func (p *Producer) Close() { p.close(closeLocal) }

func (p *Producer) close(reason closeReason) {
	p.mu.Lock()
	if p.closed != 0 {
		p.mu.Unlock()
		return
	}
	p.closed = reason
	consumers := make([]*Consumer, 0, len(p.consumers))
	for _, c := range p.consumers {
		consumers = append(consumers, c)
	}
	p.consumers = nil
	var obs []func()
	if reason == closeByTransport {
		obs = p.onTransportClose
	}
	p.onTransportClose = nil
	p.mu.Unlock()

	p.transport.router.worker.relays.StopRelay(p.id)
	if err := p.src.Stop(); err != nil {
		log.Debug().Err(err).Str("module", "rtc").Str("producer_id", string(p.id)).Msg("receiver stop")
	}
	p.transport.router.removeProducer(p.id)
	p.transport.removeProducer(p.id)

	for _, c := range consumers {
		c.close(closeByProducer)
	}
	for _, fn := range obs {
		fn()
	}
	log.Debug().Str("module", "rtc").Str("producer_id", string(p.id)).Msg("producer closed")
}

func (p *Producer) addConsumer(c *Consumer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed != 0 {
		return false
	}
	p.consumers[c.id] = c
	return true
}

func (p *Producer) removeConsumer(id domain.ConsumerID) {
	p.mu.Lock()
	delete(p.consumers, id)
	p.mu.Unlock()
}

func (p *Producer) requestKeyFrame() {
	if p.kind != domain.KindVideo {
		return
	}
	if err := p.src.RequestKeyFrame(); err != nil {
		log.Debug().Err(err).Str("module", "rtc").Str("producer_id", string(p.id)).Msg("keyframe request")
	}
}
