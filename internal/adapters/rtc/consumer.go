package rtc

import (
	"errors"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrConsumerClosed = errors.New("consumer closed")

type Consumer struct {
	id        domain.ConsumerID
	producer  *Producer
	kind      domain.MediaKind
	rtp       domain.RtpParameters
	transport *Transport
	sink      sendTrack

	mu               sync.Mutex
	paused           bool
	closed           closeReason
	onTransportClose []func()
	onProducerClose  []func()
}

var _ core.Consumer = (*Consumer)(nil)

func (c *Consumer) ID() domain.ConsumerID { return c.id }
func (c *Consumer) ProducerID() domain.ProducerID { return c.producer.id }
func (c *Consumer) Kind() domain.MediaKind { return c.kind }
func (c *Consumer) RtpParameters() domain.RtpParameters { return c.rtp }
func (c *Consumer) Type() string { return consumerTypeSimple }
func (c *Consumer) ProducerPaused() bool { return c.producer.Paused() }

func (c *Consumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Consumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed != 0
}

func (c *Consumer) Pause() error {
	c.mu.Lock()
	if c.closed != 0 {
		c.mu.Unlock()
		return ErrConsumerClosed
	}
	c.paused = true
	c.mu.Unlock()
	c.transport.router.worker.relays.MuteSubscriber(c.producer.id, c.id)
	return nil
}

// Resume restarts forwarding and asks the producer for a keyframe so the
// receiver can decode immediately.
func (c *Consumer) Resume() error {
	c.mu.Lock()
	if c.closed != 0 {
		c.mu.Unlock()
		return ErrConsumerClosed
	}
	c.paused = false
	c.mu.Unlock()
	c.transport.router.worker.relays.UnmuteSubscriber(c.producer.id, c.id)
	c.producer.requestKeyFrame()
	return nil
}

func (c *Consumer) OnTransportClose(fn func()) { c.observe(closeByTransport, &c.onTransportClose, fn) }

func (c *Consumer) OnProducerClose(fn func()) { c.observe(closeByProducer, &c.onProducerClose, fn) }

// observe registers fn, or runs it right away when the consumer already
// closed for that reason.
func (c *Consumer) observe(reason closeReason, list *[]func(), fn func()) {
	c.mu.Lock()
	switch c.closed {
	case 0:
		*list = append(*list, fn)
		c.mu.Unlock()
	case reason:
		c.mu.Unlock()
		fn()
	default:
		c.mu.Unlock()
	}
}

func (c *Consumer) Close() { c.close(closeLocal) }

func (c *Consumer) close(reason closeReason) {
	c.mu.Lock()
	if c.closed != 0 {
		c.mu.Unlock()
		return
	}
	c.closed = reason
	var obs []func()
	switch reason {
	case closeByTransport:
		obs = c.onTransportClose
	case closeByProducer:
		obs = c.onProducerClose
	}
	c.onTransportClose, c.onProducerClose = nil, nil
	c.mu.Unlock()

	c.transport.router.worker.relays.MarkSubscriberDelete(c.producer.id, c.id)
	if err := c.sink.Stop(); err != nil {
		log.Debug().Err(err).Str("module", "rtc").Str("consumer_id", string(c.id)).Msg("sender stop")
	}
	c.producer.removeConsumer(c.id)
	c.transport.removeConsumer(c.id)

	for _, fn := range obs {
		fn()
	}
	log.Debug().Str("module", "rtc").Str("consumer_id", string(c.id)).Msg("consumer closed")
}
