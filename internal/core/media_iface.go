package core

import (
	"context"

	"github.com/dkeye/Huddle/internal/domain"
)

// Worker is an independent media engine execution unit. Rooms are spread
// over workers; every router lives on exactly one worker.
type Worker interface {
	ID() string
	CreateRouter(ctx context.Context, codecs []domain.RtpCodecCapability) (Router, error)
	// Died is closed (after delivering the cause, if any) when the worker
	// can no longer serve its routers.
	Died() <-chan error
	Close()
}

// Router is the per-room capability negotiation domain.
type Router interface {
	ID() string
	RtpCapabilities() domain.RtpCapabilities
	// CanConsume reports whether a consumer with the given capabilities may
	// be created for the producer.
	CanConsume(producerID domain.ProducerID, caps domain.RtpCapabilities) bool
	CreateWebRtcTransport(ctx context.Context, opts TransportOptions) (Transport, error)
	Close()
}

type TransportOptions struct {
	EnableUDP                       bool
	EnableTCP                       bool
	PreferUDP                       bool
	InitialAvailableOutgoingBitrate uint32
}

type ProduceOptions struct {
	Kind          domain.MediaKind
	RtpParameters domain.RtpParameters
}

type ConsumeOptions struct {
	ProducerID      domain.ProducerID
	RtpCapabilities domain.RtpCapabilities
	Paused          bool
}

// Transport is a negotiated media carrying channel between one peer and the
// server. Closing it closes every producer and consumer created on it; their
// OnTransportClose observers fire.
type Transport interface {
	ID() domain.TransportID
	Params() domain.TransportParams
	// Connect applies the remote DTLS parameters. Remote ICE parameters are
	// required by engines that run full ICE and ignored otherwise.
	Connect(ctx context.Context, dtls domain.DtlsParameters, ice *domain.IceParameters) error
	SetMaxIncomingBitrate(bps uint32) error
	Produce(ctx context.Context, opts ProduceOptions) (Producer, error)
	Consume(ctx context.Context, opts ConsumeOptions) (Consumer, error)
	// OnDtlsClosed registers an observer for the DTLS state reaching closed.
	OnDtlsClosed(fn func())
	Close()
	Closed() bool
}

// Producer is a peer's outbound stream registered with a router. Closing a
// producer closes its consumers; their OnProducerClose observers fire.
type Producer interface {
	ID() domain.ProducerID
	Kind() domain.MediaKind
	RtpParameters() domain.RtpParameters
	Paused() bool
	OnTransportClose(fn func())
	Close()
	Closed() bool
}

// Consumer is a subscription of one peer to another peer's producer.
type Consumer interface {
	ID() domain.ConsumerID
	ProducerID() domain.ProducerID
	Kind() domain.MediaKind
	RtpParameters() domain.RtpParameters
	Type() string
	ProducerPaused() bool
	Pause() error
	Resume() error
	OnTransportClose(fn func())
	OnProducerClose(fn func())
	Close()
	Closed() bool
}
