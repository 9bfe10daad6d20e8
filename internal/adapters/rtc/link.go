package rtc

import (
	"context"
	"errors"

	"github.com/dkeye/Huddle/internal/app/sfu"
	"github.com/dkeye/Huddle/internal/domain"
)

var (
	ErrIceParametersRequired = errors.New("remote ice parameters required")
	ErrAlreadyConnected      = errors.New("transport already connected")
	ErrLinkClosed            = errors.New("transport link closed")
)

// link is the network side of one transport. The pion link speaks ICE, DTLS
// and SRTP; the loopback link keeps everything in memory.
type link interface {
	LocalParams() (domain.IceParameters, []domain.IceCandidate, domain.DtlsParameters)
	Connect(ctx context.Context, dtls domain.DtlsParameters, ice *domain.IceParameters) error
	Receive(ctx context.Context, kind domain.MediaKind, params domain.RtpParameters) (receiveTrack, error)
	Send(ctx context.Context, kind domain.MediaKind, codec domain.RtpCodecParameters, ssrc uint32, trackID string) (sendTrack, error)
	SetMaxIncomingBitrate(bps uint32) error
	OnDtlsClosed(fn func())
	Close() error
}

// receiveTrack is the inbound half of a producer.
type receiveTrack interface {
	sfu.PacketSource
	RequestKeyFrame() error
	Stop() error
}

// sendTrack is the outbound half of a consumer.
type sendTrack interface {
	sfu.PacketSink
	OnKeyFrameRequest(fn func())
	Stop() error
}

type linkFactory func(ctx context.Context, r *Router, opts transportLinkOptions) (link, error)

type transportLinkOptions struct {
	EnableUDP bool
	EnableTCP bool
}
