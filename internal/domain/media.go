package domain

import "strings"

type (
	TransportID string
	ProducerID  string
	ConsumerID  string
)

// MediaKind is the RTP level classification of a stream.
type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

func (k MediaKind) Valid() bool { return k == KindAudio || k == KindVideo }

// MediaType is the logical source of a producer. A peer holds at most one
// active producer per media type.
type MediaType string

const (
	MediaAudio  MediaType = "audio"
	MediaVideo  MediaType = "video"
	MediaScreen MediaType = "screen"
)

type RtcpFeedback struct {
	Type      string `json:"type"`
	Parameter string `json:"parameter,omitempty"`
}

// RtpCodecCapability describes a codec a router or a device supports.
type RtpCodecCapability struct {
	Kind                 MediaKind         `json:"kind"`
	MimeType             string            `json:"mimeType"`
	PreferredPayloadType uint8             `json:"preferredPayloadType,omitempty"`
	ClockRate            uint32            `json:"clockRate"`
	Channels             uint16            `json:"channels,omitempty"`
	Parameters           map[string]string `json:"parameters,omitempty"`
	RtcpFeedback         []RtcpFeedback    `json:"rtcpFeedback,omitempty"`
}

// Matches reports whether two codecs describe the same media format.
// Mime types compare case-insensitively; channels only matter for audio.
func (c RtpCodecCapability) Matches(o RtpCodecCapability) bool {
	if !strings.EqualFold(c.MimeType, o.MimeType) || c.ClockRate != o.ClockRate {
		return false
	}
	if c.Kind == KindAudio && c.channels() != o.channels() {
		return false
	}
	if strings.EqualFold(c.MimeType, "video/H264") {
		return c.Parameters["packetization-mode"] == o.Parameters["packetization-mode"]
	}
	return true
}

func (c RtpCodecCapability) channels() uint16 {
	if c.Channels == 0 {
		return 1
	}
	return c.Channels
}

type RtpHeaderExtension struct {
	Kind MediaKind `json:"kind,omitempty"`
	URI  string    `json:"uri"`
	ID   int       `json:"preferredId,omitempty"`
}

type RtpCapabilities struct {
	Codecs           []RtpCodecCapability `json:"codecs"`
	HeaderExtensions []RtpHeaderExtension `json:"headerExtensions,omitempty"`
}

// RtpCodecParameters is a negotiated codec with its payload type.
type RtpCodecParameters struct {
	MimeType     string            `json:"mimeType"`
	PayloadType  uint8             `json:"payloadType"`
	ClockRate    uint32            `json:"clockRate"`
	Channels     uint16            `json:"channels,omitempty"`
	Parameters   map[string]string `json:"parameters,omitempty"`
	RtcpFeedback []RtcpFeedback    `json:"rtcpFeedback,omitempty"`
}

// Capability drops the payload type so the codec can be matched against
// capabilities of the given kind.
func (p RtpCodecParameters) Capability(kind MediaKind) RtpCodecCapability {
	return RtpCodecCapability{
		Kind:         kind,
		MimeType:     p.MimeType,
		ClockRate:    p.ClockRate,
		Channels:     p.Channels,
		Parameters:   p.Parameters,
		RtcpFeedback: p.RtcpFeedback,
	}
}

type RtpEncodingParameters struct {
	SSRC            uint32 `json:"ssrc,omitempty"`
	RID             string `json:"rid,omitempty"`
	MaxBitrate      uint32 `json:"maxBitrate,omitempty"`
	ScalabilityMode string `json:"scalabilityMode,omitempty"`
}

type RtpHeaderExtensionParameters struct {
	URI string `json:"uri"`
	ID  int    `json:"id"`
}

type RtpParameters struct {
	Mid              string                         `json:"mid,omitempty"`
	Codecs           []RtpCodecParameters           `json:"codecs"`
	HeaderExtensions []RtpHeaderExtensionParameters `json:"headerExtensions,omitempty"`
	Encodings        []RtpEncodingParameters        `json:"encodings,omitempty"`
}

type DtlsFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

type DtlsParameters struct {
	Role         string            `json:"role,omitempty"`
	Fingerprints []DtlsFingerprint `json:"fingerprints"`
}

type IceParameters struct {
	UsernameFragment string `json:"usernameFragment" validate:"required"`
	Password         string `json:"password" validate:"required"`
	IceLite          bool   `json:"iceLite,omitempty"`
}

type IceCandidate struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	IP         string `json:"ip"`
	Protocol   string `json:"protocol"`
	Port       uint16 `json:"port"`
	Type       string `json:"type"`
	TCPType    string `json:"tcpType,omitempty"`
}

// TransportParams is what the remote side needs to establish a transport.
type TransportParams struct {
	ID             TransportID    `json:"id"`
	IceParameters  IceParameters  `json:"iceParameters"`
	IceCandidates  []IceCandidate `json:"iceCandidates"`
	DtlsParameters DtlsParameters `json:"dtlsParameters"`
}

// ConsumerParams is the plain bundle a client needs to start a consumer.
type ConsumerParams struct {
	ID             ConsumerID    `json:"id"`
	ProducerID     ProducerID    `json:"producerId"`
	Kind           MediaKind     `json:"kind"`
	RtpParameters  RtpParameters `json:"rtpParameters"`
	Type           string        `json:"type"`
	ProducerPaused bool          `json:"producerPaused"`
}

// ProducerInfo is one entry of the newProducers push.
type ProducerInfo struct {
	ProducerID ProducerID `json:"producer_id"`
	PeerID     PeerID     `json:"producer_peer_id"`
}
