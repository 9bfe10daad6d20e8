package rtc

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
)

var (
	ErrNoCodecs         = errors.New("rtp parameters carry no codecs")
	ErrUnsupportedCodec = errors.New("codec not supported by router")
	ErrKindMismatch     = errors.New("codec kind does not match producer kind")
)

const firstDynamicPayloadType = 96

// DefaultCodecs is the router codec set used when configuration names none.
func DefaultCodecs() []domain.RtpCodecCapability {
	return []domain.RtpCodecCapability{
		{Kind: domain.KindAudio, MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		{Kind: domain.KindVideo, MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		{
			Kind:       domain.KindVideo,
			MimeType:   webrtc.MimeTypeH264,
			ClockRate:  90000,
			Parameters: map[string]string{"packetization-mode": "1", "level-asymmetry-allowed": "1", "profile-level-id": "42e01f"},
		},
	}
}

var videoFeedback = []domain.RtcpFeedback{
	{Type: "nack"},
	{Type: "nack", Parameter: "pli"},
	{Type: "ccm", Parameter: "fir"},
	{Type: "goog-remb"},
}

// routerCapabilities assigns payload types to the configured codecs and adds
// the feedback mechanisms the relay understands.
func routerCapabilities(codecs []domain.RtpCodecCapability) (domain.RtpCapabilities, error) {
	if len(codecs) == 0 {
		codecs = DefaultCodecs()
	}
	used := make(map[uint8]bool, len(codecs))
	for _, c := range codecs {
		if c.PreferredPayloadType != 0 {
			used[c.PreferredPayloadType] = true
		}
	}

	next := uint8(firstDynamicPayloadType)
	out := domain.RtpCapabilities{Codecs: make([]domain.RtpCodecCapability, 0, len(codecs))}
	for _, c := range codecs {
		if !c.Kind.Valid() {
			return domain.RtpCapabilities{}, fmt.Errorf("codec %s: invalid kind %q", c.MimeType, c.Kind)
		}
		if !strings.HasPrefix(strings.ToLower(c.MimeType), string(c.Kind)+"/") {
			return domain.RtpCapabilities{}, fmt.Errorf("codec %s: %w", c.MimeType, ErrKindMismatch)
		}
		if c.PreferredPayloadType == 0 {
			for used[next] {
				next++
			}
			if next > 127 {
				return domain.RtpCapabilities{}, errors.New("out of dynamic payload types")
			}
			c.PreferredPayloadType = next
			used[next] = true
		}
		if c.Kind == domain.KindVideo && len(c.RtcpFeedback) == 0 {
			c.RtcpFeedback = videoFeedback
		}
		out.Codecs = append(out.Codecs, c)
	}
	return out, nil
}

// findCodec returns the capability in caps matching codec, if any.
func findCodec(caps domain.RtpCapabilities, codec domain.RtpCodecCapability) (domain.RtpCodecCapability, bool) {
	for _, c := range caps.Codecs {
		if c.Kind == codec.Kind && c.Matches(codec) {
			return c, true
		}
	}
	return domain.RtpCodecCapability{}, false
}

func isRtx(mime string) bool {
	return strings.HasSuffix(strings.ToLower(mime), "/rtx")
}

// mediaCodecs drops retransmission codecs from a parameter set.
func mediaCodecs(params domain.RtpParameters) []domain.RtpCodecParameters {
	out := make([]domain.RtpCodecParameters, 0, len(params.Codecs))
	for _, c := range params.Codecs {
		if !isRtx(c.MimeType) {
			out = append(out, c)
		}
	}
	return out
}

// validateProducerParameters checks that every media codec a producer sends
// is one the router supports.
func validateProducerParameters(router domain.RtpCapabilities, kind domain.MediaKind, params domain.RtpParameters) error {
	codecs := mediaCodecs(params)
	if len(codecs) == 0 {
		return ErrNoCodecs
	}
	for _, c := range codecs {
		if !strings.HasPrefix(strings.ToLower(c.MimeType), string(kind)+"/") {
			return fmt.Errorf("%s: %w", c.MimeType, ErrKindMismatch)
		}
		if _, ok := findCodec(router, c.Capability(kind)); !ok {
			return fmt.Errorf("%s: %w", c.MimeType, ErrUnsupportedCodec)
		}
	}
	return nil
}

// consumableCodec picks the first producer codec the consumer can receive
// and returns it with the payload type the consumer declared.
func consumableCodec(kind domain.MediaKind, producer domain.RtpParameters, caps domain.RtpCapabilities) (domain.RtpCodecParameters, bool) {
	for _, c := range mediaCodecs(producer) {
		remote, ok := findCodec(caps, c.Capability(kind))
		if !ok {
			continue
		}
		out := c
		if remote.PreferredPayloadType != 0 {
			out.PayloadType = remote.PreferredPayloadType
		}
		if len(remote.RtcpFeedback) > 0 {
			out.RtcpFeedback = remote.RtcpFeedback
		}
		return out, true
	}
	return domain.RtpCodecParameters{}, false
}

func codecType(kind domain.MediaKind) webrtc.RTPCodecType {
	return webrtc.NewRTPCodecType(string(kind))
}

func fmtpLine(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return strings.Join(parts, ";")
}

func toPionCapability(c domain.RtpCodecCapability) webrtc.RTPCodecCapability {
	fb := make([]webrtc.RTCPFeedback, 0, len(c.RtcpFeedback))
	for _, f := range c.RtcpFeedback {
		fb = append(fb, webrtc.RTCPFeedback{Type: f.Type, Parameter: f.Parameter})
	}
	return webrtc.RTPCodecCapability{
		MimeType:     c.MimeType,
		ClockRate:    c.ClockRate,
		Channels:     c.Channels,
		SDPFmtpLine:  fmtpLine(c.Parameters),
		RTCPFeedback: fb,
	}
}

func toPionDTLS(p domain.DtlsParameters) (webrtc.DTLSParameters, error) {
	out := webrtc.DTLSParameters{Role: webrtc.DTLSRoleAuto}
	switch strings.ToLower(p.Role) {
	case "", "auto":
	case "client":
		out.Role = webrtc.DTLSRoleClient
	case "server":
		out.Role = webrtc.DTLSRoleServer
	default:
		return out, fmt.Errorf("unknown dtls role %q", p.Role)
	}
	if len(p.Fingerprints) == 0 {
		return out, errors.New("dtls parameters carry no fingerprints")
	}
	for _, f := range p.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, webrtc.DTLSFingerprint{Algorithm: f.Algorithm, Value: f.Value})
	}
	return out, nil
}

func fromPionDTLS(p webrtc.DTLSParameters) domain.DtlsParameters {
	out := domain.DtlsParameters{Role: p.Role.String()}
	for _, f := range p.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, domain.DtlsFingerprint{Algorithm: f.Algorithm, Value: f.Value})
	}
	return out
}

func fromPionICE(p webrtc.ICEParameters) domain.IceParameters {
	return domain.IceParameters{UsernameFragment: p.UsernameFragment, Password: p.Password, IceLite: p.ICELite}
}

func fromPionCandidates(cands []webrtc.ICECandidate) []domain.IceCandidate {
	out := make([]domain.IceCandidate, 0, len(cands))
	for _, c := range cands {
		out = append(out, domain.IceCandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			IP:         c.Address,
			Protocol:   c.Protocol.String(),
			Port:       c.Port,
			Type:       c.Typ.String(),
			TCPType:    c.TCPType,
		})
	}
	return out
}
