package rtc

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
)

const loopbackQueue = 64

// loopbackLink is a transport that never touches the network. Packets are
// injected into receive tracks directly; send tracks count what they get.
type loopbackLink struct {
	ice   domain.IceParameters
	cands []domain.IceCandidate
	dtls  domain.DtlsParameters

	mu          sync.Mutex
	connected   bool
	closed      bool
	maxIncoming uint32
	receivers   []*loopbackReceiveTrack
	senders     []*loopbackSendTrack
	onDtlsClose []func()
}

func newLoopbackLink(context.Context, *Router, transportLinkOptions) (link, error) {
	return &loopbackLink{
		ice: domain.IceParameters{
			UsernameFragment: strings.ReplaceAll(uuid.NewString(), "-", "")[:16],
			Password:         strings.ReplaceAll(uuid.NewString(), "-", ""),
			IceLite:          true,
		},
		cands: []domain.IceCandidate{{
			Foundation: "loopback",
			Priority:   1,
			IP:         "127.0.0.1",
			Protocol:   "udp",
			Port:       9,
			Type:       "host",
		}},
		dtls: domain.DtlsParameters{
			Role:         "auto",
			Fingerprints: []domain.DtlsFingerprint{{Algorithm: "sha-256", Value: randomFingerprint()}},
		},
	}, nil
}

func randomFingerprint() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	parts := make([]string, len(b))
	for i := range b {
		parts[i] = strings.ToUpper(hex.EncodeToString(b[i : i+1]))
	}
	return strings.Join(parts, ":")
}

func (l *loopbackLink) LocalParams() (domain.IceParameters, []domain.IceCandidate, domain.DtlsParameters) {
	return l.ice, l.cands, l.dtls
}

func (l *loopbackLink) Connect(_ context.Context, dtls domain.DtlsParameters, _ *domain.IceParameters) error {
	if _, err := toPionDTLS(dtls); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLinkClosed
	}
	if l.connected {
		return ErrAlreadyConnected
	}
	l.connected = true
	return nil
}

func (l *loopbackLink) Receive(_ context.Context, _ domain.MediaKind, _ domain.RtpParameters) (receiveTrack, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrLinkClosed
	}
	t := &loopbackReceiveTrack{
		ch:   make(chan *rtp.Packet, loopbackQueue),
		stop: make(chan struct{}),
	}
	l.receivers = append(l.receivers, t)
	return t, nil
}

func (l *loopbackLink) Send(_ context.Context, _ domain.MediaKind, _ domain.RtpCodecParameters, ssrc uint32, _ string) (sendTrack, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrLinkClosed
	}
	t := &loopbackSendTrack{ssrc: ssrc}
	l.senders = append(l.senders, t)
	return t, nil
}

func (l *loopbackLink) SetMaxIncomingBitrate(bps uint32) error {
	l.mu.Lock()
	l.maxIncoming = bps
	l.mu.Unlock()
	return nil
}

func (l *loopbackLink) OnDtlsClosed(fn func()) {
	l.mu.Lock()
	l.onDtlsClose = append(l.onDtlsClose, fn)
	l.mu.Unlock()
}

// dtlsClosed simulates the remote side going away.
func (l *loopbackLink) dtlsClosed() {
	l.mu.Lock()
	obs := append([]func(){}, l.onDtlsClose...)
	l.mu.Unlock()
	for _, fn := range obs {
		fn()
	}
}

func (l *loopbackLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	recv := l.receivers
	l.receivers = nil
	l.mu.Unlock()

	for _, r := range recv {
		_ = r.Stop()
	}
	return nil
}

type loopbackReceiveTrack struct {
	ch       chan *rtp.Packet
	stop     chan struct{}
	stopOnce sync.Once
	keyReqs  atomic.Int32
}

// Push queues a packet as if it arrived from the network.
func (t *loopbackReceiveTrack) Push(p *rtp.Packet) bool {
	select {
	case <-t.stop:
		return false
	case t.ch <- p:
		return true
	}
}

func (t *loopbackReceiveTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	select {
	case <-t.stop:
		return nil, nil, io.EOF
	case p := <-t.ch:
		return p, interceptor.Attributes{}, nil
	}
}

func (t *loopbackReceiveTrack) RequestKeyFrame() error {
	t.keyReqs.Add(1)
	return nil
}

func (t *loopbackReceiveTrack) Stop() error {
	t.stopOnce.Do(func() { close(t.stop) })
	return nil
}

type loopbackSendTrack struct {
	ssrc uint32

	mu      sync.Mutex
	packets []*rtp.Packet
	stopped bool
	onKey   func()
}

func (t *loopbackSendTrack) WriteRTP(p *rtp.Packet) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return io.ErrClosedPipe
	}
	cp := *p
	cp.SSRC = t.ssrc
	t.packets = append(t.packets, &cp)
	return nil
}

func (t *loopbackSendTrack) OnKeyFrameRequest(fn func()) {
	t.mu.Lock()
	t.onKey = fn
	t.mu.Unlock()
}

// requestKeyFrame simulates a PLI from the remote receiver.
func (t *loopbackSendTrack) requestKeyFrame() {
	t.mu.Lock()
	fn := t.onKey
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (t *loopbackSendTrack) received() []*rtp.Packet {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*rtp.Packet(nil), t.packets...)
}

func (t *loopbackSendTrack) Stop() error {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	return nil
}
