package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	errNoBitrateControl = errors.New("incoming bitrate cap not supported by pion link")
	errReceiveStopped   = errors.New("receive track stopped")
)

// newPionAPI builds the webrtc API of one router: its codecs, the default
// interceptors plus periodic PLI, and the worker's network settings.
func newPionAPI(cfg WorkerConfig, caps domain.RtpCapabilities) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	for _, c := range caps.Codecs {
		err := m.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: toPionCapability(c),
			PayloadType:        webrtc.PayloadType(c.PreferredPayloadType),
		}, codecType(c.Kind))
		if err != nil {
			return nil, fmt.Errorf("register codec %s: %w", c.MimeType, err)
		}
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("default interceptors: %w", err)
	}
	pli, err := intervalpli.NewReceiverInterceptor()
	if err != nil {
		return nil, fmt.Errorf("pli interceptor: %w", err)
	}
	ir.Add(pli)

	se := webrtc.SettingEngine{}
	if cfg.RTCMinPort > 0 && cfg.RTCMaxPort >= cfg.RTCMinPort {
		if err := se.SetEphemeralUDPPortRange(cfg.RTCMinPort, cfg.RTCMaxPort); err != nil {
			return nil, fmt.Errorf("port range: %w", err)
		}
	}
	if len(cfg.AnnouncedIPs) > 0 {
		se.SetNAT1To1IPs(cfg.AnnouncedIPs, webrtc.ICECandidateTypeHost)
	}
	se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4, webrtc.NetworkTypeUDP6})

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	), nil
}

// pionLink drives one transport through pion's ORTC objects.
type pionLink struct {
	api    *webrtc.API
	logger zerolog.Logger

	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport

	localICE   domain.IceParameters
	localCands []domain.IceCandidate
	localDTLS  domain.DtlsParameters

	ready  chan struct{}
	closed chan struct{}

	mu          sync.Mutex
	connecting  bool
	isClosed    bool
	receivers   []*pionReceiveTrack
	senders     []*pionSendTrack
	onDtlsClose []func()
	dtlsOnce    sync.Once
}

func newPionLink(ctx context.Context, r *Router, _ transportLinkOptions) (link, error) {
	if r.api == nil {
		return nil, errors.New("router has no webrtc api")
	}
	servers := make([]webrtc.ICEServer, 0, len(r.worker.cfg.ICEServers))
	for _, u := range r.worker.cfg.ICEServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}

	gatherer, err := r.api.NewICEGatherer(webrtc.ICEGatherOptions{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("ice gatherer: %w", err)
	}
	iceT := r.api.NewICETransport(gatherer)
	dtlsT, err := r.api.NewDTLSTransport(iceT, nil)
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("dtls transport: %w", err)
	}

	l := &pionLink{
		api:      r.api,
		logger:   log.With().Str("module", "rtc").Str("router_id", r.id).Logger(),
		gatherer: gatherer,
		ice:      iceT,
		dtls:     dtlsT,
		ready:    make(chan struct{}),
		closed:   make(chan struct{}),
	}

	gathered := make(chan struct{})
	var once sync.Once
	gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			once.Do(func() { close(gathered) })
		}
	})
	if err := gatherer.Gather(); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("gather: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		_ = l.Close()
		return nil, ctx.Err()
	}

	iceParams, err := gatherer.GetLocalParameters()
	if err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("local ice parameters: %w", err)
	}
	cands, err := gatherer.GetLocalCandidates()
	if err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("local candidates: %w", err)
	}
	dtlsParams, err := dtlsT.GetLocalParameters()
	if err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("local dtls parameters: %w", err)
	}
	l.localICE = fromPionICE(iceParams)
	l.localCands = fromPionCandidates(cands)
	l.localDTLS = fromPionDTLS(dtlsParams)

	dtlsT.OnStateChange(func(s webrtc.DTLSTransportState) {
		l.logger.Debug().Str("dtls_state", s.String()).Msg("DTLS state")
		if s == webrtc.DTLSTransportStateClosed || s == webrtc.DTLSTransportStateFailed {
			l.fireDtlsClosed()
		}
	})

	return l, nil
}

func (l *pionLink) LocalParams() (domain.IceParameters, []domain.IceCandidate, domain.DtlsParameters) {
	return l.localICE, l.localCands, l.localDTLS
}

// Connect starts ICE and DTLS in the background; the call itself only
// validates and records the remote parameters.
func (l *pionLink) Connect(_ context.Context, dtls domain.DtlsParameters, ice *domain.IceParameters) error {
	if ice == nil {
		return ErrIceParametersRequired
	}
	remoteDTLS, err := toPionDTLS(dtls)
	if err != nil {
		return err
	}
	remoteICE := webrtc.ICEParameters{
		UsernameFragment: ice.UsernameFragment,
		Password:         ice.Password,
		ICELite:          ice.IceLite,
	}

	l.mu.Lock()
	if l.isClosed {
		l.mu.Unlock()
		return ErrLinkClosed
	}
	if l.connecting {
		l.mu.Unlock()
		return ErrAlreadyConnected
	}
	l.connecting = true
	l.mu.Unlock()

	go func() {
		role := webrtc.ICERoleControlled
		if err := l.ice.Start(l.gatherer, remoteICE, &role); err != nil {
			l.logger.Warn().Err(err).Msg("ICE start failed")
			l.fireDtlsClosed()
			return
		}
		if err := l.dtls.Start(remoteDTLS); err != nil {
			l.logger.Warn().Err(err).Msg("DTLS start failed")
			l.fireDtlsClosed()
			return
		}
		l.logger.Info().Msg("transport connected")
		close(l.ready)
	}()
	return nil
}

func (l *pionLink) Receive(_ context.Context, kind domain.MediaKind, params domain.RtpParameters) (receiveTrack, error) {
	codecs := mediaCodecs(params)
	if len(codecs) == 0 {
		return nil, ErrNoCodecs
	}
	pt := webrtc.PayloadType(codecs[0].PayloadType)

	var recv webrtc.RTPReceiveParameters
	for _, e := range params.Encodings {
		recv.Encodings = append(recv.Encodings, webrtc.RTPDecodingParameters{
			RTPCodingParameters: webrtc.RTPCodingParameters{
				RID:         e.RID,
				SSRC:        webrtc.SSRC(e.SSRC),
				PayloadType: pt,
			},
		})
	}
	if len(recv.Encodings) == 0 {
		recv.Encodings = []webrtc.RTPDecodingParameters{{RTPCodingParameters: webrtc.RTPCodingParameters{PayloadType: pt}}}
	}

	l.mu.Lock()
	if l.isClosed {
		l.mu.Unlock()
		return nil, ErrLinkClosed
	}
	t := newPionReceiveTrack(l)
	l.receivers = append(l.receivers, t)
	l.mu.Unlock()

	// The SRTP session exists only after DTLS completes, so the receiver is
	// started once the link is ready.
	go t.start(codecType(kind), recv)
	return t, nil
}

func (l *pionLink) Send(_ context.Context, kind domain.MediaKind, codec domain.RtpCodecParameters, ssrc uint32, trackID string) (sendTrack, error) {
	local, err := webrtc.NewTrackLocalStaticRTP(toPionCapability(codec.Capability(kind)), trackID, trackID)
	if err != nil {
		return nil, fmt.Errorf("local track: %w", err)
	}

	l.mu.Lock()
	if l.isClosed {
		l.mu.Unlock()
		return nil, ErrLinkClosed
	}
	l.mu.Unlock()

	sender, err := l.api.NewRTPSender(local, l.dtls)
	if err != nil {
		return nil, fmt.Errorf("rtp sender: %w", err)
	}
	err = sender.Send(webrtc.RTPSendParameters{
		Encodings: []webrtc.RTPEncodingParameters{{
			RTPCodingParameters: webrtc.RTPCodingParameters{
				SSRC:        webrtc.SSRC(ssrc),
				PayloadType: webrtc.PayloadType(codec.PayloadType),
			},
		}},
	})
	if err != nil {
		_ = sender.Stop()
		return nil, fmt.Errorf("rtp send: %w", err)
	}

	t := &pionSendTrack{track: local, sender: sender}
	l.mu.Lock()
	l.senders = append(l.senders, t)
	l.mu.Unlock()

	go t.readRTCP()
	return t, nil
}

func (l *pionLink) SetMaxIncomingBitrate(uint32) error {
	return errNoBitrateControl
}

func (l *pionLink) OnDtlsClosed(fn func()) {
	l.mu.Lock()
	l.onDtlsClose = append(l.onDtlsClose, fn)
	l.mu.Unlock()
}

func (l *pionLink) fireDtlsClosed() {
	l.dtlsOnce.Do(func() {
		l.mu.Lock()
		obs := append([]func(){}, l.onDtlsClose...)
		l.mu.Unlock()
		for _, fn := range obs {
			fn()
		}
	})
}

func (l *pionLink) Close() error {
	l.mu.Lock()
	if l.isClosed {
		l.mu.Unlock()
		return nil
	}
	l.isClosed = true
	recv, send := l.receivers, l.senders
	l.receivers, l.senders = nil, nil
	l.mu.Unlock()
	close(l.closed)

	for _, s := range send {
		_ = s.Stop()
	}
	for _, r := range recv {
		_ = r.Stop()
	}
	// Closing the DTLS transport also stops ICE and the gatherer.
	if err := l.dtls.Stop(); err != nil {
		l.logger.Debug().Err(err).Msg("dtls stop")
	}
	if err := l.ice.Stop(); err != nil {
		l.logger.Debug().Err(err).Msg("ice stop")
	}
	return l.gatherer.Close()
}

type pionReceiveTrack struct {
	link    *pionLink
	started chan struct{}
	stop    chan struct{}

	mu       sync.Mutex
	stopped  bool
	receiver *webrtc.RTPReceiver
	track    *webrtc.TrackRemote
	err      error
}

func newPionReceiveTrack(l *pionLink) *pionReceiveTrack {
	return &pionReceiveTrack{
		link:    l,
		started: make(chan struct{}),
		stop:    make(chan struct{}),
	}
}

// start runs once the link is ready. A Stop that arrives earlier, or while
// the receiver is being built, wins: the receiver is stopped right away.
func (t *pionReceiveTrack) start(kind webrtc.RTPCodecType, params webrtc.RTPReceiveParameters) {
	defer close(t.started)
	select {
	case <-t.link.ready:
	case <-t.link.closed:
		t.err = ErrLinkClosed
		return
	case <-t.stop:
		t.err = errReceiveStopped
		return
	}
	recv, err := t.link.api.NewRTPReceiver(kind, t.link.dtls)
	if err != nil {
		t.err = err
		return
	}
	if err := recv.Receive(params); err != nil {
		t.err = err
		return
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		if err := recv.Stop(); err != nil {
			t.link.logger.Debug().Err(err).Msg("late receiver stop")
		}
		t.err = errReceiveStopped
		return
	}
	t.receiver = recv
	t.track = recv.Track()
	t.mu.Unlock()
}

func (t *pionReceiveTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	<-t.started
	if t.err != nil {
		return nil, nil, t.err
	}
	return t.track.ReadRTP()
}

func (t *pionReceiveTrack) RequestKeyFrame() error {
	select {
	case <-t.started:
	default:
		return nil
	}
	if t.track == nil {
		return nil
	}
	_, err := t.link.dtls.WriteRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: uint32(t.track.SSRC())},
	})
	return err
}

func (t *pionReceiveTrack) Stop() error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.stopped = true
	close(t.stop)
	recv := t.receiver
	t.mu.Unlock()

	if recv == nil {
		return nil
	}
	return recv.Stop()
}

type pionSendTrack struct {
	track  *webrtc.TrackLocalStaticRTP
	sender *webrtc.RTPSender

	mu    sync.Mutex
	onKey func()
}

func (t *pionSendTrack) WriteRTP(p *rtp.Packet) error {
	return t.track.WriteRTP(p)
}

func (t *pionSendTrack) OnKeyFrameRequest(fn func()) {
	t.mu.Lock()
	t.onKey = fn
	t.mu.Unlock()
}

// readRTCP drains receiver reports and turns PLI/FIR into keyframe requests.
func (t *pionSendTrack) readRTCP() {
	for {
		pkts, _, err := t.sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, p := range pkts {
			switch p.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				t.mu.Lock()
				fn := t.onKey
				t.mu.Unlock()
				if fn != nil {
					fn()
				}
			}
		}
	}
}

func (t *pionSendTrack) Stop() error {
	return t.sender.Stop()
}
