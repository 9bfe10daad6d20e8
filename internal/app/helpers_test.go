package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/adapters/rtc"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/stretchr/testify/require"
)

type notification struct {
	To      domain.PeerID
	Event   string
	Payload any
}

// recordingNotifier keeps every push in order.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
	fail   map[domain.PeerID]error
}

func (n *recordingNotifier) Notify(to domain.PeerID, event string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.fail[to]; err != nil {
		return err
	}
	n.events = append(n.events, notification{To: to, Event: event, Payload: payload})
	return nil
}

func (n *recordingNotifier) sent(to domain.PeerID, event string) []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notification
	for _, e := range n.events {
		if e.To == to && e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func loopbackWorker(t *testing.T) core.Worker {
	t.Helper()
	w, err := rtc.NewWorker(rtc.WorkerConfig{Engine: rtc.EngineLoopback})
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}

func readyRoom(t *testing.T, n core.Notifier) *Room {
	t.Helper()
	r := NewRoom("room-1", loopbackWorker(t), n, RoomOptions{MaxIncomingBitrate: 1_500_000})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.WaitReady(ctx))
	return r
}

func joinPeer(t *testing.T, r *Room, id domain.PeerID) *Peer {
	t.Helper()
	p := NewPeer(domain.PeerInfo{ID: id, Name: string(id)})
	require.NoError(t, r.AddPeer(p))
	return p
}

func openTransport(t *testing.T, r *Room, id domain.PeerID) domain.TransportID {
	t.Helper()
	params, err := r.CreateWebRtcTransport(context.Background(), id)
	require.NoError(t, err)
	return params.ID
}

var (
	opusParams = domain.RtpParameters{
		Codecs:    []domain.RtpCodecParameters{{MimeType: "audio/opus", PayloadType: 111, ClockRate: 48000, Channels: 2}},
		Encodings: []domain.RtpEncodingParameters{{SSRC: 1001}},
	}
	vp8Params = domain.RtpParameters{
		Codecs:    []domain.RtpCodecParameters{{MimeType: "video/VP8", PayloadType: 96, ClockRate: 90000}},
		Encodings: []domain.RtpEncodingParameters{{SSRC: 2002}},
	}
)

// blockingWorker never finishes creating a router until released.
type blockingWorker struct {
	release chan struct{}
	router  core.Router
	err     error
	died    chan error
}

func newBlockingWorker() *blockingWorker {
	return &blockingWorker{release: make(chan struct{}), died: make(chan error, 1)}
}

func (w *blockingWorker) ID() string { return "blocking" }

func (w *blockingWorker) CreateRouter(ctx context.Context, _ []domain.RtpCodecCapability) (core.Router, error) {
	select {
	case <-w.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return w.router, w.err
}

func (w *blockingWorker) Died() <-chan error { return w.died }
func (w *blockingWorker) Close() {}
