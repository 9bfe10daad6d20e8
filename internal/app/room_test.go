package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestRoom_NotReadyUntilRouterExists(t *testing.T) {
	req := require.New(t)
	w := newBlockingWorker()
	w.err = errors.New("stopped")
	t.Cleanup(func() { close(w.release) })
	r := NewRoom("pending", w, &recordingNotifier{}, RoomOptions{})
	joinPeer(t, r, "a")

	// Given the router is still being created
	req.Nil(r.RouterRtpCapabilities())
	req.Equal(RoomUninitialized, r.State())

	// Then transports are refused and consumes are declined
	_, err := r.CreateWebRtcTransport(context.Background(), "a")
	req.ErrorIs(err, ErrRouterNotReady)
	params, err := r.Consume(context.Background(), "a", "t", "p", domain.RtpCapabilities{})
	req.NoError(err)
	req.Nil(params)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req.ErrorIs(r.WaitReady(ctx), ErrRouterNotReady)
}

func TestRoom_RouterInitFailure(t *testing.T) {
	w := newBlockingWorker()
	w.err = errors.New("no capacity")
	close(w.release)

	r := NewRoom("broken", w, &recordingNotifier{}, RoomOptions{})
	err := r.WaitReady(context.Background())
	require.ErrorIs(t, err, ErrRouterNotReady)
	require.ErrorContains(t, err, "no capacity")
	assert.Nil(t, r.RouterRtpCapabilities())
}

func TestRoom_ProduceRegistersBeforeBroadcast(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	r := readyRoom(t, notifier)
	joinPeer(t, r, "a")
	joinPeer(t, r, "b")
	tid := openTransport(t, r, "a")

	// Given b is notified of a's new producer
	// Then the producer is already visible in the room snapshot
	notifier.EXPECT().
		Notify(domain.PeerID("b"), core.EventNewProducers, gomock.Any()).
		DoAndReturn(func(_ domain.PeerID, _ string, payload any) error {
			infos := payload.([]domain.ProducerInfo)
			require.Len(t, infos, 1)
			assert.Contains(t, r.ProducerList(), infos[0])
			assert.Equal(t, domain.PeerID("a"), infos[0].PeerID)
			return nil
		}).
		Times(1)

	// When a produces
	id, res, err := r.Produce(context.Background(), "a", tid, domain.KindAudio, "", opusParams)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, res.SendTo)
	assert.Empty(t, res.Dropped)
}

func TestRoom_ProduceReportsDroppedRecipients(t *testing.T) {
	n := &recordingNotifier{fail: map[domain.PeerID]error{"b": errors.New("backpressure")}}
	r := readyRoom(t, n)
	joinPeer(t, r, "a")
	joinPeer(t, r, "b")
	joinPeer(t, r, "c")
	tid := openTransport(t, r, "a")

	_, res, err := r.Produce(context.Background(), "a", tid, domain.KindAudio, "", opusParams)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SendTo)
	assert.Equal(t, []domain.PeerID{"b"}, res.Dropped)
	assert.Len(t, n.sent("c", core.EventNewProducers), 1)
	assert.Empty(t, n.sent("a", core.EventNewProducers))
}

func TestRoom_OneProducerPerMediaType(t *testing.T) {
	r := readyRoom(t, &recordingNotifier{})
	joinPeer(t, r, "a")
	tid := openTransport(t, r, "a")

	_, _, err := r.Produce(context.Background(), "a", tid, domain.KindVideo, domain.MediaVideo, vp8Params)
	require.NoError(t, err)

	_, _, err = r.Produce(context.Background(), "a", tid, domain.KindVideo, domain.MediaVideo, vp8Params)
	require.ErrorIs(t, err, ErrProducerExists)

	// a screen share is a different slot
	_, _, err = r.Produce(context.Background(), "a", tid, domain.KindVideo, domain.MediaScreen, vp8Params)
	require.NoError(t, err)
	assert.Len(t, r.ProducerList(), 2)
}

func TestRoom_ProduceUnknownTransport(t *testing.T) {
	r := readyRoom(t, &recordingNotifier{})
	joinPeer(t, r, "a")

	_, _, err := r.Produce(context.Background(), "a", "nope", domain.KindAudio, "", opusParams)
	require.ErrorIs(t, err, ErrTransportNotFound)

	_, _, err = r.Produce(context.Background(), "ghost", "nope", domain.KindAudio, "", opusParams)
	require.ErrorIs(t, err, ErrPeerNotFound)
}

func TestRoom_ConsumeIneligibleIsDeclined(t *testing.T) {
	r := readyRoom(t, &recordingNotifier{})
	joinPeer(t, r, "a")
	b := joinPeer(t, r, "b")
	ta := openTransport(t, r, "a")
	tb := openTransport(t, r, "b")

	pid, _, err := r.Produce(context.Background(), "a", ta, domain.KindAudio, "", opusParams)
	require.NoError(t, err)

	// Given b can only decode video
	videoOnly := domain.RtpCapabilities{Codecs: []domain.RtpCodecCapability{
		{Kind: domain.KindVideo, MimeType: "video/VP8", ClockRate: 90000, PreferredPayloadType: 96},
	}}

	// When b consumes a's audio
	params, err := r.Consume(context.Background(), "b", tb, pid, videoOnly)

	// Then nothing is created
	require.NoError(t, err)
	assert.Nil(t, params)
	tr, ok := b.Transport(tb)
	require.True(t, ok)
	assert.False(t, tr.Closed())

	// unknown producer is declined too
	params, err = r.Consume(context.Background(), "b", tb, "missing", *r.RouterRtpCapabilities())
	require.NoError(t, err)
	assert.Nil(t, params)
}

func TestRoom_ProducerCloseNotifiesConsumerOwnerOnly(t *testing.T) {
	n := &recordingNotifier{}
	r := readyRoom(t, n)
	joinPeer(t, r, "a")
	b := joinPeer(t, r, "b")
	joinPeer(t, r, "c")
	ta := openTransport(t, r, "a")
	tb := openTransport(t, r, "b")

	pid, _, err := r.Produce(context.Background(), "a", ta, domain.KindAudio, "", opusParams)
	require.NoError(t, err)
	params, err := r.Consume(context.Background(), "b", tb, pid, *r.RouterRtpCapabilities())
	require.NoError(t, err)
	require.NotNil(t, params)
	assert.Equal(t, pid, params.ProducerID)
	assert.Equal(t, domain.KindAudio, params.Kind)
	assert.Equal(t, "simple", params.Type)

	// When a closes its producer, twice
	require.NoError(t, r.CloseProducer("a", pid))
	require.NoError(t, r.CloseProducer("a", pid))

	// Then only b hears about its consumer, exactly once
	got := n.sent("b", core.EventConsumerClosed)
	require.Len(t, got, 1)
	assert.Equal(t, core.ConsumerClosedPayload{ConsumerID: params.ID}, got[0].Payload)
	assert.Empty(t, n.sent("a", core.EventConsumerClosed))
	assert.Empty(t, n.sent("c", core.EventConsumerClosed))

	_, ok := b.Consumer(params.ID)
	assert.False(t, ok)
	assert.Empty(t, r.ProducerList())
}

func TestRoom_RemovePeerCascades(t *testing.T) {
	n := &recordingNotifier{}
	r := readyRoom(t, n)
	a := joinPeer(t, r, "a")
	joinPeer(t, r, "b")
	ta := openTransport(t, r, "a")
	tb := openTransport(t, r, "b")

	pid, _, err := r.Produce(context.Background(), "a", ta, domain.KindVideo, "", vp8Params)
	require.NoError(t, err)
	params, err := r.Consume(context.Background(), "b", tb, pid, *r.RouterRtpCapabilities())
	require.NoError(t, err)
	require.NotNil(t, params)

	transport, ok := a.Transport(ta)
	require.True(t, ok)

	// When a leaves
	require.True(t, r.RemovePeer("a"))
	require.False(t, r.RemovePeer("a"))

	// Then its transports are closed and b loses the consumer
	assert.True(t, transport.Closed())
	assert.Equal(t, PeerClosed, a.State())
	assert.Len(t, n.sent("b", core.EventConsumerClosed), 1)
	assert.Empty(t, r.ProducerList())
	assert.Equal(t, 1, r.PeerCount())
}

func TestRoom_PauseResumeConsumer(t *testing.T) {
	r := readyRoom(t, &recordingNotifier{})
	joinPeer(t, r, "a")
	joinPeer(t, r, "b")
	ta := openTransport(t, r, "a")
	tb := openTransport(t, r, "b")

	pid, _, err := r.Produce(context.Background(), "a", ta, domain.KindVideo, "", vp8Params)
	require.NoError(t, err)
	params, err := r.Consume(context.Background(), "b", tb, pid, *r.RouterRtpCapabilities())
	require.NoError(t, err)

	require.NoError(t, r.PauseConsumer("b", params.ID))
	require.NoError(t, r.ResumeConsumer("b", params.ID))
	require.ErrorIs(t, r.PauseConsumer("b", "missing"), ErrConsumerNotFound)
	require.ErrorIs(t, r.ResumeConsumer("ghost", params.ID), ErrPeerNotFound)
}

func TestRoom_ConnectUnknownIsNoop(t *testing.T) {
	r := readyRoom(t, &recordingNotifier{})
	joinPeer(t, r, "a")
	dtls := domain.DtlsParameters{Role: "client", Fingerprints: []domain.DtlsFingerprint{{Algorithm: "sha-256", Value: "AA"}}}

	require.NoError(t, r.ConnectPeerTransport(context.Background(), "ghost", "t", dtls, nil))
	require.NoError(t, r.ConnectPeerTransport(context.Background(), "a", "t", dtls, nil))

	tid := openTransport(t, r, "a")
	require.NoError(t, r.ConnectPeerTransport(context.Background(), "a", tid, dtls, nil))
}

func TestRoom_SnapshotAndInfo(t *testing.T) {
	r := readyRoom(t, &recordingNotifier{})
	joinPeer(t, r, "a")

	snap := r.Snapshot()
	assert.Equal(t, domain.RoomID("room-1"), snap.ID)
	assert.Equal(t, []domain.PeerInfo{{ID: "a", Name: "a"}}, snap.Peers)

	info := r.Info()
	assert.Equal(t, 1, info.PeerCount)
	assert.True(t, info.Ready)

	name, ok := r.PeerName("a")
	assert.True(t, ok)
	assert.Equal(t, "a", name)
}

func TestRoom_ClosedRoomRefusesPeers(t *testing.T) {
	r := readyRoom(t, &recordingNotifier{})

	router, ok := r.closeIfEmpty()
	require.True(t, ok)
	require.NotNil(t, router)
	router.Close()

	err := r.AddPeer(NewPeer(domain.PeerInfo{ID: "late", Name: "late"}))
	require.ErrorIs(t, err, ErrRoomClosed)
	assert.Equal(t, RoomClosed, r.State())
}

func TestRoom_ForceClosedRoomHasNoCapabilities(t *testing.T) {
	r := readyRoom(t, &recordingNotifier{})
	joinPeer(t, r, "a")
	require.NotNil(t, r.RouterRtpCapabilities())

	// When the room is torn down on shutdown
	r.forceClose()

	// Then capability queries fail cleanly
	assert.Nil(t, r.RouterRtpCapabilities())
	require.ErrorIs(t, r.WaitReady(context.Background()), ErrRoomClosed)
	assert.Zero(t, r.PeerCount())
}
