package orch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/adapters/rtc"
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn collects the frames pushed to one peer.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Push
	full   bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return assert.AnError
	}
	var raw struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(f, &raw); err != nil {
		return err
	}
	c.frames = append(c.frames, core.Push{Type: raw.Type, Data: raw.Data})
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) pushes(event string) []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []json.RawMessage
	for _, f := range c.frames {
		if f.Type == event {
			out = append(out, f.Data.(json.RawMessage))
		}
	}
	return out
}

type harness struct {
	orch  *Orchestrator
	conns map[domain.PeerID]*fakeConn
	kicks map[domain.PeerID]int
	mu    sync.Mutex
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	w, err := rtc.NewWorker(rtc.WorkerConfig{Engine: rtc.EngineLoopback})
	require.NoError(t, err)
	t.Cleanup(w.Close)

	reg := app.NewRegistry()
	pool := app.NewWorkerPool([]core.Worker{w}, nil)
	rooms := app.NewRoomManager(pool, reg, app.RoomOptions{})
	t.Cleanup(rooms.CloseAll)

	return &harness{
		orch: &Orchestrator{
			Registry:   reg,
			Rooms:      rooms,
			Policy:     app.SimplePolicy{},
			RouterWait: time.Second,
		},
		conns: map[domain.PeerID]*fakeConn{},
		kicks: map[domain.PeerID]int{},
	}
}

func (h *harness) connect(id domain.PeerID) *fakeConn {
	c := &fakeConn{}
	h.conns[id] = c
	h.orch.Registry.BindSignal(id, c, func() {
		h.mu.Lock()
		h.kicks[id]++
		h.mu.Unlock()
	})
	return c
}

// ready joins a peer and prepares one transport.
func (h *harness) ready(t *testing.T, id domain.PeerID, room domain.RoomID) (domain.TransportID, domain.RtpCapabilities) {
	t.Helper()
	_, err := h.orch.Join(id, room, string(id))
	require.NoError(t, err)
	caps, err := h.orch.RouterCapabilities(context.Background(), id)
	require.NoError(t, err)
	params, err := h.orch.CreateTransport(context.Background(), id)
	require.NoError(t, err)
	return params.ID, caps
}

var vp8 = domain.RtpParameters{
	Codecs:    []domain.RtpCodecParameters{{MimeType: "video/VP8", PayloadType: 96, ClockRate: 90000}},
	Encodings: []domain.RtpEncodingParameters{{SSRC: 4242}},
}

func TestScenario_LateJoinerSeesExistingProducer(t *testing.T) {
	h := newHarness(t)
	h.connect("A")
	h.connect("B")

	// Given room r1 with A producing video
	require.NoError(t, h.orch.CreateRoom("r1"))
	ta, _ := h.ready(t, "A", "r1")
	pid, err := h.orch.Produce(context.Background(), "A", ta, domain.KindVideo, "", vp8)
	require.NoError(t, err)

	// When B joins afterwards and asks for producers
	snap, err := h.orch.Join("B", "r1", "bob")
	require.NoError(t, err)
	assert.Len(t, snap.Peers, 2)
	list, err := h.orch.ProducersFor("B")
	require.NoError(t, err)

	// Then A's producer is listed
	assert.Contains(t, list, domain.ProducerInfo{ProducerID: pid, PeerID: "A"})
}

func TestScenario_DisconnectClosesRemoteConsumer(t *testing.T) {
	h := newHarness(t)
	h.connect("A")
	connB := h.connect("B")

	require.NoError(t, h.orch.CreateRoom("r1"))
	ta, _ := h.ready(t, "A", "r1")
	tb, caps := h.ready(t, "B", "r1")

	pid, err := h.orch.Produce(context.Background(), "A", ta, domain.KindVideo, "", vp8)
	require.NoError(t, err)
	require.Len(t, connB.pushes(core.EventNewProducers), 1)

	params, err := h.orch.Consume(context.Background(), "B", tb, pid, caps)
	require.NoError(t, err)
	require.NotNil(t, params)

	// When A disconnects
	h.orch.OnDisconnect("A")

	// Then B gets exactly one consumerClosed for its consumer
	closed := connB.pushes(core.EventConsumerClosed)
	require.Len(t, closed, 1)
	var payload core.ConsumerClosedPayload
	require.NoError(t, json.Unmarshal(closed[0], &payload))
	assert.Equal(t, params.ID, payload.ConsumerID)

	room, ok := h.orch.Rooms.GetRoom("r1")
	require.True(t, ok)
	peerB, ok := room.Peer("B")
	require.True(t, ok)
	_, ok = peerB.Consumer(params.ID)
	assert.False(t, ok)

	assert.Len(t, connB.pushes(core.EventPeerLeft), 1)
}

func TestScenario_ConcurrentCreateRoom(t *testing.T) {
	h := newHarness(t)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = h.orch.CreateRoom("r2")
		}()
	}
	wg.Wait()

	var ok, exists int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, app.ErrRoomExists):
			exists++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, exists)
	assert.Equal(t, 1, h.orch.Rooms.Len())
}

func TestScenario_EmptyRoomIsDeleted(t *testing.T) {
	h := newHarness(t)
	h.connect("A")

	require.NoError(t, h.orch.CreateRoom("r1"))
	_, err := h.orch.Join("A", "r1", "alice")
	require.NoError(t, err)

	require.NoError(t, h.orch.Exit("A"))
	require.ErrorIs(t, h.orch.Exit("A"), app.ErrNotInRoom)

	_, err = h.orch.Join("A", "r1", "alice")
	require.ErrorIs(t, err, app.ErrRoomNotFound)
	assert.Zero(t, h.orch.Rooms.Len())
}

func TestOrchestrator_JoinSwitchesRooms(t *testing.T) {
	h := newHarness(t)
	h.connect("A")
	connB := h.connect("B")

	require.NoError(t, h.orch.CreateRoom("one"))
	require.NoError(t, h.orch.CreateRoom("two"))
	_, err := h.orch.Join("B", "one", "bob")
	require.NoError(t, err)
	_, err = h.orch.Join("A", "one", "alice")
	require.NoError(t, err)
	require.Len(t, connB.pushes(core.EventPeerJoined), 1)

	// rejoining the same room is a no-op
	snap, err := h.orch.Join("A", "one", "alice")
	require.NoError(t, err)
	assert.Len(t, snap.Peers, 2)

	snap, err = h.orch.Join("A", "two", "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("two"), snap.ID)
	assert.Len(t, connB.pushes(core.EventPeerLeft), 1)

	info, err := h.orch.RoomInfo("A")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("two"), info.ID)
}

func TestOrchestrator_NotInRoom(t *testing.T) {
	h := newHarness(t)
	h.connect("A")
	ctx := context.Background()

	_, err := h.orch.RoomInfo("A")
	assert.ErrorIs(t, err, app.ErrNotInRoom)
	_, err = h.orch.RouterCapabilities(ctx, "A")
	assert.ErrorIs(t, err, app.ErrNotInRoom)
	_, err = h.orch.CreateTransport(ctx, "A")
	assert.ErrorIs(t, err, app.ErrNotInRoom)
	_, err = h.orch.Produce(ctx, "A", "t", domain.KindAudio, "", vp8)
	assert.ErrorIs(t, err, app.ErrNotInRoom)
	_, err = h.orch.Consume(ctx, "A", "t", "p", domain.RtpCapabilities{})
	assert.ErrorIs(t, err, app.ErrNotInRoom)
	_, err = h.orch.ProducersFor("A")
	assert.ErrorIs(t, err, app.ErrNotInRoom)
	assert.ErrorIs(t, h.orch.CloseProducer("A", "p"), app.ErrNotInRoom)
}

func TestOrchestrator_JoinValidation(t *testing.T) {
	h := newHarness(t)
	h.connect("A")
	require.NoError(t, h.orch.CreateRoom("r"))

	_, err := h.orch.Join("A", "r", "")
	assert.ErrorIs(t, err, domain.ErrNameEmpty)
	_, err = h.orch.Join("A", "nowhere", "alice")
	assert.ErrorIs(t, err, app.ErrRoomNotFound)
	assert.ErrorIs(t, h.orch.CreateRoom(""), domain.ErrRoomIDEmpty)
}

func TestOrchestrator_SlowPeerIsKicked(t *testing.T) {
	h := newHarness(t)
	h.connect("A")
	connB := h.connect("B")

	require.NoError(t, h.orch.CreateRoom("r1"))
	ta, _ := h.ready(t, "A", "r1")
	_, err := h.orch.Join("B", "r1", "bob")
	require.NoError(t, err)

	// Given B's queue is full
	connB.mu.Lock()
	connB.full = true
	connB.mu.Unlock()

	// When A produces
	_, err = h.orch.Produce(context.Background(), "A", ta, domain.KindVideo, "", vp8)
	require.NoError(t, err)

	// Then B's connection is canceled
	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, 1, h.kicks["B"])
	assert.Zero(t, h.kicks["A"])
}

func TestOrchestrator_CloseProducerDoesNotBroadcast(t *testing.T) {
	h := newHarness(t)
	h.connect("A")
	connB := h.connect("B")
	connC := h.connect("C")

	require.NoError(t, h.orch.CreateRoom("r1"))
	ta, _ := h.ready(t, "A", "r1")
	tb, caps := h.ready(t, "B", "r1")
	_, err := h.orch.Join("C", "r1", "carol")
	require.NoError(t, err)

	pid, err := h.orch.Produce(context.Background(), "A", ta, domain.KindVideo, "", vp8)
	require.NoError(t, err)
	_, err = h.orch.Consume(context.Background(), "B", tb, pid, caps)
	require.NoError(t, err)

	require.NoError(t, h.orch.CloseProducer("A", pid))

	// only the consumer owner hears about it
	assert.Len(t, connB.pushes(core.EventConsumerClosed), 1)
	assert.Empty(t, connC.pushes(core.EventConsumerClosed))
	list, err := h.orch.ProducersFor("C")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestOrchestrator_JoinMissingRoomKeepsCurrentRoom(t *testing.T) {
	h := newHarness(t)
	h.connect("A")
	connB := h.connect("B")

	require.NoError(t, h.orch.CreateRoom("r1"))
	ta, _ := h.ready(t, "A", "r1")
	_, err := h.orch.Join("B", "r1", "bob")
	require.NoError(t, err)

	// When A tries a room that does not exist
	_, err = h.orch.Join("A", "nope", "alice")
	require.ErrorIs(t, err, app.ErrRoomNotFound)

	// Then A is still in r1 with its transport open
	info, err := h.orch.RoomInfo("A")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("r1"), info.ID)
	assert.Len(t, info.Peers, 2)
	assert.Empty(t, connB.pushes(core.EventPeerLeft))

	room, ok := h.orch.Rooms.GetRoom("r1")
	require.True(t, ok)
	peerA, ok := room.Peer("A")
	require.True(t, ok)
	tr, ok := peerA.Transport(ta)
	require.True(t, ok)
	assert.False(t, tr.Closed())
}
