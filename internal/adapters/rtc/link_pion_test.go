package rtc

import (
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPionReceiveTrack_StopBeforeLinkReady(t *testing.T) {
	l := &pionLink{ready: make(chan struct{}), closed: make(chan struct{})}
	track := newPionReceiveTrack(l)

	// Given the producer goes away before DTLS completes
	require.NoError(t, track.Stop())
	require.NoError(t, track.Stop())

	// When the start path runs
	go track.start(webrtc.RTPCodecTypeVideo, webrtc.RTPReceiveParameters{})

	// Then it gives up without building a receiver
	select {
	case <-track.started:
	case <-time.After(time.Second):
		t.Fatal("start did not observe the stop")
	}
	assert.Nil(t, track.receiver)
	_, _, err := track.ReadRTP()
	assert.ErrorIs(t, err, errReceiveStopped)
	assert.NoError(t, track.RequestKeyFrame())
}

func TestPionReceiveTrack_LinkClosedBeforeReady(t *testing.T) {
	l := &pionLink{ready: make(chan struct{}), closed: make(chan struct{})}
	track := newPionReceiveTrack(l)
	close(l.closed)

	track.start(webrtc.RTPCodecTypeAudio, webrtc.RTPReceiveParameters{})

	_, _, err := track.ReadRTP()
	assert.ErrorIs(t, err, ErrLinkClosed)
	assert.NoError(t, track.Stop())
}
