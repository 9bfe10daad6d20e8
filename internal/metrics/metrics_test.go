package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.Error(t, Register(reg), "double registration must fail")

	before := testutil.ToFloat64(roomsActive)
	RoomStarted()
	assert.Equal(t, before+1, testutil.ToFloat64(roomsActive))
	RoomEnded(time.Now().Add(-time.Minute))
	assert.Equal(t, before, testutil.ToFloat64(roomsActive))

	ServiceOperationCounter.WithLabelValues("join", "error", "room_not_found").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(ServiceOperationCounter.WithLabelValues("join", "error", "room_not_found")))

	PushDropped(2)
	assert.GreaterOrEqual(t, testutil.ToFloat64(pushDropped), 2.0)
}
