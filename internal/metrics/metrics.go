// Package metrics exposes server counters in the Prometheus format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "huddle"

var (
	roomsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rooms",
		Help:      "Rooms currently open.",
	})
	roomDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "room_duration_seconds",
		Help:      "Lifetime of closed rooms.",
		Buckets:   prometheus.ExponentialBuckets(10, 3, 8),
	})
	peersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "peers",
		Help:      "Peers currently in a room.",
	})
	connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "signal_connections",
		Help:      "Open signaling connections.",
	})
	pushDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "push_dropped_total",
		Help:      "Server pushes dropped because a peer queue was full.",
	})

	// ServiceOperationCounter counts signaling operations by type, status
	// and error reason.
	ServiceOperationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "service_operation_total",
		Help:      "Signaling operations handled.",
	}, []string{"type", "status", "error_type"})
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		roomsActive, roomDuration, peersActive, connections, pushDropped, ServiceOperationCounter,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func RoomStarted() { roomsActive.Inc() }

func RoomEnded(started time.Time) {
	roomsActive.Dec()
	roomDuration.Observe(time.Since(started).Seconds())
}

func PeerJoined() { peersActive.Inc() }
func PeerLeft() { peersActive.Dec() }

func ConnectionOpened() { connections.Inc() }
func ConnectionClosed() { connections.Dec() }

func PushDropped(n int) { pushDropped.Add(float64(n)) }
