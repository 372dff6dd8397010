package hub

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveness_EvictsOnlyStaleConnections(t *testing.T) {
	th := newTestHub(t, defaultTestConfig(10))
	old, oldSink := th.open(t, "u1", false)

	th.clock.Advance(40 * time.Second)
	fresh, freshSink := th.open(t, "u2", false)

	th.clock.Advance(21 * time.Second) // old idle 61s, fresh idle 21s
	res := th.Sweep()

	assert.Equal(t, SweepResult{Pinged: 1, Evicted: 1}, res)
	_, exists := th.GetConnection(old.ID())
	assert.False(t, exists)
	assert.True(t, oldSink.isClosed())
	assert.Zero(t, oldSink.count(FrameTypePing), "evicted connections are not pinged")

	_, exists = th.GetConnection(fresh.ID())
	assert.True(t, exists)
	assert.Equal(t, 1, freshSink.count(FrameTypePing))
	assert.Equal(t, 1.0, testutil.ToFloat64(th.metrics.Removals.WithLabelValues("stale")))
	assert.Equal(t, 0.0, testutil.ToFloat64(th.metrics.Removals.WithLabelValues("delivery_failure")))
}

func TestLiveness_ThresholdIsExclusive(t *testing.T) {
	th := newTestHub(t, defaultTestConfig(10))
	conn, _ := th.open(t, "u1", false)

	th.clock.Advance(60 * time.Second)
	th.Sweep()
	_, exists := th.GetConnection(conn.ID())
	assert.True(t, exists, "exactly at threshold is not stale")
}

func TestLiveness_HeartbeatFailureIsDeliveryFailure(t *testing.T) {
	th := newTestHub(t, defaultTestConfig(10))
	conn, sink := th.open(t, "u1", false)
	sink.failWith(errBrokenPipe)

	res := th.Sweep()
	assert.Equal(t, SweepResult{Failed: 1}, res)
	_, exists := th.GetConnection(conn.ID())
	assert.False(t, exists)
	assert.Equal(t, 1.0, testutil.ToFloat64(th.metrics.Removals.WithLabelValues("delivery_failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(th.metrics.Heartbeats.WithLabelValues("failed")))
}

func TestLiveness_HeartbeatDoesNotRefreshByDefault(t *testing.T) {
	th := newTestHub(t, defaultTestConfig(10))
	conn, sink := th.open(t, "u1", false)
	admitted := conn.LastLiveness()

	th.clock.Advance(25 * time.Second)
	th.Sweep()
	th.clock.Advance(25 * time.Second)
	th.Sweep()
	assert.Equal(t, admitted, conn.LastLiveness())
	assert.Equal(t, 2, sink.count(FrameTypePing))

	th.clock.Advance(25 * time.Second)
	th.Sweep()
	_, exists := th.GetConnection(conn.ID())
	assert.False(t, exists, "a client that never answers is evicted")
}

func TestLiveness_TouchKeepsConnectionAlive(t *testing.T) {
	th := newTestHub(t, defaultTestConfig(10))
	conn, _ := th.open(t, "u1", false)

	for i := 0; i < 5; i++ {
		th.clock.Advance(25 * time.Second)
		require.NoError(t, th.Touch(conn.ID(), "u1"))
		th.Sweep()
	}
	_, exists := th.GetConnection(conn.ID())
	assert.True(t, exists)
}

func TestLiveness_RefreshOnHeartbeatPolicy(t *testing.T) {
	cfg := defaultTestConfig(10)
	cfg.Liveness.RefreshOnHeartbeat = true
	th := newTestHub(t, cfg)
	conn, _ := th.open(t, "u1", false)

	for i := 0; i < 5; i++ {
		th.clock.Advance(25 * time.Second)
		th.Sweep()
	}
	_, exists := th.GetConnection(conn.ID())
	assert.True(t, exists)
	assert.Equal(t, th.clock.Now(), conn.LastLiveness())
}

func TestLiveness_PingFrameShape(t *testing.T) {
	th := newTestHub(t, defaultTestConfig(10))
	_, sink := th.open(t, "u1", false)
	th.Sweep()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	ping := sink.frames[len(sink.frames)-1]
	assert.Equal(t, FrameTypePing, ping.Type())
	assert.Equal(t, th.clock.Now().UnixMilli(), ping["timestamp"])
}
