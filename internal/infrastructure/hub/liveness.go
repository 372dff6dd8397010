package hub

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"go-notification-hub/internal/infrastructure/logger"
	"go-notification-hub/internal/infrastructure/metrics"
)

// LivenessPolicy configures the monitor. With RefreshOnHeartbeat false, only admission and
// inbound client interaction (Hub.Touch) move lastLiveness; a client that accepts writes but
// never answers is evicted once StaleThreshold passes.
type LivenessPolicy struct {
	Interval           time.Duration
	StaleThreshold     time.Duration
	RefreshOnHeartbeat bool
}

type SweepResult struct {
	Pinged  int
	Evicted int
	Failed  int
}

type LivenessMonitor struct {
	registry *Registry
	policy   LivenessPolicy
	clock    clockwork.Clock
	remove   Remover
	logger   logger.Logger
	metrics  *metrics.HubMetrics
}

func NewLivenessMonitor(
	registry *Registry,
	policy LivenessPolicy,
	clock clockwork.Clock,
	remove Remover,
	log logger.Logger,
	m *metrics.HubMetrics,
) *LivenessMonitor {
	return &LivenessMonitor{
		registry: registry,
		policy:   policy,
		clock:    clock,
		remove:   remove,
		logger:   log.WithField("component", "liveness"),
		metrics:  m,
	}
}

// Run sweeps every policy interval until ctx is done.
func (m *LivenessMonitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.policy.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			m.Sweep()
		case <-ctx.Done():
			m.logger.Info("liveness monitor stopped")
			return
		}
	}
}

// Sweep evicts connections idle past the stale threshold and pings the rest. A failed
// ping removes the connection as a delivery failure, not as an eviction.
func (m *LivenessMonitor) Sweep() (res SweepResult) {
	defer func() {
		if r := recover(); r != nil {
			m.metrics.Panic("sweep")
			m.logger.Errorf("sweep aborted: %v", r)
		}
	}()

	now := m.clock.Now()
	ping := PingFrame(now)

	m.registry.ForEach(func(conn *Connection) {
		idle := now.Sub(conn.LastLiveness())
		if idle > m.policy.StaleThreshold {
			m.logger.WithFields(logger.Fields{
				"connection_id": conn.ID(),
				"owner_id":      conn.OwnerID(),
				"idle":          idle.String(),
			}).Info("evicting stale connection")
			m.remove(conn.ID(), ReasonStale)
			res.Evicted++
			return
		}

		if err := conn.Send(ping); err != nil {
			m.metrics.Heartbeat(false)
			m.logger.WithField("connection_id", conn.ID()).Warnf("heartbeat failed: %v", err)
			m.remove(conn.ID(), ReasonDeliveryFailure)
			res.Failed++
			return
		}
		m.metrics.Heartbeat(true)
		if m.policy.RefreshOnHeartbeat {
			conn.touch(now)
		}
		res.Pinged++
	})

	m.metrics.Sweep()
	if res.Evicted > 0 || res.Failed > 0 {
		m.logger.Infof("sweep: %d pinged, %d evicted, %d failed", res.Pinged, res.Evicted, res.Failed)
	}
	return res
}
