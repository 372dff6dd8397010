package hub

import (
	"fmt"

	"go-notification-hub/internal/infrastructure/logger"
	"go-notification-hub/internal/infrastructure/metrics"
)

// RemovalReason says why a connection left the registry.
type RemovalReason string

const (
	ReasonAbort           RemovalReason = "abort"
	ReasonDeliveryFailure RemovalReason = "delivery_failure"
	ReasonStale           RemovalReason = "stale"
	ReasonShutdown        RemovalReason = "shutdown"
)

// Remover is the single close path shared by every component that ends connections.
type Remover func(id string, reason RemovalReason)

// Broadcaster routes events to matching registry entries. It never removes entries itself;
// failed recipients go through the Remover.
type Broadcaster struct {
	registry *Registry
	remove   Remover
	logger   logger.Logger
	metrics  *metrics.HubMetrics
}

func NewBroadcaster(registry *Registry, remove Remover, log logger.Logger, m *metrics.HubMetrics) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		remove:   remove,
		logger:   log.WithField("component", "broadcaster"),
		metrics:  m,
	}
}

// Broadcast delivers event to every matching connection in one pass and returns how many
// accepted it. A failing recipient is removed within the same pass.
func (b *Broadcaster) Broadcast(event Event) (delivered int) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.Panic("broadcast")
			b.logger.WithField("event_type", event.Type).Errorf("broadcast aborted: %v", r)
		}
	}()

	b.metrics.Event()
	frame := event.Frame()
	matched := 0

	b.registry.ForEach(func(conn *Connection) {
		if !event.Matches(conn) {
			return
		}
		matched++

		if err := conn.Send(frame); err != nil {
			b.metrics.Delivery(false)
			b.logger.WithFields(logger.Fields{
				"connection_id": conn.ID(),
				"owner_id":      conn.OwnerID(),
				"event_type":    event.Type,
			}).Warnf("delivery failed: %v", err)
			b.remove(conn.ID(), ReasonDeliveryFailure)
			return
		}
		b.metrics.Delivery(true)
		delivered++
	})

	b.logger.Debugf("event %s (%s) delivered to %d of %d matching connections",
		event.Type, describeTarget(event), delivered, matched)
	return delivered
}

func describeTarget(e Event) string {
	switch {
	case e.TargetOwnerID != "" && e.RequirePrivileged:
		return fmt.Sprintf("owner=%s privileged", e.TargetOwnerID)
	case e.TargetOwnerID != "":
		return "owner=" + e.TargetOwnerID
	case e.RequirePrivileged:
		return "privileged"
	default:
		return "all"
	}
}
