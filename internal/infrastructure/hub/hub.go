package hub

import (
	"context"
	"errors"
	"sync"

	"github.com/jonboulle/clockwork"

	"go-notification-hub/internal/infrastructure/logger"
	"go-notification-hub/internal/infrastructure/metrics"
)

type Config struct {
	MaxConnections int
	Liveness       LivenessPolicy
	ConnectRate    float64
	ConnectBurst   int
}

type Option func(*Hub)

func WithClock(clock clockwork.Clock) Option {
	return func(h *Hub) { h.clock = clock }
}

func WithMetrics(m *metrics.HubMetrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// Hub owns the registry and wires admission, broadcast and liveness around it. Close is
// the only removal path.
type Hub struct {
	registry    *Registry
	admission   *Admission
	broadcaster *Broadcaster
	monitor     *LivenessMonitor

	clock   clockwork.Clock
	logger  logger.Logger
	metrics *metrics.HubMetrics

	running   bool
	runningMu sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
}

func New(cfg Config, log logger.Logger, opts ...Option) *Hub {
	h := &Hub{
		clock:  clockwork.NewRealClock(),
		logger: log.WithField("component", "hub"),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.registry = NewRegistry(cfg.MaxConnections)
	h.admission = NewAdmission(h.registry, h.clock, cfg.ConnectRate, cfg.ConnectBurst)
	h.broadcaster = NewBroadcaster(h.registry, h.remove, log, h.metrics)
	h.monitor = NewLivenessMonitor(h.registry, cfg.Liveness, h.clock, h.remove, log, h.metrics)
	return h
}

// Start launches the liveness monitor.
func (h *Hub) Start(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}

	mctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})
	h.running = true

	go func() {
		defer close(h.done)
		h.monitor.Run(mctx)
	}()

	h.logger.Infof("hub started (capacity %d)", h.registry.Capacity())
	return nil
}

// Stop halts the monitor and closes every connection with reason shutdown.
func (h *Hub) Stop(ctx context.Context) error {
	h.runningMu.Lock()
	if !h.running {
		h.runningMu.Unlock()
		return nil
	}
	h.running = false
	h.cancel()
	done := h.done
	h.runningMu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		h.logger.Warn("liveness monitor did not stop before deadline")
	}

	for _, conn := range h.registry.Snapshot() {
		h.Close(conn.ID(), ReasonShutdown)
	}

	h.logger.Info("hub stopped")
	return ctx.Err()
}

func (h *Hub) IsRunning() bool {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()
	return h.running
}

// Open admits c and queues the "connected" frame ahead of any other frame. On error the
// caller keeps ownership of c.Sink. The running lock is held across admission so Stop
// cannot snapshot the registry between the running check and the insert.
func (h *Hub) Open(c Candidate) (*Connection, error) {
	h.runningMu.RLock()
	if !h.running {
		h.runningMu.RUnlock()
		return nil, ErrHubNotRunning
	}
	conn, err := h.admission.Admit(c, func(conn *Connection) error {
		return conn.Send(ConnectedFrame(conn.ID()))
	})
	if err == nil {
		h.metrics.ConnectionOpened()
	}
	h.runningMu.RUnlock()

	if err != nil {
		h.metrics.Admission(admissionOutcome(err))
		h.logger.WithFields(logger.Fields{
			"owner_id":  c.OwnerID,
			"remote_ip": c.RemoteIP,
		}).Warnf("connection rejected: %v", err)
		return nil, err
	}

	h.metrics.Admission("accepted")
	h.logger.WithFields(logger.Fields{
		"connection_id": conn.ID(),
		"owner_id":      conn.OwnerID(),
		"privileged":    conn.IsPrivileged(),
		"transport":     conn.Transport(),
	}).Info("connection admitted")
	return conn, nil
}

// Close removes id from the registry and closes its sink. It reports whether this call
// performed the removal; repeated calls are no-ops.
func (h *Hub) Close(id string, reason RemovalReason) bool {
	conn, removed := h.registry.Remove(id)
	if !removed {
		return false
	}

	conn.state.Store(int32(StateClosing))
	if err := conn.sink.Close(); err != nil {
		h.logger.WithField("connection_id", id).Warnf("close sink: %v", err)
	}
	conn.state.Store(int32(StateClosed))

	h.metrics.Removal(string(reason))
	h.metrics.ConnectionClosed()
	h.logger.WithFields(logger.Fields{
		"connection_id": id,
		"owner_id":      conn.OwnerID(),
		"reason":        string(reason),
		"lifetime":      h.clock.Since(conn.CreatedAt()).String(),
	}).Info("connection removed")
	return true
}

func (h *Hub) remove(id string, reason RemovalReason) {
	h.Close(id, reason)
}

// Broadcast fans event out to matching connections. The count is informational only.
func (h *Hub) Broadcast(ctx context.Context, event Event) (int, error) {
	if !h.IsRunning() {
		return 0, ErrHubNotRunning
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return h.broadcaster.Broadcast(event), nil
}

// Touch records inbound client activity on id. ownerID must own the connection.
func (h *Hub) Touch(id, ownerID string) error {
	conn, exists := h.registry.Get(id)
	if !exists {
		return ErrConnectionNotFound
	}
	if conn.OwnerID() != ownerID {
		return ErrNotOwner
	}
	conn.touch(h.clock.Now())
	return nil
}

// Sweep runs one liveness pass immediately.
func (h *Hub) Sweep() SweepResult {
	return h.monitor.Sweep()
}

func (h *Hub) GetConnection(id string) (*Connection, bool) {
	return h.registry.Get(id)
}

func (h *Hub) Connections() []ConnectionInfo {
	snapshot := h.registry.Snapshot()
	infos := make([]ConnectionInfo, 0, len(snapshot))
	for _, conn := range snapshot {
		infos = append(infos, conn.Info())
	}
	return infos
}

func (h *Hub) ConnectionCount() int {
	return h.registry.Size()
}

func (h *Hub) Capacity() int {
	return h.registry.Capacity()
}

func admissionOutcome(err error) string {
	switch {
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "failed"
	}
}
