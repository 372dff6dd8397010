package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	maxIDAttempts      = 3
	rateLimiterIdleTTL = 10 * time.Minute
	rateLimiterSweep   = 5 * time.Minute
)

// Candidate describes a connection attempt that passed identity resolution.
type Candidate struct {
	OwnerID    string
	Privileged bool
	Sink       Sink
	RemoteIP   string
}

// Admission is the only path that inserts into the Registry. It checks the capacity bound
// before any mutation; on error the caller still owns the candidate's sink.
type Admission struct {
	registry *Registry
	clock    clockwork.Clock
	limiter  *connectRateLimiter
	newID    func() string
}

// NewAdmission builds an admission controller. connectRate is in connections per second
// per remote IP; zero disables rate limiting.
func NewAdmission(registry *Registry, clock clockwork.Clock, connectRate float64, connectBurst int) *Admission {
	a := &Admission{
		registry: registry,
		clock:    clock,
		newID:    uuid.NewString,
	}
	if connectRate > 0 {
		a.limiter = newConnectRateLimiter(clock, connectRate, connectBurst)
	}
	return a
}

// Admit assigns an unused id, runs greet (which may queue frames on the sink) and inserts
// the connection. greet runs before insertion so its frames precede any broadcast, and it
// runs at most once per candidate.
func (a *Admission) Admit(c Candidate, greet func(*Connection) error) (*Connection, error) {
	if a.limiter != nil && !a.limiter.allow(c.RemoteIP) {
		return nil, ErrRateLimited
	}
	if a.registry.Size() >= a.registry.Capacity() {
		return nil, ErrCapacityExceeded
	}

	owner := c.OwnerID
	if owner == "" {
		owner = AnonymousOwner
	}

	id, err := a.unusedID()
	if err != nil {
		return nil, err
	}

	conn := newConnection(id, owner, c.Privileged, c.Sink, a.clock.Now())
	if greet != nil {
		if err := greet(conn); err != nil {
			return nil, err
		}
	}

	// A collision here means another admission took the id after unusedID checked it;
	// the greeting already named this id, so the candidate is rejected rather than renamed.
	if err := a.registry.add(conn); err != nil {
		return nil, err
	}
	conn.transition(StateAdmitted, StateActive)
	return conn, nil
}

func (a *Admission) unusedID() (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := a.newID()
		if _, taken := a.registry.Get(id); !taken {
			return id, nil
		}
	}
	return "", errDuplicateID
}

// connectRateLimiter is a token bucket per remote IP.
type connectRateLimiter struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	limiters  map[string]*rateLimiterEntry
	rate      rate.Limit
	burst     int
	cleanupAt time.Time
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newConnectRateLimiter(clock clockwork.Clock, perSecond float64, burst int) *connectRateLimiter {
	return &connectRateLimiter{
		clock:     clock,
		limiters:  make(map[string]*rateLimiterEntry),
		rate:      rate.Limit(perSecond),
		burst:     burst,
		cleanupAt: clock.Now().Add(rateLimiterSweep),
	}
}

func (l *connectRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.cleanupAt) {
		cutoff := now.Add(-rateLimiterIdleTTL)
		for key, entry := range l.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(l.limiters, key)
			}
		}
		l.cleanupAt = now.Add(rateLimiterSweep)
	}

	entry, exists := l.limiters[ip]
	if !exists {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}
