package hub

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"go-notification-hub/internal/infrastructure/logger"
	"go-notification-hub/internal/infrastructure/metrics"
)

type mockLogger struct{}

func (m *mockLogger) Debug(msg string)                              {}
func (m *mockLogger) Debugf(format string, args ...any)             {}
func (m *mockLogger) Info(msg string)                               {}
func (m *mockLogger) Infof(format string, args ...any)              {}
func (m *mockLogger) Warn(msg string)                               {}
func (m *mockLogger) Warnf(format string, args ...any)              {}
func (m *mockLogger) Error(msg string)                              {}
func (m *mockLogger) Errorf(format string, args ...any)             {}
func (m *mockLogger) Fatal(msg string)                              {}
func (m *mockLogger) Fatalf(format string, args ...any)             {}
func (m *mockLogger) WithField(key string, value any) logger.Logger { return m }
func (m *mockLogger) WithFields(fields logger.Fields) logger.Logger { return m }
func (m *mockLogger) WithContext(ctx context.Context) logger.Logger { return m }
func (m *mockLogger) SetLevel(level logger.Level)                   {}
func (m *mockLogger) SetOutput(output io.Writer)                    {}

var errBrokenPipe = errors.New("broken pipe")

// recordingSink keeps every frame it accepts.
type recordingSink struct {
	mu          sync.Mutex
	frames      []Frame
	closed      bool
	closeCalls  int
	sendErr     error
	panicOnSend bool
}

func (s *recordingSink) Send(frame Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	if s.panicOnSend {
		panic("sink exploded")
	}
	if s.sendErr != nil {
		return s.sendErr
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closeCalls++
	return nil
}

func (s *recordingSink) Transport() string { return "mock" }

func (s *recordingSink) failWith(err error) {
	s.mu.Lock()
	s.sendErr = err
	s.mu.Unlock()
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		out = append(out, f.Type())
	}
	return out
}

func (s *recordingSink) count(frameType string) int {
	n := 0
	for _, t := range s.types() {
		if t == frameType {
			n++
		}
	}
	return n
}

func (s *recordingSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type testHub struct {
	*Hub
	clock   *clockwork.FakeClock
	metrics *metrics.HubMetrics
}

// defaultTestConfig keeps the background ticker out of the way; tests call Sweep directly.
func defaultTestConfig(capacity int) Config {
	return Config{
		MaxConnections: capacity,
		Liveness: LivenessPolicy{
			Interval:       time.Hour,
			StaleThreshold: 60 * time.Second,
		},
	}
}

func newTestHub(t *testing.T, cfg Config) *testHub {
	t.Helper()
	clock := clockwork.NewFakeClock()
	m := metrics.NewHubMetrics(prometheus.NewRegistry())
	h := New(cfg, &mockLogger{}, WithClock(clock), WithMetrics(m))
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() { _ = h.Stop(context.Background()) })
	return &testHub{Hub: h, clock: clock, metrics: m}
}

func (th *testHub) open(t *testing.T, owner string, privileged bool) (*Connection, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	conn, err := th.Open(Candidate{OwnerID: owner, Privileged: privileged, Sink: sink, RemoteIP: "10.0.0.1"})
	require.NoError(t, err)
	return conn, sink
}
