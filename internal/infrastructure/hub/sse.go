package hub

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	TransportSSE       = "sse"
	streamWriteTimeout = 10 * time.Second
)

// StreamControl is the part of http.ResponseController that Pump needs.
type StreamControl interface {
	SetWriteDeadline(deadline time.Time) error
	Flush() error
}

// StreamSink queues frames for one event-stream response. The request goroutine drains it
// with Pump, so the ResponseWriter is only ever written from one goroutine.
type StreamSink struct {
	queue     chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

func NewStreamSink(buffer int) *StreamSink {
	return &StreamSink{
		queue: make(chan Frame, buffer),
		done:  make(chan struct{}),
	}
}

func (s *StreamSink) Send(frame Frame) error {
	select {
	case <-s.done:
		return ErrSinkClosed
	default:
	}

	select {
	case s.queue <- frame:
		return nil
	default:
		return ErrSinkFull
	}
}

func (s *StreamSink) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *StreamSink) Transport() string { return TransportSSE }

// Done is closed once the sink is closed.
func (s *StreamSink) Done() <-chan struct{} { return s.done }

// Pump writes queued frames in order until the sink closes or ctx ends. Each frame gets
// its own write deadline, so a stalled client surfaces as a write error instead of pinning
// the goroutine. It returns the first write or flush error, ctx.Err() on cancellation and
// nil when the sink was closed. ctl may be nil.
func (s *StreamSink) Pump(ctx context.Context, w io.Writer, ctl StreamControl) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case frame := <-s.queue:
			if ctl != nil {
				err := ctl.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
				if err != nil && !errors.Is(err, http.ErrNotSupported) {
					return err
				}
			}
			if err := EncodeFrame(w, frame); err != nil {
				return err
			}
			if ctl != nil {
				if err := ctl.Flush(); err != nil {
					return err
				}
			}
		}
	}
}
