package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const TransportWebSocket = "websocket"

const (
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 4096
)

// WebSocketSink carries the same frames as StreamSink over a websocket. WritePump is the
// only writer on the underlying conn.
type WebSocketSink struct {
	conn      *websocket.Conn
	queue     chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

func NewWebSocketSink(conn *websocket.Conn, buffer int) *WebSocketSink {
	return &WebSocketSink{
		conn:  conn,
		queue: make(chan Frame, buffer),
		done:  make(chan struct{}),
	}
}

func (s *WebSocketSink) Send(frame Frame) error {
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

// Close stops WritePump, which then sends a close frame. It does not touch the conn.
func (s *WebSocketSink) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *WebSocketSink) Transport() string { return TransportWebSocket }

func (s *WebSocketSink) Done() <-chan struct{} { return s.done }

// WritePump writes queued frames as text messages. Ping frames are followed by a ping
// control message so browsers answer with a pong on their own.
func (s *WebSocketSink) WritePump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			_ = s.conn.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			)
			return nil
		case frame := <-s.queue:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := s.conn.WriteJSON(frame); err != nil {
				return err
			}
			if frame.Type() == FrameTypePing {
				deadline := time.Now().Add(wsWriteTimeout)
				if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return err
				}
			}
		}
	}
}

// ReadLoop consumes inbound messages until the peer goes away. Pong control messages and
// {"type":"pong"} text messages invoke onPong.
func (s *WebSocketSink) ReadLoop(onPong func()) error {
	s.conn.SetReadLimit(wsReadLimit)
	s.conn.SetPongHandler(func(string) error {
		onPong()
		return nil
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &msg) == nil && msg.Type == FrameTypePong {
			onPong()
		}
	}
}
