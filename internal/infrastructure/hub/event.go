package hub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-contrib/sse"
)

// AnonymousOwner is the owner id given to connections admitted without an identity.
const AnonymousOwner = "anonymous"

const (
	FrameTypeConnected = "connected"
	FrameTypePing      = "ping"
	FrameTypePong      = "pong"
)

// Event is the unit of broadcast. Payload is opaque beyond being JSON serializable.
// An empty TargetOwnerID means no owner restriction.
type Event struct {
	Type              string
	Payload           map[string]any
	TargetOwnerID     string
	RequirePrivileged bool
}

// Matches reports whether conn is a recipient of e:
//  1. owner target set: owner must match, and privilege too if required
//  2. privilege required without owner target: privileged connections only
//  3. otherwise every connection
func (e Event) Matches(conn *Connection) bool {
	if e.TargetOwnerID != "" {
		return conn.OwnerID() == e.TargetOwnerID && (!e.RequirePrivileged || conn.IsPrivileged())
	}
	if e.RequirePrivileged {
		return conn.IsPrivileged()
	}
	return true
}

// Frame builds the client-facing object: payload keys plus "type". The event type wins
// over a "type" key inside the payload.
func (e Event) Frame() Frame {
	f := make(Frame, len(e.Payload)+1)
	for k, v := range e.Payload {
		f[k] = v
	}
	f["type"] = e.Type
	return f
}

// Frame is one JSON object written to a client. Frames are shared between recipients
// of the same broadcast and must not be mutated after construction.
type Frame map[string]any

func (f Frame) Type() string {
	t, _ := f["type"].(string)
	return t
}

func ConnectedFrame(connectionID string) Frame {
	return Frame{"type": FrameTypeConnected, "connectionId": connectionID}
}

// PingFrame carries the send time in unix milliseconds.
func PingFrame(now time.Time) Frame {
	return Frame{"type": FrameTypePing, "timestamp": now.UnixMilli()}
}

// EncodeFrame writes f as a single "data: <json>\n\n" stream block with one Write call.
// sse.Encode drops write errors for string data, so the block is rendered into a buffer
// first and the error comes from w itself.
func EncodeFrame(w io.Writer, f Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	var buf bytes.Buffer
	// sse writes "data:" without a separator; the leading space yields "data: <json>".
	if err := sse.Encode(&buf, sse.Event{Data: " " + string(b)}); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}
