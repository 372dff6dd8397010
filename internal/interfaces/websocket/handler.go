package websocket

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"go-notification-hub/internal/infrastructure/auth"
	"go-notification-hub/internal/infrastructure/hub"
	"go-notification-hub/internal/infrastructure/logger"
	"go-notification-hub/internal/interfaces/sse"
)

// WebSocketHandler opens hub connections over websocket. Frames match the event stream;
// inbound pongs refresh liveness.
type WebSocketHandler struct {
	hub            *hub.Hub
	gateway        auth.Gateway
	allowAnonymous bool
	sendBuffer     int
	logger         logger.Logger
	upgrader       websocket.Upgrader
}

func NewWebSocketHandler(
	hubInstance *hub.Hub,
	gateway auth.Gateway,
	allowAnonymous bool,
	sendBuffer int,
	allowOrigins []string,
	logger logger.Logger,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hubInstance,
		gateway:        gateway,
		allowAnonymous: allowAnonymous,
		sendBuffer:     sendBuffer,
		logger:         logger.WithField("handler", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowOrigins),
		},
	}
}

func originChecker(allowOrigins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowOrigins, "*") {
			return true
		}
		return slices.Contains(allowOrigins, origin)
	}
}

func (h *WebSocketHandler) Connect(c *gin.Context) {
	if !h.hub.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}

	identity, err := auth.Caller(h.gateway, c.Request, h.allowAnonymous)
	if err != nil {
		h.logger.Warnf("websocket rejected: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	// Fast path; Open below is the authoritative check.
	if h.hub.ConnectionCount() >= h.hub.Capacity() {
		status, message := sse.AdmissionStatus(hub.ErrCapacityExceeded)
		c.JSON(status, gin.H{"error": message})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("failed to upgrade connection: %v", err)
		return
	}
	defer ws.Close()

	sink := hub.NewWebSocketSink(ws, h.sendBuffer)
	ownerID := identity.OwnerID(hub.AnonymousOwner)
	conn, err := h.hub.Open(hub.Candidate{
		OwnerID:    ownerID,
		Privileged: identity.IsPrivileged(),
		Sink:       sink,
		RemoteIP:   c.ClientIP(),
	})
	if err != nil {
		_, message := sse.AdmissionStatus(err)
		_ = ws.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, message),
		)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		err := sink.WritePump(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			h.logger.WithField("connection_id", conn.ID()).Warnf("websocket write failed: %v", err)
			h.hub.Close(conn.ID(), hub.ReasonDeliveryFailure)
		}
		// Unblocks ReadLoop once the writer is finished.
		_ = ws.Close()
	}()

	err = sink.ReadLoop(func() {
		if err := h.hub.Touch(conn.ID(), ownerID); err != nil {
			h.logger.WithField("connection_id", conn.ID()).Debugf("pong ignored: %v", err)
		}
	})
	h.logger.WithField("connection_id", conn.ID()).Debugf("websocket read loop ended: %v", err)

	h.hub.Close(conn.ID(), hub.ReasonAbort)
	cancel()
	<-writerDone
}
