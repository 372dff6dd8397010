package sse

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-notification-hub/internal/infrastructure/auth"
	"go-notification-hub/internal/infrastructure/hub"
	"go-notification-hub/internal/infrastructure/logger"
)

type ServerSentEventHandler struct {
	hub            *hub.Hub
	gateway        auth.Gateway
	allowAnonymous bool
	sendBuffer     int
	logger         logger.Logger
}

func NewServerSentEventHandler(
	hubInstance *hub.Hub,
	gateway auth.Gateway,
	allowAnonymous bool,
	sendBuffer int,
	logger logger.Logger,
) *ServerSentEventHandler {
	return &ServerSentEventHandler{
		hub:            hubInstance,
		gateway:        gateway,
		allowAnonymous: allowAnonymous,
		sendBuffer:     sendBuffer,
		logger:         logger.WithField("handler", "sse"),
	}
}

// Connect opens an event stream. The request goroutine drains the connection's queue
// until the client leaves, a write fails or the hub closes the connection.
func (h *ServerSentEventHandler) Connect(c *gin.Context) {
	if !h.hub.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}

	identity, err := auth.Caller(h.gateway, c.Request, h.allowAnonymous)
	if err != nil {
		h.logger.Warnf("stream rejected: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	sink := hub.NewStreamSink(h.sendBuffer)
	conn, err := h.hub.Open(hub.Candidate{
		OwnerID:    identity.OwnerID(hub.AnonymousOwner),
		Privileged: identity.IsPrivileged(),
		Sink:       sink,
		RemoteIP:   c.ClientIP(),
	})
	if err != nil {
		_ = sink.Close()
		status, message := AdmissionStatus(err)
		c.JSON(status, gin.H{"error": message})
		return
	}

	setStreamHeaders(c.Writer)
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	err = sink.Pump(ctx, c.Writer, http.NewResponseController(c.Writer))
	switch {
	case err == nil:
		// Closed by the hub: eviction, delivery failure or shutdown.
	case ctx.Err() != nil:
		h.hub.Close(conn.ID(), hub.ReasonAbort)
	default:
		h.logger.WithField("connection_id", conn.ID()).Warnf("stream write failed: %v", err)
		h.hub.Close(conn.ID(), hub.ReasonDeliveryFailure)
	}
}

// AdmissionStatus maps a rejected admission onto an HTTP status and message.
func AdmissionStatus(err error) (int, string) {
	switch {
	case errors.Is(err, hub.ErrCapacityExceeded):
		return http.StatusServiceUnavailable, "Too many connections, retry later"
	case errors.Is(err, hub.ErrRateLimited):
		return http.StatusTooManyRequests, "Too many connection attempts"
	case errors.Is(err, hub.ErrHubNotRunning):
		return http.StatusServiceUnavailable, "Service temporarily unavailable"
	default:
		return http.StatusInternalServerError, "Failed to open connection"
	}
}

func setStreamHeaders(w http.ResponseWriter) {
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache, no-transform")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
}
