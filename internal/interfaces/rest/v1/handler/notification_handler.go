package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-notification-hub/internal/infrastructure/auth"
	"go-notification-hub/internal/infrastructure/hub"
	"go-notification-hub/internal/infrastructure/logger"
	"go-notification-hub/internal/port/inbound"
)

type NotificationHandler struct {
	usecase        inbound.NotificationUseCase
	hub            *hub.Hub
	gateway        auth.Gateway
	secretHeader   string
	allowAnonymous bool
	logger         logger.Logger
}

type PongRequest struct {
	ConnectionID string `json:"connectionId" binding:"required"`
}

func NewNotificationHandler(
	usecase inbound.NotificationUseCase,
	hubInstance *hub.Hub,
	gateway auth.Gateway,
	secretHeader string,
	allowAnonymous bool,
	logger logger.Logger,
) *NotificationHandler {
	return &NotificationHandler{
		usecase:        usecase,
		hub:            hubInstance,
		gateway:        gateway,
		secretHeader:   secretHeader,
		allowAnonymous: allowAnonymous,
		logger:         logger.WithField("handler", "notification"),
	}
}

// Broadcast accepts an event from an internal service or a privileged session.
func (h *NotificationHandler) Broadcast(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	resolve := func() (*auth.Identity, error) { return h.gateway.Resolve(c.Request) }
	ack, err := h.usecase.Submit(c.Request.Context(), inbound.IngressRequest{
		Secret:   c.GetHeader(h.secretHeader),
		Identity: resolve,
		Body:     body,
	})
	if err != nil {
		switch inbound.KindOf(err) {
		case inbound.KindUnauthorized:
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		case inbound.KindInvalidPayload:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event: type and payload are required"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to broadcast event"})
		}
		return
	}

	c.JSON(http.StatusOK, ack)
}

// Pong refreshes liveness for a stream connection owned by the caller.
func (h *NotificationHandler) Pong(c *gin.Context) {
	identity, err := auth.Caller(h.gateway, c.Request, h.allowAnonymous)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req PongRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "connectionId is required"})
		return
	}

	err = h.hub.Touch(req.ConnectionID, identity.OwnerID(hub.AnonymousOwner))
	switch {
	case errors.Is(err, hub.ErrConnectionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown connection"})
	case errors.Is(err, hub.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "Connection belongs to another user"})
	case err != nil:
		h.logger.Errorf("pong for %s failed: %v", req.ConnectionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record pong"})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// GetConnections lists open connections for privileged callers.
func (h *NotificationHandler) GetConnections(c *gin.Context) {
	identity, err := h.gateway.Resolve(c.Request)
	if err != nil || identity == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	if !identity.Privileged {
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin privileges required"})
		return
	}

	connections := h.hub.Connections()
	c.JSON(http.StatusOK, gin.H{
		"total_connections": len(connections),
		"capacity":          h.hub.Capacity(),
		"connections":       connections,
		"hub_running":       h.hub.IsRunning(),
	})
}
