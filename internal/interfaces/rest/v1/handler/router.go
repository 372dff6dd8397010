package handler

import (
	"github.com/gin-gonic/gin"

	"go-notification-hub/internal/infrastructure/auth"
	"go-notification-hub/internal/infrastructure/config"
	"go-notification-hub/internal/infrastructure/hub"
	"go-notification-hub/internal/infrastructure/logger"
	"go-notification-hub/internal/port/inbound"
)

func InitNotificationRouter(
	logger logger.Logger,
	usecase inbound.NotificationUseCase,
	hubInstance *hub.Hub,
	gateway auth.Gateway,
	cfg *config.Config,
	rg *gin.RouterGroup,
) {
	notificationHandler := NewNotificationHandler(
		usecase,
		hubInstance,
		gateway,
		cfg.Auth.SecretHeader,
		cfg.Auth.AllowAnonymous,
		logger,
	)

	apiGroup := rg.Group("/api/v1/notifications")
	apiGroup.POST("/broadcast", notificationHandler.Broadcast)
	apiGroup.POST("/pong", notificationHandler.Pong)
	apiGroup.GET("/connections", notificationHandler.GetConnections)
}
