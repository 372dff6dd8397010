package sse

import (
	"github.com/gin-gonic/gin"

	"go-notification-hub/internal/infrastructure/auth"
	"go-notification-hub/internal/infrastructure/config"
	"go-notification-hub/internal/infrastructure/hub"
	"go-notification-hub/internal/infrastructure/logger"
)

func InitSSERouter(
	logger logger.Logger,
	hubInstance *hub.Hub,
	gateway auth.Gateway,
	cfg *config.Config,
	rg *gin.RouterGroup,
) {
	sseHandler := NewServerSentEventHandler(
		hubInstance,
		gateway,
		cfg.Auth.AllowAnonymous,
		cfg.Hub.SendBuffer,
		logger,
	)

	rg.GET("/api/v1/notifications/stream", sseHandler.Connect)
}
