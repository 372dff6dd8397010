package websocket

import (
	"github.com/gin-gonic/gin"

	"go-notification-hub/internal/infrastructure/auth"
	"go-notification-hub/internal/infrastructure/config"
	"go-notification-hub/internal/infrastructure/hub"
	"go-notification-hub/internal/infrastructure/logger"
)

// InitWebSocketRouter initializes WebSocket routes
func InitWebSocketRouter(
	logger logger.Logger,
	hubInstance *hub.Hub,
	gateway auth.Gateway,
	cfg *config.Config,
	rg *gin.RouterGroup,
) {
	wsHandler := NewWebSocketHandler(
		hubInstance,
		gateway,
		cfg.Auth.AllowAnonymous,
		cfg.Hub.SendBuffer,
		cfg.CORS.AllowOrigins,
		logger,
	)

	rg.GET("/ws", wsHandler.Connect)
}
