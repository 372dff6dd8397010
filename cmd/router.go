package main

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"go-notification-hub/internal/infrastructure/auth"
	"go-notification-hub/internal/infrastructure/config"
	"go-notification-hub/internal/infrastructure/hub"
	"go-notification-hub/internal/infrastructure/logger"
	"go-notification-hub/internal/infrastructure/metrics"
	"go-notification-hub/internal/interfaces/rest/v1/handler"
	"go-notification-hub/internal/interfaces/sse"
	"go-notification-hub/internal/interfaces/websocket"
	"go-notification-hub/internal/port/inbound"
)

func InitRouter(
	cfg *config.Config,
	hubInstance *hub.Hub,
	usecase inbound.NotificationUseCase,
	gateway auth.Gateway,
	registry *prometheus.Registry,
	log logger.Logger,
) http.Handler {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg)))

	rootGroup := router.Group("")

	// Health check endpoint
	rootGroup.GET("/hub/status", func(c *gin.Context) {
		isRunning := hubInstance.IsRunning()
		status := "healthy"
		code := http.StatusOK
		if !isRunning {
			status = "unavailable"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":      status,
			"hub_running": isRunning,
			"connections": hubInstance.ConnectionCount(),
			"capacity":    hubInstance.Capacity(),
		})
	})
	rootGroup.GET("/metrics", gin.WrapH(metrics.Handler(registry)))

	handler.InitNotificationRouter(log, usecase, hubInstance, gateway, cfg, rootGroup)
	sse.InitSSERouter(log, hubInstance, gateway, cfg, rootGroup)
	websocket.InitWebSocketRouter(log, hubInstance, gateway, cfg, rootGroup)

	return router
}

func corsConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.DefaultConfig()
	origins := cfg.CORS.AllowOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
		corsCfg.AllowCredentials = true
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsCfg.AllowHeaders = []string{
		"Origin", "Content-Type", "Authorization", "Cache-Control", cfg.Auth.SecretHeader,
	}
	corsCfg.AllowWebSockets = true
	return corsCfg
}
