package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"go-notification-hub/internal/application/facade"
	"go-notification-hub/internal/infrastructure/auth"
	"go-notification-hub/internal/infrastructure/config"
	"go-notification-hub/internal/infrastructure/hub"
	"go-notification-hub/internal/infrastructure/logger"
	"go-notification-hub/internal/infrastructure/metrics"
	"go-notification-hub/internal/infrastructure/server"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "notification-hub",
		Short:        "Real-time notification hub over server-sent events",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(WithSignal(cmd.Context()), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML or JSON config file")
	return cmd
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.NewLogrusLogger(&cfg.Log)

	registry := metrics.NewRegistry()
	hubInstance := hub.New(
		hubConfig(cfg.Hub),
		log,
		hub.WithMetrics(metrics.NewHubMetrics(registry)),
	)

	// Start the hub first
	if err := hubInstance.Start(ctx); err != nil {
		return fmt.Errorf("start hub: %w", err)
	}

	gateway := newGateway(cfg.Auth)
	usecase := facade.NewNotificationApplicationService(hubInstance, cfg.Auth.InternalSecret, log)
	router := InitRouter(cfg, hubInstance, usecase, gateway, registry, log)

	httpSrv := server.NewHTTPServer(router, cfg.Server)
	app := newApplication(log, httpSrv, hubInstance, cfg.Server.ShutdownTimeout)
	log.Infof("listening on %s", cfg.Server.Addr)
	return app.Run(ctx)
}

func hubConfig(cfg config.HubConfig) hub.Config {
	return hub.Config{
		MaxConnections: cfg.MaxConnections,
		Liveness: hub.LivenessPolicy{
			Interval:           cfg.HeartbeatInterval,
			StaleThreshold:     cfg.StaleThreshold,
			RefreshOnHeartbeat: cfg.RefreshOnHeartbeat,
		},
		ConnectRate:  cfg.ConnectRate,
		ConnectBurst: cfg.ConnectBurst,
	}
}

// newGateway resolves cookie sessions first, then bearer tokens. A resolver without a
// configured secret is left out.
func newGateway(cfg config.AuthConfig) auth.Gateway {
	var gateways []auth.Gateway
	if cfg.SessionSecret != "" {
		store := auth.NewCookieStore(cfg.SessionSecret, false)
		gateways = append(gateways, auth.NewSessionResolver(store, cfg.SessionName))
	}
	if cfg.TokenSecret != "" {
		gateways = append(gateways, auth.NewTokenResolver(
			cfg.TokenSecret,
			cfg.TokenQueryParam,
			cfg.TokenCacheSize,
			cfg.TokenCacheTTL,
		))
	}
	return auth.NewChain(gateways...)
}

type Application struct {
	logger          logger.Logger
	httpSrv         server.Server
	hub             *hub.Hub
	shutdownTimeout time.Duration
}

func newApplication(
	logger logger.Logger,
	httpSrv server.Server,
	hubInstance *hub.Hub,
	shutdownTimeout time.Duration,
) *Application {
	return &Application{
		logger:          logger.WithField("app", "notification-hub"),
		httpSrv:         httpSrv,
		hub:             hubInstance,
		shutdownTimeout: shutdownTimeout,
	}
}

func (app *Application) Run(ctx context.Context) error {
	eg, gctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return app.httpSrv.Start(gctx)
	})

	eg.Go(func() error {
		<-gctx.Done()

		gracefulshutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			app.shutdownTimeout,
		)
		defer cancel()

		// Stop hub first so open streams return before the server drains.
		if err := app.hub.Stop(gracefulshutdownCtx); err != nil {
			app.logger.Errorf("failed to stop hub: %v", err)
		}

		return app.httpSrv.Stop(gracefulshutdownCtx)
	})

	return eg.Wait()
}

func WithSignal(pctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(pctx)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

		<-sigc

		cancel()
	}()

	return ctx
}
