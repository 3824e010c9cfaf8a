package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quickchat/internal/config"
	"quickchat/internal/database"
	"quickchat/internal/engine"
	"quickchat/internal/fanout"
	"quickchat/internal/handlers"
	"quickchat/internal/middleware"
	"quickchat/internal/presence"
	"quickchat/internal/utils"
	"quickchat/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

// app holds the components whose lifetimes are tied to the process.
type app struct {
	cfg      *config.Config
	log      *zap.SugaredLogger
	store    database.Store
	metrics  *utils.MetricsCollector
	hub      *websocket.Hub
	registry *presence.Registry
	system   *actor.ActorSystem
	engine   *engine.Engine
	server   *handlers.Server
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*app, error) {
	store, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	metrics := utils.NewMetricsCollector()

	hub := websocket.NewHub(logger)
	hub.OnCount(metrics.SetOpenSessions)

	registry := presence.NewRegistry(hub, logger)
	registry.OnChange(metrics.SetOnlineUsers)

	dispatcher := fanout.NewDispatcher(registry, metrics, logger)

	system := actor.NewActorSystem()
	chatEngine := engine.NewEngine(system, engine.Options{
		Store:          store,
		Dispatcher:     dispatcher,
		Registry:       registry,
		Metrics:        metrics,
		RequestTimeout: cfg.Server.RequestTimeout,
		StoreTimeout:   cfg.Database.StoreTimeout,
		Log:            logger,
	})

	server := handlers.NewServer(handlers.Options{
		Engine:         chatEngine,
		Tokens:         middleware.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Metrics:        metrics,
		Hub:            hub,
		Registry:       registry,
		AllowedOrigins: cfg.AllowedOrigins,
		MetricsEnabled: cfg.Server.MetricsEnabled,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		RequestTimeout: cfg.Server.RequestTimeout,
		SendBuffer:     cfg.Socket.SendBuffer,
		Log:            logger,
	})

	return &app{
		cfg:      cfg,
		log:      logger,
		store:    store,
		metrics:  metrics,
		hub:      hub,
		registry: registry,
		system:   system,
		engine:   chatEngine,
		server:   server,
	}, nil
}

// close tears down everything behind the HTTP listener, in dependency order.
func (a *app) close(ctx context.Context) {
	a.hub.Shutdown()
	a.registry.Reset()
	a.engine.Shutdown()
	if err := a.store.Close(ctx); err != nil {
		a.log.Warnw("failed to close store", "error", err)
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := utils.NewLogger(cfg.LogLevel, cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatalw("failed to start", "error", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infow("starting server", "addr", httpServer.Addr, "store", cfg.Database.Type)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("server failed", "error", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown; the hub
	// closes them in a.close.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("http shutdown incomplete", "error", err)
	}
	a.close(shutdownCtx)
	logger.Info("server stopped")
}
