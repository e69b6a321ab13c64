package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"go.uber.org/zap"

	"callboard/internal/api"
	"callboard/internal/auth"
	"callboard/internal/calls"
	"callboard/internal/config"
	"callboard/internal/database"
	"callboard/internal/hub"
	"callboard/internal/metrics"
	"callboard/internal/router"
	"callboard/internal/websocket"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config      *config.Config
	logger      *zap.Logger
	dbManager   *database.Manager
	registry    *websocket.Registry
	notifier    *hub.Hub
	wsHandler   *websocket.Handler
	callService *calls.Service
	apiServer   *api.Server
	httpServer  *http.Server
	listener    net.Listener
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Database → Registry → Router → Hub → Calls → API → HTTP
func NewApplication(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Validate configuration before component initialization
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	m, err := metrics.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	resolver, err := auth.NewResolver(cfg.Auth.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize identity resolver: %w", err)
	}

	// STEP 1: Database manager opens the store, migrates and validates the schema
	dbManager, err := database.NewManager(cfg.Store(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	// STEP 2: Registry, router and hub carry classroom notifications
	registry := websocket.NewRegistry()
	messageRouter := router.NewRouter(registry, m, logger)
	notifier := hub.NewHub(messageRouter, cfg.Hub.QueueSize, logger)

	// STEP 3: Call service is the only writer of call state
	callService := calls.NewService(dbManager, dbManager, notifier, m, logger)

	// STEP 4: Socket and HTTP surfaces
	wsHandler := websocket.NewHandler(
		registry,
		websocket.NewTokenAuthenticator(cfg.WebSocket.ClassroomToken),
		websocket.HandlerConfig{
			PingInterval: cfg.WebSocket.PingInterval,
			ReadTimeout:  cfg.WebSocket.ReadTimeout,
			WriteTimeout: cfg.WebSocket.WriteTimeout,
			BufferSize:   cfg.WebSocket.BufferSize,
		},
		logger,
	)
	apiServer := api.NewServer(callService, dbManager, registry, resolver, http.HandlerFunc(wsHandler.HandleWebSocket), logger)

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.HTTP.Host, fmt.Sprint(cfg.HTTP.Port)),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:      cfg,
		logger:      logger,
		dbManager:   dbManager,
		registry:    registry,
		notifier:    notifier,
		wsHandler:   wsHandler,
		callService: callService,
		apiServer:   apiServer,
		httpServer:  httpServer,
	}, nil
}

// Start begins application execution
// Hub starts first to handle notifications, then HTTP server accepts connections
func (app *Application) Start(ctx context.Context) error {
	if err := app.notifier.Start(ctx); err != nil {
		return fmt.Errorf("failed to start notification hub: %w", err)
	}

	// TECHNICAL DISCOVERY: Listening before Serve surfaces bind errors synchronously
	// and resolves port 0 for tests
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.notifier.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	app.logger.Info("callboard started", zap.String("addr", listener.Addr().String()))
	return nil
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → Hub → Sockets → Database
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down callboard")

	var errs []error

	// STEP 1: Stop accepting requests; in-flight calls finish and queue their notifications
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	// STEP 2: Drain queued notifications to the sockets still connected
	if err := app.notifier.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}

	// STEP 3: Hijacked sockets are not closed by Shutdown
	app.wsHandler.CloseAll()

	// STEP 4: Close database connections
	if err := app.dbManager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database shutdown: %w", err))
	}

	app.logger.Info("callboard shutdown complete")
	return errors.Join(errs...)
}

// GetAddr returns the listening address once started, the configured one before.
func (app *Application) GetAddr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Calls exposes the call service for in-process callers.
func (app *Application) Calls() *calls.Service {
	return app.callService
}

// Registry exposes the live socket registry.
func (app *Application) Registry() *websocket.Registry {
	return app.registry
}

// Store exposes the database manager, used by seeding and tests.
func (app *Application) Store() *database.Manager {
	return app.dbManager
}
