// Package api provides the HTTP REST API for the Rako bridge.
//
// It exposes hub configuration (rooms, channels, scenes), live levels,
// recorded history, and a command endpoint to local tooling and dashboards.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/rako-bridge/internal/bridges/rako"
	"github.com/nerrad567/rako-bridge/internal/history"
	"github.com/nerrad567/rako-bridge/internal/infrastructure/config"
	"github.com/nerrad567/rako-bridge/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HubReader provides read access to hub configuration and state.
// Satisfied by *rako.Hub.
type HubReader interface {
	GetHubInfo(ctx context.Context) (rako.HubInfo, error)
	GetRooms(ctx context.Context, roomID ...int) ([]rako.Room, error)
	GetChannels(ctx context.Context, roomID ...int) ([]rako.Channel, error)
	GetLevels(ctx context.Context, roomID ...int) ([]rako.Level, error)
	GetScenes(ctx context.Context, roomID ...int) ([]rako.Scene, error)
	GetColours(ctx context.Context, roomID ...int) ([]rako.Colour, error)
	GetColourLevels(ctx context.Context, roomID ...int) ([]rako.ColourLevel, error)
}

// CommandExecutor runs lighting commands through the bridge.
// Satisfied by *rako.Bridge.
type CommandExecutor interface {
	Execute(cmd rako.CommandMessage) error
	GetMetrics() rako.BridgeMetrics
}

// HistoryReader reads recorded level changes.
// Satisfied by *history.Store.
type HistoryReader interface {
	GetHistory(ctx context.Context, roomID, channelID string, limit int) ([]history.Entry, error)
}

var (
	_ HubReader       = (*rako.Hub)(nil)
	_ CommandExecutor = (*rako.Bridge)(nil)
	_ HistoryReader   = (*history.Store)(nil)
)

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Hub     HubReader
	Bridge  CommandExecutor
	History HistoryReader // Optional; history endpoints return 404 when nil
	Version string
}

// Server is the HTTP API server for the Rako bridge.
//
// It manages the HTTP listener, routes, and middleware.
// The server is created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	hub     HubReader
	bridge  CommandExecutor
	history HistoryReader
	version string
	server  *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, hub, bridge)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("hub client is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}
	// History is optional - endpoints return 404 when persistence is disabled

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		hub:     deps.Hub,
		bridge:  deps.Bridge,
		history: deps.History,
		version: deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
