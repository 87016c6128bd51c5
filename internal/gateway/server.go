// Package gateway exposes the chat WebSocket and its supporting REST
// endpoints over HTTP: health, model listing, and /ws/chat.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/FinnMacCumail/claude-agentic-netbox/internal/agent"
	"github.com/FinnMacCumail/claude-agentic-netbox/internal/config"
	"github.com/FinnMacCumail/claude-agentic-netbox/internal/gateway/session"
)

// Server is the gateway's HTTP entry point: one gin.Engine, one Session
// Manager, one Model Registry, shared across every connection.
type Server struct {
	router    *gin.Engine
	cfg       *config.Config
	logger    *slog.Logger
	registry  *agent.Registry
	sessions  *session.Manager
	upgrader  websocket.Upgrader
	startedAt time.Time
}

// NewServer wires routes and middleware. The registry used by every
// Session's Transport factory is constructed once here; the tool scope
// is built per connection in handleWebSocket.
func NewServer(cfg *config.Config, logger *slog.Logger) *Server {
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		registry:  agent.NewRegistry(cfg.LLMAPIKey != "", cfg.DefaultModelID),
		sessions:  session.NewManager(),
		startedAt: time.Now(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(logger))
	router.Use(corsMiddleware(cfg.AllowedOrigins))

	s.router = router
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/models", s.handleModels)
	s.router.GET("/ws/chat", s.handleWebSocket)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": s.cfg.ServiceName,
		"version": s.cfg.ServiceVersion,
		"uptime":  time.Since(s.startedAt).String(),
	})
}

func (s *Server) handleModels(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.List())
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// with a bounded grace period.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming connections hold writes open indefinitely
		IdleTimeout:  120 * time.Second,
	}

	listenErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			listenErr <- err
		}
	}()

	s.logger.Info("gateway listening", "address", addr)

	select {
	case err := <-listenErr:
		return fmt.Errorf("gateway failed to start: %w", err)
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case err := <-listenErr:
		return fmt.Errorf("gateway runtime error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info("shutting down gateway")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
