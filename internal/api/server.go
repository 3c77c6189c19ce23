package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Unisami/workrelay"
	"github.com/Unisami/workrelay/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	startTime = time.Now()  // Track server start time for uptime calculation
	version   = "0.1.0-dev" // Version information
)

// Server is the workrelay HTTP API server.
type Server struct {
	layer      *workrelay.Layer
	registry   *prometheus.Registry
	httpServer *http.Server
	bindAddr   string
	bindPort   int
}

// NewServer creates a new API server instance around an already-running
// relay layer.
func NewServer(config *Config) *Server {
	// Set Gin to release mode for production
	gin.SetMode(gin.ReleaseMode)

	return &Server{
		layer:    config.Layer,
		registry: config.Registry,
		bindAddr: config.BindAddr,
		bindPort: config.BindPort,
	}
}

// buildRouter assembles the gin engine with middleware and routes. Split out
// from Start so handler tests can drive the router without a listener.
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	// Configure Gin logging only if not already configured by CLI tools
	if !logging.IsConfiguredByCLI() {
		gin.DefaultWriter = logging.NewLevelWriter("INFO", "gin")
		gin.DefaultErrorWriter = logging.NewLevelWriter("ERROR", "gin")
	}

	router.Use(s.loggingMiddleware())
	router.Use(s.corsMiddleware())
	router.Use(gin.Recovery())

	s.setupRoutes(router)
	return router
}

// Start binds the listener and begins serving in a background goroutine.
func (s *Server) Start() error {
	logging.Info("Starting HTTP API server on %s:%d", s.bindAddr, s.bindPort)

	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.bindAddr, s.bindPort),
		Handler: router,
		// Timeouts for production
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Test binding first to catch errors immediately
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", s.httpServer.Addr, err)
	}
	listener.Close()

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("HTTP server failed: %v", err)
		}
	}()

	logging.Success("HTTP API server started successfully")
	return nil
}

// Shutdown gracefully shuts down the HTTP server. The relay layer itself is
// shut down by the daemon, not here, so in-flight handler requests can still
// reach it during the drain window.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down HTTP API server...")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}
