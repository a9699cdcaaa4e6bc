// Package api exposes the orchestrator's turn and watch surface over HTTP,
// plus a WebSocket stream pushing message updates and change notifications
// to subscribed conversations.
package api

import (
	"context"
	"net"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/netassist/core/pkg/database"
	"github.com/netassist/core/pkg/orchestrator"
)

// maxBodyBytes bounds request bodies; utterances are short.
const maxBodyBytes = 64 * 1024

// RegistrySizer reports the number of registered plugins for /health.
type RegistrySizer interface {
	Count() int
}

// Server is the HTTP API server.
type Server struct {
	echo        *echo.Echo
	httpServer  *http.Server
	orch        *orchestrator.Orchestrator
	dbClient    *database.Client
	registry    RegistrySizer
	connManager *ConnectionManager
}

// NewServer creates the API server and registers its routes.
func NewServer(orch *orchestrator.Orchestrator, dbClient *database.Client, registry RegistrySizer, connManager *ConnectionManager) *Server {
	e := echo.New()
	s := &Server{
		echo:        e,
		orch:        orch,
		dbClient:    dbClient,
		registry:    registry,
		connManager: connManager,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(maxBodyBytes))

	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/turn", s.turnHandler)
	v1.POST("/turn/cancel", s.cancelTurnHandler)
	v1.PUT("/scope", s.setScopeHandler)

	v1.GET("/watch", s.listWatchesHandler)
	v1.POST("/watch/:id/stop", s.stopWatchHandler)
	v1.GET("/watch/:id/logs", s.watchLogsHandler)

	v1.GET("/ws", s.wsHandler)
}

// Start serves on addr, blocking until shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener serves on a pre-created listener, for tests that need
// an OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
