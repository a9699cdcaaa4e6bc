package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/netassist/core/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Database    string `json:"database"`
	Plugins     int    `json:"plugins"`
	Connections int    `json:"ws_connections"`
}

// healthHandler reports DB reachability, registry size, and live WebSocket
// connection count. Only the engine's own components are checked; external
// services are deliberately excluded so a flaky upstream cannot get the
// process restarted by an orchestration layer.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	resp := &HealthResponse{
		Status:  healthStatusHealthy,
		Version: version.Full(),
	}
	if s.registry != nil {
		resp.Plugins = s.registry.Count()
	}
	if s.connManager != nil {
		resp.Connections = s.connManager.ActiveConnections()
	}

	httpStatus := http.StatusOK
	if s.dbClient != nil {
		dbHealth, err := s.dbClient.Health(reqCtx)
		resp.Database = dbHealth.Status
		if err != nil {
			resp.Status = healthStatusUnhealthy
			httpStatus = http.StatusServiceUnavailable
		}
	}
	return c.JSON(httpStatus, resp)
}
