package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/homescript-labs/homescriptd/pkg/database"
	"github.com/homescript-labs/homescriptd/pkg/version"
)

// configHandler handles GET /api/config. It is unauthenticated, so it only
// exposes what the UI needs to pick an execution mode.
func (s *Server) configHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"mock":         !s.cfg.HAConfigured(),
		"haConfigured": s.cfg.HAConfigured(),
		"version":      version.GitCommit,
	})
}

// healthHandler handles GET /healthz. Only the service's own database is
// checked; Home Assistant being down must not make the orchestrator restart
// this process.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	httpStatus := http.StatusOK
	checks := map[string]string{}

	if s.dbClient != nil {
		if _, err := database.Health(reqCtx, s.dbClient.Raw()); err != nil {
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
			checks["database"] = err.Error()
		} else {
			checks["database"] = "healthy"
		}
	}

	return c.JSON(httpStatus, map[string]any{
		"status":  status,
		"version": version.GitCommit,
		"checks":  checks,
	})
}
