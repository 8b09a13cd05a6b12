package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/homescript-labs/homescriptd/pkg/models"
)

// getDebugAccessHandler handles GET /api/debug-access.
func (s *Server) getDebugAccessHandler(c *echo.Context) error {
	access, err := s.debugAccess.Get(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, access)
}

// updateDebugAccessHandler handles PUT /api/debug-access.
func (s *Server) updateDebugAccessHandler(c *echo.Context) error {
	var req models.UpdateDebugAccessRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	access, err := s.debugAccess.Update(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, access)
}
