package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/homescript-labs/homescriptd/pkg/homescript"
	"github.com/homescript-labs/homescriptd/pkg/models"
)

// listScriptsHandler handles GET /api/scripts.
func (s *Server) listScriptsHandler(c *echo.Context) error {
	scripts, err := s.scripts.List(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, scripts)
}

// getScriptHandler handles GET /api/scripts/:id.
func (s *Server) getScriptHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "script id is required")
	}
	script, err := s.scripts.Get(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, script)
}

// createScriptHandler handles POST /api/scripts.
func (s *Server) createScriptHandler(c *echo.Context) error {
	var req models.CreateScriptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	script, err := s.scripts.Create(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, script)
}

// updateScriptHandler handles PUT /api/scripts/:id.
func (s *Server) updateScriptHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "script id is required")
	}
	var req models.UpdateScriptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	script, err := s.scripts.Update(c.Request().Context(), id, req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, script)
}

// updateDebugDraftHandler handles PUT /api/scripts/:id/debug — a partial
// update that never touches the main source.
func (s *Server) updateDebugDraftHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "script id is required")
	}
	var req models.UpdateDebugDraftRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	script, err := s.scripts.UpdateDebugDraft(c.Request().Context(), id, req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, script)
}

// deleteScriptHandler handles DELETE /api/scripts/:id.
func (s *Server) deleteScriptHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "script id is required")
	}
	if err := s.scripts.Delete(c.Request().Context(), id); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// validateScriptHandler handles POST /api/scripts/validate: static
// diagnostics without executing anything.
func (s *Server) validateScriptHandler(c *echo.Context) error {
	var req struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	diags := homescript.Validate(req.Code)
	if diags == nil {
		diags = []homescript.Diagnostic{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"valid":       len(diags) == 0,
		"diagnostics": diags,
	})
}
