package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"
)

// historyHandler handles GET /api/history?entityId=…&hours=… — a proxied
// state-history fetch for the UI.
func (s *Server) historyHandler(c *echo.Context) error {
	entityID := c.QueryParam("entityId")
	if entityID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "entityId is required")
	}

	hours := 24
	if v := c.QueryParam("hours"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil || h <= 0 || h > 24*31 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid hours")
		}
		hours = h
	}

	if s.haClient == nil {
		return c.JSON(http.StatusOK, map[string]any{
			"entityId": entityID,
			"entries":  []any{},
			"mock":     true,
		})
	}

	entries, err := s.haClient.History(c.Request().Context(), entityID, hours)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"entityId": entityID,
		"entries":  entries,
	})
}
