package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/homescript-labs/homescriptd/pkg/models"
)

// listAccountsHandler handles GET /api/service-accounts.
func (s *Server) listAccountsHandler(c *echo.Context) error {
	accounts, err := s.accounts.List(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, accounts)
}

// createAccountHandler handles POST /api/service-accounts. The plaintext
// secret appears in this response and nowhere else.
func (s *Server) createAccountHandler(c *echo.Context) error {
	var req models.CreateServiceAccountRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	account, secret, err := s.accounts.Create(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"account": account,
		"secret":  secret,
	})
}

// deleteAccountHandler handles DELETE /api/service-accounts/:id.
func (s *Server) deleteAccountHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "account id is required")
	}
	if err := s.accounts.Delete(c.Request().Context(), id); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
