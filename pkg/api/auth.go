package api

import (
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	echo "github.com/labstack/echo/v5"

	"github.com/homescript-labs/homescriptd/pkg/models"
)

// Context keys set by the auth middleware.
const (
	ctxAuthMode = "auth_mode"
	ctxCaller   = "caller"
)

// requireAuth accepts either a bearer JWT or a service-credential pair and
// records which path authorized the caller.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		if sub, ok := s.verifyBearer(c.Request().Header.Get("Authorization")); ok {
			c.Set(ctxAuthMode, models.AuthModeJWT)
			c.Set(ctxCaller, sub)
			return next(c)
		}

		id := c.Request().Header.Get("X-Service-ID")
		key := c.Request().Header.Get("X-Service-Key")
		if id != "" && key != "" {
			account, err := s.accounts.Verify(c.Request().Context(), id, key)
			if err == nil {
				c.Set(ctxAuthMode, models.AuthModeServiceKey)
				c.Set(ctxCaller, account.ID)
				return next(c)
			}
		}

		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
}

// verifyBearer validates an HMAC-signed bearer token and returns its subject.
func (s *Server) verifyBearer(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if raw == "" || s.cfg.JWTSecret == "" {
		return "", false
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return "", false
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		sub = "jwt-user"
	}
	return sub, true
}

// authMode returns the credential path recorded by requireAuth.
func authMode(c *echo.Context) models.AuthMode {
	if m, ok := c.Get(ctxAuthMode).(models.AuthMode); ok {
		return m
	}
	return models.AuthModeUnknown
}

// callerIdentity returns the authenticated caller, falling back to the
// remote IP for unauthenticated paths.
func callerIdentity(c *echo.Context) string {
	if id, ok := c.Get(ctxCaller).(string); ok && id != "" {
		return id
	}
	return clientIP(c).String()
}

// clientIP resolves the originating address, trusting the first
// X-Forwarded-For hop when present.
func clientIP(c *echo.Context) net.IP {
	if fwd := c.Request().Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if ip := net.ParseIP(first); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(c.Request().RemoteAddr)
	if err != nil {
		host = c.Request().RemoteAddr
	}
	return net.ParseIP(host)
}
