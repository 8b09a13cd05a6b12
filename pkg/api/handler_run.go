package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	echo "github.com/labstack/echo/v5"

	"github.com/homescript-labs/homescriptd/pkg/metrics"
	"github.com/homescript-labs/homescriptd/pkg/models"
	"github.com/homescript-labs/homescriptd/pkg/runner"
	"github.com/homescript-labs/homescriptd/pkg/services"
)

// runHandler handles GET and POST /api/run/:endpoint. Query string and JSON
// body are merged into the initial scope and the run parameters; the body
// wins on conflict.
func (s *Server) runHandler(c *echo.Context) error {
	endpoint := c.Param("endpoint")
	if endpoint == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "endpoint is required")
	}

	if !s.limiter.Allow(callerIdentity(c), endpoint) {
		metrics.RateLimitedTotal.Inc()
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
	}

	script, err := s.scripts.GetByEndpoint(c.Request().Context(), endpoint)
	if err != nil {
		return mapServiceError(err)
	}

	params := queryParams(c.Request().URL.Query())
	for k, v := range bodyParams(c.Request().Body) {
		params[k] = v
	}

	return s.execute(c, script.Code, runner.RunOptions{
		Endpoint:    endpoint,
		AuthMode:    authMode(c),
		Scope:       params,
		QueryParams: params,
	})
}

// webhookHandler handles POST /api/webhook/:endpoint — the unauthenticated
// execution path. The raw body and query are exposed to the script as
// webhook_data and webhook_query.
func (s *Server) webhookHandler(c *echo.Context) error {
	endpoint := c.Param("endpoint")
	if endpoint == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "endpoint is required")
	}

	if !s.limiter.Allow(callerIdentity(c), endpoint) {
		metrics.RateLimitedTotal.Inc()
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
	}

	script, err := s.scripts.GetByEndpoint(c.Request().Context(), endpoint)
	if err != nil {
		return mapServiceError(err)
	}

	query := queryParams(c.Request().URL.Query())
	body := bodyParams(c.Request().Body)

	scope := map[string]any{
		"webhook_data":  body,
		"webhook_query": query,
	}
	for k, v := range query {
		scope[k] = v
	}

	return s.execute(c, script.Code, runner.RunOptions{
		Endpoint:    endpoint,
		AuthMode:    models.AuthModeUnknown,
		Scope:       scope,
		QueryParams: query,
	})
}

// debugRunHandler handles POST /api/debug-access/run/:endpoint. It bypasses
// credential checks when the caller IP falls in the configured CIDR set and
// the configured service ID is presented. A debug-enabled script runs its
// debug draft instead of the main source.
func (s *Server) debugRunHandler(c *echo.Context) error {
	endpoint := c.Param("endpoint")
	if endpoint == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "endpoint is required")
	}

	access, err := s.debugAccess.Get(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	cfg := services.ParseDebugAccess(access)
	if !cfg.Allows(clientIP(c)) {
		return echo.NewHTTPError(http.StatusForbidden, "debug access denied")
	}
	if cfg.ServiceID == "" || c.Request().Header.Get("X-Service-ID") != cfg.ServiceID {
		return echo.NewHTTPError(http.StatusForbidden, "debug access denied")
	}

	script, err := s.scripts.GetByEndpoint(c.Request().Context(), endpoint)
	if err != nil {
		return mapServiceError(err)
	}

	source := script.Code
	if script.DebugEnabled && script.DebugCode != "" {
		source = script.DebugCode
	}

	params := queryParams(c.Request().URL.Query())
	for k, v := range bodyParams(c.Request().Body) {
		params[k] = v
	}

	return s.execute(c, source, runner.RunOptions{
		Endpoint:    endpoint,
		AuthMode:    models.AuthModeDebugBypass,
		Scope:       params,
		QueryParams: params,
	})
}

// debugAccessPublicHandler handles GET /api/debug-access/public: tells a LAN
// client whether the bypass would admit it, without exposing the CIDR list.
func (s *Server) debugAccessPublicHandler(c *echo.Context) error {
	access, err := s.debugAccess.Get(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	cfg := services.ParseDebugAccess(access)
	return c.JSON(http.StatusOK, map[string]any{
		"enabled": access.Enabled,
		"allowed": cfg.Allows(clientIP(c)),
	})
}

// execute runs a script and renders the report contract: 2xx with
// {output, variables, report} on success, the report's HTTP status with
// {error, line?, report} on interpreter failure.
func (s *Server) execute(c *echo.Context, source string, opts runner.RunOptions) error {
	res := s.runner.Execute(c.Request().Context(), source, opts)

	if res.Err != nil {
		body := map[string]any{
			"error":  res.Err.Message,
			"report": res.Report,
		}
		if res.Err.Line > 0 {
			body["line"] = res.Err.Line
		}
		return c.JSON(res.Report.Meta.HTTPStatus, body)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"output":    res.Output,
		"variables": res.Variables,
		"report":    res.Report,
	})
}

// queryParams flattens a URL query into run parameters; repeated keys keep
// the first value.
func queryParams(values url.Values) map[string]any {
	params := make(map[string]any, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	return params
}

// bodyParams decodes a JSON object body into run parameters. Non-object or
// empty bodies contribute nothing.
func bodyParams(r io.Reader) map[string]any {
	if r == nil {
		return map[string]any{}
	}
	data, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil || len(data) == 0 {
		return map[string]any{}
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return map[string]any{}
	}
	return body
}
