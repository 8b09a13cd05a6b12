// Package api implements the HTTP surface: script CRUD, run endpoints,
// debug access, service accounts and the history proxy.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/homescript-labs/homescriptd/pkg/config"
	"github.com/homescript-labs/homescriptd/pkg/database"
	"github.com/homescript-labs/homescriptd/pkg/ha"
	"github.com/homescript-labs/homescriptd/pkg/metrics"
	"github.com/homescript-labs/homescriptd/pkg/models"
	"github.com/homescript-labs/homescriptd/pkg/ratelimit"
	"github.com/homescript-labs/homescriptd/pkg/runner"
)

// ScriptStore is the script persistence surface the handlers depend on.
type ScriptStore interface {
	Create(ctx context.Context, req models.CreateScriptRequest) (*models.Script, error)
	Get(ctx context.Context, id string) (*models.Script, error)
	GetByEndpoint(ctx context.Context, endpoint string) (*models.Script, error)
	List(ctx context.Context) ([]models.Script, error)
	Update(ctx context.Context, id string, req models.UpdateScriptRequest) (*models.Script, error)
	UpdateDebugDraft(ctx context.Context, id string, req models.UpdateDebugDraftRequest) (*models.Script, error)
	Delete(ctx context.Context, id string) error
}

// AccountStore is the service-account surface the handlers depend on.
type AccountStore interface {
	Create(ctx context.Context, req models.CreateServiceAccountRequest) (*models.ServiceAccount, string, error)
	List(ctx context.Context) ([]models.ServiceAccount, error)
	Delete(ctx context.Context, id string) error
	Verify(ctx context.Context, id, secret string) (*models.ServiceAccount, error)
}

// DebugAccessStore is the debug-bypass configuration surface.
type DebugAccessStore interface {
	Get(ctx context.Context) (*models.DebugAccess, error)
	Update(ctx context.Context, req models.UpdateDebugAccessRequest) (*models.DebugAccess, error)
}

// Server is the HTTP API server.
type Server struct {
	e          *echo.Echo
	httpServer *http.Server

	cfg         *config.Config
	dbClient    *database.Client
	scripts     ScriptStore
	accounts    AccountStore
	debugAccess DebugAccessStore
	runner      *runner.Runner
	haClient    *ha.Client // nil when no live instance is configured
	limiter     *ratelimit.Limiter
}

// NewServer creates the API server and registers all routes.
func NewServer(cfg *config.Config, dbClient *database.Client, scripts ScriptStore,
	accounts AccountStore, debugAccess DebugAccessStore, r *runner.Runner,
	haClient *ha.Client) *Server {

	s := &Server{
		cfg:         cfg,
		dbClient:    dbClient,
		scripts:     scripts,
		accounts:    accounts,
		debugAccess: debugAccess,
		runner:      r,
		haClient:    haClient,
		limiter:     ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}

	e := echo.New()
	e.Use(securityHeaders())

	// Unauthenticated surface.
	e.GET("/healthz", s.healthHandler)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	e.GET("/api/config", s.configHandler)
	e.POST("/api/webhook/:endpoint", s.webhookHandler)
	e.GET("/api/debug-access/public", s.debugAccessPublicHandler)
	e.POST("/api/debug-access/run/:endpoint", s.debugRunHandler)

	// Admin surface: bearer token or service-credential pair.
	admin := e.Group("/api", s.requireAuth)
	admin.GET("/scripts", s.listScriptsHandler)
	admin.POST("/scripts", s.createScriptHandler)
	admin.GET("/scripts/:id", s.getScriptHandler)
	admin.PUT("/scripts/:id", s.updateScriptHandler)
	admin.DELETE("/scripts/:id", s.deleteScriptHandler)
	admin.PUT("/scripts/:id/debug", s.updateDebugDraftHandler)
	admin.POST("/scripts/validate", s.validateScriptHandler)
	admin.GET("/run/:endpoint", s.runHandler)
	admin.POST("/run/:endpoint", s.runHandler)
	admin.GET("/history", s.historyHandler)
	admin.GET("/debug-access", s.getDebugAccessHandler)
	admin.PUT("/debug-access", s.updateDebugAccessHandler)
	admin.GET("/service-accounts", s.listAccountsHandler)
	admin.POST("/service-accounts", s.createAccountHandler)
	admin.DELETE("/service-accounts/:id", s.deleteAccountHandler)

	s.e = e
	return s
}

// Start begins serving on addr. It blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.e,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler { return s.e }
