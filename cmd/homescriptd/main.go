// homescriptd — self-hosted HomeScript automation server: HTTP API,
// script execution, and Home Assistant event triggers.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/homescript-labs/homescriptd/pkg/api"
	"github.com/homescript-labs/homescriptd/pkg/config"
	"github.com/homescript-labs/homescriptd/pkg/database"
	"github.com/homescript-labs/homescriptd/pkg/ha"
	"github.com/homescript-labs/homescriptd/pkg/models"
	"github.com/homescript-labs/homescriptd/pkg/runner"
	"github.com/homescript-labs/homescriptd/pkg/services"
	"github.com/homescript-labs/homescriptd/pkg/trigger"
	"github.com/homescript-labs/homescriptd/pkg/version"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting homescriptd",
		"version", version.GitCommit,
		"port", cfg.Port,
		"ha_configured", cfg.HAConfigured())
	if cfg.SSOConfigured {
		slog.Info("SSO environment detected; interactive sign-on is handled by the fronting proxy")
	}

	ctx := context.Background()

	// Database + migrations.
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// Domain services.
	scriptService := services.NewScriptService(dbClient)
	accountService := services.NewServiceAccountService(dbClient)
	debugAccessService := services.NewDebugAccessService(dbClient)
	slog.Info("Services initialized")

	// Execution host: live when HA credentials are present, simulated
	// otherwise.
	var (
		host     runner.Host
		haMode   = models.HAModeMock
		haClient *ha.Client
	)
	if cfg.HAConfigured() {
		haClient = ha.NewClient(cfg.HAURL, cfg.HAToken, cfg.HATimeout)
		host = runner.NewLiveHost(haClient)
		haMode = models.HAModeReal
		slog.Info("Live Home Assistant host enabled", "url", cfg.HAURL)
	} else {
		host = runner.MockHost{}
		slog.Info("Running in mock mode, Home Assistant calls are simulated")
	}

	// IMPORT statements resolve against stored scripts by endpoint.
	importer := runner.ImporterFunc(func(ctx context.Context, endpoint string) (string, error) {
		script, err := scriptService.GetByEndpoint(ctx, endpoint)
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				return "", fmt.Errorf("Script '%s' not found", endpoint)
			}
			return "", err
		}
		return script.Code, nil
	})

	r := runner.New(host, haMode, importer)

	// Event-trigger engine: only meaningful against a live instance.
	var engine *trigger.Engine
	if cfg.HAConfigured() {
		engine = trigger.NewEngine(haClient.WebsocketURL(), haClient.Token(), scriptService, r)
		engine.Start(ctx)
		slog.Info("Trigger engine started", "ws_url", haClient.WebsocketURL())
	}

	httpServer := api.NewServer(cfg, dbClient, scriptService, accountService, debugAccessService, r, haClient)

	// Start HTTP server (non-blocking).
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("homescriptd started successfully")

	// Wait for shutdown signal or server error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// Graceful shutdown: stop the trigger engine first so no new runs start
	// while in-flight HTTP requests drain.
	if engine != nil {
		engine.Stop()
		slog.Info("Trigger engine stopped")
	}

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
