package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PoolStats is a snapshot of the connection pool serving the script store.
type PoolStats struct {
	Open      int   `json:"open"`
	InUse     int   `json:"inUse"`
	Idle      int   `json:"idle"`
	WaitCount int64 `json:"waitCount"`
}

// HealthStatus is the script-store health snapshot reported by /healthz.
// Home Assistant being down never shows up here; only the daemon's own
// storage gates liveness.
type HealthStatus struct {
	Status string    `json:"status"`
	PingMs int64     `json:"pingMs"`
	Pool   PoolStats `json:"pool"`
}

// Health pings the script store and reports pool pressure.
func Health(ctx context.Context, db *sql.DB) (*HealthStatus, error) {
	start := time.Now()
	if err := db.PingContext(ctx); err != nil {
		return &HealthStatus{
			Status: "unhealthy",
			PingMs: time.Since(start).Milliseconds(),
		}, fmt.Errorf("script store unreachable: %w", err)
	}

	stats := db.Stats()
	return &HealthStatus{
		Status: "healthy",
		PingMs: time.Since(start).Milliseconds(),
		Pool: PoolStats{
			Open:      stats.OpenConnections,
			InUse:     stats.InUse,
			Idle:      stats.Idle,
			WaitCount: stats.WaitCount,
		},
	}, nil
}
