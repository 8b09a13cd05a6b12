package models

import (
	"regexp"
	"time"
)

// EndpointPattern is the allowed shape of a script endpoint.
// Endpoints are URL path segments, so only lowercase alphanumerics and dashes.
var EndpointPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Script is a stored HomeScript program bound to an endpoint.
type Script struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Endpoint      string    `json:"endpoint" db:"endpoint"`
	Code          string    `json:"code" db:"code"`
	DebugCode     string    `json:"debugCode" db:"debug_code"`
	DebugEnabled  bool      `json:"debugEnabled" db:"debug_enabled"`
	TestParams    string    `json:"testParams" db:"test_params"`
	TriggerConfig string    `json:"triggerConfig" db:"trigger_config"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}

// ServiceAccount is a machine credential for the run endpoints.
// SecretHash is a bcrypt hash; the plaintext secret is returned exactly once
// at creation time.
type ServiceAccount struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	SecretHash string    `json:"-" db:"secret_hash"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// DebugAccess is the singleton LAN debug-bypass configuration.
type DebugAccess struct {
	Enabled   bool     `json:"enabled"`
	CIDRs     []string `json:"cidrs"`
	ServiceID string   `json:"service_id"`
}
